package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleops/transferd/internal/domain"
)

// TransferUpdate carries the client-settable transfer fields. Status is
// deliberately absent: it is owned by the settlement engine.
type TransferUpdate struct {
	SenderAccountID   int64
	ReceiverAccountID int64
	Amount            decimal.Decimal
}

// Store is the persistence surface shared by the REST layer and the
// settlement engine. Implementations must provide atomic multi-statement
// transactions and row-scoped exclusive locks.
type Store interface {
	CreateAccount(ctx context.Context, name string, amount decimal.Decimal) (domain.Account, error)
	GetAccount(ctx context.Context, id int64) (domain.Account, error)
	UpdateAccount(ctx context.Context, id int64, name string, amount decimal.Decimal) (domain.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	ListAccounts(ctx context.Context, page, pageSize int) (domain.Page[domain.Account], error)

	// CreateTransfer records a new transfer intent; status is forced to
	// PENDING and the processing fields start null.
	CreateTransfer(ctx context.Context, senderID, receiverID int64, amount decimal.Decimal) (domain.Transfer, error)
	GetTransfer(ctx context.Context, id int64) (domain.Transfer, error)
	// UpdateTransfer and DeleteTransfer fail with ErrInvalidState unless the
	// transfer is still PENDING.
	UpdateTransfer(ctx context.Context, id int64, upd TransferUpdate) (domain.Transfer, error)
	DeleteTransfer(ctx context.Context, id int64) error
	ListTransfers(ctx context.Context, page, pageSize int) (domain.Page[domain.Transfer], error)

	// ClaimPending atomically tags up to batchSize PENDING transfers, oldest
	// id first, with the given processing id and flips them to PROCESSING.
	// Concurrent claims must partition the pending set, never overlap.
	// Returns the number of transfers claimed.
	ClaimPending(ctx context.Context, processingID string, batchSize int, now time.Time) (int64, error)

	// TransfersInBatch returns the transfers tagged with processingID that
	// are still in PROCESSING. An unknown id yields an empty slice, not an
	// error.
	TransfersInBatch(ctx context.Context, processingID string) ([]domain.Transfer, error)

	// ResetInFlight moves every PROCESSING transfer back to PENDING,
	// retaining the processing id and start time as historical trace.
	// Run once at startup before the dispatcher's first tick.
	ResetInFlight(ctx context.Context) (int64, error)

	// InTx runs fn inside one transaction; any error rolls back every
	// change made through the Tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional surface used by the settlement executor.
type Tx interface {
	// AccountBalanceForUpdate reads the account balance under a row
	// exclusive lock held until the transaction ends.
	AccountBalanceForUpdate(ctx context.Context, accountID int64) (decimal.Decimal, error)
	// AdjustBalance adds delta (which may be negative) to the account
	// balance.
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal) error
	// FinalizeTransfer sets the terminal status and processing end time.
	FinalizeTransfer(ctx context.Context, transferID int64, status domain.TransferStatus, end time.Time) error
}
