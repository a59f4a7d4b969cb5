package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransferStatus tracks a transfer through the settlement state machine:
// PENDING -> PROCESSING -> {COMPLETED, REJECTED, ERROR}.
type TransferStatus string

const (
	StatusPending    TransferStatus = "PENDING"
	StatusProcessing TransferStatus = "PROCESSING"
	StatusCompleted  TransferStatus = "COMPLETED"
	StatusRejected   TransferStatus = "REJECTED"
	StatusError      TransferStatus = "ERROR"
)

// Terminal reports whether the status admits no further transitions.
func (s TransferStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusRejected, StatusError:
		return true
	}
	return false
}

// Account holds a named balance in the ledger.
type Account struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

// Transfer represents the intent to move money between two accounts.
// ProcessingID correlates all transfers claimed together in one dispatcher
// tick; once set it is never cleared, even if the transfer is recovered back
// to PENDING after a crash.
type Transfer struct {
	ID                int64           `json:"id"`
	SenderAccountID   int64           `json:"sender_account_id"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Status            TransferStatus  `json:"status"`
	ProcessingID      *string         `json:"processing_id,omitempty"`
	ProcessingStart   *time.Time      `json:"processing_start,omitempty"`
	ProcessingEnd     *time.Time      `json:"processing_end,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// Page is one page of a listing plus the total row count.
type Page[T any] struct {
	Content []T   `json:"content"`
	Total   int64 `json:"total"`
}
