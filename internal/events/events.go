package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TransferSettled is emitted once per transfer when it reaches a terminal
// status.
type TransferSettled struct {
	TransferID        int64           `json:"transfer_id"`
	SenderAccountID   int64           `json:"sender_account_id"`
	ReceiverAccountID int64           `json:"receiver_account_id"`
	Amount            decimal.Decimal `json:"amount"`
	Status            string          `json:"status"`
	OccurredAt        time.Time       `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event TransferSettled) error
}

// NopPublisher is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, TransferSettled) error { return nil }
