package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/settleops/transferd/internal/domain"
	"github.com/settleops/transferd/internal/events"
	"github.com/settleops/transferd/internal/store"
)

// settle attempts one transfer inside one transaction: read the sender
// balance under a row lock, move the money if it covers the amount, and
// finalize COMPLETED or REJECTED in the same commit. Insufficient funds is a
// normal outcome, not an error.
//
// If the attempt fails, everything it did is rolled back and the ERROR
// status is recorded in a second, separate transaction, so a failed
// debit/credit can never partially apply.
func (e *Engine) settle(ctx context.Context, t domain.Transfer) domain.TransferStatus {
	var status domain.TransferStatus
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		balance, err := tx.AccountBalanceForUpdate(ctx, t.SenderAccountID)
		if err != nil {
			return fmt.Errorf("sender account %d: %w", t.SenderAccountID, err)
		}

		if balance.GreaterThanOrEqual(t.Amount) {
			if err := tx.AdjustBalance(ctx, t.SenderAccountID, t.Amount.Neg()); err != nil {
				return fmt.Errorf("debit account %d: %w", t.SenderAccountID, err)
			}
			if err := tx.AdjustBalance(ctx, t.ReceiverAccountID, t.Amount); err != nil {
				return fmt.Errorf("credit account %d: %w", t.ReceiverAccountID, err)
			}
			status = domain.StatusCompleted
		} else {
			status = domain.StatusRejected
		}
		return tx.FinalizeTransfer(ctx, t.ID, status, time.Now().UTC())
	})
	if err == nil {
		switch status {
		case domain.StatusCompleted:
			e.log.Info("transfer completed", "transfer", t.ID, "amount", t.Amount,
				"sender", t.SenderAccountID, "receiver", t.ReceiverAccountID)
		case domain.StatusRejected:
			e.log.Info("transfer rejected, sender balance too low", "transfer", t.ID,
				"amount", t.Amount, "sender", t.SenderAccountID)
		}
		return status
	}

	e.log.Error("settlement failed", "transfer", t.ID, "error", err)
	ferr := e.store.InTx(ctx, func(tx store.Tx) error {
		return tx.FinalizeTransfer(ctx, t.ID, domain.StatusError, time.Now().UTC())
	})
	if ferr != nil {
		// The transfer stays PROCESSING; the next restart's recovery will
		// requeue it.
		e.log.Error("recording ERROR outcome failed", "transfer", t.ID, "error", ferr)
	}
	return domain.StatusError
}

func (e *Engine) publishSettled(ctx context.Context, t domain.Transfer, status domain.TransferStatus) {
	event := events.TransferSettled{
		TransferID:        t.ID,
		SenderAccountID:   t.SenderAccountID,
		ReceiverAccountID: t.ReceiverAccountID,
		Amount:            t.Amount,
		Status:            string(status),
		OccurredAt:        time.Now().UTC(),
	}
	if err := e.pub.Publish(ctx, event); err != nil {
		e.log.Error("publishing settlement event failed", "transfer", t.ID, "error", err)
	}
}
