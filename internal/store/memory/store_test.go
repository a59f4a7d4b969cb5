package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleops/transferd/internal/domain"
	"github.com/settleops/transferd/internal/store"
)

func seed(t *testing.T, s *Store) (domain.Account, domain.Account) {
	t.Helper()
	ctx := context.Background()
	a, err := s.CreateAccount(ctx, "alice", decimal.NewFromInt(100))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	b, err := s.CreateAccount(ctx, "bob", decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return a, b
}

func TestAccountCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, _ := seed(t, s)

	got, err := s.GetAccount(ctx, a.ID)
	if err != nil || got.Name != "alice" {
		t.Fatalf("get account: %+v, %v", got, err)
	}

	upd, err := s.UpdateAccount(ctx, a.ID, "alice2", decimal.NewFromInt(7))
	if err != nil || upd.Name != "alice2" || !upd.Amount.Equal(decimal.NewFromInt(7)) {
		t.Fatalf("update account: %+v, %v", upd, err)
	}

	if err := s.DeleteAccount(ctx, a.ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if _, err := s.GetAccount(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.DeleteAccount(ctx, a.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestCreateTransferDefaults(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := seed(t, s)

	tr, err := s.CreateTransfer(ctx, a.ID, b.ID, decimal.NewFromInt(10))
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	if tr.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", tr.Status)
	}
	if tr.ProcessingID != nil || tr.ProcessingStart != nil || tr.ProcessingEnd != nil {
		t.Fatal("processing fields must start null")
	}

	if _, err := s.CreateTransfer(ctx, a.ID, 999, decimal.NewFromInt(10)); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown receiver, got %v", err)
	}
}

func TestTransferPendingGuard(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := seed(t, s)
	tr, _ := s.CreateTransfer(ctx, a.ID, b.ID, decimal.NewFromInt(10))

	if _, err := s.ClaimPending(ctx, "p1", 10, time.Now().UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	upd := store.TransferUpdate{SenderAccountID: a.ID, ReceiverAccountID: b.ID, Amount: decimal.NewFromInt(20)}
	if _, err := s.UpdateTransfer(ctx, tr.ID, upd); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on update, got %v", err)
	}
	if err := s.DeleteTransfer(ctx, tr.ID); !errors.Is(err, store.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on delete, got %v", err)
	}

	got, _ := s.GetTransfer(ctx, tr.ID)
	if !got.Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("guarded update must not change amount, got %s", got.Amount)
	}
}

func TestClaimPendingOrderAndLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := seed(t, s)
	for i := 0; i < 5; i++ {
		s.CreateTransfer(ctx, a.ID, b.ID, decimal.NewFromInt(1))
	}

	n, err := s.ClaimPending(ctx, "p1", 3, time.Now().UTC())
	if err != nil || n != 3 {
		t.Fatalf("expected 3 claimed, got %d, %v", n, err)
	}

	batch, _ := s.TransfersInBatch(ctx, "p1")
	if len(batch) != 3 {
		t.Fatalf("expected batch of 3, got %d", len(batch))
	}
	for i, tr := range batch {
		if tr.ID != int64(i+1) {
			t.Fatalf("expected oldest-first claim, got id %d at position %d", tr.ID, i)
		}
		if tr.Status != domain.StatusProcessing || tr.ProcessingStart == nil {
			t.Fatalf("claimed transfer %d not marked: %+v", tr.ID, tr)
		}
	}

	// Unknown processing ids are empty, not errors.
	empty, err := s.TransfersInBatch(ctx, "unknown")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty batch, got %d, %v", len(empty), err)
	}
}

func TestConcurrentClaimsPartitionPendingSet(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := seed(t, s)
	const pending = 40
	for i := 0; i < pending; i++ {
		s.CreateTransfer(ctx, a.ID, b.ID, decimal.NewFromInt(1))
	}

	const claimers = 8
	var wg sync.WaitGroup
	wg.Add(claimers)
	for i := 0; i < claimers; i++ {
		go func(n int) {
			defer wg.Done()
			s.ClaimPending(ctx, fmt.Sprintf("claimer-%d", n), 7, time.Now().UTC())
		}(i)
	}
	wg.Wait()

	page, _ := s.ListTransfers(ctx, 0, pending)
	byBatch := map[string]int{}
	for _, tr := range page.Content {
		if tr.Status != domain.StatusProcessing {
			continue
		}
		if tr.ProcessingID == nil {
			t.Fatalf("transfer %d PROCESSING without processing id", tr.ID)
		}
		byBatch[*tr.ProcessingID]++
	}

	var total int
	for id, n := range byBatch {
		if n > 7 {
			t.Fatalf("batch %s exceeded its limit: %d", id, n)
		}
		total += n
	}
	// Every claimed transfer belongs to exactly one batch; counting by
	// batch must account for all of them.
	claimed := 0
	for _, tr := range page.Content {
		if tr.Status == domain.StatusProcessing {
			claimed++
		}
	}
	if total != claimed {
		t.Fatalf("claims overlap: %d tagged vs %d claimed", total, claimed)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := seed(t, s)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx store.Tx) error {
		if err := tx.AdjustBalance(ctx, a.ID, decimal.NewFromInt(-30)); err != nil {
			return err
		}
		if err := tx.AdjustBalance(ctx, b.ID, decimal.NewFromInt(30)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	gotA, _ := s.GetAccount(ctx, a.ID)
	gotB, _ := s.GetAccount(ctx, b.ID)
	if !gotA.Amount.Equal(decimal.NewFromInt(100)) || !gotB.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("rollback failed: a=%s b=%s", gotA.Amount, gotB.Amount)
	}
}

func TestListPagination(t *testing.T) {
	ctx := context.Background()
	s := New()
	a, b := seed(t, s)
	for i := 0; i < 7; i++ {
		s.CreateTransfer(ctx, a.ID, b.ID, decimal.NewFromInt(1))
	}

	page, err := s.ListTransfers(ctx, 1, 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 7 {
		t.Fatalf("expected total 7, got %d", page.Total)
	}
	if len(page.Content) != 3 || page.Content[0].ID != 4 {
		t.Fatalf("unexpected page content: %+v", page.Content)
	}

	last, _ := s.ListTransfers(ctx, 2, 3)
	if len(last.Content) != 1 || last.Content[0].ID != 7 {
		t.Fatalf("unexpected last page: %+v", last.Content)
	}

	beyond, _ := s.ListTransfers(ctx, 5, 3)
	if len(beyond.Content) != 0 {
		t.Fatalf("expected empty page, got %d items", len(beyond.Content))
	}
}
