package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/settleops/transferd/internal/domain"
	"github.com/settleops/transferd/internal/events"
	"github.com/settleops/transferd/internal/store/memory"
)

// recordingPublisher captures settlement events for assertions.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.TransferSettled
}

func (p *recordingPublisher) Publish(_ context.Context, e events.TransferSettled) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) all() []events.TransferSettled {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.TransferSettled{}, p.events...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestStartRecoversStrandedTransfers(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := seedAccount(t, st, "a", 100)
	b := seedAccount(t, st, "b", 0)
	tr := seedTransfer(t, st, a.ID, b.ID, 40)

	// Simulate a crash after claim-commit: the transfer is stuck in
	// PROCESSING with no worker ever completing it.
	if _, err := st.ClaimPending(ctx, "crashed-batch", 10, time.Now().UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	eng := New(Config{
		DispatchDelay: time.Hour,
		MaxWorkers:    1,
		BatchSize:     10,
		MaxQueueSize:  10,
	}, st, nil, nil)
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	// The immediate first tick re-claims the recovered transfer; wait for
	// it to settle.
	waitFor(t, 2*time.Second, func() bool {
		got, _ := st.GetTransfer(ctx, tr.ID)
		return got.Status.Terminal()
	})

	got, _ := st.GetTransfer(ctx, tr.ID)
	if got.Status != domain.StatusCompleted {
		t.Fatalf("expected recovered transfer to complete, got %s", got.Status)
	}
	if got.ProcessingID == nil || *got.ProcessingID == "crashed-batch" {
		t.Fatalf("expected a fresh processing id, got %v", got.ProcessingID)
	}
}

func TestRecoveryIdempotent(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := seedAccount(t, st, "a", 100)
	b := seedAccount(t, st, "b", 0)
	tr := seedTransfer(t, st, a.ID, b.ID, 40)

	if _, err := st.ClaimPending(ctx, "crashed-batch", 10, time.Now().UTC()); err != nil {
		t.Fatalf("claim: %v", err)
	}

	first, err := st.ResetInFlight(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if first != 1 {
		t.Fatalf("expected 1 reset transfer, got %d", first)
	}

	second, err := st.ResetInFlight(ctx)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if second != 0 {
		t.Fatalf("second run must be a no-op, reset %d", second)
	}

	got, _ := st.GetTransfer(ctx, tr.ID)
	if got.Status != domain.StatusPending {
		t.Fatalf("expected PENDING, got %s", got.Status)
	}
	if got.ProcessingID == nil || *got.ProcessingID != "crashed-batch" {
		t.Fatal("processing id must be retained as historical trace")
	}
}

func TestEngineSettlesEndToEnd(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := seedAccount(t, st, "a", 1000)
	b := seedAccount(t, st, "b", 0)

	const transfers = 30
	for i := 0; i < transfers; i++ {
		seedTransfer(t, st, a.ID, b.ID, 10)
	}

	pub := &recordingPublisher{}
	eng := New(Config{
		DispatchDelay: 10 * time.Millisecond,
		MaxWorkers:    3,
		BatchSize:     7,
		MaxQueueSize:  100,
	}, st, pub, nil)
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, 5*time.Second, func() bool {
		page, err := st.ListTransfers(ctx, 0, transfers)
		if err != nil {
			return false
		}
		for _, tr := range page.Content {
			if !tr.Status.Terminal() {
				return false
			}
		}
		return true
	})
	eng.Stop()

	page, _ := st.ListTransfers(ctx, 0, transfers)
	for _, tr := range page.Content {
		if tr.Status != domain.StatusCompleted {
			t.Fatalf("transfer %d: expected COMPLETED, got %s", tr.ID, tr.Status)
		}
		if tr.ProcessingID == nil || tr.ProcessingStart == nil || tr.ProcessingEnd == nil {
			t.Fatalf("transfer %d: processing trace incomplete", tr.ID)
		}
	}

	sender, _ := st.GetAccount(ctx, a.ID)
	receiver, _ := st.GetAccount(ctx, b.ID)
	if !sender.Amount.Equal(decimal.NewFromInt(700)) {
		t.Fatalf("expected sender balance 700, got %s", sender.Amount)
	}
	if !receiver.Amount.Equal(decimal.NewFromInt(300)) {
		t.Fatalf("expected receiver balance 300, got %s", receiver.Amount)
	}

	settled := pub.all()
	if len(settled) != transfers {
		t.Fatalf("expected %d settlement events, got %d", transfers, len(settled))
	}
	seen := map[int64]bool{}
	for _, e := range settled {
		if seen[e.TransferID] {
			t.Fatalf("transfer %d settled twice", e.TransferID)
		}
		seen[e.TransferID] = true
		if e.Status != string(domain.StatusCompleted) {
			t.Fatalf("transfer %d: unexpected event status %s", e.TransferID, e.Status)
		}
	}
}

func TestTerminalTransfersNeverRevisited(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	a := seedAccount(t, st, "a", 5)
	b := seedAccount(t, st, "b", 0)
	tr := seedTransfer(t, st, a.ID, b.ID, 40)

	eng := newTestEngine(st)
	batch := claimAll(t, st, "batch-1")
	if got := eng.settle(ctx, batch[0]); got != domain.StatusRejected {
		t.Fatalf("expected REJECTED, got %s", got)
	}

	// A later claim cycle must not pick the terminal transfer up again.
	if n, err := st.ClaimPending(ctx, "batch-2", 10, time.Now().UTC()); err != nil || n != 0 {
		t.Fatalf("expected no claimable transfers, got n=%d err=%v", n, err)
	}
	got, _ := st.GetTransfer(ctx, tr.ID)
	if got.Status != domain.StatusRejected || *got.ProcessingID != "batch-1" {
		t.Fatalf("terminal transfer mutated: %+v", got)
	}
}
