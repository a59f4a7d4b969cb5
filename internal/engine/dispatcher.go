package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// tick performs one dispatch cycle: admission check, atomic claim, submit.
// A failed claim is logged and abandoned; the pending rows are untouched and
// the next tick retries against them.
func (e *Engine) tick(ctx context.Context) {
	if backlog := e.pool.QueueSize(); backlog > e.cfg.MaxQueueSize {
		ticksSkipped.Inc()
		e.log.Debug("backlog above limit, skipping claim",
			"backlog", backlog, "max_queue_size", e.cfg.MaxQueueSize)
		return
	}

	processingID := uuid.NewString()
	claimed, err := e.store.ClaimPending(ctx, processingID, e.cfg.BatchSize, time.Now().UTC())
	if err != nil {
		e.log.Error("claiming pending transfers failed", "error", err)
		return
	}
	if claimed == 0 {
		return
	}

	claimedBatchSize.Observe(float64(claimed))
	e.pool.Submit(processingID)
	backlogGauge.Set(float64(e.pool.QueueSize()))
	e.log.Debug("claimed batch", "processing_id", processingID, "transfers", claimed)
}

// processBatch settles every transfer still tagged with the processing id.
// Transfers are settled sequentially; one failure never touches its siblings.
func (e *Engine) processBatch(processingID string) {
	ctx := context.Background()
	backlogGauge.Set(float64(e.pool.QueueSize()))

	transfers, err := e.store.TransfersInBatch(ctx, processingID)
	if err != nil {
		e.log.Error("fetching batch failed", "processing_id", processingID, "error", err)
		return
	}
	e.log.Debug("processing batch", "processing_id", processingID, "transfers", len(transfers))

	for _, t := range transfers {
		status := e.settle(ctx, t)
		settlementsTotal.WithLabelValues(string(status)).Inc()
		e.publishSettled(ctx, t, status)
	}
}
