// Package engine implements the transfer settlement core: a periodic
// dispatcher that claims batches of pending transfers, a bounded worker pool
// that settles them, and the startup recovery of work stranded by a crash.
// The engine assumes it is the only live instance against its store.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/settleops/transferd/internal/events"
	"github.com/settleops/transferd/internal/store"
)

type Config struct {
	// DispatchDelay is the fixed delay between dispatcher ticks.
	DispatchDelay time.Duration
	// MaxWorkers is the number of concurrent batch executors.
	MaxWorkers int
	// BatchSize bounds how many transfers one tick may claim.
	BatchSize int
	// MaxQueueSize is the backlog threshold above which a tick claims
	// nothing.
	MaxQueueSize int
}

type Engine struct {
	cfg   Config
	store store.Store
	pub   events.Publisher
	log   *slog.Logger

	pool *Pool
	stop chan struct{}
	wg   sync.WaitGroup
}

func New(cfg Config, st store.Store, pub events.Publisher, logger *slog.Logger) *Engine {
	if pub == nil {
		pub = events.NopPublisher{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		cfg:   cfg,
		store: st,
		pub:   pub,
		log:   logger,
	}
}

// Start runs the recovery procedure and, only if it succeeds, brings up the
// worker pool and the dispatcher. A recovery failure is fatal: dispatching
// over an un-recovered PROCESSING set would strand those transfers forever.
func (e *Engine) Start(ctx context.Context) error {
	reset, err := e.store.ResetInFlight(ctx)
	if err != nil {
		return fmt.Errorf("recover in-flight transfers: %w", err)
	}
	if reset > 0 {
		e.log.Info("recovered stranded transfers", "count", reset)
	}

	e.pool = NewPool(e.cfg.MaxWorkers, e.processBatch)
	e.stop = make(chan struct{})
	e.wg.Add(1)
	go e.dispatchLoop()
	return nil
}

func (e *Engine) dispatchLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.DispatchDelay)
	defer ticker.Stop()

	e.tick(context.Background())
	for {
		select {
		case <-ticker.C:
			e.tick(context.Background())
		case <-e.stop:
			return
		}
	}
}

// Stop halts the dispatcher first, then lets the pool drain its backlog.
func (e *Engine) Stop() {
	close(e.stop)
	e.wg.Wait()
	e.pool.Close()
}
