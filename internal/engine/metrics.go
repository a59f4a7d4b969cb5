package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	settlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_transfers_total",
		Help: "Settled transfers by terminal outcome",
	}, []string{"outcome"})

	claimedBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_claimed_batch_size",
		Help:    "Transfers claimed per dispatcher tick",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
	})

	backlogGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "settlement_worker_backlog",
		Help: "Batch jobs submitted but not yet started",
	})

	ticksSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_ticks_skipped_total",
		Help: "Dispatcher ticks skipped by admission control",
	})
)
