package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/settleops/transferd/internal/api"
	"github.com/settleops/transferd/internal/config"
	"github.com/settleops/transferd/internal/engine"
	"github.com/settleops/transferd/internal/events"
	eventskafka "github.com/settleops/transferd/internal/events/kafka"
	"github.com/settleops/transferd/internal/logging"
	"github.com/settleops/transferd/internal/store"
	"github.com/settleops/transferd/internal/store/memory"
	"github.com/settleops/transferd/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()

	var st store.Store
	switch cfg.StoreBackend {
	case "memory":
		st = memory.New()
		logger.Warn("using in-memory store, data will not survive a restart")
	default:
		pg, err := postgres.Connect(ctx, cfg.DBSource)
		if err != nil {
			logger.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		st = pg
	}

	var pub events.Publisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := eventskafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		pub = kp
		logger.Info("publishing settlement events", "brokers", cfg.KafkaBrokers)
	}

	eng := engine.New(engine.Config{
		DispatchDelay: cfg.DispatchDelay,
		MaxWorkers:    cfg.MaxWorkers,
		BatchSize:     cfg.BatchSize,
		MaxQueueSize:  cfg.MaxQueueSize,
	}, st, pub, logger)

	// Recovery runs inside Start; a failure here must keep the dispatcher
	// down.
	if err := eng.Start(ctx); err != nil {
		logger.Error("engine startup failed", "error", err)
		os.Exit(1)
	}
	defer eng.Stop()

	handler := api.NewHandler(st, logger)
	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
