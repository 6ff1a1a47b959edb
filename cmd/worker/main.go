// cmd/worker/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/config"
	"github.com/unclebandit/campaign-autoresponder/internal/di"
	"github.com/unclebandit/campaign-autoresponder/internal/queue"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
	"github.com/unclebandit/campaign-autoresponder/internal/service"
)

func main() {
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	if err := container.Invoke(run); err != nil {
		fmt.Printf("Worker error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	cfg *config.Config,
	logger *zap.Logger,
	store repository.Store,
	q queue.Queue,
	worker *service.AutoresponseWorker,
) error {
	defer logger.Sync()

	if driver := cfg.GetQueue().Driver; driver == "memory" || driver == "" {
		return fmt.Errorf("queue.driver %q cannot be shared between processes, use amqp or run the server alone", driver)
	}
	if err := worker.Subscribe(q); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsSrv *http.Server
	if mc := cfg.GetMetrics(); mc.Enabled {
		mux := http.NewServeMux()
		mux.Handle(mc.Path, promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:              cfg.GetWorker().MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listening", zap.String("address", metricsSrv.Addr))
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	logger.Info("worker running, waiting for jobs...", zap.String("queue", cfg.GetQueue().Name))
	runErr := q.Run(ctx)
	if runErr != nil {
		logger.Error("queue consumer stopped", zap.Error(runErr))
	}

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if err := q.Close(); err != nil {
		logger.Error("failed to close queue", zap.Error(err))
	}
	if err := store.Close(); err != nil {
		logger.Error("failed to close store", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return runErr
}
