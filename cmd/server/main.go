// cmd/server/main.go
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
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

func run(
	cfg *config.Config,
	logger *zap.Logger,
	router http.Handler,
	store repository.Store,
	q queue.Queue,
	worker *service.AutoresponseWorker,
	relay *service.OutboxRelay,
) error {
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With the in-memory queue there is no separate worker process. Other
	// drivers only publish from here; cmd/worker consumes.
	if driver := cfg.GetQueue().Driver; driver == "memory" || driver == "" {
		if err := worker.Subscribe(q); err != nil {
			return err
		}
		logger.Info("running autoresponse worker in-process")
		go func() {
			if err := q.Run(ctx); err != nil {
				logger.Error("queue stopped", zap.Error(err))
				stop()
			}
		}()
	}
	go relay.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.GetServer().ListenAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down...")
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
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
