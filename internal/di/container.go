package di

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/unclebandit/campaign-autoresponder/internal/archive"
	"github.com/unclebandit/campaign-autoresponder/internal/config"
	"github.com/unclebandit/campaign-autoresponder/internal/controller"
	"github.com/unclebandit/campaign-autoresponder/internal/db"
	"github.com/unclebandit/campaign-autoresponder/internal/handler"
	"github.com/unclebandit/campaign-autoresponder/internal/logging"
	"github.com/unclebandit/campaign-autoresponder/internal/mailer"
	"github.com/unclebandit/campaign-autoresponder/internal/queue"
	"github.com/unclebandit/campaign-autoresponder/internal/repository"
	"github.com/unclebandit/campaign-autoresponder/internal/seed"
	"github.com/unclebandit/campaign-autoresponder/internal/service"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	return BuildContainerWith(config.New)
}

// BuildContainerWith uses newConfig in place of config.New.
func BuildContainerWith(newConfig func() (*config.Config, error)) (*dig.Container, error) {
	container := dig.New()

	providers := []any{
		// Configuration and logging
		newConfig,
		logging.InitLogger,

		// Infrastructure
		NewStore,
		func(cfg *config.Config, logger *zap.Logger) (queue.Queue, error) {
			return queue.New(cfg.GetQueue(), logger)
		},
		func(cfg *config.Config, logger *zap.Logger) (mailer.Provider, error) {
			return mailer.NewProvider(context.Background(), cfg, logger)
		},
		func(cfg *config.Config, logger *zap.Logger) (archive.Archiver, error) {
			return archive.New(cfg.GetArchive(), logger)
		},

		// Services
		func(cfg *config.Config, logger *zap.Logger) *service.TokenGenerator {
			secret := cfg.GetAPI().TokenSecret
			if secret == "" {
				logger.Warn("subscription.token_secret is empty, unsubscribe tokens are predictable")
			}
			return service.NewTokenGenerator(secret)
		},
		service.NewSubscriptionService,
		func(cfg *config.Config) *service.Dispatcher {
			return service.NewDispatcher(cfg.GetServer().PublicURL)
		},
		service.NewComposer,
		service.NewInboxService,
		service.NewAutoresponseWorker,
		func(cfg *config.Config, store repository.Store, q queue.Queue, logger *zap.Logger) *service.OutboxRelay {
			oc := cfg.GetOutbox()
			return service.NewOutboxRelay(store, q, oc.RelayInterval, oc.Grace, oc.BatchSize, logger)
		},

		// HTTP
		func(cfg *config.Config, inbox *service.InboxService, logger *zap.Logger) *handler.InboxHandler {
			return handler.NewInboxHandler(inbox, cfg.GetAPI().Token, cfg.GetServer().MaxBodyBytes, logger)
		},
		func(subs *service.SubscriptionService, logger *zap.Logger) *controller.SubscriptionController {
			return controller.NewSubscriptionController(subs, logger)
		},
		func(cfg *config.Config, inbox *handler.InboxHandler, subs *controller.SubscriptionController, logger *zap.Logger) http.Handler {
			return handler.NewRouter(inbox, subs, cfg.GetMetrics(), logger)
		},
	}

	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return nil, err
		}
	}
	return container, nil
}

// NewStore opens the store selected by database.driver, migrates it when
// asked to and applies database.seed_file if set.
func NewStore(cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	ctx := context.Background()
	dbCfg := cfg.GetDatabase()

	var store repository.Store
	switch dbCfg.Driver {
	case "memory":
		logger.Warn("using the in-memory store, data is lost on exit")
		store = repository.NewMemoryStore()
	case "postgres", "":
		conn, err := db.Open(ctx, dbCfg, logger)
		if err != nil {
			return nil, err
		}
		if dbCfg.AutoMigrate {
			if err := db.Migrate(conn, logger); err != nil {
				conn.Close()
				return nil, err
			}
		}
		store = repository.NewPostgresStore(conn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", dbCfg.Driver)
	}

	if dbCfg.SeedFile != "" {
		f, err := seed.Load(dbCfg.SeedFile)
		if err != nil {
			store.Close()
			return nil, err
		}
		if err := seed.Apply(ctx, store, f, logger); err != nil {
			store.Close()
			return nil, err
		}
	}
	return store, nil
}
