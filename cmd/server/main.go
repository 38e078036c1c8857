package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sidasi/sidasi-backend/internal/config"
	"github.com/sidasi/sidasi-backend/internal/database"
	"github.com/sidasi/sidasi-backend/internal/handler"
	"github.com/sidasi/sidasi-backend/internal/middleware"
	"github.com/sidasi/sidasi-backend/internal/queue"
	"github.com/sidasi/sidasi-backend/internal/repository"
	"github.com/sidasi/sidasi-backend/internal/router"
	"github.com/sidasi/sidasi-backend/internal/service"
	"github.com/sidasi/sidasi-backend/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server stopped", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.DB.Migrate {
		if err := database.Migrate(cfg.DB, logger); err != nil {
			return err
		}
	}
	db, err := database.Open(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}
	cacheCfg := config.LoadCacheConfig()

	store, err := storage.NewLocalStore(cfg.UploadDir)
	if err != nil {
		return err
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		events = service.NewRabbitPublisher(cfg.AMQPURL, logger)
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	bookings := repository.NewBookingRepo(db)
	history := repository.NewHistoryRepo(db)
	coordinator := service.NewBookingCoordinator(db, bookings, history,
		service.LockWaitPolicy(cfg.Retry), events, logger)

	purge := func(ctx context.Context) { middleware.PurgeCache(ctx, cacheCfg, rdb, logger) }
	e := router.New(router.Options{
		Cfg:       cfg,
		Cache:     cacheCfg,
		RateLimit: config.LoadRateLimitConfig(),
		Redis:     rdb,
		Logger:    logger,
	}, router.Handlers{
		Health:       handler.NewHealthHandler(db, rdb),
		Auth:         handler.NewAuthHandler(cfg, users, tokens, store),
		Bookings:     handler.NewBookingHandler(coordinator, store),
		Products:     handler.NewProductHandler(repository.NewProductRepo(db), store, purge),
		Profiles:     handler.NewProfileHandler(repository.NewProfileRepo(db), store),
		History:      handler.NewHistoryHandler(history),
		Transactions: handler.NewTransactionHandler(repository.NewTransactionRepo(db), coordinator),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.RunConsumer {
		c := &queue.Consumer{URL: cfg.AMQPURL, LogPath: cfg.EventLogPath, Logger: logger}
		go func() {
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event consumer stopped", "err", err)
			}
		}()
	}

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "env", cfg.Env, "db_driver", cfg.DB.Driver)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
