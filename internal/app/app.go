package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/heartmarshall/firstsignal-backend/internal/config"
	"github.com/heartmarshall/firstsignal-backend/internal/transport/bot"
	"github.com/heartmarshall/firstsignal-backend/internal/transport/middleware"
	"github.com/heartmarshall/firstsignal-backend/internal/transport/rest"
)

const rateLimitCleanupInterval = time.Minute

// Run is the application entry point. It loads configuration, wires the
// services and serves HTTP, the Telegram update loop and the sweeper until
// ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := NewLogger(cfg.Log)

	logger.Info("starting application",
		slog.String("version", BuildVersion()),
		slog.String("log_level", cfg.Log.Level),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("telegram_mode", cfg.Telegram.Mode),
	)

	c, err := newContainer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	handler := bot.NewHandler(c.signals, c.dispatch, logger)

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit, rateLimitCleanupInterval)
		defer limiter.Stop()
	}

	deps := rest.RouterDeps{
		Signals:     rest.NewSignalHandler(c.signals, c.cooldown, logger),
		Admin:       rest.NewAdminHandler(c.signals, logger),
		Health:      rest.NewHealthHandler(BuildVersion(), c.storage.checks),
		Metrics:     c.metrics.Handler(),
		AdminToken:  cfg.Admin.Token,
		RateLimiter: limiter,
		Middlewares: []middleware.Middleware{
			middleware.Recovery(logger),
			middleware.RequestID(),
			middleware.Logger(logger),
			middleware.Metrics(c.metrics),
			middleware.CORS(cfg.CORS),
		},
	}
	if cfg.Telegram.Mode == config.TelegramModeWebhook {
		deps.Webhook = rest.NewWebhookHandler(cfg.Telegram.WebhookSecret, handler, logger)
	}

	srv := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:      rest.NewRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if cfg.Telegram.Mode == config.TelegramModePoll {
		listener := bot.NewListener(c.bot, handler, cfg.Signal.DecisionWorkers, logger)
		g.Go(func() error { return listener.Run(gctx) })
	}

	sweeper := NewSweeper(c.signals, cfg.Signal.SweepInterval, logger)
	g.Go(func() error { return sweeper.Run(gctx) })

	g.Go(func() error {
		<-gctx.Done()
		return shutdown(srv, c, cfg.Server.ShutdownTimeout, logger)
	})

	if err := g.Wait(); err != nil {
		logger.Error("application stopped with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("application stopped")
	return nil
}

// shutdown drains HTTP requests, then waits for background ledger commits.
func shutdown(srv *http.Server, c *container, timeout time.Duration, logger *slog.Logger) error {
	logger.Info("shutting down", slog.Duration("timeout", timeout))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := c.signals.Wait(ctx); err != nil {
		logger.Warn("ledger commits still running at shutdown; the sweep will settle them",
			slog.String("error", err.Error()),
		)
	}
	return nil
}
