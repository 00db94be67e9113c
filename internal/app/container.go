package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/memory"
	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/ledger"
	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/payment"
	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/adapter/redis"
	"github.com/heartmarshall/firstsignal-backend/internal/config"
	"github.com/heartmarshall/firstsignal-backend/internal/metrics"
	"github.com/heartmarshall/firstsignal-backend/internal/service/cooldown"
	"github.com/heartmarshall/firstsignal-backend/internal/service/dispatch"
	"github.com/heartmarshall/firstsignal-backend/internal/service/signal"
)

type senderLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type replayGuard interface {
	Claim(ctx context.Context, id string, expiresAt time.Time) (bool, error)
}

// container holds the wired services shared by the server and the sweep command.
type container struct {
	storage  *storage
	bot      *telegram.Client
	metrics  *metrics.Metrics
	cooldown *cooldown.Service
	dispatch *dispatch.Service
	signals  *signal.Service
	closers  []func()
}

func (c *container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
}

func newContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *container, err error) {
	c := &container{metrics: metrics.New()}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	c.storage, err = openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, c.storage.close)

	var (
		locker senderLocker = memory.NewKeyedLocker()
		replay replayGuard  = memory.NewReplayGuard()
	)
	if cfg.Redis.Addr != "" {
		rdb, err := redis.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		c.closers = append(c.closers, func() { _ = rdb.Close() })
		c.storage.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }

		locker = redis.NewLocker(rdb, cfg.Redis.KeyPrefix, cfg.Redis.LockTTL, logger)
		replay = redis.NewReplayGuard(rdb, cfg.Redis.KeyPrefix)
		logger.Info("redis connected", slog.String("addr", cfg.Redis.Addr))
	} else {
		logger.Warn("redis disabled; sender locks and payment replay guard are process-local")
	}

	writer, eth, err := ledger.Dial(ctx, cfg.Ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("dial ledger: %w", err)
	}
	c.closers = append(c.closers, eth.Close)
	c.storage.checks["ledger"] = func(ctx context.Context) error {
		_, err := writer.Last(ctx)
		return err
	}

	c.bot, err = telegram.NewClient(cfg.Telegram.APIBaseURL, cfg.Telegram.BotToken,
		cfg.Telegram.RequestTimeout, cfg.Telegram.PollTimeout, logger)
	if err != nil {
		return nil, fmt.Errorf("telegram client: %w", err)
	}

	c.cooldown = cooldown.NewService(logger, c.storage.cooldowns, cfg.Signal.CooldownDays)
	c.dispatch = dispatch.NewService(logger, c.bot, c.storage.recipients, c.storage.signals, dispatch.Config{
		ModeratorChatID: cfg.Telegram.ModeratorChatID,
		ExplorerTxURL:   cfg.Ledger.ExplorerTxURL,
	})
	c.signals = signal.NewService(
		logger,
		c.storage.signals,
		c.cooldown,
		payment.NewGate(cfg.Payment, replay, logger),
		c.dispatch,
		writer,
		locker,
		c.storage.tx,
		c.metrics,
		cfg.Signal,
	)

	logger.Info("ledger writer ready",
		slog.String("address", writer.Address().Hex()),
		slog.String("contract", cfg.Ledger.ContractAddress),
	)
	return c, nil
}
