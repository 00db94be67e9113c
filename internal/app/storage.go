package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/memory"
	"github.com/heartmarshall/firstsignal-backend/internal/adapter/postgres"
	pgcooldown "github.com/heartmarshall/firstsignal-backend/internal/adapter/postgres/cooldown"
	pgrecipient "github.com/heartmarshall/firstsignal-backend/internal/adapter/postgres/recipient"
	pgsignal "github.com/heartmarshall/firstsignal-backend/internal/adapter/postgres/signal"
	"github.com/heartmarshall/firstsignal-backend/internal/config"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/internal/secret"
	"github.com/heartmarshall/firstsignal-backend/internal/transport/rest"
)

type signalStore interface {
	Create(ctx context.Context, s domain.Signal) (domain.Signal, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Signal, error)
	GetByPromptRef(ctx context.Context, ref string) (domain.Signal, error)
	Transition(ctx context.Context, id uuid.UUID, from, to domain.SignalState, upd domain.SignalUpdate) (domain.Signal, error)
	SetPromptRef(ctx context.Context, id uuid.UUID, ref string) error
	ClaimDispatch(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ReleaseDispatch(ctx context.Context, id uuid.UUID) error
	SetLedgerTx(ctx context.Context, id uuid.UUID, rawTx []byte) error
	ListByState(ctx context.Context, state domain.SignalState, limit, offset int) ([]domain.Signal, error)
	ListPendingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Signal, error)
	ListUndispatched(ctx context.Context, before time.Time, limit int) ([]domain.Signal, error)
	ListStaleApproved(ctx context.Context, before time.Time, limit int) ([]domain.Signal, error)
	HasInFlight(ctx context.Context, senderKey, recipientHandle string) (bool, error)
	Stats(ctx context.Context) (domain.SignalStats, error)
}

type cooldownStore interface {
	Get(ctx context.Context, senderKey string) (domain.CooldownRecord, error)
	Upsert(ctx context.Context, rec domain.CooldownRecord) error
}

type recipientStore interface {
	Register(ctx context.Context, chatID int64, username *string) error
	FindByHandle(ctx context.Context, handle string) (domain.RegisteredChat, error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockKey(ctx context.Context, key string) error
}

// storage bundles the persistence layer selected by storage.driver.
type storage struct {
	signals    signalStore
	cooldowns  cooldownStore
	recipients recipientStore
	tx         txManager
	checks     map[string]rest.Check
	close      func()
}

func openStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverMemory:
		logger.Warn("using in-memory storage; state is lost on restart")
		return &storage{
			signals:    memory.NewSignalStore(),
			cooldowns:  memory.NewCooldownStore(),
			recipients: memory.NewRecipientStore(),
			tx:         memory.NewTxManager(),
			checks:     map[string]rest.Check{},
			close:      func() {},
		}, nil
	case config.StorageDriverPostgres:
		return openPostgres(ctx, cfg, logger)
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage, error) {
	key, err := config.ParseMessageKey(cfg.Secret.MessageKey)
	if err != nil {
		return nil, fmt.Errorf("message key: %w", err)
	}

	pool, err := postgres.NewPool(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	logger.Info("database connected",
		slog.Int("max_conns", int(cfg.Database.MaxConns)),
		slog.Bool("auto_migrate", cfg.Database.AutoMigrate),
	)

	return &storage{
		signals:    pgsignal.New(pool, secret.NewBox(key)),
		cooldowns:  pgcooldown.New(pool),
		recipients: pgrecipient.New(pool),
		tx:         postgres.NewTxManager(pool),
		checks:     map[string]rest.Check{"database": pool.Ping},
		close:      pool.Close,
	}, nil
}
