// Package signal is the lifecycle coordinator. It owns every state change of
// a signal: submission, moderator decisions, the ledger commit and the sweep.
package signal

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/config"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/internal/metrics"
)

// staleCommitMargin is added to the commit timeout before the sweep resumes
// the commit of an APPROVED signal.
const staleCommitMargin = time.Minute

// finalizeTimeout bounds the commit-and-lock transaction after a ledger write.
const finalizeTimeout = 30 * time.Second

type signalStore interface {
	Create(ctx context.Context, s domain.Signal) (domain.Signal, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Signal, error)
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

type cooldownGuard interface {
	CheckAdmission(ctx context.Context, senderKey, recipientHandle string) error
	ApplyLock(ctx context.Context, senderKey, recipientHandle string, days int) (domain.CooldownRecord, error)
}

type paymentGate interface {
	Verify(ctx context.Context, proof, senderKey, recipientHandle string) (domain.PaymentReceipt, error)
	Claim(ctx context.Context, receipt domain.PaymentReceipt) error
}

type dispatcher interface {
	Dispatch(ctx context.Context, sig domain.Signal) (string, error)
	Correlate(ctx context.Context, ev domain.DecisionEvent) (uuid.UUID, error)
	Settle(ctx context.Context, ev domain.DecisionEvent, sig domain.Signal, duplicate bool)
	Announce(ctx context.Context, sig domain.Signal)
	Deliver(ctx context.Context, sig domain.Signal) error
}

type ledgerCommitter interface {
	Commit(ctx context.Context, sig domain.Signal, record func(ctx context.Context, rawTx []byte) error) (string, error)
}

type senderLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type txManager interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	LockKey(ctx context.Context, key string) error
}

// Service coordinates the signal lifecycle.
type Service struct {
	store      signalStore
	cooldown   cooldownGuard
	payment    paymentGate
	dispatcher dispatcher
	ledger     ledgerCommitter
	locker     senderLocker
	tx         txManager
	metrics    *metrics.Metrics
	cfg        config.SignalConfig
	now        func() time.Time
	log        *slog.Logger

	// commits tracks ledger commits running in the background; committing
	// holds the ids they work on.
	commits    sync.WaitGroup
	committing sync.Map
}

// NewService creates a new Signal service. m may be nil.
func NewService(
	log *slog.Logger,
	store signalStore,
	cooldown cooldownGuard,
	payment paymentGate,
	dispatcher dispatcher,
	ledger ledgerCommitter,
	locker senderLocker,
	tx txManager,
	m *metrics.Metrics,
	cfg config.SignalConfig,
) *Service {
	return &Service{
		store:      store,
		cooldown:   cooldown,
		payment:    payment,
		dispatcher: dispatcher,
		ledger:     ledger,
		locker:     locker,
		tx:         tx,
		metrics:    m,
		cfg:        cfg,
		now:        time.Now,
		log:        log.With("service", "signal"),
	}
}

// Wait blocks until background ledger commits finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.commits.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// transition applies a CAS change and records it.
func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to domain.SignalState, upd domain.SignalUpdate) (domain.Signal, error) {
	sig, err := s.store.Transition(ctx, id, from, to, upd)
	if err != nil {
		return domain.Signal{}, err
	}
	s.metrics.Transition(from.String(), to.String())
	s.log.InfoContext(ctx, "signal transitioned",
		slog.String("signal_id", id.String()),
		slog.String("from", from.String()),
		slog.String("to", to.String()),
	)
	return sig, nil
}

func ptr[T any](v T) *T { return &v }
