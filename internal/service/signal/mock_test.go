package signal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/memory"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// dispatcherMock is a mock implementation of dispatcher.
type dispatcherMock struct {
	DispatchFunc  func(ctx context.Context, sig domain.Signal) (string, error)
	CorrelateFunc func(ctx context.Context, ev domain.DecisionEvent) (uuid.UUID, error)
	SettleFunc    func(ctx context.Context, ev domain.DecisionEvent, sig domain.Signal, duplicate bool)
	AnnounceFunc  func(ctx context.Context, sig domain.Signal)
	DeliverFunc   func(ctx context.Context, sig domain.Signal) error

	mu    sync.Mutex
	calls struct {
		Dispatch []domain.Signal
		Settle   []struct {
			Sig       domain.Signal
			Duplicate bool
		}
		Announce []domain.Signal
		Deliver  []domain.Signal
	}
}

func (m *dispatcherMock) Dispatch(ctx context.Context, sig domain.Signal) (string, error) {
	if m.DispatchFunc == nil {
		panic("dispatcherMock.DispatchFunc: method is nil but dispatcher.Dispatch was just called")
	}
	m.mu.Lock()
	m.calls.Dispatch = append(m.calls.Dispatch, sig)
	m.mu.Unlock()
	return m.DispatchFunc(ctx, sig)
}

func (m *dispatcherMock) DispatchCalls() []domain.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.Dispatch
}

func (m *dispatcherMock) Correlate(ctx context.Context, ev domain.DecisionEvent) (uuid.UUID, error) {
	if m.CorrelateFunc == nil {
		panic("dispatcherMock.CorrelateFunc: method is nil but dispatcher.Correlate was just called")
	}
	return m.CorrelateFunc(ctx, ev)
}

func (m *dispatcherMock) Settle(ctx context.Context, ev domain.DecisionEvent, sig domain.Signal, duplicate bool) {
	m.mu.Lock()
	m.calls.Settle = append(m.calls.Settle, struct {
		Sig       domain.Signal
		Duplicate bool
	}{sig, duplicate})
	m.mu.Unlock()
	if m.SettleFunc != nil {
		m.SettleFunc(ctx, ev, sig, duplicate)
	}
}

func (m *dispatcherMock) SettleCalls() []struct {
	Sig       domain.Signal
	Duplicate bool
} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.Settle
}

func (m *dispatcherMock) Announce(ctx context.Context, sig domain.Signal) {
	m.mu.Lock()
	m.calls.Announce = append(m.calls.Announce, sig)
	m.mu.Unlock()
	if m.AnnounceFunc != nil {
		m.AnnounceFunc(ctx, sig)
	}
}

func (m *dispatcherMock) AnnounceCalls() []domain.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.Announce
}

func (m *dispatcherMock) Deliver(ctx context.Context, sig domain.Signal) error {
	m.mu.Lock()
	m.calls.Deliver = append(m.calls.Deliver, sig)
	m.mu.Unlock()
	if m.DeliverFunc != nil {
		return m.DeliverFunc(ctx, sig)
	}
	return nil
}

func (m *dispatcherMock) DeliverCalls() []domain.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls.Deliver
}

// newDispatcherMock returns a dispatcher that numbers prompts and correlates
// them through the store, like the chat dispatcher does.
func newDispatcherMock(store *memory.SignalStore) *dispatcherMock {
	var (
		mu   sync.Mutex
		next int
	)
	return &dispatcherMock{
		DispatchFunc: func(ctx context.Context, sig domain.Signal) (string, error) {
			mu.Lock()
			defer mu.Unlock()
			next++
			return fmt.Sprintf("-100:%d", next), nil
		},
		CorrelateFunc: func(ctx context.Context, ev domain.DecisionEvent) (uuid.UUID, error) {
			if ev.SignalID != uuid.Nil {
				return ev.SignalID, nil
			}
			sig, err := store.GetByPromptRef(ctx, ev.PromptRef)
			if err != nil {
				return uuid.Nil, err
			}
			return sig.ID, nil
		},
	}
}

// ledgerMock is a mock implementation of ledgerCommitter.
type ledgerMock struct {
	CommitFunc func(ctx context.Context, sig domain.Signal, record func(context.Context, []byte) error) (string, error)

	mu    sync.Mutex
	calls []domain.Signal
}

func (m *ledgerMock) Commit(ctx context.Context, sig domain.Signal, record func(context.Context, []byte) error) (string, error) {
	if m.CommitFunc == nil {
		panic("ledgerMock.CommitFunc: method is nil but ledgerCommitter.Commit was just called")
	}
	m.mu.Lock()
	m.calls = append(m.calls, sig)
	m.mu.Unlock()
	return m.CommitFunc(ctx, sig, record)
}

func (m *ledgerMock) CommitCalls() []domain.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// paymentGateMock is a mock implementation of paymentGate.
type paymentGateMock struct {
	VerifyFunc func(ctx context.Context, proof, senderKey, recipientHandle string) (domain.PaymentReceipt, error)
	ClaimFunc  func(ctx context.Context, receipt domain.PaymentReceipt) error

	mu       sync.Mutex
	verifies int
	claims   []domain.PaymentReceipt
}

func (m *paymentGateMock) Verify(ctx context.Context, proof, senderKey, recipientHandle string) (domain.PaymentReceipt, error) {
	m.mu.Lock()
	m.verifies++
	m.mu.Unlock()
	if m.VerifyFunc == nil {
		return domain.PaymentReceipt{PaymentID: "pay-" + proof, ExpiresAt: time.Now().Add(time.Hour)}, nil
	}
	return m.VerifyFunc(ctx, proof, senderKey, recipientHandle)
}

func (m *paymentGateMock) Claim(ctx context.Context, receipt domain.PaymentReceipt) error {
	m.mu.Lock()
	m.claims = append(m.claims, receipt)
	m.mu.Unlock()
	if m.ClaimFunc == nil {
		return nil
	}
	return m.ClaimFunc(ctx, receipt)
}

func (m *paymentGateMock) VerifyCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verifies
}

func (m *paymentGateMock) ClaimCalls() []domain.PaymentReceipt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.PaymentReceipt(nil), m.claims...)
}

// promptRefFailingStore loses every prompt reference it is asked to record.
type promptRefFailingStore struct {
	*memory.SignalStore
}

func (promptRefFailingStore) SetPromptRef(context.Context, uuid.UUID, string) error {
	return errors.New("connection reset")
}
