package rest

import (
	"context"
	"sync"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/internal/service/signal"
)

type signalServiceMock struct {
	SubmitFunc func(ctx context.Context, input signal.SubmitInput) (signal.SubmitResult, error)
	GetFunc    func(ctx context.Context, input signal.GetInput) (domain.Signal, error)
	ListFunc   func(ctx context.Context, input signal.ListInput) ([]domain.Signal, error)
	StatsFunc  func(ctx context.Context) (domain.SignalStats, error)

	mu          sync.Mutex
	submitCalls []signal.SubmitInput
	listCalls   []signal.ListInput
}

func (m *signalServiceMock) Submit(ctx context.Context, input signal.SubmitInput) (signal.SubmitResult, error) {
	m.mu.Lock()
	m.submitCalls = append(m.submitCalls, input)
	m.mu.Unlock()
	if m.SubmitFunc == nil {
		panic("signalServiceMock.SubmitFunc: method is nil but Submit was just called")
	}
	return m.SubmitFunc(ctx, input)
}

func (m *signalServiceMock) SubmitCalls() []signal.SubmitInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]signal.SubmitInput(nil), m.submitCalls...)
}

func (m *signalServiceMock) Get(ctx context.Context, input signal.GetInput) (domain.Signal, error) {
	if m.GetFunc == nil {
		panic("signalServiceMock.GetFunc: method is nil but Get was just called")
	}
	return m.GetFunc(ctx, input)
}

func (m *signalServiceMock) List(ctx context.Context, input signal.ListInput) ([]domain.Signal, error) {
	m.mu.Lock()
	m.listCalls = append(m.listCalls, input)
	m.mu.Unlock()
	if m.ListFunc == nil {
		panic("signalServiceMock.ListFunc: method is nil but List was just called")
	}
	return m.ListFunc(ctx, input)
}

func (m *signalServiceMock) ListCalls() []signal.ListInput {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]signal.ListInput(nil), m.listCalls...)
}

func (m *signalServiceMock) Stats(ctx context.Context) (domain.SignalStats, error) {
	if m.StatsFunc == nil {
		panic("signalServiceMock.StatsFunc: method is nil but Stats was just called")
	}
	return m.StatsFunc(ctx)
}

type cooldownServiceMock struct {
	StatusFunc func(ctx context.Context, senderKey string) (domain.CooldownStatus, error)
}

func (m *cooldownServiceMock) Status(ctx context.Context, senderKey string) (domain.CooldownStatus, error) {
	if m.StatusFunc == nil {
		panic("cooldownServiceMock.StatusFunc: method is nil but Status was just called")
	}
	return m.StatusFunc(ctx, senderKey)
}

type updateHandlerMock struct {
	HandleUpdateFunc func(ctx context.Context, upd telegram.Update) error

	mu    sync.Mutex
	calls []telegram.Update
}

func (m *updateHandlerMock) HandleUpdate(ctx context.Context, upd telegram.Update) error {
	m.mu.Lock()
	m.calls = append(m.calls, upd)
	m.mu.Unlock()
	if m.HandleUpdateFunc == nil {
		return nil
	}
	return m.HandleUpdateFunc(ctx, upd)
}

func (m *updateHandlerMock) HandleUpdateCalls() []telegram.Update {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]telegram.Update(nil), m.calls...)
}
