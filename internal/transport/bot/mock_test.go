package bot

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/heartmarshall/firstsignal-backend/internal/adapter/provider/telegram"
	"github.com/heartmarshall/firstsignal-backend/internal/domain"
	"github.com/heartmarshall/firstsignal-backend/internal/service/signal"
)

type decisionHandlerMock struct {
	OnDecisionFunc func(ctx context.Context, ev domain.DecisionEvent) (signal.DecisionResult, error)

	mu    sync.Mutex
	calls []domain.DecisionEvent
}

func (m *decisionHandlerMock) OnDecision(ctx context.Context, ev domain.DecisionEvent) (signal.DecisionResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ev)
	m.mu.Unlock()
	if m.OnDecisionFunc == nil {
		return signal.DecisionResult{SignalID: ev.SignalID, State: ev.Decision.TargetState()}, nil
	}
	return m.OnDecisionFunc(ctx, ev)
}

func (m *decisionHandlerMock) OnDecisionCalls() []domain.DecisionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DecisionEvent(nil), m.calls...)
}

type chatServiceMock struct {
	ModeratorChatID       int64
	GreetFunc             func(ctx context.Context, chatID int64) error
	RegisterRecipientFunc func(ctx context.Context, chatID int64, username, callbackID string) error

	mu         sync.Mutex
	greeted    []int64
	registered []string
	dismissed  []string
}

func (m *chatServiceMock) IsModeratorChat(chatID int64) bool { return chatID == m.ModeratorChatID }

func (m *chatServiceMock) Greet(ctx context.Context, chatID int64) error {
	m.mu.Lock()
	m.greeted = append(m.greeted, chatID)
	m.mu.Unlock()
	if m.GreetFunc == nil {
		return nil
	}
	return m.GreetFunc(ctx, chatID)
}

func (m *chatServiceMock) RegisterRecipient(ctx context.Context, chatID int64, username, callbackID string) error {
	m.mu.Lock()
	m.registered = append(m.registered, username)
	m.mu.Unlock()
	if m.RegisterRecipientFunc == nil {
		return nil
	}
	return m.RegisterRecipientFunc(ctx, chatID, username, callbackID)
}

func (m *chatServiceMock) Dismiss(_ context.Context, _ string, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismissed = append(m.dismissed, text)
}

func (m *chatServiceMock) Dismissed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.dismissed...)
}

// updateSourceMock queues scripted updates and records the polling lifetime.
type updateSourceMock struct {
	ch      chan telegram.Update
	started atomic.Bool
	stopped atomic.Bool
}

func newUpdateSourceMock(updates ...telegram.Update) *updateSourceMock {
	m := &updateSourceMock{ch: make(chan telegram.Update, len(updates))}
	for _, upd := range updates {
		m.ch <- upd
	}
	return m
}

func (m *updateSourceMock) Start(ctx context.Context) {
	m.started.Store(true)
	<-ctx.Done()
	m.stopped.Store(true)
}

func (m *updateSourceMock) Updates() <-chan telegram.Update { return m.ch }

type updateHandlerFunc func(ctx context.Context, upd telegram.Update) error

func (f updateHandlerFunc) HandleUpdate(ctx context.Context, upd telegram.Update) error {
	return f(ctx, upd)
}
