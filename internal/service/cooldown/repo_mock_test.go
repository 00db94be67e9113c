package cooldown

import (
	"context"
	"sync"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// cooldownRepoMock is a mock implementation of cooldownRepo.
type cooldownRepoMock struct {
	GetFunc    func(ctx context.Context, senderKey string) (domain.CooldownRecord, error)
	UpsertFunc func(ctx context.Context, rec domain.CooldownRecord) error

	calls struct {
		Get    []struct{ SenderKey string }
		Upsert []struct{ Rec domain.CooldownRecord }
	}
	lockGet    sync.RWMutex
	lockUpsert sync.RWMutex
}

func (m *cooldownRepoMock) Get(ctx context.Context, senderKey string) (domain.CooldownRecord, error) {
	if m.GetFunc == nil {
		panic("cooldownRepoMock.GetFunc: method is nil but cooldownRepo.Get was just called")
	}
	m.lockGet.Lock()
	m.calls.Get = append(m.calls.Get, struct{ SenderKey string }{senderKey})
	m.lockGet.Unlock()
	return m.GetFunc(ctx, senderKey)
}

func (m *cooldownRepoMock) GetCalls() []struct{ SenderKey string } {
	m.lockGet.RLock()
	defer m.lockGet.RUnlock()
	return m.calls.Get
}

func (m *cooldownRepoMock) Upsert(ctx context.Context, rec domain.CooldownRecord) error {
	if m.UpsertFunc == nil {
		panic("cooldownRepoMock.UpsertFunc: method is nil but cooldownRepo.Upsert was just called")
	}
	m.lockUpsert.Lock()
	m.calls.Upsert = append(m.calls.Upsert, struct{ Rec domain.CooldownRecord }{rec})
	m.lockUpsert.Unlock()
	return m.UpsertFunc(ctx, rec)
}

func (m *cooldownRepoMock) UpsertCalls() []struct{ Rec domain.CooldownRecord } {
	m.lockUpsert.RLock()
	defer m.lockUpsert.RUnlock()
	return m.calls.Upsert
}
