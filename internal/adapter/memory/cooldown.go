package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/heartmarshall/firstsignal-backend/internal/domain"
)

// CooldownStore keeps cooldown records in a map.
type CooldownStore struct {
	mu      sync.RWMutex
	records map[string]domain.CooldownRecord
}

// NewCooldownStore creates an empty store.
func NewCooldownStore() *CooldownStore {
	return &CooldownStore{records: make(map[string]domain.CooldownRecord)}
}

// Get returns the lock record of a sender, or domain.ErrNotFound.
func (s *CooldownStore) Get(_ context.Context, senderKey string) (domain.CooldownRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[senderKey]
	if !ok {
		return domain.CooldownRecord{}, fmt.Errorf("cooldown_lock %s: %w", senderKey, domain.ErrNotFound)
	}
	rec.LockedRecipientHandle = copyPtr(rec.LockedRecipientHandle)
	return rec, nil
}

// Upsert stores the lock record, overwriting any prior lock of the sender.
func (s *CooldownStore) Upsert(_ context.Context, rec domain.CooldownRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.LockedRecipientHandle = copyPtr(rec.LockedRecipientHandle)
	s.records[rec.SenderKey] = rec
	return nil
}

// RecipientStore keeps registered chats in a map keyed by lower-cased username.
type RecipientStore struct {
	mu     sync.RWMutex
	byName map[string]domain.RegisteredChat
}

// NewRecipientStore creates an empty store.
func NewRecipientStore() *RecipientStore {
	return &RecipientStore{byName: make(map[string]domain.RegisteredChat)}
}

// Register binds chatID to username; the newest registration of a username wins.
func (s *RecipientStore) Register(_ context.Context, chatID int64, username *string) error {
	if username == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, c := range s.byName {
		if c.ChatID == chatID {
			delete(s.byName, name)
		}
	}
	name := *username
	s.byName[strings.ToLower(name)] = domain.RegisteredChat{ChatID: chatID, Username: &name, CreatedAt: time.Now()}
	return nil
}

// FindByHandle returns the chat registered for a handle.
func (s *RecipientStore) FindByHandle(_ context.Context, handle string) (domain.RegisteredChat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byName[strings.ToLower(handle)]
	if !ok {
		return domain.RegisteredChat{}, fmt.Errorf("registered_chat %s: %w", handle, domain.ErrNotFound)
	}
	return c, nil
}
