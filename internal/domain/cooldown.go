package domain

import "time"

// DefaultCooldownDays is the length of the single-recipient lock applied on commit.
const DefaultCooldownDays = 30

// CooldownRecord is the per-sender single-recipient lock.
// A record with a zero LockExpiresAt has never been locked.
type CooldownRecord struct {
	SenderKey             string
	LockedRecipientHandle *string
	LockExpiresAt         time.Time
	UpdatedAt             time.Time
}

// IsActive reports whether the lock still binds the sender at now.
func (r CooldownRecord) IsActive(now time.Time) bool {
	return r.LockedRecipientHandle != nil && now.Before(r.LockExpiresAt)
}

// Allows reports whether a signal to recipientHandle may be admitted at now.
func (r CooldownRecord) Allows(recipientHandle string, now time.Time) bool {
	if !r.IsActive(now) {
		return true
	}
	return *r.LockedRecipientHandle == recipientHandle
}

// CooldownStatus is the public answer to a cooldown query.
type CooldownStatus struct {
	SenderKey       string
	Locked          bool
	RecipientHandle *string
	ExpiresAt       *time.Time
}

// Status projects the record onto a CooldownStatus at now.
func (r CooldownRecord) Status(now time.Time) CooldownStatus {
	st := CooldownStatus{SenderKey: r.SenderKey}
	if !r.IsActive(now) {
		return st
	}
	exp := r.LockExpiresAt
	handle := *r.LockedRecipientHandle
	st.Locked = true
	st.RecipientHandle = &handle
	st.ExpiresAt = &exp
	return st
}

// RegisteredChat binds a Telegram chat to a recipient handle.
type RegisteredChat struct {
	ChatID    int64
	Username  *string
	CreatedAt time.Time
}
