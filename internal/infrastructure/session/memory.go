package session

import (
	"context"
	"sync"
	"time"

	"EcoCart/internal/ports"
)

type holder struct {
	owner     string
	expiresAt time.Time
}

// MemoryLock keeps run ownership in process memory. Suitable for a single
// instance and for tests.
type MemoryLock struct {
	mu      sync.Mutex
	holders map[string]holder
	now     func() time.Time
}

var _ ports.RunLock = (*MemoryLock)(nil)

// NewMemoryLock creates an empty lock table.
func NewMemoryLock() *MemoryLock {
	return &MemoryLock{holders: make(map[string]holder), now: time.Now}
}

// Acquire takes session for owner. An unexpired holder blocks it unless steal is set.
func (l *MemoryLock) Acquire(_ context.Context, session, owner string, ttl time.Duration, steal bool) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.holders[session]; ok && now.Before(h.expiresAt) && h.owner != owner && !steal {
		return false, nil
	}
	l.holders[session] = holder{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

// Release frees session if owner still holds it.
func (l *MemoryLock) Release(_ context.Context, session, owner string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.holders[session]; ok && h.owner == owner {
		delete(l.holders, session)
	}
	return nil
}

// Holder returns the current owner of session, if any.
func (l *MemoryLock) Holder(session string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holders[session]
	if !ok || !l.now().Before(h.expiresAt) {
		return "", false
	}
	return h.owner, true
}
