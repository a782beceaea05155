package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger is an in-process ledger for unit tests and single-instance
// development. Expiry is checked at read time against an injectable clock.
type MemoryLedger struct {
	mu        sync.RWMutex
	markers   map[string]time.Time // expiry by event id
	retention time.Duration
	now       func() time.Time
}

func NewMemory(retention time.Duration) *MemoryLedger {
	return &MemoryLedger{
		markers:   make(map[string]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// WithClock overrides the time source. Test helper.
func (l *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	l.now = now
	return l
}

func (l *MemoryLedger) Seen(_ context.Context, eventID string) (bool, error) {
	l.mu.RLock()
	expiry, ok := l.markers[eventID]
	l.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if l.now().After(expiry) {
		l.mu.Lock()
		delete(l.markers, eventID)
		l.mu.Unlock()
		return false, nil
	}
	return true, nil
}

func (l *MemoryLedger) Mark(_ context.Context, eventID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers[eventID] = l.now().Add(l.retention)
	return nil
}
