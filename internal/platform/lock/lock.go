// Package lock provides mutual exclusion for recognition runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrLocked indicates another holder owns the key.
var ErrLocked = errors.New("platform/lock: key already held")

// RecognitionKey builds the lock key for one contract of one tenant.
func RecognitionKey(tenantID, contractID string) string {
	return fmt.Sprintf("revrec:tenant:%s:contract:%s:lock", tenantID, contractID)
}

// Local is an in-process lock table for single-process deployments and tests.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal constructs an empty lock table.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Acquire takes key or fails fast with ErrLocked.
func (l *Local) Acquire(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrLocked
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

// Held reports whether key is currently taken.
func (l *Local) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}
