// Package lock serialises mutations of a single booking and its payment.
package lock

import (
	"context"
	"sync"
)

// Locker acquires a named mutual-exclusion lock.  The returned unlock func
// is safe to call more than once.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// BookingKey is the lock name covering a booking and its payment.
func BookingKey(bookingID string) string { return "booking:" + bookingID }

// SessionKey is the lock name covering a session chat.
func SessionKey(sessionID string) string { return "session:" + sessionID }

type entry struct {
	sem  chan struct{}
	refs int
}

// Local is an in-process keyed mutex.  Entries are dropped when the last
// waiter leaves, so the map only holds keys in use.
type Local struct {
	mu   sync.Mutex
	keys map[string]*entry
}

var (
	_ Locker = (*Local)(nil)
	_ Locker = (*Redis)(nil)
)

func NewLocal() *Local { return &Local{keys: make(map[string]*entry)} }

func (l *Local) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.keys[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.keys[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.release(key, e)
		})
	}, nil
}

func (l *Local) release(key string, e *entry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.keys, key)
	}
	l.mu.Unlock()
}

// held returns the number of keys with at least one holder or waiter.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}
