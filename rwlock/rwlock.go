package rwlock

import (
	"context"
	"errors"
	"fmt"
)

// ErrLockCancelled is returned when the context of a blocked acquisition is
// done before the lock is granted.
var ErrLockCancelled = errors.New("rwlock: acquisition cancelled")

// A RWLock is a reader/writer mutual exclusion lock with writer preference.
// The lock can be held by an arbitrary number of readers or a single writer.
//
// A goroutine that calls Lock registers a pending write request first; while
// any write request is pending no new reader is admitted. This is to ensure
// that a steady stream of short read sections cannot starve a writer.
//
// RWLock is not reentrant. A goroutine that holds the lock for writing and
// calls Lock again blocks until its context is done. The same holds for RLock
// called by a reader while a writer is pending.
//
// Use New to create a RWLock; the zero value is not usable.
type RWLock struct {
	// токен-мьютекс для полей ниже
	mu chan struct{}
	// закрывается при каждом изменении состояния и заменяется новым
	changed chan struct{}

	readers        int
	writers        int
	pendingWriters int
}

// Stats is a snapshot of the lock bookkeeping.
type Stats struct {
	Readers        int
	Writers        int
	PendingWriters int
}

// New creates *RWLock.
func New() *RWLock {
	l := &RWLock{
		mu:      make(chan struct{}, 1),
		changed: make(chan struct{}),
	}
	l.mu <- struct{}{}
	return l
}

func (l *RWLock) lock()   { <-l.mu }
func (l *RWLock) unlock() { l.mu <- struct{}{} }

// broadcast wakes every goroutine waiting in wait. l.mu must be held.
func (l *RWLock) broadcast() {
	close(l.changed)
	l.changed = make(chan struct{})
}

// wait releases l.mu, blocks until the next broadcast or until ctx is done,
// and reacquires l.mu before returning.
func (l *RWLock) wait(ctx context.Context) error {
	changed := l.changed
	l.unlock()
	select {
	case <-changed:
		l.lock()
		return nil
	case <-ctx.Done():
		l.lock()
		return fmt.Errorf("%w: %w", ErrLockCancelled, ctx.Err())
	}
}

// RLock locks l for reading.
//
// RLock blocks while a writer holds the lock or a write request is pending.
// If ctx is done before the lock is granted, RLock returns an error wrapping
// ErrLockCancelled and the lock state is unchanged.
func (l *RWLock) RLock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrLockCancelled, err)
	}
	l.lock()
	defer l.unlock()
	for l.writers > 0 || l.pendingWriters > 0 {
		if err := l.wait(ctx); err != nil {
			return err
		}
	}
	l.readers++
	return nil
}

// RUnlock undoes a single RLock call;
// it does not affect other simultaneous readers.
// It is a run-time error if l is not locked for reading
// on entry to RUnlock.
func (l *RWLock) RUnlock() {
	l.lock()
	defer l.unlock()
	if l.readers == 0 {
		panic("rwlock: RUnlock of unlocked RWLock")
	}
	l.readers--
	l.broadcast()
}

// Lock locks l for writing.
// If the lock is already locked for reading or writing,
// Lock blocks until the lock is available or ctx is done.
//
// The pending write request registered by Lock is withdrawn on every return
// path, including cancellation.
func (l *RWLock) Lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrLockCancelled, err)
	}
	l.lock()
	defer l.unlock()

	l.pendingWriters++
	for l.readers > 0 || l.writers > 0 {
		if err := l.wait(ctx); err != nil {
			l.pendingWriters--
			// читатели могли ждать только из-за нашей заявки
			l.broadcast()
			return err
		}
	}
	l.pendingWriters--
	l.writers++
	return nil
}

// Unlock unlocks l for writing. It is a run-time error if l is
// not locked for writing on entry to Unlock.
//
// As with sync.RWMutex, a locked RWLock is not associated with a particular
// goroutine.
func (l *RWLock) Unlock() {
	l.lock()
	defer l.unlock()
	if l.writers == 0 {
		panic("rwlock: Unlock of unlocked RWLock")
	}
	l.writers--
	l.broadcast()
}

// WithRead runs fn while holding l for reading. The read lock is released
// when fn returns or panics.
func (l *RWLock) WithRead(ctx context.Context, fn func() error) error {
	if err := l.RLock(ctx); err != nil {
		return err
	}
	defer l.RUnlock()
	return fn()
}

// WithWrite runs fn while holding l for writing. The write lock is released
// when fn returns or panics.
func (l *RWLock) WithWrite(ctx context.Context, fn func() error) error {
	if err := l.Lock(ctx); err != nil {
		return err
	}
	defer l.Unlock()
	return fn()
}

// Stats returns the current bookkeeping of l.
func (l *RWLock) Stats() Stats {
	l.lock()
	defer l.unlock()
	return Stats{
		Readers:        l.readers,
		Writers:        l.writers,
		PendingWriters: l.pendingWriters,
	}
}
