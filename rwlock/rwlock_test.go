package rwlock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRWLock_ConcurrentReaders(t *testing.T) {
	const n = 16
	l := New()
	ctx := context.Background()

	var acquired sync.WaitGroup
	acquired.Add(n)
	release := make(chan struct{})
	var done sync.WaitGroup
	done.Add(n)

	for i := 0; i < n; i++ {
		go func() {
			defer done.Done()
			if err := l.RLock(ctx); err != nil {
				t.Error(err)
				acquired.Done()
				return
			}
			acquired.Done()
			<-release
			l.RUnlock()
		}()
	}

	allIn := make(chan struct{})
	go func() {
		acquired.Wait()
		close(allIn)
	}()

	select {
	case <-allIn:
	case <-time.After(5 * time.Second):
		t.Fatal("readers blocked each other")
	}
	require.Equal(t, Stats{Readers: n}, l.Stats())

	close(release)
	done.Wait()
	require.Equal(t, Stats{}, l.Stats())
}

func TestRWLock_MutualExclusion(t *testing.T) {
	const (
		writers    = 8
		readers    = 8
		iterations = 200
	)
	l := New()
	ctx := context.Background()

	var activeWriters, activeReaders, maxWriters int32
	var overlap atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if !assert.NoError(t, l.Lock(ctx)) {
					return
				}
				w := atomic.AddInt32(&activeWriters, 1)
				for {
					cur := atomic.LoadInt32(&maxWriters)
					if w <= cur || atomic.CompareAndSwapInt32(&maxWriters, cur, w) {
						break
					}
				}
				if atomic.LoadInt32(&activeReaders) != 0 {
					overlap.Store(true)
				}
				atomic.AddInt32(&activeWriters, -1)
				l.Unlock()
			}
		}()
	}
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				if !assert.NoError(t, l.RLock(ctx)) {
					return
				}
				atomic.AddInt32(&activeReaders, 1)
				if atomic.LoadInt32(&activeWriters) != 0 {
					overlap.Store(true)
				}
				atomic.AddInt32(&activeReaders, -1)
				l.RUnlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxWriters)
	assert.False(t, overlap.Load(), "reader and writer held the lock together")
	assert.Equal(t, Stats{}, l.Stats())
}

func TestRWLock_WriterPreference(t *testing.T) {
	l := New()
	ctx := context.Background()

	require.NoError(t, l.RLock(ctx))

	writerIn := make(chan error, 1)
	go func() { writerIn <- l.Lock(ctx) }()
	require.Eventually(t, func() bool {
		return l.Stats().PendingWriters == 1
	}, time.Second, time.Millisecond)

	// новый читатель не должен пройти, пока писатель ждёт
	rctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := l.RLock(rctx)
	require.ErrorIs(t, err, ErrLockCancelled)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	l.RUnlock()
	select {
	case err := <-writerIn:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("writer was not admitted after the last reader left")
	}
	l.Unlock()
	require.Equal(t, Stats{}, l.Stats())
}

func TestRWLock_NoWriterStarvation(t *testing.T) {
	const readers = 8
	l := New()
	ctx, stop := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	var cycles atomic.Int64
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if err := l.RLock(ctx); err != nil {
					return
				}
				time.Sleep(100 * time.Microsecond)
				l.RUnlock()
				cycles.Add(1)
			}
		}()
	}

	require.Eventually(t, func() bool { return cycles.Load() > 100 }, 5*time.Second, time.Millisecond)

	before := cycles.Load()
	wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Lock(wctx), "writer starved by readers")
	admittedAfter := cycles.Load() - before
	l.Unlock()

	stop()
	wg.Wait()

	// каждый читатель успевает завершить не больше пары уже начатых секций
	assert.LessOrEqual(t, admittedAfter, int64(2*readers))
}

func TestRWLock_CancelledLockDoesNotLeak(t *testing.T) {
	l := New()
	ctx := context.Background()

	require.NoError(t, l.RLock(ctx))
	for i := 0; i < 50; i++ {
		wctx, cancel := context.WithCancel(ctx)
		errCh := make(chan error, 1)
		go func() { errCh <- l.Lock(wctx) }()

		require.Eventually(t, func() bool {
			return l.Stats().PendingWriters == 1
		}, time.Second, time.Millisecond)
		cancel()

		err := <-errCh
		require.ErrorIs(t, err, ErrLockCancelled)
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 0, l.Stats().PendingWriters)
	}
	l.RUnlock()

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, l.RLock(rctx))
	l.RUnlock()
	require.Equal(t, Stats{}, l.Stats())
}

func TestRWLock_CancelWakesBlockedReaders(t *testing.T) {
	l := New()
	ctx := context.Background()
	require.NoError(t, l.RLock(ctx))

	wctx, cancelWriter := context.WithCancel(ctx)
	writerErr := make(chan error, 1)
	go func() { writerErr <- l.Lock(wctx) }()
	require.Eventually(t, func() bool {
		return l.Stats().PendingWriters == 1
	}, time.Second, time.Millisecond)

	readerIn := make(chan error, 1)
	go func() {
		err := l.RLock(ctx)
		if err == nil {
			l.RUnlock()
		}
		readerIn <- err
	}()

	cancelWriter()
	require.ErrorIs(t, <-writerErr, ErrLockCancelled)
	select {
	case err := <-readerIn:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("reader stayed blocked after pending writer was cancelled")
	}
	l.RUnlock()
}

func TestRWLock_AlreadyCancelled(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, l.RLock(ctx), ErrLockCancelled)
	require.ErrorIs(t, l.Lock(ctx), ErrLockCancelled)
	require.Equal(t, Stats{}, l.Stats())
}

func TestRWLock_NotReentrant(t *testing.T) {
	l := New()
	ctx := context.Background()
	require.NoError(t, l.Lock(ctx))

	wctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, l.Lock(wctx), ErrLockCancelled)

	l.Unlock()
	require.Equal(t, Stats{}, l.Stats())
}

func TestRWLock_UnlockOfUnlocked(t *testing.T) {
	l := New()
	require.Panics(t, func() { l.Unlock() })
	require.Panics(t, func() { l.RUnlock() })

	// после паники замок остаётся рабочим
	require.NoError(t, l.Lock(context.Background()))
	l.Unlock()
}

func TestRWLock_ScopedHelpersRelease(t *testing.T) {
	l := New()
	ctx := context.Background()
	errBody := errors.New("body failed")

	require.ErrorIs(t, l.WithWrite(ctx, func() error { return errBody }), errBody)
	require.Equal(t, Stats{}, l.Stats())

	require.Panics(t, func() {
		_ = l.WithWrite(ctx, func() error { panic("boom") })
	})
	require.Equal(t, Stats{}, l.Stats())

	require.NoError(t, l.WithRead(ctx, func() error {
		require.Equal(t, 1, l.Stats().Readers)
		return nil
	}))
	require.Equal(t, Stats{}, l.Stats())
}
