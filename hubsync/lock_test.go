package hubsync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bsm/redislock"
)

type lockStub struct {
	mu         sync.Mutex
	refreshes  int
	released   bool
	refreshErr error
}

func (l *lockStub) Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes++
	return l.refreshErr
}

func (l *lockStub) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func (l *lockStub) snapshot() (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refreshes, l.released
}

func TestKeepAlive_RefreshesUntilReleased(t *testing.T) {
	lock := &lockStub{}
	release := keepAlive(context.Background(), lock, 30*time.Millisecond, quietLogger().WithField("lock_key", "k"))

	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := lock.snapshot(); n >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("lock was not refreshed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	release()

	n, released := lock.snapshot()
	if !released {
		t.Fatal("lock not released")
	}
	time.Sleep(50 * time.Millisecond)
	if after, _ := lock.snapshot(); after != n {
		t.Fatalf("refreshed after release: %d -> %d", n, after)
	}
}

func TestKeepAlive_StopsOnRefreshFailure(t *testing.T) {
	lock := &lockStub{refreshErr: errors.New("lock not held")}
	release := keepAlive(context.Background(), lock, 15*time.Millisecond, quietLogger().WithField("lock_key", "k"))
	time.Sleep(60 * time.Millisecond)
	if n, _ := lock.snapshot(); n != 1 {
		t.Fatalf("refreshes=%d", n)
	}
	release()
	if _, released := lock.snapshot(); !released {
		t.Fatal("lock not released")
	}
}

func TestKeepAlive_OutlivesCallerContext(t *testing.T) {
	lock := &lockStub{}
	ctx, cancel := context.WithCancel(context.Background())
	release := keepAlive(ctx, lock, 30*time.Millisecond, quietLogger().WithField("lock_key", "k"))
	cancel()
	time.Sleep(50 * time.Millisecond)
	release()
	if n, released := lock.snapshot(); n == 0 || !released {
		t.Fatalf("refreshes=%d released=%v", n, released)
	}
}
