package hubsync

import (
	"context"
	"errors"
	"time"

	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
)

var (
	ErrCompanyBusy = errors.New("another sync is running for this company")
	ErrFeedBusy    = errors.New("another run is draining the change feed")
)

const (
	defaultLockTTL = 15 * time.Minute
	feedLockKey    = "hubsync:feed"
)

// FeedLocker serializes change-feed draining. The pending feed is platform wide, so
// per-company locks do not keep two runs from forwarding the same change.
type FeedLocker interface {
	LockFeed(ctx context.Context) (release func(), err error)
}

// heldLock is the part of *redislock.Lock a holder needs.
type heldLock interface {
	Refresh(ctx context.Context, ttl time.Duration, opt *redislock.Options) error
	Release(ctx context.Context) error
}

// CompanyLock keeps at most one sync in flight per company across service instances,
// and one change-feed drain across all companies.
type CompanyLock struct {
	locker *redislock.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewCompanyLock(locker *redislock.Client, ttl time.Duration, logger *logrus.Logger) *CompanyLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CompanyLock{locker: locker, ttl: ttl, logger: logger}
}

func companyLockKey(companyCode string) string {
	return "hubsync:company:" + companyCode
}

// Obtain takes the company's lock without waiting. The lock is refreshed until the
// returned release is called.
func (l *CompanyLock) Obtain(ctx context.Context, companyCode string) (func(), error) {
	return l.obtain(ctx, companyLockKey(companyCode), ErrCompanyBusy)
}

func (l *CompanyLock) LockFeed(ctx context.Context) (func(), error) {
	return l.obtain(ctx, feedLockKey, ErrFeedBusy)
}

func (l *CompanyLock) obtain(ctx context.Context, key string, busy error) (func(), error) {
	lock, err := l.locker.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, busy
	}
	if err != nil {
		return nil, err
	}
	return keepAlive(ctx, lock, l.ttl, l.logger.WithField("lock_key", key)), nil
}

// keepAlive refreshes lock every third of ttl so long uploads keep holding it. The
// returned func stops refreshing and releases the lock.
func keepAlive(ctx context.Context, lock heldLock, ttl time.Duration, log *logrus.Entry) func() {
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lock.Refresh(ctx, ttl, nil); err != nil {
					if ctx.Err() == nil {
						log.WithError(err).Error("lock refresh failed; lock may expire while held")
					}
					return
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.WithError(err).Warn("lock release failed")
		}
	}
}
