package main

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/oceanwatch/debris-detection-service/detections"
)

func fakeSessionPool(t *testing.T, size int) *ModelSessionPool {
	t.Helper()
	pool, err := newSessionPool(func() (*detections.ModelSession, error) {
		return &detections.ModelSession{}, nil
	}, nil, size)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(pool.Destroy)
	return pool
}

func TestPoolMetricsAccounting(t *testing.T) {
	pool := fakeSessionPool(t, 2)
	ctx := context.Background()

	session, err := pool.Acquire(ctx)
	test.That(t, err, test.ShouldBeNil)

	metrics := pool.GetMetrics()
	test.That(t, metrics.inUse, test.ShouldEqual, 1)
	test.That(t, metrics.totalAcquired, test.ShouldEqual, int64(1))

	pool.Release(session)
	metrics = pool.GetMetrics()
	test.That(t, metrics.inUse, test.ShouldEqual, 0)
	test.That(t, metrics.totalReleased, test.ShouldEqual, int64(1))
}

func TestPoolReplenishIgnoresBorrowedSessions(t *testing.T) {
	pool := fakeSessionPool(t, 2)

	session, err := pool.Acquire(context.Background())
	test.That(t, err, test.ShouldBeNil)

	// A borrowed session is not a missing one. A top-up request for the
	// full pool size must not mint extra sessions, or the borrower could
	// never hand its session back.
	pool.replenishSessions(2)
	test.That(t, len(pool.sessions), test.ShouldEqual, 1)

	released := make(chan struct{})
	go func() {
		pool.Release(session)
		close(released)
	}()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("release blocked on a full session channel")
	}

	test.That(t, len(pool.sessions), test.ShouldEqual, 2)
	pool.mu.Lock()
	test.That(t, pool.live, test.ShouldEqual, 2)
	pool.mu.Unlock()
}

func TestPoolReplenishRestoresLostSessions(t *testing.T) {
	pool := fakeSessionPool(t, 2)

	// Borrow a session and pretend its goroutine died without releasing.
	_, err := pool.Acquire(context.Background())
	test.That(t, err, test.ShouldBeNil)
	pool.mu.Lock()
	pool.live--
	pool.mu.Unlock()

	pool.replenishSessions(1)
	test.That(t, len(pool.sessions), test.ShouldEqual, 2)

	// Both remaining sessions are acquirable again.
	s1, err := pool.Acquire(context.Background())
	test.That(t, err, test.ShouldBeNil)
	s2, err := pool.Acquire(context.Background())
	test.That(t, err, test.ShouldBeNil)
	pool.Release(s1)
	pool.Release(s2)
}

func TestPoolAcquireTimeout(t *testing.T) {
	pool := fakeSessionPool(t, 1)
	pool.acquireTimeout = 20 * time.Millisecond

	session, err := pool.Acquire(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer pool.Release(session)

	_, err = pool.Acquire(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "timeout")
	test.That(t, pool.GetMetrics().acquireFailures, test.ShouldEqual, int64(1))
}

func TestPoolAcquireContextCancelled(t *testing.T) {
	pool := fakeSessionPool(t, 1)

	session, err := pool.Acquire(context.Background())
	test.That(t, err, test.ShouldBeNil)
	defer pool.Release(session)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pool.Acquire(ctx)
	test.That(t, err, test.ShouldBeError, context.Canceled)
}

func TestPoolReleaseAfterDestroy(t *testing.T) {
	pool := fakeSessionPool(t, 1)

	session, err := pool.Acquire(context.Background())
	test.That(t, err, test.ShouldBeNil)

	pool.Destroy()

	// The borrowed session comes back after shutdown; it must be torn
	// down quietly, not panic on a dead channel.
	pool.Release(session)
	pool.mu.Lock()
	test.That(t, pool.live, test.ShouldEqual, 0)
	pool.mu.Unlock()

	_, err = pool.Acquire(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "closed")
}

func TestPoolInitFailure(t *testing.T) {
	_, err := newSessionPool(func() (*detections.ModelSession, error) {
		return nil, errors.New("no such model")
	}, nil, 2)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to initialize session")
}
