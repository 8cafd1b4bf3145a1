package main

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/oceanwatch/debris-detection-service/detections"
	"github.com/oceanwatch/debris-detection-service/models"
)

const (
	// DefaultPoolSize Pool configuration
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

// ModelSessionPool holds pre-built ONNX sessions. Sessions carry bound
// input/output tensors and are not safe for concurrent runs, so concurrent
// requests each borrow their own session; the pool is the process-wide model
// handle.
type ModelSessionPool struct {
	sessions       chan *detections.ModelSession
	newSession     func() (*detections.ModelSession, error)
	size           int
	labels         []string
	acquireTimeout time.Duration

	mu         sync.Mutex
	closed     bool
	live       int // sessions in existence, idle plus borrowed
	lastErrors []error

	metrics *PoolMetrics
}

type PoolMetrics struct {
	mu              sync.RWMutex
	inUse           int
	totalAcquired   int64
	totalReleased   int64
	acquireFailures int64
	waitTime        time.Duration
}

func NewModelSessionPool(modelPath string, labels []string, numClasses, size int) (*ModelSessionPool, error) {
	return newSessionPool(func() (*detections.ModelSession, error) {
		return initSession(modelPath, numClasses)
	}, labels, size)
}

func newSessionPool(newSession func() (*detections.ModelSession, error), labels []string, size int) (*ModelSessionPool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}

	pool := &ModelSessionPool{
		sessions:       make(chan *detections.ModelSession, size),
		newSession:     newSession,
		size:           size,
		labels:         labels,
		acquireTimeout: AcquireTimeout,
		metrics:        &PoolMetrics{},
	}

	// Initialize sessions
	for i := 0; i < size; i++ {
		session, err := newSession()
		if err != nil {
			pool.Destroy()
			return nil, fmt.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.live++
		pool.sessions <- session
	}

	// Start health check routine
	go pool.healthCheck()

	return pool, nil
}

// Detect borrows a session, runs inference and returns the normalized
// detections. Implements detections.Detector.
func (p *ModelSessionPool) Detect(ctx context.Context, img image.Image, timings *models.ProcessingTimings) ([]models.Detection, error) {
	session, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(session)

	return detections.ProcessImage(ctx, img, session, p.labels, timings)
}

func (p *ModelSessionPool) Acquire(ctx context.Context) (*detections.ModelSession, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("pool is closed")
	}

	start := time.Now()
	defer func() {
		p.metrics.mu.Lock()
		p.metrics.waitTime += time.Since(start)
		p.metrics.mu.Unlock()
	}()

	select {
	case session := <-p.sessions:
		p.metrics.mu.Lock()
		p.metrics.inUse++
		p.metrics.totalAcquired++
		p.metrics.mu.Unlock()
		return session, nil
	case <-time.After(p.acquireTimeout):
		p.metrics.mu.Lock()
		p.metrics.acquireFailures++
		p.metrics.mu.Unlock()
		return nil, fmt.Errorf("timeout waiting for available session")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *ModelSessionPool) Release(session *detections.ModelSession) {
	p.mu.Lock()
	if p.closed {
		p.live--
		p.mu.Unlock()
		session.Destroy()
		return
	}
	// live never exceeds the channel capacity, so this send cannot block;
	// keeping the lock here closes the race with Destroy.
	p.sessions <- session
	p.mu.Unlock()

	p.metrics.mu.Lock()
	p.metrics.inUse--
	p.metrics.totalReleased++
	p.metrics.mu.Unlock()
}

// Destroy drains and destroys idle sessions. The channel is intentionally
// never closed: sessions still borrowed by in-flight requests are destroyed
// by Release when they come back.
func (p *ModelSessionPool) Destroy() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	for {
		select {
		case session := <-p.sessions:
			session.Destroy()
			p.mu.Lock()
			p.live--
			p.mu.Unlock()
		default:
			return
		}
	}
}

func (p *ModelSessionPool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		closed := p.closed
		// Borrowed sessions still exist; only sessions actually lost are
		// recreated, otherwise returning borrowers would find the channel
		// full and block.
		missing := p.size - p.live
		p.mu.Unlock()

		if closed {
			return
		}
		if missing > 0 {
			p.replenishSessions(missing)
		}
	}
}

func (p *ModelSessionPool) replenishSessions(count int) {
	for i := 0; i < count; i++ {
		session, err := p.newSession()
		if err != nil {
			p.recordError(err)
			continue
		}

		p.mu.Lock()
		if p.closed || p.live >= p.size {
			p.mu.Unlock()
			session.Destroy()
			return
		}
		p.live++
		p.mu.Unlock()

		p.sessions <- session
	}
}

func (p *ModelSessionPool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}

func (p *ModelSessionPool) GetMetrics() PoolMetrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()
	return PoolMetrics{
		inUse:           p.metrics.inUse,
		totalAcquired:   p.metrics.totalAcquired,
		totalReleased:   p.metrics.totalReleased,
		acquireFailures: p.metrics.acquireFailures,
		waitTime:        p.metrics.waitTime,
	}
}
