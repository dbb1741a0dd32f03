package order

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// Timer periodically fails pending orders whose checkout was never completed.
type Timer struct {
	service  *Service
	ttl      time.Duration
	interval time.Duration
	logger   *slog.Logger
	stop     chan struct{}
	running  atomic.Bool
}

// NewTimer creates a new order expiry timer.
func NewTimer(service *Service, ttl time.Duration, logger *slog.Logger) *Timer {
	return &Timer{
		service:  service,
		ttl:      ttl,
		interval: 10 * time.Minute,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// Running reports whether the timer loop is actively running.
func (t *Timer) Running() bool {
	return t.running.Load()
}

// Start begins the expiry loop. Call in a goroutine.
func (t *Timer) Start(ctx context.Context) {
	t.running.Store(true)
	defer t.running.Store(false)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.safeSweep(ctx)
		}
	}
}

// Stop signals the timer to stop.
func (t *Timer) Stop() {
	select {
	case t.stop <- struct{}{}:
	default:
	}
}

func (t *Timer) safeSweep(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in order expiry timer", "panic", fmt.Sprint(r))
		}
	}()

	n, err := t.service.ExpireStale(ctx, t.ttl)
	if err != nil {
		t.logger.Warn("failed to expire stale orders", "error", err)
		return
	}
	if n > 0 {
		t.logger.Info("expired stale pending orders", "count", n, "ttl", t.ttl.String())
	}
}
