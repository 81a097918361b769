package membership

import (
	"context"
	"errors"
	"log"
	"time"
)

// ReconcilerOption configures optional behaviour for the Reconciler.
type ReconcilerOption func(*Reconciler)

// WithReconcilerLogger overrides the reconciler logger.
func WithReconcilerLogger(logger *log.Logger) ReconcilerOption {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// Reconciler periodically refreshes every tracked user's view from the store.
type Reconciler struct {
	tracker  *Tracker
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger
}

// NewReconciler constructs a Reconciler. timeout bounds each per-user store read.
func NewReconciler(tracker *Tracker, interval, timeout time.Duration, opts ...ReconcilerOption) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r := &Reconciler{
		tracker:  tracker,
		interval: interval,
		timeout:  timeout,
		logger:   log.New(log.Writer(), "[reconciler] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reconciles on every tick until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce reconciles every tracked user and returns the total number of corrections.
func (r *Reconciler) RunOnce(ctx context.Context) int {
	total := 0
	for _, userID := range r.tracker.Users() {
		if ctx.Err() != nil {
			return total
		}
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		n, err := r.tracker.Reconcile(callCtx, userID)
		cancel()
		if err != nil {
			r.logger.Printf("reconcile failed: %v", err)
			continue
		}
		total += n
	}
	if total > 0 {
		r.logger.Printf("reconciled %d membership entries", total)
	}
	return total
}
