package worker

import (
	"context"
	"time"

	"pagepress/internal/metrics"
	"pagepress/internal/pkg/logger"
	"pagepress/internal/ports"
	"pagepress/internal/worker/queue"
)

// Queue is the sweep queue the worker drains.
type Queue interface {
	Pop(ctx context.Context, timeout time.Duration) (*queue.Item, error)
	Requeue(ctx context.Context, item queue.Item) error
}

// ReferenceChecker reports whether any record still points at a path.
type ReferenceChecker interface {
	IsReferenced(ctx context.Context, storagePath string) (bool, error)
}

type Deps struct {
	Queue   Queue
	Storage ports.StorageProvider
	Records ReferenceChecker
	Metrics *metrics.Metrics
	Log     *logger.Logger

	// PopTimeout bounds each blocking pop so ctx is checked regularly.
	PopTimeout time.Duration
	// RetryDelay is the pause after a queue error or a failed sweep.
	RetryDelay time.Duration
	// MaxAttempts drops an item after this many failed sweeps.
	MaxAttempts int
}

func (d *Deps) applyDefaults() {
	if d.Log == nil {
		d.Log = logger.NewDefault()
	}
	if d.PopTimeout <= 0 {
		d.PopTimeout = 30 * time.Second
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = time.Second
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = 5
	}
}
