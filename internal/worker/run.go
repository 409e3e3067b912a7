// Package worker runs the orphan sweeper: it drains storage paths from
// the sweep queue and deletes objects no render record references.
package worker

import (
	"context"
	"errors"
	"time"

	"pagepress/internal/pkg/logger"
	"pagepress/internal/ports"
	"pagepress/internal/worker/queue"
)

// Sweep results, also used as the metric label.
const (
	ResultDeleted = "deleted"
	ResultKept    = "kept"
	ResultMissing = "missing"
	ResultRetry   = "retry"
	ResultDropped = "dropped"
)

// Run drains the queue until ctx is canceled.
func Run(ctx context.Context, d Deps) error {
	d.applyDefaults()
	log := d.Log.WithComponent("sweeper")

	for {
		select {
		case <-ctx.Done():
			log.Info("sweeper context canceled, stopping")
			return ctx.Err()
		default:
		}

		item, err := d.Queue.Pop(ctx, d.PopTimeout)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("sweeper stopping due to context cancellation")
				return ctx.Err()
			}
			log.Warn("queue pop error, retrying", "error", err.Error())
			if !sleep(ctx, d.RetryDelay) {
				return ctx.Err()
			}
			continue
		}
		if item == nil || item.Path == "" {
			continue
		}

		result := Sweep(ctx, d, log, *item)
		if result == ResultRetry && !sleep(ctx, d.RetryDelay) {
			return ctx.Err()
		}
	}
}

// Sweep handles one queued path and returns what it did.
func Sweep(ctx context.Context, d Deps, log *logger.Logger, item queue.Item) string {
	d.applyDefaults()
	itemLog := log.With("storage_path", item.Path, "attempts", item.Attempts)
	start := time.Now()

	result, err := sweep(ctx, d, item)
	if result == ResultRetry {
		if item.Attempts+1 >= d.MaxAttempts {
			result = ResultDropped
			itemLog.Error("orphan sweep abandoned", "error", errString(err))
		} else if qerr := d.Queue.Requeue(ctx, item); qerr != nil {
			result = ResultDropped
			itemLog.Error("failed to requeue orphan", "error", qerr.Error(), "cause", errString(err))
		} else {
			itemLog.Warn("orphan sweep failed, requeued", "error", errString(err))
		}
	} else {
		itemLog.Info("orphan swept", "result", result, "duration_ms", time.Since(start).Milliseconds())
	}

	if d.Metrics != nil {
		d.Metrics.OrphansSwept.WithLabelValues(result).Inc()
	}
	return result
}

func sweep(ctx context.Context, d Deps, item queue.Item) (string, error) {
	referenced, err := d.Records.IsReferenced(ctx, item.Path)
	if err != nil {
		return ResultRetry, err
	}
	if referenced {
		return ResultKept, nil
	}

	err = d.Storage.Delete(ctx, item.Path)
	switch {
	case err == nil:
		return ResultDeleted, nil
	case errors.Is(err, ports.ErrObjectNotFound):
		return ResultMissing, nil
	default:
		return ResultRetry, err
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
