package aivalidation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	id "attest/pkg/domain"
)

// DefaultCallTimeout bounds one adapter call when no timeout is configured.
const DefaultCallTimeout = 30 * time.Second

// Dispatcher runs adapter calls off the intake path. One call per
// (submission, round) is in flight at a time; a duplicate dispatch while the
// first is pending is a no-op, and the applier discards stale verdicts, so
// redelivery is harmless.
type Dispatcher struct {
	adapter Adapter
	applier VerdictApplier
	timeout time.Duration
	logger  *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewDispatcher(adapter Adapter, applier VerdictApplier, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Dispatcher{
		adapter:  adapter,
		applier:  applier,
		timeout:  timeout,
		logger:   logger,
		inflight: make(map[string]struct{}),
	}
}

// Dispatch schedules a validation call for one submission round. It returns
// immediately; the verdict (or failure) is applied asynchronously.
func (d *Dispatcher) Dispatch(ctx context.Context, subID id.SubmissionID, round int, req Request) {
	key := fmt.Sprintf("%s:%d", subID.String(), round)

	d.mu.Lock()
	if _, busy := d.inflight[key]; busy {
		d.mu.Unlock()
		return
	}
	d.inflight[key] = struct{}{}
	d.mu.Unlock()

	base := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.inflight, key)
			d.mu.Unlock()
		}()

		callCtx, cancel := context.WithTimeout(base, d.timeout)
		res, err := d.adapter.Validate(callCtx, req)
		cancel()
		if err != nil {
			d.logger.Warn("ai validation call failed",
				"submission_id", subID.String(),
				"round", round,
				"error", err,
			)
		}

		applyCtx, cancel := context.WithTimeout(base, d.timeout)
		defer cancel()
		if applyErr := d.applier.ApplyAIVerdict(applyCtx, subID, round, res, err); applyErr != nil {
			d.logger.Error("applying ai verdict failed",
				"submission_id", subID.String(),
				"round", round,
				"error", applyErr,
			)
		}
	}()
}

// Wait blocks until all in-flight validations have been applied. Used during
// shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
