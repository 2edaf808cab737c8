package task

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/model"
)

// CheckFunc performs one status check against the provider.
type CheckFunc[R any] func(ctx context.Context) (R, error)

// ClassifyFunc maps a raw status response to an observation.
// A classify error is a malformed response and ends the loop immediately.
type ClassifyFunc[R, T any] func(raw R) (Observation[T], error)

// Poller holds shared poll loop dependencies.
type Poller struct {
	config *Config
	logger *zap.Logger
	onTick func(provider model.ProviderKind)
}

// NewPoller creates a new poller.
func NewPoller(config *Config, logger *zap.Logger) *Poller {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		config: config,
		logger: logger.Named("poller"),
	}
}

// OnTick registers a hook invoked before every status check.
func (p *Poller) OnTick(fn func(provider model.ProviderKind)) {
	p.onTick = fn
}

type acceptedKey struct{}

// WithAccepted returns a context whose Await calls fn once, before the first
// status check. Callers use it to learn that the provider accepted the task.
func WithAccepted(ctx context.Context, fn func()) context.Context {
	return context.WithValue(ctx, acceptedKey{}, fn)
}

func notifyAccepted(ctx context.Context) {
	if fn, ok := ctx.Value(acceptedKey{}).(func()); ok && fn != nil {
		fn()
	}
}

// Await checks the task on a fixed interval until it reaches a terminal state.
// Failed observations become ErrProviderTaskFailed with the provider reason,
// and exceeding spec.MaxWait becomes ErrTimeout.
func Await[R, T any](ctx context.Context, p *Poller, spec Spec, check CheckFunc[R], classify ClassifyFunc[R, T]) (T, error) {
	var zero T
	spec = spec.withDefaults(p.config)
	notifyAccepted(ctx)

	ticker := time.NewTicker(spec.Interval)
	defer ticker.Stop()

	deadline := time.NewTimer(spec.MaxWait)
	defer deadline.Stop()

	started := spec.SubmittedAt
	if started.IsZero() {
		started = time.Now()
	}
	attempts := 0
	consecutiveErrors := 0

	for {
		select {
		case <-ctx.Done():
			return zero, ctx.Err()

		case <-deadline.C:
			p.logger.Warn("task polling timed out",
				zap.String("provider", string(spec.Provider)),
				zap.String("task_id", spec.TaskID),
				zap.Int("attempts", attempts),
				zap.Duration("elapsed", time.Since(started)),
				zap.Duration("max_wait", spec.MaxWait))
			return zero, model.NewProviderError(model.ErrTimeout, spec.Provider, 0,
				fmt.Sprintf("task %s did not finish within %s", spec.TaskID, spec.MaxWait))

		case <-ticker.C:
		}

		attempts++
		if p.onTick != nil {
			p.onTick(spec.Provider)
		}

		checkCtx, cancel := context.WithTimeout(ctx, spec.CheckTimeout)
		raw, err := check(checkCtx)
		cancel()

		if err != nil {
			consecutiveErrors++
			p.logger.Warn("poll error",
				zap.String("provider", string(spec.Provider)),
				zap.String("task_id", spec.TaskID),
				zap.Int("consecutive_errors", consecutiveErrors),
				zap.Error(err))
			if consecutiveErrors >= spec.MaxConsecutiveErrors {
				return zero, err
			}
			continue
		}
		consecutiveErrors = 0

		obs, err := classify(raw)
		if err != nil {
			return zero, err
		}

		switch obs.Status {
		case StatusSucceeded:
			p.logger.Debug("task succeeded",
				zap.String("provider", string(spec.Provider)),
				zap.String("task_id", spec.TaskID),
				zap.Int("attempts", attempts),
				zap.Duration("elapsed", time.Since(started)))
			return obs.Result, nil
		case StatusFailed:
			return zero, model.TaskFailed(spec.Provider, obs.Reason)
		}
	}
}
