package mediaprovider

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/canvasflow/server/internal/infra/task"
	"github.com/canvasflow/server/internal/model"
	"github.com/canvasflow/server/internal/port/outbound"
)

// BreakerConfig contains circuit breaker configuration.
type BreakerConfig struct {
	FailureThreshold    uint32        `mapstructure:"failure_threshold"`
	Interval            time.Duration `mapstructure:"interval"`
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxHalfOpenRequests uint32        `mapstructure:"max_half_open_requests"`
}

// DefaultBreakerConfig returns the default circuit breaker configuration.
func DefaultBreakerConfig() *BreakerConfig {
	return &BreakerConfig{
		FailureThreshold:    5,
		Interval:            60 * time.Second,
		Timeout:             60 * time.Second,
		MaxHalfOpenRequests: 1,
	}
}

// StateListener is told about every breaker state change.
type StateListener func(provider model.ProviderKind, healthy bool)

// GuardedAdapter wraps an adapter with a per-provider circuit breaker.
// The breaker guards the submit step only: once a polling adapter's task is
// accepted the outcome is recorded and the half-open slot is released, so
// later poll failures and long-running jobs do not hold the breaker.
type GuardedAdapter struct {
	outbound.MediaVendorAdapterPort
	breaker *gobreaker.TwoStepCircuitBreaker[*model.GenerationResult]
}

// NewGuardedAdapter wraps adapter with a circuit breaker.
func NewGuardedAdapter(adapter outbound.MediaVendorAdapterPort, cfg *BreakerConfig, listener StateListener, logger *zap.Logger) *GuardedAdapter {
	if cfg == nil {
		cfg = DefaultBreakerConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	provider := adapter.Provider()

	settings := gobreaker.Settings{
		Name:        string(provider),
		MaxRequests: cfg.MaxHalfOpenRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if listener != nil {
				listener(provider, to == gobreaker.StateClosed)
			}
		},
	}

	return &GuardedAdapter{
		MediaVendorAdapterPort: adapter,
		breaker:                gobreaker.NewTwoStepCircuitBreaker[*model.GenerationResult](settings),
	}
}

// countsAsFailure reports whether err says the provider is unhealthy.
// Caller mistakes and task-level failures leave the breaker alone.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, model.ErrProviderUnavailable) {
		return true
	}
	var pe *model.ProviderError
	if errors.As(err, &pe) && errors.Is(pe.Kind, model.ErrProviderRejected) {
		return pe.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// SubmitImage runs the adapter's SubmitImage through the breaker.
func (g *GuardedAdapter) SubmitImage(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	return g.execute(ctx, func(ctx context.Context) (*model.GenerationResult, error) {
		return g.MediaVendorAdapterPort.SubmitImage(ctx, req)
	})
}

// SubmitVideo runs the adapter's SubmitVideo through the breaker.
func (g *GuardedAdapter) SubmitVideo(ctx context.Context, req *model.AdapterRequest) (*model.GenerationResult, error) {
	return g.execute(ctx, func(ctx context.Context) (*model.GenerationResult, error) {
		return g.MediaVendorAdapterPort.SubmitVideo(ctx, req)
	})
}

// State returns the breaker state.
func (g *GuardedAdapter) State() gobreaker.State {
	return g.breaker.State()
}

// execute records the outcome when the provider accepts a polled task, or
// when fn returns for adapters that answer synchronously.
func (g *GuardedAdapter) execute(ctx context.Context, fn func(context.Context) (*model.GenerationResult, error)) (*model.GenerationResult, error) {
	done, err := g.breaker.Allow()
	if err != nil {
		return nil, model.NewProviderError(model.ErrProviderUnavailable, g.Provider(), 0, "circuit breaker open").WithCause(err)
	}

	var once sync.Once
	record := func(err error) {
		once.Do(func() { done(!countsAsFailure(err)) })
	}
	defer func() {
		if r := recover(); r != nil {
			record(model.NewProviderError(model.ErrProviderUnavailable, g.Provider(), 0, "adapter panic"))
			panic(r)
		}
	}()

	result, err := fn(task.WithAccepted(ctx, func() { record(nil) }))
	record(err)
	return result, err
}

// Compile-time interface check
var _ outbound.MediaVendorAdapterPort = (*GuardedAdapter)(nil)
