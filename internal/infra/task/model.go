// Package task provides the await-terminal-state loop shared by polling provider adapters.
package task

import (
	"time"

	"github.com/canvasflow/server/internal/model"
)

// Status is the normalized state of a provider task.
type Status int

const (
	StatusPending Status = iota
	StatusSucceeded
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Observation is one classified status check.
type Observation[T any] struct {
	Status Status
	Result T
	Reason string
}

// Pending returns a non-terminal observation.
func Pending[T any]() Observation[T] {
	return Observation[T]{Status: StatusPending}
}

// Succeeded returns a terminal observation carrying the result payload.
func Succeeded[T any](result T) Observation[T] {
	return Observation[T]{Status: StatusSucceeded, Result: result}
}

// Failed returns a terminal observation carrying the provider's reason verbatim.
func Failed[T any](reason string) Observation[T] {
	return Observation[T]{Status: StatusFailed, Reason: reason}
}

// Spec configures one await loop.
type Spec struct {
	// ProviderTask identifies the job for logging. A zero SubmittedAt means
	// elapsed time is measured from the start of Await.
	model.ProviderTask
	// Interval is the fixed delay between status checks.
	Interval time.Duration
	// MaxWait is the wall-clock ceiling before ErrTimeout.
	MaxWait time.Duration
	// CheckTimeout bounds a single status check.
	CheckTimeout time.Duration
	// MaxConsecutiveErrors is how many failed status checks in a row are tolerated.
	MaxConsecutiveErrors int
}

// Config holds poller defaults.
type Config struct {
	Interval             time.Duration `mapstructure:"interval"`
	MaxWait              time.Duration `mapstructure:"max_wait"`
	CheckTimeout         time.Duration `mapstructure:"check_timeout"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
}

// DefaultConfig returns the default poller configuration.
func DefaultConfig() *Config {
	return &Config{
		Interval:             5 * time.Second,
		MaxWait:              10 * time.Minute,
		CheckTimeout:         30 * time.Second,
		MaxConsecutiveErrors: 3,
	}
}

func (s Spec) withDefaults(cfg *Config) Spec {
	if s.Interval <= 0 {
		s.Interval = cfg.Interval
	}
	if s.MaxWait <= 0 {
		s.MaxWait = cfg.MaxWait
	}
	if s.CheckTimeout <= 0 {
		s.CheckTimeout = cfg.CheckTimeout
	}
	if s.MaxConsecutiveErrors <= 0 {
		s.MaxConsecutiveErrors = cfg.MaxConsecutiveErrors
	}
	return s
}
