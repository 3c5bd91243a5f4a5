// Package fallback runs an ordered list of data providers and returns the
// first usable result, or a default when every provider fails.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultSource is reported in Result.Source when no provider succeeded.
const DefaultSource = "default"

// ErrEmpty is returned by providers that reached their upstream but got
// nothing usable back.
var ErrEmpty = errors.New("empty result")

// Provider is one upstream data source.
type Provider[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, error)
}

// Recorder observes provider outcomes. Implemented by internal/metrics.
type Recorder interface {
	ObserveAttempt(chain, provider string, err error)
	ObserveDefault(chain string)
}

// Result is the outcome of one chain execution.
type Result[T any] struct {
	Value     T
	Source    string
	Defaulted bool
}

// Chain is an ordered provider fallback with a default value.
type Chain[T any] struct {
	name      string
	providers []Provider[T]
	def       T
	valid     func(T) bool
	recorder  Recorder
	logger    *slog.Logger
}

// Option configures a Chain.
type Option[T any] func(*Chain[T])

// WithValidator rejects structurally valid but unusable values (empty lists,
// zero prices). A rejected value counts as a provider failure.
func WithValidator[T any](fn func(T) bool) Option[T] {
	return func(c *Chain[T]) { c.valid = fn }
}

// WithRecorder attaches an outcome recorder.
func WithRecorder[T any](r Recorder) Option[T] {
	return func(c *Chain[T]) { c.recorder = r }
}

// WithLogger overrides the default slog logger.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(c *Chain[T]) { c.logger = l }
}

// New creates a chain. Providers are tried in the given order.
func New[T any](name string, def T, providers []Provider[T], opts ...Option[T]) *Chain[T] {
	c := &Chain[T]{
		name:      name,
		providers: providers,
		def:       def,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the chain name used in logs and metrics.
func (c *Chain[T]) Name() string {
	return c.name
}

// Execute tries each provider once, in order, and stops at the first valid
// value. Provider errors are logged and never returned.
func (c *Chain[T]) Execute(ctx context.Context) Result[T] {
	for _, p := range c.providers {
		if err := ctx.Err(); err != nil {
			c.logger.Debug("Provider chain cancelled", "chain", c.name, "error", err)
			break
		}

		value, err := c.attempt(ctx, p)
		if err == nil && c.valid != nil && !c.valid(value) {
			err = ErrEmpty
		}
		if c.recorder != nil {
			c.recorder.ObserveAttempt(c.name, p.Name, err)
		}
		if err != nil {
			c.logger.Warn("Provider failed, trying next",
				"chain", c.name,
				"provider", p.Name,
				"error", err)
			continue
		}

		c.logger.Debug("Provider succeeded", "chain", c.name, "provider", p.Name)
		return Result[T]{Value: value, Source: p.Name}
	}

	if c.recorder != nil {
		c.recorder.ObserveDefault(c.name)
	}
	c.logger.Warn("All providers failed, using default value", "chain", c.name)
	return Result[T]{Value: c.def, Source: DefaultSource, Defaulted: true}
}

func (c *Chain[T]) attempt(ctx context.Context, p Provider[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("provider panic: %v", r)
		}
	}()
	if p.Fetch == nil {
		return value, fmt.Errorf("provider %q has no fetch function", p.Name)
	}
	return p.Fetch(ctx)
}
