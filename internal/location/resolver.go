package location

import (
	"context"
	"time"

	"github.com/oshokin/fall-guard/internal/domain/fall"
	"github.com/oshokin/fall-guard/internal/logger"
)

// DefaultAttemptTimeout bounds a single provider lookup.
const DefaultAttemptTimeout = 2 * time.Second

// Provider is a source of last-known positions.
type Provider interface {
	// Name identifies the provider in logs and in Location.Provider.
	Name() string
	// Enabled reports whether the provider can currently answer.
	Enabled(ctx context.Context) bool
	// LastKnown returns the cached fix, or nil when there is none.
	LastKnown(ctx context.Context) (*fall.Location, error)
}

// Resolver queries providers in priority order.
type Resolver struct {
	// providers in priority order.
	providers []Provider
	// timeout bounds each provider attempt.
	timeout time.Duration
	// granted is checked before any lookup; nil means always granted.
	granted func() bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithAttemptTimeout overrides DefaultAttemptTimeout.
func WithAttemptTimeout(timeout time.Duration) Option {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// WithGrant installs the location capability check.
func WithGrant(granted func() bool) Option {
	return func(r *Resolver) {
		r.granted = granted
	}
}

// NewResolver creates a resolver over providers, highest priority first.
func NewResolver(providers []Provider, opts ...Option) *Resolver {
	r := &Resolver{
		providers: providers,
		timeout:   DefaultAttemptTimeout,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the first available last-known location or nil.
// It never prompts and never returns an error: every failure means "no fix".
func (r *Resolver) Resolve(ctx context.Context) *fall.Location {
	if r.granted != nil && !r.granted() {
		logger.Warn(ctx, "Location permission not granted")
		return nil
	}

	enabled := make([]Provider, 0, len(r.providers))

	for _, p := range r.providers {
		if p.Enabled(ctx) {
			enabled = append(enabled, p)
		}
	}

	if len(enabled) == 0 {
		logger.Warn(ctx, "All location providers are disabled")
		return nil
	}

	for _, p := range enabled {
		loc := r.attempt(ctx, p)

		logger.DebugKV(ctx, "Tried location provider", "provider", p.Name(), "found", loc != nil)

		if loc != nil {
			return loc
		}
	}

	return nil
}

// attempt runs one bounded provider lookup.
func (r *Resolver) attempt(ctx context.Context, p Provider) *fall.Location {
	attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	loc, err := p.LastKnown(attemptCtx)
	if err != nil {
		logger.WarnKV(ctx, "Error getting location", "provider", p.Name(), "error", err)
		return nil
	}

	if loc == nil {
		return nil
	}

	if !loc.Valid() {
		logger.WarnKV(ctx, "Discarding out-of-range location", "provider", p.Name(), "location", loc.String())
		return nil
	}

	if loc.Provider == "" {
		loc.Provider = p.Name()
	}

	return loc
}
