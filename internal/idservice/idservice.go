// Package idservice implements the ID service with fallback manager from
// spec §4.D: it routes mintCode between the counter allocator and the
// hash fallback generator through a health-probed circuit breaker.
//
// The breaker's own closed/open/half-open machinery is
// github.com/sony/gobreaker, the teacher's direct dependency; the spec's
// tri-state model (counter/hash/unavailable) is layered on top, since
// gobreaker's three states don't name a distinct "fallback exhausted"
// state on their own.
package idservice

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/jordigilh/urlshort/internal/apierrors"
	"github.com/jordigilh/urlshort/internal/base62"
	"github.com/jordigilh/urlshort/internal/hashfallback"
	"github.com/jordigilh/urlshort/internal/model"
)

// Allocator is the counter-allocator dependency (internal/idalloc).
type Allocator interface {
	NextID(ctx context.Context) (int64, error)
}

// AliasProber is the store dependency used for collision checks both by
// the hash fallback and by the custom-alias path.
type AliasProber interface {
	ExistsByShortCode(ctx context.Context, shortCode string) (bool, error)
}

// Options configures the Manager per spec §4.D / §3.
type Options struct {
	FailureThreshold uint32        // consecutive counter failures before opening
	OpenTimeout      time.Duration // how long the breaker stays open before a half-open trial
	MinLen           int           // short-code minimum length
	HashOptions      hashfallback.Options
}

// DefaultOptions mirrors the spec's documented defaults.
func DefaultOptions() Options {
	return Options{
		FailureThreshold: 3,
		OpenTimeout:      30 * time.Second,
		MinLen:           7,
		HashOptions:      hashfallback.DefaultOptions(),
	}
}

// Manager mints short codes by routing between the counter allocator and
// the hash fallback generator via a circuit breaker.
type Manager struct {
	breaker *gobreaker.CircuitBreaker[int64]
	alloc   Allocator
	prober  AliasProber
	opts    Options
	log     *zap.Logger

	state atomic.Int32 // model.BreakerState
}

// New builds a Manager. alloc mints counter-based IDs; prober checks
// short-code collisions for both the hash fallback and the alias path.
func New(alloc Allocator, prober AliasProber, opts Options, log *zap.Logger) *Manager {
	m := &Manager{alloc: alloc, prober: prober, opts: opts, log: log}
	m.state.Store(int32(model.BreakerCounter))

	m.breaker = gobreaker.NewCircuitBreaker[int64](gobreaker.Settings{
		Name:        "idservice-counter",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.onBreakerStateChange(to)
			log.Info("id service breaker state change",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return m
}

func (m *Manager) onBreakerStateChange(to gobreaker.State) {
	switch to {
	case gobreaker.StateClosed:
		m.state.Store(int32(model.BreakerCounter))
	case gobreaker.StateOpen, gobreaker.StateHalfOpen:
		// Half-open is a trial of the counter path; until it succeeds we
		// keep serving from hash so mintCode never blocks on the trial.
		if model.BreakerState(m.state.Load()) != model.BreakerUnavailable {
			m.state.Store(int32(model.BreakerHash))
		}
	}
}

// State returns the current tri-state FSM value.
func (m *Manager) State() model.BreakerState {
	return model.BreakerState(m.state.Load())
}

// MintResult is the outcome of a successful mintCode call.
type MintResult struct {
	ShortCode  string
	Source     model.BreakerState
	Collisions int
}

// MintCode implements spec §4.D's mintCode procedure.
func (m *Manager) MintCode(ctx context.Context, longURL string) (MintResult, error) {
	id, err := m.breaker.Execute(func() (int64, error) {
		return m.alloc.NextID(ctx)
	})
	if err == nil {
		code, encErr := base62.Encode(id, m.opts.MinLen)
		if encErr != nil {
			return MintResult{}, apierrors.Wrap(apierrors.KindFatal, "mint-encode", encErr, "encoding counter id")
		}
		m.state.Store(int32(model.BreakerCounter))
		return MintResult{ShortCode: code, Source: model.BreakerCounter}, nil
	}

	if m.State() == model.BreakerUnavailable {
		return MintResult{}, apierrors.New(apierrors.KindCircuitOpen, "id-unavailable", "id service unavailable")
	}

	// Counter path failed; if the breaker isn't (yet) open this is a
	// single transient failure below the trip threshold — surface it and
	// let the caller retry the counter path next time.
	if m.breaker.State() != gobreaker.StateOpen && m.breaker.State() != gobreaker.StateHalfOpen {
		return MintResult{}, apierrors.Wrap(apierrors.KindTransient, "counter-failed", err, "counter allocation failed")
	}

	m.state.Store(int32(model.BreakerHash))
	res, hashErr := hashfallback.Generate(ctx, m.prober, longURL, m.opts.HashOptions)
	if hashErr != nil {
		m.state.Store(int32(model.BreakerUnavailable))
		return MintResult{}, apierrors.Wrap(apierrors.KindCircuitOpen, "id-unavailable", hashErr, "hash fallback exhausted")
	}

	return MintResult{ShortCode: res.Code, Source: model.BreakerHash, Collisions: res.Collisions}, nil
}

// MintAlias validates-by-contract (the caller must already have run the
// custom-alias through the external URL validator per spec §6) and mints
// a mapping for a caller-supplied alias, bypassing the counter/hash path
// entirely. Collisions surface as a conflict.
func (m *Manager) MintAlias(ctx context.Context, alias string) (MintResult, error) {
	exists, err := m.prober.ExistsByShortCode(ctx, alias)
	if err != nil {
		return MintResult{}, apierrors.Wrap(apierrors.KindTransient, "alias-probe", err, "probing alias")
	}
	if exists {
		return MintResult{}, apierrors.Conflict("alias-taken", alias)
	}
	return MintResult{ShortCode: alias, Source: model.BreakerCounter}, nil
}
