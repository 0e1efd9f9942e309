// Package resolver turns a session into a role Resolution.
//
// A Resolver starts Pending, looks the role up through its injected
// session.Provider and settles on Resolved or Unresolved. Every change event
// from the provider resets it to Pending and triggers a fresh lookup. A single
// goroutine owns all transitions; it consumes the provider's event channel and
// the lookup results, and nothing else writes the state.
//
// Lookup failures and unknown role tags never surface as errors. They resolve
// to Unresolved, which callers treat like "no permitted role".
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"prophub/internal/domain/models"
	"prophub/internal/session"
)

// ErrClosed is returned by Await when the resolver was closed while pending
var ErrClosed = errors.New("resolver closed")

// Resolver tracks the resolution state of one session
type Resolver struct {
	provider session.Provider
	logger   *slog.Logger

	mu      sync.RWMutex
	state   models.Resolution
	changed chan struct{} // closed and replaced on every transition
	updates chan models.Resolution
	started bool
	closed  bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type lookupResult struct {
	generation uint64
	resolution models.Resolution
}

// New creates a Pending resolver for provider. Call Start to begin resolving.
func New(provider session.Provider, logger *slog.Logger) *Resolver {
	return &Resolver{
		provider: provider,
		logger:   logger,
		state:    models.Pending(),
		changed:  make(chan struct{}),
		updates:  make(chan models.Resolution, 1),
		done:     make(chan struct{}),
	}
}

// Start subscribes to the provider and kicks off the first lookup.
// It is a no-op if the resolver was already started or closed.
// Cancelling ctx stops the resolver like Close, except Updates stays open.
func (r *Resolver) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true

	ctx, r.cancel = context.WithCancel(ctx)
	events, unsubscribe := r.provider.Subscribe()
	go r.run(ctx, events, unsubscribe)
}

// State returns the current resolution
func (r *Resolver) State() models.Resolution {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Updates delivers each transition. Buffer is one: a slow reader only sees
// the latest state. Closed by Close.
func (r *Resolver) Updates() <-chan models.Resolution {
	return r.updates
}

// Await blocks until the resolution leaves Pending.
// On ctx expiry it returns the Pending state with ctx.Err().
func (r *Resolver) Await(ctx context.Context) (models.Resolution, error) {
	for {
		r.mu.RLock()
		state, changed, closed := r.state, r.changed, r.closed
		r.mu.RUnlock()

		if !state.IsPending() {
			return state, nil
		}
		if closed {
			return state, ErrClosed
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-changed:
		}
	}
}

// Close releases the provider subscription and stops the resolver.
// A lookup still in flight is discarded: no transition happens after Close.
// Safe to call multiple times.
func (r *Resolver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	started, cancel := r.started, r.cancel
	close(r.changed)
	close(r.updates)
	r.mu.Unlock()

	if started {
		cancel()
		<-r.done
	}
	return nil
}

func (r *Resolver) run(ctx context.Context, events <-chan session.Event, unsubscribe func()) {
	defer close(r.done)
	defer unsubscribe()

	results := make(chan lookupResult)
	var generation uint64
	go r.lookup(ctx, generation, results)

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				// provider went away; keep the last state
				events = nil
				continue
			}
			generation++
			r.logger.Debug("session changed, re-resolving role",
				"kind", ev.Kind,
				"user_id", ev.UserID,
				"generation", generation,
			)
			r.transition(models.Pending())
			go r.lookup(ctx, generation, results)

		case res := <-results:
			if res.generation != generation {
				continue
			}
			r.transition(res.resolution)
		}
	}
}

func (r *Resolver) lookup(ctx context.Context, generation uint64, results chan<- lookupResult) {
	tag, err := r.provider.LookupRole(ctx)
	res := lookupResult{generation: generation, resolution: r.interpret(tag, err)}

	select {
	case results <- res:
	case <-ctx.Done():
	}
}

// interpret maps a provider answer onto a resolution, deny by default
func (r *Resolver) interpret(tag string, err error) models.Resolution {
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			r.logger.Debug("no session, role unresolved")
		} else if !errors.Is(err, context.Canceled) {
			r.logger.Warn("role lookup failed", "error", err)
		}
		return models.Unresolved()
	}

	role, ok := models.ParseRole(tag)
	if !ok {
		r.logger.Warn("profile carries unknown role tag", "role", tag)
		return models.Unresolved()
	}
	return models.Resolved(role)
}

func (r *Resolver) transition(next models.Resolution) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.state == next {
		return
	}
	r.state = next

	close(r.changed)
	r.changed = make(chan struct{})

	// latest wins; we are the only writer, so the send cannot block after the drain
	select {
	case <-r.updates:
	default:
	}
	r.updates <- next
}
