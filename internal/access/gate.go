package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"prophub/internal/domain/models"
	"prophub/internal/httputil"
	"prophub/internal/resolver"
	"prophub/internal/session"
)

// HeaderAccessState tells clients why a 202 or 503 came back empty
const HeaderAccessState = "X-Access-State"

// pendingRetryAfter is the Retry-After hint, in seconds, on a pending write
const pendingRetryAfter = "1"

// Gate protects one piece of content.
// It holds only its inputs; each Render recomputes the outcome.
type Gate struct {
	Allowed models.RoleSet
	Content http.Handler
	// Fallback is rendered as-is on denial. Nil renders nothing (bare 403).
	Fallback http.Handler
}

// Render writes exactly one branch for res and returns the outcome it rendered
func (g Gate) Render(w http.ResponseWriter, r *http.Request, res models.Resolution) Outcome {
	outcome := Decide(g.Allowed, res)

	switch outcome {
	case ShowNothing:
		w.Header().Set(HeaderAccessState, "pending")
		if isSafeMethod(r.Method) {
			w.WriteHeader(http.StatusAccepted)
		} else {
			// the handler never ran, so a write must not look accepted
			w.Header().Set("Retry-After", pendingRetryAfter)
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	case ShowContent:
		g.Content.ServeHTTP(w, r)
	default:
		if g.Fallback != nil {
			g.Fallback.ServeHTTP(w, r)
		} else {
			w.WriteHeader(http.StatusForbidden)
		}
	}

	return outcome
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// AccessRestricted is the standard fallback: a 403 problem titled "Access Restricted"
func AccessRestricted(page string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.RespondProblem(w, httputil.ProblemDetail{
			Title:    "Access Restricted",
			Status:   http.StatusForbidden,
			Detail:   fmt.Sprintf("your role does not have access to %s", page),
			Instance: r.URL.Path,
		})
	})
}

// Guard resolves the caller's role per request and renders gates with it.
// The request is the resolver's scope: it is started when the request arrives
// and closed when the handler returns.
type Guard struct {
	directory session.Directory
	timeout   time.Duration
	metrics   *Metrics
	logger    *slog.Logger
}

// NewGuard creates a guard. timeout bounds how long a request waits for the
// role; a lookup still pending after it renders ShowNothing.
func NewGuard(directory session.Directory, timeout time.Duration, metrics *Metrics, logger *slog.Logger) *Guard {
	return &Guard{
		directory: directory,
		timeout:   timeout,
		metrics:   metrics,
		logger:    logger,
	}
}

// ProviderFor returns the session provider for the request's user,
// or an anonymous provider when nobody is signed in
func (g *Guard) ProviderFor(r *http.Request) session.Provider {
	if userID := httputil.GetUserID(r); userID != "" {
		return g.directory.ForUser(userID)
	}
	return session.Anonymous()
}

// Track starts a resolver for the request's user that lives until ctx ends or
// the caller closes it. Long-lived handlers use it to follow role changes.
func (g *Guard) Track(ctx context.Context, r *http.Request) *resolver.Resolver {
	res := resolver.New(g.ProviderFor(r), g.logger)
	res.Start(ctx)
	return res
}

// Observe counts an outcome rendered outside Protect
func (g *Guard) Observe(route string, outcome Outcome) {
	g.metrics.Observe(route, outcome)
}

// Resolve looks up the caller's role within the guard's timeout
func (g *Guard) Resolve(r *http.Request) models.Resolution {
	ctx, cancel := context.WithTimeout(r.Context(), g.timeout)
	defer cancel()

	res := g.Track(ctx, r)
	defer res.Close()

	state, err := res.Await(ctx)
	if err != nil && !errors.Is(err, resolver.ErrClosed) {
		g.logger.Debug("role still pending at deadline",
			"path", r.URL.Path,
			"error", err,
		)
	}
	return state
}

// Protect wraps content in a gate for route
func (g *Guard) Protect(route string, allowed models.RoleSet, content, fallback http.Handler) http.Handler {
	gate := Gate{Allowed: allowed, Content: content, Fallback: fallback}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := g.Resolve(r)
		outcome := gate.Render(w, r, res)
		g.metrics.Observe(route, outcome)

		g.logger.Debug("access decision",
			"route", route,
			"user_id", httputil.GetUserID(r),
			"state", res.State.String(),
			"outcome", outcome.String(),
		)
	})
}

// Require is middleware form of Protect with the standard fallback
func (g *Guard) Require(route string, allowed models.RoleSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return g.Protect(route, allowed, next, AccessRestricted(route))
	}
}
