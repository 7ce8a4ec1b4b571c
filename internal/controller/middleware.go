package controller

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/logger"
	"github.com/unclebandit/charityng-backend/internal/metrics"
	"github.com/unclebandit/charityng-backend/internal/model"
)

// APIKeyHeader carries the credential. "Authorization: Bearer" works too.
const APIKeyHeader = "api-key"

type principalKey struct{}

// Resolver maps a presented credential to a principal within one role's
// lookup space. Unknown credentials resolve to nil, nil.
type Resolver interface {
	Resolve(ctx context.Context, role model.Role, token string) (*model.Principal, error)
}

func WithPrincipal(ctx context.Context, p *model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the authenticated principal, or nil.
func PrincipalFrom(ctx context.Context) *model.Principal {
	p, _ := ctx.Value(principalKey{}).(*model.Principal)
	return p
}

func credential(r *http.Request) string {
	if token := r.Header.Get(APIKeyHeader); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// Authenticate resolves the credential in role's space and rejects the
// request when it is missing or unknown.
func Authenticate(resolver Resolver, role model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := credential(r)
			if token == "" {
				writeError(w, r, appErrors.NewUnauthenticated("missing api key"))
				return
			}
			p, err := resolver.Resolve(r.Context(), role, token)
			if err != nil {
				writeError(w, r, err)
				return
			}
			if p == nil {
				writeError(w, r, appErrors.NewUnauthenticated("invalid api key"))
				return
			}

			ctx := WithPrincipal(r.Context(), p)
			ctx = logger.WithFields(ctx, logrus.Fields{"principal": p.ID, "role": p.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger attaches a request scoped logrus entry and logs every
// request when it completes.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logger.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		r = r.WithContext(ctx)
		next.ServeHTTP(ww, r)

		entry := logger.FromContext(ctx).WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   ww.Status(),
			"bytes":    ww.BytesWritten(),
			"duration": time.Since(start).String(),
		})
		entry.Info("request handled")
	})
}

// Metrics records request latency by route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordRequest(r.Method, route, strconv.Itoa(status), time.Since(start).Seconds())
	})
}

// RateLimiter is a token bucket per principal, falling back to the remote
// address for anonymous callers. Buckets idle for IdleTTL are evicted by
// the sweep started with Start.
type RateLimiter struct {
	limit rate.Limit
	burst int

	IdleTTL time.Duration

	mu       sync.Mutex
	limiters map[string]*bucket
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		IdleTTL:  10 * time.Minute,
		limiters: make(map[string]*bucket),
	}
}

func (l *RateLimiter) limiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.limiters[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = b
	}
	b.lastSeen = time.Now()
	return b.lim
}

// Start evicts idle buckets every IdleTTL until ctx is done.
func (l *RateLimiter) Start(ctx context.Context) {
	ticker := time.NewTicker(l.IdleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := l.Sweep(now.Add(-l.IdleTTL)); n > 0 {
				logger.L().WithField("evicted", n).Debug("idle rate limit buckets evicted")
			}
		}
	}
}

// Sweep drops buckets last used before cutoff and returns how many.
func (l *RateLimiter) Sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.limiters {
		if b.lastSeen.Before(cutoff) {
			delete(l.limiters, key)
			n++
		}
	}
	return n
}

// Len is the number of live buckets.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

func (l *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.RemoteAddr
		if p := PrincipalFrom(r.Context()); p != nil {
			key = string(p.Role) + ":" + p.ID
		}
		if !l.limiter(key).Allow() {
			writeError(w, r, &appErrors.AppError{Kind: appErrors.KindRateLimited, Message: "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
