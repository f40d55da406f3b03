package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	apperrors "github.com/tendant/user-permission/pkg/errors"
	"github.com/tendant/user-permission/pkg/metrics"
)

// Config holds rate limiting configuration. Field names line up with
// config.RateLimitConfig so the two can be copied with copier.
type Config struct {
	Enabled bool

	LoginCapacity  int
	LoginPerMinute float64

	RegisterCapacity  int
	RegisterPerMinute float64

	// Bucket TTL (how long to keep inactive buckets in memory)
	BucketTTL time.Duration
}

// DefaultConfig allows 10 logins and 5 registrations per minute per client IP.
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		LoginCapacity:     10,
		LoginPerMinute:    10,
		RegisterCapacity:  5,
		RegisterPerMinute: 5,
		BucketTTL:         time.Hour,
	}
}

// Recorder receives rejected requests and bucket counts. *metrics.Metrics
// satisfies it.
type Recorder interface {
	RecordOutcome(operation, outcome string)
	ObserveRateLimit(endpoint string, activeBuckets func() int)
}

type noopRecorder struct{}

func (noopRecorder) RecordOutcome(string, string) {}
func (noopRecorder) ObserveRateLimit(string, func() int) {}

// Option configures Limits.
type Option func(*options)

type options struct {
	recorder Recorder
}

// WithRecorder reports rejections under the endpoint name as the operation,
// with outcome metrics.OutcomeRateLimited, and exports bucket counts.
func WithRecorder(recorder Recorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// Middleware limits requests per client IP for one endpoint.
type Middleware struct {
	name     string
	limiter  *Limiter
	recorder Recorder
}

func NewMiddleware(name string, capacity int, perMinute float64, ttl time.Duration, recorder Recorder) *Middleware {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	m := &Middleware{
		name:     name,
		limiter:  NewLimiter(capacity, perMinute, ttl),
		recorder: recorder,
	}
	recorder.ObserveRateLimit(name, func() int { return m.Stats().ActiveBuckets })
	return m
}

// Limits bundles the per-endpoint middlewares. A nil Limits, or one built
// from a disabled Config, limits nothing.
type Limits struct {
	Login    *Middleware
	Register *Middleware
}

// New builds the login and register middlewares. Their names match the
// operation names the API handler records outcomes under.
func New(cfg Config, opts ...Option) *Limits {
	if !cfg.Enabled {
		return &Limits{}
	}
	o := options{recorder: noopRecorder{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &Limits{
		Login:    NewMiddleware("login", cfg.LoginCapacity, cfg.LoginPerMinute, cfg.BucketTTL, o.recorder),
		Register: NewMiddleware("register", cfg.RegisterCapacity, cfg.RegisterPerMinute, cfg.BucketTTL, o.recorder),
	}
}

// LoginHandlers returns the login middleware, or none when disabled.
func (l *Limits) LoginHandlers() []func(http.Handler) http.Handler {
	if l == nil || l.Login == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{l.Login.Handler}
}

// RegisterHandlers returns the register middleware, or none when disabled.
func (l *Limits) RegisterHandlers() []func(http.Handler) http.Handler {
	if l == nil || l.Register == nil {
		return nil
	}
	return []func(http.Handler) http.Handler{l.Register.Handler}
}

// Run evicts idle buckets until ctx is done.
func (l *Limits) Run(ctx context.Context) {
	if l == nil {
		return
	}
	for _, m := range []*Middleware{l.Login, l.Register} {
		if m != nil {
			go m.limiter.Run(ctx)
		}
	}
}

// Handler returns the rate limiting middleware handler
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if ok, retryAfter := m.limiter.Allow(ip); !ok {
			m.rateLimitExceeded(w, r, ip, retryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Stats returns statistics about the endpoint's buckets
func (m *Middleware) Stats() Stats {
	return m.limiter.Stats()
}

func (m *Middleware) rateLimitExceeded(w http.ResponseWriter, r *http.Request, ip string, retryAfter time.Duration) {
	seconds := retrySeconds(retryAfter)
	slog.Warn("Rate limit exceeded",
		"endpoint", m.name,
		"ip", ip,
		"path", r.URL.Path,
		"method", r.Method,
		"retry_after", seconds,
	)
	m.recorder.RecordOutcome(m.name, metrics.OutcomeRateLimited)

	appErr := apperrors.RateLimitExceeded(strconv.Itoa(seconds))
	w.Header().Set("Retry-After", strconv.Itoa(seconds))
	render.Status(r, appErr.HTTPStatusCode())
	render.JSON(w, r, errorBody{Message: appErr.Message, Details: appErr.Details})
}

type errorBody struct {
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// retrySeconds rounds up to whole seconds, as Retry-After requires.
func retrySeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	if d > 24*time.Hour {
		return int((24 * time.Hour).Seconds())
	}
	return int(math.Ceil(d.Seconds()))
}

// clientIP keys buckets by the remote address host. Proxy headers are
// resolved upstream by chi's RealIP middleware.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
