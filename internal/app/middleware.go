package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/holdco/internal/observability"
	"github.com/odyssey-erp/holdco/internal/platform/httpx"
	"github.com/odyssey-erp/holdco/internal/shared"
)

const (
	// HeaderGroupID carries the caller's group identity.
	HeaderGroupID = "X-Group-ID"
	// HeaderActor names the caller for audit trails.
	HeaderActor = "X-Actor"
	// HeaderIdempotencyKey carries the caller's request-level dedup token.
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderIdempotentReplay marks a response served from the idempotency store.
	HeaderIdempotentReplay = "Idempotent-Replayed"

	maxIdempotencyKeyLen = 128
	maxReplayBodyBytes   = 1 << 20
)

var errGroupHeader = shared.Validationf("%s header must carry a positive group id", HeaderGroupID)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the global middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
		IsDevelopment:         cfg.Config == nil || !cfg.Config.IsProduction(),
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	perMinute := 120
	if cfg.Config != nil && cfg.Config.RateLimitPerMinute > 0 {
		perMinute = cfg.Config.RateLimitPerMinute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, cfg.Metrics.Middleware)
	}
	return middlewares
}

// RequireIdentity rejects requests without a group identity and stores the
// caller identity in the request context.
func RequireIdentity(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			groupID, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(HeaderGroupID)), 10, 64)
			if err != nil || groupID <= 0 {
				httpx.RespondError(w, r, logger, errGroupHeader)
				return
			}
			actor := strings.TrimSpace(r.Header.Get(HeaderActor))
			if actor == "" {
				actor = shared.DefaultActor
			}
			ctx := shared.ContextWithIdentity(r.Context(), shared.Identity{GroupID: groupID, Actor: actor})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type idempotencyStore interface {
	Reserve(ctx context.Context, groupID int64, key, fingerprint string) (shared.IdempotencyRecord, bool, error)
	Complete(ctx context.Context, groupID int64, key string, status int, body []byte) error
	Release(ctx context.Context, groupID int64, key string) error
}

// Idempotency replays the stored response for a repeated Idempotency-Key on
// mutating requests. A key reused with a different request or still in
// flight is a conflict. Server errors release the key so it can be retried.
func Idempotency(store idempotencyStore, metrics *observability.Metrics, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))
			if key == "" || !isMutating(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				httpx.RespondError(w, r, logger, shared.Validationf("%s must be at most %d characters", HeaderIdempotencyKey, maxIdempotencyKeyLen))
				return
			}
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, r, logger, errGroupHeader)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxReplayBodyBytes+1))
			if err != nil {
				httpx.RespondError(w, r, logger, httpx.ErrBadRequest)
				return
			}
			if len(body) > maxReplayBodyBytes {
				httpx.RespondError(w, r, logger, shared.Validationf("request body too large"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fingerprint := shared.Fingerprint(r.Method, r.URL.Path, body)
			rec, reserved, err := store.Reserve(r.Context(), identity.GroupID, key, fingerprint)
			if err != nil {
				if errors.Is(err, shared.ErrIdempotencyInFlight) {
					metrics.IdempotencyOutcome("in_flight")
				}
				httpx.RespondError(w, r, logger, err)
				return
			}
			if !reserved {
				switch {
				case rec.Fingerprint != fingerprint:
					metrics.IdempotencyOutcome("mismatch")
					httpx.RespondError(w, r, logger, shared.ErrIdempotencyMismatch)
				case !rec.Completed():
					metrics.IdempotencyOutcome("in_flight")
					httpx.RespondError(w, r, logger, shared.ErrIdempotencyInFlight)
				default:
					metrics.IdempotencyOutcome("replayed")
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set(HeaderIdempotentReplay, "true")
					w.WriteHeader(rec.StatusCode)
					_, _ = w.Write(rec.Body)
				}
				return
			}

			capture := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(capture, r)

			ctx := context.WithoutCancel(r.Context())
			if capture.status >= http.StatusInternalServerError {
				if err := store.Release(ctx, identity.GroupID, key); err != nil && logger != nil {
					logger.Error("release idempotency key", slog.String("key", key), slog.Any("error", err))
				}
				return
			}
			if err := store.Complete(ctx, identity.GroupID, key, capture.status, capture.body.Bytes()); err != nil && logger != nil {
				logger.Error("store idempotent response", slog.String("key", key), slog.Any("error", err))
				return
			}
			metrics.IdempotencyOutcome("stored")
		})
	}
}

type captureWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *captureWriter) Write(p []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	if c.body.Len() < maxReplayBodyBytes {
		c.body.Write(p)
	}
	return c.ResponseWriter.Write(p)
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

type groupDirectory interface {
	CompanyGroup(ctx context.Context, companyID int64) (int64, error)
	InvoiceGroup(ctx context.Context, invoiceID int64) (int64, error)
	PoolGroup(ctx context.Context, poolID int64) (int64, error)
}

// ScopeGuard resolves the route a request will hit on routes and rejects
// company, invoice or cost pool ids owned by another group as not found.
func ScopeGuard(routes chi.Routes, dir groupDirectory, logger *slog.Logger) func(http.Handler) http.Handler {
	lookups := []struct {
		param   string
		resolve func(context.Context, int64) (int64, error)
	}{
		{"companyID", dir.CompanyGroup},
		{"invoiceID", dir.InvoiceGroup},
		{"poolID", dir.PoolGroup},
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, r, logger, errGroupHeader)
				return
			}
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePath != "" {
				path = rctx.RoutePath
			}
			tctx := chi.NewRouteContext()
			if !routes.Match(tctx, r.Method, path) {
				next.ServeHTTP(w, r)
				return
			}
			for _, l := range lookups {
				raw := tctx.URLParam(l.param)
				if raw == "" {
					continue
				}
				id, err := strconv.ParseInt(raw, 10, 64)
				if err != nil || id <= 0 {
					// The handler reports malformed ids.
					continue
				}
				groupID, err := l.resolve(r.Context(), id)
				if err != nil {
					httpx.RespondError(w, r, logger, err)
					return
				}
				if groupID != identity.GroupID {
					httpx.RespondError(w, r, logger, shared.ErrOutOfScope)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
