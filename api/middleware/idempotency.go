package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/freshora-backend/api/responses"
	pkgerrors "github.com/angelmondragon/freshora-backend/pkg/errors"
	"github.com/angelmondragon/freshora-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/freshora-backend/pkg/redis"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	checkoutReplayTTL    = 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can hold its key.
	inFlightTTL = 2 * time.Minute
)

// idempotentRoutes lists the writes that must carry an Idempotency-Key.
// Patterns are chi route patterns.
var idempotentRoutes = []struct {
	method string
	prefix string
	ttl    time.Duration
}{
	{http.MethodPost, "/api/v1/checkout/", checkoutReplayTTL},
}

func routeTTL(method, pattern string) (time.Duration, bool) {
	if pattern == "" {
		return 0, false
	}
	for _, route := range idempotentRoutes {
		if route.method == method && strings.HasPrefix(pattern, route.prefix) {
			return route.ttl, true
		}
	}
	return 0, false
}

// storedResponse is what a repeated request gets back. Fingerprint guards
// against a key being reused with a different body. InFlight marks a key
// reserved by a request that has not finished yet.
type storedResponse struct {
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
	Fingerprint string `json:"fingerprint"`
	InFlight    bool   `json:"in_flight,omitempty"`
}

func (s storedResponse) writeTo(w http.ResponseWriter) {
	if s.ContentType != "" {
		w.Header().Set("Content-Type", s.ContentType)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(s.Status)
	_, _ = w.Write(s.Body)
}

// Idempotency replays the first non-5xx response for a (user, route, key)
// triple. The key is reserved before the handler runs, so a concurrent
// duplicate gets 409 instead of a second execution. Requests on listed
// routes without a key are rejected.
func Idempotency(store pkgredis.IdempotencyStore, logg *logger.Logger) func(http.Handler) http.Handler {
	g := idempotencyGuard{store: store, logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			g.serve(w, r, next)
		})
	}
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	logg  *logger.Logger
}

func (g idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()
	ttl, guarded := routeTTL(r.Method, routePattern(r))
	if !guarded || g.store == nil {
		next.ServeHTTP(w, r)
		return
	}

	clientKey := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if clientKey == "" {
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	sum := sha256.Sum256(body)
	fingerprint := hex.EncodeToString(sum[:])
	key := g.store.IdempotencyKey(strings.Join([]string{UserIDFromContext(ctx), r.Method, r.URL.Path}, "|"), clientKey)

	reserved, err := g.reserve(ctx, key, fingerprint)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, err)
		return
	}
	if !reserved {
		g.answerDuplicate(w, r, key, fingerprint)
		return
	}

	finished := false
	defer func() {
		if !finished {
			g.forget(ctx, key)
		}
	}()

	capture := &captureWriter{ResponseWriter: w}
	next.ServeHTTP(capture, r)
	finished = true

	status := capture.statusCode()
	if status >= http.StatusInternalServerError {
		g.forget(ctx, key)
		return
	}
	g.remember(ctx, key, ttl, storedResponse{
		Status:      status,
		ContentType: capture.Header().Get("Content-Type"),
		Body:        capture.body.Bytes(),
		Fingerprint: fingerprint,
	})
}

func (g idempotencyGuard) reserve(ctx context.Context, key, fingerprint string) (bool, error) {
	marker, err := json.Marshal(storedResponse{Fingerprint: fingerprint, InFlight: true})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency marker")
	}
	ok, err := g.store.SetNX(ctx, key, string(marker), inFlightTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return ok, nil
}

func (g idempotencyGuard) answerDuplicate(w http.ResponseWriter, r *http.Request, key, fingerprint string) {
	ctx := r.Context()
	prior, err := g.lookup(ctx, key)
	switch {
	case err != nil:
		responses.WriteError(ctx, g.logg, w, err)
	case prior == nil:
		// reservation expired between SetNX and Get
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotency key busy, retry the request"))
	case prior.Fingerprint != fingerprint:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case prior.InFlight:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this idempotency key is still in progress"))
	default:
		prior.writeTo(w)
	}
}

func (g idempotencyGuard) lookup(ctx context.Context, key string) (*storedResponse, error) {
	raw, err := g.store.Get(ctx, key)
	if errors.Is(err, redis.Nil) || (err == nil && raw == "") {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency")
	}
	var stored storedResponse
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record")
	}
	return &stored, nil
}

// remember replaces the reservation with the response. On failure the
// marker expires after inFlightTTL and retries run the handler again.
func (g idempotencyGuard) remember(ctx context.Context, key string, ttl time.Duration, resp storedResponse) {
	payload, err := json.Marshal(resp)
	if err == nil {
		err = g.store.Set(ctx, key, string(payload), ttl)
	}
	if err != nil && g.logg != nil {
		g.logg.Error(ctx, "persist idempotency record", err)
	}
}

func (g idempotencyGuard) forget(ctx context.Context, key string) {
	if err := g.store.Del(ctx, key); err != nil && g.logg != nil {
		g.logg.Error(ctx, "release idempotency key", err)
	}
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type captureWriter struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *captureWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *captureWriter) statusCode() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
