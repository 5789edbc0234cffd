package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/paygw-mollie/internal/http/response"
	"github.com/sandeepkv93/paygw-mollie/internal/observability"
	"github.com/sandeepkv93/paygw-mollie/internal/security"
	"github.com/sandeepkv93/paygw-mollie/internal/service"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	idempotencyReplayedHeader = "X-Idempotency-Replayed"
	maxIdempotentBodyBytes    = 1 << 20
	maxIdempotencyKeyLength   = 128
)

// IdempotencyMiddleware replays the first response for a repeated Idempotency-Key. Requests
// without the header pass straight through. The scope is prefixed with the payer id so keys
// never collide between users.
func IdempotencyMiddleware(store service.IdempotencyStore, scope string, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLength {
				response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "Idempotency-Key too long", nil)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotentBodyBytes+1))
			if err != nil || len(body) > maxIdempotentBodyBytes {
				response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fullScope := scope
			if id, ok := PayerIDFromContext(r.Context()); ok {
				fullScope = scope + ":" + strconv.FormatUint(uint64(id), 10)
			}
			fingerprint := security.HashFingerprint(r.Method, r.URL.Path, string(body))

			begin, err := store.Begin(r.Context(), fullScope, key, fingerprint, ttl)
			if err != nil {
				slog.ErrorContext(r.Context(), "idempotency begin failed", "scope", fullScope, "error", err)
				observability.RecordIdempotencyEvent(r.Context(), scope, "store_error")
				response.Error(w, r, http.StatusServiceUnavailable, "DEPENDENCY_UNREADY", "idempotency store unavailable", nil)
				return
			}
			observability.RecordIdempotencyEvent(r.Context(), scope, string(begin.State))

			switch begin.State {
			case service.IdempotencyStateReplay:
				if begin.Cached == nil {
					response.Error(w, r, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "request with this Idempotency-Key is still in progress", nil)
					return
				}
				if begin.Cached.ContentType != "" {
					w.Header().Set("Content-Type", begin.Cached.ContentType)
				}
				w.Header().Set(idempotencyReplayedHeader, "true")
				w.WriteHeader(begin.Cached.StatusCode)
				_, _ = w.Write(begin.Cached.Body)
				return
			case service.IdempotencyStateConflict:
				response.Error(w, r, http.StatusConflict, "CONFLICT", "Idempotency-Key reused with a different request", nil)
				return
			case service.IdempotencyStateInProgress:
				response.Error(w, r, http.StatusConflict, "IDEMPOTENCY_IN_PROGRESS", "request with this Idempotency-Key is still in progress", nil)
				return
			}

			rec := &capturingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if err := store.Complete(r.Context(), fullScope, key, fingerprint, service.CachedHTTPResponse{
				StatusCode:  rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			}, ttl); err != nil {
				slog.WarnContext(r.Context(), "idempotency complete failed", "scope", fullScope, "error", err)
			}
		})
	}
}

type capturingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capturingWriter) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *capturingWriter) Write(p []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(p)
	return c.ResponseWriter.Write(p)
}
