package middleware

import (
	"context"
	"net/http"

	"github.com/sandeepkv93/paygw-mollie/internal/http/response"
	"github.com/sandeepkv93/paygw-mollie/internal/security"
)

type contextKey string

const payerIDKey contextKey = "payer_id"

// PayerIDFromContext returns the user id AuthMiddleware stored on the request.
func PayerIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(payerIDKey).(uint)
	return id, ok && id != 0
}

func WithPayerID(ctx context.Context, id uint) context.Context {
	return context.WithValue(ctx, payerIDKey, id)
}

// AuthMiddleware accepts the host platform's access token from the cookie or a bearer
// header. Cookie-authenticated writes must also pass the CSRF double-submit check.
func AuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fromCookie := security.GetCookie(r, security.AccessTokenCookie) != ""
			raw := bearerOrCookieToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			claims, err := jwtMgr.ParseAccessToken(raw)
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired access token", nil)
				return
			}
			userID, err := claims.UserID()
			if err != nil {
				response.Error(w, r, http.StatusUnauthorized, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired access token", nil)
				return
			}
			if fromCookie && !isSafeMethod(r.Method) {
				if err := security.RequireCSRFFromHeader(r); err != nil {
					response.Error(w, r, http.StatusForbidden, "FORBIDDEN", "csrf validation failed", nil)
					return
				}
			}
			next.ServeHTTP(w, r.WithContext(WithPayerID(r.Context(), userID)))
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}
