package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/phoneauth"
)

type sessionContextKey struct{}

// SessionResolver resolves an access token to its session. [*phoneauth.Engine]
// satisfies it.
type SessionResolver interface {
	CurrentSession(ctx context.Context, accessToken string) (*phoneauth.SessionInfo, error)
}

// SessionFromContext returns the session attached by [RequireSession].
func SessionFromContext(ctx context.Context) (*phoneauth.SessionInfo, bool) {
	info, ok := ctx.Value(sessionContextKey{}).(*phoneauth.SessionInfo)
	return info, ok && info != nil
}

// WithSession attaches info to ctx the way [RequireSession] does.
func WithSession(ctx context.Context, info *phoneauth.SessionInfo) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, info)
}

// RequireSession rejects requests without a valid bearer access token with
// 401. Resolver failures are answered with 500. On success the session,
// client IP, and user agent are attached to the request context.
func RequireSession(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := RequestContext(r)
			info, err := resolver.CurrentSession(ctx, token)
			if err != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if info == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(ctx, info)))
		})
	}
}

// RequireRole lets a request through only when the session attached by
// [RequireSession] carries one of roles. It must run after RequireSession.
func RequireRole(roles ...phoneauth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info, ok := SessionFromContext(r.Context())
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if info.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

// RequestContext returns the request context carrying the caller's IP and
// user agent for engine calls.
func RequestContext(r *http.Request) context.Context {
	ctx := r.Context()
	if ip := clientIP(r.RemoteAddr); ip != "" {
		ctx = phoneauth.WithClientIP(ctx, ip)
	}
	if ua := r.UserAgent(); ua != "" {
		ctx = phoneauth.WithUserAgent(ctx, ua)
	}
	return ctx
}

func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func bearerToken(value string) (string, bool) {
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}
