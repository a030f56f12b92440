package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/redmonkez12/go-session-auth/internal/httputil"
	"github.com/redmonkez12/go-session-auth/internal/logging"
	"github.com/redmonkez12/go-session-auth/internal/user"
)

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	SessionContextKey ContextKey = "session"
	UserContextKey    ContextKey = "user"
)

// Middleware handles authentication for protected routes
type Middleware struct {
	service *Service
}

func NewMiddleware(service *Service) *Middleware {
	return &Middleware{service: service}
}

// RequireSession validates the session cookie and stores the session and its
// user in the request context. Extended sessions get a refreshed cookie;
// invalid ones get the cookie cleared.
func (m *Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessions := m.service.Sessions()
		logger := logging.GetLoggerFromContext(r.Context())

		sessionID, ok := sessions.SessionIDFromRequest(r)
		if !ok {
			if _, err := r.Cookie(sessions.cookie.Name); err == nil {
				SetCookie(w, sessions.BlankCookie())
			}
			httputil.RespondErrorWithCode(w, UserMessage(ErrUnauthorized), httputil.CodeUnauthorized, http.StatusUnauthorized)
			return
		}

		session, u, err := m.service.CurrentUser(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				SetCookie(w, sessions.BlankCookie())
				httputil.RespondErrorWithCode(w, UserMessage(err), httputil.CodeUnauthorized, http.StatusUnauthorized)
				return
			}
			logger.Error("session validation failed", "error", err.Error())
			httputil.RespondErrorWithCode(w, UserMessage(err), httputil.CodeInternalError, http.StatusInternalServerError)
			return
		}

		if session.Fresh {
			cookie, err := sessions.SessionCookie(session)
			if err != nil {
				logger.Error("failed to refresh session cookie", "error", err.Error())
			} else {
				SetCookie(w, cookie)
			}
		}

		ctx := context.WithValue(r.Context(), SessionContextKey, session)
		ctx = context.WithValue(ctx, UserContextKey, u)
		ctx = logging.WithLogger(ctx, logger.WithFields(map[string]any{"user_id": u.ID}))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext extracts the session from the request context
func SessionFromContext(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(SessionContextKey).(*Session)
	return session, ok
}

// UserFromContext extracts the signed-in user from the request context
func UserFromContext(ctx context.Context) (*user.User, bool) {
	u, ok := ctx.Value(UserContextKey).(*user.User)
	return u, ok
}
