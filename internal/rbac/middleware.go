// Package rbac authenticates callers and enforces the client/staff split of the HTTP surface.
package rbac

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/age-b2b/backoffice/internal/platform/httpx"
	"github.com/age-b2b/backoffice/internal/shared"
)

// SessionResolver resolves bearer tokens to principals.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (shared.Principal, error)
}

// SessionCookie is the cookie consulted when no Authorization header is sent.
const SessionCookie = "backoffice_session"

// Middleware wires authentication and audience checks for HTTP handlers.
type Middleware struct {
	Sessions SessionResolver
	Logger   *slog.Logger
}

// Authenticate resolves the session token and stores the principal in the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := m.Sessions.Resolve(r.Context(), tokenFromRequest(r))
		if err != nil {
			if !errors.Is(err, shared.ErrUnauthenticated) && m.Logger != nil {
				m.Logger.Error("rbac resolve session", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
	})
}

// RequireClient admits client principals only.
func (m Middleware) RequireClient(next http.Handler) http.Handler {
	return m.require(shared.PrincipalClient, next)
}

// RequireStaff admits staff principals only.
func (m Middleware) RequireStaff(next http.Handler) http.Handler {
	return m.require(shared.PrincipalStaff, next)
}

func (m Middleware) require(kind shared.PrincipalKind, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := shared.PrincipalFromContext(r.Context())
		if !ok {
			httpx.RespondError(w, shared.ErrUnauthenticated)
			return
		}
		if p.Kind != kind {
			httpx.RespondError(w, shared.Errorf(shared.ErrForbidden, "%s access only", kind))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Principal returns the authenticated caller. Handlers mounted behind Authenticate always have one.
func Principal(r *http.Request) shared.Principal {
	p, _ := shared.PrincipalFromContext(r.Context())
	return p
}

func tokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}
