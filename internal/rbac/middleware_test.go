package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/age-b2b/backoffice/internal/shared"
)

type stubSessions map[string]shared.Principal

func (s stubSessions) Resolve(_ context.Context, token string) (shared.Principal, error) {
	p, ok := s[token]
	if !ok {
		return shared.Principal{}, shared.ErrUnauthenticated
	}
	return p, nil
}

func newTestMiddleware() Middleware {
	return Middleware{Sessions: stubSessions{
		"client-token": shared.ClientPrincipal(7),
		"staff-token":  shared.StaffPrincipal(1),
	}}
}

func okHandler(t *testing.T, want shared.Principal) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, want, Principal(r))
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthenticateRejectsMissingToken(t *testing.T) {
	mw := newTestMiddleware()
	rec := httptest.NewRecorder()
	mw.Authenticate(okHandler(t, shared.Principal{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
}

func TestAuthenticateAcceptsBearerAndCookie(t *testing.T) {
	mw := newTestMiddleware()

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer client-token")
	rec := httptest.NewRecorder()
	mw.Authenticate(okHandler(t, shared.ClientPrincipal(7))).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/admin/orders", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "staff-token"})
	rec = httptest.NewRecorder()
	mw.Authenticate(okHandler(t, shared.StaffPrincipal(1))).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRequireAudience(t *testing.T) {
	mw := newTestMiddleware()
	cases := []struct {
		name    string
		token   string
		staff   bool
		expects int
	}{
		{"client on client route", "client-token", false, http.StatusNoContent},
		{"staff on client route", "staff-token", false, http.StatusForbidden},
		{"staff on admin route", "staff-token", true, http.StatusNoContent},
		{"client on admin route", "client-token", true, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var final http.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
			if tc.staff {
				final = mw.RequireStaff(final)
			} else {
				final = mw.RequireClient(final)
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tc.token)
			rec := httptest.NewRecorder()
			mw.Authenticate(final).ServeHTTP(rec, req)
			assert.Equal(t, tc.expects, rec.Code)
		})
	}
}
