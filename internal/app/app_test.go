package app

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/age-b2b/backoffice/internal/observability"
	"github.com/age-b2b/backoffice/internal/rbac"
	"github.com/age-b2b/backoffice/internal/reporting"
	"github.com/age-b2b/backoffice/internal/shared"
)

type tokenSessions map[string]shared.Principal

func (s tokenSessions) Resolve(_ context.Context, token string) (shared.Principal, error) {
	p, ok := s[token]
	if !ok {
		return shared.Principal{}, shared.ErrUnauthenticated
	}
	return p, nil
}

type emptyReports struct{}

func (emptyReports) Dashboard(_ context.Context, scope reporting.Scope) (reporting.Dashboard, error) {
	return reporting.Dashboard{ClientID: scope.ClientID, OrderCounts: map[string]int64{}}, nil
}

func (emptyReports) DeliveredOrders(context.Context, reporting.SettlementFilter) ([]reporting.SettlementOrder, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, cfg *Config) http.Handler {
	t.Helper()
	sessions := tokenSessions{
		"client-token": shared.ClientPrincipal(7),
		"staff-token":  shared.StaffPrincipal(1),
	}
	reports := reporting.NewHandler(nil, reporting.NewService(emptyReports{}, nil, nil, nil))
	return NewRouter(RouterParams{
		Logger:           newLogger(nil, &bytes.Buffer{}),
		Config:           cfg,
		RBAC:             rbac.Middleware{Sessions: sessions},
		ReportingHandler: reports,
		Metrics:          observability.NewMetrics(),
	})
}

func get(h http.Handler, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t, &Config{RateLimitPerMinute: 100})

	rr := get(h, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = get(h, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `backoffice_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRouterAudiences(t *testing.T) {
	h := newTestRouter(t, &Config{RateLimitPerMinute: 100})

	assert.Equal(t, http.StatusUnauthorized, get(h, "/api/dashboard", "").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/dashboard", "client-token").Code)
	assert.Equal(t, http.StatusForbidden, get(h, "/api/dashboard", "staff-token").Code)
	assert.Equal(t, http.StatusOK, get(h, "/api/admin/dashboard", "staff-token").Code)
	assert.Equal(t, http.StatusForbidden, get(h, "/api/admin/settlements", "client-token").Code)
}

func TestRouterNotFoundIsProblem(t *testing.T) {
	h := newTestRouter(t, &Config{RateLimitPerMinute: 100})

	rr := get(h, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
}

func TestRouterRateLimit(t *testing.T) {
	h := newTestRouter(t, &Config{RateLimitPerMinute: 2})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		codes = append(codes, get(h, "/healthz", "").Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestConfigValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			PGDSN:              "postgres://localhost/backoffice",
			PGMaxConns:         4,
			RateLimitPerMinute: 60,
			BusinessTimezone:   "Asia/Seoul",
			NotifyLanguage:     "ko",
		}
	}
	base := valid()
	require.NoError(t, base.Validate())
	assert.Equal(t, "Asia/Seoul", base.Location().String())
	assert.Equal(t, "ko", base.Language().String())

	cases := map[string]func(*Config){
		"missing dsn":  func(c *Config) { c.PGDSN = " " },
		"zero rate":    func(c *Config) { c.RateLimitPerMinute = 0 },
		"zero conns":   func(c *Config) { c.PGMaxConns = 0 },
		"bad timezone": func(c *Config) { c.BusinessTimezone = "Mars/Olympus" },
		"bad language": func(c *Config) { c.NotifyLanguage = "not a tag!" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "10 0 * * *", cfg.RegradeCron)
	assert.Equal(t, 300, cfg.RateLimitPerMinute)
}

func TestLoggerLevelAndFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.Contains(out, `"msg":"shown"`))
}

func TestInTestModeReadsEnvironment(t *testing.T) {
	t.Setenv("BACKOFFICE_TEST_MODE", "1")
	RefreshTestMode()
	assert.True(t, InTestMode())

	t.Setenv("BACKOFFICE_TEST_MODE", "")
	RefreshTestMode()
	assert.False(t, InTestMode())
}
