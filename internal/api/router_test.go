package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/app"
	iauth "github.com/charlesng35/teamchat/internal/auth"
	testutil "github.com/charlesng35/teamchat/internal/database/testutil"
)

func newTestRouter(t *testing.T, mutate func(*app.Config)) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	cfg := &app.Config{}
	cfg.Server.BaseURL = "https://chat.example.com/invite"
	cfg.Monitoring.Prometheus.Enabled = true
	if mutate != nil {
		mutate(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "test", AccessTokenTTL: time.Hour})
	require.NoError(t, err)

	svc, err := NewServices(db, nil, cfg)
	require.NoError(t, err)

	router, err := NewRouter(db, jwtSvc, cfg, svc, nil)
	require.NoError(t, err)
	return router, db
}

func serve(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicAndProtectedRoutes(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/auth/me"},
		{http.MethodGet, "/api/workspaces"},
		{http.MethodPost, "/api/workspaces"},
		{http.MethodGet, "/api/workspaces/ws/members"},
		{http.MethodPost, "/api/workspaces/ws/invites"},
		{http.MethodPost, "/api/workspaces/ws/invites/link"},
		{http.MethodDelete, "/api/invites/inv"},
		{http.MethodPost, "/api/invites/cancel"},
		{http.MethodGet, "/api/conversations"},
		{http.MethodPost, "/api/conversations/c/messages"},
		{http.MethodGet, "/api/channels/ch/messages"},
	}
	for _, tc := range protected {
		w := serve(router, tc.method, tc.path)
		require.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", tc.method, tc.path)
	}

	// public invite lookup reaches the handler
	lookup := serve(router, http.MethodGet, "/api/auth/invites/unknown")
	require.Equal(t, http.StatusNotFound, lookup.Code)
	require.Contains(t, lookup.Body.String(), "INVITE_NOT_FOUND")
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	// generate at least one request so the HTTP collectors have samples
	serve(router, http.MethodGet, "/health")

	w := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	require.True(t, strings.Contains(w.Body.String(), "teamchat_api_latency_seconds"), "expected latency histogram in metrics output")
}

func TestRouter_MetricsDisabled(t *testing.T) {
	router, _ := newTestRouter(t, func(cfg *app.Config) {
		cfg.Monitoring.Prometheus.Enabled = false
	})

	w := serve(router, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Contains(t, w.Body.String(), "ROUTE_NOT_FOUND")
}

func TestRouter_RateLimit(t *testing.T) {
	router, _ := newTestRouter(t, func(cfg *app.Config) {
		cfg.Server.RateLimit.Requests = 2
		cfg.Server.RateLimit.Window = time.Minute
	})

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health").Code)

	limited := serve(router, http.MethodGet, "/health")
	require.Equal(t, http.StatusTooManyRequests, limited.Code)
	require.NotEmpty(t, limited.Header().Get("Retry-After"))
}

func TestNewRouterRequiresDependencies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "s"})
	require.NoError(t, err)
	cfg := &app.Config{}
	svc, err := NewServices(db, nil, cfg)
	require.NoError(t, err)

	_, err = NewRouter(nil, jwtSvc, cfg, svc, nil)
	require.Error(t, err)
	_, err = NewRouter(db, nil, cfg, svc, nil)
	require.Error(t, err)
	_, err = NewRouter(db, jwtSvc, nil, svc, nil)
	require.Error(t, err)
	_, err = NewRouter(db, jwtSvc, cfg, nil, nil)
	require.EqualError(t, err, "services must be provided")
	_, err = NewRouter(db, jwtSvc, cfg, &Services{Users: svc.Users}, nil)
	require.EqualError(t, err, "workspace service must be provided")
}
