package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/teamchat/internal/api"
	"github.com/charlesng35/teamchat/internal/app"
	iauth "github.com/charlesng35/teamchat/internal/auth"
	sharedtestutil "github.com/charlesng35/teamchat/internal/database/testutil"
	"github.com/charlesng35/teamchat/internal/middleware"
	"github.com/charlesng35/teamchat/pkg/mail"
	"github.com/charlesng35/teamchat/pkg/response"
)

// BaseURL is the invite link base configured for handler tests.
const BaseURL = "https://chat.example.com/invite"

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T        *testing.T
	DB       *gorm.DB
	Router   *gin.Engine
	JWT      *iauth.JWTService
	Services *api.Services
	Mailer   *Mailer
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Server: app.ServerConfig{BaseURL: BaseURL},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	mailer := &Mailer{}
	svc, err := api.NewServices(db, mailer, cfg)
	require.NoError(t, err)

	router, err := api.NewRouter(db, jwtSvc, cfg, svc, middleware.NewMemoryRateStore())
	require.NoError(t, err)

	return &Env{
		T:        t,
		DB:       db,
		Router:   router,
		JWT:      jwtSvc,
		Services: svc,
		Mailer:   mailer,
	}
}

// Mailer records outgoing messages instead of delivering them.
type Mailer struct {
	mu       sync.Mutex
	messages []mail.Message
}

// Send implements mail.Mailer.
func (m *Mailer) Send(_ context.Context, msg mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *Mailer) Sent() []mail.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Message(nil), m.messages...)
}

// UserPayload captures the user fields returned from auth endpoints.
type UserPayload struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	IsActive    bool   `json:"is_active"`
}

// TokenPayload mirrors an issued access token.
type TokenPayload struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Session bundles the JSON response from register and login.
type Session struct {
	Token TokenPayload `json:"token"`
	User  UserPayload  `json:"user"`
}

// Register creates an account through POST /api/auth/register and returns its session.
func (e *Env) Register(email, password, displayName string) Session {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/register", map[string]string{
		"email":        email,
		"password":     password,
		"display_name": displayName,
	}, "")
	require.Equal(e.T, http.StatusCreated, w.Code, w.Body.String())

	return e.decodeSession(w)
}

// Login authenticates through POST /api/auth/login and returns the issued session.
func (e *Env) Login(email, password string) Session {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	return e.decodeSession(w)
}

func (e *Env) decodeSession(w *httptest.ResponseRecorder) Session {
	e.T.Helper()

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var session Session
	DecodeInto(e.T, resp.Data, &session)
	require.NotEmpty(e.T, session.Token.AccessToken)
	require.NotEmpty(e.T, session.User.ID)
	return session
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// RequireError asserts the recorder holds an error envelope with the given status and code.
func RequireError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())

	resp := DecodeResponse(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error, w.Body.String())
	require.Equal(t, code, resp.Error.Code, w.Body.String())
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
