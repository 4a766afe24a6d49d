package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vacvault/vacvault-api/internal/api/http/handlers"
	"github.com/vacvault/vacvault-api/internal/auth"
	"github.com/vacvault/vacvault-api/internal/config"
	"github.com/vacvault/vacvault-api/internal/domain"
	"github.com/vacvault/vacvault-api/internal/events"
	"github.com/vacvault/vacvault-api/internal/mail"
	"github.com/vacvault/vacvault-api/internal/observability"
	"github.com/vacvault/vacvault-api/internal/persistence"
	"github.com/vacvault/vacvault-api/internal/repository"
	"github.com/vacvault/vacvault-api/internal/service"
)

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
}

func (o *outbox) Send(_ context.Context, msg mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, msg)
	return nil
}

func (o *outbox) lastOTP(t *testing.T, to string) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.msgs) - 1; i >= 0; i-- {
		if o.msgs[i].To == to {
			return strings.TrimPrefix(o.msgs[i].Body, "Your OTP is ")
		}
	}
	t.Fatalf("no mail sent to %s", to)
	return ""
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app    *fiber.App
	repo   repository.UserRepository
	tokens *auth.TokenManager
	mail   *outbox
}

func newTestServer(t *testing.T, deps map[string]handlers.Pinger) *testServer {
	t.Helper()
	cfg := config.Config{
		App:  config.AppConfig{Name: "vacvault-api", Env: "test"},
		Auth: config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: 4},
		OTP:  config.OTPConfig{ValidityMinutes: 60},
	}
	logger := zap.NewNop()
	metrics := observability.NewMetrics("test")
	repo := repository.NewMemoryUserRepository(4)
	dispatcher := events.NewInMemoryDispatcher()
	sent := &outbox{}
	service.NewNotificationService(dispatcher, mail.NewDirectQueue(sent), metrics, logger).RegisterHandlers()

	authSvc := service.NewAuthService(cfg, service.AuthDependencies{
		UserRepo:   repo,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	RegisterMiddlewares(app, logger, metrics, MiddlewareConfig{CORSOrigins: "http://localhost:3000"})
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("vacvault-api", "test", deps),
		Auth:           handlers.NewAuthHandler(authSvc),
		Users:          handlers.NewUsersHandler(service.NewUserService(repo, logger)),
		AuthMiddleware: auth.NewAuthMiddleware(authSvc.TokenManager()),
		Metrics:        metrics.Handler(),
	})
	return &testServer{app: app, repo: repo, tokens: authSvc.TokenManager(), mail: sent}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func registerBody(email string) map[string]any {
	return map[string]any{
		"first_name":   "Ngozi",
		"last_name":    "Okafor",
		"email":        email,
		"phone_number": "+2348012345678",
		"password":     "s3cret-pw",
		"country":      "Nigeria",
		"city":         "Lagos",
	}
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t, nil)
	const email = "ngozi@example.com"

	status, body := s.do(t, http.MethodPost, "/api/auth/register", "", registerBody(email))
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, body["msg"], "Check your email")

	status, body = s.do(t, http.MethodPost, "/api/auth/register", "", registerBody(email))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "DUPLICATE_USER", errorCode(body))

	creds := map[string]any{"email": email, "password": "s3cret-pw"}
	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", creds)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "EMAIL_NOT_VERIFIED", errorCode(body))

	otp := s.mail.lastOTP(t, email)
	status, _ = s.do(t, http.MethodPost, "/api/auth/verify-email", "", map[string]any{"email": email, "otp": otp})
	require.Equal(t, http.StatusOK, status)

	status, body = s.do(t, http.MethodPost, "/api/auth/login", "", creds)
	require.Equal(t, http.StatusOK, status)
	token, _ := body["token"].(string)
	require.NotEmpty(t, token)

	claims, err := s.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, claims.Role)

	status, body = s.do(t, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	data, _ := body["data"].(map[string]any)
	assert.Equal(t, email, data["email"])
	assert.NotContains(t, data, "password_hash")
	assert.NotContains(t, data, "email_verification_otp")

	status, body = s.do(t, http.MethodGet, "/api/users", token, nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "FORBIDDEN", errorCode(body))
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t, nil)
	const email = "reset@example.com"

	_, _ = s.do(t, http.MethodPost, "/api/auth/register", "", registerBody(email))
	otp := s.mail.lastOTP(t, email)
	_, _ = s.do(t, http.MethodPost, "/api/auth/verify-email", "", map[string]any{"email": email, "otp": otp})

	status, _ := s.do(t, http.MethodPost, "/api/auth/request-password-reset", "", map[string]any{"email": email})
	require.Equal(t, http.StatusOK, status)
	resetOTP := s.mail.lastOTP(t, email)

	status, _ = s.do(t, http.MethodPost, "/api/auth/verify-password-reset-otp", "", map[string]any{"email": email, "otp": resetOTP})
	require.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/auth/set-new-password", "",
		map[string]any{"email": email, "otp": resetOTP, "newPassword": "fresh-pass"})
	require.Equal(t, http.StatusOK, status)

	status, body := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": email, "password": "s3cret-pw"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_CREDENTIALS", errorCode(body))

	status, _ = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]any{"email": email, "password": "fresh-pass"})
	assert.Equal(t, http.StatusOK, status)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t, nil)
	req := registerBody("bad@example.com")
	req["phone_number"] = "0801234"

	status, body := s.do(t, http.MethodPost, "/api/auth/register", "", req)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", errorCode(body))
	details, _ := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "phone_number")
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	ctx := context.Background()

	admin := &domain.User{FirstName: "Ada", LastName: "Root", Email: "root@example.com", Role: domain.RoleAdmin}
	admin.SetPassword("pa55word")
	require.NoError(t, s.repo.Save(ctx, admin))
	member := &domain.User{FirstName: "Bola", LastName: "User", Email: "bola@example.com"}
	member.SetPassword("pa55word")
	require.NoError(t, s.repo.Save(ctx, member))

	token, _, err := s.tokens.Issue(admin.ID, domain.RoleAdmin)
	require.NoError(t, err)

	status, body := s.do(t, http.MethodGet, "/api/users", token, nil)
	require.Equal(t, http.StatusOK, status)
	users, _ := body["data"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "bola@example.com", users[0].(map[string]any)["email"])

	status, body = s.do(t, http.MethodGet, "/api/users/admins", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = s.do(t, http.MethodGet, "/api/users/"+member.ID, token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Bola", body["data"].(map[string]any)["first_name"])

	status, body = s.do(t, http.MethodGet, "/api/users/not-a-user", token, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestEditUser(t *testing.T) {
	s := newTestServer(t, nil)
	u := &domain.User{FirstName: "Chidi", LastName: "Nwosu", Email: "chidi@example.com", Country: "Nigeria", City: "Aba"}
	u.SetPassword("pa55word")
	require.NoError(t, s.repo.Save(context.Background(), u))
	token, _, err := s.tokens.Issue(u.ID, domain.RoleUser)
	require.NoError(t, err)

	status, body := s.do(t, http.MethodPut, "/api/users/edit", token, map[string]any{"city": "Owerri"})

	require.Equal(t, http.StatusOK, status)
	data := body["data"].(map[string]any)
	assert.Equal(t, "Owerri", data["city"])
	assert.Equal(t, "Chidi", data["first_name"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/api/users/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "MISSING_TOKEN", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/api/users/me", "not.a.jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_TOKEN", errorCode(body))
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodGet, "/api/nowhere", "", nil)

	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, map[string]handlers.Pinger{
		"postgres": stubPinger{},
		"redis":    stubPinger{err: errors.New("connection refused")},
	})

	status, body := s.do(t, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alive", body["status"])

	status, body = s.do(t, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "DEPENDENCY_UNAVAILABLE", errorCode(body))

	resp, err := s.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "http_requests_total")
}

func TestReady_UnconfiguredDependenciesAreDisabled(t *testing.T) {
	s := newTestServer(t, map[string]handlers.Pinger{
		"postgres": &persistence.Postgres{},
		"redis":    &persistence.Redis{},
	})

	status, body := s.do(t, http.MethodGet, "/health/ready", "", nil)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])
	assert.Equal(t, map[string]any{"postgres": "disabled", "redis": "disabled"}, body["dependencies"])
}
