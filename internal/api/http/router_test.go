package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/photobooth-auth/internal/api/http/handlers"
	"github.com/spec-kit/photobooth-auth/internal/auth"
	"github.com/spec-kit/photobooth-auth/internal/config"
	"github.com/spec-kit/photobooth-auth/internal/domain"
	"github.com/spec-kit/photobooth-auth/internal/observability"
	"github.com/spec-kit/photobooth-auth/internal/persistence"
	"github.com/spec-kit/photobooth-auth/internal/service"
)

const testCSRFSecret = "0123456789abcdef0123456789abcdef"

// memUserRepo and memTokenRepo mirror the pgx repositories for transport
// level tests.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (r *memUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = uuid.NewString()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			clone := *user
			return &clone, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (r *memUserRepo) setRole(t *testing.T, email string, role domain.Role) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			user.Role = role
			return
		}
	}
	t.Fatalf("no user with email %s", email)
}

type memTokenRepo struct {
	mu      sync.Mutex
	records map[string]*domain.RefreshTokenRecord
}

func (r *memTokenRepo) Create(_ context.Context, record *domain.RefreshTokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = uuid.NewString()
	clone := *record
	r.records[record.Token] = &clone
	return nil
}

func (r *memTokenRepo) GetByTokenAndUser(_ context.Context, token, userID string) (*domain.RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[token]
	if !ok || record.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	clone := *record
	return &clone, nil
}

func (r *memTokenRepo) ConsumeByTokenAndUser(_ context.Context, token, userID string) (*domain.RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[token]
	if !ok || record.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	delete(r.records, token)
	return record, nil
}

func (r *memTokenRepo) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, token)
	return nil
}

func (r *memTokenRepo) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, record := range r.records {
		if record.UserID == userID {
			delete(r.records, token)
		}
	}
	return nil
}

func (r *memTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for token, record := range r.records {
		if now.After(record.ExpiresAt) {
			delete(r.records, token)
			deleted++
		}
	}
	return deleted, nil
}

type testEnv struct {
	app   *fiber.App
	users *memUserRepo
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := &memUserRepo{users: make(map[string]*domain.User)}
	tokens := &memTokenRepo{records: make(map[string]*domain.RefreshTokenRecord)}
	logger := zap.NewNop()

	authService, err := service.NewAuthService(config.AuthConfig{
		JWTSecret:       "test-jwt-secret",
		JWESecret:       "test-jwe-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		BcryptCost:      bcrypt.MinCost,
	}, service.AuthDependencies{
		UserRepo:         users,
		RefreshTokenRepo: tokens,
		Logger:           logger,
	})
	require.NoError(t, err)

	csrfMiddleware, err := NewCSRFMiddleware(testCSRFSecret, false, 24*time.Hour,
		authService.TokenManager(), authService.Encryptor(), logger)
	require.NoError(t, err)

	app := fiber.New()
	RegisterMiddlewares(app, logger, observability.NewMetrics(), 0)
	RegisterRoutes(app, RouteConfig{
		Health:     handlers.NewHealthHandler("photobooth-auth-test", "dev", &persistence.Postgres{}, &persistence.Redis{}),
		Auth:       handlers.NewAuthHandler(authService, logger, CSRFTokenFromContext, false),
		CookieAuth: auth.NewCookieAuth(authService.TokenManager()),
		CSRF:       csrfMiddleware,
		Limiter:    nil,
	})

	return &testEnv{app: app, users: users}
}

// client keeps a cookie jar across requests, the way a browser would.
type testClient struct {
	t       *testing.T
	app     *fiber.App
	cookies map[string]string
}

func newTestClient(t *testing.T, app *fiber.App) *testClient {
	return &testClient{t: t, app: app, cookies: make(map[string]string)}
}

func (c *testClient) do(method, path string, body any, header map[string]string) (*http.Response, map[string]any) {
	c.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(c.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for name, value := range c.cookies {
		req.AddCookie(&http.Cookie{Name: name, Value: value})
	}
	for name, value := range header {
		req.Header.Set(name, value)
	}

	resp, err := c.app.Test(req, -1)
	require.NoError(c.t, err)

	for _, cookie := range resp.Cookies() {
		if cookie.MaxAge < 0 || cookie.Value == "" {
			delete(c.cookies, cookie.Name)
			continue
		}
		c.cookies[cookie.Name] = cookie.Value
	}

	var parsed map[string]any
	raw, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	if len(raw) > 0 {
		require.NoError(c.t, json.Unmarshal(raw, &parsed), "body: %s", raw)
	}
	return resp, parsed
}

// fetchCSRF refreshes the double-submit cookie for the client's current
// identity and returns the header value to echo.
func (c *testClient) fetchCSRF() string {
	c.t.Helper()
	resp, body := c.do(http.MethodGet, "/auth/csrf", nil, nil)
	require.Equal(c.t, http.StatusOK, resp.StatusCode)
	token, _ := body["csrfToken"].(string)
	require.NotEmpty(c.t, token)
	return token
}

func (c *testClient) register(email string) (*http.Response, map[string]any) {
	csrf := c.fetchCSRF()
	return c.do(http.MethodPost, "/auth/register",
		map[string]string{"name": "Booth", "email": email, "password": "hunter22"},
		map[string]string{"X-CSRF-Token": csrf})
}

func (c *testClient) login(email, password string) (*http.Response, map[string]any) {
	csrf := c.fetchCSRF()
	return c.do(http.MethodPost, "/auth/login",
		map[string]string{"email": email, "password": password},
		map[string]string{"X-CSRF-Token": csrf})
}

func TestRegisterSetsCookiesAndReturnsUser(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	resp, body := client.register("booth@example.com")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	user, ok := body["user"].(map[string]any)
	require.True(t, ok)
	assert.NotEmpty(t, user["id"])
	assert.Equal(t, "booth@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
	assert.NotEmpty(t, body["csrfToken"])

	assert.NotEmpty(t, client.cookies[auth.CookieAccessToken])
	assert.NotEmpty(t, client.cookies[auth.CookieRefreshToken])
	assert.NotEmpty(t, client.cookies[auth.CookieCSRFToken])
}

func TestCSRFMissingTokenRejectedBeforeHandler(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	resp, body := client.do(http.MethodPost, "/auth/register",
		map[string]string{"name": "Booth", "email": "booth@example.com", "password": "hunter22"}, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	errObj, _ := body["error"].(map[string]any)
	assert.Equal(t, "CSRF_FAILED", errObj["code"])

	// no state mutation happened
	_, err := env.users.GetByEmail(context.Background(), "booth@example.com")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestCSRFMismatchedTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	client.fetchCSRF()
	other := newTestClient(t, env.app)
	foreign := other.fetchCSRF()

	// header token from another session does not match this session's cookie
	resp, _ := client.do(http.MethodPost, "/auth/register",
		map[string]string{"name": "Booth", "email": "booth@example.com", "password": "hunter22"},
		map[string]string{"X-CSRFToken": foreign, "X-CSRF-Token": foreign})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCSRFTokenInBodyAccepted(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	csrf := client.fetchCSRF()
	resp, _ := client.do(http.MethodPost, "/auth/register",
		map[string]string{"name": "Booth", "email": "booth@example.com", "password": "hunter22", "csrfToken": csrf},
		nil)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	resp, _ := client.register("booth@example.com")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	fresh := newTestClient(t, env.app)
	resp, body := fresh.login("booth@example.com", "wrong")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errObj, _ := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_CREDENTIALS", errObj["code"])
}

func TestRefreshRotatesExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	resp, _ := client.register("booth@example.com")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	firstRefresh := client.cookies[auth.CookieRefreshToken]

	csrf := client.fetchCSRF()
	resp, _ = client.do(http.MethodPost, "/auth/refresh", nil, map[string]string{"X-CSRF-Token": csrf})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, firstRefresh, client.cookies[auth.CookieRefreshToken])

	// replay the consumed token
	client.cookies[auth.CookieRefreshToken] = firstRefresh
	csrf = client.fetchCSRF()
	resp, body := client.do(http.MethodPost, "/auth/refresh", nil, map[string]string{"X-CSRF-Token": csrf})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errObj, _ := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_TOKEN", errObj["code"])
}

func TestAdminRouteDeniesUserRole(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	resp, _ := client.register("booth@example.com")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := client.do(http.MethodGet, "/auth/admin", nil, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	errObj, _ := body["error"].(map[string]any)
	assert.Equal(t, "NO_PERMISSION", errObj["code"])
}

func TestAdminRouteAllowsAdminRole(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	resp, _ := client.register("admin@example.com")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	env.users.setRole(t, "admin@example.com", domain.RoleAdmin)

	// re-login to pick up the role claim
	fresh := newTestClient(t, env.app)
	resp, _ = fresh.login("admin@example.com", "hunter22")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := fresh.do(http.MethodGet, "/auth/admin", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "admin", user["role"])
}

func TestAdminRouteWithoutToken(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	resp, body := client.do(http.MethodGet, "/auth/admin", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	errObj, _ := body["error"].(map[string]any)
	assert.Equal(t, "NO_TOKEN_PROVIDED", errObj["code"])
}

func TestCheckEndpoint(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	_, body := client.do(http.MethodGet, "/auth/check", nil, nil)
	assert.Equal(t, false, body["authenticated"])
	assert.Equal(t, "0", body["id"])

	resp, registered := client.register("booth@example.com")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	userID := registered["user"].(map[string]any)["id"]

	_, body = client.do(http.MethodGet, "/auth/check", nil, nil)
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, userID, body["id"])
}

func TestLogoutClearsCookiesAndKillsRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	resp, _ := client.register("booth@example.com")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	refreshToken := client.cookies[auth.CookieRefreshToken]

	csrf := client.fetchCSRF()
	resp, _ = client.do(http.MethodPost, "/auth/logout", nil, map[string]string{"X-CSRF-Token": csrf})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, client.cookies[auth.CookieAccessToken])
	assert.Empty(t, client.cookies[auth.CookieRefreshToken])

	// the invalidated token cannot be replayed
	client.cookies[auth.CookieRefreshToken] = refreshToken
	csrf = client.fetchCSRF()
	resp, _ = client.do(http.MethodPost, "/auth/refresh", nil, map[string]string{"X-CSRF-Token": csrf})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdatePasswordFlow(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	resp, _ := client.register("booth@example.com")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	oldRefresh := client.cookies[auth.CookieRefreshToken]

	csrf := client.fetchCSRF()
	resp, _ = client.do(http.MethodPost, "/auth/password",
		map[string]string{"oldPassword": "hunter22", "newPassword": "correct-horse"},
		map[string]string{"X-CSRF-Token": csrf})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// other sessions are forced to re-login
	client.cookies[auth.CookieRefreshToken] = oldRefresh
	csrf = client.fetchCSRF()
	resp, _ = client.do(http.MethodPost, "/auth/refresh", nil, map[string]string{"X-CSRF-Token": csrf})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	fresh := newTestClient(t, env.app)
	resp, _ = fresh.login("booth@example.com", "correct-horse")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSessionCookieMintedOnFirstContact(t *testing.T) {
	env := newTestEnv(t)
	client := newTestClient(t, env.app)

	client.fetchCSRF()
	assert.Len(t, client.cookies[auth.CookieSessionID], 32)
	assert.NotEmpty(t, client.cookies[auth.CookieCSRFToken])
}
