package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/photobooth-auth/internal/api/dto"
	"github.com/spec-kit/photobooth-auth/internal/auth"
	"github.com/spec-kit/photobooth-auth/internal/domain"
	"github.com/spec-kit/photobooth-auth/internal/service"
	apperrors "github.com/spec-kit/photobooth-auth/pkg/util"
)

// CSRFTokenLookup retrieves the token minted for the current request; wired
// from the http package to avoid an import cycle with the middleware.
type CSRFTokenLookup func(*fiber.Ctx) string

// AuthHandler exposes the auth endpoints.
type AuthHandler struct {
	auth         *service.AuthService
	logger       *zap.Logger
	csrfToken    CSRFTokenLookup
	isProduction bool
}

// NewAuthHandler constructs the handler.
func NewAuthHandler(authService *service.AuthService, logger *zap.Logger, csrfToken CSRFTokenLookup, isProduction bool) *AuthHandler {
	return &AuthHandler{auth: authService, logger: logger, csrfToken: csrfToken, isProduction: isProduction}
}

// Register handles POST /auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "name, email, password required")
	}

	result, err := h.auth.Register(c.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setTokenCookies(c, result.TokenPair)
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message":   "User registered successfully",
		"user":      userResponse(result.User),
		"csrfToken": h.csrfToken(c),
	})
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Email == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password required")
	}

	result, err := h.auth.Login(c.Context(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setTokenCookies(c, result.TokenPair)
	return c.JSON(fiber.Map{
		"message":   "Login successful",
		"user":      userResponse(result.User),
		"csrfToken": h.csrfToken(c),
	})
}

// Refresh handles POST /auth/refresh: rotates the pair carried by the
// refresh cookie.
func (h *AuthHandler) Refresh(c *fiber.Ctx) error {
	refreshToken := c.Cookies(auth.CookieRefreshToken)
	if refreshToken == "" {
		return apperrors.ErrNoTokenProvided
	}

	pair, err := h.auth.Refresh(c.Context(), refreshToken)
	if err != nil {
		return err
	}

	h.setTokenCookies(c, *pair)
	return c.JSON(fiber.Map{
		"message":   "Token refreshed successfully",
		"csrfToken": h.csrfToken(c),
	})
}

// Logout handles POST /auth/logout. Invalidation is best effort: the cookies
// are cleared regardless, so the client always ends up logged out.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if refreshToken := c.Cookies(auth.CookieRefreshToken); refreshToken != "" {
		if err := h.auth.InvalidateRefreshToken(c.Context(), refreshToken); err != nil {
			h.logger.Warn("refresh token invalidation failed during logout", zap.Error(err))
		}
	}
	if accessToken := c.Cookies(auth.CookieAccessToken); accessToken != "" {
		if claims, err := h.auth.TokenManager().ParseToken(accessToken); err == nil {
			h.auth.NotifyLogout(c.Context(), claims.Subject)
		}
	}

	h.clearTokenCookies(c)
	h.expireCookie(c, auth.CookieCSRFToken, false)
	return c.JSON(fiber.Map{"message": "Logout successful"})
}

// UpdatePassword handles POST /auth/password. Guarded, so verified claims are
// present.
func (h *AuthHandler) UpdatePassword(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.ErrUserNotAuthenticated
	}

	var req dto.UpdatePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		return fiber.NewError(http.StatusBadRequest, "oldPassword and newPassword required")
	}

	if err := h.auth.UpdatePassword(c.Context(), claims.Subject, req.OldPassword, req.NewPassword); err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"message":   "Password updated successfully",
		"csrfToken": h.csrfToken(c),
	})
}

// Check handles GET /auth/check. Reports status instead of failing when no
// valid token is present.
func (h *AuthHandler) Check(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return c.JSON(fiber.Map{"authenticated": false, "id": "0"})
	}
	return c.JSON(fiber.Map{"authenticated": true, "id": claims.Subject})
}

// CSRFToken handles GET /auth/csrf: the cookie is set by the middleware, the
// body echoes it for clients that prefer reading JSON.
func (h *AuthHandler) CSRFToken(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"csrfToken": h.csrfToken(c)})
}

// Admin handles GET /auth/admin, an admin-only example resource.
func (h *AuthHandler) Admin(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.ErrUserNotAuthenticated
	}
	return c.JSON(fiber.Map{
		"message": "Welcome to the admin panel",
		"user": fiber.Map{
			"id":    claims.Subject,
			"email": claims.Email,
			"role":  claims.Role,
		},
	})
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{ID: user.ID, Email: user.Email, Role: string(user.Role)}
}

func (h *AuthHandler) setTokenCookies(c *fiber.Ctx, pair domain.TokenPair) {
	tm := h.auth.TokenManager()
	h.setCookie(c, auth.CookieAccessToken, pair.AccessToken, int(tm.AccessTokenTTL().Seconds()))
	h.setCookie(c, auth.CookieRefreshToken, pair.RefreshToken, int(tm.RefreshTokenTTL().Seconds()))
}

func (h *AuthHandler) clearTokenCookies(c *fiber.Ctx) {
	h.expireCookie(c, auth.CookieAccessToken, true)
	h.expireCookie(c, auth.CookieRefreshToken, true)
}

func (h *AuthHandler) setCookie(c *fiber.Ctx, name, value string, maxAge int) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		HTTPOnly: true,
		Secure:   h.isProduction,
		SameSite: h.sameSite(),
		Path:     "/",
		MaxAge:   maxAge,
	})
}

func (h *AuthHandler) expireCookie(c *fiber.Ctx, name string, httpOnly bool) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		HTTPOnly: httpOnly,
		Secure:   h.isProduction,
		SameSite: h.sameSite(),
		Path:     "/",
		MaxAge:   -1,
	})
}

func (h *AuthHandler) sameSite() string {
	if h.isProduction {
		return fiber.CookieSameSiteStrictMode
	}
	return fiber.CookieSameSiteLaxMode
}
