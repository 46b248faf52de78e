package auth

import (
	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/photobooth-auth/pkg/util"
)

const claimsKey = "auth_claims"

// Cookie names shared with the HTTP layer.
const (
	CookieAccessToken  = "accessToken"
	CookieRefreshToken = "refreshToken"
	CookieCSRFToken    = "csrfToken"
	CookieSessionID    = "sessionId"
)

// CookieAuth validates the access token cookie and stores claims in locals.
type CookieAuth struct {
	tokens *TokenManager
}

// NewCookieAuth constructs the middleware.
func NewCookieAuth(tokens *TokenManager) *CookieAuth {
	return &CookieAuth{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *CookieAuth) Handle(c *fiber.Ctx) error {
	token := c.Cookies(CookieAccessToken)
	if token == "" {
		return apperrors.ErrNoTokenProvided
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.ErrInvalidToken
	}

	c.Locals(claimsKey, claims)
	return c.Next()
}

// Optional verifies the access token cookie when present but lets the request
// through either way; /auth/check reports status instead of failing.
func (m *CookieAuth) Optional(c *fiber.Ctx) error {
	if token := c.Cookies(CookieAccessToken); token != "" {
		if claims, err := m.tokens.ParseToken(token); err == nil {
			c.Locals(claimsKey, claims)
		}
	}
	return c.Next()
}

// ClaimsFromContext retrieves the verified token claims, if any.
func ClaimsFromContext(c *fiber.Ctx) (*Claims, bool) {
	val := c.Locals(claimsKey)
	if val == nil {
		return nil, false
	}
	claims, ok := val.(*Claims)
	return claims, ok
}
