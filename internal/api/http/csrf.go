package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/photobooth-auth/internal/api/dto"
	"github.com/spec-kit/photobooth-auth/internal/auth"
	apperrors "github.com/spec-kit/photobooth-auth/pkg/util"
)

const (
	csrfHeader        = "X-CSRF-Token"
	csrfTokenLocalKey = "csrf_token"

	// identity used when a presented token cannot be verified; keeps token
	// minting and validation consistent without leaking why.
	invalidTokenIdentity = "invalid-token"
	anonymousIdentity    = "temp-session-id"
)

// CSRFMiddleware implements double-submit cookie protection keyed to the
// caller's session identity: the verified token subject when one of the auth
// cookies validates, a random session cookie otherwise.
type CSRFMiddleware struct {
	secret       string
	tokens       *auth.TokenManager
	encryptor    *auth.Encryptor
	logger       *zap.Logger
	isProduction bool
	sessionTTL   time.Duration
}

// NewCSRFMiddleware validates configuration and builds the middleware. A
// short secret is refused here so the server fails at startup instead of
// running unprotected.
func NewCSRFMiddleware(secret string, isProduction bool, sessionTTL time.Duration, tokens *auth.TokenManager, encryptor *auth.Encryptor, logger *zap.Logger) (*CSRFMiddleware, error) {
	if len(secret) < 32 {
		return nil, errors.New("CSRF secret is missing or too short (< 32 chars)")
	}
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	return &CSRFMiddleware{
		secret:       secret,
		tokens:       tokens,
		encryptor:    encryptor,
		logger:       logger,
		isProduction: isProduction,
		sessionTTL:   sessionTTL,
	}, nil
}

// Issue resolves the session identity, minting a session cookie for first
// contact, and sets a fresh CSRF token as a readable cookie plus a local for
// handlers to embed in response bodies. Runs on every auth route.
func (m *CSRFMiddleware) Issue(c *fiber.Ctx) error {
	identity, err := m.resolveIdentity(c, true)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	token, err := auth.MintCSRFToken(m.secret, identity)
	if err != nil {
		return apperrors.NewInternalError(err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     auth.CookieCSRFToken,
		Value:    token,
		HTTPOnly: false,
		Secure:   m.isProduction,
		SameSite: fiber.CookieSameSiteStrictMode,
		Path:     "/",
	})
	c.Locals(csrfTokenLocalKey, token)
	return c.Next()
}

// Protect enforces the double-submit check on state-changing routes: the
// client must echo the cookie token via the X-CSRF-Token header or a body
// field, and the token must re-derive from the current session identity. The
// handler never runs on a mismatch.
func (m *CSRFMiddleware) Protect(c *fiber.Ctx) error {
	submitted := c.Get(csrfHeader)
	if submitted == "" {
		var envelope dto.CSRFEnvelope
		if err := c.BodyParser(&envelope); err == nil {
			submitted = envelope.CSRFToken
		}
	}

	cookieToken := c.Cookies(auth.CookieCSRFToken)
	if submitted == "" || cookieToken == "" || submitted != cookieToken {
		m.logger.Warn("csrf token missing or mismatched", zap.String("path", c.Path()))
		return apperrors.ErrCSRFFailed
	}

	identity, err := m.resolveIdentity(c, false)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !auth.VerifyCSRFToken(m.secret, identity, submitted) {
		m.logger.Warn("csrf token failed verification", zap.String("path", c.Path()))
		return apperrors.ErrCSRFFailed
	}
	return c.Next()
}

// CSRFTokenFromContext returns the token minted for this request.
func CSRFTokenFromContext(c *fiber.Ctx) string {
	if token, ok := c.Locals(csrfTokenLocalKey).(string); ok {
		return token
	}
	return ""
}

// resolveIdentity prefers the subject of a verified auth cookie; otherwise it
// falls back to the sessionId cookie, minting one on first contact when mint
// is set.
func (m *CSRFMiddleware) resolveIdentity(c *fiber.Ctx, mint bool) (string, error) {
	if token := c.Cookies(auth.CookieAccessToken); token != "" {
		return m.subjectOf(token, false), nil
	}
	if token := c.Cookies(auth.CookieRefreshToken); token != "" {
		return m.subjectOf(token, true), nil
	}

	if sessionID := c.Cookies(auth.CookieSessionID); sessionID != "" {
		return sessionID, nil
	}
	if !mint {
		return anonymousIdentity, nil
	}

	sessionID, err := auth.NewSessionID()
	if err != nil {
		return "", err
	}
	c.Cookie(&fiber.Cookie{
		Name:     auth.CookieSessionID,
		Value:    sessionID,
		HTTPOnly: false,
		Secure:   m.isProduction,
		SameSite: fiber.CookieSameSiteStrictMode,
		Path:     "/",
		MaxAge:   int(m.sessionTTL.Seconds()),
	})
	return sessionID, nil
}

func (m *CSRFMiddleware) subjectOf(token string, encrypted bool) string {
	if encrypted {
		decrypted, err := m.encryptor.Decrypt(token)
		if err != nil {
			return invalidTokenIdentity
		}
		token = decrypted
	}
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return invalidTokenIdentity
	}
	return claims.Subject
}
