package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/photobooth-auth/internal/domain"
)

// TokenManager issues and validates the signed JWTs used for access tokens
// and for the refresh claims sealed inside the encrypted envelope.
type TokenManager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenManager builds a new manager. Both lifetimes must be positive.
func NewTokenManager(secret string, accessTTL, refreshTTL time.Duration) (*TokenManager, error) {
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("invalid token TTL configuration")
	}
	return &TokenManager{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

// Claims describes the JWT payload shared by access and refresh tokens.
type Claims struct {
	Email string      `json:"email"`
	Role  domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// GenerateAccessToken builds and signs the short-lived access token.
func (tm *TokenManager) GenerateAccessToken(user *domain.User) (string, time.Time, error) {
	return tm.sign(user, tm.accessTTL)
}

// GenerateRefreshClaims signs the long-lived claims blob that the encryptor
// seals into the refresh token envelope.
func (tm *TokenManager) GenerateRefreshClaims(user *domain.User) (string, error) {
	signed, _, err := tm.sign(user, tm.refreshTTL)
	return signed, err
}

func (tm *TokenManager) sign(user *domain.User, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates signature and expiry and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// AccessTokenTTL reports the configured access token lifetime.
func (tm *TokenManager) AccessTokenTTL() time.Duration {
	return tm.accessTTL
}

// RefreshTokenTTL reports the configured refresh token lifetime.
func (tm *TokenManager) RefreshTokenTTL() time.Duration {
	return tm.refreshTTL
}
