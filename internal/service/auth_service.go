package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/spec-kit/photobooth-auth/internal/auth"
	"github.com/spec-kit/photobooth-auth/internal/config"
	"github.com/spec-kit/photobooth-auth/internal/domain"
	"github.com/spec-kit/photobooth-auth/internal/events"
	"github.com/spec-kit/photobooth-auth/internal/repository"
	apperrors "github.com/spec-kit/photobooth-auth/pkg/util"
)

const uniqueViolation = "23505"

// AuthService coordinates registration, login, refresh rotation, and password
// changes against the credential store, hasher, signer, and encryptor.
type AuthService struct {
	users      repository.UserRepository
	tokens     repository.RefreshTokenRepository
	tokenMgr   *auth.TokenManager
	encryptor  *auth.Encryptor
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
	refreshTTL time.Duration
}

// AuthDependencies encapsulates the collaborators of the auth service.
type AuthDependencies struct {
	UserRepo         repository.UserRepository
	RefreshTokenRepo repository.RefreshTokenRepository
	Dispatcher       events.Dispatcher
	Logger           *zap.Logger
}

// AuthResult is the outcome of register and login.
type AuthResult struct {
	domain.TokenPair
	User *domain.User
}

// NewAuthService builds the service. Construction fails on invalid token or
// encryption configuration; the server must not start without them.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	tokenMgr, err := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("token manager: %w", err)
	}
	encryptor, err := auth.NewEncryptor(cfg.JWESecret, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("refresh token encryptor: %w", err)
	}

	return &AuthService{
		users:      deps.UserRepo,
		tokens:     deps.RefreshTokenRepo,
		tokenMgr:   tokenMgr,
		encryptor:  encryptor,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
		bcryptCost: cfg.BcryptCost,
		refreshTTL: cfg.RefreshTokenTTL,
	}, nil
}

// Register creates a new account and issues its first token pair.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.ErrUserAlreadyExists
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// the unique index closes the check-then-create race
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, apperrors.ErrUserAlreadyExists
		}
		return nil, err
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventUserRegistered, user)
	return &AuthResult{TokenPair: *pair, User: user}, nil
}

// Login authenticates credentials and issues a fresh token pair. Unknown
// email and wrong password return the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.ErrInvalidCredentials
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventUserLoggedIn, user)
	return &AuthResult{TokenPair: *pair, User: user}, nil
}

// Refresh exchanges a refresh token for a new pair exactly once. The stored
// row is consumed by a single conditional delete, so a concurrent second
// rotation of the same token fails closed. Every failure mode collapses into
// ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	decrypted, err := s.encryptor.Decrypt(refreshToken)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	claims, err := s.tokenMgr.ParseToken(decrypted)
	if err != nil {
		return nil, apperrors.ErrInvalidToken
	}

	record, err := s.tokens.ConsumeByTokenAndUser(ctx, refreshToken, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, err
	}
	if record.Expired(time.Now()) {
		return nil, apperrors.ErrInvalidToken
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrInvalidToken
		}
		return nil, err
	}

	pair, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.EventTokenRefreshed, user)
	return pair, nil
}

// UpdatePassword re-hashes after verifying the old password and invalidates
// every refresh token of the user, forcing other sessions to log in again.
func (s *AuthService) UpdatePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.ErrUserNotFound
		}
		return err
	}
	if err := auth.ComparePassword(user.PasswordHash, oldPassword); err != nil {
		return apperrors.ErrInvalidCredentials
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return err
	}
	if err := s.InvalidateUserTokens(ctx, userID); err != nil {
		return err
	}

	s.publish(ctx, events.EventPasswordChanged, user)
	return nil
}

// InvalidateRefreshToken removes a single stored token. Idempotent.
func (s *AuthService) InvalidateRefreshToken(ctx context.Context, token string) error {
	return s.tokens.DeleteByToken(ctx, token)
}

// InvalidateUserTokens removes all stored tokens of a user. Idempotent.
func (s *AuthService) InvalidateUserTokens(ctx context.Context, userID string) error {
	return s.tokens.DeleteByUser(ctx, userID)
}

// NotifyLogout emits the logout audit event for a known user id.
func (s *AuthService) NotifyLogout(ctx context.Context, userID string) {
	s.publish(ctx, events.EventUserLoggedOut, &domain.User{ID: userID})
}

// issueTokens generates a pair and stores the refresh token.
func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	pair, err := s.generateTokens(user)
	if err != nil {
		return nil, err
	}
	if err := s.storeRefreshToken(ctx, user.ID, pair.RefreshToken); err != nil {
		return nil, err
	}
	return pair, nil
}

// generateTokens signs the access token and the refresh claims blob, then
// seals the latter with the encryptor.
func (s *AuthService) generateTokens(user *domain.User) (*domain.TokenPair, error) {
	accessToken, _, err := s.tokenMgr.GenerateAccessToken(user)
	if err != nil {
		return nil, err
	}

	refreshClaims, err := s.tokenMgr.GenerateRefreshClaims(user)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.encryptor.Encrypt(refreshClaims)
	if err != nil {
		return nil, err
	}

	return &domain.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// storeRefreshToken persists a new record after clearing prior ones, keeping
// at most one active session per user.
func (s *AuthService) storeRefreshToken(ctx context.Context, userID, token string) error {
	if s.refreshTTL <= 0 {
		return fmt.Errorf("invalid refresh token expiration configuration: %v", s.refreshTTL)
	}
	expiresAt := time.Now().Add(s.refreshTTL)

	if err := s.InvalidateUserTokens(ctx, userID); err != nil {
		return err
	}
	return s.tokens.Create(ctx, &domain.RefreshTokenRecord{
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, user *domain.User) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, events.Event{
		Type:      eventType,
		UserID:    user.ID,
		Email:     user.Email,
		Timestamp: time.Now(),
	})
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Encryptor exposes the refresh token encryptor for middleware usage.
func (s *AuthService) Encryptor() *auth.Encryptor {
	return s.encryptor
}
