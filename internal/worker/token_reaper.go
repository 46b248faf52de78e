package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/photobooth-auth/internal/repository"
)

// TokenReaper deletes expired refresh token rows on an interval. Expiry is
// still checked lazily at refresh time; the reaper only bounds table growth.
type TokenReaper struct {
	tokens   repository.RefreshTokenRepository
	logger   *zap.Logger
	interval time.Duration
}

// NewTokenReaper constructs the reaper.
func NewTokenReaper(tokens repository.RefreshTokenRepository, logger *zap.Logger, interval time.Duration) *TokenReaper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &TokenReaper{tokens: tokens, logger: logger, interval: interval}
}

// Run sweeps until the context is cancelled.
func (r *TokenReaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweep(ctx)
		}
	}
}

func (r *TokenReaper) sweep(ctx context.Context) {
	deleted, err := r.tokens.DeleteExpired(ctx, time.Now())
	if err != nil {
		r.logger.Warn("refresh token sweep failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("reaped expired refresh tokens", zap.Int64("count", deleted))
	}
}
