package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/photobooth-auth/internal/domain"
)

// RefreshTokenRepository manages stored refresh tokens.
type RefreshTokenRepository interface {
	Create(ctx context.Context, record *domain.RefreshTokenRecord) error
	GetByTokenAndUser(ctx context.Context, token, userID string) (*domain.RefreshTokenRecord, error)
	// ConsumeByTokenAndUser deletes the matching row and returns it in the
	// same statement. Two concurrent rotations of the same token cannot both
	// succeed: the loser sees pgx.ErrNoRows.
	ConsumeByTokenAndUser(ctx context.Context, token, userID string) (*domain.RefreshTokenRecord, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type refreshTokenRepository struct {
	pool *pgxpool.Pool
}

// NewRefreshTokenRepository returns a Postgres-backed implementation.
func NewRefreshTokenRepository(pool *pgxpool.Pool) RefreshTokenRepository {
	return &refreshTokenRepository{pool: pool}
}

func (r *refreshTokenRepository) Create(ctx context.Context, record *domain.RefreshTokenRecord) error {
	const query = `
        INSERT INTO refresh_tokens (user_id, token, expires_at)
        VALUES ($1, $2, $3)
        RETURNING id, created_at`

	return r.pool.QueryRow(ctx, query,
		record.UserID,
		record.Token,
		record.ExpiresAt,
	).Scan(&record.ID, &record.CreatedAt)
}

func (r *refreshTokenRepository) GetByTokenAndUser(ctx context.Context, token, userID string) (*domain.RefreshTokenRecord, error) {
	const query = `
        SELECT id, user_id, token, expires_at, created_at
        FROM refresh_tokens WHERE token=$1 AND user_id=$2`

	return scanRecord(r.pool.QueryRow(ctx, query, token, userID))
}

func (r *refreshTokenRepository) ConsumeByTokenAndUser(ctx context.Context, token, userID string) (*domain.RefreshTokenRecord, error) {
	const query = `
        DELETE FROM refresh_tokens WHERE token=$1 AND user_id=$2
        RETURNING id, user_id, token, expires_at, created_at`

	return scanRecord(r.pool.QueryRow(ctx, query, token, userID))
}

func (r *refreshTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	const query = `DELETE FROM refresh_tokens WHERE token=$1`
	_, err := r.pool.Exec(ctx, query, token)
	return err
}

func (r *refreshTokenRepository) DeleteByUser(ctx context.Context, userID string) error {
	const query = `DELETE FROM refresh_tokens WHERE user_id=$1`
	_, err := r.pool.Exec(ctx, query, userID)
	return err
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM refresh_tokens WHERE expires_at < $1`
	cmd, err := r.pool.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*domain.RefreshTokenRecord, error) {
	var record domain.RefreshTokenRecord
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.Token,
		&record.ExpiresAt,
		&record.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &record, nil
}
