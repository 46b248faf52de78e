package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/photobooth-auth/internal/domain"
)

// In-memory repositories mirroring the Postgres implementations, including
// their pgx.ErrNoRows and unique-violation behavior.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[string]*domain.User)}
}

func (r *fakeUserRepo) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == user.Email {
			return &pgconn.PgError{Code: "23505"}
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now()
	user.UpdatedAt = user.CreatedAt
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) Update(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	user.UpdatedAt = time.Now()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	clone := *user
	return &clone, nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
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

type fakeRefreshTokenRepo struct {
	mu      sync.Mutex
	records map[string]*domain.RefreshTokenRecord // keyed by token
}

func newFakeRefreshTokenRepo() *fakeRefreshTokenRepo {
	return &fakeRefreshTokenRepo{records: make(map[string]*domain.RefreshTokenRecord)}
}

func (r *fakeRefreshTokenRepo) Create(_ context.Context, record *domain.RefreshTokenRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record.ID = uuid.NewString()
	record.CreatedAt = time.Now()
	clone := *record
	r.records[record.Token] = &clone
	return nil
}

func (r *fakeRefreshTokenRepo) GetByTokenAndUser(_ context.Context, token, userID string) (*domain.RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[token]
	if !ok || record.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	clone := *record
	return &clone, nil
}

func (r *fakeRefreshTokenRepo) ConsumeByTokenAndUser(_ context.Context, token, userID string) (*domain.RefreshTokenRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[token]
	if !ok || record.UserID != userID {
		return nil, pgx.ErrNoRows
	}
	delete(r.records, token)
	return record, nil
}

func (r *fakeRefreshTokenRepo) DeleteByToken(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, token)
	return nil
}

func (r *fakeRefreshTokenRepo) DeleteByUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, record := range r.records {
		if record.UserID == userID {
			delete(r.records, token)
		}
	}
	return nil
}

func (r *fakeRefreshTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
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

func (r *fakeRefreshTokenRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
