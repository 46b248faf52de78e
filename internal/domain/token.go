package domain

import "time"

// RefreshTokenRecord is a stored refresh token. The token column holds the
// encrypted envelope exactly as issued to the client.
type RefreshTokenRecord struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record is past its expiry at the given instant.
func (r *RefreshTokenRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// TokenPair bundles the two credentials issued together.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
