package dto

// RegisterRequest payload for new accounts.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdatePasswordRequest payload for password changes.
type UpdatePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// CSRFEnvelope extracts the CSRF proof when it travels in the body instead of
// the X-CSRF-Token header.
type CSRFEnvelope struct {
	CSRFToken string `json:"csrfToken"`
}

// UserResponse is the account shape echoed by auth endpoints.
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}
