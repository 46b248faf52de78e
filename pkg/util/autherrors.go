package util

import "net/http"

// Auth error taxonomy. Messages and statuses are part of the public API
// contract: clients match on them verbatim, and refresh/login failures must
// not reveal which internal step failed.
var (
	ErrNoTokenProvided = NewDomainError("NO_TOKEN_PROVIDED", "No token provided", http.StatusUnauthorized, nil)

	// ErrInvalidToken covers decrypt, signature, lookup, and expiry failures
	// alike: refresh flows collapse all of them into this one error.
	ErrInvalidToken = NewDomainError("INVALID_TOKEN", "Invalid token", http.StatusUnauthorized, nil)

	ErrUserNotAuthenticated = NewDomainError("USER_NOT_AUTHENTICATED", "User not authenticated", http.StatusUnauthorized, nil)

	ErrNoPermission = NewDomainError("NO_PERMISSION", "No permission", http.StatusForbidden, nil)

	ErrUserAlreadyExists = NewDomainError("USER_ALREADY_EXISTS", "User already exists", http.StatusBadRequest, nil)

	// ErrInvalidCredentials is returned for unknown email and wrong password
	// alike to resist account enumeration.
	ErrInvalidCredentials = NewDomainError("INVALID_CREDENTIALS", "Invalid credentials", http.StatusUnauthorized, nil)

	ErrUserNotFound = NewDomainError("USER_NOT_FOUND", "User not found", http.StatusNotFound, nil)

	ErrCSRFFailed = NewDomainError("CSRF_FAILED", "Invalid CSRF token", http.StatusForbidden, nil)
)
