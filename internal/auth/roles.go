package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/photobooth-auth/internal/domain"
	apperrors "github.com/spec-kit/photobooth-auth/pkg/util"
)

// RequireRoles allows the request through iff the verified claims carry one
// of the listed roles. The required set is declared per route at registration
// time. An empty set only requires authentication.
func RequireRoles(required ...domain.Role) fiber.Handler {
	requiredSet := make(map[domain.Role]struct{}, len(required))
	for _, role := range required {
		requiredSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			return apperrors.ErrUserNotAuthenticated
		}
		if len(requiredSet) == 0 {
			return c.Next()
		}
		if claims.Role == "" {
			return apperrors.ErrUserNotAuthenticated
		}
		if _, exists := requiredSet[claims.Role]; !exists {
			return apperrors.ErrNoPermission
		}
		return c.Next()
	}
}
