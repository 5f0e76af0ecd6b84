package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

// RequireRole ensures the viewer has one of the allowed roles.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		viewer, ok := ViewerFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("viewer required")
		}
		if len(allowedSet) == 0 {
			return c.Next()
		}
		if _, exists := allowedSet[viewer.Role]; !exists {
			return apperrors.NewForbidden("insufficient role")
		}
		return c.Next()
	}
}
