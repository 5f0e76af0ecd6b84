package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/maintenance-dispatch/internal/domain"
	apperrors "github.com/spec-kit/maintenance-dispatch/pkg/util"
)

const viewerKey = "auth_viewer"

// Viewer is the authenticated caller as resolved by the external identity
// collaborator: one of the three roles plus a stable subject id.
type Viewer struct {
	Role domain.Role
	ID   string
}

// Middleware validates bearer tokens and stores the viewer in the request context.
type Middleware struct {
	tokens *TokenManager
}

// NewMiddleware constructs middleware.
func NewMiddleware(tokens *TokenManager) *Middleware {
	return &Middleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	switch claims.Role {
	case domain.RoleRequester, domain.RoleTechnician, domain.RoleAdmin:
	default:
		return apperrors.NewUnauthorized("unknown role")
	}

	c.Locals(viewerKey, &Viewer{Role: claims.Role, ID: claims.SubjectID})
	return c.Next()
}

// ViewerFromContext retrieves the authenticated viewer.
func ViewerFromContext(c *fiber.Ctx) (*Viewer, bool) {
	val := c.Locals(viewerKey)
	if val == nil {
		return nil, false
	}
	viewer, ok := val.(*Viewer)
	return viewer, ok
}
