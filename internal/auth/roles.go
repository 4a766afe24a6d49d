package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/vacvault/vacvault-api/internal/domain"
	apperrors "github.com/vacvault/vacvault-api/pkg/util/errorutil"
)

// RequireRole admits requests whose authenticated claims carry one of the allowed roles.
// It must run after AuthMiddleware.Handle.
func RequireRole(allowed ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			return apperrors.ErrMissingToken
		}
		if !claims.HasRole(allowed...) {
			return apperrors.NewForbidden("access denied, " + rolesLabel(allowed) + " only")
		}
		return c.Next()
	}
}

// RequireAdmin is RequireRole(domain.RoleAdmin).
func RequireAdmin() fiber.Handler {
	return RequireRole(domain.RoleAdmin)
}

func rolesLabel(roles []domain.Role) string {
	if len(roles) == 1 {
		return string(roles[0]) + "s"
	}
	label := ""
	for i, r := range roles {
		if i > 0 {
			label += "/"
		}
		label += string(r)
	}
	return label
}
