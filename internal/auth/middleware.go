package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgerdesk/ledgerdesk/internal/access"
	"github.com/ledgerdesk/ledgerdesk/internal/domain"
	apperrors "github.com/ledgerdesk/ledgerdesk/pkg/util/errorutil"
)

const actorKey = "auth_actor"

// AuthMiddleware validates bearer tokens and resolves the caller's role.
type AuthMiddleware struct {
	tokens *TokenManager
	roles  *access.RoleDirectory
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, roles *access.RoleDirectory) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, roles: roles}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthenticated("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthenticated("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthenticated("invalid token")
	}

	address, err := access.NormalizeAddress(claims.Address)
	if err != nil {
		return apperrors.NewUnauthenticated("invalid address")
	}
	role := m.roles.RoleOf(address)
	if role == "" {
		return apperrors.NewUnauthorized("no role for address")
	}

	c.Locals(actorKey, domain.Actor{Address: address, Role: role})
	return c.Next()
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	actor, ok := c.Locals(actorKey).(domain.Actor)
	return actor, ok
}
