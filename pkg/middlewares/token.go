package middlewares

import (
	"github.com/gofiber/fiber/v2"

	t_token "medlink_chat_service/pkg/token"
)

const (
	// HeaderAuth token in Authorization header
	HeaderAuth = "Authorization"
	// QueryToken token in query name, used by websocket handshakes
	QueryToken = "auth"
	// CookieToken token in cookie name
	CookieToken = "auth_token"

	// TokenUserID user id from token, set via c.Locals
	TokenUserID = "UserID"
	// TokenRole role from token, set via c.Locals
	TokenRole = "role"
)

// JWTMiddleware authenticates the request before any chat processing. A
// missing or invalid credential rejects immediately, no retry.
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := c.Get(HeaderAuth)
		if tokenStr == "" {
			tokenStr = c.Query(QueryToken)
		}
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}
		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing token",
			})
		}

		claims, err := t_token.ParseJWT(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid token",
			})
		}

		c.Locals(TokenUserID, claims.UserID)
		c.Locals(TokenRole, claims.Role)
		return c.Next()
	}
}
