package middlewares

import (
	"strings"

	t_token "chat_realtime_service/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name
	QueryToken = "auth"

	//CookieToken token in cookie name
	CookieToken = "auth_token"

	//TokenMemberID get member form token, set c.locals name
	TokenMemberID = "MemberID"
	//TokenUsername get username form token, set c.locals name
	TokenUsername = "Username"
	//TokenRole get role form token, set c.locals name
	TokenRole = "role"
)

// JWTMiddleware validates JWT from the Authorization header, the auth query or the auth_token cookie
func JWTMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := bearer(c.Get(fiber.HeaderAuthorization))

		// websocket clients cannot set headers, fall back to query / cookie
		if tokenStr == "" {
			tokenStr = c.Query(QueryToken)
		}
		if tokenStr == "" {
			tokenStr = c.Cookies(CookieToken)
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		claims, err := t_token.ParseJWTWrapper(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(TokenMemberID, claims.MemberID)
		c.Locals(TokenUsername, claims.Username)
		c.Locals(TokenRole, claims.Role)

		return c.Next()
	}
}

// MemberID authenticated member id set by JWTMiddleware
func MemberID(c *fiber.Ctx) (string, bool) {
	id, ok := c.Locals(TokenMemberID).(string)
	return id, ok && id != ""
}

// Username authenticated username set by JWTMiddleware
func Username(c *fiber.Ctx) string {
	name, _ := c.Locals(TokenUsername).(string)
	return name
}

func bearer(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
