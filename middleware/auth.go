package middleware

import (
	"appcommerce/services"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AuthRequired requires a Bearer id token that belongs to a live session
func AuthRequired(sessions services.SessionStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing authorization",
			})
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid authorization header format",
			})
		}

		sess, err := sessions.Get(parts[1])
		if err != nil {
			msg := "Invalid or expired token"
			if errors.Is(err, services.ErrSessionExpired) {
				msg = "Session expired"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": msg,
			})
		}

		c.Locals("userID", sess.UserID)
		c.Locals("userEmail", sess.Email)
		c.Locals("session", sess)
		return c.Next()
	}
}

// SameUser rejects requests whose :id parameter is not the signed-in user
func SameUser(param string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Params(param) != GetUserID(c) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied",
			})
		}
		return c.Next()
	}
}

func GetUserID(c *fiber.Ctx) string {
	userID, ok := c.Locals("userID").(string)
	if !ok {
		return ""
	}
	return userID
}

func GetUserEmail(c *fiber.Ctx) string {
	email, ok := c.Locals("userEmail").(string)
	if !ok {
		return ""
	}
	return email
}

// GetToken returns the id token the request was authenticated with
func GetToken(c *fiber.Ctx) string {
	auth := c.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return token
	}
	return ""
}
