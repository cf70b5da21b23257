package handlers

import (
	"appcommerce/app"
	"appcommerce/middleware"
	"appcommerce/models"
	"appcommerce/session"
	"strings"

	"github.com/gofiber/fiber/v2"
)

func userResponse(u models.User) fiber.Map {
	return fiber.Map{
		"id":    u.ID,
		"name":  u.Name,
		"email": u.Email,
		"phone": u.Phone,
	}
}

// SignUp registers a new account and stores its profile
func SignUp(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.SignUpRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}

		// Validate request
		if err := a.Validator.Validate(&req); err != nil {
			return validationError(c, err)
		}

		ctx, cancel := requestContext(a, c)
		defer cancel()

		creds := models.Credentials{Email: strings.TrimSpace(req.Email), Password: req.Password}
		profile := models.User{Name: req.Name, Email: creds.Email, Phone: req.Phone}
		user, err := a.Accounts.SignUp(ctx, creds, profile).Await(ctx)
		if err != nil {
			return serviceError(c, "Failed to sign up", err)
		}

		return created(c, fiber.Map{"user": userResponse(user)})
	}
}

// SignIn authenticates and opens a session keyed by the returned id token
func SignIn(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.SignInRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}

		// Validate request
		if err := a.Validator.Validate(&req); err != nil {
			return validationError(c, err)
		}

		ctx, cancel := requestContext(a, c)
		defer cancel()

		user, err := a.Accounts.SignIn(ctx, strings.TrimSpace(req.Email), req.Password).Await(ctx)
		if err != nil {
			return serviceError(c, "Failed to sign in", err)
		}

		sess, err := a.SessionStore.Create(user, session.DefaultTTL)
		if err != nil {
			return serverErrorWithDetails(c, fiber.StatusInternalServerError, "Failed to create session", err)
		}

		return success(c, fiber.Map{
			"token":      sess.Token,
			"expires_at": sess.ExpiresAt,
			"user":       userResponse(user),
		})
	}
}

// ResetPassword asks the identity service to send a reset e-mail
func ResetPassword(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.ResetPasswordRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}

		// Validate request
		if err := a.Validator.Validate(&req); err != nil {
			return validationError(c, err)
		}

		ctx, cancel := requestContext(a, c)
		defer cancel()

		if _, err := a.Accounts.RequestPasswordReset(ctx, strings.TrimSpace(req.Email)).Await(ctx); err != nil {
			return serviceError(c, "Failed to request password reset", err)
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"success": true})
	}
}

// SignOut ends the current session and forgets the remembered user
func SignOut(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token := middleware.GetToken(c); token != "" {
			a.SessionStore.Delete(token)
		}

		if err := a.Accounts.SignOut(c.UserContext()); err != nil {
			return serverErrorWithDetails(c, fiber.StatusInternalServerError, "Failed to sign out", err)
		}

		return c.JSON(fiber.Map{
			"success": true,
		})
	}
}

// Me reports the user remembered by the last sign-in
func Me(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, err := a.Accounts.CurrentUserID(c.UserContext())
		if err != nil {
			return serviceError(c, "Failed to read current user", err)
		}
		return success(c, fiber.Map{"user_id": userID})
	}
}
