package handlers

import (
	"appcommerce/app"
	"appcommerce/authapi"
	"appcommerce/blobstore"
	"appcommerce/docstore"
	"appcommerce/imagecache"
	"appcommerce/services"
	"appcommerce/validator"
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

func success(c *fiber.Ctx, data fiber.Map) error {
	return c.JSON(data)
}

func created(c *fiber.Ctx, data fiber.Map) error {
	return c.Status(fiber.StatusCreated).JSON(data)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": message})
}

func validationError(c *fiber.Ctx, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": verrs,
		})
	}
	return badRequest(c, "Invalid request body")
}

// requestContext derives the context a handler waits on
func requestContext(a *app.App, c *fiber.Ctx) (context.Context, context.CancelFunc) {
	timeout := a.RequestTimeout
	if timeout <= 0 {
		timeout = app.DefaultRequestTimeout
	}
	return context.WithTimeout(c.UserContext(), timeout)
}

// statusFor maps a service failure to an HTTP status and a safe message
func statusFor(err error) (int, string) {
	var apiErr *authapi.APIError
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return fiber.StatusBadRequest, "Invalid request"
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, blobstore.ErrNotFound):
		return fiber.StatusNotFound, "Not found"
	case errors.Is(err, docstore.ErrNotCached):
		return fiber.StatusServiceUnavailable, "Not available yet, try again shortly"
	case errors.Is(err, services.ErrNotSignedIn), errors.Is(err, services.ErrUnauthorized):
		return fiber.StatusUnauthorized, "Unauthorized"
	case errors.As(err, &apiErr):
		if apiErr.InvalidCredentials() {
			return fiber.StatusUnauthorized, "Invalid email or password"
		}
		if apiErr.Message == "EMAIL_EXISTS" {
			return fiber.StatusConflict, "Email already registered"
		}
		return fiber.StatusBadGateway, "Identity service error"
	case errors.Is(err, authapi.ErrMalformedResponse):
		return fiber.StatusBadGateway, "Identity service error"
	case errors.Is(err, imagecache.ErrUnsupportedFormat):
		return fiber.StatusBadGateway, "Unsupported image format"
	case errors.Is(err, context.DeadlineExceeded):
		return fiber.StatusGatewayTimeout, "Upstream timeout"
	default:
		return fiber.StatusInternalServerError, "Internal server error"
	}
}

func serviceError(c *fiber.Ctx, message string, err error) error {
	status, reason := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		return serverErrorWithDetails(c, status, message, err)
	}
	return c.Status(status).JSON(fiber.Map{"error": reason})
}

func serverErrorWithDetails(c *fiber.Ctx, status int, message string, err error) error {
	requestID := ""
	if id, ok := c.Locals("requestID").(string); ok {
		requestID = id
	}

	slog.Error("server error",
		"request_id", requestID,
		"method", c.Method(),
		"path", c.Path(),
		"message", message,
		"error", err,
	)

	return c.Status(status).JSON(fiber.Map{"error": message})
}

// sendImage writes whatever the target ended up showing. A failed load still
// carries the error image, with the failure's status.
func sendImage(c *fiber.Ctx, target *imagecache.Buffer, err error) error {
	img := target.Image()
	if img.Empty() {
		if err == nil {
			err = errors.New("no image produced")
		}
		return serviceError(c, "Failed to load image", err)
	}

	status := fiber.StatusOK
	if err != nil {
		status, _ = statusFor(err)
	}
	c.Set(fiber.HeaderContentType, img.ContentType)
	if err != nil {
		c.Set("X-Image-Source", "fallback")
	} else {
		c.Set("X-Image-Source", "remote")
	}
	c.Set(fiber.HeaderCacheControl, "private, max-age=300")
	return c.Status(status).Send(img.Data)
}
