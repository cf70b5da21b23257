package handlers

import (
	"appcommerce/app"
	"appcommerce/imagecache"
	"appcommerce/middleware"
	"appcommerce/models"

	"github.com/gofiber/fiber/v2"
)

// maxProfileImageBytes caps profile picture uploads
const maxProfileImageBytes = 5 << 20

func profileResponse(p models.UserWithAddresses) fiber.Map {
	loaded := []string{}
	failed := fiber.Map{}
	for _, f := range models.ProfileFields {
		if p.Has(f) {
			loaded = append(loaded, f.String())
		}
		if err, ok := p.Failed[f]; ok {
			failed[f.String()] = err.Error()
		}
	}
	addresses := p.Addresses
	if addresses == nil {
		addresses = []models.UserAddress{}
	}
	return fiber.Map{
		"user":      userResponse(p.User),
		"addresses": addresses,
		"loaded":    loaded,
		"failed":    failed,
	}
}

// GetProfile returns the user document and addresses
func GetProfile(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(a, c)
		defer cancel()

		profile := a.Accounts.LoadProfile(ctx, c.Params("id"))
		defer profile.Close()

		p, err := profile.Await(ctx)
		if err != nil && !p.Has(models.ProfileUser) {
			if ferr, ok := p.Failed[models.ProfileUser]; ok {
				err = ferr
			}
			return serviceError(c, "Failed to load profile", err)
		}
		return success(c, profileResponse(p))
	}
}

// UpdateProfile saves the user document and its first address
func UpdateProfile(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req models.UpdateProfileRequest
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "Invalid request body")
		}

		// Validate request
		if err := a.Validator.Validate(&req); err != nil {
			return validationError(c, err)
		}

		uwa := models.UserWithAddresses{
			User: models.User{
				ID:    c.Params("id"),
				Name:  req.Name,
				Email: req.Email,
				Phone: req.Phone,
				Token: middleware.GetToken(c),
			},
		}
		for _, addr := range req.Addresses {
			uwa.Addresses = append(uwa.Addresses, models.UserAddress{
				ID:      addr.ID,
				Street:  addr.Street,
				Number:  addr.Number,
				City:    addr.City,
				State:   addr.State,
				ZipCode: addr.ZipCode,
			})
		}

		ctx, cancel := requestContext(a, c)
		defer cancel()

		saved, err := a.Accounts.SaveProfile(ctx, uwa).Await(ctx)
		if err != nil {
			return serviceError(c, "Failed to save profile", err)
		}
		return success(c, profileResponse(saved))
	}
}

// UploadProfileImage stores the multipart "image" field as the profile picture
func UploadProfileImage(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("image")
		if err != nil {
			return badRequest(c, "image file is required")
		}
		if fh.Size > maxProfileImageBytes {
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": "Image too large"})
		}

		f, err := fh.Open()
		if err != nil {
			return badRequest(c, "Unreadable image file")
		}
		defer f.Close()

		ctx, cancel := requestContext(a, c)
		defer cancel()

		path, err := a.Accounts.UploadProfileImage(ctx, c.Params("id"), f).Await(ctx)
		if err != nil {
			return serviceError(c, "Failed to upload profile image", err)
		}
		return created(c, fiber.Map{"path": path})
	}
}

// GetProfileImage streams the profile picture, or the default one
func GetProfileImage(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(a, c)
		defer cancel()

		var target imagecache.Buffer
		img := a.Accounts.ResolveProfileImage(ctx, c.Params("id"), &target)
		defer img.Close()

		_, err := img.Await(ctx)
		return sendImage(c, &target, err)
	}
}
