package setup

import (
	"appcommerce/app"
	"appcommerce/handlers"
	"appcommerce/middleware"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// RegisterRoutes registers all application routes
func RegisterRoutes(fiberApp *fiber.App, application *app.App) {
	fiberApp.Get("/health", handlers.Health)

	api := fiberApp.Group("/api")

	// Catalog routes
	api.Get("/categories", handlers.ListCategories(application))
	api.Get("/categories/stream", handlers.StreamCategories(application))
	api.Get("/categories/:id/products", handlers.ListCategoryProducts(application))
	api.Get("/products/featured", handlers.ListFeaturedProducts(application))
	api.Get("/products/:id", handlers.GetProduct(application))
	api.Get("/products/:id/thumbnail", handlers.GetProductThumbnail(application))
	api.Get("/products/:id/images/*", handlers.GetProductImage(application))

	// Auth routes; sign-in attempts are limited per client
	auth := api.Group("/auth", limiter.New(limiter.Config{
		Max:        20,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "auth:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many authentication attempts",
			})
		},
	}))
	auth.Post("/signup", handlers.SignUp(application))
	auth.Post("/signin", handlers.SignIn(application))
	auth.Post("/reset-password", handlers.ResetPassword(application))
	auth.Post("/signout", middleware.AuthRequired(application.SessionStore), handlers.SignOut(application))
	auth.Get("/me", handlers.Me(application))

	// Protected user routes
	users := api.Group("/users/:id", middleware.AuthRequired(application.SessionStore), middleware.SameUser("id"), limiter.New(limiter.Config{
		Max:        100,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if userID, ok := c.Locals("userID").(string); ok {
				return "user:" + userID
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Rate limit exceeded for your account",
			})
		},
	}))
	users.Get("/profile", handlers.GetProfile(application))
	users.Put("/profile", handlers.UpdateProfile(application))
	users.Post("/image", handlers.UploadProfileImage(application))
	users.Get("/image", handlers.GetProfileImage(application))
}
