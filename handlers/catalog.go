package handlers

import (
	"appcommerce/app"
	"appcommerce/docstore"
	"appcommerce/imagecache"
	"appcommerce/models"
	"appcommerce/services"
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

const streamHeartbeat = 15 * time.Second

func categoryFilters(c *fiber.Ctx) []docstore.Filter {
	if c.QueryBool("featured", false) {
		return []docstore.Filter{services.FeaturedOnly}
	}
	return nil
}

// Health reports that the server is up
func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// ListCategories returns the first snapshot of the category listing
func ListCategories(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(a, c)
		defer cancel()

		cats := a.Catalog.ListCategories(ctx, categoryFilters(c)...)
		defer cats.Close()

		r, _, err := cats.Next(ctx, 0)
		if err == nil {
			err = r.Err
		}
		if err != nil {
			return serviceError(c, "Failed to list categories", err)
		}
		return success(c, fiber.Map{"categories": r.Value})
	}
}

// StreamCategories sends every category snapshot as a server-sent event
// until the client goes away or the subscription fails.
func StreamCategories(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")

		filters := categoryFilters(c)
		logger := a.Logger.With("handler", "category_stream")

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			cats := a.Catalog.ListCategories(ctx, filters...)
			defer cats.Close()

			var seen uint64
			for {
				wait, stop := context.WithTimeout(ctx, streamHeartbeat)
				r, v, err := cats.Next(wait, seen)
				stop()
				if errors.Is(err, context.DeadlineExceeded) {
					// Comment line; a failed flush means the client is gone
					fmt.Fprint(w, ": ping\n\n")
					if w.Flush() != nil {
						return
					}
					continue
				}
				if err != nil {
					logger.Debug("category stream ended", "error", err)
					return
				}
				seen = v

				event, payload := "categories", fiber.Map{"categories": r.Value}
				if r.Err != nil {
					event, payload = "error", fiber.Map{"error": r.Err.Error()}
				}
				data, err := json.Marshal(payload)
				if err != nil {
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
				if w.Flush() != nil || r.Err != nil {
					return
				}
			}
		})
		return nil
	}
}

// ListFeaturedProducts returns the first snapshot of featured products
func ListFeaturedProducts(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(a, c)
		defer cancel()

		products := a.Catalog.ListFeaturedProducts(ctx)
		defer products.Close()

		r, _, err := products.Next(ctx, 0)
		if err == nil {
			err = r.Err
		}
		if err != nil {
			return serviceError(c, "Failed to list featured products", err)
		}
		return success(c, fiber.Map{"products": r.Value})
	}
}

// ListCategoryProducts waits for every product in a category. Products that
// loaded are returned even when others failed.
func ListCategoryProducts(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(a, c)
		defer cancel()

		products := a.Catalog.ListProductsByCategory(ctx, c.Params("id"))
		defer products.Close()

		list, err := products.Await(ctx)
		if err != nil && len(list) == 0 {
			return serviceError(c, "Failed to list products", err)
		}
		resp := fiber.Map{"products": list}
		if err != nil {
			resp["error"] = "Some products could not be loaded"
		}
		return success(c, resp)
	}
}

func variantsResponse(v models.ProductVariants) fiber.Map {
	loaded := []string{}
	failed := fiber.Map{}
	for _, f := range models.VariantFields {
		if v.Has(f) {
			loaded = append(loaded, f.String())
		}
		if err, ok := v.Failed[f]; ok {
			failed[f.String()] = err.Error()
		}
	}
	return fiber.Map{
		"product": v.Product,
		"colors":  v.Colors,
		"sizes":   v.Sizes,
		"images":  v.Images,
		"loaded":  loaded,
		"failed":  failed,
	}
}

// GetProduct returns a product with its colors, sizes and images
func GetProduct(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(a, c)
		defer cancel()

		variants := a.Catalog.LoadProductVariants(ctx, c.Params("id"))
		defer variants.Close()

		v, err := variants.Await(ctx)
		if err != nil && !v.Has(models.FieldProduct) {
			if ferr, ok := v.Failed[models.FieldProduct]; ok {
				err = ferr
			}
			return serviceError(c, "Failed to load product", err)
		}
		return success(c, variantsResponse(v))
	}
}

// GetProductImage streams products/{id}/{path} through the image cache
func GetProductImage(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(a, c)
		defer cancel()

		var target imagecache.Buffer
		product := models.Product{ID: c.Params("id")}
		img := a.Catalog.ResolveImage(ctx, product, c.Params("*"), &target)
		defer img.Close()

		_, err := img.Await(ctx)
		return sendImage(c, &target, err)
	}
}

// GetProductThumbnail loads the product to find its thumbnail and streams it
func GetProductThumbnail(a *app.App) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := requestContext(a, c)
		defer cancel()

		variants := a.Catalog.LoadProductVariants(ctx, c.Params("id"))
		defer variants.Close()
		v, _ := variants.Await(ctx)
		if !v.Has(models.FieldProduct) {
			err := v.Failed[models.FieldProduct]
			if err == nil {
				err = ctx.Err()
			}
			return serviceError(c, "Failed to load product", err)
		}

		var target imagecache.Buffer
		img := a.Catalog.ResolveThumbnail(ctx, v.Product, &target)
		defer img.Close()

		_, err := img.Await(ctx)
		return sendImage(c, &target, err)
	}
}
