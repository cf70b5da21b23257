package services

import (
	"appcommerce/blobstore"
	"appcommerce/docstore"
	"appcommerce/imagecache"
	"appcommerce/live"
	"appcommerce/models"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"golang.org/x/sync/errgroup"
)

// FeaturedOnly restricts a listing to featured entries
var FeaturedOnly = docstore.Filter{Field: "featured", Value: true}

// defaultFetchLimit bounds concurrent product reads per category
const defaultFetchLimit = 8

var productImageRequest = imagecache.Request{
	Placeholder: imagecache.ProductPlaceholder,
	Error:       imagecache.ProductError,
	Policy:      imagecache.CacheAll,
}

// CatalogService aggregates categories, products and their variants
type CatalogService struct {
	store      docstore.Store
	blobs      BlobStore
	images     ImageLoader
	logger     *slog.Logger
	fetchLimit int
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store docstore.Store, blobs BlobStore, images ImageLoader, logger *slog.Logger) *CatalogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogService{
		store:      store,
		blobs:      blobs,
		images:     images,
		logger:     logger.With("component", "catalog"),
		fetchLimit: defaultFetchLimit,
	}
}

// ListCategories follows product_categories, optionally filtered
func (cs *CatalogService) ListCategories(ctx context.Context, filters ...docstore.Filter) *live.Live[[]models.ProductCategory] {
	q := docstore.Query{Collection: CollectionCategories, Filters: filters}
	return subscribeList[models.ProductCategory](ctx, cs.store, q, cs.logger)
}

// ListFeaturedProducts follows every product flagged as featured
func (cs *CatalogService) ListFeaturedProducts(ctx context.Context) *live.Live[[]models.Product] {
	q := docstore.Query{Collection: CollectionProducts, Filters: []docstore.Filter{FeaturedOnly}}
	return subscribeList[models.Product](ctx, cs.store, q, cs.logger)
}

type productPartial struct {
	index   int
	product models.Product
	err     error
}

// ListProductsByCategory reads the category from the local cache only and then
// fetches every product it references. The list grows as products arrive and
// keeps the category's reference order.
func (cs *CatalogService) ListProductsByCategory(parent context.Context, categoryID string) *live.Live[[]models.Product] {
	ctx, out := live.Start[[]models.Product](parent)
	if strings.TrimSpace(categoryID) == "" {
		out.Reject(fmt.Errorf("%w: empty category id", ErrInvalidInput))
		return out
	}

	go func() {
		doc, err := cs.store.GetCached(ctx, docstore.Join(CollectionCategories, categoryID))
		if err != nil {
			out.Reject(fmt.Errorf("category %s: %w", categoryID, err))
			return
		}
		var category models.ProductCategory
		if err := doc.DecodeTo(&category); err != nil {
			out.Reject(err)
			return
		}

		refs := category.Products
		if len(refs) == 0 {
			out.Resolve([]models.Product{})
			return
		}

		partials := make(chan productPartial, len(refs))
		go func() {
			var g errgroup.Group
			g.SetLimit(cs.fetchLimit)
			for i, ref := range refs {
				g.Go(func() error {
					partials <- cs.fetchProduct(ctx, i, ref)
					return nil
				})
			}
			_ = g.Wait()
		}()

		slots := make([]*models.Product, len(refs))
		var errs []error
		for n := range len(refs) {
			p := <-partials
			if p.err != nil {
				errs = append(errs, p.err)
			} else {
				slots[p.index] = &p.product
			}

			if n == len(refs)-1 {
				out.PublishResult(live.Result[[]models.Product]{Value: inOrder(slots), Err: errors.Join(errs...)})
				out.Complete()
			} else if p.err == nil {
				out.Publish(inOrder(slots))
			}
		}
	}()
	return out
}

func (cs *CatalogService) fetchProduct(ctx context.Context, index int, ref string) productPartial {
	path := ref
	if !strings.Contains(path, "/") {
		path = docstore.Join(CollectionProducts, ref)
	}
	doc, err := cs.store.Get(ctx, path)
	if err != nil {
		return productPartial{index: index, err: fmt.Errorf("product %s: %w", path, err)}
	}
	var p models.Product
	if err := doc.DecodeTo(&p); err != nil {
		return productPartial{index: index, err: err}
	}
	return productPartial{index: index, product: p}
}

func inOrder(slots []*models.Product) []models.Product {
	out := make([]models.Product, 0, len(slots))
	for _, p := range slots {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

type variantPartial struct {
	field models.VariantField
	apply func(*models.ProductVariants)
	err   error
}

// LoadProductVariants loads a product and its colors, sizes and images as four
// independent reads. Every read that lands republishes the snapshot.
func (cs *CatalogService) LoadProductVariants(parent context.Context, productID string) *live.Live[models.ProductVariants] {
	ctx, out := live.Start[models.ProductVariants](parent)
	if strings.TrimSpace(productID) == "" {
		out.Reject(fmt.Errorf("%w: empty product id", ErrInvalidInput))
		return out
	}

	base := docstore.Join(CollectionProducts, productID)
	partials := make(chan variantPartial, len(models.VariantFields))

	go func() {
		doc, err := cs.store.Get(ctx, base)
		var p models.Product
		if err == nil {
			err = doc.DecodeTo(&p)
		}
		partials <- variantPartial{field: models.FieldProduct, err: err, apply: func(v *models.ProductVariants) { v.Product = p }}
	}()
	go func() {
		colors, err := querySub[models.ProductColor](ctx, cs.store, base, SubColors)
		partials <- variantPartial{field: models.FieldColors, err: err, apply: func(v *models.ProductVariants) { v.Colors = colors }}
	}()
	go func() {
		sizes, err := querySub[models.ProductSize](ctx, cs.store, base, SubSizes)
		partials <- variantPartial{field: models.FieldSizes, err: err, apply: func(v *models.ProductVariants) { v.Sizes = sizes }}
	}()
	go func() {
		images, err := querySub[models.ProductImage](ctx, cs.store, base, SubImages)
		partials <- variantPartial{field: models.FieldImages, err: err, apply: func(v *models.ProductVariants) { v.Images = images }}
	}()

	go func() {
		snap := models.ProductVariants{Failed: map[models.VariantField]error{}}
		var errs []error
		for n := range len(models.VariantFields) {
			p := <-partials

			next := snap
			next.Failed = maps.Clone(snap.Failed)
			if p.err != nil {
				next.Failed[p.field] = p.err
				errs = append(errs, fmt.Errorf("%s: %w", p.field, p.err))
			} else {
				p.apply(&next)
				next.Loaded |= p.field
			}
			snap = next

			if n == len(models.VariantFields)-1 {
				out.PublishResult(live.Result[models.ProductVariants]{Value: snap, Err: errors.Join(errs...)})
				out.Complete()
			} else {
				out.Publish(snap)
			}
		}
	}()
	return out
}

func querySub[T any](ctx context.Context, store docstore.Store, parent, sub string) ([]T, error) {
	docs, err := store.Query(ctx, docstore.Query{Collection: docstore.Join(parent, sub)})
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[T](docs)
}

// ResolveImage resolves products/{id}/{relativePath} and loads it into target
func (cs *CatalogService) ResolveImage(ctx context.Context, product models.Product, relativePath string, target imagecache.Target) *live.Live[string] {
	if product.ID == "" || strings.TrimSpace(relativePath) == "" {
		target.SetImage(productImageRequest.Error)
		return live.Resolved(live.Result[string]{Err: fmt.Errorf("%w: product image path", ErrInvalidInput)})
	}
	p, err := blobstore.ProductImagePath(product.ID, relativePath)
	if err != nil {
		target.SetImage(productImageRequest.Error)
		return live.Resolved(live.Result[string]{Err: fmt.Errorf("%w: %w", ErrInvalidInput, err)})
	}
	return resolveInto(ctx, cs.blobs, cs.images, p, target, productImageRequest)
}

// ResolveThumbnail is ResolveImage for the product's thumbnail
func (cs *CatalogService) ResolveThumbnail(ctx context.Context, product models.Product, target imagecache.Target) *live.Live[string] {
	return cs.ResolveImage(ctx, product, product.Thumbnail, target)
}
