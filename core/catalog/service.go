package catalog

import (
	"context"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
)

var (
	// errors
	ErrCategoryNotFound = errors.New("category not found")
	ErrProductNotFound  = errors.New("product not found")
	ErrSlugExists       = errors.New("this slug is already in use")
	ErrImagesDisabled   = errors.New("image uploads are not configured")
)

type (
	Repository interface {
		CreateCategory(ctx context.Context, cat Category) (Category, error)
		// QueryCategories returns every category ordered by position then name.
		QueryCategories(ctx context.Context) ([]Category, error)
		GetCategory(ctx context.Context, filter GetFilter) (Category, error)
		UpdateCategory(ctx context.Context, cat Category) (Category, error)
		// DeleteCategory deletes a category and detaches its products.
		DeleteCategory(ctx context.Context, id string) error

		CreateProduct(ctx context.Context, p Product) (Product, error)
		// QueryProducts returns a page of the products matching filter, and the total number of matches.
		// ordering only contains ProductOrderings fields.
		QueryProducts(ctx context.Context, filter *ProductFilter, ordering []core.DBOrdering, page core.Page) ([]Product, int, error)
		GetProduct(ctx context.Context, filter GetFilter) (Product, error)
		GetProductsByIDs(ctx context.Context, ids ...string) ([]Product, error)
		UpdateProduct(ctx context.Context, p Product) (Product, error)
		DeleteProduct(ctx context.Context, id string) error
		CountProducts(ctx context.Context) (int, error)
	}

	// ImageStore issues presigned uploads for product images.
	ImageStore interface {
		PresignUpload(ctx context.Context, key, contentType string) (ImageUpload, error)
	}

	Service struct {
		repo     Repository
		cache    *Cache
		images   ImageStore // optional
		currency string
	}
)

func NewService(repo Repository, cache *Cache, images ImageStore, conf *core.Config) *Service {
	return &Service{repo: repo, cache: cache, images: images, currency: conf.Shop.Currency}
}

// Cache returns the product cache of the service.
func (svc *Service) Cache() *Cache {
	return svc.cache
}

// InvalidateCache drops every cached catalog result. Stock changes made outside of
// the catalog (checkout, cancellations) call it too.
func (svc *Service) InvalidateCache() {
	svc.cache.Invalidate()
}

func (svc *Service) checkCategorySlug(ctx context.Context, slug, excludedID string) error {
	cat, err := svc.repo.GetCategory(ctx, GetFilter{Slug: slug})
	switch errors.Cause(err) {
	case nil:
		if cat.ID != excludedID {
			return core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
		}
		return nil
	case ErrCategoryNotFound:
		return nil
	default:
		return errors.Wrap(err, "checking category slug")
	}
}

func (svc *Service) checkProductSlug(ctx context.Context, slug, excludedID string) error {
	p, err := svc.repo.GetProduct(ctx, GetFilter{Slug: slug})
	switch errors.Cause(err) {
	case nil:
		if p.ID != excludedID {
			return core.NewValidationError(ErrSlugExists, core.FieldError{Field: "slug", Error: ErrSlugExists.Error()})
		}
		return nil
	case ErrProductNotFound:
		return nil
	default:
		return errors.Wrap(err, "checking product slug")
	}
}

func (svc *Service) checkCategory(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := svc.repo.GetCategory(ctx, GetFilter{ID: id}); err != nil {
		if errors.Cause(err) == ErrCategoryNotFound {
			return core.NewFieldError("category_id", ErrCategoryNotFound.Error())
		}
		return errors.Wrap(err, "checking category")
	}
	return nil
}

// Categories

func (svc *Service) CreateCategory(ctx context.Context, nc NewCategory) (Category, error) {
	now := time.Now().UTC()
	cat, err := svc.repo.CreateCategory(ctx, Category{
		Name:        nc.Name,
		Slug:        nc.Slug,
		Description: nc.Description,
		ImageURL:    nc.ImageURL,
		Position:    nc.Position,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Category{}, errors.Wrap(err, "creating category")
	}
	svc.cache.Invalidate()
	return cat, nil
}

func (svc *Service) QueryCategories(ctx context.Context) ([]Category, bool, error) {
	val, cached, err := svc.cache.Get(ctx, "categories", func(ctx context.Context) (interface{}, error) {
		return svc.repo.QueryCategories(ctx)
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "querying categories")
	}
	return val.([]Category), cached, nil
}

// GetCategory finds a category by ID or slug.
func (svc *Service) GetCategory(ctx context.Context, key string) (Category, error) {
	return svc.repo.GetCategory(ctx, ParseKey(key))
}

func (svc *Service) UpdateCategory(ctx context.Context, cat Category, uc UpdateCategory) (Category, error) {
	uc.apply(&cat)
	cat.UpdatedAt = time.Now().UTC()
	cat, err := svc.repo.UpdateCategory(ctx, cat)
	if err != nil {
		return Category{}, errors.Wrap(err, "updating category")
	}
	svc.cache.Invalidate()
	return cat, nil
}

func (svc *Service) DeleteCategory(ctx context.Context, id string) error {
	if err := svc.repo.DeleteCategory(ctx, id); err != nil {
		return errors.Wrap(err, "deleting category")
	}
	svc.cache.Invalidate()
	return nil
}

// Products

func (svc *Service) CreateProduct(ctx context.Context, np NewProduct) (Product, error) {
	now := time.Now().UTC()
	isActive := true
	if np.IsActive != nil {
		isActive = *np.IsActive
	}
	imgs := np.ImageURLs
	if imgs == nil {
		imgs = []string{}
	}
	p, err := svc.repo.CreateProduct(ctx, Product{
		CategoryID:  np.CategoryID,
		Name:        np.Name,
		LocalName:   np.LocalName,
		Slug:        np.Slug,
		Description: np.Description,
		Price:       np.Price,
		SalePrice:   np.SalePrice,
		Currency:    svc.currency,
		Unit:        np.Unit,
		Stock:       np.Stock,
		ImageURLs:   imgs,
		IsActive:    isActive,
		IsFeatured:  np.IsFeatured,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return Product{}, errors.Wrap(err, "creating product")
	}
	svc.cache.Invalidate()
	return p, nil
}

// QueryProducts returns a page of products; cached reports whether it was served from the cache.
func (svc *Service) QueryProducts(ctx context.Context, filter ProductFilter, ordering []core.DBOrdering, page core.Page) (ProductPage, bool, error) {
	filter.Clean()
	page.Clean()
	ordering = core.FilterOrderings(ordering, ProductOrderings)
	if len(ordering) == 0 {
		ordering = defaultProductOrdering
	}

	if filter.CategorySlug != "" {
		cat, err := svc.repo.GetCategory(ctx, GetFilter{Slug: filter.CategorySlug})
		switch errors.Cause(err) {
		case nil:
			if filter.CategoryID != "" && filter.CategoryID != cat.ID {
				return ProductPage{Items: []Product{}, Page: page.Page, Limit: page.Limit}, false, nil
			}
			filter.CategoryID = cat.ID
		case ErrCategoryNotFound:
			return ProductPage{Items: []Product{}, Page: page.Page, Limit: page.Limit}, false, nil
		default:
			return ProductPage{}, false, errors.Wrap(err, "finding category by slug")
		}
		filter.CategorySlug = ""
	}

	val, cached, err := svc.cache.Get(ctx, filter.cacheKey(ordering, page), func(ctx context.Context) (interface{}, error) {
		items, total, err := svc.repo.QueryProducts(ctx, &filter, ordering, page)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []Product{}
		}
		return ProductPage{Items: items, Total: total, Page: page.Page, Limit: page.Limit}, nil
	})
	if err != nil {
		return ProductPage{}, false, errors.Wrap(err, "querying products")
	}
	return val.(ProductPage), cached, nil
}

// GetProduct finds a product by ID or slug. Inactive products are only visible to admins.
func (svc *Service) GetProduct(ctx context.Context, key string, includeInactive bool) (Product, bool, error) {
	filter := ParseKey(key)
	val, cached, err := svc.cache.Get(ctx, "product|"+filter.ID+"|"+filter.Slug, func(ctx context.Context) (interface{}, error) {
		return svc.repo.GetProduct(ctx, filter)
	})
	if err != nil {
		return Product{}, false, err
	}
	p := val.(Product)
	if !p.IsActive && !includeInactive {
		return Product{}, false, ErrProductNotFound
	}
	return p, cached, nil
}

// GetProductsByIDs bypasses the cache; it serves carts and checkout which need current stock.
func (svc *Service) GetProductsByIDs(ctx context.Context, ids ...string) (map[string]Product, error) {
	products := make(map[string]Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	found, err := svc.repo.GetProductsByIDs(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "finding products by IDs")
	}
	for _, p := range found {
		products[p.ID] = p
	}
	return products, nil
}

func (svc *Service) UpdateProduct(ctx context.Context, p Product, up UpdateProduct) (Product, error) {
	up.apply(&p)
	p.UpdatedAt = time.Now().UTC()
	p, err := svc.repo.UpdateProduct(ctx, p)
	if err != nil {
		return Product{}, errors.Wrap(err, "updating product")
	}
	svc.cache.Invalidate()
	return p, nil
}

func (svc *Service) DeleteProduct(ctx context.Context, id string) error {
	if err := svc.repo.DeleteProduct(ctx, id); err != nil {
		return errors.Wrap(err, "deleting product")
	}
	svc.cache.Invalidate()
	return nil
}

func (svc *Service) CountProducts(ctx context.Context) (int, error) {
	return svc.repo.CountProducts(ctx)
}

// PresignImageUpload returns a presigned URL the admin UI uploads a product image to.
func (svc *Service) PresignImageUpload(ctx context.Context, req ImageUploadRequest) (ImageUpload, error) {
	if svc.images == nil {
		return ImageUpload{}, ErrImagesDisabled
	}
	ext := strings.ToLower(path.Ext(req.Filename))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp":
	default:
		ext = map[string]string{"image/jpeg": ".jpg", "image/png": ".png", "image/webp": ".webp"}[req.ContentType]
	}
	upload, err := svc.images.PresignUpload(ctx, uuid.NewString()+ext, req.ContentType)
	if err != nil {
		return ImageUpload{}, errors.Wrap(err, "presigning image upload")
	}
	return upload, nil
}
