package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/saudamart/sauda/core"
)

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	ImageURL    string    `json:"image_url"`
	Position    int       `json:"position"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type NewCategory struct {
	Name        string `json:"name" validate:"required,notblank,max=100"`
	Slug        string `json:"slug" validate:"omitempty,slug,max=120"`
	Description string `json:"description" validate:"max=2000"`
	ImageURL    string `json:"image_url" validate:"omitempty,url"`
	Position    int    `json:"position" validate:"min=0"`
}

func (nc *NewCategory) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	nc.Description = core.CleanString(nc.Description)
	nc.ImageURL = core.CleanString(nc.ImageURL)
	if nc.Slug == "" {
		nc.Slug = core.Slugify(nc.Name)
	}

	if err := validate.Struct(nc); err != nil {
		return err
	}
	return svc.checkCategorySlug(ctx, nc.Slug, "")
}

type UpdateCategory struct {
	Name        *string `json:"name" validate:"omitempty,notblank,max=100"`
	Slug        *string `json:"slug" validate:"omitempty,slug,max=120"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	ImageURL    *string `json:"image_url" validate:"omitempty,url"`
	Position    *int    `json:"position" validate:"omitempty,min=0"`
}

func (uc *UpdateCategory) Validate(ctx context.Context, orig Category, validate *validator.Validate, svc *Service) error {
	cleanPtr(uc.Name, false)
	cleanPtr(uc.Slug, true)
	cleanPtr(uc.Description, false)
	cleanPtr(uc.ImageURL, false)

	if err := validate.Struct(uc); err != nil {
		return err
	}
	if uc.Slug != nil && *uc.Slug != orig.Slug {
		return svc.checkCategorySlug(ctx, *uc.Slug, orig.ID)
	}
	return nil
}

func (uc UpdateCategory) apply(cat *Category) {
	if uc.Name != nil && *uc.Name != "" {
		cat.Name = *uc.Name
	}
	if uc.Slug != nil && *uc.Slug != "" {
		cat.Slug = *uc.Slug
	}
	if uc.Description != nil {
		cat.Description = *uc.Description
	}
	if uc.ImageURL != nil {
		cat.ImageURL = *uc.ImageURL
	}
	if uc.Position != nil {
		cat.Position = *uc.Position
	}
}

type Product struct {
	ID          string    `json:"id"`
	CategoryID  string    `json:"category_id"` // empty when detached
	Name        string    `json:"name"`
	LocalName   string    `json:"local_name"` // Dari / Pashto
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	Price       int64     `json:"price"` // minor units
	SalePrice   *int64    `json:"sale_price"`
	Currency    string    `json:"currency"`
	Unit        string    `json:"unit"`
	Stock       int       `json:"stock"`
	ImageURLs   []string  `json:"image_urls"`
	IsActive    bool      `json:"is_active"`
	IsFeatured  bool      `json:"is_featured"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EffectivePrice is the sale price when set and lower than the regular price.
func (p Product) EffectivePrice() int64 {
	if p.SalePrice != nil && *p.SalePrice > 0 && *p.SalePrice < p.Price {
		return *p.SalePrice
	}
	return p.Price
}

func (p Product) OnSale() bool {
	return p.EffectivePrice() < p.Price
}

func (p Product) InStock() bool {
	return p.Stock > 0
}

// Available reports whether qty units can be ordered.
func (p Product) Available(qty int) bool {
	return p.IsActive && p.Stock >= qty
}

type NewProduct struct {
	CategoryID  string   `json:"category_id" validate:"omitempty,uuid"`
	Name        string   `json:"name" validate:"required,notblank,max=200"`
	LocalName   string   `json:"local_name" validate:"max=200"`
	Slug        string   `json:"slug" validate:"omitempty,slug,max=220"`
	Description string   `json:"description" validate:"max=5000"`
	Price       int64    `json:"price" validate:"required,gt=0"`
	SalePrice   *int64   `json:"sale_price" validate:"omitempty,gt=0,ltfield=Price"`
	Unit        string   `json:"unit" validate:"max=30"`
	Stock       int      `json:"stock" validate:"min=0"`
	ImageURLs   []string `json:"image_urls" validate:"max=10,dive,url"`
	IsActive    *bool    `json:"is_active"`
	IsFeatured  bool     `json:"is_featured"`
}

func (np *NewProduct) Validate(ctx context.Context, validate *validator.Validate, svc *Service) error {
	np.CategoryID = core.CleanString(np.CategoryID)
	np.Name = core.CleanString(np.Name)
	np.LocalName = core.CleanString(np.LocalName)
	np.Slug = core.CleanString(np.Slug, true /* lower */)
	np.Description = core.CleanString(np.Description)
	np.Unit = core.CleanString(np.Unit)
	if np.Slug == "" {
		np.Slug = core.Slugify(np.Name)
	}

	if err := validate.Struct(np); err != nil {
		return err
	}
	if np.Slug == "" {
		return core.NewFieldError("slug", "a latin slug is required for this name")
	}
	if err := svc.checkCategory(ctx, np.CategoryID); err != nil {
		return err
	}
	return svc.checkProductSlug(ctx, np.Slug, "")
}

type UpdateProduct struct {
	CategoryID  *string   `json:"category_id" validate:"omitempty,uuid"`
	Name        *string   `json:"name" validate:"omitempty,notblank,max=200"`
	LocalName   *string   `json:"local_name" validate:"omitempty,max=200"`
	Slug        *string   `json:"slug" validate:"omitempty,slug,max=220"`
	Description *string   `json:"description" validate:"omitempty,max=5000"`
	Price       *int64    `json:"price" validate:"omitempty,gt=0"`
	SalePrice   *int64    `json:"sale_price" validate:"omitempty,min=0"` // 0 clears the sale
	Unit        *string   `json:"unit" validate:"omitempty,max=30"`
	Stock       *int      `json:"stock" validate:"omitempty,min=0"`
	ImageURLs   *[]string `json:"image_urls" validate:"omitempty,max=10,dive,url"`
	IsActive    *bool     `json:"is_active"`
	IsFeatured  *bool     `json:"is_featured"`
}

func (up *UpdateProduct) Validate(ctx context.Context, orig Product, validate *validator.Validate, svc *Service) error {
	cleanPtr(up.CategoryID, false)
	cleanPtr(up.Name, false)
	cleanPtr(up.LocalName, false)
	cleanPtr(up.Slug, true)
	cleanPtr(up.Description, false)
	cleanPtr(up.Unit, false)

	if err := validate.Struct(up); err != nil {
		return err
	}

	price := orig.Price
	if up.Price != nil {
		price = *up.Price
	}
	if up.SalePrice != nil && *up.SalePrice > 0 && *up.SalePrice >= price {
		return core.NewFieldError("sale_price", "sale price must be lower than the price")
	}
	if up.CategoryID != nil {
		if err := svc.checkCategory(ctx, *up.CategoryID); err != nil {
			return err
		}
	}
	if up.Slug != nil && *up.Slug != "" && *up.Slug != orig.Slug {
		return svc.checkProductSlug(ctx, *up.Slug, orig.ID)
	}
	return nil
}

func (up UpdateProduct) apply(p *Product) {
	if up.CategoryID != nil {
		p.CategoryID = *up.CategoryID
	}
	if up.Name != nil && *up.Name != "" {
		p.Name = *up.Name
	}
	if up.LocalName != nil {
		p.LocalName = *up.LocalName
	}
	if up.Slug != nil && *up.Slug != "" {
		p.Slug = *up.Slug
	}
	if up.Description != nil {
		p.Description = *up.Description
	}
	if up.Price != nil {
		p.Price = *up.Price
	}
	if up.SalePrice != nil {
		if *up.SalePrice == 0 {
			p.SalePrice = nil
		} else {
			sp := *up.SalePrice
			p.SalePrice = &sp
		}
	}
	if up.Unit != nil {
		p.Unit = *up.Unit
	}
	if up.Stock != nil {
		p.Stock = *up.Stock
	}
	if up.ImageURLs != nil {
		p.ImageURLs = append([]string(nil), *up.ImageURLs...)
	}
	if up.IsActive != nil {
		p.IsActive = *up.IsActive
	}
	if up.IsFeatured != nil {
		p.IsFeatured = *up.IsFeatured
	}
}

// GetFilter finds a single category or product by ID or by slug.
type GetFilter struct {
	ID   string
	Slug string
}

// ParseKey turns an URL key, either an UUID or a slug, into a GetFilter.
func ParseKey(key string) GetFilter {
	key = core.CleanString(key)
	if _, err := uuid.Parse(key); err == nil {
		return GetFilter{ID: key}
	}
	return GetFilter{Slug: strings.ToLower(key)}
}

// ProductFilter applies AND operation on its set fields.
type ProductFilter struct {
	Search          string
	CategoryID      string
	CategorySlug    string // resolved into CategoryID by the Service
	MinPrice        *int64 // effective price
	MaxPrice        *int64
	InStock         bool
	Featured        bool
	IncludeInactive bool // admins only
}

func (pf *ProductFilter) Clean() {
	pf.Search = core.CleanString(pf.Search)
	pf.CategoryID = core.CleanString(pf.CategoryID)
	pf.CategorySlug = core.CleanString(pf.CategorySlug, true /* lower */)
}

// Match reports whether p satisfies every set field of the filter.
// It mirrors the SQL implementation and is used by in-memory storage.
func (pf *ProductFilter) Match(p Product) bool {
	if pf == nil {
		return p.IsActive
	}
	if !pf.IncludeInactive && !p.IsActive {
		return false
	}
	if pf.Search != "" {
		s := strings.ToLower(pf.Search)
		if !(strings.Contains(strings.ToLower(p.Name), s) ||
			strings.Contains(strings.ToLower(p.LocalName), s) ||
			strings.Contains(strings.ToLower(p.Description), s)) {
			return false
		}
	}
	if pf.CategoryID != "" && p.CategoryID != pf.CategoryID {
		return false
	}
	if pf.MinPrice != nil && p.EffectivePrice() < *pf.MinPrice {
		return false
	}
	if pf.MaxPrice != nil && p.EffectivePrice() > *pf.MaxPrice {
		return false
	}
	if pf.InStock && !p.InStock() {
		return false
	}
	if pf.Featured && !p.IsFeatured {
		return false
	}
	return true
}

// cacheKey identifies the results of a query for the product cache.
func (pf ProductFilter) cacheKey(ordering []core.DBOrdering, page core.Page) string {
	var b strings.Builder
	fmt.Fprintf(&b, "list|q=%s|c=%s|in=%t|f=%t|all=%t", pf.Search, pf.CategoryID, pf.InStock, pf.Featured, pf.IncludeInactive)
	if pf.MinPrice != nil {
		fmt.Fprintf(&b, "|min=%d", *pf.MinPrice)
	}
	if pf.MaxPrice != nil {
		fmt.Fprintf(&b, "|max=%d", *pf.MaxPrice)
	}
	for _, ord := range ordering {
		fmt.Fprintf(&b, "|o=%s", ord)
	}
	fmt.Fprintf(&b, "|p=%d|l=%d", page.Page, page.Limit)
	return b.String()
}

// ProductPage is a page of products along with the total number of matches.
type ProductPage struct {
	Items []Product `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// ProductOrderings are the fields products can be ordered by. "price" is the effective price.
var ProductOrderings = map[string]string{
	"price":      "price",
	"name":       "name",
	"created_at": "created_at",
	"stock":      "stock",
}

var defaultProductOrdering = []core.DBOrdering{{Field: "created_at"}, {Field: "name", Ascending: true}}

type ImageUploadRequest struct {
	Filename    string `json:"filename" validate:"required,notblank,max=200"`
	ContentType string `json:"content_type" validate:"required,oneof=image/jpeg image/png image/webp"`
}

func (ir *ImageUploadRequest) Validate(validate *validator.Validate) error {
	ir.Filename = core.CleanString(ir.Filename)
	ir.ContentType = core.CleanString(ir.ContentType, true /* lower */)
	return validate.Struct(ir)
}

// ImageUpload is a presigned upload; the client PUTs the file to UploadURL
// then saves PublicURL in the product image URLs.
type ImageUpload struct {
	Key       string    `json:"key"`
	UploadURL string    `json:"upload_url"`
	PublicURL string    `json:"public_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func cleanPtr(s *string, lower bool) {
	if s != nil {
		*s = core.CleanString(*s, lower)
	}
}
