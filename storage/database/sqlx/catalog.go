package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/catalog"
)

type categoryRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	Description string    `db:"description"`
	ImageURL    string    `db:"image_url"`
	Position    int       `db:"position"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r categoryRow) toCategory() catalog.Category {
	return catalog.Category{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		Position:    r.Position,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newCategoryRow(cat catalog.Category) categoryRow {
	return categoryRow{
		ID:          cat.ID,
		Name:        cat.Name,
		Slug:        cat.Slug,
		Description: cat.Description,
		ImageURL:    cat.ImageURL,
		Position:    cat.Position,
		CreatedAt:   cat.CreatedAt,
		UpdatedAt:   cat.UpdatedAt,
	}
}

type productRow struct {
	ID          string         `db:"id"`
	CategoryID  null.String    `db:"category_id"`
	Name        string         `db:"name"`
	LocalName   string         `db:"local_name"`
	Slug        string         `db:"slug"`
	Description string         `db:"description"`
	Price       int64          `db:"price"`
	SalePrice   null.Int64     `db:"sale_price"`
	Currency    string         `db:"currency"`
	Unit        string         `db:"unit"`
	Stock       int            `db:"stock"`
	ImageURLs   pq.StringArray `db:"image_urls"`
	IsActive    bool           `db:"is_active"`
	IsFeatured  bool           `db:"is_featured"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r productRow) toProduct() catalog.Product {
	images := []string(r.ImageURLs)
	if images == nil {
		images = []string{}
	}
	return catalog.Product{
		ID:          r.ID,
		CategoryID:  r.CategoryID.String,
		Name:        r.Name,
		LocalName:   r.LocalName,
		Slug:        r.Slug,
		Description: r.Description,
		Price:       r.Price,
		SalePrice:   r.SalePrice.Ptr(),
		Currency:    r.Currency,
		Unit:        r.Unit,
		Stock:       r.Stock,
		ImageURLs:   images,
		IsActive:    r.IsActive,
		IsFeatured:  r.IsFeatured,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newProductRow(p catalog.Product) productRow {
	images := p.ImageURLs
	if images == nil {
		images = []string{}
	}
	return productRow{
		ID:          p.ID,
		CategoryID:  null.NewString(p.CategoryID, p.CategoryID != ""),
		Name:        p.Name,
		LocalName:   p.LocalName,
		Slug:        p.Slug,
		Description: p.Description,
		Price:       p.Price,
		SalePrice:   null.Int64FromPtr(p.SalePrice),
		Currency:    p.Currency,
		Unit:        p.Unit,
		Stock:       p.Stock,
		ImageURLs:   pq.StringArray(images),
		IsActive:    p.IsActive,
		IsFeatured:  p.IsFeatured,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

const (
	categoryColumns = `id, name, slug, description, image_url, position, created_at, updated_at`
	productColumns  = `id, category_id, name, local_name, slug, description, price, sale_price, currency, unit, stock,
		image_urls, is_active, is_featured, created_at, updated_at`

	effectivePrice = `LEAST(COALESCE(sale_price, price), price)`
)

var productOrderColumns = map[string]string{
	"price":      effectivePrice,
	"name":       "lower(name)",
	"created_at": "created_at",
	"stock":      "stock",
}

type catalogRepository struct {
	db *sqlx.DB
}

var _ catalog.Repository = (*catalogRepository)(nil)

func NewCatalogRepository(db *sqlx.DB) catalog.Repository {
	return &catalogRepository{db: db}
}

// Categories

func (repo *catalogRepository) CreateCategory(ctx context.Context, cat catalog.Category) (catalog.Category, error) {
	q := `INSERT INTO category (name, slug, description, image_url, position, created_at, updated_at)
		VALUES (:name, :slug, :description, :image_url, :position, :created_at, :updated_at)
		RETURNING id`
	stmt, err := repo.db.PrepareNamedContext(ctx, q)
	if err != nil {
		return catalog.Category{}, errors.Wrap(err, "preparing category insert")
	}
	defer func() { _ = stmt.Close() }()

	if err = stmt.GetContext(ctx, &cat.ID, newCategoryRow(cat)); err != nil {
		if pqCode(err) == uniqueViolation {
			return catalog.Category{}, catalog.ErrSlugExists
		}
		return catalog.Category{}, errors.Wrap(err, "inserting category")
	}
	return cat, nil
}

func (repo *catalogRepository) QueryCategories(ctx context.Context) ([]catalog.Category, error) {
	var rows []categoryRow
	q := `SELECT ` + categoryColumns + ` FROM category ORDER BY position ASC, lower(name) ASC`
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting categories")
	}
	cats := make([]catalog.Category, 0, len(rows))
	for _, r := range rows {
		cats = append(cats, r.toCategory())
	}
	return cats, nil
}

func (repo *catalogRepository) GetCategory(ctx context.Context, filter catalog.GetFilter) (catalog.Category, error) {
	var (
		row categoryRow
		err error
	)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return catalog.Category{}, catalog.ErrCategoryNotFound
		}
		err = repo.db.GetContext(ctx, &row, `SELECT `+categoryColumns+` FROM category WHERE id = $1`, filter.ID)
	case filter.Slug != "":
		err = repo.db.GetContext(ctx, &row, `SELECT `+categoryColumns+` FROM category WHERE slug = $1`, filter.Slug)
	default:
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return catalog.Category{}, catalog.ErrCategoryNotFound
		}
		return catalog.Category{}, errors.Wrap(err, "selecting category")
	}
	return row.toCategory(), nil
}

func (repo *catalogRepository) UpdateCategory(ctx context.Context, cat catalog.Category) (catalog.Category, error) {
	q := `UPDATE category SET name = :name, slug = :slug, description = :description, image_url = :image_url,
		position = :position, updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newCategoryRow(cat))
	if err != nil {
		if pqCode(err) == uniqueViolation {
			return catalog.Category{}, catalog.ErrSlugExists
		}
		return catalog.Category{}, errors.Wrap(err, "updating category")
	}
	if n, err := rowsAffected(res); err != nil {
		return catalog.Category{}, err
	} else if n == 0 {
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	return cat, nil
}

// DeleteCategory relies on ON DELETE SET NULL to detach the products of the category.
func (repo *catalogRepository) DeleteCategory(ctx context.Context, id string) error {
	if !validID(id) {
		return catalog.ErrCategoryNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM category WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting category")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return catalog.ErrCategoryNotFound
	}
	return nil
}

// Products

func productWhere(filter *catalog.ProductFilter) *where {
	w := new(where)
	if filter == nil {
		w.and("is_active")
		return w
	}
	if !filter.IncludeInactive {
		w.and("is_active")
	}
	if filter.Search != "" {
		p := w.arg(likePattern(filter.Search))
		w.and("(name ILIKE " + p + " OR local_name ILIKE " + p + " OR description ILIKE " + p + ")")
	}
	if filter.CategoryID != "" {
		w.and("category_id::text = " + w.arg(filter.CategoryID))
	}
	if filter.MinPrice != nil {
		w.and(effectivePrice + " >= " + w.arg(*filter.MinPrice))
	}
	if filter.MaxPrice != nil {
		w.and(effectivePrice + " <= " + w.arg(*filter.MaxPrice))
	}
	if filter.InStock {
		w.and("stock > 0")
	}
	if filter.Featured {
		w.and("is_featured")
	}
	return w
}

func (repo *catalogRepository) CreateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	q := `INSERT INTO product (category_id, name, local_name, slug, description, price, sale_price, currency, unit, stock,
			image_urls, is_active, is_featured, created_at, updated_at)
		VALUES (:category_id, :name, :local_name, :slug, :description, :price, :sale_price, :currency, :unit, :stock,
			:image_urls, :is_active, :is_featured, :created_at, :updated_at)
		RETURNING id`
	stmt, err := repo.db.PrepareNamedContext(ctx, q)
	if err != nil {
		return catalog.Product{}, errors.Wrap(err, "preparing product insert")
	}
	defer func() { _ = stmt.Close() }()

	if err = stmt.GetContext(ctx, &p.ID, newProductRow(p)); err != nil {
		switch pqCode(err) {
		case uniqueViolation:
			return catalog.Product{}, catalog.ErrSlugExists
		case foreignKeyViolation:
			return catalog.Product{}, catalog.ErrCategoryNotFound
		}
		return catalog.Product{}, errors.Wrap(err, "inserting product")
	}
	return p, nil
}

func (repo *catalogRepository) QueryProducts(ctx context.Context, filter *catalog.ProductFilter, ordering []core.DBOrdering, page core.Page) ([]catalog.Product, int, error) {
	w := productWhere(filter)

	var total int
	if err := repo.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM product`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting products")
	}

	q := `SELECT ` + productColumns + ` FROM product` + w.String() +
		orderBy(ordering, productOrderColumns, "id ASC") + w.limit(page)
	var rows []productRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting products")
	}
	products := make([]catalog.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, r.toProduct())
	}
	return products, total, nil
}

func (repo *catalogRepository) GetProduct(ctx context.Context, filter catalog.GetFilter) (catalog.Product, error) {
	var (
		row productRow
		err error
	)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return catalog.Product{}, catalog.ErrProductNotFound
		}
		err = repo.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM product WHERE id = $1`, filter.ID)
	case filter.Slug != "":
		err = repo.db.GetContext(ctx, &row, `SELECT `+productColumns+` FROM product WHERE slug = $1`, filter.Slug)
	default:
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return catalog.Product{}, catalog.ErrProductNotFound
		}
		return catalog.Product{}, errors.Wrap(err, "selecting product")
	}
	return row.toProduct(), nil
}

func (repo *catalogRepository) GetProductsByIDs(ctx context.Context, ids ...string) ([]catalog.Product, error) {
	var rows []productRow
	q := `SELECT ` + productColumns + ` FROM product WHERE id = ANY($1::uuid[])`
	if err := repo.db.SelectContext(ctx, &rows, q, validIDs(ids...)); err != nil {
		return nil, errors.Wrap(err, "selecting products")
	}
	products := make([]catalog.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, r.toProduct())
	}
	return products, nil
}

func (repo *catalogRepository) UpdateProduct(ctx context.Context, p catalog.Product) (catalog.Product, error) {
	q := `UPDATE product SET category_id = :category_id, name = :name, local_name = :local_name, slug = :slug,
		description = :description, price = :price, sale_price = :sale_price, currency = :currency, unit = :unit,
		stock = :stock, image_urls = :image_urls, is_active = :is_active, is_featured = :is_featured,
		updated_at = :updated_at
		WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, newProductRow(p))
	if err != nil {
		switch pqCode(err) {
		case uniqueViolation:
			return catalog.Product{}, catalog.ErrSlugExists
		case foreignKeyViolation:
			return catalog.Product{}, catalog.ErrCategoryNotFound
		}
		return catalog.Product{}, errors.Wrap(err, "updating product")
	}
	if n, err := rowsAffected(res); err != nil {
		return catalog.Product{}, err
	} else if n == 0 {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	return p, nil
}

// DeleteProduct cascades to carts, wishlists and reviews. Order items keep their snapshot.
func (repo *catalogRepository) DeleteProduct(ctx context.Context, id string) error {
	if !validID(id) {
		return catalog.ErrProductNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM product WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting product")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return catalog.ErrProductNotFound
	}
	return nil
}

func (repo *catalogRepository) CountProducts(ctx context.Context) (int, error) {
	var count int
	err := repo.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM product`)
	return count, errors.Wrap(err, "counting products")
}
