package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/catalog"
)

type catalogRepository struct {
	db *DB
}

var _ catalog.Repository = (*catalogRepository)(nil)

func NewCatalogRepository(db *DB) catalog.Repository {
	return &catalogRepository{db: db}
}

func copyProduct(p *catalog.Product) catalog.Product {
	cp := *p
	cp.ImageURLs = append([]string{}, p.ImageURLs...)
	if p.SalePrice != nil {
		sp := *p.SalePrice
		cp.SalePrice = &sp
	}
	return cp
}

// Categories

func (repo *catalogRepository) categorySlugTaken(slug, excludedID string) bool {
	for _, c := range repo.db.categories {
		if c.Slug == slug && c.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *catalogRepository) CreateCategory(_ context.Context, cat catalog.Category) (catalog.Category, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.categorySlugTaken(cat.Slug, "") {
		return catalog.Category{}, catalog.ErrSlugExists
	}
	cat.ID = newID()
	c := cat
	repo.db.categories[cat.ID] = &c
	return cat, nil
}

func (repo *catalogRepository) QueryCategories(_ context.Context) ([]catalog.Category, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	cats := make([]catalog.Category, 0, len(repo.db.categories))
	for _, c := range repo.db.categories {
		cats = append(cats, *c)
	}
	sort.Slice(cats, func(i, j int) bool {
		if cats[i].Position != cats[j].Position {
			return cats[i].Position < cats[j].Position
		}
		return strings.ToLower(cats[i].Name) < strings.ToLower(cats[j].Name)
	})
	return cats, nil
}

func (repo *catalogRepository) GetCategory(_ context.Context, filter catalog.GetFilter) (catalog.Category, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if c, ok := repo.db.categories[filter.ID]; ok {
			return *c, nil
		}
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	for _, c := range repo.db.categories {
		if filter.Slug != "" && c.Slug == filter.Slug {
			return *c, nil
		}
	}
	return catalog.Category{}, catalog.ErrCategoryNotFound
}

func (repo *catalogRepository) UpdateCategory(_ context.Context, cat catalog.Category) (catalog.Category, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.categories[cat.ID]; !ok {
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	if repo.categorySlugTaken(cat.Slug, cat.ID) {
		return catalog.Category{}, catalog.ErrSlugExists
	}
	c := cat
	repo.db.categories[cat.ID] = &c
	return cat, nil
}

func (repo *catalogRepository) DeleteCategory(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.categories[id]; !ok {
		return catalog.ErrCategoryNotFound
	}
	delete(repo.db.categories, id)
	for _, p := range repo.db.products {
		if p.CategoryID == id {
			p.CategoryID = ""
		}
	}
	return nil
}

// Products

func (repo *catalogRepository) productSlugTaken(slug, excludedID string) bool {
	for _, p := range repo.db.products {
		if p.Slug == slug && p.ID != excludedID {
			return true
		}
	}
	return false
}

func (repo *catalogRepository) CreateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if repo.productSlugTaken(p.Slug, "") {
		return catalog.Product{}, catalog.ErrSlugExists
	}
	p.ID = newID()
	cp := copyProduct(&p)
	repo.db.products[p.ID] = &cp
	return p, nil
}

func (repo *catalogRepository) QueryProducts(_ context.Context, filter *catalog.ProductFilter, ordering []core.DBOrdering, page core.Page) ([]catalog.Product, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	matches := make([]catalog.Product, 0)
	for _, p := range repo.db.products {
		if filter.Match(*p) {
			matches = append(matches, copyProduct(p))
		}
	}
	ordering = append(ordering[:len(ordering):len(ordering)], core.DBOrdering{Field: "id", Ascending: true})
	sort.Slice(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		return compareOrderings(ordering, func(field string) int {
			switch field {
			case "price":
				return compareInt64(a.EffectivePrice(), b.EffectivePrice())
			case "name":
				return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
			case "created_at":
				return compareTime(a.CreatedAt, b.CreatedAt)
			case "stock":
				return compareInt64(int64(a.Stock), int64(b.Stock))
			case "id":
				return strings.Compare(a.ID, b.ID)
			}
			return 0
		})
	})

	start, end := page.Bounds(len(matches))
	return matches[start:end], len(matches), nil
}

func (repo *catalogRepository) GetProduct(_ context.Context, filter catalog.GetFilter) (catalog.Product, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if filter.ID != "" {
		if p, ok := repo.db.products[filter.ID]; ok {
			return copyProduct(p), nil
		}
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	for _, p := range repo.db.products {
		if filter.Slug != "" && p.Slug == filter.Slug {
			return copyProduct(p), nil
		}
	}
	return catalog.Product{}, catalog.ErrProductNotFound
}

func (repo *catalogRepository) GetProductsByIDs(_ context.Context, ids ...string) ([]catalog.Product, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	products := make([]catalog.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := repo.db.products[id]; ok {
			products = append(products, copyProduct(p))
		}
	}
	return products, nil
}

func (repo *catalogRepository) UpdateProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.products[p.ID]; !ok {
		return catalog.Product{}, catalog.ErrProductNotFound
	}
	if repo.productSlugTaken(p.Slug, p.ID) {
		return catalog.Product{}, catalog.ErrSlugExists
	}
	cp := copyProduct(&p)
	repo.db.products[p.ID] = &cp
	return p, nil
}

func (repo *catalogRepository) DeleteProduct(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.products[id]; !ok {
		return catalog.ErrProductNotFound
	}
	delete(repo.db.products, id)
	for _, items := range repo.db.cartItems {
		delete(items, id)
	}
	for _, items := range repo.db.wishlist {
		delete(items, id)
	}
	for rid, r := range repo.db.reviews {
		if r.ProductID == id {
			delete(repo.db.reviews, rid)
		}
	}
	return nil
}

func (repo *catalogRepository) CountProducts(_ context.Context) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.db.products), nil
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
