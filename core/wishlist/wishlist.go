package wishlist

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core/catalog"
)

type (
	Item struct {
		UserID    string
		ProductID string
		AddedAt   time.Time
	}

	Entry struct {
		Product catalog.Product `json:"product"`
		AddedAt time.Time       `json:"added_at"`
	}

	Repository interface {
		// ListItems returns the items of a user, most recent first.
		ListItems(ctx context.Context, userID string) ([]Item, error)
		// AddItem does nothing when the product is already listed.
		AddItem(ctx context.Context, item Item) error
		RemoveItem(ctx context.Context, userID, productID string) error
	}

	ProductFinder interface {
		GetProductsByIDs(ctx context.Context, ids ...string) (map[string]catalog.Product, error)
	}

	Service struct {
		repo     Repository
		products ProductFinder
	}
)

func NewService(repo Repository, products ProductFinder) *Service {
	return &Service{repo: repo, products: products}
}

// List returns the wishlist of a user; deleted and deactivated products are left out.
func (svc *Service) List(ctx context.Context, userID string) ([]Entry, error) {
	items, err := svc.repo.ListItems(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing wishlist items")
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := svc.products.GetProductsByIDs(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "finding wishlist products")
	}

	entries := make([]Entry, 0, len(items))
	for _, it := range items {
		if p, ok := products[it.ProductID]; ok && p.IsActive {
			entries = append(entries, Entry{Product: p, AddedAt: it.AddedAt})
		}
	}
	return entries, nil
}

func (svc *Service) Add(ctx context.Context, userID, productID string) error {
	products, err := svc.products.GetProductsByIDs(ctx, productID)
	if err != nil {
		return errors.Wrap(err, "finding product")
	}
	if p, ok := products[productID]; !ok || !p.IsActive {
		return catalog.ErrProductNotFound
	}
	err = svc.repo.AddItem(ctx, Item{UserID: userID, ProductID: productID, AddedAt: time.Now().UTC()})
	return errors.Wrap(err, "adding wishlist item")
}

func (svc *Service) Remove(ctx context.Context, userID, productID string) error {
	return errors.Wrap(svc.repo.RemoveItem(ctx, userID, productID), "removing wishlist item")
}
