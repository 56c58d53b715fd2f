package inmemdb

import (
	"context"
	"sort"

	"github.com/saudamart/sauda/core/address"
	"github.com/saudamart/sauda/core/cart"
	"github.com/saudamart/sauda/core/wishlist"
)

type (
	cartRow = cart.Item
	wishRow = wishlist.Item
)

// Cart

type cartRepository struct {
	db *DB
}

var _ cart.Repository = (*cartRepository)(nil)

func NewCartRepository(db *DB) cart.Repository {
	return &cartRepository{db: db}
}

func (repo *cartRepository) ListItems(_ context.Context, userID string) ([]cart.Item, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	items := make([]cart.Item, 0, len(repo.db.cartItems[userID]))
	for _, it := range repo.db.cartItems[userID] {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.Before(items[j].AddedAt)
		}
		return items[i].ProductID < items[j].ProductID
	})
	return items, nil
}

func (repo *cartRepository) SaveItem(_ context.Context, item cart.Item) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.products[item.ProductID]; !ok {
		return errForeignKey
	}
	items, ok := repo.db.cartItems[item.UserID]
	if !ok {
		items = make(map[string]cartRow)
		repo.db.cartItems[item.UserID] = items
	}
	items[item.ProductID] = item
	return nil
}

func (repo *cartRepository) DeleteItems(_ context.Context, userID string, productIDs ...string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, id := range productIDs {
		delete(repo.db.cartItems[userID], id)
	}
	return nil
}

func (repo *cartRepository) Clear(_ context.Context, userID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.cartItems, userID)
	return nil
}

// Wishlist

type wishlistRepository struct {
	db *DB
}

var _ wishlist.Repository = (*wishlistRepository)(nil)

func NewWishlistRepository(db *DB) wishlist.Repository {
	return &wishlistRepository{db: db}
}

func (repo *wishlistRepository) ListItems(_ context.Context, userID string) ([]wishlist.Item, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	items := make([]wishlist.Item, 0, len(repo.db.wishlist[userID]))
	for _, it := range repo.db.wishlist[userID] {
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].AddedAt.After(items[j].AddedAt)
		}
		return items[i].ProductID < items[j].ProductID
	})
	return items, nil
}

func (repo *wishlistRepository) AddItem(_ context.Context, item wishlist.Item) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	items, ok := repo.db.wishlist[item.UserID]
	if !ok {
		items = make(map[string]wishRow)
		repo.db.wishlist[item.UserID] = items
	}
	if _, exists := items[item.ProductID]; !exists {
		items[item.ProductID] = item
	}
	return nil
}

func (repo *wishlistRepository) RemoveItem(_ context.Context, userID, productID string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	delete(repo.db.wishlist[userID], productID)
	return nil
}

// Addresses

type addressRepository struct {
	db *DB
}

var _ address.Repository = (*addressRepository)(nil)

func NewAddressRepository(db *DB) address.Repository {
	return &addressRepository{db: db}
}

func (repo *addressRepository) ListAddresses(_ context.Context, userID string) ([]address.Address, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	addrs := make([]address.Address, 0)
	for _, a := range repo.db.addresses {
		if a.UserID == userID {
			addrs = append(addrs, *a)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		if !addrs[i].CreatedAt.Equal(addrs[j].CreatedAt) {
			return addrs[i].CreatedAt.After(addrs[j].CreatedAt)
		}
		return addrs[i].ID > addrs[j].ID
	})
	return addrs, nil
}

func (repo *addressRepository) GetAddress(_ context.Context, userID, id string) (address.Address, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if a, ok := repo.db.addresses[id]; ok && a.UserID == userID {
		return *a, nil
	}
	return address.Address{}, address.ErrNotFound
}

// unsetDefault must be called with the lock held.
func (repo *addressRepository) unsetDefault(userID string) {
	for _, a := range repo.db.addresses {
		if a.UserID == userID {
			a.IsDefault = false
		}
	}
}

func (repo *addressRepository) CreateAddress(_ context.Context, a address.Address) (address.Address, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if a.IsDefault {
		repo.unsetDefault(a.UserID)
	}
	a.ID = newID()
	row := a
	repo.db.addresses[a.ID] = &row
	return a, nil
}

func (repo *addressRepository) UpdateAddress(_ context.Context, a address.Address) (address.Address, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	orig, ok := repo.db.addresses[a.ID]
	if !ok || orig.UserID != a.UserID {
		return address.Address{}, address.ErrNotFound
	}
	a.IsDefault = orig.IsDefault
	row := a
	repo.db.addresses[a.ID] = &row
	return a, nil
}

func (repo *addressRepository) DeleteAddress(_ context.Context, userID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if a, ok := repo.db.addresses[id]; !ok || a.UserID != userID {
		return address.ErrNotFound
	}
	delete(repo.db.addresses, id)
	return nil
}

func (repo *addressRepository) SetDefault(_ context.Context, userID, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	a, ok := repo.db.addresses[id]
	if !ok || a.UserID != userID {
		return address.ErrNotFound
	}
	repo.unsetDefault(userID)
	a.IsDefault = true
	return nil
}
