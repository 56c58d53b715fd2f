package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/order"
)

type orderRepository struct {
	db *DB
}

var _ order.Repository = (*orderRepository)(nil)

func NewOrderRepository(db *DB) order.Repository {
	return &orderRepository{db: db}
}

func copyOrder(o *order.Order) order.Order {
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	return cp
}

func (repo *orderRepository) PlaceOrder(_ context.Context, o order.Order) (order.Order, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	// check everything first: the whole checkout fails on a single missing unit
	for _, it := range o.Items {
		p, ok := repo.db.products[it.ProductID]
		if !ok || p.Stock < it.Quantity {
			return order.Order{}, &order.StockError{ProductID: it.ProductID, Name: it.Name}
		}
	}
	for _, it := range o.Items {
		p := repo.db.products[it.ProductID]
		p.Stock -= it.Quantity
		p.UpdatedAt = o.CreatedAt
	}

	o.ID = newID()
	row := copyOrder(&o)
	repo.db.orders[o.ID] = &row
	delete(repo.db.cartItems, o.UserID)
	return o, nil
}

func (repo *orderRepository) QueryOrders(_ context.Context, filter *order.QueryFilter, page core.Page) ([]order.Order, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	matches := make([]order.Order, 0)
	for _, o := range repo.db.orders {
		if filter.Match(*o) {
			matches = append(matches, copyOrder(o))
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].Number > matches[j].Number
	})

	start, end := page.Bounds(len(matches))
	return matches[start:end], len(matches), nil
}

func (repo *orderRepository) GetOrder(_ context.Context, id string) (order.Order, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if o, ok := repo.db.orders[id]; ok {
		return copyOrder(o), nil
	}
	return order.Order{}, order.ErrNotFound
}

func (repo *orderRepository) UpdateStatus(_ context.Context, id, from, to string, at time.Time) (order.Order, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	o, ok := repo.db.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	if o.Status != from {
		return order.Order{}, order.ErrStatusConflict
	}

	o.Status = to
	o.UpdatedAt = at
	switch to {
	case order.StatusPaid:
		paidAt := at
		o.PaidAt = &paidAt
	case order.StatusCancelled:
		for _, it := range o.Items {
			if p, ok := repo.db.products[it.ProductID]; ok {
				p.Stock += it.Quantity
				p.UpdatedAt = at
			}
		}
	}
	return copyOrder(o), nil
}

func (repo *orderRepository) HasDeliveredProduct(_ context.Context, userID, productID string) (bool, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, o := range repo.db.orders {
		if o.UserID != userID || o.Status != order.StatusDelivered {
			continue
		}
		for _, it := range o.Items {
			if it.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

func (repo *orderRepository) Stats(_ context.Context, dayStart time.Time) (order.Stats, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	stats := order.Stats{ByStatus: make(map[string]int, len(order.Statuses))}
	for _, s := range order.Statuses {
		stats.ByStatus[s] = 0
	}
	for _, o := range repo.db.orders {
		stats.Orders++
		stats.ByStatus[o.Status]++
		if order.CountsAsRevenue(o.Status) {
			stats.Revenue += o.Total
		}
		if !o.CreatedAt.Before(dayStart) {
			stats.TodayCount++
		}
	}
	stats.Products = len(repo.db.products)
	for _, usr := range repo.db.users {
		if usr.IsCustomer() {
			stats.Customers++
		}
	}
	return stats, nil
}
