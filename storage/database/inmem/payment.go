package inmemdb

import (
	"context"
	"time"

	"github.com/saudamart/sauda/core/payment"
)

type paymentRepository struct {
	db *DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *DB) payment.Repository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(_ context.Context, p payment.Payment) (payment.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.payments {
		if existing.Provider == p.Provider && existing.ProviderRef == p.ProviderRef {
			return payment.Payment{}, payment.ErrDuplicateRef
		}
	}
	if _, ok := repo.db.orders[p.OrderID]; !ok {
		return payment.Payment{}, errForeignKey
	}
	p.ID = newID()
	row := p
	repo.db.payments[p.ID] = &row
	return p, nil
}

func (repo *paymentRepository) GetPaymentByRef(_ context.Context, provider, ref string) (payment.Payment, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	for _, p := range repo.db.payments {
		if p.Provider == provider && p.ProviderRef == ref {
			return *p, nil
		}
	}
	return payment.Payment{}, payment.ErrNotFound
}

func (repo *paymentRepository) UpdatePaymentStatus(_ context.Context, id, status string, at time.Time) (payment.Payment, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	p, ok := repo.db.payments[id]
	if !ok {
		return payment.Payment{}, payment.ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = at
	return *p, nil
}
