package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core/payment"
)

type paymentRow struct {
	ID          string    `db:"id"`
	OrderID     string    `db:"order_id"`
	Provider    string    `db:"provider"`
	ProviderRef string    `db:"provider_ref"`
	Amount      int64     `db:"amount"`
	Currency    string    `db:"currency"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r paymentRow) toPayment() payment.Payment {
	p := payment.Payment(r)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return p
}

const paymentColumns = `id, order_id, provider, provider_ref, amount, currency, status, created_at, updated_at`

type paymentRepository struct {
	db *sqlx.DB
}

var _ payment.Repository = (*paymentRepository)(nil)

func NewPaymentRepository(db *sqlx.DB) payment.Repository {
	return &paymentRepository{db: db}
}

func (repo *paymentRepository) CreatePayment(ctx context.Context, p payment.Payment) (payment.Payment, error) {
	q, args, err := repo.db.BindNamed(`INSERT INTO payment (order_id, provider, provider_ref, amount, currency, status, created_at, updated_at)
		VALUES (:order_id, :provider, :provider_ref, :amount, :currency, :status, :created_at, :updated_at)
		RETURNING id`, paymentRow(p))
	if err != nil {
		return payment.Payment{}, errors.Wrap(err, "binding payment insert")
	}
	if err = repo.db.GetContext(ctx, &p.ID, q, args...); err != nil {
		if pqCode(err) == uniqueViolation {
			return payment.Payment{}, payment.ErrDuplicateRef
		}
		return payment.Payment{}, errors.Wrap(err, "inserting payment")
	}
	return p, nil
}

func (repo *paymentRepository) GetPaymentByRef(ctx context.Context, provider, ref string) (payment.Payment, error) {
	var row paymentRow
	q := `SELECT ` + paymentColumns + ` FROM payment WHERE provider = $1 AND provider_ref = $2`
	if err := repo.db.GetContext(ctx, &row, q, provider, ref); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "selecting payment")
	}
	return row.toPayment(), nil
}

func (repo *paymentRepository) UpdatePaymentStatus(ctx context.Context, id, status string, at time.Time) (payment.Payment, error) {
	if !validID(id) {
		return payment.Payment{}, payment.ErrNotFound
	}
	var row paymentRow
	q := `UPDATE payment SET status = $1, updated_at = $2 WHERE id = $3 RETURNING ` + paymentColumns
	if err := repo.db.GetContext(ctx, &row, q, status, at, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return payment.Payment{}, payment.ErrNotFound
		}
		return payment.Payment{}, errors.Wrap(err, "updating payment status")
	}
	return row.toPayment(), nil
}
