package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/user"
)

type orderRow struct {
	ID              string    `db:"id"`
	Number          string    `db:"number"`
	UserID          string    `db:"user_id"`
	Status          string    `db:"status"`
	PaymentMethod   string    `db:"payment_method"`
	Subtotal        int64     `db:"subtotal"`
	ShippingFee     int64     `db:"shipping_fee"`
	Total           int64     `db:"total"`
	Currency        string    `db:"currency"`
	ShippingAddress null.JSON `db:"shipping_address"`
	Note            string    `db:"note"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
	PaidAt          null.Time `db:"paid_at"`
}

func newOrderRow(o order.Order) (orderRow, error) {
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return orderRow{}, errors.Wrap(err, "encoding shipping address")
	}
	return orderRow{
		ID:              o.ID,
		Number:          o.Number,
		UserID:          o.UserID,
		Status:          o.Status,
		PaymentMethod:   o.PaymentMethod,
		Subtotal:        o.Subtotal,
		ShippingFee:     o.ShippingFee,
		Total:           o.Total,
		Currency:        o.Currency,
		ShippingAddress: null.JSONFrom(addr),
		Note:            o.Note,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		PaidAt:          null.TimeFromPtr(o.PaidAt),
	}, nil
}

func (r orderRow) toOrder() (order.Order, error) {
	o := order.Order{
		ID:            r.ID,
		Number:        r.Number,
		UserID:        r.UserID,
		Status:        r.Status,
		PaymentMethod: r.PaymentMethod,
		Subtotal:      r.Subtotal,
		ShippingFee:   r.ShippingFee,
		Total:         r.Total,
		Currency:      r.Currency,
		Note:          r.Note,
		Items:         []order.Item{},
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if r.PaidAt.Valid {
		paidAt := r.PaidAt.Time.UTC()
		o.PaidAt = &paidAt
	}
	if err := json.Unmarshal(r.ShippingAddress.JSON, &o.ShippingAddress); err != nil {
		return order.Order{}, errors.Wrap(err, "decoding shipping address")
	}
	return o, nil
}

type orderItemRow struct {
	OrderID   string `db:"order_id"`
	ProductID string `db:"product_id"`
	Name      string `db:"name"`
	UnitPrice int64  `db:"unit_price"`
	Quantity  int    `db:"quantity"`
}

const orderColumns = `id, number, user_id, status, payment_method, subtotal, shipping_fee, total, currency,
	shipping_address, note, created_at, updated_at, paid_at`

type orderRepository struct {
	db *sqlx.DB
}

var _ order.Repository = (*orderRepository)(nil)

func NewOrderRepository(db *sqlx.DB) order.Repository {
	return &orderRepository{db: db}
}

func (repo *orderRepository) PlaceOrder(ctx context.Context, o order.Order) (order.Order, error) {
	row, err := newOrderRow(o)
	if err != nil {
		return order.Order{}, err
	}

	// lock products in a stable order
	items := append([]order.Item(nil), o.Items...)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	err = inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		for _, it := range items {
			res, err := tx.ExecContext(ctx,
				`UPDATE product SET stock = stock - $1, updated_at = $2 WHERE id = $3 AND stock >= $1`,
				it.Quantity, o.CreatedAt, it.ProductID)
			if err != nil {
				return errors.Wrap(err, "decrementing stock")
			}
			if n, err := rowsAffected(res); err != nil {
				return err
			} else if n == 0 {
				return &order.StockError{ProductID: it.ProductID, Name: it.Name}
			}
		}

		q, args, err := tx.BindNamed(`INSERT INTO "order" (number, user_id, status, payment_method, subtotal, shipping_fee,
				total, currency, shipping_address, note, created_at, updated_at, paid_at)
			VALUES (:number, :user_id, :status, :payment_method, :subtotal, :shipping_fee,
				:total, :currency, :shipping_address, :note, :created_at, :updated_at, :paid_at)
			RETURNING id`, row)
		if err != nil {
			return errors.Wrap(err, "binding order insert")
		}
		if err = tx.GetContext(ctx, &o.ID, q, args...); err != nil {
			return errors.Wrap(err, "inserting order")
		}

		for _, it := range o.Items {
			_, err = tx.NamedExecContext(ctx,
				`INSERT INTO order_item (order_id, product_id, name, unit_price, quantity)
				VALUES (:order_id, :product_id, :name, :unit_price, :quantity)`,
				orderItemRow{OrderID: o.ID, ProductID: it.ProductID, Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
			if err != nil {
				return errors.Wrap(err, "inserting order item")
			}
		}

		_, err = tx.ExecContext(ctx, `DELETE FROM cart_item WHERE user_id = $1`, o.UserID)
		return errors.Wrap(err, "clearing cart")
	})
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

// loadItems fills the items of orders in one query.
func loadItems(ctx context.Context, db sqlx.QueryerContext, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make(pq.StringArray, 0, len(orders))
	idx := make(map[string]int, len(orders))
	for i, o := range orders {
		ids = append(ids, o.ID)
		idx[o.ID] = i
	}

	var rows []orderItemRow
	q := `SELECT order_id, product_id, name, unit_price, quantity FROM order_item WHERE order_id = ANY($1::uuid[]) ORDER BY name ASC`
	if err := sqlx.SelectContext(ctx, db, &rows, q, ids); err != nil {
		return errors.Wrap(err, "selecting order items")
	}
	for _, r := range rows {
		i := idx[r.OrderID]
		orders[i].Items = append(orders[i].Items, order.Item{
			ProductID: r.ProductID,
			Name:      r.Name,
			UnitPrice: r.UnitPrice,
			Quantity:  r.Quantity,
		})
	}
	return nil
}

func (repo *orderRepository) QueryOrders(ctx context.Context, filter *order.QueryFilter, page core.Page) ([]order.Order, int, error) {
	var w where
	if filter != nil {
		if filter.UserID != "" {
			w.and("user_id::text = " + w.arg(filter.UserID))
		}
		if filter.Status != "" {
			w.and("status = " + w.arg(filter.Status))
		}
		if filter.PaymentMethod != "" {
			w.and("payment_method = " + w.arg(filter.PaymentMethod))
		}
		if filter.Search != "" {
			w.and("number LIKE " + w.arg(prefixPattern(filter.Search)))
		}
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM "order"`+w.String(), w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "counting orders")
	}

	q := `SELECT ` + orderColumns + ` FROM "order"` + w.String() + ` ORDER BY created_at DESC, number DESC` + w.limit(page)
	var rows []orderRow
	if err := repo.db.SelectContext(ctx, &rows, q, w.args...); err != nil {
		return nil, 0, errors.Wrap(err, "selecting orders")
	}
	orders := make([]order.Order, 0, len(rows))
	for _, r := range rows {
		o, err := r.toOrder()
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, o)
	}
	if err := loadItems(ctx, repo.db, orders); err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func getOrder(ctx context.Context, db sqlx.QueryerContext, id string, forUpdate bool) (order.Order, error) {
	if !validID(id) {
		return order.Order{}, order.ErrNotFound
	}
	q := `SELECT ` + orderColumns + ` FROM "order" WHERE id = $1`
	if forUpdate {
		q += " FOR UPDATE"
	}
	var row orderRow
	if err := sqlx.GetContext(ctx, db, &row, q, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return order.Order{}, order.ErrNotFound
		}
		return order.Order{}, errors.Wrap(err, "selecting order")
	}
	o, err := row.toOrder()
	if err != nil {
		return order.Order{}, err
	}
	orders := []order.Order{o}
	if err = loadItems(ctx, db, orders); err != nil {
		return order.Order{}, err
	}
	return orders[0], nil
}

func (repo *orderRepository) GetOrder(ctx context.Context, id string) (order.Order, error) {
	return getOrder(ctx, repo.db, id, false)
}

func (repo *orderRepository) UpdateStatus(ctx context.Context, id, from, to string, at time.Time) (order.Order, error) {
	var o order.Order
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var err error
		if o, err = getOrder(ctx, tx, id, true); err != nil {
			return err
		}
		if o.Status != from {
			return order.ErrStatusConflict
		}

		o.Status = to
		o.UpdatedAt = at
		if to == order.StatusPaid {
			paidAt := at
			o.PaidAt = &paidAt
		}
		_, err = tx.ExecContext(ctx, `UPDATE "order" SET status = $1, updated_at = $2, paid_at = $3 WHERE id = $4`,
			o.Status, o.UpdatedAt, null.TimeFromPtr(o.PaidAt), o.ID)
		if err != nil {
			return errors.Wrap(err, "updating order status")
		}

		if to == order.StatusCancelled {
			for _, it := range o.Items {
				_, err = tx.ExecContext(ctx, `UPDATE product SET stock = stock + $1, updated_at = $2 WHERE id = $3`,
					it.Quantity, at, it.ProductID)
				if err != nil {
					return errors.Wrap(err, "restocking product")
				}
			}
		}
		return nil
	})
	if err != nil {
		return order.Order{}, err
	}
	return o, nil
}

func (repo *orderRepository) HasDeliveredProduct(ctx context.Context, userID, productID string) (bool, error) {
	if !validID(userID) || !validID(productID) {
		return false, nil
	}
	var found bool
	q := `SELECT EXISTS (
		SELECT 1 FROM "order" o JOIN order_item i ON i.order_id = o.id
		WHERE o.user_id = $1 AND i.product_id = $2 AND o.status = $3)`
	err := repo.db.GetContext(ctx, &found, q, userID, productID, order.StatusDelivered)
	return found, errors.Wrap(err, "checking delivered product")
}

func (repo *orderRepository) Stats(ctx context.Context, dayStart time.Time) (order.Stats, error) {
	stats := order.Stats{ByStatus: make(map[string]int, len(order.Statuses))}
	revenueStatuses := make(pq.StringArray, 0, len(order.Statuses))
	for _, s := range order.Statuses {
		stats.ByStatus[s] = 0
		if order.CountsAsRevenue(s) {
			revenueStatuses = append(revenueStatuses, s)
		}
	}

	var counts []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := repo.db.SelectContext(ctx, &counts, `SELECT status, COUNT(*) AS count FROM "order" GROUP BY status`); err != nil {
		return order.Stats{}, errors.Wrap(err, "counting orders per status")
	}
	for _, c := range counts {
		stats.ByStatus[c.Status] = c.Count
		stats.Orders += c.Count
	}

	q := `SELECT
		(SELECT COALESCE(SUM(total), 0) FROM "order" WHERE status = ANY($1)) AS revenue,
		(SELECT COUNT(*) FROM "order" WHERE created_at >= $2) AS today,
		(SELECT COUNT(*) FROM product) AS products,
		(SELECT COUNT(*) FROM "user" WHERE EXISTS (SELECT 1 FROM unnest(roles) AS r WHERE r LIKE $3)) AS customers`
	err := repo.db.QueryRowxContext(ctx, q, revenueStatuses, dayStart, user.RoleCustomer+"%").
		Scan(&stats.Revenue, &stats.TodayCount, &stats.Products, &stats.Customers)
	if err != nil {
		return order.Stats{}, errors.Wrap(err, "computing stats")
	}
	return stats, nil
}
