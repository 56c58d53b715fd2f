package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core/address"
	"github.com/saudamart/sauda/core/cart"
	"github.com/saudamart/sauda/core/catalog"
	"github.com/saudamart/sauda/core/wishlist"
)

// Cart

type cartRepository struct {
	db *sqlx.DB
}

var _ cart.Repository = (*cartRepository)(nil)

func NewCartRepository(db *sqlx.DB) cart.Repository {
	return &cartRepository{db: db}
}

func (repo *cartRepository) ListItems(ctx context.Context, userID string) ([]cart.Item, error) {
	items := make([]cart.Item, 0)
	if !validID(userID) {
		return items, nil
	}
	q := `SELECT user_id, product_id, quantity, added_at FROM cart_item WHERE user_id = $1 ORDER BY added_at ASC, product_id ASC`
	rows, err := repo.db.QueryxContext(ctx, q, userID)
	if err != nil {
		return nil, errors.Wrap(err, "selecting cart items")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var item cart.Item
		if err = rows.Scan(&item.UserID, &item.ProductID, &item.Quantity, &item.AddedAt); err != nil {
			return nil, errors.Wrap(err, "scanning cart item")
		}
		item.AddedAt = item.AddedAt.UTC()
		items = append(items, item)
	}
	return items, errors.Wrap(rows.Err(), "iterating cart items")
}

func (repo *cartRepository) SaveItem(ctx context.Context, item cart.Item) error {
	q := `INSERT INTO cart_item (user_id, product_id, quantity, added_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`
	if _, err := repo.db.ExecContext(ctx, q, item.UserID, item.ProductID, item.Quantity, item.AddedAt); err != nil {
		if pqCode(err) == foreignKeyViolation {
			return catalog.ErrProductNotFound
		}
		return errors.Wrap(err, "saving cart item")
	}
	return nil
}

func (repo *cartRepository) DeleteItems(ctx context.Context, userID string, productIDs ...string) error {
	if !validID(userID) {
		return nil
	}
	q := `DELETE FROM cart_item WHERE user_id = $1 AND product_id = ANY($2::uuid[])`
	_, err := repo.db.ExecContext(ctx, q, userID, validIDs(productIDs...))
	return errors.Wrap(err, "deleting cart items")
}

func (repo *cartRepository) Clear(ctx context.Context, userID string) error {
	if !validID(userID) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM cart_item WHERE user_id = $1`, userID)
	return errors.Wrap(err, "clearing cart")
}

// Wishlist

type wishlistRepository struct {
	db *sqlx.DB
}

var _ wishlist.Repository = (*wishlistRepository)(nil)

func NewWishlistRepository(db *sqlx.DB) wishlist.Repository {
	return &wishlistRepository{db: db}
}

type wishlistRow struct {
	UserID    string    `db:"user_id"`
	ProductID string    `db:"product_id"`
	AddedAt   time.Time `db:"added_at"`
}

func (repo *wishlistRepository) ListItems(ctx context.Context, userID string) ([]wishlist.Item, error) {
	items := make([]wishlist.Item, 0)
	if !validID(userID) {
		return items, nil
	}
	var rows []wishlistRow
	q := `SELECT user_id, product_id, added_at FROM wishlist_item WHERE user_id = $1 ORDER BY added_at DESC, product_id ASC`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting wishlist items")
	}
	for _, r := range rows {
		items = append(items, wishlist.Item{UserID: r.UserID, ProductID: r.ProductID, AddedAt: r.AddedAt.UTC()})
	}
	return items, nil
}

func (repo *wishlistRepository) AddItem(ctx context.Context, item wishlist.Item) error {
	q := `INSERT INTO wishlist_item (user_id, product_id, added_at) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := repo.db.ExecContext(ctx, q, item.UserID, item.ProductID, item.AddedAt); err != nil {
		if pqCode(err) == foreignKeyViolation {
			return catalog.ErrProductNotFound
		}
		return errors.Wrap(err, "adding wishlist item")
	}
	return nil
}

func (repo *wishlistRepository) RemoveItem(ctx context.Context, userID, productID string) error {
	if !validID(userID) || !validID(productID) {
		return nil
	}
	_, err := repo.db.ExecContext(ctx, `DELETE FROM wishlist_item WHERE user_id = $1 AND product_id = $2`, userID, productID)
	return errors.Wrap(err, "removing wishlist item")
}

// Addresses

type addressRow struct {
	ID         string    `db:"id"`
	UserID     string    `db:"user_id"`
	Label      string    `db:"label"`
	FullName   string    `db:"full_name"`
	Phone      string    `db:"phone"`
	Line1      string    `db:"line1"`
	Line2      string    `db:"line2"`
	City       string    `db:"city"`
	Province   string    `db:"province"`
	PostalCode string    `db:"postal_code"`
	Country    string    `db:"country"`
	IsDefault  bool      `db:"is_default"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (r addressRow) toAddress() address.Address {
	a := address.Address(r)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a
}

const addressColumns = `id, user_id, label, full_name, phone, line1, line2, city, province, postal_code, country,
	is_default, created_at, updated_at`

type addressRepository struct {
	db *sqlx.DB
}

var _ address.Repository = (*addressRepository)(nil)

func NewAddressRepository(db *sqlx.DB) address.Repository {
	return &addressRepository{db: db}
}

func (repo *addressRepository) ListAddresses(ctx context.Context, userID string) ([]address.Address, error) {
	addrs := make([]address.Address, 0)
	if !validID(userID) {
		return addrs, nil
	}
	var rows []addressRow
	q := `SELECT ` + addressColumns + ` FROM address WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	if err := repo.db.SelectContext(ctx, &rows, q, userID); err != nil {
		return nil, errors.Wrap(err, "selecting addresses")
	}
	for _, r := range rows {
		addrs = append(addrs, r.toAddress())
	}
	return addrs, nil
}

func (repo *addressRepository) GetAddress(ctx context.Context, userID, id string) (address.Address, error) {
	if !validID(userID) || !validID(id) {
		return address.Address{}, address.ErrNotFound
	}
	var row addressRow
	q := `SELECT ` + addressColumns + ` FROM address WHERE id = $1 AND user_id = $2`
	if err := repo.db.GetContext(ctx, &row, q, id, userID); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return address.Address{}, address.ErrNotFound
		}
		return address.Address{}, errors.Wrap(err, "selecting address")
	}
	return row.toAddress(), nil
}

func (repo *addressRepository) CreateAddress(ctx context.Context, a address.Address) (address.Address, error) {
	err := inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		if a.IsDefault {
			if _, err := tx.ExecContext(ctx, `UPDATE address SET is_default = false WHERE user_id = $1 AND is_default`, a.UserID); err != nil {
				return errors.Wrap(err, "unsetting default address")
			}
		}
		q := `INSERT INTO address (user_id, label, full_name, phone, line1, line2, city, province, postal_code, country,
				is_default, created_at, updated_at)
			VALUES (:user_id, :label, :full_name, :phone, :line1, :line2, :city, :province, :postal_code, :country,
				:is_default, :created_at, :updated_at)
			RETURNING id`
		q, args, err := tx.BindNamed(q, addressRow(a))
		if err != nil {
			return errors.Wrap(err, "binding address insert")
		}
		return errors.Wrap(tx.GetContext(ctx, &a.ID, q, args...), "inserting address")
	})
	if err != nil {
		return address.Address{}, err
	}
	return a, nil
}

// UpdateAddress leaves IsDefault untouched; SetDefault owns it.
func (repo *addressRepository) UpdateAddress(ctx context.Context, a address.Address) (address.Address, error) {
	q := `UPDATE address SET label = :label, full_name = :full_name, phone = :phone, line1 = :line1, line2 = :line2,
			city = :city, province = :province, postal_code = :postal_code, country = :country, updated_at = :updated_at
		WHERE id = :id AND user_id = :user_id
		RETURNING is_default`
	q, args, err := repo.db.BindNamed(q, addressRow(a))
	if err != nil {
		return address.Address{}, errors.Wrap(err, "binding address update")
	}
	if err = repo.db.GetContext(ctx, &a.IsDefault, q, args...); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return address.Address{}, address.ErrNotFound
		}
		return address.Address{}, errors.Wrap(err, "updating address")
	}
	return a, nil
}

func (repo *addressRepository) DeleteAddress(ctx context.Context, userID, id string) error {
	if !validID(userID) || !validID(id) {
		return address.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM address WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return errors.Wrap(err, "deleting address")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return address.ErrNotFound
	}
	return nil
}

func (repo *addressRepository) SetDefault(ctx context.Context, userID, id string) error {
	if !validID(userID) || !validID(id) {
		return address.ErrNotFound
	}
	return inTx(ctx, repo.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM address WHERE id = $1 AND user_id = $2)`, id, userID); err != nil {
			return errors.Wrap(err, "checking address")
		}
		if !exists {
			return address.ErrNotFound
		}
		// the partial unique index forbids two defaults, even transiently
		if _, err := tx.ExecContext(ctx, `UPDATE address SET is_default = false WHERE user_id = $1 AND is_default`, userID); err != nil {
			return errors.Wrap(err, "unsetting default address")
		}
		_, err := tx.ExecContext(ctx, `UPDATE address SET is_default = true WHERE id = $1`, id)
		return errors.Wrap(err, "setting default address")
	})
}
