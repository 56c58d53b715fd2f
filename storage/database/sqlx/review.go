package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/review"
)

type reviewRow struct {
	ID               string    `db:"id"`
	ProductID        string    `db:"product_id"`
	UserID           string    `db:"user_id"`
	UserName         string    `db:"user_name"`
	Rating           int       `db:"rating"`
	Title            string    `db:"title"`
	Comment          string    `db:"comment"`
	VerifiedPurchase bool      `db:"verified_purchase"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r reviewRow) toReview() review.Review {
	rev := review.Review(r)
	rev.CreatedAt = rev.CreatedAt.UTC()
	rev.UpdatedAt = rev.UpdatedAt.UTC()
	return rev
}

const reviewColumns = `id, product_id, user_id, user_name, rating, title, comment, verified_purchase, created_at, updated_at`

type reviewRepository struct {
	db *sqlx.DB
}

var _ review.Repository = (*reviewRepository)(nil)

func NewReviewRepository(db *sqlx.DB) review.Repository {
	return &reviewRepository{db: db}
}

func (repo *reviewRepository) CreateReview(ctx context.Context, r review.Review) (review.Review, error) {
	q, args, err := repo.db.BindNamed(`INSERT INTO review (product_id, user_id, user_name, rating, title, comment,
			verified_purchase, created_at, updated_at)
		VALUES (:product_id, :user_id, :user_name, :rating, :title, :comment, :verified_purchase, :created_at, :updated_at)
		RETURNING id`, reviewRow(r))
	if err != nil {
		return review.Review{}, errors.Wrap(err, "binding review insert")
	}
	if err = repo.db.GetContext(ctx, &r.ID, q, args...); err != nil {
		if pqCode(err) == uniqueViolation {
			return review.Review{}, review.ErrAlreadyReviewed
		}
		return review.Review{}, errors.Wrap(err, "inserting review")
	}
	return r, nil
}

func (repo *reviewRepository) GetReview(ctx context.Context, id string) (review.Review, error) {
	if !validID(id) {
		return review.Review{}, review.ErrNotFound
	}
	var row reviewRow
	if err := repo.db.GetContext(ctx, &row, `SELECT `+reviewColumns+` FROM review WHERE id = $1`, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return review.Review{}, review.ErrNotFound
		}
		return review.Review{}, errors.Wrap(err, "selecting review")
	}
	return row.toReview(), nil
}

func (repo *reviewRepository) QueryReviews(ctx context.Context, productID string, page core.Page) ([]review.Review, int, error) {
	reviews := make([]review.Review, 0)
	if !validID(productID) {
		return reviews, 0, nil
	}

	var total int
	if err := repo.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM review WHERE product_id = $1`, productID); err != nil {
		return nil, 0, errors.Wrap(err, "counting reviews")
	}

	var rows []reviewRow
	q := `SELECT ` + reviewColumns + ` FROM review WHERE product_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`
	if err := repo.db.SelectContext(ctx, &rows, q, productID, page.Limit, page.Offset()); err != nil {
		return nil, 0, errors.Wrap(err, "selecting reviews")
	}
	for _, r := range rows {
		reviews = append(reviews, r.toReview())
	}
	return reviews, total, nil
}

func (repo *reviewRepository) RatingCounts(ctx context.Context, productID string) (map[int]int, error) {
	counts := make(map[int]int, 5)
	if !validID(productID) {
		return counts, nil
	}
	var rows []struct {
		Rating int `db:"rating"`
		Count  int `db:"count"`
	}
	q := `SELECT rating, COUNT(*) AS count FROM review WHERE product_id = $1 GROUP BY rating`
	if err := repo.db.SelectContext(ctx, &rows, q, productID); err != nil {
		return nil, errors.Wrap(err, "counting ratings")
	}
	for _, r := range rows {
		counts[r.Rating] = r.Count
	}
	return counts, nil
}

func (repo *reviewRepository) UpdateReview(ctx context.Context, r review.Review) (review.Review, error) {
	res, err := repo.db.NamedExecContext(ctx, `UPDATE review SET rating = :rating, title = :title, comment = :comment,
		verified_purchase = :verified_purchase, updated_at = :updated_at WHERE id = :id`, reviewRow(r))
	if err != nil {
		return review.Review{}, errors.Wrap(err, "updating review")
	}
	if n, err := rowsAffected(res); err != nil {
		return review.Review{}, err
	} else if n == 0 {
		return review.Review{}, review.ErrNotFound
	}
	return r, nil
}

func (repo *reviewRepository) DeleteReview(ctx context.Context, id string) error {
	if !validID(id) {
		return review.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM review WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting review")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return review.ErrNotFound
	}
	return nil
}
