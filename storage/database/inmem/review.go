package inmemdb

import (
	"context"
	"sort"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/review"
)

type reviewRepository struct {
	db *DB
}

var _ review.Repository = (*reviewRepository)(nil)

func NewReviewRepository(db *DB) review.Repository {
	return &reviewRepository{db: db}
}

func (repo *reviewRepository) CreateReview(_ context.Context, r review.Review) (review.Review, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	for _, existing := range repo.db.reviews {
		if existing.ProductID == r.ProductID && existing.UserID == r.UserID {
			return review.Review{}, review.ErrAlreadyReviewed
		}
	}
	if _, ok := repo.db.products[r.ProductID]; !ok {
		return review.Review{}, errForeignKey
	}
	r.ID = newID()
	row := r
	repo.db.reviews[r.ID] = &row
	return r, nil
}

func (repo *reviewRepository) GetReview(_ context.Context, id string) (review.Review, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if r, ok := repo.db.reviews[id]; ok {
		return *r, nil
	}
	return review.Review{}, review.ErrNotFound
}

func (repo *reviewRepository) QueryReviews(_ context.Context, productID string, page core.Page) ([]review.Review, int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	matches := make([]review.Review, 0)
	for _, r := range repo.db.reviews {
		if r.ProductID == productID {
			matches = append(matches, *r)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})

	start, end := page.Bounds(len(matches))
	return matches[start:end], len(matches), nil
}

func (repo *reviewRepository) RatingCounts(_ context.Context, productID string) (map[int]int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	counts := make(map[int]int, 5)
	for _, r := range repo.db.reviews {
		if r.ProductID == productID {
			counts[r.Rating]++
		}
	}
	return counts, nil
}

func (repo *reviewRepository) UpdateReview(_ context.Context, r review.Review) (review.Review, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.reviews[r.ID]; !ok {
		return review.Review{}, review.ErrNotFound
	}
	row := r
	repo.db.reviews[r.ID] = &row
	return r, nil
}

func (repo *reviewRepository) DeleteReview(_ context.Context, id string) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if _, ok := repo.db.reviews[id]; !ok {
		return review.ErrNotFound
	}
	delete(repo.db.reviews, id)
	return nil
}
