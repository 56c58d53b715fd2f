package review

import (
	"context"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/catalog"
	"github.com/saudamart/sauda/core/user"
)

var (
	// errors
	ErrNotFound        = errors.New("review not found")
	ErrAlreadyReviewed = errors.New("you already reviewed this product")
)

type Review struct {
	ID               string    `json:"id"`
	ProductID        string    `json:"product_id"`
	UserID           string    `json:"user_id"`
	UserName         string    `json:"user_name"`
	Rating           int       `json:"rating"`
	Title            string    `json:"title"`
	Comment          string    `json:"comment"`
	VerifiedPurchase bool      `json:"verified_purchase"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type NewReview struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Title   string `json:"title" validate:"max=120"`
	Comment string `json:"comment" validate:"max=2000"`
}

func (nr *NewReview) Validate(validate *validator.Validate) error {
	nr.Title = core.CleanString(nr.Title)
	nr.Comment = core.CleanString(nr.Comment)
	return validate.Struct(nr)
}

type UpdateReview struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Title   *string `json:"title" validate:"omitempty,max=120"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

func (ur *UpdateReview) Validate(validate *validator.Validate) error {
	if ur.Title != nil {
		*ur.Title = core.CleanString(*ur.Title)
	}
	if ur.Comment != nil {
		*ur.Comment = core.CleanString(*ur.Comment)
	}
	return validate.Struct(ur)
}

// Summary aggregates the ratings of a product. Stars maps a rating (1-5) to its count.
type Summary struct {
	Average float64     `json:"average"`
	Count   int         `json:"count"`
	Stars   map[int]int `json:"stars"`
}

// NewSummary computes a Summary from per rating counts.
func NewSummary(stars map[int]int) Summary {
	s := Summary{Stars: map[int]int{1: 0, 2: 0, 3: 0, 4: 0, 5: 0}}
	var sum int
	for rating, n := range stars {
		if rating < 1 || rating > 5 {
			continue
		}
		s.Stars[rating] = n
		s.Count += n
		sum += rating * n
	}
	if s.Count > 0 {
		// rounded to 2 decimals
		s.Average = math.Round(float64(sum)*100/float64(s.Count)) / 100
	}
	return s
}

type Page struct {
	Items   []Review `json:"items"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
	Summary Summary  `json:"summary"`
}

type (
	Repository interface {
		// CreateReview fails with ErrAlreadyReviewed when the user already reviewed the product.
		CreateReview(ctx context.Context, r Review) (Review, error)
		GetReview(ctx context.Context, id string) (Review, error)
		// QueryReviews returns a page of the reviews of a product, newest first, and their total number.
		QueryReviews(ctx context.Context, productID string, page core.Page) ([]Review, int, error)
		// RatingCounts returns the number of reviews of a product per rating.
		RatingCounts(ctx context.Context, productID string) (map[int]int, error)
		UpdateReview(ctx context.Context, r Review) (Review, error)
		DeleteReview(ctx context.Context, id string) error
	}

	PurchaseChecker interface {
		HasDeliveredProduct(ctx context.Context, userID, productID string) (bool, error)
	}

	Service struct {
		repo      Repository
		purchases PurchaseChecker
	}
)

func NewService(repo Repository, purchases PurchaseChecker) *Service {
	return &Service{repo: repo, purchases: purchases}
}

func (svc *Service) Create(ctx context.Context, usr user.User, p catalog.Product, nr NewReview) (Review, error) {
	verified, err := svc.purchases.HasDeliveredProduct(ctx, usr.ID, p.ID)
	if err != nil {
		return Review{}, errors.Wrap(err, "checking purchase")
	}

	now := time.Now().UTC()
	r, err := svc.repo.CreateReview(ctx, Review{
		ProductID:        p.ID,
		UserID:           usr.ID,
		UserName:         usr.Name,
		Rating:           nr.Rating,
		Title:            nr.Title,
		Comment:          nr.Comment,
		VerifiedPurchase: verified,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		if errors.Cause(err) == ErrAlreadyReviewed {
			return Review{}, core.NewValidationError(ErrAlreadyReviewed)
		}
		return Review{}, errors.Wrap(err, "creating review")
	}
	return r, nil
}

func (svc *Service) List(ctx context.Context, productID string, page core.Page) (Page, error) {
	page.Clean()
	reviews, total, err := svc.repo.QueryReviews(ctx, productID, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying reviews")
	}
	if reviews == nil {
		reviews = []Review{}
	}
	counts, err := svc.repo.RatingCounts(ctx, productID)
	if err != nil {
		return Page{}, errors.Wrap(err, "counting ratings")
	}
	return Page{Items: reviews, Total: total, Page: page.Page, Limit: page.Limit, Summary: NewSummary(counts)}, nil
}

// getOwned returns a review usr may change: their own, or any for admins.
func (svc *Service) getOwned(ctx context.Context, usr user.User, id string) (Review, error) {
	r, err := svc.repo.GetReview(ctx, id)
	if err != nil {
		return Review{}, err
	}
	if r.UserID != usr.ID && !usr.IsAdmin() {
		return Review{}, ErrNotFound
	}
	return r, nil
}

// Update edits a review; only its author may do so.
func (svc *Service) Update(ctx context.Context, usr user.User, id string, ur UpdateReview) (Review, error) {
	r, err := svc.repo.GetReview(ctx, id)
	if err != nil {
		return Review{}, err
	}
	if r.UserID != usr.ID {
		return Review{}, ErrNotFound
	}
	if ur.Rating != nil {
		r.Rating = *ur.Rating
	}
	if ur.Title != nil {
		r.Title = *ur.Title
	}
	if ur.Comment != nil {
		r.Comment = *ur.Comment
	}
	r.UpdatedAt = time.Now().UTC()
	r, err = svc.repo.UpdateReview(ctx, r)
	return r, errors.Wrap(err, "updating review")
}

func (svc *Service) Delete(ctx context.Context, usr user.User, id string) error {
	r, err := svc.getOwned(ctx, usr, id)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.repo.DeleteReview(ctx, r.ID), "deleting review")
}
