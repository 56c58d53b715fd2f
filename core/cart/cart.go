package cart

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/catalog"
)

// MaxLineQuantity is the maximum quantity of a single product in a cart.
const MaxLineQuantity = 50

var (
	// errors
	ErrItemNotFound = errors.New("product not in cart")
	ErrUnavailable  = errors.New("product is not available")
	ErrNotEnough    = errors.New("not enough stock for this quantity")
	ErrLineTooLarge = errors.New("quantity exceeds the per product limit")
)

type (
	Item struct {
		UserID    string    `json:"-"`
		ProductID string    `json:"product_id"`
		Quantity  int       `json:"quantity"`
		AddedAt   time.Time `json:"added_at"`
	}

	Line struct {
		Product   catalog.Product `json:"product"`
		Quantity  int             `json:"quantity"`
		UnitPrice int64           `json:"unit_price"`
		LineTotal int64           `json:"line_total"`
	}

	Cart struct {
		Lines     []Line `json:"lines"`
		ItemCount int    `json:"item_count"`
		Subtotal  int64  `json:"subtotal"`
		Currency  string `json:"currency"`
	}

	AddItem struct {
		ProductID string `json:"product_id" validate:"required,uuid"`
		Quantity  int    `json:"quantity" validate:"omitempty,min=1,max=50"`
	}

	SetQuantity struct {
		Quantity int `json:"quantity" validate:"min=0,max=50"`
	}
)

func (ai *AddItem) Validate(validate *validator.Validate) error {
	ai.ProductID = core.CleanString(ai.ProductID)
	if ai.Quantity == 0 {
		ai.Quantity = 1
	}
	return validate.Struct(ai)
}

func (sq *SetQuantity) Validate(validate *validator.Validate) error {
	return validate.Struct(sq)
}

func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

type (
	Repository interface {
		// ListItems returns the items of a user's cart, oldest first.
		ListItems(ctx context.Context, userID string) ([]Item, error)
		// SaveItem inserts or replaces the item of (UserID, ProductID).
		SaveItem(ctx context.Context, item Item) error
		DeleteItems(ctx context.Context, userID string, productIDs ...string) error
		Clear(ctx context.Context, userID string) error
	}

	ProductFinder interface {
		GetProductsByIDs(ctx context.Context, ids ...string) (map[string]catalog.Product, error)
	}

	Service struct {
		repo     Repository
		products ProductFinder
		currency string
	}
)

func NewService(repo Repository, products ProductFinder, conf *core.Config) *Service {
	return &Service{repo: repo, products: products, currency: conf.Shop.Currency}
}

// Get returns the cart of a user priced at current effective prices.
// Items of deleted or deactivated products are dropped.
func (svc *Service) Get(ctx context.Context, userID string) (Cart, error) {
	items, err := svc.repo.ListItems(ctx, userID)
	if err != nil {
		return Cart{}, errors.Wrap(err, "listing cart items")
	}

	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	products, err := svc.products.GetProductsByIDs(ctx, ids...)
	if err != nil {
		return Cart{}, errors.Wrap(err, "finding cart products")
	}

	c := Cart{Lines: make([]Line, 0, len(items)), Currency: svc.currency}
	var gone []string
	for _, it := range items {
		p, ok := products[it.ProductID]
		if !ok || !p.IsActive {
			gone = append(gone, it.ProductID)
			continue
		}
		price := p.EffectivePrice()
		line := Line{
			Product:   p,
			Quantity:  it.Quantity,
			UnitPrice: price,
			LineTotal: price * int64(it.Quantity),
		}
		c.Lines = append(c.Lines, line)
		c.ItemCount += line.Quantity
		c.Subtotal += line.LineTotal
	}

	if len(gone) > 0 {
		if err = svc.repo.DeleteItems(ctx, userID, gone...); err != nil {
			return Cart{}, errors.Wrap(err, "dropping unavailable cart items")
		}
	}
	return c, nil
}

func (svc *Service) checkQuantity(p catalog.Product, qty int) error {
	if !p.IsActive {
		return core.NewFieldError("product_id", ErrUnavailable.Error())
	}
	if qty > MaxLineQuantity {
		return core.NewFieldError("quantity", ErrLineTooLarge.Error())
	}
	if qty > p.Stock {
		return core.NewFieldError("quantity", ErrNotEnough.Error())
	}
	return nil
}

func (svc *Service) product(ctx context.Context, id string) (catalog.Product, error) {
	products, err := svc.products.GetProductsByIDs(ctx, id)
	if err != nil {
		return catalog.Product{}, errors.Wrap(err, "finding product")
	}
	p, ok := products[id]
	if !ok {
		return catalog.Product{}, core.NewFieldError("product_id", catalog.ErrProductNotFound.Error())
	}
	return p, nil
}

func (svc *Service) findItem(ctx context.Context, userID, productID string) (Item, bool, error) {
	items, err := svc.repo.ListItems(ctx, userID)
	if err != nil {
		return Item{}, false, errors.Wrap(err, "listing cart items")
	}
	for _, it := range items {
		if it.ProductID == productID {
			return it, true, nil
		}
	}
	return Item{}, false, nil
}

// Add adds a validated quantity of a product to the cart, on top of what is already there.
func (svc *Service) Add(ctx context.Context, userID string, ai AddItem) (Cart, error) {
	p, err := svc.product(ctx, ai.ProductID)
	if err != nil {
		return Cart{}, err
	}

	item, found, err := svc.findItem(ctx, userID, ai.ProductID)
	if err != nil {
		return Cart{}, err
	}
	if !found {
		item = Item{UserID: userID, ProductID: ai.ProductID, AddedAt: time.Now().UTC()}
	}
	item.Quantity += ai.Quantity

	if err = svc.checkQuantity(p, item.Quantity); err != nil {
		return Cart{}, err
	}
	if err = svc.repo.SaveItem(ctx, item); err != nil {
		return Cart{}, errors.Wrap(err, "saving cart item")
	}
	return svc.Get(ctx, userID)
}

// SetQuantity replaces the quantity of a product already in the cart; 0 removes it.
func (svc *Service) SetQuantity(ctx context.Context, userID, productID string, qty int) (Cart, error) {
	item, found, err := svc.findItem(ctx, userID, productID)
	if err != nil {
		return Cart{}, err
	}
	if !found {
		return Cart{}, ErrItemNotFound
	}
	if qty <= 0 {
		return svc.Remove(ctx, userID, productID)
	}

	p, err := svc.product(ctx, productID)
	if err != nil {
		return Cart{}, err
	}
	if err = svc.checkQuantity(p, qty); err != nil {
		return Cart{}, err
	}
	item.Quantity = qty
	if err = svc.repo.SaveItem(ctx, item); err != nil {
		return Cart{}, errors.Wrap(err, "saving cart item")
	}
	return svc.Get(ctx, userID)
}

func (svc *Service) Remove(ctx context.Context, userID, productID string) (Cart, error) {
	if err := svc.repo.DeleteItems(ctx, userID, productID); err != nil {
		return Cart{}, errors.Wrap(err, "deleting cart item")
	}
	return svc.Get(ctx, userID)
}

func (svc *Service) Clear(ctx context.Context, userID string) error {
	return errors.Wrap(svc.repo.Clear(ctx, userID), "clearing cart")
}
