package order

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/address"
	"github.com/saudamart/sauda/core/cart"
	"github.com/saudamart/sauda/core/user"
)

var (
	// errors
	ErrNotFound       = errors.New("order not found")
	ErrOutOfStock     = errors.New("out of stock")
	ErrEmptyCart      = errors.New("your cart is empty")
	ErrStatusConflict = errors.New("order status changed concurrently")
	ErrNotCancellable = errors.New("only pending orders can be cancelled")
)

type (
	Repository interface {
		// PlaceOrder atomically decrements the stock of every item (failing with a *StockError
		// when a product has less stock than ordered), saves the order and clears the cart of its user.
		PlaceOrder(ctx context.Context, o Order) (Order, error)
		// QueryOrders returns a page of the orders matching filter, newest first, and the total number of matches.
		QueryOrders(ctx context.Context, filter *QueryFilter, page core.Page) ([]Order, int, error)
		GetOrder(ctx context.Context, id string) (Order, error)
		// UpdateStatus moves an order from one status to another, failing with ErrStatusConflict
		// when its current status is not from. Cancelling restocks the items; paying sets PaidAt.
		UpdateStatus(ctx context.Context, id, from, to string, at time.Time) (Order, error)
		// HasDeliveredProduct reports whether the user received the product in a delivered order.
		HasDeliveredProduct(ctx context.Context, userID, productID string) (bool, error)
		// Stats counts orders per status, the revenue of paid orders and the orders placed since dayStart.
		Stats(ctx context.Context, dayStart time.Time) (Stats, error)
	}

	CartService interface {
		Get(ctx context.Context, userID string) (cart.Cart, error)
	}

	AddressService interface {
		Get(ctx context.Context, userID, id string) (address.Address, error)
	}

	// StockListener is told whenever stock levels change.
	StockListener interface {
		InvalidateCache()
	}

	Service struct {
		repo      Repository
		carts     CartService
		addresses AddressService
		stock     StockListener
		mailSvc   core.EmailService
		logger    core.Logger
		shop      core.ShopConfig
	}
)

func NewService(
	repo Repository,
	carts CartService,
	addresses AddressService,
	stock StockListener,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:      repo,
		carts:     carts,
		addresses: addresses,
		stock:     stock,
		mailSvc:   mailSvc,
		logger:    logger,
		shop:      conf.Shop,
	}
}

// ShippingFee returns the flat shipping fee, waived from the free shipping threshold.
func (svc *Service) ShippingFee(subtotal int64) int64 {
	if svc.shop.FreeShippingThreshold > 0 && subtotal >= svc.shop.FreeShippingThreshold {
		return 0
	}
	return svc.shop.ShippingFee
}

// Checkout turns the cart of usr into a pending order.
func (svc *Service) Checkout(ctx context.Context, usr user.User, co Checkout) (Order, error) {
	c, err := svc.carts.Get(ctx, usr.ID)
	if err != nil {
		return Order{}, errors.Wrap(err, "getting cart")
	}
	if c.IsEmpty() {
		return Order{}, core.NewValidationError(ErrEmptyCart)
	}

	var shipTo address.Snapshot
	if co.AddressID != "" {
		addr, err := svc.addresses.Get(ctx, usr.ID, co.AddressID)
		if err != nil {
			if errors.Cause(err) == address.ErrNotFound {
				return Order{}, core.NewFieldError("address_id", address.ErrNotFound.Error())
			}
			return Order{}, errors.Wrap(err, "getting address")
		}
		shipTo = addr.Snapshot()
	} else {
		shipTo = co.Address.Snapshot()
	}

	now := time.Now().UTC()
	o := Order{
		Number:          NewNumber(now),
		UserID:          usr.ID,
		Status:          StatusPending,
		PaymentMethod:   co.PaymentMethod,
		Currency:        c.Currency,
		ShippingAddress: shipTo,
		Note:            co.Note,
		Items:           make([]Item, 0, len(c.Lines)),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, line := range c.Lines {
		o.Items = append(o.Items, Item{
			ProductID: line.Product.ID,
			Name:      line.Product.Name,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
		o.Subtotal += line.LineTotal
	}
	o.ShippingFee = svc.ShippingFee(o.Subtotal)
	o.Total = o.Subtotal + o.ShippingFee

	o, err = svc.repo.PlaceOrder(ctx, o)
	if err != nil {
		var stockErr *StockError
		if errors.As(err, &stockErr) {
			return Order{}, stockErr
		}
		return Order{}, errors.Wrap(err, "placing order")
	}
	svc.stock.InvalidateCache()
	svc.sendConfirmation(usr, o)
	return o, nil
}

func (svc *Service) sendConfirmation(usr user.User, o Order) {
	type line struct {
		Quantity  int
		Name      string
		LineTotal string
	}
	lines := make([]line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, line{Quantity: it.Quantity, Name: it.Name, LineTotal: core.FormatMoney(it.LineTotal(), o.Currency)})
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Order " + o.Number,
		TemplateName: "order_confirmation",
		TemplateData: map[string]interface{}{
			"Name":          usr.Name,
			"ID":            o.ID,
			"Number":        o.Number,
			"Lines":         lines,
			"Subtotal":      core.FormatMoney(o.Subtotal, o.Currency),
			"Shipping":      core.FormatMoney(o.ShippingFee, o.Currency),
			"Total":         core.FormatMoney(o.Total, o.Currency),
			"PaymentMethod": o.PaymentMethod,
			"Address":       o.ShippingAddress.String(),
		},
	})
}

func (svc *Service) Get(ctx context.Context, id string) (Order, error) {
	return svc.repo.GetOrder(ctx, id)
}

// GetForUser returns an order owned by usr; admins can get any order.
func (svc *Service) GetForUser(ctx context.Context, usr user.User, id string) (Order, error) {
	o, err := svc.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.UserID != usr.ID && !usr.IsAdmin() {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, page core.Page) (Page, error) {
	filter.Clean()
	page.Clean()
	orders, total, err := svc.repo.QueryOrders(ctx, &filter, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying orders")
	}
	if orders == nil {
		orders = []Order{}
	}
	return Page{Items: orders, Total: total, Page: page.Page, Limit: page.Limit}, nil
}

// QueryForUser lists the orders of usr.
func (svc *Service) QueryForUser(ctx context.Context, usr user.User, filter QueryFilter, page core.Page) (Page, error) {
	filter.UserID = usr.ID
	return svc.Query(ctx, filter, page)
}

func (svc *Service) transition(ctx context.Context, o Order, to string) (Order, error) {
	if !CanTransition(o.Status, to, o.PaymentMethod) {
		return Order{}, core.NewFieldError("status", "cannot move an order from "+o.Status+" to "+to)
	}
	updated, err := svc.repo.UpdateStatus(ctx, o.ID, o.Status, to, time.Now().UTC())
	if err != nil {
		if errors.Cause(err) == ErrStatusConflict {
			return Order{}, core.NewFieldError("status", ErrStatusConflict.Error())
		}
		return Order{}, errors.Wrap(err, "updating order status")
	}
	if to == StatusCancelled {
		svc.stock.InvalidateCache()
	}
	return updated, nil
}

// Cancel cancels a pending order of usr and restocks its items.
func (svc *Service) Cancel(ctx context.Context, usr user.User, id string) (Order, error) {
	o, err := svc.GetForUser(ctx, usr, id)
	if err != nil {
		return Order{}, err
	}
	if o.Status != StatusPending && !usr.IsAdmin() {
		return Order{}, core.NewFieldError("status", ErrNotCancellable.Error())
	}
	return svc.transition(ctx, o, StatusCancelled)
}

// UpdateStatus is the admin status change.
func (svc *Service) UpdateStatus(ctx context.Context, id, status string) (Order, error) {
	o, err := svc.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.Status == status {
		return o, nil
	}
	return svc.transition(ctx, o, status)
}

// MarkPaid moves a pending order to paid. Paying a paid order again is a no-op.
func (svc *Service) MarkPaid(ctx context.Context, id string) (Order, error) {
	o, err := svc.repo.GetOrder(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.Status == StatusPaid {
		return o, nil
	}
	if o.Status != StatusPending {
		return Order{}, core.NewFieldError("status", "order is "+o.Status)
	}
	o, err = svc.repo.UpdateStatus(ctx, o.ID, StatusPending, StatusPaid, time.Now().UTC())
	if errors.Cause(err) == ErrStatusConflict {
		// paid concurrently, eg. by a webhook racing the client confirmation
		if o, err = svc.repo.GetOrder(ctx, id); err == nil && o.Status != StatusPaid {
			return Order{}, core.NewFieldError("status", "order is "+o.Status)
		}
		return o, err
	}
	return o, errors.Wrap(err, "marking order paid")
}

func (svc *Service) HasDeliveredProduct(ctx context.Context, userID, productID string) (bool, error) {
	return svc.repo.HasDeliveredProduct(ctx, userID, productID)
}

func (svc *Service) Stats(ctx context.Context) (Stats, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	stats, err := svc.repo.Stats(ctx, dayStart)
	if err != nil {
		return Stats{}, errors.Wrap(err, "computing order stats")
	}
	stats.Currency = svc.shop.Currency
	return stats, nil
}
