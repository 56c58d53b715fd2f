package order

import (
	"crypto/rand"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/address"
)

// Statuses
const (
	StatusPending    = "pending"
	StatusPaid       = "paid"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// Payment methods
const (
	MethodCOD      = "cod"
	MethodStripe   = "stripe"
	MethodPayPal   = "paypal"
	MethodCrypto   = "crypto"
	MethodWhatsApp = "whatsapp"
)

var (
	Statuses = []string{StatusPending, StatusPaid, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled}
	Methods  = []string{MethodCOD, MethodStripe, MethodPayPal, MethodCrypto, MethodWhatsApp}

	transitions = map[string][]string{
		StatusPending:    {StatusPaid, StatusProcessing, StatusCancelled},
		StatusPaid:       {StatusProcessing, StatusCancelled},
		StatusProcessing: {StatusShipped, StatusCancelled},
		StatusShipped:    {StatusDelivered},
	}
)

// IsOffline reports whether the payment is collected outside of the shop (cash on delivery, WhatsApp).
func IsOffline(method string) bool {
	return method == MethodCOD || method == MethodWhatsApp
}

// CountsAsRevenue reports whether orders in status are part of the revenue figure.
func CountsAsRevenue(status string) bool {
	switch status {
	case StatusPaid, StatusProcessing, StatusShipped, StatusDelivered:
		return true
	}
	return false
}

// CanTransition reports whether an order paid with method can move from one status to another.
// Orders paid online only start processing once paid.
func CanTransition(from, to, method string) bool {
	if from == StatusPending && to == StatusProcessing && !IsOffline(method) {
		return false
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Item struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

func (it Item) LineTotal() int64 {
	return it.UnitPrice * int64(it.Quantity)
}

type Order struct {
	ID              string           `json:"id"`
	Number          string           `json:"number"`
	UserID          string           `json:"user_id"`
	Status          string           `json:"status"`
	PaymentMethod   string           `json:"payment_method"`
	Subtotal        int64            `json:"subtotal"`
	ShippingFee     int64            `json:"shipping_fee"`
	Total           int64            `json:"total"`
	Currency        string           `json:"currency"`
	ShippingAddress address.Snapshot `json:"shipping_address"`
	Note            string           `json:"note"`
	Items           []Item           `json:"items"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	PaidAt          *time.Time       `json:"paid_at"`
}

func (o Order) ItemCount() int {
	var n int
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// numberAlphabet leaves out look-alike characters.
const numberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewNumber returns a human friendly order number, eg. SA-20240321-7KQ2MX.
func NewNumber(t time.Time) string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		panic(errors.Wrap(err, "reading random bytes"))
	}
	for i, b := range buf {
		buf[i] = numberAlphabet[int(b)%len(numberAlphabet)]
	}
	return fmt.Sprintf("SA-%s-%s", t.UTC().Format("20060102"), buf)
}

// Checkout is a request to turn the cart of a user into an order.
// Exactly one of AddressID or Address must be given.
type Checkout struct {
	AddressID     string              `json:"address_id" validate:"omitempty,uuid"`
	Address       *address.NewAddress `json:"address"`
	PaymentMethod string              `json:"payment_method" validate:"required,oneof=cod stripe paypal crypto whatsapp"`
	Note          string              `json:"note" validate:"max=500"`
}

func (co *Checkout) Validate(validate *validator.Validate) error {
	co.AddressID = core.CleanString(co.AddressID)
	co.PaymentMethod = core.CleanString(co.PaymentMethod, true /* lower */)
	co.Note = core.CleanString(co.Note)
	if co.Address != nil {
		co.Address.Clean()
	}

	if err := validate.Struct(co); err != nil {
		return err
	}
	if (co.AddressID == "") == (co.Address == nil) {
		return core.NewFieldError("address_id", "provide either an address id or an address")
	}
	return nil
}

type UpdateStatus struct {
	Status string `json:"status" validate:"required,oneof=pending paid processing shipped delivered cancelled"`
}

func (us *UpdateStatus) Validate(validate *validator.Validate) error {
	us.Status = core.CleanString(us.Status, true /* lower */)
	return validate.Struct(us)
}

// QueryFilter applies AND operation on its set fields.
type QueryFilter struct {
	UserID        string
	Status        string
	PaymentMethod string
	Search        string // order number prefix
}

func (qf *QueryFilter) Clean() {
	qf.UserID = core.CleanString(qf.UserID)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
	qf.PaymentMethod = core.CleanString(qf.PaymentMethod, true /* lower */)
	qf.Search = strings.ToUpper(core.CleanString(qf.Search))
}

// Match mirrors the SQL implementation and is used by in-memory storage.
func (qf *QueryFilter) Match(o Order) bool {
	if qf == nil {
		return true
	}
	if qf.UserID != "" && o.UserID != qf.UserID {
		return false
	}
	if qf.Status != "" && o.Status != qf.Status {
		return false
	}
	if qf.PaymentMethod != "" && o.PaymentMethod != qf.PaymentMethod {
		return false
	}
	if qf.Search != "" && !strings.HasPrefix(o.Number, qf.Search) {
		return false
	}
	return true
}

type Page struct {
	Items []Order `json:"items"`
	Total int     `json:"total"`
	Page  int     `json:"page"`
	Limit int     `json:"limit"`
}

type Stats struct {
	Orders     int            `json:"orders"`
	ByStatus   map[string]int `json:"by_status"`
	Revenue    int64          `json:"revenue"` // orders paid and beyond, minor units
	Currency   string         `json:"currency"`
	Products   int            `json:"products"`
	Customers  int            `json:"customers"`
	TodayCount int            `json:"today_orders"`
}

// StockError is returned when a product does not have enough stock for checkout.
type StockError struct {
	ProductID string
	Name      string
}

func (e *StockError) Error() string {
	return fmt.Sprintf("%q is out of stock", e.Name)
}

// Is makes errors.Is(err, ErrOutOfStock) hold.
func (e *StockError) Is(target error) bool {
	return target == ErrOutOfStock
}
