package payment

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/user"
)

// Providers
const (
	ProviderStripe = "stripe"
	ProviderPayPal = "paypal"
	ProviderCrypto = "crypto"
)

// Statuses
const (
	StatusPending   = "pending"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

var (
	// errors
	ErrNotFound         = errors.New("payment not found")
	ErrDuplicateRef     = errors.New("payment reference already used")
	ErrProviderDisabled = errors.New("this payment method is not available")
	ErrNotPayable       = errors.New("only pending orders can be paid")
	ErrMethodMismatch   = errors.New("order was placed with another payment method")
)

type Payment struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Provider    string    `json:"provider"`
	ProviderRef string    `json:"provider_ref"`
	Amount      int64     `json:"amount"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Charge is what a gateway is asked to collect.
type Charge struct {
	OrderID     string
	OrderNumber string
	Amount      int64 // minor units
	Currency    string
}

type (
	Repository interface {
		// CreatePayment fails with ErrDuplicateRef when (Provider, ProviderRef) already exists.
		CreatePayment(ctx context.Context, p Payment) (Payment, error)
		GetPaymentByRef(ctx context.Context, provider, ref string) (Payment, error)
		UpdatePaymentStatus(ctx context.Context, id, status string, at time.Time) (Payment, error)
	}

	OrderService interface {
		Get(ctx context.Context, id string) (order.Order, error)
		GetForUser(ctx context.Context, usr user.User, id string) (order.Order, error)
		MarkPaid(ctx context.Context, id string) (order.Order, error)
	}

	Service struct {
		repo   Repository
		orders OrderService
		stripe StripeGateway // optional
		paypal PayPalGateway // optional
		chain  ChainClient   // optional
		crypto core.CryptoConfig
		shop   core.ShopConfig
		logger core.Logger
	}

	// Gateways groups the optional payment providers; nil ones are disabled.
	Gateways struct {
		Stripe StripeGateway
		PayPal PayPalGateway
		Chain  ChainClient
	}
)

func NewService(repo Repository, orders OrderService, gateways Gateways, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:   repo,
		orders: orders,
		stripe: gateways.Stripe,
		paypal: gateways.PayPal,
		chain:  gateways.Chain,
		crypto: conf.Crypto,
		shop:   conf.Shop,
		logger: logger,
	}
}

// payableOrder returns an order of usr that can be paid with method.
func (svc *Service) payableOrder(ctx context.Context, usr user.User, orderID, method string) (order.Order, error) {
	o, err := svc.orders.GetForUser(ctx, usr, orderID)
	if err != nil {
		return order.Order{}, err
	}
	if o.UserID != usr.ID {
		return order.Order{}, order.ErrNotFound
	}
	if o.Status != order.StatusPending {
		return order.Order{}, core.NewValidationError(ErrNotPayable)
	}
	if o.PaymentMethod != method {
		return order.Order{}, core.NewValidationError(ErrMethodMismatch)
	}
	return o, nil
}

func chargeOf(o order.Order) Charge {
	return Charge{OrderID: o.ID, OrderNumber: o.Number, Amount: o.Total, Currency: o.Currency}
}

func (svc *Service) record(ctx context.Context, o order.Order, provider, ref, status string) (Payment, error) {
	now := time.Now().UTC()
	p, err := svc.repo.CreatePayment(ctx, Payment{
		OrderID:     o.ID,
		Provider:    provider,
		ProviderRef: ref,
		Amount:      o.Total,
		Currency:    o.Currency,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	return p, errors.Wrap(err, "recording payment")
}

// settle records the outcome of a payment and marks its order paid on success.
// A failed payment may still succeed later (eg. a retry on the same Stripe intent),
// a succeeded one never goes back to failed. Settling twice is a no-op.
// When the order cannot be paid anymore the money must be refunded by hand: this is
// logged and reported as ErrNotPayable.
func (svc *Service) settle(ctx context.Context, p Payment, succeeded bool) (order.Order, error) {
	status := StatusFailed
	if succeeded {
		status = StatusSucceeded
	}
	if p.Status == StatusPending || (p.Status == StatusFailed && succeeded) {
		var err error
		if p, err = svc.repo.UpdatePaymentStatus(ctx, p.ID, status, time.Now().UTC()); err != nil {
			return order.Order{}, errors.Wrap(err, "updating payment status")
		}
	}
	if p.Status != StatusSucceeded {
		return svc.orders.Get(ctx, p.OrderID)
	}

	o, err := svc.orders.MarkPaid(ctx, p.OrderID)
	var vErr *core.ValidationError
	if errors.As(err, &vErr) {
		svc.logger.Warn("payment succeeded for an order that can no longer be paid, refund needed", map[string]interface{}{
			"payment":  p.ID,
			"order":    p.OrderID,
			"provider": p.Provider,
			"ref":      p.ProviderRef,
			"amount":   core.FormatMoney(p.Amount, p.Currency),
			"reason":   vErr.Error(),
		})
		return order.Order{}, core.NewValidationError(ErrNotPayable)
	}
	return o, errors.Wrap(err, "marking order paid")
}

// isNotPayable reports whether err is the ErrNotPayable validation error.
func isNotPayable(err error) bool {
	var vErr *core.ValidationError
	return errors.As(err, &vErr) && vErr.Err == ErrNotPayable
}

// Crypto

type CryptoPayment struct {
	TxHash string `json:"tx_hash" validate:"required,txhash"`
}

func (cp *CryptoPayment) Validate(validate *validator.Validate) error {
	cp.TxHash = core.CleanString(cp.TxHash, true /* lower */)
	return validate.Struct(cp)
}

// VerifyCrypto checks on chain that txHash pays the total of an order of usr, then marks it paid.
func (svc *Service) VerifyCrypto(ctx context.Context, usr user.User, orderID, txHash string) (order.Order, error) {
	if svc.chain == nil || svc.crypto.TokenContract == "" || svc.crypto.MerchantWallet == "" {
		return order.Order{}, ErrProviderDisabled
	}
	o, err := svc.payableOrder(ctx, usr, orderID, order.MethodCrypto)
	if err != nil {
		return order.Order{}, err
	}

	if _, err = svc.repo.GetPaymentByRef(ctx, ProviderCrypto, txHash); err == nil {
		return order.Order{}, core.NewFieldError("tx_hash", ErrDuplicateRef.Error())
	} else if errors.Cause(err) != ErrNotFound {
		return order.Order{}, errors.Wrap(err, "finding payment by reference")
	}

	if err = svc.verifyTransfer(ctx, txHash, o.Total); err != nil {
		if _, ok := errors.Cause(err).(*TransferError); ok {
			return order.Order{}, core.NewFieldError("tx_hash", err.Error())
		}
		return order.Order{}, errors.Wrap(err, "verifying transfer")
	}

	p, err := svc.record(ctx, o, ProviderCrypto, txHash, StatusSucceeded)
	if err != nil {
		if errors.Cause(err) == ErrDuplicateRef {
			return order.Order{}, core.NewFieldError("tx_hash", ErrDuplicateRef.Error())
		}
		return order.Order{}, err
	}
	return svc.settle(ctx, p, true)
}
