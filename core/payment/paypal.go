package payment

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/user"
)

// PayPalCompleted is the status of a captured PayPal order.
const PayPalCompleted = "COMPLETED"

type (
	PayPalGateway interface {
		// CreateOrder creates a PayPal order with intent CAPTURE and returns its ID.
		CreateOrder(ctx context.Context, c Charge) (string, error)
		// CaptureOrder captures an approved PayPal order and returns its status.
		CaptureOrder(ctx context.Context, paypalOrderID string) (string, error)
	}

	PayPalOrder struct {
		PaymentID     string `json:"payment_id"`
		PayPalOrderID string `json:"paypal_order_id"`
	}

	PayPalCapture struct {
		PayPalOrderID string `json:"paypal_order_id" validate:"required,alphanum,max=64"`
	}
)

func (pc *PayPalCapture) Validate(validate *validator.Validate) error {
	pc.PayPalOrderID = core.CleanString(pc.PayPalOrderID)
	return validate.Struct(pc)
}

// StartPayPal creates a PayPal order for an order of usr; the client approves it with the PayPal buttons.
func (svc *Service) StartPayPal(ctx context.Context, usr user.User, orderID string) (PayPalOrder, error) {
	if svc.paypal == nil {
		return PayPalOrder{}, ErrProviderDisabled
	}
	o, err := svc.payableOrder(ctx, usr, orderID, order.MethodPayPal)
	if err != nil {
		return PayPalOrder{}, err
	}

	ppID, err := svc.paypal.CreateOrder(ctx, chargeOf(o))
	if err != nil {
		return PayPalOrder{}, errors.Wrap(err, "creating paypal order")
	}
	p, err := svc.record(ctx, o, ProviderPayPal, ppID, StatusPending)
	if err != nil {
		return PayPalOrder{}, err
	}
	return PayPalOrder{PaymentID: p.ID, PayPalOrderID: ppID}, nil
}

// CapturePayPal captures an approved PayPal order and marks the order of usr paid when completed.
func (svc *Service) CapturePayPal(ctx context.Context, usr user.User, orderID, paypalOrderID string) (order.Order, error) {
	if svc.paypal == nil {
		return order.Order{}, ErrProviderDisabled
	}
	o, err := svc.orders.GetForUser(ctx, usr, orderID)
	if err != nil {
		return order.Order{}, err
	}
	p, err := svc.repo.GetPaymentByRef(ctx, ProviderPayPal, paypalOrderID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return order.Order{}, core.NewFieldError("paypal_order_id", ErrNotFound.Error())
		}
		return order.Order{}, errors.Wrap(err, "finding payment by reference")
	}
	if p.OrderID != o.ID {
		return order.Order{}, core.NewFieldError("paypal_order_id", ErrNotFound.Error())
	}
	switch {
	case p.Status == StatusSucceeded:
		return svc.settle(ctx, p, true)
	case o.PaymentMethod != order.MethodPayPal:
		return order.Order{}, core.NewValidationError(ErrMethodMismatch)
	case o.Status != order.StatusPending:
		// the approval is abandoned, nothing gets captured
		if p.Status == StatusPending {
			if _, err = svc.settle(ctx, p, false); err != nil {
				return order.Order{}, err
			}
		}
		return order.Order{}, core.NewValidationError(ErrNotPayable)
	case p.Status == StatusFailed:
		return order.Order{}, core.NewValidationError(errors.New("paypal payment was not completed"))
	}

	status, err := svc.paypal.CaptureOrder(ctx, paypalOrderID)
	if err != nil {
		return order.Order{}, errors.Wrap(err, "capturing paypal order")
	}
	o, err = svc.settle(ctx, p, status == PayPalCompleted)
	if err != nil {
		return order.Order{}, err
	}
	if status != PayPalCompleted {
		return order.Order{}, core.NewValidationError(errors.New("paypal payment was not completed: " + status))
	}
	return o, nil
}
