// Package paymentsvc implements the payment gateways: Stripe, PayPal and an Ethereum JSON-RPC client.
package paymentsvc

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/payment"
)

type stripeGateway struct {
	api           *client.API
	webhookSecret string
}

var _ payment.StripeGateway = (*stripeGateway)(nil)

// NewStripeGateway returns nil when Stripe is not configured.
func NewStripeGateway(conf core.StripeConfig) payment.StripeGateway {
	if conf.SecretKey == "" {
		return nil
	}
	return &stripeGateway{
		api:           client.New(conf.SecretKey, nil),
		webhookSecret: conf.WebhookSecret,
	}
}

func (gw *stripeGateway) CreatePaymentIntent(ctx context.Context, c payment.Charge) (payment.Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(c.Amount),
		Currency:    stripe.String(strings.ToLower(c.Currency)),
		Description: stripe.String("Order " + c.OrderNumber),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("order_id", c.OrderID)
	params.AddMetadata("order_number", c.OrderNumber)

	pi, err := gw.api.PaymentIntents.New(params)
	if err != nil {
		return payment.Intent{}, errors.Wrap(err, "stripe: creating payment intent")
	}
	return payment.Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (gw *stripeGateway) ParseWebhook(payload []byte, signature string) (payment.WebhookEvent, error) {
	if gw.webhookSecret == "" {
		return payment.WebhookEvent{}, payment.ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, gw.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return payment.WebhookEvent{}, errors.Wrap(payment.ErrInvalidSignature, err.Error())
	}

	evt := payment.WebhookEvent{ID: event.ID, Type: string(event.Type)}
	if strings.HasPrefix(evt.Type, "payment_intent.") && event.Data != nil {
		var pi stripe.PaymentIntent
		if err = json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return payment.WebhookEvent{}, errors.Wrap(err, "stripe: decoding payment intent")
		}
		evt.IntentID = pi.ID
	}
	return evt, nil
}
