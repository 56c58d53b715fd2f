package payment

import (
	"context"

	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/user"
)

// Stripe webhook event types handled
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

var ErrInvalidSignature = errors.New("invalid webhook signature")

type (
	Intent struct {
		ID           string
		ClientSecret string
	}

	WebhookEvent struct {
		ID       string
		Type     string
		IntentID string
	}

	StripeGateway interface {
		CreatePaymentIntent(ctx context.Context, c Charge) (Intent, error)
		// ParseWebhook verifies the signature of a webhook payload; ErrInvalidSignature otherwise.
		ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
	}

	StripeIntent struct {
		PaymentID    string `json:"payment_id"`
		ClientSecret string `json:"client_secret"`
	}
)

// StartStripe creates a PaymentIntent for an order of usr; the client confirms it with the client secret.
func (svc *Service) StartStripe(ctx context.Context, usr user.User, orderID string) (StripeIntent, error) {
	if svc.stripe == nil {
		return StripeIntent{}, ErrProviderDisabled
	}
	o, err := svc.payableOrder(ctx, usr, orderID, order.MethodStripe)
	if err != nil {
		return StripeIntent{}, err
	}

	intent, err := svc.stripe.CreatePaymentIntent(ctx, chargeOf(o))
	if err != nil {
		return StripeIntent{}, errors.Wrap(err, "creating stripe payment intent")
	}
	p, err := svc.record(ctx, o, ProviderStripe, intent.ID, StatusPending)
	if err != nil {
		return StripeIntent{}, err
	}
	return StripeIntent{PaymentID: p.ID, ClientSecret: intent.ClientSecret}, nil
}

// HandleStripeWebhook settles the payment of a verified webhook event. Unknown intents and
// event types are ignored so Stripe stops retrying them.
func (svc *Service) HandleStripeWebhook(ctx context.Context, payload []byte, signature string) error {
	if svc.stripe == nil {
		return ErrProviderDisabled
	}
	event, err := svc.stripe.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Cause(err) == ErrInvalidSignature {
			return core.NewValidationError(ErrInvalidSignature)
		}
		return errors.Wrap(err, "parsing stripe webhook")
	}
	if event.Type != EventIntentSucceeded && event.Type != EventIntentFailed {
		return nil
	}

	p, err := svc.repo.GetPaymentByRef(ctx, ProviderStripe, event.IntentID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			svc.logger.Warn("stripe webhook for an unknown intent", map[string]interface{}{"event": event.ID, "intent": event.IntentID})
			return nil
		}
		return errors.Wrap(err, "finding payment by reference")
	}
	// a charge for an order that cannot be paid anymore is logged by settle; retries would not change it
	if _, err = svc.settle(ctx, p, event.Type == EventIntentSucceeded); err != nil && !isNotPayable(err) {
		return err
	}
	return nil
}
