package paymentsvc

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/payment"
)

type (
	paypalGateway struct {
		client   *resty.Client
		clientID string
		secret   string

		mu       sync.Mutex
		token    string
		tokenExp time.Time
	}

	paypalToken struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"` // seconds
	}

	paypalAmount struct {
		CurrencyCode string `json:"currency_code"`
		Value        string `json:"value"`
	}

	paypalPurchaseUnit struct {
		ReferenceID string       `json:"reference_id"`
		InvoiceID   string       `json:"invoice_id,omitempty"`
		Description string       `json:"description,omitempty"`
		Amount      paypalAmount `json:"amount"`
	}

	paypalOrderRequest struct {
		Intent        string               `json:"intent"`
		PurchaseUnits []paypalPurchaseUnit `json:"purchase_units"`
	}

	paypalOrderResponse struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}

	paypalError struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	}
)

var _ payment.PayPalGateway = (*paypalGateway)(nil)

// NewPayPalGateway returns nil when PayPal is not configured.
func NewPayPalGateway(conf core.PayPalConfig) payment.PayPalGateway {
	if conf.ClientID == "" || conf.Secret == "" {
		return nil
	}
	return &paypalGateway{
		client: resty.New().
			SetBaseURL(conf.BaseURL).
			SetTimeout(15 * time.Second).
			SetHeader("Accept", "application/json"),
		clientID: conf.ClientID,
		secret:   conf.Secret,
	}
}

// accessToken returns a cached client-credentials token, renewed a minute before it expires.
func (gw *paypalGateway) accessToken(ctx context.Context) (string, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.token != "" && time.Now().Before(gw.tokenExp) {
		return gw.token, nil
	}

	var tok paypalToken
	resp, err := gw.client.R().
		SetContext(ctx).
		SetBasicAuth(gw.clientID, gw.secret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&tok).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", errors.Wrap(err, "paypal: requesting access token")
	}
	if resp.IsError() || tok.AccessToken == "" {
		return "", errors.Errorf("paypal: requesting access token: %s", resp.Status())
	}

	gw.token = tok.AccessToken
	gw.tokenExp = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return gw.token, nil
}

// formatAmount renders minor units as a decimal string with two fraction digits.
func formatAmount(amount int64) string {
	return fmt.Sprintf("%d.%02d", amount/100, amount%100)
}

func (gw *paypalGateway) CreateOrder(ctx context.Context, c payment.Charge) (string, error) {
	token, err := gw.accessToken(ctx)
	if err != nil {
		return "", err
	}

	var (
		res    paypalOrderResponse
		resErr paypalError
	)
	resp, err := gw.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(paypalOrderRequest{
			Intent: "CAPTURE",
			PurchaseUnits: []paypalPurchaseUnit{{
				ReferenceID: c.OrderID,
				InvoiceID:   c.OrderNumber,
				Description: "Order " + c.OrderNumber,
				Amount:      paypalAmount{CurrencyCode: c.Currency, Value: formatAmount(c.Amount)},
			}},
		}).
		SetResult(&res).
		SetError(&resErr).
		Post("/v2/checkout/orders")
	if err != nil {
		return "", errors.Wrap(err, "paypal: creating order")
	}
	if resp.IsError() || res.ID == "" {
		return "", errors.Errorf("paypal: creating order: %s %s", resp.Status(), resErr.Name)
	}
	return res.ID, nil
}

// CaptureOrder returns the PayPal status of the order. Unprocessable captures (e.g. not approved
// by the buyer) are reported through the issue name rather than an error.
func (gw *paypalGateway) CaptureOrder(ctx context.Context, paypalOrderID string) (string, error) {
	token, err := gw.accessToken(ctx)
	if err != nil {
		return "", err
	}

	var (
		res    paypalOrderResponse
		resErr paypalError
	)
	resp, err := gw.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetPathParam("id", paypalOrderID).
		SetBody(map[string]interface{}{}).
		SetResult(&res).
		SetError(&resErr).
		Post("/v2/checkout/orders/{id}/capture")
	if err != nil {
		return "", errors.Wrap(err, "paypal: capturing order")
	}
	if resp.StatusCode() == http.StatusUnprocessableEntity && resErr.Name != "" {
		return resErr.Name, nil
	}
	if resp.IsError() {
		return "", errors.Errorf("paypal: capturing order: %s %s", resp.Status(), resErr.Name)
	}
	return res.Status, nil
}
