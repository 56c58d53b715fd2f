package tests

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudamart/sauda/core/cart"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/payment"
	"github.com/saudamart/sauda/tests"
)

const erc20TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

func stripeWebhook(t *testing.T, signature, eventType, intentID string) *httptest.ResponseRecorder {
	t.Helper()
	body := marchallObj(t, map[string]string{"id": "evt_" + intentID, "type": eventType, "intent": intentID})
	req, rec := newRequest(http.MethodPost, "/v1/payments/stripe/webhook", body)
	req.Header.Set("Stripe-Signature", signature)
	app.ServeHTTP(rec, req)
	return rec
}

func Test_paymentApi_stripe(t *testing.T) {
	resetDB(t)

	customer := createCustomer(t, "Hero", "hero@sauda.af")
	token := getToken(t, customer)
	otherToken := getToken(t, createCustomer(t, "Jane", "jane@sauda.af"))
	kishmish := testutil.CreateProduct(t, catRepo, "Kishmish", "kishmish", 900, 10)
	item := cart.AddItem{ProductID: kishmish.ID, Quantity: 1}

	o := placeOrder(t, token, order.MethodStripe, item)
	cod := placeOrder(t, token, order.MethodCOD, item)
	path := "/v1/orders/" + o.ID + "/payments/stripe"

	start := func(t *testing.T, path string) payment.StripeIntent {
		req, rec := newAuthRequest(http.MethodPost, path, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var intent payment.StripeIntent
		unmarchall(t, rec, &intent)
		return intent
	}
	intentID := func(intent payment.StripeIntent) string {
		return strings.TrimSuffix(intent.ClientSecret, "_secret_abc")
	}

	tests := []httpTest{
		{name: "Auth required", path: path, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "order of another user", path: path, token: otherToken, wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: order.ErrNotFound.Error()}),
		},
		{
			name: "order placed with another method", path: "/v1/orders/" + cod.ID + "/payments/stripe", token: token,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: payment.ErrMethodMismatch.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	intent := start(t, path)
	assert.NotEmpty(t, intent.PaymentID)
	assert.True(t, strings.HasPrefix(intent.ClientSecret, "pi_test_"), intent.ClientSecret)

	t.Run("webhook with a bad signature", func(t *testing.T) {
		rec := stripeWebhook(t, "t=1,v1=forged", payment.EventIntentSucceeded, intentID(intent))
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: payment.ErrInvalidSignature.Error()})}, rec)
		assert.Equal(t, order.StatusPending, getOrder(t, token, o.ID).Status)
	})
	t.Run("unhandled events are acknowledged", func(t *testing.T) {
		rec := stripeWebhook(t, stripeTestSignature, "charge.refunded", intentID(intent))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"received":true}`)}, rec)
		assert.Equal(t, order.StatusPending, getOrder(t, token, o.ID).Status)
	})
	t.Run("unknown intents are acknowledged", func(t *testing.T) {
		rec := stripeWebhook(t, stripeTestSignature, payment.EventIntentSucceeded, "pi_unknown")
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"received":true}`)}, rec)
	})
	t.Run("succeeded", func(t *testing.T) {
		rec := stripeWebhook(t, stripeTestSignature, payment.EventIntentSucceeded, intentID(intent))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"received":true}`)}, rec)

		paid := getOrder(t, token, o.ID)
		assert.Equal(t, order.StatusPaid, paid.Status)
		require.NotNil(t, paid.PaidAt)

		// replayed deliveries change nothing
		rec = stripeWebhook(t, stripeTestSignature, payment.EventIntentSucceeded, intentID(intent))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"received":true}`)}, rec)
		again := getOrder(t, token, o.ID)
		assert.Equal(t, order.StatusPaid, again.Status)
		assert.Equal(t, paid.PaidAt.UnixNano(), again.PaidAt.UnixNano())
	})
	t.Run("paid orders cannot be paid again", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, token)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: payment.ErrNotPayable.Error()})}, rec)
	})
	t.Run("failed", func(t *testing.T) {
		o2 := placeOrder(t, token, order.MethodStripe, item)
		failed := start(t, "/v1/orders/"+o2.ID+"/payments/stripe")

		rec := stripeWebhook(t, stripeTestSignature, payment.EventIntentFailed, intentID(failed))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"received":true}`)}, rec)
		assert.Equal(t, order.StatusPending, getOrder(t, token, o2.ID).Status)

		// a new attempt gets a new intent
		retry := start(t, "/v1/orders/"+o2.ID+"/payments/stripe")
		assert.NotEqual(t, intentID(failed), intentID(retry))
		rec = stripeWebhook(t, stripeTestSignature, payment.EventIntentSucceeded, intentID(retry))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, order.StatusPaid, getOrder(t, token, o2.ID).Status)
	})
	t.Run("failed then succeeded on the same intent", func(t *testing.T) {
		o3 := placeOrder(t, token, order.MethodStripe, item)
		retried := start(t, "/v1/orders/"+o3.ID+"/payments/stripe")

		rec := stripeWebhook(t, stripeTestSignature, payment.EventIntentFailed, intentID(retried))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, order.StatusPending, getOrder(t, token, o3.ID).Status)

		// the customer tries another card with the same client secret
		rec = stripeWebhook(t, stripeTestSignature, payment.EventIntentSucceeded, intentID(retried))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"received":true}`)}, rec)
		assert.Equal(t, order.StatusPaid, getOrder(t, token, o3.ID).Status)

		// a late failure never downgrades the payment
		rec = stripeWebhook(t, stripeTestSignature, payment.EventIntentFailed, intentID(retried))
		require.Equal(t, http.StatusOK, rec.Code)
		p, err := payRepo.GetPaymentByRef(context.Background(), payment.ProviderStripe, intentID(retried))
		require.NoError(t, err)
		assert.Equal(t, payment.StatusSucceeded, p.Status)
		assert.Equal(t, order.StatusPaid, getOrder(t, token, o3.ID).Status)
	})
	t.Run("succeeded for a cancelled order", func(t *testing.T) {
		o4 := placeOrder(t, token, order.MethodStripe, item)
		late := start(t, "/v1/orders/"+o4.ID+"/payments/stripe")
		cancelOrder(t, token, o4.ID)

		// acknowledged so Stripe stops retrying, the refund is left to the shop
		rec := stripeWebhook(t, stripeTestSignature, payment.EventIntentSucceeded, intentID(late))
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: []byte(`{"received":true}`)}, rec)
		assert.Equal(t, order.StatusCancelled, getOrder(t, token, o4.ID).Status)

		p, err := payRepo.GetPaymentByRef(context.Background(), payment.ProviderStripe, intentID(late))
		require.NoError(t, err)
		assert.Equal(t, payment.StatusSucceeded, p.Status)
	})
}

func cancelOrder(t *testing.T, token, id string) {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, "/v1/orders/"+id+"/cancel", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func Test_paymentApi_paypal(t *testing.T) {
	resetDB(t)

	customer := createCustomer(t, "Hero", "hero@sauda.af")
	token := getToken(t, customer)
	kishmish := testutil.CreateProduct(t, catRepo, "Kishmish", "kishmish", 900, 10)
	item := cart.AddItem{ProductID: kishmish.ID, Quantity: 1}

	start := func(t *testing.T, o order.Order) payment.PayPalOrder {
		req, rec := newAuthRequest(http.MethodPost, "/v1/orders/"+o.ID+"/payments/paypal", token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var ppOrder payment.PayPalOrder
		unmarchall(t, rec, &ppOrder)
		return ppOrder
	}
	capture := func(o order.Order, ppOrderID string) *httptest.ResponseRecorder {
		req, rec := newAuthRequest(http.MethodPost, "/v1/orders/"+o.ID+"/payments/paypal/capture", token,
			marchallObj(t, payment.PayPalCapture{PayPalOrderID: ppOrderID}))
		app.ServeHTTP(rec, req)
		return rec
	}

	o := placeOrder(t, token, order.MethodPayPal, item)
	other := placeOrder(t, token, order.MethodPayPal, item)
	ppOrder := start(t, o)
	assert.NotEmpty(t, ppOrder.PaymentID)
	assert.Regexp(t, `^5O190127TN36471\d{2}K$`, ppOrder.PayPalOrderID)

	tests := []struct {
		name     string
		order    order.Order
		ppID     string
		wantCode int
		wantData []byte
	}{
		{
			name: "paypal order id required", order: o, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"paypal_order_id": "this field is required"}),
		},
		{
			name: "unknown paypal order", order: o, ppID: "5O190127TN3647199K", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"paypal_order_id": payment.ErrNotFound.Error()}),
		},
		{
			name: "paypal order of another order", order: other, ppID: ppOrder.PayPalOrderID, wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"paypal_order_id": payment.ErrNotFound.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := capture(tt.order, tt.ppID)
			checkCodeAndData(t, httpTest{wantCode: tt.wantCode, wantData: tt.wantData}, rec)
		})
	}

	t.Run("captured", func(t *testing.T) {
		rec := capture(o, ppOrder.PayPalOrderID)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var paid order.Order
		unmarchall(t, rec, &paid)
		assert.Equal(t, order.StatusPaid, paid.Status)
		assert.NotNil(t, paid.PaidAt)

		// capturing twice returns the paid order
		rec = capture(o, ppOrder.PayPalOrderID)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarchall(t, rec, &paid)
		assert.Equal(t, order.StatusPaid, paid.Status)
	})
	t.Run("capture not completed", func(t *testing.T) {
		paypalGw.mu.Lock()
		paypalGw.status = "VOIDED"
		paypalGw.mu.Unlock()
		defer func() {
			paypalGw.mu.Lock()
			paypalGw.status = payment.PayPalCompleted
			paypalGw.mu.Unlock()
		}()

		voided := start(t, other)
		rec := capture(other, voided.PayPalOrderID)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: "paypal payment was not completed: VOIDED"})}, rec)
		assert.Equal(t, order.StatusPending, getOrder(t, token, other.ID).Status)
	})
	t.Run("cancelled orders are not captured", func(t *testing.T) {
		o3 := placeOrder(t, token, order.MethodPayPal, item)
		approved := start(t, o3)
		cancelOrder(t, token, o3.ID)

		notPayable := httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: payment.ErrNotPayable.Error()})}
		checkCodeAndData(t, notPayable, capture(o3, approved.PayPalOrderID))
		assert.False(t, paypalGw.wasCaptured(approved.PayPalOrderID))
		assert.Equal(t, order.StatusCancelled, getOrder(t, token, o3.ID).Status)

		p, err := payRepo.GetPaymentByRef(context.Background(), payment.ProviderPayPal, approved.PayPalOrderID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatusFailed, p.Status)

		// retrying does not capture either
		checkCodeAndData(t, notPayable, capture(o3, approved.PayPalOrderID))
		assert.False(t, paypalGw.wasCaptured(approved.PayPalOrderID))
	})
}

func Test_paymentApi_crypto(t *testing.T) {
	resetDB(t)

	customer := createCustomer(t, "Hero", "hero@sauda.af")
	token := getToken(t, customer)
	kishmish := testutil.CreateProduct(t, catRepo, "Kishmish", "kishmish", 900, 10)
	item := cart.AddItem{ProductID: kishmish.ID, Quantity: 1}

	o := placeOrder(t, token, order.MethodCrypto, item)
	require.Equal(t, int64(1400), o.Total)
	// 14.00 USD with a 6 decimals stablecoin
	const owed = 14_000_000

	token0 := conf.Crypto.TokenContract
	wallet := conf.Crypto.MerchantWallet
	txHash := func(n int) string { return fmt.Sprintf("0x%064x", n) }
	topicOf := func(addr string) string { return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(addr, "0x") }
	transfer := func(contract, to string, amount int64) payment.Log {
		return payment.Log{
			Address: contract,
			Topics:  []string{erc20TransferTopic, topicOf("0x" + strings.Repeat("11", 20)), topicOf(to)},
			Data:    fmt.Sprintf("0x%064x", amount),
		}
	}
	receipt := func(status uint64, logs ...payment.Log) payment.Receipt {
		return payment.Receipt{Status: status, BlockNumber: 100, Logs: logs}
	}

	chain.set(110, txHash(2), receipt(0, transfer(token0, wallet, owed)))
	chain.set(110, txHash(3), receipt(1, transfer(token0, "0x"+strings.Repeat("ef", 20), owed)))
	chain.set(110, txHash(4), receipt(1, transfer("0x"+strings.Repeat("99", 20), wallet, owed)))
	chain.set(110, txHash(5), receipt(1, transfer(token0, wallet, owed-1)))
	// paid in two transfers, with checksum-cased addresses
	upper := func(addr string) string { return "0x" + strings.ToUpper(strings.TrimPrefix(addr, "0x")) }
	chain.set(110, txHash(6), receipt(1, transfer(token0, wallet, owed/2), transfer(upper(token0), upper(wallet), owed/2)))
	chain.set(110, txHash(7), payment.Receipt{Status: 1, BlockNumber: 109, Logs: []payment.Log{transfer(token0, wallet, owed)}})

	path := "/v1/orders/" + o.ID + "/payments/crypto"
	txErr := func(msg string) []byte { return marchallObj(t, map[string]string{"tx_hash": msg}) }

	tests := []httpTest{
		{name: "tx hash required", body: marchallObj(t, payment.CryptoPayment{}), wantCode: http.StatusBadRequest, wantData: txErr("this field is required")},
		{name: "malformed tx hash", body: marchallObj(t, payment.CryptoPayment{TxHash: "0x1234"}), wantCode: http.StatusBadRequest, wantData: txErr("invalid transaction hash")},
		{
			name: "unknown transaction", body: marchallObj(t, payment.CryptoPayment{TxHash: txHash(1)}), wantCode: http.StatusBadRequest,
			wantData: txErr("transaction not found or not mined yet"),
		},
		{name: "reverted", body: marchallObj(t, payment.CryptoPayment{TxHash: txHash(2)}), wantCode: http.StatusBadRequest, wantData: txErr("transaction failed")},
		{
			name: "paid to another wallet", body: marchallObj(t, payment.CryptoPayment{TxHash: txHash(3)}), wantCode: http.StatusBadRequest,
			wantData: txErr("transaction does not transfer the token to the shop wallet"),
		},
		{
			name: "another token", body: marchallObj(t, payment.CryptoPayment{TxHash: txHash(4)}), wantCode: http.StatusBadRequest,
			wantData: txErr("transaction does not transfer the token to the shop wallet"),
		},
		{
			name: "underpaid", body: marchallObj(t, payment.CryptoPayment{TxHash: txHash(5)}), wantCode: http.StatusBadRequest,
			wantData: txErr("transferred amount is lower than the order total"),
		},
		{
			name: "not enough confirmations", body: marchallObj(t, payment.CryptoPayment{TxHash: txHash(7)}), wantCode: http.StatusBadRequest,
			wantData: txErr("transaction does not have enough confirmations yet"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, path, token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
	assert.Equal(t, order.StatusPending, getOrder(t, token, o.ID).Status)

	t.Run("paid", func(t *testing.T) {
		body := marchallObj(t, payment.CryptoPayment{TxHash: strings.ToUpper(txHash(6))})
		req, rec := newAuthRequest(http.MethodPost, path, token, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var paid order.Order
		unmarchall(t, rec, &paid)
		assert.Equal(t, order.StatusPaid, paid.Status)
		assert.NotNil(t, paid.PaidAt)
	})
	t.Run("transactions pay a single order", func(t *testing.T) {
		o2 := placeOrder(t, token, order.MethodCrypto, item)
		req, rec := newAuthRequest(http.MethodPost, "/v1/orders/"+o2.ID+"/payments/crypto", token, marchallObj(t, payment.CryptoPayment{TxHash: txHash(6)}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: txErr(payment.ErrDuplicateRef.Error())}, rec)
	})
}
