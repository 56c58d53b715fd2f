package paymentsvc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/payment"
)

func signStripePayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	assert.Nil(t, NewStripeGateway(core.StripeConfig{}))

	gw := NewStripeGateway(core.StripeConfig{SecretKey: "sk_test_123", WebhookSecret: "whsec_test"})
	require.NotNil(t, gw)

	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded",` +
		`"data":{"object":{"id":"pi_123","object":"payment_intent","status":"succeeded"}}}`)

	evt, err := gw.ParseWebhook(payload, signStripePayload(payload, "whsec_test", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, payment.WebhookEvent{ID: "evt_1", Type: payment.EventIntentSucceeded, IntentID: "pi_123"}, evt)

	tests := []struct {
		name string
		sig  string
	}{
		{name: "no signature", sig: ""},
		{name: "other secret", sig: signStripePayload(payload, "whsec_other", time.Now())},
		{name: "too old", sig: signStripePayload(payload, "whsec_test", time.Now().Add(-time.Hour))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := gw.ParseWebhook(payload, tt.sig)
			assert.Equal(t, payment.ErrInvalidSignature, errors.Cause(err))
		})
	}
}
