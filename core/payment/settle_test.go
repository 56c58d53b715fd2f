package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/user"
)

type memPayments map[string]Payment

func (m memPayments) CreatePayment(_ context.Context, p Payment) (Payment, error) {
	m[p.ID] = p
	return p, nil
}

func (m memPayments) GetPaymentByRef(_ context.Context, provider, ref string) (Payment, error) {
	for _, p := range m {
		if p.Provider == provider && p.ProviderRef == ref {
			return p, nil
		}
	}
	return Payment{}, ErrNotFound
}

func (m memPayments) UpdatePaymentStatus(_ context.Context, id, status string, at time.Time) (Payment, error) {
	p, ok := m[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	p.Status = status
	p.UpdatedAt = at
	m[id] = p
	return p, nil
}

type memOrders map[string]order.Order

func (m memOrders) Get(_ context.Context, id string) (order.Order, error) {
	if o, ok := m[id]; ok {
		return o, nil
	}
	return order.Order{}, order.ErrNotFound
}

func (m memOrders) GetForUser(ctx context.Context, _ user.User, id string) (order.Order, error) {
	return m.Get(ctx, id)
}

func (m memOrders) MarkPaid(_ context.Context, id string) (order.Order, error) {
	o := m[id]
	switch o.Status {
	case order.StatusPaid:
	case order.StatusPending:
		o.Status = order.StatusPaid
		m[id] = o
	default:
		return order.Order{}, core.NewFieldError("status", "order is "+o.Status)
	}
	return o, nil
}

type warnings []string

func (w *warnings) Debug(string, ...interface{}) {}
func (w *warnings) Info(string, ...interface{})  {}
func (w *warnings) Warn(msg string, _ ...interface{}) {
	*w = append(*w, msg)
}
func (w *warnings) Error(string, ...interface{}) {}
func (w *warnings) Fatal(string, ...interface{}) {}

func newSettleService(orders memOrders, payments memPayments) (*Service, *warnings) {
	logged := new(warnings)
	svc := &Service{repo: payments, orders: orders, logger: logged}
	return svc, logged
}

func TestService_settle(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		orderStatus string
		payStatus   string
		succeeded   bool
		wantPay     string
		wantOrder   string
		wantErr     error
		wantWarning bool
	}{
		{name: "pending succeeds", orderStatus: order.StatusPending, payStatus: StatusPending, succeeded: true, wantPay: StatusSucceeded, wantOrder: order.StatusPaid},
		{name: "pending fails", orderStatus: order.StatusPending, payStatus: StatusPending, wantPay: StatusFailed, wantOrder: order.StatusPending},
		{name: "failed then succeeded", orderStatus: order.StatusPending, payStatus: StatusFailed, succeeded: true, wantPay: StatusSucceeded, wantOrder: order.StatusPaid},
		{name: "succeeded then failed", orderStatus: order.StatusPaid, payStatus: StatusSucceeded, wantPay: StatusSucceeded, wantOrder: order.StatusPaid},
		{name: "replayed success", orderStatus: order.StatusPaid, payStatus: StatusSucceeded, succeeded: true, wantPay: StatusSucceeded, wantOrder: order.StatusPaid},
		{
			name: "success for a cancelled order", orderStatus: order.StatusCancelled, payStatus: StatusPending, succeeded: true,
			wantPay: StatusSucceeded, wantOrder: order.StatusCancelled, wantErr: ErrNotPayable, wantWarning: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := memOrders{"o1": {ID: "o1", Status: tt.orderStatus}}
			payments := memPayments{"p1": {ID: "p1", OrderID: "o1", Provider: ProviderStripe, ProviderRef: "pi_1", Amount: 1400, Currency: "USD", Status: tt.payStatus}}
			svc, logged := newSettleService(orders, payments)

			_, err := svc.settle(ctx, payments["p1"], tt.succeeded)
			if tt.wantErr != nil {
				assert.True(t, isNotPayable(err), "settle() error = %v", err)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantPay, payments["p1"].Status)
			assert.Equal(t, tt.wantOrder, orders["o1"].Status)
			assert.Equal(t, tt.wantWarning, len(*logged) > 0)
		})
	}
}
