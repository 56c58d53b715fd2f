package payment

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/user"
)

// WhatsAppLink returns a wa.me link opening a chat with the shop, prefilled with an order summary.
func (svc *Service) WhatsAppLink(ctx context.Context, usr user.User, orderID string) (string, error) {
	number := strings.TrimPrefix(strings.ReplaceAll(svc.shop.WhatsAppNumber, " ", ""), "+")
	if number == "" {
		return "", ErrProviderDisabled
	}
	o, err := svc.orders.GetForUser(ctx, usr, orderID)
	if err != nil {
		return "", err
	}
	return "https://wa.me/" + number + "?text=" + escapeText(whatsAppMessage(o)), nil
}

// escapeText percent-encodes s for a query value, spaces as %20 rather than +.
func escapeText(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func whatsAppMessage(o order.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Salaam! I would like to confirm my order %s.\n", o.Number)
	for _, it := range o.Items {
		fmt.Fprintf(&b, "- %d x %s (%s)\n", it.Quantity, it.Name, core.FormatMoney(it.LineTotal(), o.Currency))
	}
	fmt.Fprintf(&b, "Total: %s\n", core.FormatMoney(o.Total, o.Currency))
	fmt.Fprintf(&b, "Deliver to: %s", o.ShippingAddress.String())
	return b.String()
}
