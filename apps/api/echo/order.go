package echoapi

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/payment"
	"github.com/saudamart/sauda/core/user"
)

const (
	stripeWebhookPath      = "/v1/payments/stripe/webhook"
	stripeSignatureHeader  = "Stripe-Signature"
	stripeWebhookBodyLimit = "64K"
)

type orderApi struct {
	*server
	orders   *order.Service
	payments *payment.Service
}

func (s *server) registerOrderAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := orderApi{server: s, orders: s.deps.OrderSvc, payments: s.deps.PaymentSvc}

	og := g.Group("/orders", authed...)
	og.POST("", api.checkout)
	og.GET("", api.query)
	og.GET("/:id", api.retrieve)
	og.POST("/:id/cancel", api.cancel)
	og.GET("/:id/whatsapp", api.whatsApp)
	og.POST("/:id/payments/stripe", api.startStripe)
	og.POST("/:id/payments/paypal", api.startPayPal)
	og.POST("/:id/payments/paypal/capture", api.capturePayPal)
	og.POST("/:id/payments/crypto", api.verifyCrypto)
	og.PUT("/:id/status", api.updateStatus, adminMiddleware())

	admin := append(append([]echo.MiddlewareFunc(nil), authed...), adminMiddleware())
	adg := g.Group("/admin", admin...)
	adg.GET("/orders", api.adminQuery)
	adg.GET("/stats", api.stats)

	g.POST("/payments/stripe/webhook", api.stripeWebhook, middleware.BodyLimit(stripeWebhookBodyLimit))
}

func (api *orderApi) user(ctx echo.Context) (user.User, error) {
	usr, err := getContextUser(ctx, api.deps.UserSvc)
	return usr, errors.Wrap(err, "getting context user")
}

// userAndID returns the context user and the order :id param.
func (api *orderApi) userAndID(ctx echo.Context) (user.User, string, error) {
	id, err := paramID(ctx, "id")
	if err != nil {
		return user.User{}, "", err
	}
	usr, err := api.user(ctx)
	return usr, id, err
}

func (api *orderApi) checkout(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}

	var data order.Checkout
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Checkout")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	o, err := api.orders.Checkout(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "checking out")
	}
	return ctx.JSON(http.StatusCreated, o)
}

func (api *orderApi) query(ctx echo.Context) error {
	usr, err := api.user(ctx)
	if err != nil {
		return err
	}
	filter := order.QueryFilter{Status: ctx.QueryParam("status"), Search: ctx.QueryParam("search")}
	page, err := api.orders.QueryForUser(ctx.Request().Context(), usr, filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying orders")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *orderApi) retrieve(ctx echo.Context) error {
	usr, id, err := api.userAndID(ctx)
	if err != nil {
		return err
	}
	o, err := api.orders.GetForUser(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "getting order")
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *orderApi) cancel(ctx echo.Context) error {
	usr, id, err := api.userAndID(ctx)
	if err != nil {
		return err
	}
	o, err := api.orders.Cancel(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "cancelling order")
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *orderApi) whatsApp(ctx echo.Context) error {
	usr, id, err := api.userAndID(ctx)
	if err != nil {
		return err
	}
	link, err := api.payments.WhatsAppLink(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "building whatsapp link")
	}
	return ctx.JSON(http.StatusOK, WhatsAppResponse{URL: link})
}

func (api *orderApi) updateStatus(ctx echo.Context) error {
	id, err := paramID(ctx, "id")
	if err != nil {
		return err
	}

	var data order.UpdateStatus
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	o, err := api.orders.UpdateStatus(ctx.Request().Context(), id, data.Status)
	if err != nil {
		return errors.Wrap(err, "updating order status")
	}
	return ctx.JSON(http.StatusOK, o)
}

// Payments

func (api *orderApi) startStripe(ctx echo.Context) error {
	usr, id, err := api.userAndID(ctx)
	if err != nil {
		return err
	}
	intent, err := api.payments.StartStripe(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "starting stripe payment")
	}
	return ctx.JSON(http.StatusCreated, intent)
}

func (api *orderApi) startPayPal(ctx echo.Context) error {
	usr, id, err := api.userAndID(ctx)
	if err != nil {
		return err
	}
	ppOrder, err := api.payments.StartPayPal(ctx.Request().Context(), usr, id)
	if err != nil {
		return errors.Wrap(err, "starting paypal payment")
	}
	return ctx.JSON(http.StatusCreated, ppOrder)
}

func (api *orderApi) capturePayPal(ctx echo.Context) error {
	usr, id, err := api.userAndID(ctx)
	if err != nil {
		return err
	}

	var data payment.PayPalCapture
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PayPalCapture")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	o, err := api.payments.CapturePayPal(ctx.Request().Context(), usr, id, data.PayPalOrderID)
	if err != nil {
		return errors.Wrap(err, "capturing paypal payment")
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *orderApi) verifyCrypto(ctx echo.Context) error {
	usr, id, err := api.userAndID(ctx)
	if err != nil {
		return err
	}

	var data payment.CryptoPayment
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CryptoPayment")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	o, err := api.payments.VerifyCrypto(ctx.Request().Context(), usr, id, data.TxHash)
	if err != nil {
		return errors.Wrap(err, "verifying crypto payment")
	}
	return ctx.JSON(http.StatusOK, o)
}

func (api *orderApi) stripeWebhook(ctx echo.Context) error {
	payload, err := io.ReadAll(ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "reading webhook payload")
	}
	sig := ctx.Request().Header.Get(stripeSignatureHeader)
	if err = api.payments.HandleStripeWebhook(ctx.Request().Context(), payload, sig); err != nil {
		return errors.Wrap(err, "handling stripe webhook")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"received": true})
}

// Admin

func (api *orderApi) adminQuery(ctx echo.Context) error {
	page, err := api.orders.Query(ctx.Request().Context(), bindOrderFilter(ctx), bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying orders")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *orderApi) stats(ctx echo.Context) error {
	stats, err := api.orders.Stats(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

type WhatsAppResponse struct {
	URL string `json:"url"`
}
