package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/address"
	"github.com/saudamart/sauda/core/cart"
	"github.com/saudamart/sauda/core/catalog"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/payment"
	"github.com/saudamart/sauda/core/review"
	"github.com/saudamart/sauda/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errOAuthDisabled        = echo.NewHTTPError(http.StatusServiceUnavailable, "oauth login is not configured")

	notFoundErrs = []error{
		user.ErrNotFound,
		catalog.ErrCategoryNotFound,
		catalog.ErrProductNotFound,
		cart.ErrItemNotFound,
		address.ErrNotFound,
		order.ErrNotFound,
		review.ErrNotFound,
		payment.ErrNotFound,
	}
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		var stockErr *order.StockError
		if errors.As(err, &stockErr) {
			code = http.StatusConflict
			message = echo.Map{"error": stockErr.Error(), "product_id": stockErr.ProductID}
		} else {
			switch origErr := errors.Cause(err).(type) {
			case *echo.HTTPError:
				if origErr == middleware.ErrJWTMissing {
					code = http.StatusUnauthorized
					message = origErr.Message
					break
				}
				if origErr.Internal != nil {
					if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
						origErr = herr
					}
				}
				code = origErr.Code
				message = origErr.Message
			case validator.ValidationErrors:
				fldErrs := make(map[string]string, len(origErr))
				for _, vErr := range origErr {
					fldErrs[vErr.Field()] = vErr.Translate(translator)
				}
				code = http.StatusBadRequest
				message = fldErrs
			case *core.ValidationError:
				if origErr.Fields != nil {
					message = origErr.FieldMap()
				} else {
					message = origErr.Error()
				}
				code = http.StatusBadRequest
			default:
				code, message = domainErrorStatus(origErr)
			}
		}

		if code == http.StatusInternalServerError {
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), ctx.Request(), usr)

			if ctx.Echo().Debug {
				message = err.Error()
			}

			// shutting down...
			if core.IsShutdown(err) && signalShutdown != nil {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// domainErrorStatus maps the sentinel errors of the core packages; anything else is a server error.
func domainErrorStatus(err error) (int, interface{}) {
	for _, nf := range notFoundErrs {
		if err == nf {
			return http.StatusNotFound, err.Error()
		}
	}
	switch err {
	case payment.ErrProviderDisabled, catalog.ErrImagesDisabled:
		return http.StatusServiceUnavailable, err.Error()
	case user.ErrInvalidOAuth:
		return http.StatusUnauthorized, err.Error()
	case user.ErrNoEmail:
		return http.StatusBadRequest, err.Error()
	}
	return http.StatusInternalServerError, nil
}
