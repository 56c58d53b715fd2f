package echoapi

import (
	"context"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/address"
	"github.com/saudamart/sauda/core/cart"
	"github.com/saudamart/sauda/core/catalog"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/payment"
	"github.com/saudamart/sauda/core/review"
	"github.com/saudamart/sauda/core/user"
	"github.com/saudamart/sauda/core/wishlist"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Conf           *core.Config
		Logger         core.Logger
		SignalShutdown func()
	}

	// Deps are the services exposed by the API. IdentityProvider is optional.
	Deps struct {
		UserSvc          *user.Service
		IdentityProvider user.IdentityProvider
		CatalogSvc       *catalog.Service
		CartSvc          *cart.Service
		WishlistSvc      *wishlist.Service
		AddressSvc       *address.Service
		OrderSvc         *order.Service
		ReviewSvc        *review.Service
		PaymentSvc       *payment.Service
	}

	Server interface {
		http.Handler
		Start() error
		Stop(context.Context) error
	}

	server struct {
		opts       *Options
		deps       *Deps
		app        *echo.Echo
		auth       *Auth
		validate   *validator.Validate
		translator ut.Translator
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options, deps *Deps) Server {
	s := &server{
		opts:       opts,
		deps:       deps,
		app:        echo.New(),
		auth:       NewAuth(opts.Conf),
		validate:   validator.New(),
		translator: core.NewTranslator(),
	}
	core.InitValidators(s.validate, s.translator)
	user.InitValidators(s.validate, s.translator)
	payment.InitValidators(s.validate, s.translator)
	s.setup()
	return s
}

func (s *server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.Secure())
	s.app.Use(middleware.BodyLimit("1M"))
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     conf.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, csrfHeaderName,
		},
		ExposeHeaders: []string{cacheHeader},
	}))
	s.app.Use(middleware.CSRFWithConfig(s.auth.csrfConfig()))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.translator, s.opts.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	authed := []echo.MiddlewareFunc{s.auth.jwtMiddleware(), activeUserMiddleware(s.deps.UserSvc)}

	s.registerUserAPI(v1, authed)
	s.registerCatalogAPI(v1, authed)
	s.registerShoppingAPI(v1, authed)
	s.registerOrderAPI(v1, authed)
}

func (s *server) Start() error {
	return s.app.Start(s.opts.Address)
}

func (s *server) Stop(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	LoginResponse struct {
		Token string    `json:"token"`
		User  user.User `json:"user"`
	}
)
