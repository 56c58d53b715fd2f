package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"

	echoapi "github.com/saudamart/sauda/apps/api/echo"
	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/address"
	"github.com/saudamart/sauda/core/cart"
	"github.com/saudamart/sauda/core/catalog"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/payment"
	"github.com/saudamart/sauda/core/review"
	"github.com/saudamart/sauda/core/user"
	"github.com/saudamart/sauda/core/wishlist"
	"github.com/saudamart/sauda/services/blob"
	"github.com/saudamart/sauda/services/email"
	"github.com/saudamart/sauda/services/logger"
	"github.com/saudamart/sauda/services/oauth"
	"github.com/saudamart/sauda/services/payment"
	"github.com/saudamart/sauda/storage/database"
	"github.com/saudamart/sauda/storage/database/inmem"
	"github.com/saudamart/sauda/storage/database/sqlx"
)

// repositories groups the storage of every service.
type repositories struct {
	users     user.Repository
	catalog   catalog.Repository
	carts     cart.Repository
	wishlists wishlist.Repository
	addresses address.Repository
	orders    order.Repository
	reviews   review.Repository
	payments  payment.Repository
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	apiLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)

	repos, closeDB, err := setUpStorage(conf)
	if err != nil {
		apiLogger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			dbLogger.Error("failed to close", err)
		}
	}()

	var mailSvc core.EmailService
	if conf.Debug || conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(conf, apiLogger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, apiLogger)
	}

	ctx := context.Background()
	images, err := blobsvc.NewS3Store(ctx, conf.S3)
	if err != nil {
		apiLogger.Fatal(fmt.Sprintf("setting up image storage: %v", err), err)
	}
	idp, err := oauthsvc.NewSupabaseProvider(conf.Supabase, apiLogger)
	if err != nil {
		apiLogger.Fatal(fmt.Sprintf("setting up oauth: %v", err), err)
	}
	gateways := payment.Gateways{
		Stripe: paymentsvc.NewStripeGateway(conf.Stripe),
		PayPal: paymentsvc.NewPayPalGateway(conf.PayPal),
		Chain:  paymentsvc.NewChainClient(conf.Crypto),
	}

	usrSvc := user.NewService(repos.users, mailSvc, conf)
	cache := catalog.NewCache(conf.Shop.ProductCacheTTL, conf.Shop.ProductCacheStaleTTL, apiLogger)
	catalogSvc := catalog.NewService(repos.catalog, cache, images, conf)
	cartSvc := cart.NewService(repos.carts, catalogSvc, conf)
	addrSvc := address.NewService(repos.addresses)
	orderSvc := order.NewService(repos.orders, cartSvc, addrSvc, catalogSvc, mailSvc, apiLogger, conf)

	// =========================================================================
	// Initialize App

	apiLogger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer apiLogger.Info("Application stopped")

	core.ParseEmailTemplates(conf, apiLogger)
	user.LoadCommonPasswords(apiLogger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Database.Engine)
	expvar.Publish("product_cache_entries", expvar.Func(func() interface{} { return cache.Len() }))

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			apiLogger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(
		&echoapi.Options{
			Address:        conf.Server.Address,
			Conf:           conf,
			Logger:         apiLogger,
			SignalShutdown: func() { shutdown <- syscall.SIGTERM },
		},
		&echoapi.Deps{
			UserSvc:          usrSvc,
			IdentityProvider: idp,
			CatalogSvc:       catalogSvc,
			CartSvc:          cartSvc,
			WishlistSvc:      wishlist.NewService(repos.wishlists, catalogSvc),
			AddressSvc:       addrSvc,
			OrderSvc:         orderSvc,
			ReviewSvc:        review.NewService(repos.reviews, orderSvc),
			PaymentSvc:       payment.NewService(repos.payments, orderSvc, gateways, apiLogger, conf),
		},
	)

	serverErrors := make(chan error, 1)
	go func() {
		apiLogger.Info("API listening on " + conf.Server.Address)
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			apiLogger.Fatal(fmt.Sprintf("server error: %v", err), err)
		}

	case sig := <-shutdown:
		apiLogger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Stop(ctx); err != nil {
			apiLogger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

// setUpStorage returns the repositories of the configured engine along with their closer.
func setUpStorage(conf *core.Config) (repositories, func() error, error) {
	if conf.Database.Engine == "memory" {
		db := inmemdb.Open()
		return repositories{
			users:     inmemdb.NewUserRepository(db),
			catalog:   inmemdb.NewCatalogRepository(db),
			carts:     inmemdb.NewCartRepository(db),
			wishlists: inmemdb.NewWishlistRepository(db),
			addresses: inmemdb.NewAddressRepository(db),
			orders:    inmemdb.NewOrderRepository(db),
			reviews:   inmemdb.NewReviewRepository(db),
			payments:  inmemdb.NewPaymentRepository(db),
		}, func() error { return nil }, nil
	}

	if err := database.CreateIfNotExist(conf); err != nil {
		return repositories{}, nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return repositories{}, nil, err
	}
	if err = database.Ping(db); err != nil {
		_ = db.Close()
		return repositories{}, nil, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return repositories{}, nil, err
	}
	return repositories{
		users:     sqlxrepos.NewUserRepository(db),
		catalog:   sqlxrepos.NewCatalogRepository(db),
		carts:     sqlxrepos.NewCartRepository(db),
		wishlists: sqlxrepos.NewWishlistRepository(db),
		addresses: sqlxrepos.NewAddressRepository(db),
		orders:    sqlxrepos.NewOrderRepository(db),
		reviews:   sqlxrepos.NewReviewRepository(db),
		payments:  sqlxrepos.NewPaymentRepository(db),
	}, db.Close, nil
}
