package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/address"
	"github.com/saudamart/sauda/core/catalog"
	"github.com/saudamart/sauda/core/user"
)

// NewConfig returns the TEST config with plain error messages.
func NewConfig() *core.Config {
	_ = os.Setenv("SAUDA_ENV", "TEST")
	conf := core.NewConfig()
	conf.Debug = false
	conf.Database.Engine = "memory"
	conf.Shop.Currency = "USD"
	conf.Shop.ShippingFee = 500
	conf.Shop.FreeShippingThreshold = 5000
	conf.Shop.WhatsAppNumber = "+93 700 123 456"
	conf.Crypto.TokenContract = "0x" + "ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12"
	conf.Crypto.MerchantWallet = "0x" + "cd34cd34cd34cd34cd34cd34cd34cd34cd34cd34"
	conf.Crypto.TokenDecimals = 6
	conf.Crypto.MinConfirmations = 3
	return conf
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{user.RoleCustomer}
	}
	usr := user.User{
		Name:         name,
		Email:        email,
		Roles:        roles,
		IsActive:     isActive,
		AuthProvider: user.ProviderPassword,
		CreatedAt:    tstamp,
		UpdatedAt:    tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateCategory(t *testing.T, repo catalog.Repository, name, slug string, position int) catalog.Category {
	now := time.Now().UTC()
	cat, err := repo.CreateCategory(context.Background(), catalog.Category{
		Name:      name,
		Slug:      slug,
		Position:  position,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	return cat
}

// ProductOpts holds the optional fields of CreateProduct.
type ProductOpts struct {
	CategoryID string
	SalePrice  int64
	Inactive   bool
	Featured   bool
	CreatedAt  time.Time
}

func CreateProduct(t *testing.T, repo catalog.Repository, name, slug string, price int64, stock int, opts ...ProductOpts) catalog.Product {
	var opt ProductOpts
	if len(opts) > 0 {
		opt = opts[0]
	}
	tstamp := opt.CreatedAt
	if tstamp.IsZero() {
		tstamp = time.Now()
	}
	tstamp = tstamp.UTC()

	p := catalog.Product{
		CategoryID: opt.CategoryID,
		Name:       name,
		Slug:       slug,
		Price:      price,
		Currency:   "USD",
		Unit:       "kg",
		Stock:      stock,
		ImageURLs:  []string{},
		IsActive:   !opt.Inactive,
		IsFeatured: opt.Featured,
		CreatedAt:  tstamp,
		UpdatedAt:  tstamp,
	}
	if opt.SalePrice > 0 {
		sp := opt.SalePrice
		p.SalePrice = &sp
	}
	p, err := repo.CreateProduct(context.Background(), p)
	if err != nil {
		t.Fatalf("CreateProduct() failed: %v", err)
	}
	return p
}

func NewAddress() address.NewAddress {
	return address.NewAddress{
		Label:    "Home",
		FullName: "Farid Ahmadi",
		Phone:    "+93700111222",
		Line1:    "Street 4, Shar-e-Naw",
		City:     "Kabul",
		Country:  "AF",
	}
}

func CreateAddress(t *testing.T, repo address.Repository, userID string, isDefault bool) address.Address {
	na := NewAddress()
	now := time.Now().UTC()
	a, err := repo.CreateAddress(context.Background(), address.Address{
		UserID:    userID,
		Label:     na.Label,
		FullName:  na.FullName,
		Phone:     na.Phone,
		Line1:     na.Line1,
		City:      na.City,
		Country:   na.Country,
		IsDefault: isDefault,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("CreateAddress() failed: %v", err)
	}
	return a
}
