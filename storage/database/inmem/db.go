package inmemdb

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/address"
	"github.com/saudamart/sauda/core/catalog"
	"github.com/saudamart/sauda/core/order"
	"github.com/saudamart/sauda/core/payment"
	"github.com/saudamart/sauda/core/review"
	"github.com/saudamart/sauda/core/user"
)

// DB is a mutex guarded in-memory store. A single lock keeps multi table operations
// (checkout, cancellations) atomic.
type DB struct {
	mu sync.RWMutex

	users      map[string]*user.User
	categories map[string]*catalog.Category
	products   map[string]*catalog.Product
	cartItems  map[string]map[string]cartRow // {userID: {productID: row}}
	wishlist   map[string]map[string]wishRow // {userID: {productID: row}}
	addresses  map[string]*address.Address
	orders     map[string]*order.Order
	payments   map[string]*payment.Payment
	reviews    map[string]*review.Review
}

func Open() *DB {
	return &DB{
		users:      make(map[string]*user.User),
		categories: make(map[string]*catalog.Category),
		products:   make(map[string]*catalog.Product),
		cartItems:  make(map[string]map[string]cartRow),
		wishlist:   make(map[string]map[string]wishRow),
		addresses:  make(map[string]*address.Address),
		orders:     make(map[string]*order.Order),
		payments:   make(map[string]*payment.Payment),
		reviews:    make(map[string]*review.Review),
	}
}

// Truncate empties every table.
func (db *DB) Truncate() {
	fresh := Open()
	db.mu.Lock()
	db.users = fresh.users
	db.categories = fresh.categories
	db.products = fresh.products
	db.cartItems = fresh.cartItems
	db.wishlist = fresh.wishlist
	db.addresses = fresh.addresses
	db.orders = fresh.orders
	db.payments = fresh.payments
	db.reviews = fresh.reviews
	db.mu.Unlock()
}

var errForeignKey = errors.New("inmemdb: foreign key violation")

func newID() string {
	return uuid.NewString()
}

// compareOrderings walks orderings and returns the result of the first non equal comparison.
func compareOrderings(orderings []core.DBOrdering, cmp func(field string) int) bool {
	for _, ord := range orderings {
		c := cmp(ord.Field)
		if c == 0 {
			continue
		}
		if ord.Ascending {
			return c < 0
		}
		return c > 0
	}
	return false
}
