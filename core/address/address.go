package address

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
)

var ErrNotFound = errors.New("address not found")

type Address struct {
	ID         string    `json:"id"`
	UserID     string    `json:"-"`
	Label      string    `json:"label"`
	FullName   string    `json:"full_name"`
	Phone      string    `json:"phone"`
	Line1      string    `json:"line1"`
	Line2      string    `json:"line2"`
	City       string    `json:"city"`
	Province   string    `json:"province"`
	PostalCode string    `json:"postal_code"`
	Country    string    `json:"country"` // ISO 3166-1 alpha-2
	IsDefault  bool      `json:"is_default"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Snapshot is the copy of an address stored with an order.
type Snapshot struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

func (a Address) Snapshot() Snapshot {
	return Snapshot{
		FullName:   a.FullName,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		Province:   a.Province,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

// String renders a one line postal address.
func (s Snapshot) String() string {
	parts := make([]string, 0, 7)
	for _, p := range []string{s.FullName, s.Line1, s.Line2, s.City, s.Province, s.PostalCode, s.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

type NewAddress struct {
	Label      string `json:"label" validate:"max=50"`
	FullName   string `json:"full_name" validate:"required,notblank,max=120"`
	Phone      string `json:"phone" validate:"required,e164"`
	Line1      string `json:"line1" validate:"required,notblank,max=200"`
	Line2      string `json:"line2" validate:"max=200"`
	City       string `json:"city" validate:"required,notblank,max=100"`
	Province   string `json:"province" validate:"max=100"`
	PostalCode string `json:"postal_code" validate:"max=20"`
	Country    string `json:"country" validate:"required,iso3166_1_alpha2"`
	IsDefault  bool   `json:"is_default"`
}

func (na *NewAddress) Clean() {
	na.Label = core.CleanString(na.Label)
	na.FullName = core.CleanString(na.FullName)
	na.Phone = strings.ReplaceAll(core.CleanString(na.Phone), " ", "")
	na.Line1 = core.CleanString(na.Line1)
	na.Line2 = core.CleanString(na.Line2)
	na.City = core.CleanString(na.City)
	na.Province = core.CleanString(na.Province)
	na.PostalCode = core.CleanString(na.PostalCode)
	na.Country = strings.ToUpper(core.CleanString(na.Country))
}

func (na *NewAddress) Validate(validate *validator.Validate) error {
	na.Clean()
	return validate.Struct(na)
}

func (na NewAddress) Snapshot() Snapshot {
	return Address{
		FullName:   na.FullName,
		Phone:      na.Phone,
		Line1:      na.Line1,
		Line2:      na.Line2,
		City:       na.City,
		Province:   na.Province,
		PostalCode: na.PostalCode,
		Country:    na.Country,
	}.Snapshot()
}

type UpdateAddress struct {
	Label      *string `json:"label" validate:"omitempty,max=50"`
	FullName   *string `json:"full_name" validate:"omitempty,notblank,max=120"`
	Phone      *string `json:"phone" validate:"omitempty,e164"`
	Line1      *string `json:"line1" validate:"omitempty,notblank,max=200"`
	Line2      *string `json:"line2" validate:"omitempty,max=200"`
	City       *string `json:"city" validate:"omitempty,notblank,max=100"`
	Province   *string `json:"province" validate:"omitempty,max=100"`
	PostalCode *string `json:"postal_code" validate:"omitempty,max=20"`
	Country    *string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
}

func (ua *UpdateAddress) Validate(validate *validator.Validate) error {
	for _, s := range []*string{ua.Label, ua.FullName, ua.Line1, ua.Line2, ua.City, ua.Province, ua.PostalCode} {
		if s != nil {
			*s = core.CleanString(*s)
		}
	}
	if ua.Phone != nil {
		*ua.Phone = strings.ReplaceAll(core.CleanString(*ua.Phone), " ", "")
	}
	if ua.Country != nil {
		*ua.Country = strings.ToUpper(core.CleanString(*ua.Country))
	}
	return validate.Struct(ua)
}

func (ua UpdateAddress) apply(a *Address) {
	set := func(dst *string, src *string, required bool) {
		if src != nil && (*src != "" || !required) {
			*dst = *src
		}
	}
	set(&a.Label, ua.Label, false)
	set(&a.FullName, ua.FullName, true)
	set(&a.Phone, ua.Phone, true)
	set(&a.Line1, ua.Line1, true)
	set(&a.Line2, ua.Line2, false)
	set(&a.City, ua.City, true)
	set(&a.Province, ua.Province, false)
	set(&a.PostalCode, ua.PostalCode, false)
	set(&a.Country, ua.Country, true)
}

type (
	Repository interface {
		// ListAddresses returns the addresses of a user, most recent first.
		ListAddresses(ctx context.Context, userID string) ([]Address, error)
		GetAddress(ctx context.Context, userID, id string) (Address, error)
		// CreateAddress unsets the previous default address when a.IsDefault.
		CreateAddress(ctx context.Context, a Address) (Address, error)
		UpdateAddress(ctx context.Context, a Address) (Address, error)
		DeleteAddress(ctx context.Context, userID, id string) error
		// SetDefault makes id the only default address of the user.
		SetDefault(ctx context.Context, userID, id string) error
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) List(ctx context.Context, userID string) ([]Address, error) {
	addrs, err := svc.repo.ListAddresses(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "listing addresses")
	}
	if addrs == nil {
		addrs = []Address{}
	}
	return addrs, nil
}

func (svc *Service) Get(ctx context.Context, userID, id string) (Address, error) {
	return svc.repo.GetAddress(ctx, userID, id)
}

// Create saves a validated address. The first address of a user is its default.
func (svc *Service) Create(ctx context.Context, userID string, na NewAddress) (Address, error) {
	existing, err := svc.repo.ListAddresses(ctx, userID)
	if err != nil {
		return Address{}, errors.Wrap(err, "listing addresses")
	}

	now := time.Now().UTC()
	a, err := svc.repo.CreateAddress(ctx, Address{
		UserID:     userID,
		Label:      na.Label,
		FullName:   na.FullName,
		Phone:      na.Phone,
		Line1:      na.Line1,
		Line2:      na.Line2,
		City:       na.City,
		Province:   na.Province,
		PostalCode: na.PostalCode,
		Country:    na.Country,
		IsDefault:  na.IsDefault || len(existing) == 0,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	return a, errors.Wrap(err, "creating address")
}

func (svc *Service) Update(ctx context.Context, a Address, ua UpdateAddress) (Address, error) {
	ua.apply(&a)
	a.UpdatedAt = time.Now().UTC()
	a, err := svc.repo.UpdateAddress(ctx, a)
	return a, errors.Wrap(err, "updating address")
}

// Delete removes an address; when it was the default, the most recent remaining address becomes default.
func (svc *Service) Delete(ctx context.Context, userID, id string) error {
	a, err := svc.repo.GetAddress(ctx, userID, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteAddress(ctx, userID, id); err != nil {
		return errors.Wrap(err, "deleting address")
	}
	if !a.IsDefault {
		return nil
	}

	rest, err := svc.repo.ListAddresses(ctx, userID)
	if err != nil {
		return errors.Wrap(err, "listing addresses")
	}
	if len(rest) > 0 {
		return errors.Wrap(svc.repo.SetDefault(ctx, userID, rest[0].ID), "promoting default address")
	}
	return nil
}

func (svc *Service) SetDefault(ctx context.Context, userID, id string) (Address, error) {
	if _, err := svc.repo.GetAddress(ctx, userID, id); err != nil {
		return Address{}, err
	}
	if err := svc.repo.SetDefault(ctx, userID, id); err != nil {
		return Address{}, errors.Wrap(err, "setting default address")
	}
	return svc.repo.GetAddress(ctx, userID, id)
}
