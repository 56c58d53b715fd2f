package user

import (
	"context"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
)

var (
	// errors
	ErrNotFound         = errors.New("user not found")
	ErrEmailExists      = errors.New("a user with this email already exists")
	ErrInvalidResetLink = errors.New("the reset password link is no longer valid")
	ErrNoEmail          = errors.New("identity has no email")
	ErrInvalidOAuth     = errors.New("invalid or expired oauth credentials")
	ErrHasOrders        = errors.New("users with orders cannot be deleted, deactivate them instead")
)

type (
	Repository interface {
		CheckEmailUniqueness(ctx context.Context, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// QueryUsers applies AND operation on available QueryFilter fields.
		// QueryFilter.Search does a case-insensitive match on one of User.Name, User.Email or User.Phone.
		// QueryFilter.Roles matches users having any role that starts with any of the provided roles.
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		// DeleteUsersByID deletes users along with their carts, wishlists, addresses and reviews.
		// It fails with ErrHasOrders when any of them placed an order.
		DeleteUsersByID(ctx context.Context, ids ...string) (int, error)
		CountUsers(ctx context.Context) (int, error)
	}

	// IdentityProvider resolves the credentials of an OAuth login into an Identity.
	// Invalid credentials fail with ErrInvalidOAuth.
	IdentityProvider interface {
		// ExchangeCode redeems an authorization code (PKCE flow).
		ExchangeCode(ctx context.Context, code, codeVerifier string) (Identity, error)
		// VerifyAccessToken resolves an access token received in an URL fragment (implicit flow).
		VerifyAccessToken(ctx context.Context, accessToken string) (Identity, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

func (svc *Service) CheckUniqueness(ctx context.Context, email string, exclUsers ...User) error {
	if err := svc.repo.CheckEmailUniqueness(ctx, email, exclUsers...); err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
		}
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	roles := nu.Roles
	if len(roles) == 0 {
		roles = []string{RoleCustomer}
	}
	usr := User{
		Name:         nu.Name,
		Email:        nu.Email,
		Phone:        nu.Phone,
		IsActive:     true,
		Roles:        roles,
		AuthProvider: ProviderPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

// Orderings are the fields users can be ordered by.
var Orderings = map[string]string{
	"name":       "name",
	"email":      "email",
	"created_at": "created_at",
	"last_login": "last_login",
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	ordering = core.FilterOrderings(ordering, Orderings)
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at"}}
	}
	users, err := svc.repo.QueryUsers(ctx, filter, ordering)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []User{}
	}
	return users, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

// Update applies a validated UpdateUser on usr.
func (svc *Service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Email = uu.Email
	if uu.Phone != nil {
		usr.Phone = *uu.Phone
	}
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Roles != nil {
		usr.Roles = uu.Roles
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *Service) Delete(ctx context.Context, ids ...string) error {
	if _, err := svc.repo.DeleteUsersByID(ctx, ids...); err != nil {
		if errors.Cause(err) == ErrHasOrders {
			return core.NewValidationError(ErrHasOrders)
		}
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

func (svc *Service) Count(ctx context.Context) (int, error) {
	return svc.repo.CountUsers(ctx)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

// RequestPasswordReset mails a reset link to the user with the given email.
// ErrNotFound is returned for unknown or inactive accounts; callers should not leak it.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}

	token, err := makeToken(usr, svc.conf.SecretKey)
	if err != nil {
		return errors.Wrap(err, "making reset token")
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": token,
		},
	})
	return nil
}

func (svc *Service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	invalidLink := core.NewValidationError(ErrInvalidResetLink)

	uid, err := decodeUID(data.UID)
	if err != nil {
		return invalidLink
	}
	usr, err := svc.GetByID(ctx, uid)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return invalidLink
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = verifyToken(usr, data.Token, svc.conf.SecretKey, svc.conf.PasswordResetTimeoutDelta); err != nil {
		return invalidLink
	}

	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return errors.Wrap(err, "updating user")
}

// UpsertOAuthUser links an external identity to the account with the same email,
// creating a password-less customer account when none exists.
func (svc *Service) UpsertOAuthUser(ctx context.Context, ident Identity) (User, error) {
	email := core.CleanString(ident.Email, true /* lower */)
	if email == "" {
		return User{}, ErrNoEmail
	}

	usr, err := svc.GetByEmail(ctx, email)
	switch errors.Cause(err) {
	case nil:
		if usr.Name == "" && ident.Name != "" {
			usr.Name = ident.Name
			usr.UpdatedAt = time.Now().UTC()
			return svc.repo.UpdateUser(ctx, usr)
		}
		return usr, nil
	case ErrNotFound:
		now := time.Now().UTC()
		return svc.repo.CreateUser(ctx, User{
			Name:         core.CleanString(ident.Name),
			Email:        email,
			IsActive:     true,
			Roles:        []string{RoleCustomer},
			AuthProvider: ident.Provider,
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	default:
		return User{}, errors.Wrap(err, "finding user by email")
	}
}
