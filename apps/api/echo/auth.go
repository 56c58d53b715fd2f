package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/user"
)

const (
	tokenCookieName = "access_token"
	csrfCookieName  = "csrf_token"
	csrfHeaderName  = "X-CSRF-Token"

	contextTokenKey = "userToken"
	contextUserKey  = "user"
	contextCSRFKey  = "csrf"

	audience = "sauda-storefront"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64    `json:"oriat,omitempty"`
	Email        string   `json:"email,omitempty"`
	IsAdmin      bool     `json:"is_admin,omitempty"` // -> ADMIN DASHBOARD
	Roles        []string `json:"roles,omitempty"`
}

// Auth issues the JWTs of user sessions and authenticates requests carrying them,
// either in the Authorization header or in the access_token cookie.
type Auth struct {
	conf      *core.Config
	jwtConfig middleware.JWTConfig
}

func NewAuth(conf *core.Config) *Auth {
	return &Auth{
		conf: conf,
		jwtConfig: middleware.JWTConfig{
			SigningKey:    []byte(conf.SecretKey),
			SigningMethod: middleware.AlgorithmHS256,
			ContextKey:    contextTokenKey,
			Claims:        new(Claims),
			BeforeFunc:    promoteTokenCookie,
		},
	}
}

// promoteTokenCookie copies the session cookie into the Authorization header,
// unless the request already carries a bearer token.
func promoteTokenCookie(ctx echo.Context) {
	req := ctx.Request()
	if req.Header.Get(echo.HeaderAuthorization) != "" {
		return
	}
	if cookie, err := ctx.Cookie(tokenCookieName); err == nil && cookie.Value != "" {
		req.Header.Set(echo.HeaderAuthorization, middleware.DefaultJWTConfig.AuthScheme+" "+cookie.Value)
	}
}

func hasToken(ctx echo.Context) bool {
	if ctx.Request().Header.Get(echo.HeaderAuthorization) != "" {
		return true
	}
	cookie, err := ctx.Cookie(tokenCookieName)
	return err == nil && cookie.Value != ""
}

// jwtMiddleware requires a valid token.
func (a *Auth) jwtMiddleware() echo.MiddlewareFunc {
	return middleware.JWTWithConfig(a.jwtConfig)
}

// optionalJWTMiddleware authenticates requests carrying a token and lets anonymous ones through.
func (a *Auth) optionalJWTMiddleware() echo.MiddlewareFunc {
	conf := a.jwtConfig
	conf.Skipper = func(ctx echo.Context) bool { return !hasToken(ctx) }
	return middleware.JWTWithConfig(conf)
}

func (a *Auth) UserClaims(usr user.User, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    a.conf.AppName,
			Subject:   usr.ID,
			Audience:  audience,
			ExpiresAt: now.Add(a.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Email:        usr.Email,
		IsAdmin:      usr.IsAdmin(),
		Roles:        usr.Roles,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func (a *Auth) GenerateToken(claims *Claims) (string, error) {
	method := jwt.GetSigningMethod(a.jwtConfig.SigningMethod)
	token := jwt.NewWithClaims(method, claims)

	ss, err := token.SignedString(a.jwtConfig.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (a *Auth) sessionCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieName,
		Value:    value,
		Path:     "/",
		Domain:   a.conf.Server.CookieDomain,
		MaxAge:   maxAge,
		Secure:   a.conf.Server.CookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// startSession issues a token for usr and sets the session cookie.
func (a *Auth) startSession(ctx echo.Context, usr user.User, origIat ...int64) (LoginResponse, error) {
	token, err := a.GenerateToken(a.UserClaims(usr, origIat...))
	if err != nil {
		return LoginResponse{}, err
	}
	ctx.SetCookie(a.sessionCookie(token, int(a.conf.Server.JWTExpirationDelta.Seconds())))
	return LoginResponse{Token: token, User: usr}, nil
}

func (a *Auth) endSession(ctx echo.Context) {
	ctx.SetCookie(a.sessionCookie("", -1))
	ctx.SetCookie(&http.Cookie{
		Name:   csrfCookieName,
		Path:   "/",
		Domain: a.conf.Server.CookieDomain,
		MaxAge: -1,
		Secure: a.conf.Server.CookieSecure,
	})
}

// csrfConfig is a double submit check: unsafe requests authenticated by the session cookie
// must echo the csrf_token cookie in the X-CSRF-Token header.
func (a *Auth) csrfConfig() middleware.CSRFConfig {
	return middleware.CSRFConfig{
		Skipper:      csrfSkipper,
		TokenLookup:  "header:" + csrfHeaderName,
		ContextKey:   contextCSRFKey,
		CookieName:   csrfCookieName,
		CookieDomain: a.conf.Server.CookieDomain,
		CookiePath:   "/",
		CookieMaxAge: int(a.conf.Server.JWTRefreshExpirationDelta.Seconds()),
		CookieSecure: a.conf.Server.CookieSecure,
	}
}

func csrfSkipper(ctx echo.Context) bool {
	req := ctx.Request()
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return false // issues the token
	}
	if strings.HasPrefix(req.Header.Get(echo.HeaderAuthorization), middleware.DefaultJWTConfig.AuthScheme+" ") {
		return true
	}
	if ctx.Path() == stripeWebhookPath {
		return true
	}
	cookie, err := ctx.Cookie(tokenCookieName)
	return err != nil || cookie.Value == ""
}

func authenticate(ctx echo.Context, email, pwd string, svc *user.Service) (user.User, error) {
	usr, err := svc.GetByEmail(ctx.Request().Context(), email)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errAuthenticationFailed
		}
		return user.User{}, errors.Wrap(err, "finding user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return user.User{}, errAuthenticationFailed
	}
	if !usr.IsActive {
		return user.User{}, errAccountDeactivated
	}
	usr, err = svc.SetLastLogin(ctx.Request().Context(), usr)
	return usr, errors.Wrap(err, "setting lastLogin")
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getContextUser(ctx echo.Context, svc *user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, errUnauthorized
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// activeUserMiddleware loads the user of the token and refuses deactivated accounts.
func activeUserMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, svc)
			if err != nil {
				return err
			}
			if !usr.IsActive {
				return errAccountDeactivated
			}
			return next(ctx)
		}
	}
}

// contextRoles returns the roles of the loaded user, or those of the token claims.
func contextRoles(ctx echo.Context) []string {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr.Roles
	}
	if claims, err := getContextClaims(ctx); err == nil {
		return claims.Roles
	}
	return nil
}

func contextHasAnyRole(ctx echo.Context, roles []string) bool {
	if len(roles) == 0 {
		return true
	}
	have := contextRoles(ctx)
	for _, role := range roles {
		for _, r := range have {
			if r == role {
				return true
			}
		}
	}
	return false
}

func contextIsAdmin(ctx echo.Context) bool {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr.IsAdmin()
	}
	claims, err := getContextClaims(ctx)
	return err == nil && claims.IsAdmin
}

func (a *Auth) refreshToken(ctx echo.Context, svc *user.Service) (LoginResponse, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return LoginResponse{}, err
	}
	usr, err := getContextUser(ctx, svc)
	if err != nil {
		return LoginResponse{}, err
	}

	// check if user is still active
	if !usr.IsActive {
		return LoginResponse{}, errAccountDeactivated
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(a.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return LoginResponse{}, errRefreshExpired
	}

	res, err := a.startSession(ctx, usr, claims.OrigIssuedAt)
	return res, errors.Wrap(err, "starting session")
}
