package tests

import (
	"bytes"
	"context"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudamart/sauda/apps/api/echo"
	"github.com/saudamart/sauda/core/user"
	"github.com/saudamart/sauda/tests"
)

func Test_userApi_register(t *testing.T) {
	resetDB(t)

	existing := createCustomer(t, "Zahra", "zahra@sauda.af")
	reqMsg := "this field is required"

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"name": reqMsg, "email": reqMsg, "password": reqMsg, "password_confirm": reqMsg}),
		},
		{
			name: "weak password", wantCode: http.StatusBadRequest,
			body: marchallObj(t, user.NewUser{Name: "Farid", Email: "farid@sauda.af", Password: "naan", PasswordConfirm: "naan"}),
			wantData: marchallObj(t, map[string]string{"password": "password must contain at least 8 characters"}),
		},
		{
			name: "email taken", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.NewUser{Name: "Zahra", Email: existing.Email, Password: testPassword, PasswordConfirm: testPassword}),
			wantData: marchallObj(t, map[string]string{"email": user.ErrEmailExists.Error()}),
		},
		{
			name: "registered as customer", wantCode: http.StatusCreated,
			body: marchallObj(t, user.NewUser{
				Name: " Farid ", Email: "Farid@Sauda.AF", Password: testPassword, PasswordConfirm: testPassword,
				Roles: []string{user.RoleAdminOwner},
			}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/register"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode != http.StatusCreated {
				checkCodeAndData(t, tt, rec)
				return
			}

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var res echoapi.LoginResponse
			unmarchall(t, rec, &res)
			assert.NotEmpty(t, res.Token)
			assert.Equal(t, "Farid", res.User.Name)
			assert.Equal(t, "farid@sauda.af", res.User.Email)
			assert.Equal(t, []string{user.RoleCustomer}, res.User.Roles)
			assert.False(t, res.User.LastLogin.IsZero())

			cookie := findCookie(rec, "access_token")
			require.NotNil(t, cookie)
			assert.Equal(t, res.Token, cookie.Value)
			assert.True(t, cookie.HttpOnly)
		})
	}
}

func Test_userApi_login(t *testing.T) {
	resetDB(t)

	customer := createCustomer(t, "Hero", "hero@sauda.af")
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog@sauda.af", testPassword, nil, false) // 😂

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"email": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown email", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Email: "lol@sauda.af", Password: testPassword}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "wrong password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.LoginRequest{Email: customer.Email, Password: "Wr0ng#pass"}),
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name: "inactive account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.LoginRequest{Email: naughty.Email, Password: testPassword}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "logged in", wantCode: http.StatusOK,
			body: marchallObj(t, echoapi.LoginRequest{Email: " HERO@sauda.af ", Password: testPassword}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/login"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode != http.StatusOK {
				checkCodeAndData(t, tt, rec)
				assert.Nil(t, findCookie(rec, "access_token"))
				return
			}

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var res echoapi.LoginResponse
			unmarchall(t, rec, &res)
			assert.Equal(t, customer.ID, res.User.ID)
			assert.False(t, res.User.LastLogin.IsZero())
			cookie := findCookie(rec, "access_token")
			require.NotNil(t, cookie)
			assert.Equal(t, res.Token, cookie.Value)

			// the session cookie alone authenticates
			req, rec = newCookieRequest(http.MethodGet, "/v1/users/me", cookie.Value, "")
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func Test_userApi_logout(t *testing.T) {
	resetDB(t)

	req, rec := newRequest(http.MethodPost, "/v1/auth/logout")
	app.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	cookie := findCookie(rec, "access_token")
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.MaxAge < 0)
}

func Test_csrfProtection(t *testing.T) {
	resetDB(t)

	customer := createCustomer(t, "Hero", "hero@sauda.af")
	token := getToken(t, customer)

	// the token is issued on safe requests
	req, rec := newRequest(http.MethodGet, "/v1/auth/csrf")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var res echoapi.CSRFResponse
	unmarchall(t, rec, &res)
	require.NotEmpty(t, res.CSRFToken)
	cookie := findCookie(rec, "csrf_token")
	require.NotNil(t, cookie)
	assert.Equal(t, res.CSRFToken, cookie.Value)

	body := marchallObj(t, map[string]string{"name": "Hero Updated"})

	t.Run("cookie session without csrf header", func(t *testing.T) {
		req, rec := newCookieRequest(http.MethodPut, "/v1/users/me", token, "", body)
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: res.CSRFToken})
		app.ServeHTTP(rec, req)
		assert.Contains(t, []int{http.StatusBadRequest, http.StatusForbidden}, rec.Code)
	})
	t.Run("cookie session with a wrong csrf header", func(t *testing.T) {
		req, rec := newCookieRequest(http.MethodPut, "/v1/users/me", token, "", body)
		req.AddCookie(&http.Cookie{Name: "csrf_token", Value: res.CSRFToken})
		req.Header.Set("X-CSRF-Token", "lol")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "invalid csrf token"})}, rec)
	})
	t.Run("cookie session with csrf header", func(t *testing.T) {
		req, rec := newCookieRequest(http.MethodPut, "/v1/users/me", token, res.CSRFToken, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
	t.Run("bearer token needs no csrf header", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/me", token, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
	t.Run("anonymous requests need no csrf header", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/v1/auth/login", marchallObj(t, echoapi.LoginRequest{Email: customer.Email, Password: testPassword}))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	resetDB(t)

	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog@sauda.af", "", nil, false) // 😂
	customer := createCustomer(t, "Hero", "hero@sauda.af")

	now := time.Now()
	unrefreshableClaims := auth.UserClaims(customer, now.Add(-2*conf.Server.JWTRefreshExpirationDelta).Unix()) // older than threshold
	unrefreshableToken, err := auth.GenerateToken(unrefreshableClaims)
	require.NoError(t, err)

	expiredClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{Subject: customer.ID, ExpiresAt: now.Add(-time.Minute).Unix(), IssuedAt: now.Add(-time.Hour).Unix()},
		OrigIssuedAt:   now.Add(-time.Hour).Unix(),
	}
	expiredToken, err := auth.GenerateToken(expiredClaims)
	require.NoError(t, err)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Expired token", token: expiredToken, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, httpErr{Error: "invalid or expired jwt"})},
		{name: "Inactive user not allowed", token: getToken(t, naughty), wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})},
		{name: "Refresh period expired", token: unrefreshableToken, wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"})},
		{name: "Token refreshed", token: getToken(t, customer), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/token-refresh"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			// cannot guess new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
				var res echoapi.LoginResponse
				unmarchall(t, rec, &res)
				assert.NotEmpty(t, res.Token)
				assert.NotNil(t, findCookie(rec, "access_token"))
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_oauthExchange(t *testing.T) {
	resetDB(t)

	existing := createCustomer(t, "Zahra", "zahra@sauda.af")
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog@sauda.af", "", nil, false) // 😂

	idp.codes["good-code|verifier"] = user.Identity{Provider: user.ProviderSupabase, ProviderID: "sb-1", Email: "New@Sauda.af", Name: "Nadia"}
	idp.codes["zahra-code|verifier"] = user.Identity{Provider: user.ProviderSupabase, ProviderID: "sb-2", Email: existing.Email}
	idp.tokens["naughty-token"] = user.Identity{Provider: user.ProviderSupabase, ProviderID: "sb-3", Email: naughty.Email}
	idp.tokens["no-email-token"] = user.Identity{Provider: user.ProviderSupabase, ProviderID: "sb-4"}
	defer func() {
		idp.codes = make(map[string]user.Identity)
		idp.tokens = make(map[string]user.Identity)
	}()

	type extraTest struct {
		email string
		name  string
	}
	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.OAuthExchangeRequest{}),
			wantData: marchallObj(t, map[string]string{"code": "this field is required"}),
		},
		{
			name: "verifier required with code", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.OAuthExchangeRequest{Code: "good-code"}),
			wantData: marchallObj(t, map[string]string{"code_verifier": "this field is required"}),
		},
		{
			name: "invalid code", wantCode: http.StatusUnauthorized,
			body:     marchallObj(t, echoapi.OAuthExchangeRequest{Code: "bad-code", CodeVerifier: "verifier"}),
			wantData: marchallObj(t, httpErr{Error: user.ErrInvalidOAuth.Error()}),
		},
		{
			name: "identity without email", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, echoapi.OAuthExchangeRequest{AccessToken: "no-email-token"}),
			wantData: marchallObj(t, httpErr{Error: user.ErrNoEmail.Error()}),
		},
		{
			name: "deactivated account", wantCode: http.StatusForbidden,
			body:     marchallObj(t, echoapi.OAuthExchangeRequest{AccessToken: "naughty-token"}),
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "new account", wantCode: http.StatusOK,
			body:  marchallObj(t, echoapi.OAuthExchangeRequest{Code: "good-code", CodeVerifier: "verifier"}),
			extra: extraTest{email: "new@sauda.af", name: "Nadia"},
		},
		{
			name: "linked to the existing account", wantCode: http.StatusOK,
			body:  marchallObj(t, echoapi.OAuthExchangeRequest{Code: "zahra-code", CodeVerifier: "verifier"}),
			extra: extraTest{email: existing.Email, name: existing.Name},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/oauth/exchange"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)

			extra, ok := tt.extra.(extraTest)
			if !ok {
				checkCodeAndData(t, tt, rec)
				return
			}
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var res echoapi.LoginResponse
			unmarchall(t, rec, &res)
			assert.NotEmpty(t, res.Token)
			assert.Equal(t, extra.email, res.User.Email)
			assert.Equal(t, extra.name, res.User.Name)
			assert.Equal(t, []string{user.RoleCustomer}, res.User.Roles)
			assert.NotNil(t, findCookie(rec, "access_token"))
		})
	}

	count, err := usrRepo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func Test_userApi_resetPassword(t *testing.T) {
	resetDB(t)

	customer := createCustomer(t, "Hero", "hero@sauda.af")
	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog@sauda.af", testPassword, nil, false) // 😂
	successData := marchallObj(t, echoapi.SuccessResponse{Success: "If the email address supplied is associated with an active account on this system, " +
		"an email will arrive in your inbox shortly with instructions to reset your password."})

	pathRegex := regexp.MustCompile("/password-reset/.+/.+")

	type extraTest struct {
		emailSent bool
		to        mail.Address
	}
	tests := []httpTest{
		{name: "required fields", wantCode: http.StatusBadRequest, wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "this field is required"})},
		{
			name: "invalid email", wantCode: http.StatusBadRequest, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol"}),
			wantData: marchallObj(t, echoapi.PasswordResetRequest{Email: "email must be a valid email address"}),
		},
		{
			name: "unknown email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@sauda.af"}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "inactive account", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: naughty.Email}),
			wantData: successData, extra: extraTest{emailSent: false},
		},
		{
			name: "known email", wantCode: http.StatusOK, body: marchallObj(t, echoapi.PasswordResetRequest{Email: customer.Email}),
			wantData: successData, extra: extraTest{emailSent: true, to: mail.Address{Name: customer.Name, Address: customer.Email}},
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/password-reset"

		t.Run(tt.name, func(t *testing.T) {
			mailSvc.Reset()

			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			extra, ok := tt.extra.(extraTest)
			if !ok {
				return
			}
			sent := mailSvc.Sent()
			if !extra.emailSent {
				assert.Empty(t, sent)
				return
			}
			require.Len(t, sent, 1)
			msg := sent[0]
			assert.Equal(t, extra.to, msg.To[0])
			assert.True(t, strings.Contains(msg.TextContent, extra.to.Name))
			assert.True(t, strings.Contains(msg.HTMLContent, extra.to.Name))
			assert.Regexp(t, pathRegex, msg.TextContent)
			assert.Regexp(t, pathRegex, msg.HTMLContent)
		})
	}
}

func Test_userApi_confirmPasswordReset(t *testing.T) {
	resetDB(t)

	customer := createCustomer(t, "Hero", "hero@sauda.af")

	// request a reset link, then read uid & token from the mail
	mailSvc.Reset()
	req, rec := newRequest(http.MethodPost, "/v1/auth/password-reset", marchallObj(t, echoapi.PasswordResetRequest{Email: customer.Email}))
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	sent := mailSvc.Sent()
	require.Len(t, sent, 1)
	m := regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`).FindStringSubmatch(sent[0].TextContent)
	require.Len(t, m, 3)
	validUID, validToken := m[1], m[2]

	reqMsg := "this field is required"
	invalidLink := marchallObj(t, httpErr{Error: user.ErrInvalidResetLink.Error()})
	newPwd := "N3w#Bolani"

	tests := []httpTest{
		{
			name: "required fields", wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, user.ResetUserPassword{Token: reqMsg, UID: reqMsg, Password: reqMsg, PasswordConfirm: reqMsg}),
		},
		{
			name: "invalid pwd: complexity", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: "lol12345", PasswordConfirm: "lol12345"}),
			wantData: marchallObj(t, user.ResetUserPassword{Password: "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"}),
		},
		{
			name: "PasswordConfirm must = Password", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "lol", UID: "lol", Password: newPwd, PasswordConfirm: "lol"}),
			wantData: marchallObj(t, user.ResetUserPassword{PasswordConfirm: "password_confirm must be equal to Password"}),
		},
		{
			name: "invalid uid", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: "bG9s", Password: newPwd, PasswordConfirm: newPwd}),
			wantData: invalidLink,
		},
		{
			name: "invalid token", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: "HE4TS-sigsig", UID: validUID, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: invalidLink,
		},
		{
			name: "valid token", wantCode: http.StatusOK,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: newPwd, PasswordConfirm: newPwd}),
			wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
		},
		{
			name: "token is single use", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, user.ResetUserPassword{Token: validToken, UID: validUID, Password: "An0ther#Pass", PasswordConfirm: "An0ther#Pass"}),
			wantData: invalidLink,
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/auth/password-reset-confirm"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: customer.ID})
				require.NoError(t, err)
				assert.False(t, bytes.Equal(refreshed.PasswordHash, customer.PasswordHash), "failed to update password")
				assert.NoError(t, refreshed.CheckPassword(newPwd))
			}
		})
	}
}
