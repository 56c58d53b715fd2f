package tests

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudamart/sauda/core/user"
	"github.com/saudamart/sauda/tests"
)

func Test_userApi_me(t *testing.T) {
	resetDB(t)

	customer := createCustomer(t, "Hero", "hero@sauda.af")
	token := getToken(t, customer)

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/users/me")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})
	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", token)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, customer)}, rec)
	})

	tests := []httpTest{
		{
			name: "customers cannot change their roles", wantCode: http.StatusForbidden,
			body:     marchallObj(t, map[string]interface{}{"roles": []string{user.RoleAdmin}}),
			wantData: marchallObj(t, errForbidden),
		},
		{
			name: "customers cannot change their email", wantCode: http.StatusForbidden,
			body:     marchallObj(t, map[string]interface{}{"email": "new@sauda.af"}),
			wantData: marchallObj(t, errForbidden),
		},
		{
			name: "customers cannot reactivate themselves", wantCode: http.StatusForbidden,
			body:     marchallObj(t, map[string]interface{}{"is_active": true}),
			wantData: marchallObj(t, errForbidden),
		},
		{
			name: "invalid phone", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, map[string]interface{}{"phone": "lol"}),
			wantData: marchallObj(t, map[string]string{"phone": "phone must be a valid E.164 formatted phone number"}),
		},
		{
			name: "password confirmation", wantCode: http.StatusBadRequest,
			body:     marchallObj(t, map[string]interface{}{"password": "N3w#Bolani"}),
			wantData: marchallObj(t, map[string]string{"password_confirm": "this field is required"}),
		},
		{
			name: "updated", wantCode: http.StatusOK,
			body: marchallObj(t, map[string]interface{}{"name": " Hero Jan ", "phone": "+93700111222"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodPut
		tt.path = "/v1/users/me"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode != http.StatusOK {
				checkCodeAndData(t, tt, rec)
				return
			}
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var res user.User
			unmarchall(t, rec, &res)
			assert.Equal(t, "Hero Jan", res.Name)
			assert.Equal(t, "+93700111222", res.Phone)
			assert.Equal(t, customer.Email, res.Email)
			assert.Equal(t, customer.Roles, res.Roles)
		})
	}
}

func Test_userApi_deactivatedAccount(t *testing.T) {
	resetDB(t)

	naughty := testutil.CreateUser(t, usrRepo, "N Dog", "ndog@sauda.af", testPassword, nil, false) // 😂
	req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", getToken(t, naughty))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"})}, rec)
}

func Test_userApi_demotedAdmin(t *testing.T) {
	resetDB(t)

	admin := createAdmin(t, "Admin", "admin@sauda.af")
	token := getToken(t, admin)

	req, rec := newAuthRequest(http.MethodGet, "/v1/users", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// the token still claims admin rights
	admin.Roles = []string{user.RoleCustomer}
	_, err := usrRepo.UpdateUser(context.Background(), admin)
	require.NoError(t, err)

	req, rec = newAuthRequest(http.MethodGet, "/v1/users", token)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
}

func Test_userApi_query(t *testing.T) {
	resetDB(t)

	now := time.Now()
	owner := createAdmin(t, "Owner", "owner@sauda.af", user.RoleAdminOwner)
	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@sauda.af", testPassword, []string{user.RoleAdmin}, true, now.Add(1*time.Minute))
	farid := testutil.CreateUser(t, usrRepo, "Farid", "farid@sauda.af", testPassword, nil, true, now.Add(2*time.Minute))
	zahra := testutil.CreateUser(t, usrRepo, "Zahra", "zahra@kabul.af", testPassword, nil, false, now.Add(3*time.Minute))

	ownerToken := getToken(t, owner)

	tests := []httpTest{
		{name: "Auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Customers forbidden", token: getToken(t, farid), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "all users", token: ownerToken, wantCode: http.StatusOK, wantData: marchallList(t, owner, admin, farid, zahra)},
		{
			name: "ordered by name desc", path: "/v1/users?ordering=-name", token: ownerToken,
			wantCode: http.StatusOK, wantData: marchallList(t, zahra, owner, farid, admin),
		},
		{
			name: "search", path: "/v1/users?search=SAUDA.af&is_active=true", token: ownerToken,
			wantCode: http.StatusOK, wantData: marchallList(t, owner, admin, farid),
		},
		{
			name: "by role", path: "/v1/users?role=" + user.RoleAdmin, token: ownerToken,
			wantCode: http.StatusOK, wantData: marchallList(t, owner, admin),
		},
		{
			name: "inactive", path: "/v1/users?is_active=false", token: ownerToken,
			wantCode: http.StatusOK, wantData: marchallList(t, zahra),
		},
		{
			name:     "created range",
			path:     fmt.Sprintf("/v1/users?created_from=%s&created_to=%s", now.Add(90*time.Second).UTC().Format(time.RFC3339), now.Add(150*time.Second).UTC().Format(time.RFC3339)),
			token:    ownerToken,
			wantCode: http.StatusOK, wantData: marchallList(t, farid),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.path == "" {
			tt.path = "/v1/users"
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("roles", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/roles", ownerToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)}, rec)
	})
}

func Test_userApi_create(t *testing.T) {
	resetDB(t)

	admin := createAdmin(t, "Admin", "admin@sauda.af")
	customer := createCustomer(t, "Hero", "hero@sauda.af")
	token := getToken(t, admin)

	newUser := func(email string, roles ...string) user.NewUser {
		return user.NewUser{Name: "Nadia", Email: email, Password: testPassword, PasswordConfirm: testPassword, Roles: roles}
	}

	tests := []httpTest{
		{name: "Customers forbidden", token: getToken(t, customer), body: marchallObj(t, newUser("n@sauda.af")), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{
			name: "invalid roles", token: token, body: marchallObj(t, newUser("n@sauda.af", "lol:")), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"roles": "invalid roles"}),
		},
		{
			name: "cannot grant a role above their own", token: token, body: marchallObj(t, newUser("n@sauda.af", user.RoleAdminOwner)), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"roles": "not enough rights to set these roles"}),
		},
		{name: "staff created", token: token, body: marchallObj(t, newUser("nadia@sauda.af", user.RoleAdmin)), wantCode: http.StatusCreated},
	}
	for _, tt := range tests {
		tt.method = http.MethodPost
		tt.path = "/v1/users"

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)

			if tt.wantCode != http.StatusCreated {
				checkCodeAndData(t, tt, rec)
				return
			}
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var res user.User
			unmarchall(t, rec, &res)
			assert.Equal(t, "nadia@sauda.af", res.Email)
			assert.Equal(t, []string{user.RoleAdmin}, res.Roles)
			assert.True(t, res.IsActive)

			created, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: res.ID})
			require.NoError(t, err)
			assert.NoError(t, created.CheckPassword(testPassword))
		})
	}
}

func Test_userApi_detail(t *testing.T) {
	resetDB(t)

	owner := createAdmin(t, "Owner", "owner@sauda.af", user.RoleAdminOwner)
	admin := createAdmin(t, "Admin", "admin@sauda.af")
	customer := createCustomer(t, "Hero", "hero@sauda.af")
	adminToken := getToken(t, admin)
	path := func(id string) string { return "/v1/users/" + id }

	t.Run("retrieve", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path(customer.ID), adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, customer)}, rec)
	})
	t.Run("invalid id", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path("lol"), adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}, rec)
	})
	t.Run("unknown id", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, path("8d0f7a3e-5d5b-4c1e-9a55-0f0d0d7c1a11"), adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)}, rec)
	})
	t.Run("admins cannot update higher ranked users", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path(owner.ID), adminToken, marchallObj(t, map[string]string{"name": "lol"}))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})
	t.Run("admins deactivate customers", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, path(customer.ID), adminToken, marchallObj(t, map[string]interface{}{"is_active": false}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res user.User
		unmarchall(t, rec, &res)
		assert.False(t, res.IsActive)
	})
	t.Run("self delete forbidden", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, path(admin.ID), adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})
	t.Run("higher ranked delete forbidden", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, path(owner.ID), adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)}, rec)
	})
	t.Run("deleted", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, path(customer.ID), adminToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		_, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: customer.ID})
		assert.Equal(t, user.ErrNotFound, err)
	})
}

func Test_userApi_destroyMultiple(t *testing.T) {
	resetDB(t)

	admin := createAdmin(t, "Admin", "admin@sauda.af")
	farid := createCustomer(t, "Farid", "farid@sauda.af")
	zahra := createCustomer(t, "Zahra", "zahra@sauda.af")
	owner := createAdmin(t, "Owner", "owner@sauda.af", user.RoleAdminOwner)
	token := getToken(t, admin)

	tests := []httpTest{
		{name: "no ids", path: "/v1/users", wantCode: http.StatusNoContent},
		{name: "self delete forbidden", path: fmt.Sprintf("/v1/users?id=%s&id=%s", farid.ID, admin.ID), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "higher role forbidden", path: fmt.Sprintf("/v1/users?id=%s&id=%s", farid.ID, owner.ID), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "deleted", path: fmt.Sprintf("/v1/users?id=%s&id=%s", farid.ID, zahra.ID), wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodDelete, tt.path, token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	count, err := usrRepo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count) // admin & owner
}
