package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saudamart/sauda/core/user"
	"github.com/saudamart/sauda/storage/database/inmem"
	"github.com/saudamart/sauda/tests"
)

var usrRepo user.Repository

func setup(t *testing.T) *commandLine {
	usrRepo = inmemdb.NewUserRepository(inmemdb.Open())
	return &commandLine{usrRepo: usrRepo}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func (tt cliTest) check(t *testing.T, err error) {
	t.Helper()
	switch {
	case tt.wantErr != nil:
		assert.Equal(t, tt.wantErr, err)
	case tt.wantErrStr != "":
		if assert.Error(t, err) {
			assert.Equal(t, tt.wantErrStr, err.Error())
		}
	default:
		assert.NoError(t, err)
	}
}

func mockPassword(pwd string) {
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte(pwd), nil
	}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	var ran []string
	gooseRunFunc = func(db *sqlx.DB, command string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		ran = append(ran, command)
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "create: no args", args: []string{"migrate", "create"}, wantErrStr: "create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "down-to", args: []string{"migrate", "down-to", "1"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "create", args: []string{"migrate", "create", "coupons", "sql"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, cli.run(args))
		})
	}
	assert.Equal(t, []string{"up", "up-to", "down", "down-to", "redo", "status", "create"}, ran)
}

func Test_commandLine_resetPassword(t *testing.T) {
	cli := setup(t)
	usr := testutil.CreateUser(t, usrRepo, "Hero", "hero@sauda.af", "Kab0l#Naan9", nil, true)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpassword"}, wantErr: errHelp},
		{name: "email but no password", args: []string{"resetpassword", "-email", "lol@sauda.af"}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpassword", "-email", "lol@sauda.af"}, extra: "lol", wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpassword", "-email", usr.Email}, extra: "Mazar#Rice7"},
		{name: "email is case insensitive", args: []string{"resetpassword", "-email", " HERO@sauda.af"}, extra: "Herat#Grape8"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		pwd, _ := tt.extra.(string)
		mockPassword(pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err != nil {
				return
			}
			refreshed, err := usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
			require.NoError(t, err)
			assert.NoError(t, refreshed.CheckPassword(pwd))
		})
	}
}

func Test_commandLine_addUser(t *testing.T) {
	cli := setup(t)
	customer := testutil.CreateUser(t, usrRepo, "Jane", "jane@sauda.af", "Kab0l#Naan9", nil, false)

	type extra struct {
		pwd   string
		roles []string
	}
	tests := []cliTest{
		{name: "no args", args: []string{"adduser"}, wantErr: errHelp},
		{name: "name required", args: []string{"adduser", "-email", "boss@sauda.af"}, extra: extra{pwd: "lol"}, wantErr: errHelp},
		{name: "password required", args: []string{"adduser", "-name", "Boss", "-email", "boss@sauda.af"}, wantErr: errHelp},
		{
			name: "new admin", args: []string{"adduser", "-name", "Boss", "-email", "Boss@Sauda.af"},
			extra: extra{pwd: "Kabul#Tea9", roles: []string{user.RoleAdmin}},
		},
		{
			name: "new owner", args: []string{"adduser", "-name", "Owner", "-email", "owner@sauda.af", "-owner"},
			extra: extra{pwd: "Kabul#Tea9", roles: []string{user.RoleAdminOwner}},
		},
		{
			name: "existing user promoted and reactivated", args: []string{"adduser", "-name", "Jane", "-email", customer.Email},
			extra: extra{pwd: "Jalalabad#1", roles: []string{user.RoleAdmin}},
		},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		ext, _ := tt.extra.(extra)
		mockPassword(ext.pwd)

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			tt.check(t, err)
			if err != nil {
				return
			}
			email := args[len(args)-1]
			if email == "-owner" {
				email = args[len(args)-2]
			}
			usr, err := usrRepo.GetUser(context.Background(), user.GetFilter{Email: strings.ToLower(email)})
			require.NoError(t, err)
			assert.Equal(t, ext.roles, usr.Roles)
			assert.True(t, usr.IsActive)
			assert.NoError(t, usr.CheckPassword(ext.pwd))
		})
	}

	n, err := usrRepo.CountUsers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
