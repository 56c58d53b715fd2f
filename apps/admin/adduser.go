package main

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/saudamart/sauda/core"
	"github.com/saudamart/sauda/core/user"
)

// addUser creates an active staff member, or promotes and reactivates the user owning email.
func (cli *commandLine) addUser(name, email, pwd string, owner bool) error {
	ctx := context.Background()
	name = core.CleanString(name)
	email = core.CleanString(email, true /* lower */)
	role := user.RoleAdmin
	if owner {
		role = user.RoleAdminOwner
	}

	now := time.Now().UTC()
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{Email: email})
	found := err == nil
	if err != nil {
		if errors.Cause(err) != user.ErrNotFound {
			return err
		}
		usr = user.User{
			Name:         name,
			Email:        email,
			AuthProvider: user.ProviderPassword,
			CreatedAt:    now,
		}
	}

	usr.Roles = []string{role}
	usr.IsActive = true
	usr.UpdatedAt = now
	if err = usr.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "setting password")
	}

	if found {
		_, err = cli.usrRepo.UpdateUser(ctx, usr)
		return errors.Wrap(err, "updating user")
	}
	_, err = cli.usrRepo.CreateUser(ctx, usr)
	return errors.Wrap(err, "creating user")
}
