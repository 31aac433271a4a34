package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/user"
)

var errInvalidRole = errors.New("invalid role")

type addUserOptions struct {
	name     string
	username string
	email    string
	password string
	tenant   string // slug
	role     string
	platform bool
}

// addUser updates or creates a user.User, either within a tenant or as a platform admin.
func (cli *commandLine) addUser(opts addUserOptions) error {
	ctx := context.Background()
	uname := core.CleanString(opts.username, true /* lower */)
	email := core.CleanString(opts.email, true /* lower */)

	var tenantID string
	roles := []string{user.RolePlatformAdmin}
	if !opts.platform {
		t, err := cli.tenantSvc.GetBySlug(ctx, core.CleanString(opts.tenant, true /* lower */))
		if err != nil {
			return errors.Wrapf(err, "finding tenant %q", opts.tenant)
		}
		role := core.CleanString(opts.role, true /* lower */)
		if !user.IsTenantRole(role) {
			return errors.Wrapf(errInvalidRole, "%q", opts.role)
		}
		tenantID, roles = t.ID, []string{role}
	}

	lookup := uname
	if lookup == "" {
		lookup = email
	}
	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{TenantID: tenantID, UsernameOrEmail: lookup})
	switch {
	case err == nil:
		usr.Roles = roles
		usr.IsActive = true
		if err = usr.SetPassword(opts.password); err != nil {
			return err
		}
		if _, err = cli.usrRepo.UpdateUser(ctx, usr); err != nil {
			return errors.Wrap(err, "updating user")
		}
		fmt.Fprintf(cli.out, "user %q updated\n", usr.Username)
		return nil

	case errors.Cause(err) != user.ErrNotFound:
		return errors.Wrap(err, "finding user")
	}

	name := core.CleanString(opts.name)
	if name == "" {
		name = lookup
	}
	nu := user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        opts.password,
		PasswordConfirm: opts.password,
	}
	nu.Clean()
	if err = cli.validate.Struct(nu); err != nil {
		return err
	}

	if usr, err = user.NewTenantUser(tenantID, nu); err != nil {
		return err
	}
	usr.Roles = roles
	if usr, err = cli.usrRepo.CreateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "creating user")
	}
	fmt.Fprintf(cli.out, "user %q created\n", lookup)
	return nil
}
