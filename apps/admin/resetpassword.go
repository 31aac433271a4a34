package main

import (
	"context"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/user"
)

// resetPassword sets the password of a tenant user, or of a platform user when tenantSlug is empty.
func (cli *commandLine) resetPassword(tenantSlug, uname, pwd string) error {
	ctx := context.Background()

	var tenantID string
	if slug := core.CleanString(tenantSlug, true /* lower */); slug != "" {
		t, err := cli.tenantSvc.GetBySlug(ctx, slug)
		if err != nil {
			return err
		}
		tenantID = t.ID
	}

	usr, err := cli.usrRepo.GetUser(ctx, user.GetFilter{
		TenantID:        tenantID,
		UsernameOrEmail: core.CleanString(uname, true /* lower */),
	})
	if err != nil {
		return err
	}
	if err := usr.SetPassword(pwd); err != nil {
		return err
	}
	if _, err := cli.usrRepo.UpdateUser(ctx, usr); err != nil {
		return err
	}
	return nil
}
