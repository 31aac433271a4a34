package main

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/edapp/edapp/core/tenant"
)

func (cli *commandLine) addTenant(slug, name, email string) error {
	ctx := context.Background()
	nt := tenant.NewTenant{Slug: slug, Name: name, ContactEmail: email}
	if err := nt.Validate(ctx, cli.validate, cli.tenantSvc); err != nil {
		return err
	}

	t, err := cli.tenantSvc.Create(ctx, nt)
	if err != nil {
		return errors.Wrap(err, "creating tenant")
	}
	fmt.Fprintf(cli.out, "tenant %q created (%s)\n", t.Slug, t.ID)
	return nil
}
