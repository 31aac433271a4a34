package main

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
	logsvc "github.com/edapp/edapp/services/logger"
	"github.com/edapp/edapp/storage/database"
	pgdb "github.com/edapp/edapp/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()
	z := logsvc.NewZapLogger(conf)
	logger := logsvc.NewRollbarLogger(z.Named("admin"), conf)
	defer logger.Sync()

	if conf.Database.Disabled {
		logger.Error("the admin CLI needs a database")
		os.Exit(1)
	}

	// set up DB
	ctx := context.Background()
	if err := database.CreateIfNotExist(ctx, conf); err != nil {
		logger.Fatal("creating database", err)
	}
	db, err := database.Open(ctx, conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	defer func() { _ = db.Close() }()

	user.LoadCommonPasswords(logger)
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	tenant.InitValidators(validate, translator)

	// start CLI
	usrRepo := pgdb.NewUserRepository(db)
	cli := commandLine{
		db:         db,
		usrRepo:    usrRepo,
		tenantSvc:  tenant.NewService(db, pgdb.NewTenantRepository(db), usrRepo, nil),
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed: "+cli.format(err), errors.Cause(err))
		}
		logger.Sync()
		os.Exit(1)
	}
}
