package dig_container

import (
	"context"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/edapp/edapp/apps/api/echo"
	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/handoff"
	"github.com/edapp/edapp/core/policy"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
	cachesvc "github.com/edapp/edapp/services/cache"
	emailsvc "github.com/edapp/edapp/services/email"
	logsvc "github.com/edapp/edapp/services/logger"
	metricsvc "github.com/edapp/edapp/services/metrics"
	"github.com/edapp/edapp/storage/database"
	inmemdb "github.com/edapp/edapp/storage/database/inmem"
	pgdb "github.com/edapp/edapp/storage/database/postgres"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// Storage groups the repositories of the selected backend.
	Storage struct {
		dig.Out
		SQL        *sqlx.DB // nil with in-memory storage
		DB         core.DB
		UserRepo   user.Repository
		TenantRepo tenant.Repository
		AccessRepo access.Repository
		PolicyRepo policy.Repository
	}

	// Caches groups the tenant cache & the handoff store; Redis-backed when configured.
	Caches struct {
		dig.Out
		Redis   *redis.Client // nil without Redis
		Tenants tenant.Cache
		Handoff handoff.Store
	}

	serverParams struct {
		dig.In
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Metrics    *metricsvc.Metrics
		Resolver   *tenant.Resolver
		UserSvc    *user.Service
		TenantSvc  *tenant.Service
		AccessSvc  *access.Service
		PolicySvc  *policy.Service
		HandoffSvc *handoff.Service
	}
)

func newZapLogger(conf *core.Config) *zap.Logger {
	return logsvc.NewZapLogger(conf)
}

func newLogger(z *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(z.Named("api"), conf)
}

func newDBLogger(z *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(z.Named("db"), conf)
}

func newStorage(conf *core.Config, loggerParam DBLoggerParam) Storage {
	if conf.Database.Disabled {
		loggerParam.Logger.Warn("database disabled: using in-memory storage")
		db := inmemdb.NewDB()
		return Storage{
			UserRepo:   inmemdb.NewUserRepository(db),
			TenantRepo: inmemdb.NewTenantRepository(db),
			AccessRepo: inmemdb.NewAccessRepository(db),
			PolicyRepo: inmemdb.NewPolicyRepository(db),
		}
	}

	setUp := func() (*sqlx.DB, error) {
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal("setting up database", err)
	}
	return Storage{
		SQL:        db,
		DB:         db,
		UserRepo:   pgdb.NewUserRepository(db),
		TenantRepo: pgdb.NewTenantRepository(db),
		AccessRepo: pgdb.NewAccessRepository(db),
		PolicyRepo: pgdb.NewPolicyRepository(db),
	}
}

func newCaches(conf *core.Config, logger core.Logger) Caches {
	if conf.Redis.Addr == "" {
		return Caches{
			Tenants: cachesvc.NewMemoryTenantCache(conf.Tenancy.CacheTTL),
			Handoff: cachesvc.NewMemoryHandoffStore(),
		}
	}

	client, err := cachesvc.NewRedisClient(context.Background(), conf)
	if err != nil {
		logger.Fatal("connecting to redis", err)
	}
	return Caches{
		Redis:   client,
		Tenants: cachesvc.NewRedisTenantCache(client, conf.Tenancy.CacheTTL, logger),
		Handoff: cachesvc.NewRedisHandoffStore(client),
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate, translator := core.NewValidator()
	user.InitValidators(validate, translator)
	tenant.InitValidators(validate, translator)
	access.InitValidators(validate, translator)
	policy.InitValidators(validate, translator)
	return validate, translator
}

func newResolver(conf *core.Config) *tenant.Resolver {
	return tenant.NewResolver(conf.Tenancy.BaseDomains, conf.Tenancy.ReservedPaths)
}

func newHandoffService(store handoff.Store, conf *core.Config) *handoff.Service {
	return handoff.NewService(store, conf.Tenancy.HandoffTTL)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Deps{
		Conf:       p.Conf,
		Logger:     p.Logger,
		Validate:   p.Validate,
		Translator: p.Translator,
		Metrics:    p.Metrics,
		Resolver:   p.Resolver,
		UserSvc:    p.UserSvc,
		TenantSvc:  p.TenantSvc,
		AccessSvc:  p.AccessSvc,
		PolicySvc:  p.PolicySvc,
		HandoffSvc: p.HandoffSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStorage))
	must(c.Provide(newCaches))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(metricsvc.NewDefaultMetrics))
	must(c.Provide(newResolver))
	must(c.Provide(user.NewService))
	must(c.Provide(tenant.NewService))
	must(c.Provide(access.NewService))
	must(c.Provide(policy.NewService))
	must(c.Provide(newHandoffService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
