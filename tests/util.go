// Package testutil holds the helpers shared by the test suites.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jmoiron/sqlx"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
	"github.com/edapp/edapp/storage/database"
)

// NewConfig returns a TEST configuration backed by in-memory storage.
func NewConfig() *core.Config {
	conf := core.NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = false
	conf.Server.DisableReqLogs = true
	conf.Database.Disabled = true
	conf.Redis.Addr = ""
	conf.RollbarToken = ""
	conf.SendgridApiKey = ""
	return conf
}

type testLogger struct {
	t testing.TB
}

// NewLogger logs through t.
func NewLogger(t testing.TB) core.Logger {
	return testLogger{t: t}
}

func (l testLogger) log(level, msg string, args []interface{}) {
	l.t.Helper()
	if len(args) > 0 {
		l.t.Logf("%s: %s %+v", level, msg, args)
		return
	}
	l.t.Logf("%s: %s", level, msg)
}

func (l testLogger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l testLogger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l testLogger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l testLogger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l testLogger) Fatal(msg string, args ...interface{}) {
	l.t.Helper()
	l.t.Fatalf("FATAL: %s %+v", msg, args)
}

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) (string, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-based test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("starting %s: %v", req.Image, err)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		t.Fatalf("getting %s host: %v", req.Image, err)
	}
	mapped, err := ctr.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("getting %s port: %v", req.Image, err)
	}
	return host, mapped.Port()
}

// StartRedis runs a Redis container for the test and returns its address.
func StartRedis(t *testing.T) string {
	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379/tcp")
	return fmt.Sprintf("%s:%s", host, port)
}

// PrepareDB runs a migrated PostgreSQL container for the test and points conf at it.
func PrepareDB(t *testing.T, conf *core.Config) *sqlx.DB {
	conf.Database.Disabled = false
	conf.Database.DisableTLS = true
	conf.Database.Name = "edapp_test"
	conf.Database.User = "edapp"
	conf.Database.Password = "edapp"
	conf.Database.AdminUser = ""

	host, port := startContainer(t, testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       conf.Database.Name,
			"POSTGRES_USER":     conf.Database.User,
			"POSTGRES_PASSWORD": conf.Database.Password,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeoutDefault(60 * time.Second),
	}, "5432/tcp")
	conf.Database.Host = host
	conf.Database.Port = port

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	db, err := database.Open(ctx, conf)
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("migrating database: %v", err)
	}
	return db
}

// CreateUser inserts a user straight through the repository.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	tenantID, name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		TenantID:  tenantID,
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// CreateTenant creates an active tenant (and its main branch).
func CreateTenant(t *testing.T, svc *tenant.Service, slug, name string) tenant.Tenant {
	t.Helper()
	tnt, err := svc.Create(context.Background(), tenant.NewTenant{Slug: slug, Name: name})
	if err != nil {
		t.Fatalf("createTenant() failed: %v", err)
	}
	return tnt
}
