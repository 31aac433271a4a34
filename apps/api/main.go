package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/dig"

	dig_container "github.com/edapp/edapp/apps/api/di/dig"
	echoapi "github.com/edapp/edapp/apps/api/echo"
	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/user"
	logsvc "github.com/edapp/edapp/services/logger"
	metricsvc "github.com/edapp/edapp/services/metrics"
)

type appParams struct {
	dig.In
	Conf     *core.Config
	Logger   core.Logger
	DBLogger core.Logger `name:"dbLogger"`
	SQL      *sqlx.DB
	Redis    *redis.Client
	Metrics  *metricsvc.Metrics
	Server   *echoapi.Server
}

func main() {
	c := dig_container.New()
	if err := c.Invoke(run); err != nil {
		panic(err)
	}
}

func run(p appParams) {
	conf, logger := p.Conf, p.Logger

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	if l, ok := logger.(*logsvc.RollbarLogger); ok {
		defer l.Sync()
	}
	defer logger.Info("Application stopped")

	core.ParseEmailTemplates(logger, conf.Debug || conf.TestMode)
	user.LoadCommonPasswords(logger)

	if p.SQL != nil {
		defer func() {
			if err := p.SQL.Close(); err != nil {
				p.DBLogger.Error("failed to close database", err)
			}
		}()
	}
	if p.Redis != nil {
		defer func() {
			if err := p.Redis.Close(); err != nil {
				logger.Error("failed to close redis client", err)
			}
		}()
	}

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.
	// /metrics - Prometheus scrape endpoint.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	http.Handle("/metrics", p.Metrics.Handler())

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := p.Server
	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shut down and shed load
		if err := server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}
