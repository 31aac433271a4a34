package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/handoff"
	"github.com/edapp/edapp/core/policy"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
	metricsvc "github.com/edapp/edapp/services/metrics"
)

type (
	// Deps holds everything the API server needs.
	Deps struct {
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

	Server struct {
		deps     Deps
		app      *echo.Echo
		tenancy  *tenancy
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ http.Handler = (*Server)(nil)

func NewServer(deps Deps) *Server {
	if deps.Metrics == nil {
		deps.Metrics = metricsvc.NewDefaultMetrics()
	}
	s := &Server{
		deps: deps,
		app:  echo.New(),
		tenancy: &tenancy{
			resolver: deps.Resolver,
			svc:      deps.TenantSvc,
			header:   deps.Conf.Tenancy.TenantHeader,
			metrics:  deps.Metrics,
		},
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Pre(s.tenancy.hostMiddleware())

	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.AllowedOrigins,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization,
			conf.Tenancy.TenantHeader,
		},
		AllowCredentials: true,
	}))
	s.app.Use(metricsMiddleware(s.deps.Metrics))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)
	s.app.GET("/health", s.health)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(NewJWTConfig(conf))
	authed := chain(jwt, s.tenancy.guardMiddleware())
	limiter := newIPRateLimiter(conf.Server.AuthRateLimit, conf.Server.AuthRateBurst, s.deps.Metrics)

	registerAuthAPI(v1, authed, limiter.middleware, s.tenancy, s.deps)
	registerTenantAPI(v1, authed, limiter.middleware, s.tenancy, s.deps)
	registerBranchAPI(v1, authed, s.deps)
	registerUserAPI(v1, authed, s.deps)
	registerRoleAPI(v1, authed, s.deps)
	registerPolicyAPI(v1, authed, s.tenancy, s.deps)

	registerSiteRoutes(s.app, s.tenancy, s.deps)
}

// Start listens until the server is shut down; failures are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the process to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to EdApp API!")
}

func (s *Server) health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok", "build": s.deps.Conf.Build})
}
