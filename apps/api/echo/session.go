package echoapi

import (
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/handoff"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
	metricsvc "github.com/edapp/edapp/services/metrics"
)

const passwordResetSuccess = "If the email address supplied is associated with an active account on this system, " +
	"an email will arrive in your inbox shortly with instructions to reset your password."

type authApi struct {
	conf       *core.Config
	logger     core.Logger
	tenancy    *tenancy
	usrSvc     *user.Service
	tenantSvc  *tenant.Service
	accessSvc  *access.Service
	handoffSvc *handoff.Service
	validate   *validator.Validate
	metrics    *metricsvc.Metrics
}

func registerAuthAPI(g *echo.Group, authed, limit echo.MiddlewareFunc, tn *tenancy, deps Deps) {
	api := authApi{
		conf:       deps.Conf,
		logger:     deps.Logger,
		tenancy:    tn,
		usrSvc:     deps.UserSvc,
		tenantSvc:  deps.TenantSvc,
		accessSvc:  deps.AccessSvc,
		handoffSvc: deps.HandoffSvc,
		validate:   deps.Validate,
		metrics:    deps.Metrics,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	ag.POST("/login", api.login, limit)
	ag.POST("/password-reset", api.resetPassword, limit)
	ag.POST("/password-reset-confirm", api.confirmPasswordReset, limit)
	ag.POST("/handoff/exchange", api.exchangeHandoff, limit)

	// authed endpoints
	ag.POST("/token-refresh", api.refreshToken, authed)
	ag.GET("/me", api.me, authed)
	ag.POST("/handoff", api.issueHandoff, authed)
}

// requestTenant returns the tenant named by the host, the tenant header or `bodySlug`, in that order.
// ok is false when the request names no tenant.
func (api *authApi) requestTenant(ctx echo.Context, bodySlug string) (t tenant.Tenant, ok bool, err error) {
	slug := api.tenancy.requestSlug(ctx)
	if slug == "" {
		slug = core.CleanString(bodySlug, true /* lower */)
		if slug != "" && !tenant.ValidSlug(slug) {
			return tenant.Tenant{}, false, errTenantNotFound
		}
	}
	if slug == "" {
		return tenant.Tenant{}, false, nil
	}
	t, err = api.tenancy.load(ctx, slug, false)
	return t, err == nil, err
}

// Handlers

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, _, err := api.requestTenant(ctx, data.Tenant)
	if err != nil {
		api.metrics.LoginsTotal.WithLabelValues("rejected").Inc()
		return err
	}

	usr, err := authenticate(ctx.Request().Context(), t.ID, data.Username, data.Password, api.usrSvc)
	if err != nil {
		api.metrics.LoginsTotal.WithLabelValues("failed").Inc()
		return errors.Wrap(err, "authenticating")
	}

	token, err := GenerateToken(api.conf, NewUserClaims(api.conf, usr, t.ID, t.Slug))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	api.metrics.LoginsTotal.WithLabelValues("ok").Inc()
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.conf, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *authApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	usr, err := getContextUser(ctx, api.usrSvc, claims)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	resp := MeResponse{User: usr}
	tenantID := usr.TenantID
	if t, err := getContextTenant(ctx); err == nil {
		pt := t.Public(api.tenancy.resolver, api.conf.Tenancy.Scheme)
		resp.Tenant = &pt
		tenantID = t.ID
	}
	resp.Capabilities, err = api.accessSvc.CapabilitiesFor(ctx.Request().Context(), tenantID, usr.Roles)
	if err != nil {
		return errors.Wrap(err, "getting capabilities")
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *authApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, ok, err := api.requestTenant(ctx, data.Tenant)
	if err != nil {
		return err
	}

	// links point at the portal of the user's tenant; platform users reset on the admin site
	site := api.tenancy.resolver.SiteURL(api.conf.Tenancy.Scheme, tenant.KindAdmin, "")
	tenantName := api.conf.AppName
	if ok {
		site = api.tenancy.resolver.SiteURL(api.conf.Tenancy.Scheme, tenant.KindTenant, t.Slug)
		tenantName = t.Name
	}
	link := func(_ user.User, uid, token string) string {
		q := url.Values{"uid": {uid}, "token": {token}}
		return site + "/password-reset-confirm?" + q.Encode()
	}

	err = api.usrSvc.RequestPasswordReset(ctx.Request().Context(), t.ID, tenantName, data.Email, link)
	if !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: passwordResetSuccess})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.usrSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *authApi) issueHandoff(ctx echo.Context) error {
	var data HandoffRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to HandoffRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if !claims.IsPlatformAdmin && !claims.BelongsTo(data.Tenant) {
		api.metrics.HandoffsTotal.WithLabelValues("issue", "mismatch").Inc()
		api.tenancy.reject("mismatch")
		return errTenantMismatch
	}

	usr, err := getContextUser(ctx, api.usrSvc, claims)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}

	t, err := api.tenancy.load(ctx, data.Tenant, claims.IsPlatformAdmin)
	if err != nil {
		return err
	}

	code, err := api.handoffSvc.Issue(ctx.Request().Context(), handoff.Grant{
		UserID:       usr.ID,
		TenantID:     t.ID,
		TenantSlug:   t.Slug,
		OrigIssuedAt: claims.OrigIssuedAt,
	})
	if err != nil {
		return errors.Wrap(err, "issuing handoff code")
	}
	api.metrics.HandoffsTotal.WithLabelValues("issue", "ok").Inc()

	portal := api.tenancy.resolver.SiteURL(api.conf.Tenancy.Scheme, tenant.KindTenant, t.Slug)
	return ctx.JSON(http.StatusOK, HandoffResponse{
		Code:        code,
		RedirectURL: portal + "/handoff?" + url.Values{"code": {code}}.Encode(),
	})
}

func (api *authApi) exchangeHandoff(ctx echo.Context) error {
	var data HandoffExchangeRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to HandoffExchangeRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	// the code only opens the host of the tenant it was issued for
	slug := api.tenancy.requestSlug(ctx)
	if slug == "" {
		return errTenantRequired
	}

	reqCtx := ctx.Request().Context()
	grant, err := api.handoffSvc.Redeem(reqCtx, data.Code, slug)
	if err != nil {
		switch errors.Cause(err) {
		case handoff.ErrInvalidCode:
			api.metrics.HandoffsTotal.WithLabelValues("exchange", "invalid").Inc()
			return errInvalidHandoff
		case handoff.ErrTenantMismatch:
			api.metrics.HandoffsTotal.WithLabelValues("exchange", "mismatch").Inc()
			api.tenancy.reject("mismatch")
			return errTenantMismatch
		}
		return errors.Wrap(err, "redeeming handoff code")
	}

	usr, err := api.usrSvc.GetByID(reqCtx, grant.UserID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errInvalidHandoff
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if !usr.IsActive {
		return errAccountDeactivated
	}

	t, err := api.tenancy.load(ctx, grant.TenantSlug, usr.IsPlatformAdmin())
	if err != nil {
		return err
	}
	if t.ID != grant.TenantID || (!usr.IsPlatformAdmin() && usr.TenantID != t.ID) {
		return errTenantMismatch
	}

	token, err := GenerateToken(api.conf, NewUserClaims(api.conf, usr, t.ID, t.Slug, grant.OrigIssuedAt))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	api.metrics.HandoffsTotal.WithLabelValues("exchange", "ok").Inc()
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
		Tenant   string `json:"tenant"` // slug; on hosts without a tenant
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	MeResponse struct {
		User         user.User            `json:"user"`
		Tenant       *tenant.PublicTenant `json:"tenant"`
		Capabilities []string             `json:"capabilities"`
	}

	PasswordResetRequest struct {
		Email  string `json:"email" validate:"required,email"`
		Tenant string `json:"tenant"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	HandoffRequest struct {
		Tenant string `json:"tenant" validate:"required,slug"`
	}

	HandoffResponse struct {
		Code        string `json:"code"`
		RedirectURL string `json:"redirect_url"`
	}

	HandoffExchangeRequest struct {
		Code string `json:"code" validate:"required"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (hr *HandoffRequest) Validate(validate *validator.Validate) error {
	hr.Tenant = core.CleanString(hr.Tenant, true /* lower */)
	return validate.Struct(hr)
}

func (hr *HandoffExchangeRequest) Validate(validate *validator.Validate) error {
	hr.Code = core.CleanString(hr.Code)
	return validate.Struct(hr)
}
