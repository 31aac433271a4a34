package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/tenant"
)

var (
	errObjectNotFoundInCtx = errors.New("object not found in echo.Context")
	tenantOrderingFields   = []string{"name", "slug", "status", "created_at"}
)

type tenantApi struct {
	conf     *core.Config
	tenancy  *tenancy
	svc      *tenant.Service
	validate *validator.Validate
}

func registerTenantAPI(g *echo.Group, authed, limit echo.MiddlewareFunc, tn *tenancy, deps Deps) {
	api := tenantApi{
		conf:     deps.Conf,
		tenancy:  tn,
		svc:      deps.TenantSvc,
		validate: deps.Validate,
	}

	tg := g.Group("/tenants")

	// un-authed endpoints
	tg.GET("/lookup-by-slug", api.lookupBySlug)
	tg.GET("/resolve", api.resolve)
	tg.POST("/discover", api.discover, limit)

	// tenant members
	mg := tg.Group("/current", authed, tenantRequiredMiddleware)
	mg.GET("", api.retrieveCurrent)
	mg.PUT("", api.updateCurrent, capabilityMiddleware(deps.AccessSvc, access.CapTenantManage))

	// platform admins
	ag := tg.Group("", authed, platformAdminMiddleware)
	ag.GET("", api.query)
	ag.POST("", api.create)

	dg := ag.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.PUT("/status", api.updateStatus)
}

func (api *tenantApi) public(t tenant.Tenant) tenant.PublicTenant {
	return t.Public(api.tenancy.resolver, api.conf.Tenancy.Scheme)
}

// Handlers

func (api *tenantApi) lookupBySlug(ctx echo.Context) error {
	slug := core.CleanString(ctx.QueryParam("slug"), true /* lower */)
	if !tenant.ValidSlug(slug) {
		return errInvalidSlug
	}

	t, err := api.svc.GetBySlug(ctx.Request().Context(), slug)
	if err != nil {
		if errors.Cause(err) == tenant.ErrNotFound {
			return errTenantNotFound
		}
		return errors.Wrap(err, "finding tenant by slug")
	}
	if t.Status == tenant.StatusDeleted {
		return errTenantNotFound
	}
	return ctx.JSON(http.StatusOK, api.public(t))
}

func (api *tenantApi) resolve(ctx echo.Context) error {
	res := getContextResolution(ctx)
	resp := ResolveResponse{Host: res.Host, Kind: res.Kind}

	if slug := api.tenancy.requestSlug(ctx); slug != "" {
		resp.Slug = &slug
		t, err := api.svc.GetBySlug(ctx.Request().Context(), slug)
		switch {
		case err == nil && t.Status != tenant.StatusDeleted:
			pt := api.public(t)
			resp.Tenant = &pt
		case err != nil && errors.Cause(err) != tenant.ErrNotFound:
			return errors.Wrap(err, "finding tenant by slug")
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *tenantApi) discover(ctx echo.Context) error {
	var data DiscoverRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to DiscoverRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	tenants, err := api.svc.Discover(ctx.Request().Context(), data.Email)
	if err != nil {
		return errors.Wrap(err, "discovering tenants")
	}
	resp := make([]tenant.PublicTenant, 0, len(tenants))
	for _, t := range tenants {
		resp = append(resp, api.public(t))
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *tenantApi) retrieveCurrent(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) updateCurrent(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}
	return api.doUpdate(ctx, t)
}

func (api *tenantApi) query(ctx echo.Context) error {
	filter := new(tenant.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []tenant.Tenant{})
	}
	filter.Clean()

	tenants, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx, tenantOrderingFields...))
	if err != nil {
		return errors.Wrap(err, "querying tenants")
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	return ctx.JSON(http.StatusOK, tenants)
}

func (api *tenantApi) create(ctx echo.Context) error {
	var data tenant.NewTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTenant")
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	t, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating tenant")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *tenantApi) retrieve(ctx echo.Context) error {
	t, ok := ctx.Get("object").(tenant.Tenant)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) update(ctx echo.Context) error {
	t, ok := ctx.Get("object").(tenant.Tenant)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}
	return api.doUpdate(ctx, t)
}

func (api *tenantApi) doUpdate(ctx echo.Context, t tenant.Tenant) error {
	var data tenant.UpdateTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTenant")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.Update(ctx.Request().Context(), t, data)
	if err != nil {
		return errors.Wrap(err, "updating tenant")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) updateStatus(ctx echo.Context) error {
	t, ok := ctx.Get("object").(tenant.Tenant)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}

	var data tenant.UpdateStatus
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateStatus")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.SetStatus(ctx.Request().Context(), t, data.Status)
	if err != nil {
		return errors.Wrap(err, "updating tenant status")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) destroy(ctx echo.Context) error {
	t, ok := ctx.Get("object").(tenant.Tenant)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}
	if _, err := api.svc.Delete(ctx.Request().Context(), t); err != nil {
		return errors.Wrap(err, "deleting tenant")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *tenantApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		t, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			if errors.Cause(err) == tenant.ErrNotFound {
				return errTenantNotFound
			}
			return errors.Wrap(err, "finding tenant by ID")
		}
		ctx.Set("object", t)
		return next(ctx)
	}
}

type (
	ResolveResponse struct {
		Host   string               `json:"host"`
		Kind   tenant.Kind          `json:"kind"`
		Slug   *string              `json:"slug"`
		Tenant *tenant.PublicTenant `json:"tenant,omitempty"`
	}

	DiscoverRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
)

func (dr *DiscoverRequest) Validate(validate *validator.Validate) error {
	dr.Email = core.CleanString(dr.Email, true /* lower */)
	return validate.Struct(dr)
}
