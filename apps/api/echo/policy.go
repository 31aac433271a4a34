package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/policy"
)

type policyApi struct {
	svc      *policy.Service
	validate *validator.Validate
}

func registerPolicyAPI(g *echo.Group, authed echo.MiddlewareFunc, tn *tenancy, deps Deps) {
	api := policyApi{
		svc:      deps.PolicySvc,
		validate: deps.Validate,
	}
	canManage := chain(authed, tenantRequiredMiddleware, capabilityMiddleware(deps.AccessSvc, access.CapPoliciesManage))

	pg := g.Group("/policies")

	// un-authed endpoints
	public := tn.publicMiddleware(true)
	pg.GET("", api.queryPublished, public)
	pg.GET("/:kind", api.retrievePublished, public)

	// managers
	pg.POST("", api.create, canManage)
	vg := pg.Group("/versions", canManage)
	vg.GET("", api.queryVersions)

	dg := vg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
	dg.POST("/publish", api.publish)
}

// Handlers

func (api *policyApi) queryPublished(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}
	policies, err := api.svc.QueryPublished(ctx.Request().Context(), t.ID)
	if err != nil {
		return errors.Wrap(err, "querying published policies")
	}
	return ctx.JSON(http.StatusOK, policies)
}

func (api *policyApi) retrievePublished(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}
	kind := core.CleanString(ctx.Param("kind"), true /* lower */)
	if !core.StringInSlice(kind, policy.Kinds) {
		return errors.Wrap(policy.ErrNotFound, "checking policy kind")
	}

	p, err := api.svc.GetPublished(ctx.Request().Context(), t.ID, kind)
	if err != nil {
		return errors.Wrap(err, "getting published policy")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *policyApi) queryVersions(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	var filter policy.QueryFilter
	if err := ctx.Bind(&filter); err != nil {
		return ctx.JSON(http.StatusOK, []policy.Policy{})
	}
	filter.TenantID = t.ID
	filter.Kind = core.CleanString(filter.Kind, true /* lower */)

	policies, err := api.svc.QueryVersions(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying policies")
	}
	if policies == nil {
		policies = []policy.Policy{}
	}
	return ctx.JSON(http.StatusOK, policies)
}

func (api *policyApi) create(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	var data policy.NewPolicy
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPolicy")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Create(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating policy")
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *policyApi) retrieve(ctx echo.Context) error {
	p, ok := ctx.Get("object").(policy.Policy)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *policyApi) update(ctx echo.Context) error {
	p, ok := ctx.Get("object").(policy.Policy)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}

	var data policy.UpdatePolicy
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePolicy")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	p, err := api.svc.Update(ctx.Request().Context(), p, data)
	if err != nil {
		return errors.Wrap(err, "updating policy")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *policyApi) publish(ctx echo.Context) error {
	p, ok := ctx.Get("object").(policy.Policy)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}
	p, err := api.svc.Publish(ctx.Request().Context(), p)
	if err != nil {
		return errors.Wrap(err, "publishing policy")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *policyApi) destroy(ctx echo.Context) error {
	p, ok := ctx.Get("object").(policy.Policy)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), p); err != nil {
		return errors.Wrap(err, "deleting policy")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *policyApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		t, err := getContextTenant(ctx)
		if err != nil {
			return err
		}
		p, err := api.svc.Get(ctx.Request().Context(), t.ID, ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding policy by ID")
		}
		ctx.Set("object", p)
		return next(ctx)
	}
}
