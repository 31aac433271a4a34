package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/tenant"
)

type branchApi struct {
	svc      *tenant.Service
	validate *validator.Validate
}

func registerBranchAPI(g *echo.Group, authed echo.MiddlewareFunc, deps Deps) {
	api := branchApi{
		svc:      deps.TenantSvc,
		validate: deps.Validate,
	}
	canManage := capabilityMiddleware(deps.AccessSvc, access.CapBranchesManage)

	bg := g.Group("/branches", authed, tenantRequiredMiddleware)
	bg.GET("", api.query)
	bg.POST("", api.create, canManage)

	dg := bg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, canManage)
	dg.DELETE("", api.destroy, canManage)
}

// Handlers

func (api *branchApi) query(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}
	branches, err := api.svc.QueryBranches(ctx.Request().Context(), t.ID)
	if err != nil {
		return errors.Wrap(err, "querying branches")
	}
	if branches == nil {
		branches = []tenant.Branch{}
	}
	return ctx.JSON(http.StatusOK, branches)
}

func (api *branchApi) create(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	var data tenant.NewBranch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewBranch")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.CreateBranch(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating branch")
	}
	return ctx.JSON(http.StatusCreated, b)
}

func (api *branchApi) retrieve(ctx echo.Context) error {
	b, ok := ctx.Get("object").(tenant.Branch)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *branchApi) update(ctx echo.Context) error {
	b, ok := ctx.Get("object").(tenant.Branch)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}

	var data tenant.UpdateBranch
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateBranch")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	b, err := api.svc.UpdateBranch(ctx.Request().Context(), b, data)
	if err != nil {
		return errors.Wrap(err, "updating branch")
	}
	return ctx.JSON(http.StatusOK, b)
}

func (api *branchApi) destroy(ctx echo.Context) error {
	b, ok := ctx.Get("object").(tenant.Branch)
	if !ok {
		return errors.Wrap(errObjectNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.DeleteBranch(ctx.Request().Context(), b); err != nil {
		return errors.Wrap(err, "deleting branch")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *branchApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		t, err := getContextTenant(ctx)
		if err != nil {
			return err
		}
		b, err := api.svc.GetBranch(ctx.Request().Context(), t.ID, ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding branch by ID")
		}
		ctx.Set("object", b)
		return next(ctx)
	}
}
