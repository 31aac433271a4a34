package echoapi

import (
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core/access"
)

type roleApi struct {
	svc      *access.Service
	validate *validator.Validate
}

func registerRoleAPI(g *echo.Group, authed echo.MiddlewareFunc, deps Deps) {
	api := roleApi{
		svc:      deps.AccessSvc,
		validate: deps.Validate,
	}

	rg := g.Group("/roles", authed, tenantRequiredMiddleware)
	rg.GET("", api.query)

	cg := rg.Group("/:role/capabilities", capabilityMiddleware(api.svc, access.CapRolesManage))
	cg.PUT("", api.setCapabilities)
	cg.DELETE("", api.resetCapabilities)
}

func roleParam(ctx echo.Context) string {
	role := ctx.Param("role")
	if unescaped, err := url.PathUnescape(role); err == nil {
		return unescaped
	}
	return role
}

// Handlers

func (api *roleApi) query(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}
	grants, err := api.svc.Grants(ctx.Request().Context(), t.ID)
	if err != nil {
		return errors.Wrap(err, "querying grants")
	}
	return ctx.JSON(http.StatusOK, grants)
}

func (api *roleApi) setCapabilities(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	var data access.SetCapabilities
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetCapabilities")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.SetRoleCapabilities(ctx.Request().Context(), t.ID, roleParam(ctx), data.Capabilities); err != nil {
		return errors.Wrap(err, "setting role capabilities")
	}
	return api.query(ctx)
}

func (api *roleApi) resetCapabilities(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.ResetRoleCapabilities(ctx.Request().Context(), t.ID, roleParam(ctx)); err != nil {
		return errors.Wrap(err, "resetting role capabilities")
	}
	return ctx.NoContent(http.StatusNoContent)
}
