package echoapi

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/tenant"
)

// site routes, as produced by the path rewrite
var siteRoutes = []struct {
	prefix string
	kind   tenant.Kind
}{
	{"/tenant/:slug", tenant.KindTenant},
	{"/apply/:slug", tenant.KindApply},
	{"/admin", tenant.KindAdmin},
	{"/auth", tenant.KindAuth},
	{"/app", tenant.KindApp},
}

// registerSiteRoutes serves the rewritten site paths: proxied to the frontend upstream(s)
// when configured, answered with a JSON bootstrap otherwise.
func registerSiteRoutes(e *echo.Echo, tn *tenancy, deps Deps) {
	api := siteApi{conf: deps.Conf, tenancy: tn}

	var proxy echo.MiddlewareFunc
	if upstreams := core.SplitList(deps.Conf.Tenancy.FrontendUpstream); len(upstreams) > 0 {
		targets := make([]*middleware.ProxyTarget, 0, len(upstreams))
		for _, upstream := range upstreams {
			u, err := url.Parse(upstream)
			if err != nil || u.Host == "" {
				deps.Logger.Fatal("invalid frontend upstream: "+upstream, err)
				continue
			}
			targets = append(targets, &middleware.ProxyTarget{Name: u.Host, URL: u})
		}
		proxy = middleware.ProxyWithConfig(middleware.ProxyConfig{
			Balancer: middleware.NewRoundRobinBalancer(targets),
		})
	}

	for _, route := range siteRoutes {
		handler := api.bootstrap(route.kind)
		if proxy != nil {
			handler = proxy(echo.NotFoundHandler)
		}
		e.Any(route.prefix, handler)
		e.Any(route.prefix+"/*", handler)
	}
}

type siteApi struct {
	conf    *core.Config
	tenancy *tenancy
}

func (api *siteApi) bootstrap(kind tenant.Kind) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		resp := SiteResponse{
			Kind: kind,
			Path: "/" + strings.TrimPrefix(ctx.Param("*"), "/"),
		}

		if kind == tenant.KindTenant || kind == tenant.KindApply {
			slug := core.CleanString(ctx.Param("slug"), true /* lower */)
			t, err := api.tenancy.svc.GetBySlug(ctx.Request().Context(), slug)
			if err != nil {
				if errors.Cause(err) == tenant.ErrNotFound {
					return errTenantNotFound
				}
				return errors.Wrap(err, "finding tenant by slug")
			}
			if t.Status == tenant.StatusDeleted {
				return errTenantNotFound
			}
			pt := t.Public(api.tenancy.resolver, api.conf.Tenancy.Scheme)
			resp.Slug = &t.Slug
			resp.Tenant = &pt
		}
		return ctx.JSON(http.StatusOK, resp)
	}
}

type SiteResponse struct {
	Kind   tenant.Kind          `json:"kind"`
	Slug   *string              `json:"slug"`
	Path   string               `json:"path"`
	Tenant *tenant.PublicTenant `json:"tenant,omitempty"`
}
