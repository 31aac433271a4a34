package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/tenant"
	metricsvc "github.com/edapp/edapp/services/metrics"
)

const (
	contextResolutionKey = "resolution"
	contextTenantKey     = "tenant"
)

// tenancy resolves the tenant of each request and keeps tenants apart.
type tenancy struct {
	resolver *tenant.Resolver
	svc      *tenant.Service
	header   string
	metrics  *metricsvc.Metrics
}

// hostMiddleware resolves the request host and rewrites site paths to their internal route.
// Registered with echo#Pre so the router sees the rewritten path.
func (tn *tenancy) hostMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			req := ctx.Request()
			res := tn.resolver.Resolve(req.Host)
			ctx.Set(contextResolutionKey, res)
			tn.metrics.HostResolutions.WithLabelValues(string(res.Kind)).Inc()

			if path := tn.resolver.RewritePath(res, req.URL.Path); path != req.URL.Path {
				req.URL.Path = path
				req.URL.RawPath = ""
			}
			return next(ctx)
		}
	}
}

func getContextResolution(ctx echo.Context) tenant.Resolution {
	if res, ok := ctx.Get(contextResolutionKey).(tenant.Resolution); ok {
		return res
	}
	return tenant.Resolution{Kind: tenant.KindUnknown}
}

// requestSlug returns the tenant slug of the request: from the host, then from the tenant header.
func (tn *tenancy) requestSlug(ctx echo.Context) string {
	if res := getContextResolution(ctx); res.HasTenant() {
		return res.Slug
	}
	if tn.header == "" {
		return ""
	}
	if slug := core.CleanString(ctx.Request().Header.Get(tn.header), true /* lower */); tenant.ValidSlug(slug) {
		return slug
	}
	return ""
}

// load fetches the tenant `slug` and stores it in the context.
// Inactive tenants are only served when allowInactive is set.
func (tn *tenancy) load(ctx echo.Context, slug string, allowInactive bool) (tenant.Tenant, error) {
	t, err := tn.svc.GetBySlug(ctx.Request().Context(), slug)
	if err != nil {
		if errors.Cause(err) == tenant.ErrNotFound {
			tn.reject("not_found")
			return tenant.Tenant{}, errTenantNotFound
		}
		return tenant.Tenant{}, errors.Wrap(err, "finding tenant by slug")
	}
	if !t.IsActive() && !allowInactive {
		tn.reject("unavailable")
		return tenant.Tenant{}, errTenantUnavailable
	}
	ctx.Set(contextTenantKey, t)
	return t, nil
}

func (tn *tenancy) reject(reason string) {
	tn.metrics.GuardRejections.WithLabelValues(reason).Inc()
}

// guardMiddleware keeps authenticated users inside their own tenant. Must run after the JWT middleware.
// Requests without a tenant pass through: handlers needing one answer errTenantRequired.
func (tn *tenancy) guardMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}

			slug := tn.requestSlug(ctx)
			if slug == "" {
				return next(ctx)
			}

			if claims.IsPlatformAdmin {
				if _, err = tn.load(ctx, slug, true); err != nil {
					return err
				}
				return next(ctx)
			}

			if !claims.BelongsTo(slug) {
				tn.reject("mismatch")
				return errTenantMismatch
			}
			t, err := tn.load(ctx, slug, false)
			if err != nil {
				return err
			}
			if t.ID != claims.TenantID {
				tn.reject("mismatch")
				return errTenantMismatch
			}
			return next(ctx)
		}
	}
}

// publicMiddleware loads the request tenant for unauthenticated routes.
// With required set, requests without a tenant are rejected.
func (tn *tenancy) publicMiddleware(required bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			slug := tn.requestSlug(ctx)
			if slug == "" {
				if required {
					return errTenantRequired
				}
				return next(ctx)
			}
			if _, err := tn.load(ctx, slug, false); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// getContextTenant returns the tenant loaded by the tenancy middlewares.
func getContextTenant(ctx echo.Context) (tenant.Tenant, error) {
	if t, ok := ctx.Get(contextTenantKey).(tenant.Tenant); ok {
		return t, nil
	}
	return tenant.Tenant{}, errTenantRequired
}
