package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core/access"
)

// capabilityMiddleware only lets through the users whose roles grant any of `caps`
// within the context tenant. Platform admins always pass.
func capabilityMiddleware(svc *access.Service, caps ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsPlatformAdmin {
				return next(ctx)
			}

			t, err := getContextTenant(ctx)
			if err != nil {
				return err
			}
			ok, err := svc.HasAny(ctx.Request().Context(), t.ID, claims.Roles, caps...)
			if err != nil {
				return errors.Wrap(err, "checking capabilities")
			}
			if !ok {
				return errHttpForbidden
			}
			return next(ctx)
		}
	}
}

func platformAdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}
		if !claims.IsPlatformAdmin {
			return errHttpForbidden
		}
		return next(ctx)
	}
}

// tenantRequiredMiddleware rejects requests that resolved no tenant.
func tenantRequiredMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := getContextTenant(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}

// chain composes middlewares; the first one runs first.
func chain(mws ...echo.MiddlewareFunc) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
