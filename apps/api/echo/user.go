package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/access"
	"github.com/edapp/edapp/core/user"
)

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	errNoPermsToSetRoles = "not enough rights to set these roles"
	userOrderingFields   = []string{"name", "username", "email", "created_at", "last_login"}
)

type userApi struct {
	svc       *user.Service
	accessSvc *access.Service
	validate  *validator.Validate
}

func registerUserAPI(g *echo.Group, authed echo.MiddlewareFunc, deps Deps) {
	api := userApi{
		svc:       deps.UserSvc,
		accessSvc: deps.AccessSvc,
		validate:  deps.Validate,
	}
	canView := capabilityMiddleware(api.accessSvc, access.CapUsersView, access.CapUsersManage)
	canManage := capabilityMiddleware(api.accessSvc, access.CapUsersManage)

	ug := g.Group("/users", authed, tenantRequiredMiddleware)
	ug.POST("", api.create, canManage)
	ug.GET("", api.query, canView)
	ug.DELETE("", api.destroyMultiple, canManage)
	ug.GET("/roles", api.queryRoles)

	// detail endpoints
	dg := ug.Group("/:id", api.selfOrManagerMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, canManage)
}

// canManage reports whether the context user holds users:manage within the context tenant.
func (api *userApi) canManage(ctx echo.Context, claims Claims) (bool, error) {
	if claims.IsPlatformAdmin {
		return true, nil
	}
	t, err := getContextTenant(ctx)
	if err != nil {
		return false, err
	}
	return api.accessSvc.HasAny(ctx.Request().Context(), t.ID, claims.Roles, access.CapUsersManage)
}

// checkRoles prevents users from granting roles above their own.
func checkRoles(ctxUsr user.User, roles []string) error {
	if ctxUsr.IsPlatformAdmin() {
		return nil
	}
	if user.MaxRolePriority(roles) > user.MaxRolePriority(ctxUsr.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}
	return nil
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(ctx.Request().Context(), t.ID, api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := checkRoles(ctxUsr, data.Roles); err != nil {
		return err
	}

	usr, err := api.svc.Create(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.User{})
	}
	filter.Clean()
	filter.TenantID = t.ID

	users, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx, userOrderingFields...))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	isManager, err := api.canManage(ctx, claims)
	if err != nil {
		return errors.Wrap(err, "checking capabilities")
	}
	if !isManager {
		// `IsActive`, `Roles` & `BranchID` can only be changed by managers
		// `Username` and `Email` can only be changed by managers for now
		if data.IsActive != nil || data.Roles != nil || data.BranchID != nil || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}

	if err := data.Validate(ctx.Request().Context(), usr, api.validate, api.svc); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own max role
	ctxUsr, err := getContextUser(ctx, api.svc, claims)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err := checkRoles(ctxUsr, data.Roles); err != nil {
		return err
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if usr.ID == claims.Subject {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.TenantID, usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return err
	}

	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	if core.StringInSlice(claims.Subject, query.IDs) {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), t.ID, query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

// selfOrManagerMiddleware loads the requested user of the context tenant into "object".
// Users may only reach themselves unless they can manage users.
func (api *userApi) selfOrManagerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		t, err := getContextTenant(ctx)
		if err != nil {
			return err
		}
		claims, err := getContextClaims(ctx)
		if err != nil {
			return errors.Wrap(err, "getting context claims")
		}

		id := ctx.Param("id")
		allowed := id == claims.Subject
		if !allowed {
			if allowed, err = api.canManage(ctx, claims); err != nil {
				return errors.Wrap(err, "checking capabilities")
			}
		}

		if allowed {
			usr, err := api.svc.GetByID(ctx.Request().Context(), id)
			if err == nil && usr.TenantID == t.ID {
				ctx.Set("object", usr)
				return next(ctx)
			}
			if err != nil && errors.Cause(err) != user.ErrNotFound {
				return errors.Wrap(err, "finding user by ID")
			}
		}
		return errHttpNotFound
	}
}

type DestroyMultipleRequest struct {
	IDs []string `query:"id"`
}
