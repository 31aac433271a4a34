package echoapi

import (
	"net/http"
	"reflect"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/edapp/edapp/core"
	"github.com/edapp/edapp/core/handoff"
	"github.com/edapp/edapp/core/policy"
	"github.com/edapp/edapp/core/tenant"
	"github.com/edapp/edapp/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyRequests      = echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")

	// tenancy
	errTenantRequired    = echo.NewHTTPError(http.StatusBadRequest, "tenant required")
	errTenantMismatch    = echo.NewHTTPError(http.StatusForbidden, "tenant mismatch")
	errTenantNotFound    = echo.NewHTTPError(http.StatusNotFound, "tenant not found")
	errTenantUnavailable = echo.NewHTTPError(http.StatusForbidden, "tenant unavailable")
	errInvalidSlug       = echo.NewHTTPError(http.StatusBadRequest, "invalid slug")
	errInvalidHandoff    = echo.NewHTTPError(http.StatusBadRequest, "invalid handoff code")
)

// domainErrs maps the domain errors handlers let through to their HTTP response.
var domainErrs = map[error]*echo.HTTPError{
	user.ErrNotFound:         echo.NewHTTPError(http.StatusNotFound, user.ErrNotFound.Error()),
	tenant.ErrNotFound:       errTenantNotFound,
	tenant.ErrBranchNotFound: echo.NewHTTPError(http.StatusNotFound, tenant.ErrBranchNotFound.Error()),
	policy.ErrNotFound:       echo.NewHTTPError(http.StatusNotFound, policy.ErrNotFound.Error()),
	handoff.ErrInvalidCode:   errInvalidHandoff,
}

// domainHTTPError looks `cause` up in domainErrs.
// Uncomparable errors such as validator.ValidationErrors can't be map keys.
func domainHTTPError(cause error) (*echo.HTTPError, bool) {
	if cause == nil || !reflect.TypeOf(cause).Comparable() {
		return nil, false
	}
	herr, ok := domainErrs[cause]
	return herr, ok
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		if herr, ok := domainHTTPError(cause); ok {
			cause = herr
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[fieldName(vErr)] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if fldErrs := origErr.FieldMap(); fldErrs != nil {
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.TenantID = claims.TenantID
				usr.Username = claims.Username
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		} else if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// fieldName returns the JSON path of the field in error, without the root struct.
// e.g. "NewTenant.owner.email" -> "owner.email"
func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}
