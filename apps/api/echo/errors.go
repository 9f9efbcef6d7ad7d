package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/StephenSouth13/moveup/core"
	"github.com/StephenSouth13/moveup/core/user"
)

var (
	errMissingToken         = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errInvalidToken         = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired jwt")
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
)

// errorStatus maps a known error kind to its status code and response body.
// ok is false for unexpected errors, which are reported as 500.
func errorStatus(err error, translator ut.Translator) (code int, body interface{}, ok bool) {
	switch cause := errors.Cause(err).(type) {
	case *echo.HTTPError:
		if inner, isHTTP := cause.Internal.(*echo.HTTPError); isHTTP {
			cause = inner
		}
		return cause.Code, cause.Message, true

	case validator.ValidationErrors:
		fields := make(map[string]string, len(cause))
		for _, fe := range cause {
			fields[fe.Field()] = fe.Translate(translator)
		}
		return http.StatusBadRequest, fields, true

	case *core.ValidationError:
		if len(cause.Fields) == 0 {
			return http.StatusBadRequest, cause.Error(), true
		}
		fields := make(map[string]string, len(cause.Fields))
		for _, fe := range cause.Fields {
			fields[fe.Field] = fe.Error
		}
		return http.StatusBadRequest, fields, true

	case *core.NotFoundError:
		return http.StatusNotFound, cause.Error(), true

	case *core.StateError:
		return http.StatusConflict, cause.Error(), true
	}
	return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), false
}

// newAppHTTPErrorHandler renders errors as JSON: field maps for validation errors, {"error": msg} otherwise.
// Unexpected errors are logged with the caller; a core shutdown error also triggers signalShutdown.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		code, body, known := errorStatus(err, translator)
		if !known {
			var caller user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				caller = user.User{ID: claims.Subject, Name: claims.Name, Email: claims.Email}
			}
			logger.Error(http.StatusText(code), errors.Wrap(err, ctx.Request().Method+" "+ctx.Path()), caller)

			if core.IsShutdown(err) {
				signalShutdown()
			}
			if ctx.Echo().Debug {
				body = err.Error()
			}
		}
		if msg, isStr := body.(string); isStr {
			body = echo.Map{"error": msg}
		}

		if ctx.Response().Committed {
			return
		}
		if ctx.Request().Method == http.MethodHead {
			err = ctx.NoContent(code)
		} else {
			err = ctx.JSON(code, body)
		}
		if err != nil {
			ctx.Echo().Logger.Error(err)
		}
	}
}
