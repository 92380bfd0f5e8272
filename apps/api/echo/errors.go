package echoapi

import (
	"net/http"
	"strconv"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
)

const validationFailedMsg = "Validation failed"

var (
	errUnauthorized      = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errRefreshExpired    = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden     = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errNoCSVFile         = echo.NewHTTPError(http.StatusBadRequest, "No CSV file uploaded")
	errNotCSV            = echo.NewHTTPError(http.StatusBadRequest, "Only CSV files are allowed")
	errTeammatesRequired = echo.NewHTTPError(http.StatusBadRequest, "course_id, group_id, and student_email are required")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		body := echo.Map{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				body["message"] = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			body["message"] = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			body["message"] = validationFailedMsg
			body["fields"] = fldErrs
		case *core.ValidationError:
			code = http.StatusBadRequest
			msg := origErr.Error()
			if len(origErr.Fields) > 0 {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				body["fields"] = fldErrs
				if msg == "" && len(origErr.Fields) == 1 {
					msg = origErr.Fields[0].Error
				}
			}
			if msg == "" {
				msg = validationFailedMsg
			}
			body["message"] = msg
		case *core.NotFoundError:
			code = http.StatusNotFound
			body["message"] = origErr.Error()
		case *core.ConflictError:
			code = http.StatusConflict
			body["message"] = origErr.Error()
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			body["message"] = msg
			if ctx.Echo().Debug {
				body["message"] = err.Error()
			}

			logger.Error(msg, errors.Wrap(err, msg), requestAccount(ctx))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, body)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// requestAccount returns what is known of the authenticated account, for error reports.
func requestAccount(ctx echo.Context) account.Account {
	if acc, ok := ctx.Get(contextAccountKey).(account.Account); ok {
		return acc
	}
	var acc account.Account
	if claims, err := getContextClaims(ctx); err == nil {
		acc.ID, _ = strconv.ParseInt(claims.Subject, 10, 64)
		acc.Username = claims.Username
		acc.Email = claims.Email
		acc.Role = claims.Role
	}
	return acc
}
