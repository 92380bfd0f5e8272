package echoapi

import (
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
	"github.com/trezcool/peereval/core/roster"
)

var errInvalidCredentials = echo.NewHTTPError(http.StatusUnauthorized, account.ErrInvalidCredentials.Error())

type accountApi struct {
	auth      *authenticator
	rosterSvc *roster.Service
	logger    core.Logger
	validate  *validator.Validate
}

func registerAccountAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	auth *authenticator,
	rosterSvc *roster.Service,
	logger core.Logger,
	validate *validator.Validate,
) {
	api := accountApi{
		auth:      auth,
		rosterSvc: rosterSvc,
		logger:    logger,
		validate:  validate,
	}

	// un-authed endpoints
	g.POST("/signup", api.signup)
	g.POST("/login", api.login)
	g.POST("/forgot-password", api.forgotPassword)
	g.POST("/reset-password", api.resetPassword)
	g.GET("/verify-reset-token/:token", api.verifyResetToken)

	// authed endpoints
	g.POST("/token-refresh", api.refreshToken, jwt)
	g.GET("/me", api.me, jwt)
}

// Handlers

func (api *accountApi) signup(ctx echo.Context) error {
	var data account.NewAccount
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewAccount")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.auth.accounts.Create(requestContext(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating account")
	}
	api.linkStudent(ctx, acc)

	token, err := api.auth.token(acc)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusCreated, AuthResponse{Message: "User created successfully", Account: acc, Token: token})
}

func (api *accountApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	acc, err := api.auth.accounts.Authenticate(requestContext(ctx), data.Username, data.Password)
	if err != nil {
		if errors.Cause(err) == account.ErrInvalidCredentials {
			return errInvalidCredentials
		}
		return errors.Wrap(err, "authenticating")
	}
	api.linkStudent(ctx, acc)

	token, err := api.auth.token(acc)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, AuthResponse{Message: "Login successful", Account: acc, Token: token})
}

// linkStudent attaches a student account to its roster record. Failures never fail the request.
func (api *accountApi) linkStudent(ctx echo.Context, acc account.Account) {
	res, err := api.rosterSvc.LinkAccount(requestContext(ctx), acc)
	switch {
	case err != nil:
		api.logger.Warn(fmt.Sprintf("could not link student record of %q: %v", acc.Username, err), err, acc)
	case res.Outcome == roster.Ambiguous:
		api.logger.Warn(fmt.Sprintf("several student records match %q; left unlinked", acc.Username), acc)
	}
}

func (api *accountApi) forgotPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	resp := PasswordResetResponse{Message: "If an account with that email exists, a password reset link has been sent."}
	token, err := api.auth.accounts.RequestPasswordReset(requestContext(ctx), data.Email)
	switch {
	case err == nil:
		if api.auth.conf.Debug {
			resp.ResetLink = api.auth.accounts.ResetLink(token)
		}
	case errors.Cause(err) != account.ErrNotFound:
		// do not return errors to attackers
		api.logger.Error(fmt.Sprintf("requesting password reset: %v", err), err)
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *accountApi) resetPassword(ctx echo.Context) error {
	var data account.ResetPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.auth.accounts.ResetPassword(requestContext(ctx), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Password has been reset successfully"})
}

func (api *accountApi) verifyResetToken(ctx echo.Context) error {
	if _, err := api.auth.accounts.VerifyResetToken(requestContext(ctx), ctx.Param("token")); err != nil {
		return errors.Wrap(err, "verifying reset token")
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: "Reset token is valid"})
}

func (api *accountApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *accountApi) me(ctx echo.Context) error {
	acc, err := api.auth.contextAccount(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context account")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"user": acc})
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	AuthResponse struct {
		Message string          `json:"message"`
		Account account.Account `json:"user"`
		Token   string          `json:"token"`
	}

	TokenResponse struct {
		Token string `json:"token"`
	}

	PasswordResetResponse struct {
		Message   string `json:"message"`
		ResetLink string `json:"reset_link,omitempty"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}
