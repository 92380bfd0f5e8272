package account

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/peereval/core"
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrNotFound           = core.NewNotFoundError("account not found")
	ErrAccountExists      = errors.New("Username or email already exists")
	ErrInvalidCredentials = errors.New("Invalid username or password")
	ErrInvalidResetToken  = errors.New("Invalid or expired reset token")
)

type (
	Repository interface {
		CreateAccount(ctx context.Context, acc Account, exec ...core.DBExecutor) (Account, error)
		GetAccountByID(ctx context.Context, id int64, exec ...core.DBExecutor) (Account, error)
		GetAccountByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (Account, error)
		// GetAccountByUsernameOrEmail matches `ident` against both the username and the email.
		GetAccountByUsernameOrEmail(ctx context.Context, ident string, exec ...core.DBExecutor) (Account, error)
		GetAccountByResetToken(ctx context.Context, token string, exec ...core.DBExecutor) (Account, error)
		UpdateAccount(ctx context.Context, acc Account, exec ...core.DBExecutor) (Account, error)
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) *Service {
	return &Service{repo: repo, mailSvc: mailSvc, conf: conf}
}

// Create signs a new account up. Duplicate usernames or emails are validation errors.
func (svc *Service) Create(ctx context.Context, na NewAccount) (Account, error) {
	now := NowFunc().UTC()
	acc := Account{
		Username:  na.Username,
		Email:     na.Email,
		Role:      na.Role,
		FirstName: na.FirstName,
		LastName:  na.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if acc.Role == "" {
		acc.Role = RoleStudent
	}
	if err := acc.SetPassword(na.Password); err != nil {
		return Account{}, errors.Wrap(err, "hashing password")
	}

	acc, err := svc.repo.CreateAccount(ctx, acc)
	if err != nil {
		if errors.Cause(err) == ErrAccountExists {
			return Account{}, core.NewValidationError(ErrAccountExists)
		}
		return Account{}, errors.Wrap(err, "creating account")
	}
	return acc, nil
}

// Authenticate checks the credentials of the account designated by its username or email.
func (svc *Service) Authenticate(ctx context.Context, ident, pwd string) (Account, error) {
	acc, err := svc.GetByUsernameOrEmail(ctx, ident)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, errors.Wrap(err, "finding account by username or email")
	}
	if err = acc.CheckPassword(pwd); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acc, nil
}

func (svc *Service) GetByID(ctx context.Context, id int64) (Account, error) {
	return svc.repo.GetAccountByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	return svc.repo.GetAccountByEmail(ctx, core.CleanString(email, true /* lower */))
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, ident string) (Account, error) {
	return svc.repo.GetAccountByUsernameOrEmail(ctx, core.CleanString(ident, true /* lower */))
}

// RequestPasswordReset issues a reset token for the account owning `email` and mails the reset link.
// It returns ErrNotFound for unknown emails; callers must not disclose it.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	acc, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	token := uuid.New().String()
	now := NowFunc().UTC()
	acc.ResetToken = null.StringFrom(token)
	acc.ResetTokenExpiry = null.TimeFrom(now.Add(svc.conf.PasswordResetTimeoutDelta))
	acc.UpdatedAt = now
	if acc, err = svc.repo.UpdateAccount(ctx, acc); err != nil {
		return "", errors.Wrap(err, "saving reset token")
	}

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: acc.FullName(), Address: acc.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":      acc.FullName(),
			"Username":  acc.Username,
			"Token":     token,
			"ExpiresIn": svc.conf.PasswordResetTimeoutDelta.String(),
		},
	})
	return token, nil
}

// ResetLink returns the frontend link that consumes `token`.
func (svc *Service) ResetLink(token string) string {
	return fmt.Sprintf("%s/reset-password?token=%s", svc.conf.FrontendBaseURL, token)
}

// VerifyResetToken returns the account owning a live reset token.
func (svc *Service) VerifyResetToken(ctx context.Context, token string) (Account, error) {
	if token == "" {
		return Account{}, core.NewValidationError(ErrInvalidResetToken)
	}
	acc, err := svc.repo.GetAccountByResetToken(ctx, token)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Account{}, core.NewValidationError(ErrInvalidResetToken)
		}
		return Account{}, errors.Wrap(err, "finding account by reset token")
	}
	if !acc.ResetTokenExpiry.Valid || !NowFunc().Before(acc.ResetTokenExpiry.Time) {
		return Account{}, core.NewValidationError(ErrInvalidResetToken)
	}
	return acc, nil
}

// ResetPassword sets a new password using a reset token, then burns the token.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	acc, err := svc.VerifyResetToken(ctx, rp.Token)
	if err != nil {
		return err
	}
	if IsTooSimilar(rp.Password, acc.Username, acc.Email, acc.FirstName+" "+acc.LastName) {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: pwdAttrSimText})
	}
	return svc.setPassword(ctx, acc, rp.Password)
}

// SetPassword sets the password of the account designated by its username or email.
func (svc *Service) SetPassword(ctx context.Context, ident, pwd string) error {
	acc, err := svc.GetByUsernameOrEmail(ctx, ident)
	if err != nil {
		return err
	}
	return svc.setPassword(ctx, acc, pwd)
}

func (svc *Service) setPassword(ctx context.Context, acc Account, pwd string) error {
	if err := acc.SetPassword(pwd); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	acc.ResetToken = null.String{}
	acc.ResetTokenExpiry = null.Time{}
	acc.UpdatedAt = NowFunc().UTC()
	_, err := svc.repo.UpdateAccount(ctx, acc)
	return errors.Wrap(err, "updating account")
}

// Upsert creates the account, or updates the role and password of an existing one
// matching the username or the email.
func (svc *Service) Upsert(ctx context.Context, na NewAccount) (Account, bool, error) {
	acc, err := svc.GetByUsernameOrEmail(ctx, na.Username)
	if errors.Cause(err) == ErrNotFound && na.Email != "" {
		acc, err = svc.GetByUsernameOrEmail(ctx, na.Email)
	}
	switch {
	case errors.Cause(err) == ErrNotFound:
		acc, err = svc.Create(ctx, na)
		return acc, true, err
	case err != nil:
		return Account{}, false, err
	}

	if na.Role != "" {
		acc.Role = na.Role
	}
	if err = acc.SetPassword(na.Password); err != nil {
		return Account{}, false, errors.Wrap(err, "hashing password")
	}
	acc.UpdatedAt = NowFunc().UTC()
	acc, err = svc.repo.UpdateAccount(ctx, acc)
	return acc, false, errors.Wrap(err, "updating account")
}
