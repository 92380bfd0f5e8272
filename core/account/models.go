package account

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/peereval/core"
)

// Roles
const (
	RoleStudent   = "student"
	RoleProfessor = "professor"
)

var AllRoles = []string{RoleStudent, RoleProfessor}

type Account struct {
	ID               int64       `json:"id" db:"id"`
	Username         string      `json:"username" db:"username"`
	Email            string      `json:"email" db:"email"`
	Role             string      `json:"role" db:"role"`
	FirstName        string      `json:"first_name" db:"first_name"`
	LastName         string      `json:"last_name" db:"last_name"`
	PasswordHash     []byte      `json:"-" db:"password_hash"`
	ResetToken       null.String `json:"-" db:"reset_token"`
	ResetTokenExpiry null.Time   `json:"-" db:"reset_token_expiry"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

func (acc *Account) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	acc.PasswordHash = hash
	return nil
}

func (acc *Account) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(pwd))
}

func (acc *Account) IsStudent() bool   { return acc.Role == RoleStudent }
func (acc *Account) IsProfessor() bool { return acc.Role == RoleProfessor }

// FullName returns "first last", or the username when both names are empty.
func (acc *Account) FullName() string {
	name := strings.TrimSpace(acc.FirstName + " " + acc.LastName)
	if name == "" {
		return acc.Username
	}
	return name
}

// NewAccount contains information needed to sign up.
type NewAccount struct {
	Username  string `json:"username" validate:"required,max=64,alphanum_"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	Role      string `json:"role" validate:"omitempty,oneof=student professor"`
	FirstName string `json:"first_name" validate:"max=100"`
	LastName  string `json:"last_name" validate:"max=100"`
}

func (na *NewAccount) Validate(validate *validator.Validate) error {
	na.Username = core.CleanString(na.Username, true /* lower */)
	na.Email = core.CleanString(na.Email, true /* lower */)
	na.Role = core.CleanString(na.Role, true /* lower */)
	na.FirstName = core.CleanString(na.FirstName)
	na.LastName = core.CleanString(na.LastName)
	if na.Role == "" {
		na.Role = RoleStudent
	}
	return validate.Struct(na)
}

// ResetPassword is the payload confirming a password reset.
type ResetPassword struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (rp *ResetPassword) Validate(validate *validator.Validate) error {
	rp.Token = core.CleanString(rp.Token)
	return validate.Struct(rp)
}
