package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
)

const accountColumns = `id, username, email, password_hash, role, first_name, last_name,
	reset_token, reset_token_expiry, created_at, updated_at`

type accountRepository struct {
	repository
}

var _ account.Repository = (*accountRepository)(nil)

func NewAccountRepository(db *sqlx.DB) *accountRepository {
	return &accountRepository{repository{db: db}}
}

func (repo *accountRepository) CreateAccount(ctx context.Context, acc account.Account, exec ...core.DBExecutor) (account.Account, error) {
	ex := repo.exec(exec)
	q := `INSERT INTO accounts (username, email, password_hash, role, first_name, last_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`
	err := ex.QueryRowxContext(
		ctx, ex.Rebind(q),
		acc.Username, acc.Email, acc.PasswordHash, acc.Role, acc.FirstName, acc.LastName, acc.CreatedAt, acc.UpdatedAt,
	).Scan(&acc.ID)
	if err != nil {
		if IsUniqueViolation(err) {
			return account.Account{}, account.ErrAccountExists
		}
		return account.Account{}, errors.Wrap(err, "inserting account")
	}
	return acc, nil
}

func (repo *accountRepository) getBy(ctx context.Context, ex core.DBExecutor, where string, args ...interface{}) (account.Account, error) {
	var acc account.Account
	q := "SELECT " + accountColumns + " FROM accounts WHERE " + where
	err := ex.GetContext(ctx, &acc, ex.Rebind(q), args...)
	return acc, trapNoRowsErr(err, account.ErrNotFound)
}

func (repo *accountRepository) GetAccountByID(ctx context.Context, id int64, exec ...core.DBExecutor) (account.Account, error) {
	return repo.getBy(ctx, repo.exec(exec), "id = ?", id)
}

func (repo *accountRepository) GetAccountByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (account.Account, error) {
	return repo.getBy(ctx, repo.exec(exec), "LOWER(email) = ?", email)
}

func (repo *accountRepository) GetAccountByUsernameOrEmail(ctx context.Context, ident string, exec ...core.DBExecutor) (account.Account, error) {
	return repo.getBy(ctx, repo.exec(exec), "LOWER(username) = ? OR LOWER(email) = ?", ident, ident)
}

func (repo *accountRepository) GetAccountByResetToken(ctx context.Context, token string, exec ...core.DBExecutor) (account.Account, error) {
	return repo.getBy(ctx, repo.exec(exec), "reset_token = ?", token)
}

func (repo *accountRepository) UpdateAccount(ctx context.Context, acc account.Account, exec ...core.DBExecutor) (account.Account, error) {
	ex := repo.exec(exec)
	acc.UpdatedAt = account.NowFunc().UTC()
	q := `UPDATE accounts SET username = ?, email = ?, password_hash = ?, role = ?, first_name = ?, last_name = ?,
		reset_token = ?, reset_token_expiry = ?, updated_at = ? WHERE id = ?`
	n, err := rowsAffected(ex.ExecContext(
		ctx, ex.Rebind(q),
		acc.Username, acc.Email, acc.PasswordHash, acc.Role, acc.FirstName, acc.LastName,
		acc.ResetToken, acc.ResetTokenExpiry, acc.UpdatedAt, acc.ID,
	))
	switch {
	case IsUniqueViolation(err):
		return account.Account{}, account.ErrAccountExists
	case err != nil:
		return account.Account{}, errors.Wrap(err, "updating account")
	case n == 0:
		return account.Account{}, account.ErrNotFound
	}
	return acc, nil
}
