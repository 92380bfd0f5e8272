package account_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/peereval/core"
	"github.com/trezcool/peereval/core/account"
	sqlxrepos "github.com/trezcool/peereval/storage/database/sqlx"
	"github.com/trezcool/peereval/testutil"
)

const testPwd = "Zq9!xLw7#kVm"

type mailRecorder struct {
	sent []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.sent = append(m.sent, messages...)
}

func setup(t *testing.T) (*account.Service, account.Repository, *mailRecorder) {
	conf := core.NewTestConfig()
	conf.PasswordResetTimeoutDelta = time.Hour
	conf.FrontendBaseURL = "http://front.test"

	repo := sqlxrepos.NewAccountRepository(testutil.PrepareDB(t))
	mails := new(mailRecorder)
	return account.NewService(repo, mails, conf), repo, mails
}

func TestService_Create(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	acc, err := svc.Create(ctx, account.NewAccount{Username: "ada", Email: "ada@uni.test", Password: testPwd})
	require.NoError(t, err)
	assert.NotZero(t, acc.ID)
	assert.Equal(t, account.RoleStudent, acc.Role)
	assert.NoError(t, acc.CheckPassword(testPwd))

	tests := []struct {
		name string
		na   account.NewAccount
	}{
		{name: "duplicate username", na: account.NewAccount{Username: "ada", Email: "other@uni.test", Password: testPwd}},
		{name: "duplicate email", na: account.NewAccount{Username: "other", Email: "ada@uni.test", Password: testPwd}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, tt.na)
			var vErr *core.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, account.ErrAccountExists, vErr.Err)
		})
	}
}

func TestService_Authenticate(t *testing.T) {
	svc, repo, _ := setup(t)
	testutil.CreateAccount(t, repo, "ada", "ada@uni.test", testPwd, account.RoleStudent)

	tests := []struct {
		name    string
		ident   string
		pwd     string
		wantErr error
	}{
		{name: "username", ident: "ada", pwd: testPwd},
		{name: "email, any case", ident: " ADA@uni.test ", pwd: testPwd},
		{name: "wrong password", ident: "ada", pwd: "nope", wantErr: account.ErrInvalidCredentials},
		{name: "unknown", ident: "grace", pwd: testPwd, wantErr: account.ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := svc.Authenticate(context.Background(), tt.ident, tt.pwd)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ada", acc.Username)
		})
	}
}

func TestService_passwordReset(t *testing.T) {
	svc, repo, mails := setup(t)
	ctx := context.Background()
	testutil.CreateAccount(t, repo, "ada", "ada@uni.test", testPwd, account.RoleStudent)

	_, err := svc.RequestPasswordReset(ctx, "nobody@uni.test")
	assert.Equal(t, account.ErrNotFound, errors.Cause(err))
	assert.Empty(t, mails.sent)

	token, err := svc.RequestPasswordReset(ctx, "Ada@Uni.test")
	require.NoError(t, err)
	require.Len(t, mails.sent, 1)
	assert.Equal(t, "ada@uni.test", mails.sent[0].To[0].Address)
	assert.Equal(t, token, mails.sent[0].TemplateData.(map[string]interface{})["Token"])
	assert.Equal(t, "http://front.test/reset-password?token="+token, svc.ResetLink(token))

	acc, err := svc.VerifyResetToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "ada", acc.Username)

	t.Run("expired", func(t *testing.T) {
		account.NowFunc = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { account.NowFunc = time.Now }()

		_, err := svc.VerifyResetToken(ctx, token)
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, account.ErrInvalidResetToken, vErr.Err)
	})

	t.Run("too similar", func(t *testing.T) {
		err := svc.ResetPassword(ctx, account.ResetPassword{Token: token, Password: "ada@uni.test"})
		var vErr *core.ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Len(t, vErr.Fields, 1)
		assert.Equal(t, "password", vErr.Fields[0].Field)
	})

	const newPwd = "Hk4$mPq8!wRz"
	require.NoError(t, svc.ResetPassword(ctx, account.ResetPassword{Token: token, Password: newPwd}))
	_, err = svc.Authenticate(ctx, "ada", newPwd)
	assert.NoError(t, err)

	// burnt
	_, err = svc.VerifyResetToken(ctx, token)
	assert.Error(t, err)
}

func TestService_Upsert(t *testing.T) {
	svc, repo, _ := setup(t)
	ctx := context.Background()
	testutil.CreateAccount(t, repo, "babbage", "babbage@uni.test", testPwd, account.RoleStudent)

	acc, created, err := svc.Upsert(ctx, account.NewAccount{Username: "babbage", Password: "Hk4$mPq8!wRz", Role: account.RoleProfessor})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, account.RoleProfessor, acc.Role)
	assert.NoError(t, acc.CheckPassword("Hk4$mPq8!wRz"))

	acc, created, err = svc.Upsert(ctx, account.NewAccount{Username: "grace", Email: "grace@uni.test", Password: testPwd, Role: account.RoleProfessor})
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, acc.IsProfessor())
}
