package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/charityng-backend/internal/errors"
	"github.com/unclebandit/charityng-backend/internal/model"
	"github.com/unclebandit/charityng-backend/internal/service"
)

func register(t *testing.T, e *testEnv, email string) *service.Session {
	t.Helper()
	s, err := e.identity.RegisterUser(context.Background(), service.RegisterInput{
		Email:     email,
		FirstName: "Ada",
		LastName:  "Obi",
		Password:  "correct horse",
		DeviceID:  "phone-1",
	})
	require.NoError(t, err)
	return s
}

func hashForTest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func TestRegisterAndResolve(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()

	s := register(t, e, "Ada@Example.org")
	assert.Equal(t, "ada@example.org", s.Account.Email)
	assert.Equal(t, service.DefaultProfileImage, s.Account.ProfileImageURL)
	assert.Len(t, s.APIKey, 64)

	p, err := e.identity.Resolve(ctx, model.RoleUser, s.APIKey)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, s.Account.ID, p.ID)
	assert.Equal(t, model.RoleUser, p.Role)

	// A user token means nothing in the staff space.
	p, err = e.identity.Resolve(ctx, model.RoleStaff, s.APIKey)
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = e.identity.Resolve(ctx, model.RoleUser, "not-a-token")
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = e.identity.RegisterUser(ctx, service.RegisterInput{
		Email: "ada@example.org", FirstName: "Ada", LastName: "Obi", Password: "correct horse", DeviceID: "phone-2",
	})
	assert.ErrorIs(t, err, appErrors.ErrEmailTaken)
}

func TestRegister_Validation(t *testing.T) {
	e := newTestEnv(t, false)
	_, err := e.identity.RegisterUser(context.Background(), service.RegisterInput{
		Email: "not-an-email", FirstName: "Ada", LastName: "Obi", Password: "short", DeviceID: "phone-1",
	})
	var appErr *appErrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Contains(t, appErr.Fields, "email")
	assert.Contains(t, appErr.Fields, "password")
}

func TestLogin(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	register(t, e, "ada@example.org")

	s, err := e.identity.LoginUser(ctx, service.LoginInput{Email: "ada@example.org", Password: "correct horse", DeviceID: "laptop"})
	require.NoError(t, err)
	p, err := e.identity.Resolve(ctx, model.RoleUser, s.APIKey)
	require.NoError(t, err)
	assert.NotNil(t, p)

	_, err = e.identity.LoginUser(ctx, service.LoginInput{Email: "ada@example.org", Password: "wrong horse", DeviceID: "laptop"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)

	_, err = e.identity.LoginUser(ctx, service.LoginInput{Email: "nobody@example.org", Password: "correct horse", DeviceID: "laptop"})
	assert.ErrorIs(t, err, appErrors.ErrAccountNotFound)

	// Users cannot log in as staff.
	_, err = e.identity.LoginStaff(ctx, service.LoginInput{Email: "ada@example.org", Password: "correct horse", DeviceID: "laptop"})
	assert.ErrorIs(t, err, appErrors.ErrAccountNotFound)
}

func TestRevokeCredential(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	s := register(t, e, "ada@example.org")

	require.NoError(t, e.identity.RevokeCredential(ctx, model.RoleUser, s.APIKey))
	p, err := e.identity.Resolve(ctx, model.RoleUser, s.APIKey)
	require.NoError(t, err)
	assert.Nil(t, p)

	assert.ErrorIs(t, e.identity.RevokeCredential(ctx, model.RoleUser, ""), appErrors.ErrUnauthenticated)
}

func TestBootstrapStaff(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()

	created, err := e.identity.BootstrapStaff(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = e.identity.BootstrapStaff(ctx, "admin@example.org", "change me now")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = e.identity.BootstrapStaff(ctx, "other@example.org", "change me now")
	require.NoError(t, err)
	assert.False(t, created)

	s, err := e.identity.LoginStaff(ctx, service.LoginInput{Email: "admin@example.org", Password: "change me now", DeviceID: "desk"})
	require.NoError(t, err)
	p, err := e.identity.Resolve(ctx, model.RoleStaff, s.APIKey)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.True(t, p.IsStaff())

	account, err := e.identity.CreateStaff(ctx, p, service.StaffInput{
		Email: "second@example.org", FirstName: "Tunde", LastName: "Bello", Password: "another pass",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, account.ID)

	_, err = e.identity.CreateStaff(ctx, alice, service.StaffInput{
		Email: "third@example.org", FirstName: "Tunde", LastName: "Bello", Password: "another pass",
	})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestPasswordReset(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	register(t, e, "ada@example.org")

	require.NoError(t, e.identity.RequestPasswordReset(ctx, "ada@example.org", "en"))

	var vars map[string]any
	select {
	case vars = <-e.mailer.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("reset mail was not sent")
	}
	assert.Equal(t, "Ada", vars["FirstName"])
	token, _ := vars["Token"].(string)
	require.NotEmpty(t, token)

	require.NoError(t, e.identity.ResetPassword(ctx, service.ResetPasswordInput{Token: token, Password: "a brand new one"}))

	_, err := e.identity.LoginUser(ctx, service.LoginInput{Email: "ada@example.org", Password: "correct horse", DeviceID: "laptop"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidCredentials)
	_, err = e.identity.LoginUser(ctx, service.LoginInput{Email: "ada@example.org", Password: "a brand new one", DeviceID: "laptop"})
	assert.NoError(t, err)

	// Tokens are single use.
	err = e.identity.ResetPassword(ctx, service.ResetPasswordInput{Token: token, Password: "yet another one"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidResetToken)
}

func TestPasswordReset_UnknownEmailSendsNothing(t *testing.T) {
	e := newTestEnv(t, false)
	require.NoError(t, e.identity.RequestPasswordReset(context.Background(), "nobody@example.org", "en"))

	select {
	case <-e.mailer.sent:
		t.Fatal("unexpected mail")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPasswordReset_ExpiredToken(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	s := register(t, e, "ada@example.org")

	require.NoError(t, e.users.CreateResetToken(ctx, &model.PasswordResetToken{
		Token:     hashForTest("stale-token"),
		AccountID: s.Account.ID,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}))
	err := e.identity.ResetPassword(ctx, service.ResetPasswordInput{Token: "stale-token", Password: "a brand new one"})
	assert.ErrorIs(t, err, appErrors.ErrInvalidResetToken)
}

func TestUploadProfileImage(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	s := register(t, e, "ada@example.org")
	p := s.Account.Principal(model.RoleUser)

	account, err := e.identity.UploadProfileImage(ctx, p, "me.jpg", "image/jpeg", []byte("jpg"))
	require.NoError(t, err)
	key, ok := e.store.PathOf(account.ProfileImageURL)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(key, "users/"+p.ID+"/profileImages/"))
	assert.True(t, e.store.Has(key))

	e.store.FailPut = errors.New("bucket unavailable")
	_, err = e.identity.UploadProfileImage(ctx, p, "again.jpg", "image/jpeg", []byte("jpg"))
	require.Error(t, err)
	me, err := e.identity.Me(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, account.ProfileImageURL, me.ProfileImageURL)

	_, err = e.identity.UploadProfileImage(ctx, staff, "me.jpg", "image/jpeg", []byte("jpg"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = e.identity.UploadProfileImage(ctx, nil, "me.jpg", "image/jpeg", []byte("jpg"))
	assert.ErrorIs(t, err, appErrors.ErrUnauthenticated)
}
