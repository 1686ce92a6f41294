package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"eventure/mailer"
	"eventure/models"
)

func TestRegisterOrganizer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	u := env.register(t, "ada", models.RoleOrganizer)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "ada@example.com", u.Email)

	p, err := env.profiles.GetUserProfile(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, p.OrganizerDetails)
	assert.Nil(t, p.SponsorDetails)
	assert.Empty(t, p.PastEvents)
	assert.Empty(t, p.UpcomingEvents)
}

func TestRegisterSponsorDefaultsCompanyName(t *testing.T) {
	env := newTestEnv(t)

	u := env.register(t, "Acme", models.RoleSponsor)
	p, err := env.profiles.GetUserProfile(context.Background(), u.ID)
	require.NoError(t, err)
	require.NotNil(t, p.SponsorDetails)
	assert.Equal(t, "Acme", p.CompanyName)
	assert.Empty(t, p.EventTypesSponsored)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	cases := map[string]models.RegisterRequest{
		"bad email":      {Email: "nope", Password: "secret123", DisplayName: "A", Role: models.RoleOrganizer},
		"short password": {Email: "a@example.com", Password: "12345", DisplayName: "A", Role: models.RoleOrganizer},
		"no name":        {Email: "a@example.com", Password: "secret123", DisplayName: "  ", Role: models.RoleOrganizer},
		"bad role":       {Email: "a@example.com", Password: "secret123", DisplayName: "A", Role: "admin"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := env.auth.Register(ctx, req)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRegisterDuplicateEmailIsCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ada", models.RoleOrganizer)

	_, err := env.auth.Register(context.Background(), models.RegisterRequest{
		Email: "ADA@example.com", Password: "secret123", DisplayName: "Other", Role: models.RoleSponsor,
	})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "ada", models.RoleOrganizer)

	got, err := env.auth.Login(ctx, models.LoginRequest{Email: " Ada@Example.com ", Password: "secret123"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = env.auth.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = env.auth.Login(ctx, models.LoginRequest{Email: "ghost@example.com", Password: "secret123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func resetTokenFromMail(t *testing.T, env *testEnv, addr string) string {
	t.Helper()
	email, ok := env.mail.Last(addr)
	require.True(t, ok, "no reset email sent")

	for _, line := range strings.Split(email.TextBody, "\n") {
		if strings.HasPrefix(line, "http") {
			u, err := url.Parse(line)
			require.NoError(t, err)
			return u.Query().Get("token")
		}
	}
	t.Fatal("no link in reset email")
	return ""
}

func TestPasswordResetFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.register(t, "ada", models.RoleOrganizer)

	require.NoError(t, env.auth.RequestPasswordReset(ctx, "ada@example.com"))
	token := resetTokenFromMail(t, env, "ada@example.com")
	require.NotEmpty(t, token)

	require.NoError(t, env.auth.ConfirmPasswordReset(ctx, token, "brand-new"))

	_, err := env.auth.Login(ctx, models.LoginRequest{Email: "ada@example.com", Password: "brand-new"})
	require.NoError(t, err)

	// The token was bound to the old password.
	err = env.auth.ConfirmPasswordReset(ctx, token, "another-one")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.auth.RequestPasswordReset(context.Background(), "ghost@example.com"))
	_, ok := env.mail.Last("ghost@example.com")
	assert.False(t, ok)
}

type failingMailer struct{}

func (failingMailer) Send(ctx context.Context, email mailer.Email) error {
	return errors.New("smtp: connection refused")
}

func TestPasswordResetHidesDeliveryFailure(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "ada", models.RoleOrganizer)

	core, logs := observer.New(zap.WarnLevel)
	auth, err := NewAuthService(env.db, env.profiles, failingMailer{}, AuthOptions{
		ResetSecret: "test-secret",
		ResetURL:    "http://localhost:3000/reset-password",
	}, zap.New(core))
	require.NoError(t, err)

	ctx := context.Background()
	assert.NoError(t, auth.RequestPasswordReset(ctx, "ada@example.com"))
	assert.NoError(t, auth.RequestPasswordReset(ctx, "ghost@example.com"))
	assert.Equal(t, 1, logs.FilterMessage("failed to send password reset email").Len())
}

func TestConfirmPasswordResetRejectsBadTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "ada", models.RoleOrganizer)

	assert.ErrorIs(t, env.auth.ConfirmPasswordReset(ctx, "not-a-jwt", "brand-new"), ErrInvalidToken)

	expired, err := env.auth.resetToken(u, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)
	assert.ErrorIs(t, env.auth.ConfirmPasswordReset(ctx, expired, "brand-new"), ErrInvalidToken)

	valid, err := env.auth.resetToken(u, time.Now())
	require.NoError(t, err)
	assert.ErrorIs(t, env.auth.ConfirmPasswordReset(ctx, valid, "123"), ErrInvalidInput)
}

func TestUserExists(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.register(t, "ada", models.RoleOrganizer)

	ok, err := env.auth.UserExists(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = env.auth.UserExists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}
