package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/duetapp/duet-api/internal/models"
	appErrors "github.com/duetapp/duet-api/pkg/errors"
)

type authUserRepoStub struct {
	user      *models.User
	lastLogin *time.Time
}

func (s *authUserRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, sql.ErrNoRows
	}
	copied := *s.user
	return &copied, nil
}

func (s *authUserRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, sql.ErrNoRows
	}
	copied := *s.user
	return &copied, nil
}

func (s *authUserRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogin = &ts
	return nil
}

func authFixture(t *testing.T, active bool) (*AuthService, *authUserRepoStub, *auditStub) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &authUserRepoStub{user: &models.User{
		ID:           "user-1",
		Email:        "alex@example.com",
		DisplayName:  "Alex",
		PasswordHash: string(hash),
		Active:       active,
	}}
	audit := &auditStub{}
	svc := NewAuthService(repo, audit, nil, nil, AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "duet-api",
	})
	return svc, repo, audit
}

func TestAuthServiceLogin(t *testing.T) {
	svc, repo, audit := authFixture(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alex@example.com",
		Password: "correct horse",
		IP:       "203.0.113.9",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.NotNil(t, repo.lastLogin)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLogin, audit.logs[0].Action)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alex@example.com", claims.Email)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _, _ := authFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alex@example.com",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc, _, _ := authFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "correct horse",
	})
	require.Error(t, err)
	// Unknown email and wrong password are indistinguishable to the caller.
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, _, _ := authFixture(t, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alex@example.com",
		Password: "correct horse",
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceValidateTokenRejectsTampered(t *testing.T) {
	svc, _, _ := authFixture(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "alex@example.com",
		Password: "correct horse",
	})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceRefresh(t *testing.T) {
	svc, _, _ := authFixture(t, true)

	resp, err := svc.Refresh(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestAuthServiceRefreshDeactivated(t *testing.T) {
	svc, _, _ := authFixture(t, false)

	_, err := svc.Refresh(context.Background(), "user-1")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceRefreshUnknownUser(t *testing.T) {
	svc, _, _ := authFixture(t, true)

	_, err := svc.Refresh(context.Background(), "gone")
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrUnauthorized))
}
