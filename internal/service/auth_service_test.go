package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/regenworks/regenworks-api/internal/models"
	appErrors "github.com/regenworks/regenworks-api/pkg/errors"
)

type authRepoStub struct {
	users      map[string]*models.User
	lastLogins int
}

func (s *authRepoStub) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, user := range s.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, appErrors.ErrInvalidCredentials
}

func (s *authRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := s.users[id]; ok {
		return user, nil
	}
	return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
}

func (s *authRepoStub) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogins++
	return nil
}

func newAuthRepoStub(t *testing.T, password string, active bool) *authRepoStub {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &authRepoStub{users: map[string]*models.User{
		"user-1": {
			ID:           "user-1",
			Username:     "ayu",
			Email:        "ayu@example.com",
			PasswordHash: string(hash),
			Active:       active,
		},
	}}
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	repo := newAuthRepoStub(t, "secret123", true)
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret", Expiration: time.Hour, Issuer: "test"})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ayu@example.com", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, "user-1", resp.User.ID)
	assert.Equal(t, 1, repo.lastLogins)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "ayu", claims.Username)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	repo := newAuthRepoStub(t, "secret123", true)
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret"})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ayu@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	repo := newAuthRepoStub(t, "secret123", false)
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret"})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "ayu@example.com", Password: "secret123"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceLoginValidatesPayload(t *testing.T) {
	repo := newAuthRepoStub(t, "secret123", true)
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret"})

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: ""})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRejectsForgedToken(t *testing.T) {
	repo := newAuthRepoStub(t, "secret123", true)
	issuer := NewAuthService(repo, nil, nil, AuthConfig{Secret: "other-secret", Expiration: time.Hour})
	verifier := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret", Expiration: time.Hour})

	resp, err := issuer.Login(context.Background(), models.LoginRequest{Email: "ayu@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = verifier.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestAuthServiceRejectsExpiredToken(t *testing.T) {
	repo := newAuthRepoStub(t, "secret123", true)
	svc := NewAuthService(repo, nil, nil, AuthConfig{Secret: "test-secret", Expiration: -time.Minute})

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "ayu@example.com", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	require.Error(t, err)
}
