package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

type stubAuthRepo struct {
	users         map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	lastLogin     map[string]time.Time
	passwords     map[string]string
}

func newStubAuthRepo() *stubAuthRepo {
	return &stubAuthRepo{
		users:         make(map[string]*models.User),
		refreshTokens: make(map[string]*models.RefreshToken),
		lastLogin:     make(map[string]time.Time),
		passwords:     make(map[string]string),
	}
}

func (s *stubAuthRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubAuthRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		copy := *u
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubAuthRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	s.lastLogin[id] = ts
	return nil
}

func (s *stubAuthRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = passwordHash
	s.passwords[id] = passwordHash
	return nil
}

func (s *stubAuthRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	for _, t := range s.refreshTokens {
		if t.UserID == userID {
			t.Revoked = true
		}
	}
	return nil
}

func (s *stubAuthRepo) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	copy := *token
	s.refreshTokens[token.Token] = &copy
	return nil
}

func (s *stubAuthRepo) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if t, ok := s.refreshTokens[token]; ok {
		copy := *t
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubAuthRepo) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, t := range s.refreshTokens {
		if t.ID == id {
			t.Revoked = true
			t.RevokedAt = &revokedAt
			return nil
		}
	}
	return sql.ErrNoRows
}

func newAuthFixture(t *testing.T) (*AuthService, *stubAuthRepo, *stubAudit, *stubNotifier) {
	t.Helper()
	repo := newStubAuthRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.MinCost)
	require.NoError(t, err)
	schoolID := schoolA
	repo.users[teacherID] = &models.User{
		ID:           teacherID,
		Email:        "vega@example.edu",
		PasswordHash: string(hash),
		FullName:     "Prof. Vega",
		Role:         models.RoleTeacher,
		SchoolID:     &schoolID,
		Active:       true,
	}

	audit := &stubAudit{}
	notifier := &stubNotifier{}
	svc := NewAuthService(repo, audit, notifier, validator.New(), zap.NewNop(), AuthConfig{
		AccessTokenSecret:  "test-secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "sgpm-api",
	})
	return svc, repo, audit, notifier
}

func TestLoginIssuesTokens(t *testing.T) {
	svc, repo, audit, notifier := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "correct-password",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, teacherID, resp.User.ID)
	require.NotNil(t, resp.User.SchoolID)
	assert.Equal(t, schoolA, *resp.User.SchoolID)

	assert.Contains(t, repo.refreshTokens, resp.RefreshToken)
	assert.NotZero(t, repo.lastLogin[teacherID])
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionLogin, audit.entries[0].Action)
	require.Len(t, notifier.sent, 1)
	assert.Equal(t, models.NotificationLogin, notifier.sent[0].Kind)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "wrong",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.edu",
		Password: "whatever",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)
	repo.users[teacherID].Active = false

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "correct-password",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, appErrors.FromError(err).Code)
}

func TestValidateTokenRoundTrip(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "correct-password",
	})
	require.NoError(t, err)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, teacherID, claims.UserID)
	assert.Equal(t, models.RoleTeacher, claims.Role)
	require.NotNil(t, claims.SchoolID)
	assert.Equal(t, schoolA, *claims.SchoolID)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)
	other := NewAuthService(newStubAuthRepo(), nil, nil, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "different-secret",
		AccessTokenExpiry: time.Hour,
	})

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "correct-password",
	})
	require.NoError(t, err)

	_, err = other.ValidateToken(resp.AccessToken)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenRotation(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "correct-password",
	})
	require.NoError(t, err)

	refreshed, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	assert.NotEqual(t, resp.RefreshToken, refreshed.RefreshToken)

	// The spent token is revoked and cannot be replayed.
	assert.True(t, repo.refreshTokens[resp.RefreshToken].Revoked)
	_, err = svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: resp.RefreshToken})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, repo, audit, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "correct-password",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), resp.RefreshToken, teacherID, models.LoginRequest{})
	require.NoError(t, err)
	assert.True(t, repo.refreshTokens[resp.RefreshToken].Revoked)
	require.Len(t, audit.entries, 2)
	assert.Equal(t, models.AuditActionLogout, audit.entries[1].Action)
}

func TestLogoutForeignToken(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "correct-password",
	})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), resp.RefreshToken, "someone-else", models.LoginRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestChangePasswordRevokesSessions(t *testing.T) {
	svc, repo, _, _ := newAuthFixture(t)

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "correct-password",
	})
	require.NoError(t, err)

	err = svc.ChangePassword(context.Background(), teacherID, models.ChangePasswordRequest{
		OldPassword: "correct-password",
		NewPassword: "brand-new-pass",
	})
	require.NoError(t, err)
	assert.True(t, repo.refreshTokens[resp.RefreshToken].Revoked)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "vega@example.edu",
		Password: "brand-new-pass",
	})
	require.NoError(t, err)
}

func TestChangePasswordWrongOld(t *testing.T) {
	svc, _, _, _ := newAuthFixture(t)

	err := svc.ChangePassword(context.Background(), teacherID, models.ChangePasswordRequest{
		OldPassword: "not-the-password",
		NewPassword: "brand-new-pass",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
