package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

const schoolUUID = "9bf21c3d-2a44-4e0f-a9c3-0d1e2f3a4b5c"

type stubAccountStore struct {
	byID       map[string]*models.User
	byEmail    map[string]*models.User
	deans      int
	lastFilter models.UserFilter
	listed     []models.User
	created    *models.User
	deleted    []string
}

func (s *stubAccountStore) FindByID(_ context.Context, id string) (*models.User, error) {
	if user, ok := s.byID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubAccountStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	if user, ok := s.byEmail[email]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubAccountStore) CountByRoleAndSchool(context.Context, models.UserRole, string) (int, error) {
	return s.deans, nil
}

func (s *stubAccountStore) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	s.lastFilter = filter
	return s.listed, len(s.listed), nil
}

func (s *stubAccountStore) Create(_ context.Context, user *models.User) error {
	user.ID = "user-new"
	s.created = user
	return nil
}

func (s *stubAccountStore) Update(context.Context, *models.User) error { return nil }

func (s *stubAccountStore) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func newUserService(store *stubAccountStore, audit *stubAudit) *UserService {
	return NewUserService(store, audit, nil, nil)
}

func TestUserCreateHashesPasswordAndAudits(t *testing.T) {
	store := &stubAccountStore{}
	audit := &stubAudit{}
	svc := newUserService(store, audit)

	user, err := svc.Create(context.Background(), adminClaims(), CreateUserRequest{
		Email:    "vega@example.edu",
		Password: "secreto1",
		FullName: "Prof. Vega",
		Role:     models.RoleTeacher,
		SchoolID: strPtr(schoolUUID),
	})
	require.NoError(t, err)
	assert.True(t, user.Active)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("secreto1")))
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionUserCreate, audit.entries[0].Action)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	store := &stubAccountStore{byEmail: map[string]*models.User{
		"vega@example.edu": {ID: "u1", Email: "vega@example.edu"},
	}}
	svc := newUserService(store, &stubAudit{})

	_, err := svc.Create(context.Background(), adminClaims(), CreateUserRequest{
		Email:    "vega@example.edu",
		Password: "secreto1",
		FullName: "Prof. Vega",
		Role:     models.RoleTeacher,
		SchoolID: strPtr(schoolUUID),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserCreateRequiresSchoolForNonAdmins(t *testing.T) {
	svc := newUserService(&stubAccountStore{}, &stubAudit{})

	_, err := svc.Create(context.Background(), adminClaims(), CreateUserRequest{
		Email:    "vega@example.edu",
		Password: "secreto1",
		FullName: "Prof. Vega",
		Role:     models.RoleTeacher,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserCreateSecondDeanRefused(t *testing.T) {
	store := &stubAccountStore{deans: 1}
	svc := newUserService(store, &stubAudit{})

	_, err := svc.Create(context.Background(), adminClaims(), CreateUserRequest{
		Email:    "soto@example.edu",
		Password: "secreto1",
		FullName: "Dec. Soto",
		Role:     models.RoleDean,
		SchoolID: strPtr(schoolUUID),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserListScopesDeanToFaculty(t *testing.T) {
	store := &stubAccountStore{listed: []models.User{{ID: "u1"}}}
	svc := newUserService(store, &stubAudit{})

	users, total, err := svc.List(context.Background(), deanClaims(), models.UserFilter{SchoolID: "school-b"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)

	// The requested school filter is overridden by the dean's own faculty.
	assert.Equal(t, schoolA, store.lastFilter.SchoolID)
}

func TestUserListTeacherHasNoAccess(t *testing.T) {
	svc := newUserService(&stubAccountStore{}, &stubAudit{})

	_, _, err := svc.List(context.Background(), &models.JWTClaims{UserID: teacherID, Role: models.RoleTeacher}, models.UserFilter{})
	assert.True(t, errors.Is(err, appErrors.ErrRoleMismatch))
}

func TestUserListDeanWithoutFaculty(t *testing.T) {
	svc := newUserService(&stubAccountStore{}, &stubAudit{})

	_, _, err := svc.List(context.Background(), &models.JWTClaims{UserID: deanID, Role: models.RoleDean}, models.UserFilter{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserDeleteMissing(t *testing.T) {
	svc := newUserService(&stubAccountStore{}, &stubAudit{})

	err := svc.Delete(context.Background(), adminClaims(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
