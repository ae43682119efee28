package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sgpm-api/internal/models"
)

func userRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "email", "password_hash", "full_name", "role", "school_id", "active", "last_login", "created_at", "updated_at"})
}

func TestUserFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := userRows().
		AddRow("u1", "vega@example.edu", "hash", "Prof. Vega", string(models.RoleTeacher), "school-a", true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, school_id, active, last_login, created_at, updated_at FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("vega@example.edu").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "vega@example.edu")
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, user.Role)
	require.NotNil(t, user.SchoolID)
	assert.Equal(t, "school-a", *user.SchoolID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserFindDeanBySchool(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := userRows().
		AddRow("u2", "soto@example.edu", "hash", "Dec. Soto", string(models.RoleDean), "school-a", true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, school_id, active, last_login, created_at, updated_at FROM users WHERE role = $1 AND school_id = $2 AND active = TRUE LIMIT 1")).
		WithArgs(models.RoleDean, "school-a").
		WillReturnRows(rows)

	dean, err := repo.FindDeanBySchool(context.Background(), "school-a")
	require.NoError(t, err)
	assert.Equal(t, models.RoleDean, dean.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserFindDeanBySchoolMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery("SELECT .* FROM users WHERE role =").
		WithArgs(models.RoleDean, "school-b").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindDeanBySchool(context.Background(), "school-b")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCountByRoleAndSchool(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE role = $1 AND active = TRUE AND school_id = $2")).
		WithArgs(models.RoleDean, "school-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	total, err := repo.CountByRoleAndSchool(context.Background(), models.RoleDean, "school-a")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserListWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	role := models.RoleTeacher
	listRows := userRows().
		AddRow("u1", "vega@example.edu", "hash", "Prof. Vega", string(role), "school-a", true, now, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, full_name, role, school_id, active, last_login, created_at, updated_at FROM users WHERE 1=1 AND role = $1 AND school_id = $2 ORDER BY created_at DESC LIMIT 20 OFFSET 0")).
		WithArgs(role, "school-a").
		WillReturnRows(listRows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM users WHERE 1=1 AND role = $1 AND school_id = $2")).
		WithArgs(role, "school-a").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	users, total, err := repo.List(context.Background(), models.UserFilter{Role: &role, SchoolID: "school-a"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	schoolID := "school-a"
	user := &models.User{
		Email:        "nuevo@example.edu",
		PasswordHash: "hash",
		FullName:     "Nuevo Docente",
		Role:         models.RoleTeacher,
		SchoolID:     &schoolID,
		Active:       true,
	}
	err := repo.Create(context.Background(), user)
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserCreateRefreshToken(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateRefreshToken(context.Background(), &models.RefreshToken{
		UserID:    "u1",
		Token:     "token",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRevokeUserRefreshTokens(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE user_id = $1 AND revoked = FALSE")).
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := repo.RevokeUserRefreshTokens(context.Background(), "u1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
