package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sgpm-api/internal/models"
)

func TestAuditCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectExec("INSERT INTO audit_logs").WillReturnResult(sqlmock.NewResult(1, 1))

	userID := "u1"
	entry := &models.AuditLog{
		UserID:      &userID,
		Action:      models.AuditActionPlanAssigned,
		Resource:    "planes_mejora",
		Description: "Plan asignado",
	}
	err := repo.Create(context.Background(), entry)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditQueryWithFilters(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	now := time.Now()
	userID := "u1"
	rows := sqlmock.NewRows([]string{"id", "user_id", "action", "resource", "resource_id", "description", "affected_label", "old_values", "new_values", "ip_address", "user_agent", "created_at"}).
		AddRow("a1", userID, models.AuditActionPlanApproved, "planes_mejora", nil, "El decano aprobo el plan", nil, nil, nil, "", "", now)
	mock.ExpectQuery("SELECT id, user_id, action, resource").
		WithArgs("planes_mejora", models.AuditActionPlanApproved).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE 1=1 AND resource = $1 AND action = $2")).
		WithArgs("planes_mejora", models.AuditActionPlanApproved).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	logs, total, err := repo.Query(context.Background(), models.AuditFilter{
		Resource: "planes_mejora",
		Action:   models.AuditActionPlanApproved,
	})
	require.NoError(t, err)
	assert.Len(t, logs, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditStatistics(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_logs WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery("SELECT resource AS key").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow("planes_mejora", 5).AddRow("auth", 2))
	mock.ExpectQuery("SELECT action AS key").
		WillReturnRows(sqlmock.NewRows([]string{"key", "count"}).AddRow(models.AuditActionPlanApproved, 4).AddRow(models.AuditActionLogin, 3))
	mock.ExpectQuery("SELECT user_id, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "count"}).AddRow("u1", 6))

	stats, err := repo.Statistics(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 5, stats.CountsByResource["planes_mejora"])
	assert.Equal(t, 4, stats.CountsByAction[models.AuditActionPlanApproved])
	require.Len(t, stats.TopActors, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
