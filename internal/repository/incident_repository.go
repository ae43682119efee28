package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sgpm-api/internal/models"
)

// IncidentRepository manages persistence for recorded incidents.
type IncidentRepository struct {
	db *sqlx.DB
}

// NewIncidentRepository constructs a new repository.
func NewIncidentRepository(db *sqlx.DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// FindByID returns an incident by identifier.
func (r *IncidentRepository) FindByID(ctx context.Context, id string) (*models.Incident, error) {
	const query = `SELECT id, description, teacher_id, estado, created_at FROM incidencias WHERE id = $1 LIMIT 1`
	var incident models.Incident
	if err := r.db.GetContext(ctx, &incident, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find incident by id: %w", err)
	}
	return &incident, nil
}

// Create inserts a new incident in the Pendiente state.
func (r *IncidentRepository) Create(ctx context.Context, incident *models.Incident) error {
	if incident.ID == "" {
		incident.ID = uuid.NewString()
	}
	if incident.State == "" {
		incident.State = models.IncidentStatePending
	}
	if incident.CreatedAt.IsZero() {
		incident.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO incidencias (id, description, teacher_id, estado, created_at)
VALUES (:id, :description, :teacher_id, :estado, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, incident); err != nil {
		return fmt.Errorf("create incident: %w", err)
	}
	return nil
}

// List returns incidents, newest first.
func (r *IncidentRepository) List(ctx context.Context, teacherID string) ([]models.Incident, error) {
	query := `SELECT id, description, teacher_id, estado, created_at FROM incidencias`
	var args []interface{}
	if teacherID != "" {
		query += ` WHERE teacher_id = $1`
		args = append(args, teacherID)
	}
	query += ` ORDER BY created_at DESC`
	var incidents []models.Incident
	if err := r.db.SelectContext(ctx, &incidents, query, args...); err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	return incidents, nil
}

// UpdateState sets the incident review state.
func (r *IncidentRepository) UpdateState(ctx context.Context, id string, state models.IncidentState) error {
	res, err := r.db.ExecContext(ctx, `UPDATE incidencias SET estado = $1 WHERE id = $2`, state, id)
	if err != nil {
		return fmt.Errorf("update incident state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update incident rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
