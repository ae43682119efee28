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

// ActionRepository manages persistence for plan actions.
type ActionRepository struct {
	db *sqlx.DB
}

// NewActionRepository constructs a new repository.
func NewActionRepository(db *sqlx.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// FindByID returns an action by identifier.
func (r *ActionRepository) FindByID(ctx context.Context, id string) (*models.Action, error) {
	const query = `SELECT id, plan_id, description, estado, target_date, created_at, updated_at
FROM plan_acciones WHERE id = $1 LIMIT 1`
	var action models.Action
	if err := r.db.GetContext(ctx, &action, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find action by id: %w", err)
	}
	return &action, nil
}

// Create inserts a new action in the Pendiente state.
func (r *ActionRepository) Create(ctx context.Context, action *models.Action) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.State == "" {
		action.State = models.ActionStatePending
	}
	now := time.Now().UTC()
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	action.UpdatedAt = now
	const query = `INSERT INTO plan_acciones (id, plan_id, description, estado, target_date, created_at, updated_at)
VALUES (:id, :plan_id, :description, :estado, :target_date, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, action); err != nil {
		return fmt.Errorf("create action: %w", err)
	}
	return nil
}

// UpdateState sets the action state.
func (r *ActionRepository) UpdateState(ctx context.Context, id string, state models.ActionState) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE plan_acciones SET estado = $1, updated_at = $2 WHERE id = $3`,
		state, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update action state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update action rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByPlan returns all actions belonging to a plan, oldest first.
func (r *ActionRepository) ListByPlan(ctx context.Context, planID string) ([]models.Action, error) {
	const query = `SELECT id, plan_id, description, estado, target_date, created_at, updated_at
FROM plan_acciones WHERE plan_id = $1 ORDER BY created_at ASC`
	var actions []models.Action
	if err := r.db.SelectContext(ctx, &actions, query, planID); err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	return actions, nil
}
