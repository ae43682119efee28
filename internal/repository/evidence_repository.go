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

// EvidenceRepository manages persistence for evidence uploads. Rows are
// insert-only; there is no update path.
type EvidenceRepository struct {
	db *sqlx.DB
}

// NewEvidenceRepository constructs a new repository.
func NewEvidenceRepository(db *sqlx.DB) *EvidenceRepository {
	return &EvidenceRepository{db: db}
}

// Create inserts a new evidence record.
func (r *EvidenceRepository) Create(ctx context.Context, evidence *models.Evidence) error {
	if evidence.ID == "" {
		evidence.ID = uuid.NewString()
	}
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO evidencias (id, action_id, filename, path, comment, uploaded_by, created_at)
VALUES (:id, :action_id, :filename, :path, :comment, :uploaded_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, evidence); err != nil {
		return fmt.Errorf("create evidence: %w", err)
	}
	return nil
}

// FindByID returns an evidence record by identifier.
func (r *EvidenceRepository) FindByID(ctx context.Context, id string) (*models.Evidence, error) {
	const query = `SELECT id, action_id, filename, path, comment, uploaded_by, created_at
FROM evidencias WHERE id = $1 LIMIT 1`
	var evidence models.Evidence
	if err := r.db.GetContext(ctx, &evidence, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find evidence by id: %w", err)
	}
	return &evidence, nil
}

// ListByAction returns all evidence attached to an action, oldest first.
func (r *EvidenceRepository) ListByAction(ctx context.Context, actionID string) ([]models.Evidence, error) {
	const query = `SELECT id, action_id, filename, path, comment, uploaded_by, created_at
FROM evidencias WHERE action_id = $1 ORDER BY created_at ASC`
	var evidences []models.Evidence
	if err := r.db.SelectContext(ctx, &evidences, query, actionID); err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	return evidences, nil
}
