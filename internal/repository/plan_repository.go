package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sgpm-api/internal/models"
)

// ErrStateConflict is returned when a guarded transition finds the plan in a
// state other than the expected one. The service layer maps it to the
// INVALID_STATE domain error, which is what a losing concurrent caller sees.
var ErrStateConflict = errors.New("plan not in expected state")

// PlanRepository manages persistence for improvement plans and their
// append-only approval ledger.
type PlanRepository struct {
	db *sqlx.DB
}

// NewPlanRepository constructs a new repository.
func NewPlanRepository(db *sqlx.DB) *PlanRepository {
	return &PlanRepository{db: db}
}

const planColumns = `id, title, description, estado, teacher_id, created_by, incident_id, created_at, updated_at`

// FindByID returns a plan by identifier.
func (r *PlanRepository) FindByID(ctx context.Context, id string) (*models.Plan, error) {
	query := fmt.Sprintf(`SELECT %s FROM planes_mejora WHERE id = $1 LIMIT 1`, planColumns)
	var plan models.Plan
	if err := r.db.GetContext(ctx, &plan, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find plan by id: %w", err)
	}
	return &plan, nil
}

// List returns plans joined with teacher and faculty context per the filter.
func (r *PlanRepository) List(ctx context.Context, filter models.PlanFilter) ([]models.PlanListItem, int, error) {
	base := `FROM planes_mejora p
        JOIN users u ON u.id = p.teacher_id
        LEFT JOIN schools s ON s.id = u.school_id
        WHERE 1=1`
	var args []interface{}
	if filter.State != "" {
		base += fmt.Sprintf(" AND p.estado = $%d", len(args)+1)
		args = append(args, filter.State)
	}
	if filter.TeacherID != "" {
		base += fmt.Sprintf(" AND p.teacher_id = $%d", len(args)+1)
		args = append(args, filter.TeacherID)
	}
	if filter.SchoolID != "" {
		base += fmt.Sprintf(" AND u.school_id = $%d", len(args)+1)
		args = append(args, filter.SchoolID)
	}
	if filter.CreatedBy != "" {
		base += fmt.Sprintf(" AND p.created_by = $%d", len(args)+1)
		args = append(args, filter.CreatedBy)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT p.id, p.title, p.description, p.estado, p.teacher_id, p.created_by, p.incident_id, p.created_at, p.updated_at,
        u.full_name AS teacher_name, u.school_id, s.name AS school_name
%s ORDER BY p.created_at DESC LIMIT %d OFFSET %d`, base, size, offset)
	var plans []models.PlanListItem
	if err := r.db.SelectContext(ctx, &plans, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list plans: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count plans: %w", err)
	}
	return plans, total, nil
}

// Create inserts a new plan.
func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now
	const query = `INSERT INTO planes_mejora (id, title, description, estado, teacher_id, created_by, incident_id, created_at, updated_at)
VALUES (:id, :title, :description, :estado, :teacher_id, :created_by, :incident_id, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, plan); err != nil {
		return fmt.Errorf("create plan: %w", err)
	}
	return nil
}

// Transition atomically moves a plan from one state to another, optionally
// appending an approval ledger entry in the same transaction. The UPDATE is
// guarded on the expected source state: when a concurrent caller already
// changed it, zero rows match and ErrStateConflict is returned with nothing
// written. This is what keeps two simultaneous dean decisions from both
// succeeding.
func (r *PlanRepository) Transition(ctx context.Context, planID string, from, to models.PlanState, approval *models.Approval) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin plan transition: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE planes_mejora SET estado = $1, updated_at = $2 WHERE id = $3 AND estado = $4`,
		to, time.Now().UTC(), planID, from)
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("transition plan state: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("transition rows affected: %w", err)
	}
	if affected == 0 {
		tx.Rollback() //nolint:errcheck
		return ErrStateConflict
	}

	if approval != nil {
		if err := insertApproval(ctx, tx, approval); err != nil {
			tx.Rollback() //nolint:errcheck
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit plan transition: %w", err)
	}
	return nil
}

// RecordDecision appends an approval ledger entry and, when newState is
// non-empty, updates the plan state in the same transaction without a source
// guard. This backs the legacy single-step approval path, which predates the
// dean workflow and never checked the previous state.
func (r *PlanRepository) RecordDecision(ctx context.Context, planID string, newState models.PlanState, approval *models.Approval) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin plan decision: %w", err)
	}

	if err := insertApproval(ctx, tx, approval); err != nil {
		tx.Rollback() //nolint:errcheck
		return err
	}

	if newState != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE planes_mejora SET estado = $1, updated_at = $2 WHERE id = $3`,
			newState, time.Now().UTC(), planID); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("update plan state: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit plan decision: %w", err)
	}
	return nil
}

// Close marks a plan closed. Only existence is checked.
func (r *PlanRepository) Close(ctx context.Context, planID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE planes_mejora SET estado = $1, updated_at = $2 WHERE id = $3`,
		models.PlanStateClosed, time.Now().UTC(), planID)
	if err != nil {
		return fmt.Errorf("close plan: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close plan rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func insertApproval(ctx context.Context, tx *sqlx.Tx, approval *models.Approval) error {
	if approval.ID == "" {
		approval.ID = uuid.NewString()
	}
	if approval.CreatedAt.IsZero() {
		approval.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO aprobaciones (id, plan_id, nivel, aprobado, comentario, approved_by, created_at)
VALUES (:id, :plan_id, :nivel, :aprobado, :comentario, :approved_by, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, approval); err != nil {
		return fmt.Errorf("insert approval: %w", err)
	}
	return nil
}

// ListApprovals returns the approval ledger for a plan, oldest first.
func (r *PlanRepository) ListApprovals(ctx context.Context, planID string) ([]models.Approval, error) {
	const query = `SELECT id, plan_id, nivel, aprobado, comentario, approved_by, created_at
FROM aprobaciones WHERE plan_id = $1 ORDER BY created_at ASC`
	var approvals []models.Approval
	if err := r.db.SelectContext(ctx, &approvals, query, planID); err != nil {
		return nil, fmt.Errorf("list approvals: %w", err)
	}
	return approvals, nil
}

// HasApprovalAtLevel reports whether the plan already holds a ledger entry
// recorded at the given level.
func (r *PlanRepository) HasApprovalAtLevel(ctx context.Context, planID string, level models.UserRole) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM aprobaciones WHERE plan_id = $1 AND nivel = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, planID, level); err != nil {
		return false, fmt.Errorf("check approval level: %w", err)
	}
	return exists, nil
}

// StateCounts aggregates plans per state, optionally scoped by faculty,
// teacher or creator. The dashboard service is the only consumer.
func (r *PlanRepository) StateCounts(ctx context.Context, filter models.PlanFilter) (map[models.PlanState]int, error) {
	base := `FROM planes_mejora p JOIN users u ON u.id = p.teacher_id WHERE 1=1`
	var args []interface{}
	if filter.SchoolID != "" {
		base += fmt.Sprintf(" AND u.school_id = $%d", len(args)+1)
		args = append(args, filter.SchoolID)
	}
	if filter.TeacherID != "" {
		base += fmt.Sprintf(" AND p.teacher_id = $%d", len(args)+1)
		args = append(args, filter.TeacherID)
	}
	if filter.CreatedBy != "" {
		base += fmt.Sprintf(" AND p.created_by = $%d", len(args)+1)
		args = append(args, filter.CreatedBy)
	}

	type bucket struct {
		State models.PlanState `db:"estado"`
		Count int              `db:"count"`
	}
	query := fmt.Sprintf("SELECT p.estado, COUNT(*) AS count %s GROUP BY p.estado", base)
	var buckets []bucket
	if err := r.db.SelectContext(ctx, &buckets, query, args...); err != nil {
		return nil, fmt.Errorf("plan state counts: %w", err)
	}

	counts := make(map[models.PlanState]int, len(buckets))
	for _, b := range buckets {
		counts[b.State] = b.Count
	}
	return counts, nil
}

// DeleteApproval removes one ledger entry. Reserved for the administrative
// audit-cleanup flow; the workflow engine never calls it.
func (r *PlanRepository) DeleteApproval(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM aprobaciones WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete approval: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete approval rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
