package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sgpm-api/internal/models"
)

// AuditRepository manages persistence for the audit trail.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs a new repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create stores an audit log entry.
func (r *AuditRepository) Create(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, description, affected_label, old_values, new_values, ip_address, user_agent, created_at)
VALUES (:id, :user_id, :action, :resource, :resource_id, :description, :affected_label, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// Query returns audit records matching the filter with a total count.
func (r *AuditRepository) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	base := "FROM audit_logs WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Resource != "" {
		conditions = append(conditions, fmt.Sprintf("resource = $%d", len(args)+1))
		args = append(args, filter.Resource)
	}
	if filter.Action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, filter.Action)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}
	if filter.DateFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("LOWER(description) LIKE $%d", len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, user_id, action, resource, resource_id, description, affected_label, old_values, new_values, ip_address, user_agent, created_at
%s ORDER BY created_at DESC LIMIT %d OFFSET %d`, base, size, offset)
	var logs []models.AuditLog
	if err := r.db.SelectContext(ctx, &logs, query, args...); err != nil {
		return nil, 0, fmt.Errorf("query audit logs: %w", err)
	}

	countQuery := "SELECT COUNT(*) " + base
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count audit logs: %w", err)
	}
	return logs, total, nil
}

// Statistics aggregates audit activity within an optional date range.
func (r *AuditRepository) Statistics(ctx context.Context, from, to *time.Time) (*models.AuditStatistics, error) {
	where := "WHERE 1=1"
	var args []interface{}
	if from != nil {
		where += fmt.Sprintf(" AND created_at >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		where += fmt.Sprintf(" AND created_at <= $%d", len(args)+1)
		args = append(args, *to)
	}

	stats := &models.AuditStatistics{
		CountsByResource: map[string]int{},
		CountsByAction:   map[string]int{},
	}

	if err := r.db.GetContext(ctx, &stats.Total, "SELECT COUNT(*) FROM audit_logs "+where, args...); err != nil {
		return nil, fmt.Errorf("audit total: %w", err)
	}

	type bucket struct {
		Key   string `db:"key"`
		Count int    `db:"count"`
	}

	var byResource []bucket
	resourceQuery := fmt.Sprintf("SELECT resource AS key, COUNT(*) AS count FROM audit_logs %s GROUP BY resource", where)
	if err := r.db.SelectContext(ctx, &byResource, resourceQuery, args...); err != nil {
		return nil, fmt.Errorf("audit counts by resource: %w", err)
	}
	for _, b := range byResource {
		stats.CountsByResource[b.Key] = b.Count
	}

	var byAction []bucket
	actionQuery := fmt.Sprintf("SELECT action AS key, COUNT(*) AS count FROM audit_logs %s GROUP BY action", where)
	if err := r.db.SelectContext(ctx, &byAction, actionQuery, args...); err != nil {
		return nil, fmt.Errorf("audit counts by action: %w", err)
	}
	for _, b := range byAction {
		stats.CountsByAction[b.Key] = b.Count
	}

	topQuery := fmt.Sprintf(`SELECT user_id, COUNT(*) AS count FROM audit_logs %s AND user_id IS NOT NULL
GROUP BY user_id ORDER BY count DESC LIMIT 5`, where)
	if err := r.db.SelectContext(ctx, &stats.TopActors, topQuery, args...); err != nil {
		return nil, fmt.Errorf("audit top actors: %w", err)
	}

	return stats, nil
}
