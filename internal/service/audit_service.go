package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

type auditLogRepository interface {
	Create(ctx context.Context, log *models.AuditLog) error
	Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error)
	Statistics(ctx context.Context, from, to *time.Time) (*models.AuditStatistics, error)
}

// AuditService records and queries the audit trail.
type AuditService struct {
	repo   auditLogRepository
	logger *zap.Logger
}

// NewAuditService constructs an AuditService instance.
func NewAuditService(repo auditLogRepository, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// Record persists an audit entry. Failures are logged and swallowed: an audit
// write must never fail the business operation that triggered it.
func (s *AuditService) Record(ctx context.Context, entry *models.AuditLog) {
	if entry == nil {
		return
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry",
			zap.String("action", entry.Action),
			zap.String("resource", entry.Resource),
			zap.Error(err))
	}
}

// Query returns audit records matching the filter with a total count.
func (s *AuditService) Query(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, int, error) {
	logs, total, err := s.repo.Query(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to query audit trail")
	}
	return logs, total, nil
}

// Statistics aggregates audit activity for an optional date range.
func (s *AuditService) Statistics(ctx context.Context, from, to *time.Time) (*models.AuditStatistics, error) {
	stats, err := s.repo.Statistics(ctx, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute audit statistics")
	}
	return stats, nil
}
