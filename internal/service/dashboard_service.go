package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/export"
)

type dashboardPlanStore interface {
	StateCounts(ctx context.Context, filter models.PlanFilter) (map[models.PlanState]int, error)
	List(ctx context.Context, filter models.PlanFilter) ([]models.PlanListItem, int, error)
}

type dashboardUserStore interface {
	CountByRoleAndSchool(ctx context.Context, role models.UserRole, schoolID string) (int, error)
}

type dashboardSchoolStore interface {
	Count(ctx context.Context) (int, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type cacheMetricsRecorder interface {
	RecordCacheOperation(hit bool, duration time.Duration)
}

// DashboardService computes role-scoped plan summaries and the dean's faculty
// report. Summaries are cached in Redis; the plan service drops the cache on
// every workflow transition.
type DashboardService struct {
	plans    dashboardPlanStore
	users    dashboardUserStore
	schools  dashboardSchoolStore
	cache    dashboardCache
	metrics  cacheMetricsRecorder
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewDashboardService constructs a DashboardService instance.
func NewDashboardService(
	plans dashboardPlanStore,
	users dashboardUserStore,
	schools dashboardSchoolStore,
	cache dashboardCache,
	metrics cacheMetricsRecorder,
	cacheTTL time.Duration,
	logger *zap.Logger,
) *DashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{
		plans:    plans,
		users:    users,
		schools:  schools,
		cache:    cache,
		metrics:  metrics,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Summary returns the plan summary for the actor's scope, served from cache
// when fresh.
func (s *DashboardService) Summary(ctx context.Context, actor *models.JWTClaims) (*models.DashboardSummary, error) {
	key := fmt.Sprintf("dashboard:%s:%s", actor.Role, actor.UserID)

	if s.cache != nil {
		start := time.Now()
		var cached models.DashboardSummary
		err := s.cache.Get(ctx, key, &cached)
		if s.metrics != nil {
			s.metrics.RecordCacheOperation(err == nil, time.Since(start))
		}
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	summary, err := s.compute(ctx, actor)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

func (s *DashboardService) compute(ctx context.Context, actor *models.JWTClaims) (*models.DashboardSummary, error) {
	filter := models.PlanFilter{}
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.UserID
	case models.RoleDirector:
		filter.CreatedBy = actor.UserID
	case models.RoleDean:
		if actor.SchoolID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "dean has no faculty assigned")
		}
		filter.SchoolID = *actor.SchoolID
	}

	counts, err := s.plans.StateCounts(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate plans")
	}

	summary := &models.DashboardSummary{
		Role:        actor.Role,
		SchoolID:    actor.SchoolID,
		PlanCounts:  counts,
		ActivePlans: counts[models.PlanStateActive],
		PendingDean: counts[models.PlanStatePendingDean],
		GeneratedAt: time.Now().UTC(),
	}
	for _, c := range counts {
		summary.TotalPlans += c
	}

	switch actor.Role {
	case models.RoleDean:
		teachers, err := s.users.CountByRoleAndSchool(ctx, models.RoleTeacher, *actor.SchoolID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
		}
		summary.Teachers = teachers
	case models.RoleAdmin:
		teachers, err := s.users.CountByRoleAndSchool(ctx, models.RoleTeacher, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count teachers")
		}
		summary.Teachers = teachers
		schools, err := s.schools.Count(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count schools")
		}
		summary.Schools = schools
	}

	return summary, nil
}

// FacultyReport lists the plans of the dean's faculty for reporting.
func (s *DashboardService) FacultyReport(ctx context.Context, actor *models.JWTClaims) ([]models.PlanListItem, error) {
	if actor.Role != models.RoleDean {
		return nil, appErrors.ErrRoleMismatch
	}
	if actor.SchoolID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "dean has no faculty assigned")
	}

	plans, _, err := s.plans.List(ctx, models.PlanFilter{SchoolID: *actor.SchoolID, PageSize: 100})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build faculty report")
	}
	if plans == nil {
		plans = []models.PlanListItem{}
	}
	return plans, nil
}

// ExportFacultyReport renders the dean's faculty report as CSV or PDF bytes
// along with a content type.
func (s *DashboardService) ExportFacultyReport(ctx context.Context, actor *models.JWTClaims, format string) ([]byte, string, error) {
	plans, err := s.FacultyReport(ctx, actor)
	if err != nil {
		return nil, "", err
	}

	table := export.Table{
		Columns: []string{"Plan", "Docente", "Estado", "Creado", "Actualizado"},
	}
	for _, p := range plans {
		table.Records = append(table.Records, []string{
			p.Title,
			p.TeacherName,
			string(p.State),
			p.CreatedAt.Format("2006-01-02"),
			p.UpdatedAt.Format("2006-01-02"),
		})
	}

	switch format {
	case "csv", "":
		payload, err := export.CSV(table)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv report")
		}
		return payload, "text/csv", nil
	case "pdf":
		payload, err := export.PDF(table, "Planes de mejora de la facultad")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf report")
		}
		return payload, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
