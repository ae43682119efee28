package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

type stubDashboardPlans struct {
	counts     map[models.PlanState]int
	countCalls int
	items      []models.PlanListItem
}

func (s *stubDashboardPlans) StateCounts(ctx context.Context, filter models.PlanFilter) (map[models.PlanState]int, error) {
	s.countCalls++
	return s.counts, nil
}

func (s *stubDashboardPlans) List(ctx context.Context, filter models.PlanFilter) ([]models.PlanListItem, int, error) {
	return s.items, len(s.items), nil
}

type stubDashboardUsers struct {
	teachers int
}

func (s *stubDashboardUsers) CountByRoleAndSchool(ctx context.Context, role models.UserRole, schoolID string) (int, error) {
	return s.teachers, nil
}

type stubDashboardSchools struct {
	total int
}

func (s *stubDashboardSchools) Count(ctx context.Context) (int, error) {
	return s.total, nil
}

type memoryCache struct {
	entries map[string][]byte
}

func (c *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c.entries == nil {
		c.entries = make(map[string][]byte)
	}
	c.entries[key] = raw
	return nil
}

type recordingMetrics struct {
	hits   int
	misses int
}

func (m *recordingMetrics) RecordCacheOperation(hit bool, duration time.Duration) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func TestDashboardSummaryCachesResult(t *testing.T) {
	plans := &stubDashboardPlans{counts: map[models.PlanState]int{
		models.PlanStateActive:      3,
		models.PlanStatePendingDean: 2,
		models.PlanStateClosed:      1,
	}}
	cache := &memoryCache{}
	metrics := &recordingMetrics{}
	svc := NewDashboardService(plans, &stubDashboardUsers{teachers: 12}, &stubDashboardSchools{total: 4}, cache, metrics, time.Minute, zap.NewNop())

	actor := deanClaims()
	first, err := svc.Summary(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, 6, first.TotalPlans)
	assert.Equal(t, 3, first.ActivePlans)
	assert.Equal(t, 2, first.PendingDean)
	assert.Equal(t, 12, first.Teachers)

	second, err := svc.Summary(context.Background(), actor)
	require.NoError(t, err)
	assert.Equal(t, first.TotalPlans, second.TotalPlans)

	// The second call is served from cache, not recomputed.
	assert.Equal(t, 1, plans.countCalls)
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)
}

func TestDashboardSummaryAdminIncludesSchools(t *testing.T) {
	plans := &stubDashboardPlans{counts: map[models.PlanState]int{models.PlanStateActive: 1}}
	svc := NewDashboardService(plans, &stubDashboardUsers{teachers: 40}, &stubDashboardSchools{total: 5}, nil, nil, time.Minute, zap.NewNop())

	summary, err := svc.Summary(context.Background(), adminClaims())
	require.NoError(t, err)
	assert.Equal(t, 40, summary.Teachers)
	assert.Equal(t, 5, summary.Schools)
}

func TestDashboardSummaryDeanWithoutFaculty(t *testing.T) {
	svc := NewDashboardService(&stubDashboardPlans{}, &stubDashboardUsers{}, &stubDashboardSchools{}, nil, nil, time.Minute, zap.NewNop())
	actor := &models.JWTClaims{UserID: deanID, Role: models.RoleDean}

	_, err := svc.Summary(context.Background(), actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFacultyReportDeanOnly(t *testing.T) {
	svc := NewDashboardService(&stubDashboardPlans{}, &stubDashboardUsers{}, &stubDashboardSchools{}, nil, nil, time.Minute, zap.NewNop())

	_, err := svc.FacultyReport(context.Background(), directorClaims())
	assert.ErrorIs(t, err, appErrors.ErrRoleMismatch)
}

func TestExportFacultyReportCSV(t *testing.T) {
	plans := &stubDashboardPlans{items: []models.PlanListItem{
		{
			Plan:        models.Plan{Title: "Mejorar evaluaciones", State: models.PlanStateActive},
			TeacherName: "Prof. Vega",
		},
	}}
	svc := NewDashboardService(plans, &stubDashboardUsers{}, &stubDashboardSchools{}, nil, nil, time.Minute, zap.NewNop())

	payload, contentType, err := svc.ExportFacultyReport(context.Background(), deanClaims(), "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", contentType)

	body := string(payload)
	assert.True(t, strings.HasPrefix(body, "Plan,Docente,Estado"))
	assert.Contains(t, body, "Mejorar evaluaciones")
	assert.Contains(t, body, "Prof. Vega")
}

func TestExportFacultyReportPDF(t *testing.T) {
	plans := &stubDashboardPlans{items: []models.PlanListItem{
		{Plan: models.Plan{Title: "Mejorar evaluaciones", State: models.PlanStateActive}, TeacherName: "Prof. Vega"},
	}}
	svc := NewDashboardService(plans, &stubDashboardUsers{}, &stubDashboardSchools{}, nil, nil, time.Minute, zap.NewNop())

	payload, contentType, err := svc.ExportFacultyReport(context.Background(), deanClaims(), "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", contentType)
	assert.True(t, strings.HasPrefix(string(payload), "%PDF"))
}

func TestExportFacultyReportUnknownFormat(t *testing.T) {
	svc := NewDashboardService(&stubDashboardPlans{}, &stubDashboardUsers{}, &stubDashboardSchools{}, nil, nil, time.Minute, zap.NewNop())

	_, _, err := svc.ExportFacultyReport(context.Background(), deanClaims(), "xlsx")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
