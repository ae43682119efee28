package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

type stubActionStore struct {
	actions map[string]*models.Action
}

func (s *stubActionStore) FindByID(ctx context.Context, id string) (*models.Action, error) {
	if a, ok := s.actions[id]; ok {
		copy := *a
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubActionStore) Create(ctx context.Context, action *models.Action) error {
	if s.actions == nil {
		s.actions = make(map[string]*models.Action)
	}
	if action.ID == "" {
		action.ID = "generated-action-id"
	}
	copy := *action
	s.actions[action.ID] = &copy
	return nil
}

func (s *stubActionStore) UpdateState(ctx context.Context, id string, state models.ActionState) error {
	a, ok := s.actions[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.State = state
	return nil
}

func (s *stubActionStore) ListByPlan(ctx context.Context, planID string) ([]models.Action, error) {
	var out []models.Action
	for _, a := range s.actions {
		if a.PlanID == planID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type actionFixture struct {
	actions *stubActionStore
	plans   *stubPlanStore
}

func newActionFixture(planState models.PlanState) *actionFixture {
	f := &actionFixture{
		actions: &stubActionStore{actions: make(map[string]*models.Action)},
		plans:   &stubPlanStore{plans: make(map[string]*models.Plan)},
	}
	f.plans.plans["plan-1"] = &models.Plan{
		ID:          "plan-1",
		Title:       "Mejorar evaluaciones",
		State:       planState,
		TeacherID:   teacherID,
		CreatedByID: directorID,
	}
	return f
}

func (f *actionFixture) service(strictFlow bool) *ActionService {
	return NewActionService(f.actions, f.plans, strictFlow, validator.New(), zap.NewNop())
}

func teacherClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: teacherID, Role: models.RoleTeacher, SchoolID: strPtr(schoolA)}
}

func TestActionCreateOnActivePlan(t *testing.T) {
	f := newActionFixture(models.PlanStateActive)

	action, err := f.service(false).Create(context.Background(), teacherClaims(), "plan-1", CreateActionRequest{
		Description: "Asistir al taller de rubricas",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStatePending, action.State)
	assert.Equal(t, "plan-1", action.PlanID)
}

func TestActionCreateIgnoresPlanState(t *testing.T) {
	for _, state := range []models.PlanState{
		models.PlanStatePendingDean,
		models.PlanStateRejectedByDean,
		models.PlanStateClosed,
	} {
		f := newActionFixture(state)

		action, err := f.service(false).Create(context.Background(), teacherClaims(), "plan-1", CreateActionRequest{
			Description: "Asistir al taller",
		})
		require.NoError(t, err, "state %s", state)
		assert.Equal(t, models.ActionStatePending, action.State)
	}
}

func TestActionCreateUnknownPlan(t *testing.T) {
	f := newActionFixture(models.PlanStateActive)

	_, err := f.service(false).Create(context.Background(), teacherClaims(), "missing-plan", CreateActionRequest{
		Description: "Asistir al taller",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestActionCreateByOutsider(t *testing.T) {
	f := newActionFixture(models.PlanStateActive)
	actor := &models.JWTClaims{UserID: "someone-else", Role: models.RoleTeacher}

	_, err := f.service(false).Create(context.Background(), actor, "plan-1", CreateActionRequest{
		Description: "Asistir al taller",
	})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestActionUpdateStateFreeFlow(t *testing.T) {
	f := newActionFixture(models.PlanStateActive)
	f.actions.actions["action-1"] = &models.Action{ID: "action-1", PlanID: "plan-1", State: models.ActionStatePending}

	action, err := f.service(false).UpdateState(context.Background(), teacherClaims(), "action-1", UpdateActionStateRequest{
		State: models.ActionStateCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateCompleted, action.State)
}

func TestActionUpdateStateStrictFlowRejectsSkip(t *testing.T) {
	f := newActionFixture(models.PlanStateActive)
	f.actions.actions["action-1"] = &models.Action{ID: "action-1", PlanID: "plan-1", State: models.ActionStatePending}

	_, err := f.service(true).UpdateState(context.Background(), teacherClaims(), "action-1", UpdateActionStateRequest{
		State: models.ActionStateCompleted,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestActionUpdateStateStrictFlowAdvances(t *testing.T) {
	f := newActionFixture(models.PlanStateActive)
	f.actions.actions["action-1"] = &models.Action{ID: "action-1", PlanID: "plan-1", State: models.ActionStatePending}

	action, err := f.service(true).UpdateState(context.Background(), teacherClaims(), "action-1", UpdateActionStateRequest{
		State: models.ActionStateInProgress,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateInProgress, action.State)
}

func TestActionUpdateStateUnknownState(t *testing.T) {
	f := newActionFixture(models.PlanStateActive)
	f.actions.actions["action-1"] = &models.Action{ID: "action-1", PlanID: "plan-1", State: models.ActionStatePending}

	_, err := f.service(false).UpdateState(context.Background(), teacherClaims(), "action-1", UpdateActionStateRequest{
		State: models.ActionState("Terminada"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestActionUpdateStateOnClosedPlan(t *testing.T) {
	f := newActionFixture(models.PlanStateClosed)
	f.actions.actions["action-1"] = &models.Action{ID: "action-1", PlanID: "plan-1", State: models.ActionStateInProgress}

	action, err := f.service(false).UpdateState(context.Background(), teacherClaims(), "action-1", UpdateActionStateRequest{
		State: models.ActionStateCompleted,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ActionStateCompleted, action.State)
}

func TestActionListByPlanUnknownPlan(t *testing.T) {
	f := newActionFixture(models.PlanStateActive)

	_, err := f.service(false).ListByPlan(context.Background(), "missing-plan")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
