package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

type actionStore interface {
	FindByID(ctx context.Context, id string) (*models.Action, error)
	Create(ctx context.Context, action *models.Action) error
	UpdateState(ctx context.Context, id string, state models.ActionState) error
	ListByPlan(ctx context.Context, planID string) ([]models.Action, error)
}

type actionPlanLookup interface {
	FindByID(ctx context.Context, id string) (*models.Plan, error)
}

// CreateActionRequest is the payload for adding an action to a plan.
type CreateActionRequest struct {
	Description string     `json:"description" validate:"required"`
	TargetDate  *time.Time `json:"target_date,omitempty"`
}

// UpdateActionStateRequest is the payload for moving an action between
// states.
type UpdateActionStateRequest struct {
	State models.ActionState `json:"estado" validate:"required"`
}

// ActionService manages the remediation checklist of plans. The checklist is
// not gated on the plan state, so staff can keep correcting it after a plan
// is decided or closed.
type ActionService struct {
	actions    actionStore
	plans      actionPlanLookup
	strictFlow bool
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewActionService constructs an ActionService instance. With strictFlow set,
// action states only advance one step at a time in declaration order.
func NewActionService(actions actionStore, plans actionPlanLookup, strictFlow bool, validate *validator.Validate, logger *zap.Logger) *ActionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionService{
		actions:    actions,
		plans:      plans,
		strictFlow: strictFlow,
		validator:  validate,
		logger:     logger,
	}
}

// Create adds a new action to a plan.
func (s *ActionService) Create(ctx context.Context, actor *models.JWTClaims, planID string, req CreateActionRequest) (*models.Action, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid action payload")
	}

	plan, err := s.loadPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, plan); err != nil {
		return nil, err
	}

	action := &models.Action{
		PlanID:      plan.ID,
		Description: req.Description,
		State:       models.ActionStatePending,
		TargetDate:  req.TargetDate,
	}
	if err := s.actions.Create(ctx, action); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create action")
	}
	return action, nil
}

// UpdateState moves an action to a new checklist state.
func (s *ActionService) UpdateState(ctx context.Context, actor *models.JWTClaims, actionID string, req UpdateActionStateRequest) (*models.Action, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid action state payload")
	}
	if !req.State.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown action state")
	}

	action, err := s.actions.FindByID(ctx, actionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}

	plan, err := s.loadPlan(ctx, action.PlanID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(actor, plan); err != nil {
		return nil, err
	}

	if s.strictFlow && !isNextActionState(action.State, req.State) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "action state must advance one step at a time")
	}

	if err := s.actions.UpdateState(ctx, action.ID, req.State); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update action state")
	}
	action.State = req.State
	action.UpdatedAt = time.Now().UTC()
	return action, nil
}

// ListByPlan returns the actions of a plan, oldest first.
func (s *ActionService) ListByPlan(ctx context.Context, planID string) ([]models.Action, error) {
	if _, err := s.plans.FindByID(ctx, planID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	actions, err := s.actions.ListByPlan(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list actions")
	}
	if actions == nil {
		actions = []models.Action{}
	}
	return actions, nil
}

func (s *ActionService) loadPlan(ctx context.Context, planID string) (*models.Plan, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	return plan, nil
}

// authorize allows the plan's teacher, its creator and administrators.
func (s *ActionService) authorize(actor *models.JWTClaims, plan *models.Plan) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.UserID == plan.TeacherID || actor.UserID == plan.CreatedByID {
		return nil
	}
	return appErrors.ErrForbidden
}

func isNextActionState(from, to models.ActionState) bool {
	switch from {
	case models.ActionStatePending:
		return to == models.ActionStateInProgress
	case models.ActionStateInProgress:
		return to == models.ActionStateCompleted
	}
	return false
}
