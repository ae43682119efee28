package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	"github.com/noah-isme/sgpm-api/internal/repository"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

type planStore interface {
	FindByID(ctx context.Context, id string) (*models.Plan, error)
	List(ctx context.Context, filter models.PlanFilter) ([]models.PlanListItem, int, error)
	Create(ctx context.Context, plan *models.Plan) error
	Transition(ctx context.Context, planID string, from, to models.PlanState, approval *models.Approval) error
	RecordDecision(ctx context.Context, planID string, newState models.PlanState, approval *models.Approval) error
	Close(ctx context.Context, planID string) error
	ListApprovals(ctx context.Context, planID string) ([]models.Approval, error)
	HasApprovalAtLevel(ctx context.Context, planID string, level models.UserRole) (bool, error)
	DeleteApproval(ctx context.Context, id string) error
}

type planUserStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindDeanBySchool(ctx context.Context, schoolID string) (*models.User, error)
}

type planSchoolLookup interface {
	FindByID(ctx context.Context, id string) (*models.School, error)
}

type planActionLister interface {
	ListByPlan(ctx context.Context, planID string) ([]models.Action, error)
}

type planIncidentLookup interface {
	FindByID(ctx context.Context, id string) (*models.Incident, error)
}

type planNotifier interface {
	Notify(ctx context.Context, userID string, kind models.NotificationKind, subject, message string) error
}

type auditRecorder interface {
	Record(ctx context.Context, entry *models.AuditLog)
}

type cacheInvalidator interface {
	DeleteByPattern(ctx context.Context, pattern string) error
}

// CreatePlanRequest is the payload for assigning a new improvement plan.
type CreatePlanRequest struct {
	Title       string  `json:"title" validate:"required,min=3,max=200"`
	Description string  `json:"description" validate:"required"`
	TeacherID   string  `json:"teacher_id" validate:"required,uuid4"`
	IncidentID  *string `json:"incident_id,omitempty" validate:"omitempty,uuid4"`
}

// DecisionRequest is the payload for an approval or rejection decision.
type DecisionRequest struct {
	Approved *bool   `json:"aprobado" validate:"required"`
	Comment  *string `json:"comentario,omitempty"`
}

// PlanService drives the improvement plan workflow: creation, the dean
// decision gate, resubmission, closing and the approval ledger. Every state
// mutation goes through a guarded repository transition; audit and
// notification side effects run after the mutation committed and never undo
// it.
type PlanService struct {
	plans     planStore
	users     planUserStore
	schools   planSchoolLookup
	actions   planActionLister
	incidents planIncidentLookup
	audit     auditRecorder
	notifier  planNotifier
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPlanService constructs a PlanService instance.
func NewPlanService(
	plans planStore,
	users planUserStore,
	schools planSchoolLookup,
	actions planActionLister,
	incidents planIncidentLookup,
	audit auditRecorder,
	notifier planNotifier,
	cache cacheInvalidator,
	validate *validator.Validate,
	logger *zap.Logger,
) *PlanService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlanService{
		plans:     plans,
		users:     users,
		schools:   schools,
		actions:   actions,
		incidents: incidents,
		audit:     audit,
		notifier:  notifier,
		cache:     cache,
		validator: validate,
		logger:    logger,
	}
}

// Create assigns a new improvement plan to a teacher. The plan starts in
// PendienteDecano and waits for the faculty dean's decision.
func (s *PlanService) Create(ctx context.Context, actor *models.JWTClaims, req CreatePlanRequest) (*models.Plan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan payload")
	}

	if actor.Role != models.RoleDirector && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrRoleMismatch
	}

	teacher, err := s.users.FindByID(ctx, req.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "plans can only be assigned to teachers")
	}

	if actor.Role == models.RoleDirector && !sameSchool(actor.SchoolID, teacher.SchoolID) {
		return nil, appErrors.ErrFacultyMismatch
	}

	if req.IncidentID != nil {
		incident, err := s.incidents.FindByID(ctx, *req.IncidentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, "incident not found")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incident")
		}
		if incident.TeacherID != teacher.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "incident belongs to a different teacher")
		}
	}

	plan := &models.Plan{
		Title:       req.Title,
		Description: req.Description,
		State:       models.PlanStatePendingDean,
		TeacherID:   teacher.ID,
		CreatedByID: actor.UserID,
		IncidentID:  req.IncidentID,
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create plan")
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:        &actor.UserID,
		Action:        models.AuditActionPlanAssigned,
		Resource:      "planes_mejora",
		ResourceID:    &plan.ID,
		Description:   fmt.Sprintf("Plan de mejora %q asignado", plan.Title),
		AffectedLabel: &teacher.FullName,
	})

	s.notify(ctx, teacher.ID, models.NotificationPlanAssigned,
		"Nuevo plan de mejora",
		fmt.Sprintf("Se le ha asignado el plan de mejora %q.", plan.Title))
	s.notifyDean(ctx, teacher, models.NotificationPlanPendingDean,
		"Plan pendiente de decision",
		fmt.Sprintf("El plan %q espera su aprobacion.", plan.Title))

	s.invalidateDashboards(ctx)
	return plan, nil
}

// Get returns a plan with its teacher, faculty, actions and ledger.
func (s *PlanService) Get(ctx context.Context, planID string) (*models.PlanDetail, error) {
	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}

	detail := &models.PlanDetail{Plan: *plan}

	teacher, err := s.users.FindByID(ctx, plan.TeacherID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if teacher != nil {
		detail.TeacherName = teacher.FullName
		detail.SchoolID = teacher.SchoolID
		if teacher.SchoolID != nil {
			school, err := s.schools.FindByID(ctx, *teacher.SchoolID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load school")
			}
			if school != nil {
				detail.SchoolName = school.Name
			}
		}
	}

	actions, err := s.actions.ListByPlan(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan actions")
	}
	if actions == nil {
		actions = []models.Action{}
	}
	detail.Actions = actions

	approvals, err := s.plans.ListApprovals(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plan approvals")
	}
	if approvals == nil {
		approvals = []models.Approval{}
	}
	detail.Approvals = approvals

	return detail, nil
}

// List returns plans matching the filter. Non-admin actors get their scope
// narrowed: teachers see their own plans, directors the plans they created,
// deans their faculty.
func (s *PlanService) List(ctx context.Context, actor *models.JWTClaims, filter models.PlanFilter) ([]models.PlanListItem, int, error) {
	switch actor.Role {
	case models.RoleTeacher:
		filter.TeacherID = actor.UserID
	case models.RoleDirector:
		filter.CreatedBy = actor.UserID
	case models.RoleDean:
		if actor.SchoolID != nil {
			filter.SchoolID = *actor.SchoolID
		}
	}

	plans, total, err := s.plans.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list plans")
	}
	if plans == nil {
		plans = []models.PlanListItem{}
	}
	return plans, total, nil
}

// DecideAsDean records the dean's approval or rejection of a pending plan.
// Approval activates the plan; rejection parks it in RechazadoDecano where
// the creator may fix and resubmit it. The state change and the ledger entry
// commit atomically, so of two concurrent decisions exactly one wins.
func (s *PlanService) DecideAsDean(ctx context.Context, actor *models.JWTClaims, planID string, req DecisionRequest) (*models.Plan, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	if actor.Role != models.RoleDean {
		return nil, appErrors.ErrRoleMismatch
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}

	teacher, err := s.users.FindByID(ctx, plan.TeacherID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	if !sameSchool(actor.SchoolID, teacher.SchoolID) {
		return nil, appErrors.ErrFacultyMismatch
	}

	if plan.State != models.PlanStatePendingDean {
		return nil, appErrors.ErrInvalidState
	}

	approved := *req.Approved
	target := models.PlanStateRejectedByDean
	if approved {
		target = models.PlanStateActive
	}

	approval := &models.Approval{
		PlanID:     plan.ID,
		Level:      models.RoleDean,
		Approved:   approved,
		Comment:    req.Comment,
		ApprovedBy: actor.UserID,
	}

	if err := s.plans.Transition(ctx, plan.ID, models.PlanStatePendingDean, target, approval); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, appErrors.ErrInvalidState
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply dean decision")
	}
	plan.State = target
	plan.UpdatedAt = time.Now().UTC()

	auditAction := models.AuditActionPlanRejected
	kind := models.NotificationPlanRejected
	subject := "Plan de mejora rechazado"
	message := fmt.Sprintf("El decano rechazo el plan %q.", plan.Title)
	if approved {
		auditAction = models.AuditActionPlanApproved
		kind = models.NotificationPlanActive
		subject = "Plan de mejora activo"
		message = fmt.Sprintf("El decano aprobo el plan %q. Ya esta activo.", plan.Title)
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:        &actor.UserID,
		Action:        auditAction,
		Resource:      "planes_mejora",
		ResourceID:    &plan.ID,
		Description:   message,
		AffectedLabel: &teacher.FullName,
	})

	// An approval concerns the teacher who now has an active plan; a
	// rejection goes back to whoever created the plan.
	recipient := plan.CreatedByID
	if approved {
		recipient = plan.TeacherID
	}
	s.notify(ctx, recipient, kind, subject, message)

	s.invalidateDashboards(ctx)
	return plan, nil
}

// Resubmit sends a dean-rejected plan back for a fresh decision. Only the
// director who created the plan may resubmit it; no ledger entry is appended
// because no decision was made.
func (s *PlanService) Resubmit(ctx context.Context, actor *models.JWTClaims, planID string) (*models.Plan, error) {
	if actor.Role != models.RoleDirector {
		return nil, appErrors.ErrRoleMismatch
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}

	if plan.CreatedByID != actor.UserID {
		return nil, appErrors.ErrNotOwner
	}

	if plan.State != models.PlanStateRejectedByDean {
		return nil, appErrors.ErrInvalidState
	}

	if err := s.plans.Transition(ctx, plan.ID, models.PlanStateRejectedByDean, models.PlanStatePendingDean, nil); err != nil {
		if errors.Is(err, repository.ErrStateConflict) {
			return nil, appErrors.ErrInvalidState
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit plan")
	}
	plan.State = models.PlanStatePendingDean
	plan.UpdatedAt = time.Now().UTC()

	s.audit.Record(ctx, &models.AuditLog{
		UserID:      &actor.UserID,
		Action:      models.AuditActionPlanResubmitted,
		Resource:    "planes_mejora",
		ResourceID:  &plan.ID,
		Description: fmt.Sprintf("Plan %q reenviado al decano", plan.Title),
	})

	teacher, err := s.users.FindByID(ctx, plan.TeacherID)
	if err == nil {
		s.notifyDean(ctx, teacher, models.NotificationPlanPendingDean,
			"Plan reenviado",
			fmt.Sprintf("El plan %q fue corregido y espera nuevamente su decision.", plan.Title))
	}

	s.invalidateDashboards(ctx)
	return plan, nil
}

// RecordApproval backs the legacy single-step approval endpoint, which
// predates the dean workflow. Only administrators may use it, and it refuses
// plans the dean already decided so the two paths cannot disagree.
func (s *PlanService) RecordApproval(ctx context.Context, actor *models.JWTClaims, planID string, req DecisionRequest) (*models.Approval, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid decision payload")
	}

	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrRoleMismatch
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}

	decided, err := s.plans.HasApprovalAtLevel(ctx, plan.ID, models.RoleDean)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect approval ledger")
	}
	if decided {
		return nil, appErrors.Clone(appErrors.ErrConflict, "plan already decided by the dean")
	}

	approved := *req.Approved
	newState := models.PlanStateRejected
	if approved {
		newState = models.PlanStateApproved
	}

	approval := &models.Approval{
		PlanID:     plan.ID,
		Level:      actor.Role,
		Approved:   approved,
		Comment:    req.Comment,
		ApprovedBy: actor.UserID,
	}
	if err := s.plans.RecordDecision(ctx, plan.ID, newState, approval); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record approval")
	}

	auditAction := models.AuditActionPlanRejected
	if approved {
		auditAction = models.AuditActionPlanApproved
	}
	s.audit.Record(ctx, &models.AuditLog{
		UserID:      &actor.UserID,
		Action:      auditAction,
		Resource:    "aprobaciones",
		ResourceID:  &approval.ID,
		Description: fmt.Sprintf("Decision administrativa sobre el plan %q", plan.Title),
	})

	kind := models.NotificationPlanRejected
	subject := "Plan de mejora rechazado"
	if approved {
		kind = models.NotificationPlanActive
		subject = "Plan de mejora aprobado"
	}
	s.notify(ctx, plan.TeacherID, kind, subject,
		fmt.Sprintf("Un administrador registro una decision sobre el plan %q.", plan.Title))

	s.invalidateDashboards(ctx)
	return approval, nil
}

// Close marks an active plan as finished. Directors may only close plans they
// created; administrators may close any active plan.
func (s *PlanService) Close(ctx context.Context, actor *models.JWTClaims, planID string) (*models.Plan, error) {
	if actor.Role != models.RoleDirector && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrRoleMismatch
	}

	plan, err := s.plans.FindByID(ctx, planID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}

	if actor.Role == models.RoleDirector && plan.CreatedByID != actor.UserID {
		return nil, appErrors.ErrNotOwner
	}

	if plan.State != models.PlanStateActive {
		return nil, appErrors.ErrInvalidState
	}

	if err := s.plans.Close(ctx, plan.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close plan")
	}
	plan.State = models.PlanStateClosed
	plan.UpdatedAt = time.Now().UTC()

	s.audit.Record(ctx, &models.AuditLog{
		UserID:      &actor.UserID,
		Action:      models.AuditActionPlanClosed,
		Resource:    "planes_mejora",
		ResourceID:  &plan.ID,
		Description: fmt.Sprintf("Plan %q cerrado", plan.Title),
	})

	s.notify(ctx, plan.TeacherID, models.NotificationGeneral,
		"Plan de mejora cerrado",
		fmt.Sprintf("El plan %q fue cerrado.", plan.Title))

	s.invalidateDashboards(ctx)
	return plan, nil
}

// ListApprovals returns the approval ledger for a plan, oldest first.
func (s *PlanService) ListApprovals(ctx context.Context, planID string) ([]models.Approval, error) {
	if _, err := s.plans.FindByID(ctx, planID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	approvals, err := s.plans.ListApprovals(ctx, planID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approvals")
	}
	if approvals == nil {
		approvals = []models.Approval{}
	}
	return approvals, nil
}

// DeleteApproval removes one ledger entry. Administrative cleanup only; the
// plan state is left untouched.
func (s *PlanService) DeleteApproval(ctx context.Context, actor *models.JWTClaims, approvalID string) error {
	if actor.Role != models.RoleAdmin {
		return appErrors.ErrRoleMismatch
	}

	if err := s.plans.DeleteApproval(ctx, approvalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "approval not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete approval")
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:      &actor.UserID,
		Action:      models.AuditActionApprovalDeleted,
		Resource:    "aprobaciones",
		ResourceID:  &approvalID,
		Description: "Registro de aprobacion eliminado",
	})
	return nil
}

func (s *PlanService) notify(ctx context.Context, userID string, kind models.NotificationKind, subject, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, userID, kind, subject, message); err != nil {
		s.logger.Warn("failed to send notification",
			zap.String("user_id", userID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (s *PlanService) notifyDean(ctx context.Context, teacher *models.User, kind models.NotificationKind, subject, message string) {
	if teacher == nil || teacher.SchoolID == nil {
		return
	}
	dean, err := s.users.FindDeanBySchool(ctx, *teacher.SchoolID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("failed to resolve faculty dean", zap.Error(err))
		}
		return
	}
	s.notify(ctx, dean.ID, kind, subject, message)
}

func (s *PlanService) invalidateDashboards(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, "dashboard:*"); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func sameSchool(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
