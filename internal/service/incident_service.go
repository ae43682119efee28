package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

type incidentStore interface {
	FindByID(ctx context.Context, id string) (*models.Incident, error)
	Create(ctx context.Context, incident *models.Incident) error
	List(ctx context.Context, teacherID string) ([]models.Incident, error)
	UpdateState(ctx context.Context, id string, state models.IncidentState) error
}

// CreateIncidentRequest is the payload for recording a new incident.
type CreateIncidentRequest struct {
	Description string `json:"description" validate:"required"`
	TeacherID   string `json:"teacher_id" validate:"required,uuid4"`
}

// UpdateIncidentStateRequest moves an incident between review states.
type UpdateIncidentStateRequest struct {
	State models.IncidentState `json:"estado" validate:"required"`
}

// IncidentService manages recorded incidents. Incidents feed plan creation
// but have their own review lifecycle.
type IncidentService struct {
	incidents incidentStore
	users     planUserStore
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewIncidentService constructs an IncidentService instance.
func NewIncidentService(incidents incidentStore, users planUserStore, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *IncidentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IncidentService{incidents: incidents, users: users, audit: audit, validator: validate, logger: logger}
}

// Create records a new incident for a teacher.
func (s *IncidentService) Create(ctx context.Context, actor *models.JWTClaims, req CreateIncidentRequest) (*models.Incident, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid incident payload")
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
		return nil, appErrors.Clone(appErrors.ErrValidation, "incidents can only reference teachers")
	}
	if actor.Role == models.RoleDirector && !sameSchool(actor.SchoolID, teacher.SchoolID) {
		return nil, appErrors.ErrFacultyMismatch
	}

	incident := &models.Incident{
		Description: req.Description,
		TeacherID:   teacher.ID,
		State:       models.IncidentStatePending,
	}
	if err := s.incidents.Create(ctx, incident); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create incident")
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:        &actor.UserID,
		Action:        "INCIDENT_CREATE",
		Resource:      "incidencias",
		ResourceID:    &incident.ID,
		Description:   "Incidencia registrada",
		AffectedLabel: &teacher.FullName,
	})
	return incident, nil
}

// Get returns one incident by identifier.
func (s *IncidentService) Get(ctx context.Context, id string) (*models.Incident, error) {
	incident, err := s.incidents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "incident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incident")
	}
	return incident, nil
}

// List returns incidents. Teachers only see their own.
func (s *IncidentService) List(ctx context.Context, actor *models.JWTClaims, teacherID string) ([]models.Incident, error) {
	if actor.Role == models.RoleTeacher {
		teacherID = actor.UserID
	}
	incidents, err := s.incidents.List(ctx, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list incidents")
	}
	if incidents == nil {
		incidents = []models.Incident{}
	}
	return incidents, nil
}

// UpdateState moves an incident to a new review state.
func (s *IncidentService) UpdateState(ctx context.Context, actor *models.JWTClaims, id string, req UpdateIncidentStateRequest) (*models.Incident, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid incident state payload")
	}
	if !req.State.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown incident state")
	}
	if actor.Role != models.RoleDirector && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrRoleMismatch
	}

	incident, err := s.incidents.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "incident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load incident")
	}

	if err := s.incidents.UpdateState(ctx, incident.ID, req.State); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "incident not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update incident state")
	}
	incident.State = req.State
	return incident, nil
}
