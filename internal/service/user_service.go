package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

type userStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	CountByRoleAndSchool(ctx context.Context, role models.UserRole, schoolID string) (int, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

// CreateUserRequest is the payload for registering a new account.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	Password string          `json:"password" validate:"required,min=6"`
	FullName string          `json:"full_name" validate:"required"`
	Role     models.UserRole `json:"role" validate:"required"`
	SchoolID *string         `json:"school_id,omitempty" validate:"omitempty,uuid4"`
}

// UpdateUserRequest is the payload for modifying an account.
type UpdateUserRequest struct {
	FullName *string          `json:"full_name,omitempty"`
	Role     *models.UserRole `json:"role,omitempty"`
	SchoolID *string          `json:"school_id,omitempty" validate:"omitempty,uuid4"`
	Active   *bool            `json:"active,omitempty"`
}

// UserService manages accounts and their faculty assignment.
type UserService struct {
	repo      userStore
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// NewUserService constructs a UserService instance.
func NewUserService(repo userStore, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *UserService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, audit: audit, validator: validate, logger: logger}
}

// Create registers a new user account.
func (s *UserService) Create(ctx context.Context, actor *models.JWTClaims, req CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}
	if req.Role != models.RoleAdmin && req.SchoolID == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school is required for this role")
	}

	if _, err := s.repo.FindByEmail(ctx, req.Email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	// Each faculty has at most one dean; a second one would make dean
	// resolution ambiguous.
	if req.Role == models.RoleDean && req.SchoolID != nil {
		count, err := s.repo.CountByRoleAndSchool(ctx, models.RoleDean, *req.SchoolID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check faculty dean")
		}
		if count > 0 {
			return nil, appErrors.Clone(appErrors.ErrConflict, "faculty already has an active dean")
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		SchoolID:     req.SchoolID,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:        &actor.UserID,
		Action:        models.AuditActionUserCreate,
		Resource:      "users",
		ResourceID:    &user.ID,
		Description:   fmt.Sprintf("Usuario %s creado con rol %s", user.Email, user.Role),
		AffectedLabel: &user.FullName,
	})
	return user, nil
}

// Get returns one user by identifier.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// List returns users matching the filter with a total count. Deans and
// directors are confined to their own faculty; teachers have no listing
// access.
func (s *UserService) List(ctx context.Context, actor *models.JWTClaims, filter models.UserFilter) ([]models.User, int, error) {
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleDean, models.RoleDirector:
		if actor.SchoolID == nil || *actor.SchoolID == "" {
			return nil, 0, appErrors.Clone(appErrors.ErrValidation, "actor has no faculty assigned")
		}
		filter.SchoolID = *actor.SchoolID
	default:
		return nil, 0, appErrors.ErrRoleMismatch
	}

	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	if users == nil {
		users = []models.User{}
	}
	return users, total, nil
}

// Update modifies mutable account fields.
func (s *UserService) Update(ctx context.Context, actor *models.JWTClaims, id string, req UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}

	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.Role != nil {
		if !req.Role.Valid() {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
		}
		user.Role = *req.Role
	}
	if req.SchoolID != nil {
		user.SchoolID = req.SchoolID
	}
	if req.Active != nil {
		user.Active = *req.Active
	}

	if user.Role == models.RoleDean && user.SchoolID != nil && user.Active {
		count, err := s.repo.CountByRoleAndSchool(ctx, models.RoleDean, *user.SchoolID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check faculty dean")
		}
		// The current user may already be that dean.
		if count > 1 {
			return nil, appErrors.Clone(appErrors.ErrConflict, "faculty already has an active dean")
		}
	}

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:        &actor.UserID,
		Action:        models.AuditActionUserUpdate,
		Resource:      "users",
		ResourceID:    &user.ID,
		Description:   fmt.Sprintf("Usuario %s actualizado", user.Email),
		AffectedLabel: &user.FullName,
	})
	return user, nil
}

// Delete deactivates an account. Records stay for the audit trail.
func (s *UserService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.audit.Record(ctx, &models.AuditLog{
		UserID:        &actor.UserID,
		Action:        models.AuditActionUserDelete,
		Resource:      "users",
		ResourceID:    &id,
		Description:   fmt.Sprintf("Usuario %s desactivado", user.Email),
		AffectedLabel: &user.FullName,
	})
	return nil
}
