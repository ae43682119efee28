package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
)

type evidenceStore interface {
	Create(ctx context.Context, evidence *models.Evidence) error
	FindByID(ctx context.Context, id string) (*models.Evidence, error)
	ListByAction(ctx context.Context, actionID string) ([]models.Evidence, error)
}

type evidenceActionLookup interface {
	FindByID(ctx context.Context, id string) (*models.Action, error)
}

type evidenceFileStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type evidenceURLSigner interface {
	Generate(evidenceID, relPath string) (string, time.Time, error)
	Parse(token string) (evidenceID, relPath string, expiresAt time.Time, err error)
}

// EvidenceUpload carries one incoming evidence file plus its mandatory
// comment.
type EvidenceUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Reader      io.Reader
	Comment     string
}

// SignedDownload is the result of generating an evidence download token.
type SignedDownload struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EvidenceLimits bounds what uploads are accepted.
type EvidenceLimits struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// EvidenceService stores evidence files and their immutable records. An
// evidence row always carries a non-empty comment, and nothing ever updates
// or deletes a row once written.
type EvidenceService struct {
	evidence evidenceStore
	actions  evidenceActionLookup
	plans    actionPlanLookup
	files    evidenceFileStore
	signer   evidenceURLSigner
	notifier planNotifier
	limits   EvidenceLimits
	logger   *zap.Logger
}

// NewEvidenceService constructs an EvidenceService instance.
func NewEvidenceService(
	evidence evidenceStore,
	actions evidenceActionLookup,
	plans actionPlanLookup,
	files evidenceFileStore,
	signer evidenceURLSigner,
	notifier planNotifier,
	limits EvidenceLimits,
	logger *zap.Logger,
) *EvidenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EvidenceService{
		evidence: evidence,
		actions:  actions,
		plans:    plans,
		files:    files,
		signer:   signer,
		notifier: notifier,
		limits:   limits,
		logger:   logger,
	}
}

// Upload validates, stores and records one evidence file for an action.
func (s *EvidenceService) Upload(ctx context.Context, actor *models.JWTClaims, actionID string, upload EvidenceUpload) (*models.Evidence, error) {
	if strings.TrimSpace(upload.Comment) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence comment is required")
	}
	if upload.Filename == "" || upload.Reader == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence file is required")
	}
	if s.limits.MaxFileSizeBytes > 0 && upload.Size > s.limits.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("file exceeds the %d byte limit", s.limits.MaxFileSizeBytes))
	}
	if len(s.limits.AllowedMIMEs) > 0 && !mimeAllowed(upload.ContentType, s.limits.AllowedMIMEs) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("content type %s is not allowed", upload.ContentType))
	}

	action, err := s.actions.FindByID(ctx, actionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}

	// The plan is loaded for ownership and the notification fan-out; its
	// state does not gate uploads.
	plan, err := s.plans.FindByID(ctx, action.PlanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "plan not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load plan")
	}
	if actor.Role != models.RoleAdmin && actor.UserID != plan.TeacherID {
		return nil, appErrors.ErrForbidden
	}

	safeName := filepath.Base(upload.Filename)
	relPath := filepath.Join(action.ID, uuid.NewString()+"_"+safeName)
	storedPath, err := s.files.SaveStream(relPath, upload.Reader)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence file")
	}

	evidence := &models.Evidence{
		ActionID:   action.ID,
		Filename:   safeName,
		Path:       storedPath,
		Comment:    strings.TrimSpace(upload.Comment),
		UploadedBy: actor.UserID,
	}
	if err := s.evidence.Create(ctx, evidence); err != nil {
		// The record is the source of truth; without it the file is orphaned.
		if delErr := s.files.Delete(storedPath); delErr != nil {
			s.logger.Warn("failed to remove orphaned evidence file",
				zap.String("path", storedPath), zap.Error(delErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record evidence")
	}

	if s.notifier != nil && plan.CreatedByID != "" && plan.CreatedByID != actor.UserID {
		if err := s.notifier.Notify(ctx, plan.CreatedByID, models.NotificationEvidenceUploaded,
			"Nueva evidencia",
			fmt.Sprintf("Se subio la evidencia %q al plan %q.", evidence.Filename, plan.Title)); err != nil {
			s.logger.Warn("failed to notify evidence upload", zap.Error(err))
		}
	}

	return evidence, nil
}

// ListByAction returns all evidence attached to an action, oldest first.
func (s *EvidenceService) ListByAction(ctx context.Context, actionID string) ([]models.Evidence, error) {
	if _, err := s.actions.FindByID(ctx, actionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "action not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load action")
	}
	evidences, err := s.evidence.ListByAction(ctx, actionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evidence")
	}
	if evidences == nil {
		evidences = []models.Evidence{}
	}
	return evidences, nil
}

// DownloadURL issues a signed, expiring token for fetching one evidence file.
func (s *EvidenceService) DownloadURL(ctx context.Context, evidenceID string) (*SignedDownload, error) {
	evidence, err := s.evidence.FindByID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}

	token, expiresAt, err := s.signer.Generate(evidence.ID, evidence.Path)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return &SignedDownload{Token: token, ExpiresAt: expiresAt}, nil
}

// ResolveDownload validates a signed token and opens the referenced file.
// The caller is responsible for closing the returned handle.
func (s *EvidenceService) ResolveDownload(ctx context.Context, token string) (*models.Evidence, *os.File, error) {
	evidenceID, relPath, _, err := s.signer.Parse(token)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}

	evidence, err := s.evidence.FindByID(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}
	if evidence.Path != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match evidence record")
	}

	file, err := s.files.Open(evidence.Path)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open evidence file")
	}
	return evidence, file, nil
}

func mimeAllowed(contentType string, allowed []string) bool {
	base := contentType
	if idx := strings.Index(base, ";"); idx >= 0 {
		base = base[:idx]
	}
	base = strings.TrimSpace(strings.ToLower(base))
	for _, m := range allowed {
		if strings.EqualFold(strings.TrimSpace(m), base) {
			return true
		}
	}
	return false
}
