package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/storage"
)

type stubEvidenceStore struct {
	rows      map[string]*models.Evidence
	createErr error
}

func (s *stubEvidenceStore) Create(ctx context.Context, evidence *models.Evidence) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.rows == nil {
		s.rows = make(map[string]*models.Evidence)
	}
	if evidence.ID == "" {
		evidence.ID = "generated-evidence-id"
	}
	copy := *evidence
	s.rows[evidence.ID] = &copy
	return nil
}

func (s *stubEvidenceStore) FindByID(ctx context.Context, id string) (*models.Evidence, error) {
	if e, ok := s.rows[id]; ok {
		copy := *e
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *stubEvidenceStore) ListByAction(ctx context.Context, actionID string) ([]models.Evidence, error) {
	var out []models.Evidence
	for _, e := range s.rows {
		if e.ActionID == actionID {
			out = append(out, *e)
		}
	}
	return out, nil
}

type evidenceFixture struct {
	evidence *stubEvidenceStore
	actions  *stubActionStore
	plans    *stubPlanStore
	files    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	notifier *stubNotifier
	svc      *EvidenceService
}

func newEvidenceFixture(t *testing.T, planState models.PlanState) *evidenceFixture {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	f := &evidenceFixture{
		evidence: &stubEvidenceStore{rows: make(map[string]*models.Evidence)},
		actions:  &stubActionStore{actions: make(map[string]*models.Action)},
		plans:    &stubPlanStore{plans: make(map[string]*models.Plan)},
		files:    files,
		signer:   storage.NewSignedURLSigner("test-secret", time.Minute),
		notifier: &stubNotifier{},
	}
	f.plans.plans["plan-1"] = &models.Plan{
		ID:          "plan-1",
		Title:       "Mejorar evaluaciones",
		State:       planState,
		TeacherID:   teacherID,
		CreatedByID: directorID,
	}
	f.actions.actions["action-1"] = &models.Action{ID: "action-1", PlanID: "plan-1", State: models.ActionStateInProgress}

	f.svc = NewEvidenceService(f.evidence, f.actions, f.plans, f.files, f.signer, f.notifier, EvidenceLimits{
		MaxFileSizeBytes: 1024,
		AllowedMIMEs:     []string{"application/pdf", "image/png"},
	}, zap.NewNop())
	return f
}

func pdfUpload(comment string) EvidenceUpload {
	return EvidenceUpload{
		Filename:    "certificado.pdf",
		ContentType: "application/pdf",
		Size:        64,
		Reader:      strings.NewReader("contenido"),
		Comment:     comment,
	}
}

func TestEvidenceUploadStoresFileAndRow(t *testing.T) {
	f := newEvidenceFixture(t, models.PlanStateActive)

	evidence, err := f.svc.Upload(context.Background(), teacherClaims(), "action-1", pdfUpload("Constancia del taller"))
	require.NoError(t, err)
	assert.Equal(t, "certificado.pdf", evidence.Filename)
	assert.Equal(t, "Constancia del taller", evidence.Comment)
	assert.Equal(t, teacherID, evidence.UploadedBy)
	assert.NotEmpty(t, evidence.Path)

	file, err := f.files.Open(evidence.Path)
	require.NoError(t, err)
	file.Close()

	// The plan's creator hears about new evidence.
	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, directorID, f.notifier.sent[0].UserID)
	assert.Equal(t, models.NotificationEvidenceUploaded, f.notifier.sent[0].Kind)
}

func TestEvidenceUploadRequiresComment(t *testing.T) {
	f := newEvidenceFixture(t, models.PlanStateActive)

	_, err := f.svc.Upload(context.Background(), teacherClaims(), "action-1", pdfUpload("   "))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEvidenceUploadRejectsOversizedFile(t *testing.T) {
	f := newEvidenceFixture(t, models.PlanStateActive)
	upload := pdfUpload("Constancia")
	upload.Size = 4096

	_, err := f.svc.Upload(context.Background(), teacherClaims(), "action-1", upload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEvidenceUploadRejectsDisallowedMIME(t *testing.T) {
	f := newEvidenceFixture(t, models.PlanStateActive)
	upload := pdfUpload("Constancia")
	upload.ContentType = "application/x-msdownload"

	_, err := f.svc.Upload(context.Background(), teacherClaims(), "action-1", upload)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestEvidenceUploadIgnoresPlanState(t *testing.T) {
	for _, state := range []models.PlanState{
		models.PlanStatePendingDean,
		models.PlanStateRejectedByDean,
		models.PlanStateClosed,
	} {
		f := newEvidenceFixture(t, state)

		evidence, err := f.svc.Upload(context.Background(), teacherClaims(), "action-1", pdfUpload("Constancia"))
		require.NoError(t, err, "state %s", state)
		assert.NotEmpty(t, evidence.ID)
	}
}

func TestEvidenceUploadByOtherTeacher(t *testing.T) {
	f := newEvidenceFixture(t, models.PlanStateActive)
	actor := &models.JWTClaims{UserID: "someone-else", Role: models.RoleTeacher}

	_, err := f.svc.Upload(context.Background(), actor, "action-1", pdfUpload("Constancia"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestEvidenceUploadRemovesFileWhenRecordFails(t *testing.T) {
	f := newEvidenceFixture(t, models.PlanStateActive)
	f.evidence.createErr = sql.ErrConnDone

	_, err := f.svc.Upload(context.Background(), teacherClaims(), "action-1", pdfUpload("Constancia"))
	require.Error(t, err)
}

func TestEvidenceDownloadRoundTrip(t *testing.T) {
	f := newEvidenceFixture(t, models.PlanStateActive)

	evidence, err := f.svc.Upload(context.Background(), teacherClaims(), "action-1", pdfUpload("Constancia"))
	require.NoError(t, err)

	signed, err := f.svc.DownloadURL(context.Background(), evidence.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Token)
	assert.True(t, signed.ExpiresAt.After(time.Now()))

	resolved, file, err := f.svc.ResolveDownload(context.Background(), signed.Token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, evidence.ID, resolved.ID)
	assert.Equal(t, evidence.Filename, resolved.Filename)
}

func TestEvidenceDownloadTamperedToken(t *testing.T) {
	f := newEvidenceFixture(t, models.PlanStateActive)

	evidence, err := f.svc.Upload(context.Background(), teacherClaims(), "action-1", pdfUpload("Constancia"))
	require.NoError(t, err)

	signed, err := f.svc.DownloadURL(context.Background(), evidence.ID)
	require.NoError(t, err)

	_, _, err = f.svc.ResolveDownload(context.Background(), signed.Token+"ff")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
