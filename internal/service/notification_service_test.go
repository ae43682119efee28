package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	"github.com/noah-isme/sgpm-api/pkg/jobs"
)

type stubNotificationStore struct {
	rows      map[string]*models.Notification
	createErr error
}

func (s *stubNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	if s.rows == nil {
		s.rows = make(map[string]*models.Notification)
	}
	if n.ID == "" {
		n.ID = "generated-notification-id"
	}
	copy := *n
	s.rows[n.ID] = &copy
	return nil
}

func (s *stubNotificationStore) MarkEmailSent(ctx context.Context, id string) error {
	n, ok := s.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	n.EmailSent = true
	return nil
}

func (s *stubNotificationStore) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range s.rows {
		if n.UserID == userID {
			out = append(out, *n)
		}
	}
	return out, nil
}

func (s *stubNotificationStore) MarkRead(ctx context.Context, id string) error {
	n, ok := s.rows[id]
	if !ok {
		return sql.ErrNoRows
	}
	n.Read = true
	return nil
}

func (s *stubNotificationStore) MarkAllRead(ctx context.Context, userID string) error {
	for _, n := range s.rows {
		if n.UserID == userID {
			n.Read = true
		}
	}
	return nil
}

type stubQueue struct {
	jobs []jobs.Job
	err  error
}

func (s *stubQueue) Enqueue(job jobs.Job) error {
	if s.err != nil {
		return s.err
	}
	s.jobs = append(s.jobs, job)
	return nil
}

type stubMailer struct {
	sent []string
	err  error
}

func (s *stubMailer) Send(to, subject, body string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, to)
	return nil
}

func TestNotifyPersistsAndEnqueuesEmail(t *testing.T) {
	store := &stubNotificationStore{}
	queue := &stubQueue{}
	users := &stubUserStore{users: map[string]*models.User{teacherID: {ID: teacherID, Email: "vega@example.edu"}}}
	svc := NewNotificationService(store, users, &stubMailer{}, queue, true, zap.NewNop())

	err := svc.Notify(context.Background(), teacherID, models.NotificationPlanAssigned, "Nuevo plan", "Detalle")
	require.NoError(t, err)
	assert.Len(t, store.rows, 1)
	require.Len(t, queue.jobs, 1)
	payload, ok := queue.jobs[0].Payload.(EmailJobPayload)
	require.True(t, ok)
	assert.Equal(t, teacherID, payload.UserID)
}

func TestNotifyEmailDisabledSkipsQueue(t *testing.T) {
	store := &stubNotificationStore{}
	queue := &stubQueue{}
	svc := NewNotificationService(store, &stubUserStore{}, &stubMailer{}, queue, false, zap.NewNop())

	err := svc.Notify(context.Background(), teacherID, models.NotificationGeneral, "Aviso", "Detalle")
	require.NoError(t, err)
	assert.Len(t, store.rows, 1)
	assert.Empty(t, queue.jobs)
}

func TestNotifyQueueFailureStillSucceeds(t *testing.T) {
	store := &stubNotificationStore{}
	queue := &stubQueue{err: errors.New("queue full")}
	svc := NewNotificationService(store, &stubUserStore{}, &stubMailer{}, queue, true, zap.NewNop())

	err := svc.Notify(context.Background(), teacherID, models.NotificationGeneral, "Aviso", "Detalle")
	require.NoError(t, err)
	assert.Len(t, store.rows, 1)
}

func TestHandleEmailJobMarksSent(t *testing.T) {
	store := &stubNotificationStore{rows: map[string]*models.Notification{
		"n-1": {ID: "n-1", UserID: teacherID},
	}}
	m := &stubMailer{}
	users := &stubUserStore{users: map[string]*models.User{teacherID: {ID: teacherID, Email: "vega@example.edu"}}}
	svc := NewNotificationService(store, users, m, &stubQueue{}, true, zap.NewNop())

	err := svc.HandleEmailJob(context.Background(), jobs.Job{ID: "n-1", Payload: EmailJobPayload{
		NotificationID: "n-1",
		UserID:         teacherID,
		Subject:        "Aviso",
		Body:           "Detalle",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"vega@example.edu"}, m.sent)
	assert.True(t, store.rows["n-1"].EmailSent)
}

func TestHandleEmailJobMissingRecipient(t *testing.T) {
	store := &stubNotificationStore{rows: map[string]*models.Notification{"n-1": {ID: "n-1"}}}
	svc := NewNotificationService(store, &stubUserStore{}, &stubMailer{}, &stubQueue{}, true, zap.NewNop())

	// A deleted user is not a retryable failure.
	err := svc.HandleEmailJob(context.Background(), jobs.Job{ID: "n-1", Payload: EmailJobPayload{
		NotificationID: "n-1",
		UserID:         "gone",
	}})
	require.NoError(t, err)
	assert.False(t, store.rows["n-1"].EmailSent)
}

func TestHandleEmailJobMailerFailure(t *testing.T) {
	store := &stubNotificationStore{rows: map[string]*models.Notification{"n-1": {ID: "n-1", UserID: teacherID}}}
	users := &stubUserStore{users: map[string]*models.User{teacherID: {ID: teacherID, Email: "vega@example.edu"}}}
	svc := NewNotificationService(store, users, &stubMailer{err: errors.New("relay down")}, &stubQueue{}, true, zap.NewNop())

	err := svc.HandleEmailJob(context.Background(), jobs.Job{ID: "n-1", Payload: EmailJobPayload{
		NotificationID: "n-1",
		UserID:         teacherID,
	}})
	require.Error(t, err)
	assert.False(t, store.rows["n-1"].EmailSent)
}

func TestMarkAllRead(t *testing.T) {
	store := &stubNotificationStore{rows: map[string]*models.Notification{
		"n-1": {ID: "n-1", UserID: teacherID},
		"n-2": {ID: "n-2", UserID: teacherID},
		"n-3": {ID: "n-3", UserID: "other"},
	}}
	svc := NewNotificationService(store, &stubUserStore{}, nil, nil, false, zap.NewNop())

	require.NoError(t, svc.MarkAllRead(context.Background(), teacherID))
	assert.True(t, store.rows["n-1"].Read)
	assert.True(t, store.rows["n-2"].Read)
	assert.False(t, store.rows["n-3"].Read)
}
