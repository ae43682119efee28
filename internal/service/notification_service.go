package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sgpm-api/internal/models"
	appErrors "github.com/noah-isme/sgpm-api/pkg/errors"
	"github.com/noah-isme/sgpm-api/pkg/jobs"
	"github.com/noah-isme/sgpm-api/pkg/mailer"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkEmailSent(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, userID string) error
}

type notificationUserLookup interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type emailEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// EmailJobPayload carries the data an email worker needs.
type EmailJobPayload struct {
	NotificationID string
	UserID         string
	Subject        string
	Body           string
}

// NotificationService persists in-app notifications and fans them out over
// email. The persisted row is the source of truth; email delivery is
// best-effort and its failure only leaves EmailSent false.
type NotificationService struct {
	repo         notificationStore
	users        notificationUserLookup
	mailer       mailer.Mailer
	queue        emailEnqueuer
	emailEnabled bool
	logger       *zap.Logger
}

// NewNotificationService constructs a NotificationService instance. Both
// mailer and queue may be nil, which disables the email fan-out entirely.
func NewNotificationService(repo notificationStore, users notificationUserLookup, m mailer.Mailer, queue emailEnqueuer, emailEnabled bool, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		repo:         repo,
		users:        users,
		mailer:       m,
		queue:        queue,
		emailEnabled: emailEnabled && m != nil && queue != nil,
		logger:       logger,
	}
}

// Notify stores a notification for the user and, when email delivery is
// enabled, enqueues the corresponding email job.
func (s *NotificationService) Notify(ctx context.Context, userID string, kind models.NotificationKind, subject, message string) error {
	n := &models.Notification{
		UserID:  userID,
		Kind:    kind,
		Subject: subject,
		Message: message,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist notification")
	}

	if s.emailEnabled {
		job := jobs.Job{
			ID:   n.ID,
			Type: "notification_email",
			Payload: EmailJobPayload{
				NotificationID: n.ID,
				UserID:         userID,
				Subject:        subject,
				Body:           message,
			},
		}
		if err := s.queue.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue notification email",
				zap.String("notification_id", n.ID),
				zap.Error(err))
		}
	}

	return nil
}

// HandleEmailJob is the queue worker callback that delivers one notification
// email and flags the row on success.
func (s *NotificationService) HandleEmailJob(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(EmailJobPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T for job %s", job.Payload, job.ID)
	}

	user, err := s.users.FindByID(ctx, payload.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("notification recipient no longer exists", zap.String("user_id", payload.UserID))
			return nil
		}
		return fmt.Errorf("load notification recipient: %w", err)
	}

	if err := s.mailer.Send(user.Email, payload.Subject, payload.Body); err != nil {
		return err
	}

	if err := s.repo.MarkEmailSent(ctx, payload.NotificationID); err != nil {
		s.logger.Warn("failed to flag notification email as sent",
			zap.String("notification_id", payload.NotificationID),
			zap.Error(err))
	}
	return nil
}

// ListForUser returns the newest notifications for the user.
func (s *NotificationService) ListForUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	notifications, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	return notifications, nil
}

// MarkRead flags a single notification as read.
func (s *NotificationService) MarkRead(ctx context.Context, id string) error {
	if err := s.repo.MarkRead(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead flags every unread notification of a user as read.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	if err := s.repo.MarkAllRead(ctx, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}
