package models

import "time"

// NotificationKind labels the notification rows. Values mirror the kinds the
// web client already understands.
type NotificationKind string

const (
	NotificationLogin            NotificationKind = "login"
	NotificationPlanAssigned     NotificationKind = "plan_asignado"
	NotificationPlanPendingDean  NotificationKind = "plan_pendiente"
	NotificationPlanActive       NotificationKind = "plan_activo"
	NotificationPlanRejected     NotificationKind = "plan_rechazado"
	NotificationEvidenceUploaded NotificationKind = "evidencia_subida"
	NotificationComment          NotificationKind = "comentario"
	NotificationGeneral          NotificationKind = "general"
)

// Notification is a persisted in-app notification. EmailSent records whether
// the best-effort email fan-out ultimately succeeded.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Message   string           `db:"message" json:"message"`
	Subject   string           `db:"subject" json:"subject"`
	Read      bool             `db:"read" json:"read"`
	EmailSent bool             `db:"email_sent" json:"email_sent"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}
