package models

import "time"

// IncidentState enumerates the incident review states.
type IncidentState string

const (
	IncidentStatePending  IncidentState = "Pendiente"
	IncidentStateReviewed IncidentState = "Revisado"
	IncidentStateArchived IncidentState = "Archivado"
)

// Valid reports whether the state is one of the declared enum values.
func (s IncidentState) Valid() bool {
	switch s {
	case IncidentStatePending, IncidentStateReviewed, IncidentStateArchived:
		return true
	}
	return false
}

// Incident is a recorded event that may justify creating a plan. The plan
// workflow only reads incidents; their lifecycle is driven by the incident
// endpoints.
type Incident struct {
	ID          string        `db:"id" json:"id"`
	Description string        `db:"description" json:"description"`
	TeacherID   string        `db:"teacher_id" json:"teacher_id"`
	State       IncidentState `db:"estado" json:"estado"`
	CreatedAt   time.Time     `db:"created_at" json:"created_at"`
}
