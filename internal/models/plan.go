package models

import "time"

// PlanState enumerates the improvement plan workflow states. The dean-mediated
// path runs PendienteDecano -> Activo -> Cerrado with RechazadoDecano as a
// recoverable branch. Aprobado and Rechazado belong to the legacy single-step
// approval path and are kept for plans that never go through a dean.
type PlanState string

const (
	PlanStatePendingDean    PlanState = "PendienteDecano"
	PlanStateActive         PlanState = "Activo"
	PlanStateRejectedByDean PlanState = "RechazadoDecano"
	PlanStateClosed         PlanState = "Cerrado"
	PlanStateApproved       PlanState = "Aprobado"
	PlanStateRejected       PlanState = "Rechazado"
)

// Valid reports whether the state is one of the declared enum values.
func (s PlanState) Valid() bool {
	switch s {
	case PlanStatePendingDean, PlanStateActive, PlanStateRejectedByDean,
		PlanStateClosed, PlanStateApproved, PlanStateRejected:
		return true
	}
	return false
}

// Plan is an improvement plan assigned to a teacher. State never changes by
// direct field assignment outside the plan service; every mutation goes
// through a guarded repository transition.
type Plan struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	State       PlanState `db:"estado" json:"estado"`
	TeacherID   string    `db:"teacher_id" json:"teacher_id"`
	CreatedByID string    `db:"created_by" json:"created_by"`
	IncidentID  *string   `db:"incident_id" json:"incident_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// PlanDetail is a plan enriched with its teacher and faculty context plus the
// owned sub-collections, as returned by detail endpoints.
type PlanDetail struct {
	Plan
	TeacherName string     `json:"teacher_name"`
	SchoolID    *string    `json:"school_id,omitempty"`
	SchoolName  string     `json:"school_name,omitempty"`
	Actions     []Action   `json:"actions"`
	Approvals   []Approval `json:"approvals"`
}

// PlanListItem carries the joined columns used by plan listings.
type PlanListItem struct {
	Plan
	TeacherName string  `db:"teacher_name" json:"teacher_name"`
	SchoolID    *string `db:"school_id" json:"school_id,omitempty"`
	SchoolName  *string `db:"school_name" json:"school_name,omitempty"`
}

// PlanFilter captures filtering criteria for plan listings.
type PlanFilter struct {
	State     PlanState
	TeacherID string
	SchoolID  string
	CreatedBy string
	Page      int
	PageSize  int
}

// Approval is one append-only ledger entry recording a single approval or
// rejection decision. Level stores the actor's role name at decision time.
type Approval struct {
	ID         string    `db:"id" json:"id"`
	PlanID     string    `db:"plan_id" json:"plan_id"`
	Level      UserRole  `db:"nivel" json:"nivel"`
	Approved   bool      `db:"aprobado" json:"aprobado"`
	Comment    *string   `db:"comentario" json:"comentario,omitempty"`
	ApprovedBy string    `db:"approved_by" json:"approved_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
