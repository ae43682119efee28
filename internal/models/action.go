package models

import "time"

// ActionState enumerates the per-action checklist states.
type ActionState string

const (
	ActionStatePending    ActionState = "Pendiente"
	ActionStateInProgress ActionState = "EnProgreso"
	ActionStateCompleted  ActionState = "Completada"
)

// Valid reports whether the state is one of the declared enum values.
func (s ActionState) Valid() bool {
	switch s {
	case ActionStatePending, ActionStateInProgress, ActionStateCompleted:
		return true
	}
	return false
}

// Action is a remediation checklist item owned by a plan.
type Action struct {
	ID          string      `db:"id" json:"id"`
	PlanID      string      `db:"plan_id" json:"plan_id"`
	Description string      `db:"description" json:"description"`
	State       ActionState `db:"estado" json:"estado"`
	TargetDate  *time.Time  `db:"target_date" json:"target_date,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
}
