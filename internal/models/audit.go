package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin           = "LOGIN"
	AuditActionLogout          = "LOGOUT"
	AuditActionPasswordChange  = "PASSWORD_CHANGE"
	AuditActionPlanAssigned    = "PLAN_ASSIGNED"
	AuditActionPlanApproved    = "PLAN_APPROVED"
	AuditActionPlanRejected    = "PLAN_REJECTED"
	AuditActionPlanResubmitted = "PLAN_RESUBMITTED"
	AuditActionPlanClosed      = "PLAN_CLOSED"
	AuditActionApprovalDeleted = "APPROVAL_DELETED"
	AuditActionUserCreate      = "USER_CREATE"
	AuditActionUserUpdate      = "USER_UPDATE"
	AuditActionUserDelete      = "USER_DELETE"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID            string    `db:"id" json:"id"`
	UserID        *string   `db:"user_id" json:"user_id,omitempty"`
	Action        string    `db:"action" json:"action"`
	Resource      string    `db:"resource" json:"resource"`
	ResourceID    *string   `db:"resource_id" json:"resource_id,omitempty"`
	Description   string    `db:"description" json:"description"`
	AffectedLabel *string   `db:"affected_label" json:"affected_label,omitempty"`
	OldValues     []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues     []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress     string    `db:"ip_address" json:"ip_address"`
	UserAgent     string    `db:"user_agent" json:"user_agent"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// AuditFilter captures query criteria for the audit trail.
type AuditFilter struct {
	Resource string
	Action   string
	UserID   string
	DateFrom *time.Time
	DateTo   *time.Time
	Search   string
	Page     int
	PageSize int
}

// AuditActorCount is one row of the top-actors aggregate.
type AuditActorCount struct {
	UserID string `db:"user_id" json:"user_id"`
	Count  int    `db:"count" json:"count"`
}

// AuditStatistics aggregates audit trail activity for a date range.
type AuditStatistics struct {
	Total            int               `json:"total"`
	CountsByResource map[string]int    `json:"counts_by_resource"`
	CountsByAction   map[string]int    `json:"counts_by_action"`
	TopActors        []AuditActorCount `json:"top_actors"`
}
