package models

import "time"

// UserRole represents the available roles for the RBAC system. The literal
// values match the role names stored by the legacy system so existing data
// keeps working.
type UserRole string

const (
	RoleTeacher  UserRole = "Docente"
	RoleDirector UserRole = "Director"
	RoleDean     UserRole = "Decano"
	RoleAdmin    UserRole = "Admin"
)

// Valid reports whether the role is one of the known RBAC roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleTeacher, RoleDirector, RoleDean, RoleAdmin:
		return true
	}
	return false
}

// User represents an application user stored in the users table. SchoolID is
// the faculty affiliation every workflow guard resolves against.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	SchoolID     *string    `db:"school_id" json:"school_id,omitempty"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	SchoolID  string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
