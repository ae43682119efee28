package models

import "time"

// Evidence is an uploaded artifact attached to an action. Rows are immutable
// once created; the comment is mandatory at creation time.
type Evidence struct {
	ID         string    `db:"id" json:"id"`
	ActionID   string    `db:"action_id" json:"action_id"`
	Filename   string    `db:"filename" json:"filename"`
	Path       string    `db:"path" json:"-"`
	Comment    string    `db:"comment" json:"comment"`
	UploadedBy string    `db:"uploaded_by" json:"uploaded_by"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
