package models

import "time"

// Student represents an enrolled student record.
type Student struct {
	ID            string    `db:"id" json:"id"`
	AdmissionNo   string    `db:"admission_no" json:"admission_no"`
	FullName      string    `db:"full_name" json:"full_name"`
	ClassName     string    `db:"class_name" json:"class_name"`
	GuardianName  *string   `db:"guardian_name" json:"guardian_name,omitempty"`
	GuardianEmail *string   `db:"guardian_email" json:"guardian_email,omitempty"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// StudentFilter captures filtering options for listing students.
type StudentFilter struct {
	Search    string
	ClassName string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
