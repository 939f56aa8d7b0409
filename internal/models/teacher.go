package models

import (
	"time"

	"github.com/lib/pq"
)

// TeacherStatus enumerates employment states. Only ACTIVE teachers may submit
// role requests or have them approved.
type TeacherStatus string

const (
	TeacherStatusActive   TeacherStatus = "ACTIVE"
	TeacherStatusInactive TeacherStatus = "INACTIVE"
	TeacherStatusOnLeave  TeacherStatus = "ON_LEAVE"
	TeacherStatusResigned TeacherStatus = "RESIGNED"
)

// Teacher is the authoritative directory record of a teacher's identity and
// current subject/class grants.
type Teacher struct {
	ID               string         `db:"id" json:"id"`
	UserID           *string        `db:"user_id" json:"user_id,omitempty"`
	EmployeeID       string         `db:"employee_id" json:"employee_id"`
	Email            string         `db:"email" json:"email"`
	FullName         string         `db:"full_name" json:"full_name"`
	Department       *string        `db:"department" json:"department,omitempty"`
	AssignedSubjects pq.StringArray `db:"assigned_subjects" json:"assigned_subjects"`
	AssignedClasses  pq.StringArray `db:"assigned_classes" json:"assigned_classes"`
	Semester         *string        `db:"semester" json:"semester,omitempty"`
	LastAssignedAt   *time.Time     `db:"last_assigned_at" json:"last_assigned_at,omitempty"`
	AssignedBy       *string        `db:"assigned_by" json:"assigned_by,omitempty"`
	Status           TeacherStatus  `db:"status" json:"status"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// HasSubject reports whether the subject is already granted.
func (t *Teacher) HasSubject(subject string) bool {
	for _, s := range t.AssignedSubjects {
		if s == subject {
			return true
		}
	}
	return false
}

// HasClass reports whether the class is already granted.
func (t *Teacher) HasClass(class string) bool {
	for _, c := range t.AssignedClasses {
		if c == class {
			return true
		}
	}
	return false
}

// TeacherFilter captures filtering options for listing teachers.
type TeacherFilter struct {
	Search     string
	Department string
	Status     *TeacherStatus
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// GrantSummary describes a teacher's grant set after an approval merge.
type GrantSummary struct {
	TeacherID        string     `json:"teacher_id"`
	AssignedSubjects []string   `json:"assigned_subjects"`
	AssignedClasses  []string   `json:"assigned_classes"`
	Semester         *string    `json:"semester,omitempty"`
	LastAssignedAt   *time.Time `json:"last_assigned_at,omitempty"`
}
