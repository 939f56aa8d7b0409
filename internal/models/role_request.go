package models

import (
	"time"

	"github.com/lib/pq"
)

// Department is the closed set of academic divisions a teacher may request
// assignments in.
type Department string

const (
	DepartmentCSE Department = "CSE"
	DepartmentECE Department = "ECE"
	DepartmentEEE Department = "EEE"
	DepartmentME  Department = "ME"
	DepartmentCE  Department = "CE"
	DepartmentChE Department = "CHE"
)

// Departments lists every valid department value.
func Departments() []Department {
	return []Department{DepartmentCSE, DepartmentECE, DepartmentEEE, DepartmentME, DepartmentCE, DepartmentChE}
}

// ValidDepartment reports whether the value belongs to the closed enumeration.
func ValidDepartment(d Department) bool {
	switch d {
	case DepartmentCSE, DepartmentECE, DepartmentEEE, DepartmentME, DepartmentCE, DepartmentChE:
		return true
	}
	return false
}

// RoleRequestStatus captures workflow states for assignment requests.
type RoleRequestStatus string

const (
	RoleRequestStatusPending  RoleRequestStatus = "pending"
	RoleRequestStatusApproved RoleRequestStatus = "approved"
	RoleRequestStatusRejected RoleRequestStatus = "rejected"
)

// IsTerminal reports whether the status admits no further transitions.
func (s RoleRequestStatus) IsTerminal() bool {
	return s == RoleRequestStatusApproved || s == RoleRequestStatusRejected
}

// RoleRequest is a teacher's ask for subject/class assignments awaiting admin
// review. Teacher name, email and employee id are snapshotted at creation so
// the review queue renders without a join; the teachers table stays
// authoritative for current values.
type RoleRequest struct {
	ID                string            `db:"id" json:"id"`
	TeacherID         string            `db:"teacher_id" json:"teacher_id"`
	TeacherName       string            `db:"teacher_name" json:"teacher_name"`
	TeacherEmail      string            `db:"teacher_email" json:"teacher_email"`
	EmployeeID        string            `db:"employee_id" json:"employee_id"`
	Department        Department        `db:"department" json:"department"`
	RequestedSubjects pq.StringArray    `db:"requested_subjects" json:"requested_subjects"`
	RequestedClasses  pq.StringArray    `db:"requested_classes" json:"requested_classes"`
	RequestMessage    *string           `db:"request_message" json:"request_message,omitempty"`
	Status            RoleRequestStatus `db:"status" json:"status"`
	AdminResponse     *string           `db:"admin_response" json:"admin_response,omitempty"`
	ReviewedBy        *string           `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt        *time.Time        `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt         time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time         `db:"updated_at" json:"updated_at"`
}

// RoleRequestFilter constrains listing queries.
type RoleRequestFilter struct {
	Status    *RoleRequestStatus
	TeacherID string
	Limit     int
	Offset    int
}
