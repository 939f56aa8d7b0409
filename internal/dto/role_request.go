package dto

import "github.com/guardianlink/guardianlink-api/internal/models"

// SubmitRoleRequest is the teacher-facing payload asking for assignments.
type SubmitRoleRequest struct {
	Department        models.Department `json:"department" validate:"required"`
	RequestedSubjects []string          `json:"requested_subjects" validate:"required,min=1,dive,required"`
	RequestMessage    string            `json:"request_message"`
}

// ApproveRoleRequest is the admin decision payload. Classes are chosen by the
// admin, never by the requesting teacher.
type ApproveRoleRequest struct {
	Classes       []string `json:"classes" validate:"required,min=1,dive,required"`
	AdminResponse string   `json:"admin_response"`
	Semester      string   `json:"semester"`
}

// RejectRoleRequest carries the mandatory rejection reason.
type RejectRoleRequest struct {
	AdminResponse string `json:"admin_response" validate:"required"`
}

// ApprovalResult pairs the resolved request with the teacher's merged grants.
type ApprovalResult struct {
	Request *models.RoleRequest  `json:"request"`
	Teacher *models.GrantSummary `json:"teacher"`
}
