package dto

// AdminDashboardSummary aggregates the counters shown on the admin landing view.
type AdminDashboardSummary struct {
	ActiveStudents      int   `json:"active_students"`
	ActiveTeachers      int   `json:"active_teachers"`
	PendingRoleRequests int   `json:"pending_role_requests"`
	FeesDue             int64 `json:"fees_due"`
	FeesCollected       int64 `json:"fees_collected"`
}

// TeacherDashboardSummary shows a teacher their current grants and request state.
type TeacherDashboardSummary struct {
	AssignedSubjects  []string `json:"assigned_subjects"`
	AssignedClasses   []string `json:"assigned_classes"`
	HasPendingRequest bool     `json:"has_pending_request"`
}
