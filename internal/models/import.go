package models

import "time"

// ImportKind selects which roster a spreadsheet upload targets.
type ImportKind string

const (
	ImportKindStudents ImportKind = "students"
	ImportKindTeachers ImportKind = "teachers"
)

// ImportJobStatus tracks bulk import progress.
type ImportJobStatus string

const (
	ImportJobPending   ImportJobStatus = "PENDING"
	ImportJobRunning   ImportJobStatus = "RUNNING"
	ImportJobCompleted ImportJobStatus = "COMPLETED"
	ImportJobFailed    ImportJobStatus = "FAILED"
)

// ImportRowError records a single rejected spreadsheet row.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportJob summarises one bulk spreadsheet import run.
type ImportJob struct {
	ID            string           `json:"id"`
	Kind          ImportKind       `json:"kind"`
	Status        ImportJobStatus  `json:"status"`
	TotalRows     int              `json:"total_rows"`
	Imported      int              `json:"imported"`
	Skipped       int              `json:"skipped"`
	RowErrors     []ImportRowError `json:"row_errors,omitempty"`
	FailureReason string           `json:"failure_reason,omitempty"`
	SubmittedBy   string           `json:"submitted_by"`
	CreatedAt     time.Time        `json:"created_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
}
