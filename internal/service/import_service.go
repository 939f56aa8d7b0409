package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardianlink/guardianlink-api/internal/models"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
	"github.com/guardianlink/guardianlink-api/pkg/jobs"
)

type studentCreator interface {
	Create(ctx context.Context, req CreateStudentRequest) (*models.Student, error)
}

type teacherCreator interface {
	Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error)
}

type importMetrics interface {
	RecordImportRows(kind, outcome string, n int)
}

// ImportConfig tunes the bulk import pipeline.
type ImportConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
	WorkerRetryDelay  time.Duration
	MaxRows           int
}

type importPayload struct {
	jobID   string
	kind    models.ImportKind
	headers []string
	rows    [][]string
}

var studentImportHeaders = []string{"admission_no", "full_name", "class_name", "guardian_name", "guardian_email"}
var teacherImportHeaders = []string{"employee_id", "email", "full_name", "department", "semester"}

// ImportService accepts roster spreadsheets, validates them row by row, and
// applies them on a background worker pool. Job state lives in memory; a
// restart forgets finished jobs but never half-applies a row.
type ImportService struct {
	students studentCreator
	teachers teacherCreator
	metrics  importMetrics
	queue    *jobs.Queue
	logger   *zap.Logger
	maxRows  int

	mu      sync.RWMutex
	tracked map[string]*models.ImportJob
}

// NewImportService creates the service and its worker queue. Call Start
// before submitting and Stop on shutdown.
func NewImportService(students studentCreator, teachers teacherCreator, metrics importMetrics, cfg ImportConfig, logger *zap.Logger) *ImportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 1000
	}
	s := &ImportService{
		students: students,
		teachers: teachers,
		metrics:  metrics,
		logger:   logger,
		maxRows:  maxRows,
		tracked:  make(map[string]*models.ImportJob),
	}
	s.queue = jobs.NewQueue("bulk-import", s.process, jobs.QueueConfig{
		Workers:     cfg.WorkerConcurrency,
		MaxRetries:  cfg.WorkerRetries,
		RetryDelay:  cfg.WorkerRetryDelay,
		OnExhausted: s.markFailed,
		Logger:      logger,
	})
	return s
}

// Start launches the worker pool.
func (s *ImportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *ImportService) Stop() {
	s.queue.Stop()
}

// Submit parses and enqueues a spreadsheet. Parsing errors fail fast; row
// level validation happens on the workers.
func (s *ImportService) Submit(ctx context.Context, claims *models.JWTClaims, kind models.ImportKind, r io.Reader) (*models.ImportJob, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can run bulk imports")
	}

	var expected []string
	switch kind {
	case models.ImportKindStudents:
		expected = studentImportHeaders
	case models.ImportKindTeachers:
		expected = teacherImportHeaders
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "import kind must be students or teachers")
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is empty or not valid CSV")
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	if err := validateImportHeader(header, expected); err != nil {
		return nil, err
	}

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("CSV parse error: %v", err))
		}
		rows = append(rows, record)
		if len(rows) > s.maxRows {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d row limit", s.maxRows))
		}
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file contains no data rows")
	}

	job := &models.ImportJob{
		ID:          uuid.NewString(),
		Kind:        kind,
		Status:      models.ImportJobPending,
		TotalRows:   len(rows),
		SubmittedBy: claims.UserID,
		CreatedAt:   time.Now().UTC(),
	}
	s.mu.Lock()
	s.tracked[job.ID] = job
	s.mu.Unlock()

	err = s.queue.Enqueue(jobs.Job{
		ID:   job.ID,
		Type: string(kind),
		Payload: importPayload{
			jobID:   job.ID,
			kind:    kind,
			headers: header,
			rows:    rows,
		},
	})
	if err != nil {
		s.mu.Lock()
		delete(s.tracked, job.ID)
		s.mu.Unlock()
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "import queue is full, try again later")
	}

	s.logger.Info("bulk import accepted",
		zap.String("job_id", job.ID),
		zap.String("kind", string(kind)),
		zap.Int("rows", job.TotalRows),
	)
	return snapshotJob(job), nil
}

// Get returns the current state of an import job.
func (s *ImportService) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.tracked[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "import job not found")
	}
	return snapshotJob(job), nil
}

func (s *ImportService) process(ctx context.Context, queued jobs.Job) error {
	payload, ok := queued.Payload.(importPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", queued.Payload)
	}

	s.setStatus(payload.jobID, models.ImportJobRunning)

	index := make(map[string]int, len(payload.headers))
	for i, h := range payload.headers {
		index[h] = i
	}
	field := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	imported, skipped := 0, 0
	var rowErrors []models.ImportRowError
	for n, row := range payload.rows {
		var err error
		switch payload.kind {
		case models.ImportKindStudents:
			_, err = s.students.Create(ctx, CreateStudentRequest{
				AdmissionNo:   field(row, "admission_no"),
				FullName:      field(row, "full_name"),
				ClassName:     field(row, "class_name"),
				GuardianName:  field(row, "guardian_name"),
				GuardianEmail: field(row, "guardian_email"),
			})
		case models.ImportKindTeachers:
			_, err = s.teachers.Create(ctx, CreateTeacherRequest{
				EmployeeID: field(row, "employee_id"),
				Email:      field(row, "email"),
				FullName:   field(row, "full_name"),
				Department: field(row, "department"),
				Semester:   field(row, "semester"),
			})
		}
		if err != nil {
			skipped++
			// Header row is line 1.
			rowErrors = append(rowErrors, models.ImportRowError{Row: n + 2, Message: appErrors.FromError(err).Message})
			continue
		}
		imported++
	}

	if s.metrics != nil {
		s.metrics.RecordImportRows(string(payload.kind), "imported", imported)
		s.metrics.RecordImportRows(string(payload.kind), "skipped", skipped)
	}

	s.mu.Lock()
	if job, ok := s.tracked[payload.jobID]; ok {
		now := time.Now().UTC()
		job.Status = models.ImportJobCompleted
		job.Imported = imported
		job.Skipped = skipped
		job.RowErrors = rowErrors
		job.CompletedAt = &now
	}
	s.mu.Unlock()

	s.logger.Info("bulk import finished",
		zap.String("job_id", payload.jobID),
		zap.Int("imported", imported),
		zap.Int("skipped", skipped),
	)
	return nil
}

func (s *ImportService) setStatus(jobID string, status models.ImportJobStatus) {
	s.mu.Lock()
	if job, ok := s.tracked[jobID]; ok {
		job.Status = status
	}
	s.mu.Unlock()
}

// markFailed is the queue's exhaustion callback. Without it a job whose
// handler keeps erroring would sit at RUNNING forever while pollers wait.
func (s *ImportService) markFailed(queued jobs.Job, err error) {
	s.mu.Lock()
	if job, ok := s.tracked[queued.ID]; ok && job.Status != models.ImportJobCompleted {
		now := time.Now().UTC()
		job.Status = models.ImportJobFailed
		job.FailureReason = err.Error()
		job.CompletedAt = &now
	}
	s.mu.Unlock()

	s.logger.Error("bulk import failed",
		zap.String("job_id", queued.ID),
		zap.Error(err),
	)
}

func snapshotJob(job *models.ImportJob) *models.ImportJob {
	copied := *job
	if job.RowErrors != nil {
		copied.RowErrors = append([]models.ImportRowError(nil), job.RowErrors...)
	}
	return &copied
}

func validateImportHeader(header, expected []string) error {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, want := range expected {
		if !have[want] {
			missing = append(missing, want)
		}
	}
	if len(missing) > 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("missing required columns: %s", strings.Join(missing, ", ")))
	}
	return nil
}
