package service

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/guardianlink/guardianlink-api/internal/models"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
	"github.com/guardianlink/guardianlink-api/pkg/jobs"
)

type studentCreatorStub struct {
	created []CreateStudentRequest
	failOn  string
}

func (s *studentCreatorStub) Create(_ context.Context, req CreateStudentRequest) (*models.Student, error) {
	if s.failOn != "" && req.AdmissionNo == s.failOn {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a student with this admission number already exists")
	}
	s.created = append(s.created, req)
	return &models.Student{AdmissionNo: req.AdmissionNo}, nil
}

type teacherCreatorStub struct {
	created []CreateTeacherRequest
}

func (s *teacherCreatorStub) Create(_ context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	s.created = append(s.created, req)
	return &models.Teacher{EmployeeID: req.EmployeeID}, nil
}

func newImportServiceForTest(students *studentCreatorStub, teachers *teacherCreatorStub) *ImportService {
	return NewImportService(students, teachers, nil, ImportConfig{
		WorkerConcurrency: 1,
		WorkerRetries:     1,
		WorkerRetryDelay:  time.Millisecond,
		MaxRows:           10,
	}, nil)
}

func TestImportServiceSubmitRejectsBadHeader(t *testing.T) {
	svc := newImportServiceForTest(&studentCreatorStub{}, &teacherCreatorStub{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	_, err := svc.Submit(ctx, adminClaims("admin-1"), models.ImportKindStudents,
		strings.NewReader("admission_no,name\nS-1,Alice"))
	requireAppError(t, err, http.StatusBadRequest)
}

func TestImportServiceSubmitForbidsNonAdmins(t *testing.T) {
	svc := newImportServiceForTest(&studentCreatorStub{}, &teacherCreatorStub{})
	_, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"),
		models.ImportKindStudents, strings.NewReader(""))
	requireAppError(t, err, http.StatusForbidden)
}

func TestImportServiceProcessRecordsRowErrors(t *testing.T) {
	students := &studentCreatorStub{failOn: "S-2"}
	svc := newImportServiceForTest(students, &teacherCreatorStub{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	csv := "admission_no,full_name,class_name,guardian_name,guardian_email\n" +
		"S-1,Alice,CSE-3A,Ann,ann@example.com\n" +
		"S-2,Bob,CSE-3A,Ben,ben@example.com\n"
	job, err := svc.Submit(ctx, adminClaims("admin-1"), models.ImportKindStudents, strings.NewReader(csv))
	require.NoError(t, err)
	require.Equal(t, 2, job.TotalRows)

	final := waitForJob(t, svc, job.ID, func(j *models.ImportJob) bool {
		return j.Status == models.ImportJobCompleted
	})
	require.Equal(t, 1, final.Imported)
	require.Equal(t, 1, final.Skipped)
	require.Len(t, final.RowErrors, 1)
	// Header is line 1, so the second data row is line 3.
	require.Equal(t, 3, final.RowErrors[0].Row)
	require.Len(t, students.created, 1)
}

func TestImportServiceMarksExhaustedJobsFailed(t *testing.T) {
	svc := newImportServiceForTest(&studentCreatorStub{}, &teacherCreatorStub{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc.Start(ctx)
	defer svc.Stop()

	job := &models.ImportJob{
		ID:        "job-1",
		Kind:      models.ImportKindStudents,
		Status:    models.ImportJobPending,
		CreatedAt: time.Now().UTC(),
	}
	svc.mu.Lock()
	svc.tracked[job.ID] = job
	svc.mu.Unlock()

	// A payload the handler cannot interpret errors on every attempt, so the
	// queue gives up and the job must surface as FAILED rather than sitting
	// at PENDING or RUNNING forever.
	require.NoError(t, svc.queue.Enqueue(jobs.Job{ID: job.ID, Type: "students", Payload: 42}))

	final := waitForJob(t, svc, job.ID, func(j *models.ImportJob) bool {
		return j.Status == models.ImportJobFailed
	})
	require.NotEmpty(t, final.FailureReason)
	require.NotNil(t, final.CompletedAt)
}

func waitForJob(t *testing.T, svc *ImportService, id string, done func(*models.ImportJob) bool) *models.ImportJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := svc.Get(context.Background(), id)
		require.NoError(t, err)
		if done(job) {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("import job never reached the expected state")
	return nil
}
