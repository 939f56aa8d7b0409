package service

import (
	"context"
	"database/sql"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/guardianlink/guardianlink-api/internal/models"
	"github.com/guardianlink/guardianlink-api/internal/repository"
)

type teacherRepoStub struct {
	byID      map[string]*models.Teacher
	created   []*models.Teacher
	mergeErr  error
	lastMerge repository.MergeGrantsParams
}

func newTeacherRepoStub(teachers ...*models.Teacher) *teacherRepoStub {
	s := &teacherRepoStub{byID: make(map[string]*models.Teacher)}
	for _, teacher := range teachers {
		s.byID[teacher.ID] = teacher
	}
	return s
}

func (s *teacherRepoStub) List(_ context.Context, _ models.TeacherFilter) ([]models.Teacher, int, error) {
	var out []models.Teacher
	for _, teacher := range s.byID {
		out = append(out, *teacher)
	}
	return out, len(out), nil
}

func (s *teacherRepoStub) FindByID(_ context.Context, id string) (*models.Teacher, error) {
	if teacher, ok := s.byID[id]; ok {
		return teacher, nil
	}
	return nil, sql.ErrNoRows
}

func (s *teacherRepoStub) FindByEmail(_ context.Context, email string) (*models.Teacher, error) {
	for _, teacher := range s.byID {
		if strings.EqualFold(teacher.Email, email) {
			return teacher, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *teacherRepoStub) FindByUserID(_ context.Context, userID string) (*models.Teacher, error) {
	for _, teacher := range s.byID {
		if teacher.UserID != nil && *teacher.UserID == userID {
			return teacher, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *teacherRepoStub) ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error) {
	teacher, err := s.FindByEmail(ctx, email)
	if err != nil {
		return false, nil
	}
	return teacher.ID != excludeID, nil
}

func (s *teacherRepoStub) ExistsByEmployeeID(_ context.Context, employeeID, excludeID string) (bool, error) {
	for _, teacher := range s.byID {
		if teacher.EmployeeID == employeeID && teacher.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *teacherRepoStub) Create(_ context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	if teacher.Status == "" {
		teacher.Status = models.TeacherStatusActive
	}
	s.byID[teacher.ID] = teacher
	s.created = append(s.created, teacher)
	return nil
}

func (s *teacherRepoStub) Update(_ context.Context, teacher *models.Teacher) error {
	if _, ok := s.byID[teacher.ID]; !ok {
		return sql.ErrNoRows
	}
	s.byID[teacher.ID] = teacher
	return nil
}

func (s *teacherRepoStub) SetStatus(_ context.Context, id string, status models.TeacherStatus) error {
	teacher, ok := s.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	teacher.Status = status
	return nil
}

func (s *teacherRepoStub) MergeGrants(_ context.Context, params repository.MergeGrantsParams) (*models.Teacher, error) {
	s.lastMerge = params
	if s.mergeErr != nil {
		return nil, s.mergeErr
	}
	teacher, ok := s.byID[params.TeacherID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	teacher.AssignedSubjects = unionStringsForTest(teacher.AssignedSubjects, params.Subjects)
	teacher.AssignedClasses = unionStringsForTest(teacher.AssignedClasses, params.Classes)
	if params.Semester != nil && *params.Semester != "" {
		teacher.Semester = params.Semester
	}
	return teacher, nil
}

func TestTeacherServiceCreate(t *testing.T) {
	repo := newTeacherRepoStub()
	svc := NewTeacherService(repo, nil, nil)

	teacher, err := svc.Create(context.Background(), CreateTeacherRequest{
		EmployeeID: "EMP-100",
		Email:      "New.Teacher@Example.com",
		FullName:   "New Teacher",
		Department: "CSE",
	})
	require.NoError(t, err)
	require.Equal(t, "new.teacher@example.com", teacher.Email)
	require.Equal(t, models.TeacherStatusActive, teacher.Status)
	require.NotNil(t, teacher.Department)
	require.Equal(t, "CSE", *teacher.Department)
}

func TestTeacherServiceCreateDuplicateEmail(t *testing.T) {
	repo := newTeacherRepoStub(activeTeacher("teacher-1", "user-1"))
	svc := NewTeacherService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		EmployeeID: "EMP-100",
		Email:      "teacher@example.com",
		FullName:   "Another Teacher",
	})
	requireAppError(t, err, http.StatusConflict)
}

func TestTeacherServiceCreateUnknownDepartment(t *testing.T) {
	repo := newTeacherRepoStub()
	svc := NewTeacherService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateTeacherRequest{
		EmployeeID: "EMP-100",
		Email:      "new@example.com",
		FullName:   "New Teacher",
		Department: "ARTS",
	})
	requireAppError(t, err, http.StatusBadRequest)
}

func TestTeacherServiceFindByIdentityFallsBackToEmail(t *testing.T) {
	teacher := activeTeacher("teacher-1", "user-1")
	teacher.UserID = nil
	repo := newTeacherRepoStub(teacher)
	svc := NewTeacherService(repo, nil, nil)

	found, err := svc.FindByIdentity(context.Background(), teacherClaims("user-1", "teacher@example.com"))
	require.NoError(t, err)
	require.Equal(t, "teacher-1", found.ID)
}

func TestTeacherServiceFindByIdentityMissing(t *testing.T) {
	repo := newTeacherRepoStub()
	svc := NewTeacherService(repo, nil, nil)

	_, err := svc.FindByIdentity(context.Background(), teacherClaims("user-9", "ghost@example.com"))
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTeacherServiceEnsureProvisionedExisting(t *testing.T) {
	repo := newTeacherRepoStub(activeTeacher("teacher-1", "user-1"))
	svc := NewTeacherService(repo, nil, nil)

	teacher, err := svc.EnsureProvisioned(context.Background(), teacherClaims("user-1", "teacher@example.com"))
	require.NoError(t, err)
	require.Equal(t, "teacher-1", teacher.ID)
	require.Empty(t, repo.created)
}

func TestTeacherServiceEnsureProvisionedCreatesRecord(t *testing.T) {
	repo := newTeacherRepoStub()
	svc := NewTeacherService(repo, nil, nil)

	teacher, err := svc.EnsureProvisioned(context.Background(), teacherClaims("user-2", "Drifted@Example.com"))
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	require.Equal(t, "drifted@example.com", teacher.Email)
	require.True(t, strings.HasPrefix(teacher.EmployeeID, "TMP-"))
	require.Equal(t, models.TeacherStatusActive, teacher.Status)
	require.NotNil(t, teacher.UserID)
	require.Equal(t, "user-2", *teacher.UserID)
}

func TestTeacherServiceEnsureProvisionedNeedsIdentity(t *testing.T) {
	repo := newTeacherRepoStub()
	svc := NewTeacherService(repo, nil, nil)

	claims := teacherClaims("user-3", "")
	_, err := svc.EnsureProvisioned(context.Background(), claims)
	requireAppError(t, err, http.StatusNotFound)
	require.Empty(t, repo.created)
}

func TestTeacherServiceMergeGrantsSemester(t *testing.T) {
	repo := newTeacherRepoStub(activeTeacher("teacher-1", "user-1"))
	svc := NewTeacherService(repo, nil, nil)

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	teacher, err := svc.MergeGrants(context.Background(), MergeGrantsInput{
		TeacherID:  "teacher-1",
		Subjects:   []string{"Algorithms"},
		Classes:    []string{"CSE-3A"},
		Semester:   "2026-odd",
		AssignedBy: "admin-1",
		Now:        now,
	})
	require.NoError(t, err)
	require.NotNil(t, repo.lastMerge.Semester)
	require.Equal(t, "2026-odd", *repo.lastMerge.Semester)
	require.Equal(t, now, repo.lastMerge.Now)
	require.NotNil(t, teacher.Semester)

	// An approval without a semester leaves the stored one alone.
	_, err = svc.MergeGrants(context.Background(), MergeGrantsInput{
		TeacherID:  "teacher-1",
		Subjects:   []string{"Databases"},
		AssignedBy: "admin-1",
	})
	require.NoError(t, err)
	require.Nil(t, repo.lastMerge.Semester)
}

func TestTeacherServiceMergeGrantsMissingTeacher(t *testing.T) {
	repo := newTeacherRepoStub()
	svc := NewTeacherService(repo, nil, nil)

	_, err := svc.MergeGrants(context.Background(), MergeGrantsInput{TeacherID: "missing", AssignedBy: "admin-1"})
	requireAppError(t, err, http.StatusNotFound)
}

func TestTeacherServiceDeactivate(t *testing.T) {
	repo := newTeacherRepoStub(activeTeacher("teacher-1", "user-1"))
	svc := NewTeacherService(repo, nil, nil)

	require.NoError(t, svc.Deactivate(context.Background(), "teacher-1"))
	require.Equal(t, models.TeacherStatusInactive, repo.byID["teacher-1"].Status)

	err := svc.Deactivate(context.Background(), "missing")
	requireAppError(t, err, http.StatusNotFound)
}
