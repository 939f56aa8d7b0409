package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/guardianlink/guardianlink-api/internal/dto"
	"github.com/guardianlink/guardianlink-api/internal/models"
)

type invalidatorStub struct {
	calls int
}

func (s *invalidatorStub) InvalidateAdminSummary(_ context.Context) {
	s.calls++
}

type feeRepoStub struct {
	upserts []*models.FeeRecord
}

func (s *feeRepoStub) Upsert(_ context.Context, fee *models.FeeRecord) error {
	s.upserts = append(s.upserts, fee)
	return nil
}

func (s *feeRepoStub) List(_ context.Context, _ models.FeeFilter) ([]models.FeeRecord, error) {
	return nil, nil
}

func (s *feeRepoStub) Totals(_ context.Context) (int64, int64, error) {
	return 0, 0, nil
}

type singleStudentFinder struct {
	student *models.Student
}

func (s *singleStudentFinder) FindByID(_ context.Context, _ string) (*models.Student, error) {
	return s.student, nil
}

func TestRoleRequestMutationsDropCachedSummary(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	cacheStub := &invalidatorStub{}
	svc := NewRoleRequestService(store, directory, nil, nil, nil)
	svc.SetSummaryInvalidator(cacheStub)

	ctx := context.Background()
	claims := teacherClaims("user-1", "teacher@example.com")

	request, err := svc.Submit(ctx, claims, dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, cacheStub.calls)

	_, err = svc.Approve(ctx, adminClaims("admin-1"), request.ID, dto.ApproveRoleRequest{Classes: []string{"CSE-3A"}})
	require.NoError(t, err)
	require.Equal(t, 2, cacheStub.calls)

	// A resolved request no longer counts toward the pending queue, so
	// deleting it leaves the cache alone.
	require.NoError(t, svc.Delete(ctx, adminClaims("admin-1"), request.ID))
	require.Equal(t, 2, cacheStub.calls)

	pending, err := svc.Submit(ctx, claims, dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Databases"},
	})
	require.NoError(t, err)
	require.Equal(t, 3, cacheStub.calls)

	_, err = svc.Reject(ctx, adminClaims("admin-1"), pending.ID, dto.RejectRoleRequest{AdminResponse: "no slots"})
	require.NoError(t, err)
	require.Equal(t, 4, cacheStub.calls)
}

func TestRoleRequestDeletePendingDropsCachedSummary(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	cacheStub := &invalidatorStub{}
	svc := NewRoleRequestService(store, directory, nil, nil, nil)
	svc.SetSummaryInvalidator(cacheStub)

	ctx := context.Background()
	request, err := svc.Submit(ctx, teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, cacheStub.calls)

	require.NoError(t, svc.Delete(ctx, adminClaims("admin-1"), request.ID))
	require.Equal(t, 2, cacheStub.calls)
}

func TestTeacherMutationsDropCachedSummary(t *testing.T) {
	repo := newTeacherRepoStub()
	cacheStub := &invalidatorStub{}
	svc := NewTeacherService(repo, nil, nil)
	svc.SetSummaryInvalidator(cacheStub)

	ctx := context.Background()
	teacher, err := svc.Create(ctx, CreateTeacherRequest{
		EmployeeID: "EMP-100",
		Email:      "new@example.com",
		FullName:   "New Teacher",
	})
	require.NoError(t, err)
	require.Equal(t, 1, cacheStub.calls)

	require.NoError(t, svc.Deactivate(ctx, teacher.ID))
	require.Equal(t, 2, cacheStub.calls)

	// Profile-only edits leave the counters alone.
	_, err = svc.Update(ctx, teacher.ID, UpdateTeacherRequest{FullName: "Renamed Teacher"})
	require.NoError(t, err)
	require.Equal(t, 2, cacheStub.calls)

	_, err = svc.Update(ctx, teacher.ID, UpdateTeacherRequest{Status: models.TeacherStatusActive})
	require.NoError(t, err)
	require.Equal(t, 3, cacheStub.calls)
}

func TestFeeUpsertDropsCachedSummary(t *testing.T) {
	cacheStub := &invalidatorStub{}
	svc := NewFeeService(&feeRepoStub{}, &singleStudentFinder{student: &models.Student{ID: "student-1"}}, nil, nil)
	svc.SetSummaryInvalidator(cacheStub)

	_, err := svc.Upsert(context.Background(), adminClaims("admin-1"), UpsertFeeRequest{
		StudentID:  "student-1",
		Term:       "2026-odd",
		AmountDue:  50000,
		AmountPaid: 50000,
	})
	require.NoError(t, err)
	require.Equal(t, 1, cacheStub.calls)
}
