package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/guardianlink/guardianlink-api/internal/models"
)

func newRoleRequestRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func pendingRequestRows(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "teacher_id", "teacher_name", "teacher_email", "employee_id", "department",
		"requested_subjects", "requested_classes", "request_message", "status", "admin_response",
		"reviewed_by", "reviewed_at", "created_at", "updated_at",
	}).AddRow(id, "teacher-1", "Test Teacher", "teacher@example.com", "EMP-001", "CSE",
		pq.StringArray{"Algorithms"}, pq.StringArray{}, nil, "pending", nil,
		nil, nil, time.Now(), time.Now())
}

func TestRoleRequestRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRoleRequestRepoMock(t)
	defer cleanup()

	repo := NewRoleRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO role_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.RoleRequest{
		TeacherID:         "teacher-1",
		TeacherName:       "Test Teacher",
		TeacherEmail:      "teacher@example.com",
		EmployeeID:        "EMP-001",
		Department:        models.DepartmentCSE,
		RequestedSubjects: pq.StringArray{"Algorithms"},
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.RoleRequestStatusPending, request.Status)
	require.NotNil(t, request.RequestedClasses)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRequestRepositoryCreateDuplicatePending(t *testing.T) {
	db, mock, cleanup := newRoleRequestRepoMock(t)
	defer cleanup()

	repo := NewRoleRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO role_requests")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: PendingUniqueConstraint})

	err := repo.Create(context.Background(), &models.RoleRequest{TeacherID: "teacher-1"})
	require.ErrorIs(t, err, ErrDuplicatePending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRequestRepositoryHasPending(t *testing.T) {
	db, mock, cleanup := newRoleRequestRepoMock(t)
	defer cleanup()

	repo := NewRoleRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM role_requests")).
		WithArgs("teacher-1", "pending").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	pending, err := repo.HasPending(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.True(t, pending)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM role_requests")).
		WithArgs("teacher-2", "pending").
		WillReturnError(sql.ErrNoRows)

	pending, err = repo.HasPending(context.Background(), "teacher-2")
	require.NoError(t, err)
	require.False(t, pending)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRoleRequestRepoMock(t)
	defer cleanup()

	repo := NewRoleRequestRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, teacher_id, teacher_name")).
		WithArgs("pending", "teacher-1").
		WillReturnRows(pendingRequestRows("req-1"))

	status := models.RoleRequestStatusPending
	list, err := repo.List(context.Background(), models.RoleRequestFilter{Status: &status, TeacherID: "teacher-1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "req-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRequestRepositoryMarkReviewed(t *testing.T) {
	db, mock, cleanup := newRoleRequestRepoMock(t)
	defer cleanup()

	repo := NewRoleRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE role_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkReviewed(context.Background(), ReviewRoleRequestParams{
		ID:               "req-1",
		Status:           models.RoleRequestStatusApproved,
		AdminResponse:    "approved",
		ReviewedBy:       "admin-1",
		ReviewedAt:       time.Now().UTC(),
		RequestedClasses: []string{"CSE-3A"},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRequestRepositoryMarkReviewedAlreadyProcessed(t *testing.T) {
	db, mock, cleanup := newRoleRequestRepoMock(t)
	defer cleanup()

	repo := NewRoleRequestRepository(db)
	// The pending guard matched no rows: another admin got there first.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE role_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.MarkReviewed(context.Background(), ReviewRoleRequestParams{
		ID:            "req-1",
		Status:        models.RoleRequestStatusRejected,
		AdminResponse: "no slots",
		ReviewedBy:    "admin-1",
		ReviewedAt:    time.Now().UTC(),
	})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRoleRequestRepositoryDelete(t *testing.T) {
	db, mock, cleanup := newRoleRequestRepoMock(t)
	defer cleanup()

	repo := NewRoleRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_requests")).
		WithArgs("req-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Delete(context.Background(), "req-1"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM role_requests")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Delete(context.Background(), "missing"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
