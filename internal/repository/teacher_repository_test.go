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

func newTeacherRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func teacherRows(id string, subjects, classes pq.StringArray) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "user_id", "employee_id", "email", "full_name", "department",
		"assigned_subjects", "assigned_classes", "semester", "last_assigned_at",
		"assigned_by", "status", "created_at", "updated_at",
	}).AddRow(id, nil, "EMP-001", "teacher@example.com", "Test Teacher", "CSE",
		subjects, classes, nil, nil,
		nil, "ACTIVE", time.Now(), time.Now())
}

func TestTeacherRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()

	repo := NewTeacherRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO teachers")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	department := "CSE"
	teacher := &models.Teacher{
		EmployeeID: "EMP-001",
		Email:      "teacher@example.com",
		FullName:   "Test Teacher",
		Department: &department,
	}
	require.NoError(t, repo.Create(context.Background(), teacher))
	require.NotEmpty(t, teacher.ID)
	require.Equal(t, models.TeacherStatusActive, teacher.Status)
	require.NotNil(t, teacher.AssignedSubjects)
	require.NotNil(t, teacher.AssignedClasses)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()

	repo := NewTeacherRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, employee_id")).
		WithArgs("teacher-1").
		WillReturnRows(teacherRows("teacher-1", pq.StringArray{"Algorithms"}, pq.StringArray{}))

	teacher, err := repo.FindByID(context.Background(), "teacher-1")
	require.NoError(t, err)
	require.Equal(t, "teacher-1", teacher.ID)
	require.Equal(t, pq.StringArray{"Algorithms"}, teacher.AssignedSubjects)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()

	repo := NewTeacherRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teachers")).
		WithArgs("teacher@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	exists, err := repo.ExistsByEmail(context.Background(), "teacher@example.com", "")
	require.NoError(t, err)
	require.True(t, exists)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM teachers")).
		WithArgs("new@example.com").
		WillReturnError(sql.ErrNoRows)

	exists, err = repo.ExistsByEmail(context.Background(), "new@example.com", "")
	require.NoError(t, err)
	require.False(t, exists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryMergeGrants(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()

	repo := NewTeacherRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("teacher-1").
		WillReturnRows(teacherRows("teacher-1", pq.StringArray{"Algorithms"}, pq.StringArray{"CSE-3A"}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teachers SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	semester := "2026-odd"
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	teacher, err := repo.MergeGrants(context.Background(), MergeGrantsParams{
		TeacherID:  "teacher-1",
		Subjects:   []string{"Algorithms", "Databases"},
		Classes:    []string{"CSE-3B"},
		Semester:   &semester,
		AssignedBy: "admin-1",
		Now:        now,
	})
	require.NoError(t, err)
	require.Equal(t, pq.StringArray{"Algorithms", "Databases"}, teacher.AssignedSubjects)
	require.Equal(t, pq.StringArray{"CSE-3A", "CSE-3B"}, teacher.AssignedClasses)
	require.NotNil(t, teacher.Semester)
	require.Equal(t, "2026-odd", *teacher.Semester)
	require.NotNil(t, teacher.LastAssignedAt)
	require.Equal(t, now, *teacher.LastAssignedAt)
	require.NotNil(t, teacher.AssignedBy)
	require.Equal(t, "admin-1", *teacher.AssignedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryMergeGrantsKeepsSemester(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()

	repo := NewTeacherRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("teacher-1").
		WillReturnRows(teacherRows("teacher-1", pq.StringArray{}, pq.StringArray{}))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE teachers SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	teacher, err := repo.MergeGrants(context.Background(), MergeGrantsParams{
		TeacherID:  "teacher-1",
		Subjects:   []string{"  Algorithms  ", ""},
		AssignedBy: "admin-1",
	})
	require.NoError(t, err)
	require.Equal(t, pq.StringArray{"Algorithms"}, teacher.AssignedSubjects)
	require.Nil(t, teacher.Semester)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTeacherRepositoryMergeGrantsMissingTeacher(t *testing.T) {
	db, mock, cleanup := newTeacherRepoMock(t)
	defer cleanup()

	repo := NewTeacherRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.MergeGrants(context.Background(), MergeGrantsParams{TeacherID: "missing"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUnionStrings(t *testing.T) {
	merged := unionStrings(pq.StringArray{"A", "B"}, []string{"B", "C", " C ", "", "D"})
	require.Equal(t, pq.StringArray{"A", "B", "C", "D"}, merged)
}
