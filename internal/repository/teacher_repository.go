package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/guardianlink/guardianlink-api/internal/models"
)

const teacherColumns = `id, user_id, employee_id, email, full_name, department, assigned_subjects,
       assigned_classes, semester, last_assigned_at, assigned_by, status, created_at, updated_at`

// TeacherRepository manages persistence for the teacher directory.
type TeacherRepository struct {
	db *sqlx.DB
}

// NewTeacherRepository constructs a TeacherRepository.
func NewTeacherRepository(db *sqlx.DB) *TeacherRepository {
	return &TeacherRepository{db: db}
}

// List returns teachers matching filters along with total count.
func (r *TeacherRepository) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error) {
	base := "FROM teachers WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Department != "" {
		conditions = append(conditions, fmt.Sprintf("department = $%d", len(args)+1))
		args = append(args, filter.Department)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(employee_id) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]string{
		"full_name":   "full_name",
		"email":       "email",
		"employee_id": "employee_id",
		"created_at":  "created_at",
		"updated_at":  "updated_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", teacherColumns, base, column, order, size, offset)
	var teachers []models.Teacher
	if err := r.db.SelectContext(ctx, &teachers, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list teachers: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count teachers: %w", err)
	}

	return teachers, total, nil
}

// FindByID fetches a teacher by ID.
func (r *TeacherRepository) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE id = $1`, teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, id); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindByEmail fetches a teacher by email.
func (r *TeacherRepository) FindByEmail(ctx context.Context, email string) (*models.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE LOWER(email) = LOWER($1)`, teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, email); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// FindByUserID fetches the directory row linked to an authenticated account.
func (r *TeacherRepository) FindByUserID(ctx context.Context, userID string) (*models.Teacher, error) {
	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE user_id = $1`, teacherColumns)
	var teacher models.Teacher
	if err := r.db.GetContext(ctx, &teacher, query, userID); err != nil {
		return nil, err
	}
	return &teacher, nil
}

// ExistsByEmail checks if another teacher uses the same email.
func (r *TeacherRepository) ExistsByEmail(ctx context.Context, email string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE LOWER(email) = LOWER($1)"
	args := []interface{}{email}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher email: %w", err)
	}
	return true, nil
}

// ExistsByEmployeeID checks if another teacher uses the same employee id.
func (r *TeacherRepository) ExistsByEmployeeID(ctx context.Context, employeeID string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM teachers WHERE employee_id = $1"
	args := []interface{}{employeeID}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check teacher employee id: %w", err)
	}
	return true, nil
}

// Create inserts a new teacher row.
func (r *TeacherRepository) Create(ctx context.Context, teacher *models.Teacher) error {
	if teacher.ID == "" {
		teacher.ID = uuid.NewString()
	}
	if teacher.Status == "" {
		teacher.Status = models.TeacherStatusActive
	}
	now := time.Now().UTC()
	if teacher.CreatedAt.IsZero() {
		teacher.CreatedAt = now
	}
	teacher.UpdatedAt = now
	if teacher.AssignedSubjects == nil {
		teacher.AssignedSubjects = pq.StringArray{}
	}
	if teacher.AssignedClasses == nil {
		teacher.AssignedClasses = pq.StringArray{}
	}
	const query = `INSERT INTO teachers
	(id, user_id, employee_id, email, full_name, department, assigned_subjects, assigned_classes,
	 semester, last_assigned_at, assigned_by, status, created_at, updated_at)
	VALUES (:id, :user_id, :employee_id, :email, :full_name, :department, :assigned_subjects, :assigned_classes,
	 :semester, :last_assigned_at, :assigned_by, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, teacher); err != nil {
		return fmt.Errorf("create teacher: %w", err)
	}
	return nil
}

// Update persists mutable profile fields.
func (r *TeacherRepository) Update(ctx context.Context, teacher *models.Teacher) error {
	teacher.UpdatedAt = time.Now().UTC()
	const query = `UPDATE teachers SET
	email = :email, full_name = :full_name, department = :department, semester = :semester,
	status = :status, updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, teacher)
	if err != nil {
		return fmt.Errorf("update teacher: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check updated teacher rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetStatus changes the employment status.
func (r *TeacherRepository) SetStatus(ctx context.Context, id string, status models.TeacherStatus) error {
	const query = `UPDATE teachers SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set teacher status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check teacher status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountActive returns the number of ACTIVE teachers.
func (r *TeacherRepository) CountActive(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM teachers WHERE status = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, models.TeacherStatusActive); err != nil {
		return 0, fmt.Errorf("count active teachers: %w", err)
	}
	return count, nil
}

// MergeGrantsParams carries one approval's additions to a teacher's grant set.
type MergeGrantsParams struct {
	TeacherID  string
	Subjects   []string
	Classes    []string
	Semester   *string
	AssignedBy string
	Now        time.Time
}

// MergeGrants is the single place that widens a teacher's assignment sets. It
// performs a set union under a row lock: existing grants are never removed and
// re-running the same merge is a no-op, which is what makes the approve flow
// safe to retry.
func (r *TeacherRepository) MergeGrants(ctx context.Context, params MergeGrantsParams) (*models.Teacher, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin merge grants: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM teachers WHERE id = $1 FOR UPDATE`, teacherColumns)
	var teacher models.Teacher
	if err := tx.GetContext(ctx, &teacher, query, params.TeacherID); err != nil {
		return nil, err
	}

	now := params.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	teacher.AssignedSubjects = unionStrings(teacher.AssignedSubjects, params.Subjects)
	teacher.AssignedClasses = unionStrings(teacher.AssignedClasses, params.Classes)
	if params.Semester != nil && *params.Semester != "" {
		teacher.Semester = params.Semester
	}
	teacher.LastAssignedAt = &now
	teacher.AssignedBy = &params.AssignedBy
	teacher.UpdatedAt = now

	const update = `UPDATE teachers SET
	assigned_subjects = :assigned_subjects, assigned_classes = :assigned_classes,
	semester = :semester, last_assigned_at = :last_assigned_at, assigned_by = :assigned_by,
	updated_at = :updated_at
	WHERE id = :id`
	if _, err := tx.NamedExecContext(ctx, update, &teacher); err != nil {
		return nil, fmt.Errorf("merge teacher grants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit merge grants: %w", err)
	}
	return &teacher, nil
}

func unionStrings(existing pq.StringArray, additions []string) pq.StringArray {
	seen := make(map[string]struct{}, len(existing)+len(additions))
	merged := make(pq.StringArray, 0, len(existing)+len(additions))
	for _, v := range existing {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	for _, v := range additions {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	return merged
}
