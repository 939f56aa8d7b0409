package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/guardianlink/guardianlink-api/internal/models"
)

// PendingUniqueConstraint is the partial unique index closing the
// read-check-then-write race on pending submissions:
//
//	CREATE UNIQUE INDEX role_requests_one_pending_per_teacher
//	    ON role_requests (teacher_id) WHERE status = 'pending';
const PendingUniqueConstraint = "role_requests_one_pending_per_teacher"

// ErrDuplicatePending signals that the teacher already has a pending request.
var ErrDuplicatePending = errors.New("teacher already has a pending role request")

const roleRequestColumns = `id, teacher_id, teacher_name, teacher_email, employee_id, department,
       requested_subjects, requested_classes, request_message, status, admin_response,
       reviewed_by, reviewed_at, created_at, updated_at`

// RoleRequestRepository persists assignment request workflow data.
type RoleRequestRepository struct {
	db *sqlx.DB
}

// NewRoleRequestRepository constructs the repository.
func NewRoleRequestRepository(db *sqlx.DB) *RoleRequestRepository {
	return &RoleRequestRepository{db: db}
}

// Create inserts a new request row. A unique violation on the partial pending
// index is reported as ErrDuplicatePending.
func (r *RoleRequestRepository) Create(ctx context.Context, request *models.RoleRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RoleRequestStatusPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now
	if request.RequestedClasses == nil {
		request.RequestedClasses = pq.StringArray{}
	}
	const query = `INSERT INTO role_requests
	(id, teacher_id, teacher_name, teacher_email, employee_id, department, requested_subjects,
	 requested_classes, request_message, status, admin_response, reviewed_by, reviewed_at, created_at, updated_at)
	VALUES (:id, :teacher_id, :teacher_name, :teacher_email, :employee_id, :department, :requested_subjects,
	 :requested_classes, :request_message, :status, :admin_response, :reviewed_by, :reviewed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == PendingUniqueConstraint {
			return ErrDuplicatePending
		}
		return fmt.Errorf("create role request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *RoleRequestRepository) GetByID(ctx context.Context, id string) (*models.RoleRequest, error) {
	query := fmt.Sprintf(`SELECT %s FROM role_requests WHERE id = $1`, roleRequestColumns)
	var request models.RoleRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// HasPending reports whether the teacher currently has a pending request.
func (r *RoleRequestRepository) HasPending(ctx context.Context, teacherID string) (bool, error) {
	const query = `SELECT 1 FROM role_requests WHERE teacher_id = $1 AND status = $2 LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, teacherID, models.RoleRequestStatusPending); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check pending role request: %w", err)
	}
	return true, nil
}

// List returns requests matching the filter, newest first.
func (r *RoleRequestRepository) List(ctx context.Context, filter models.RoleRequestFilter) ([]models.RoleRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM role_requests", roleRequestColumns))

	conditions := make([]string, 0, 2)
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.TeacherID != "" {
		args = append(args, filter.TeacherID)
		conditions = append(conditions, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var requests []models.RoleRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list role requests: %w", err)
	}
	return requests, nil
}

// CountPending returns the size of the admin review queue.
func (r *RoleRequestRepository) CountPending(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM role_requests WHERE status = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, models.RoleRequestStatusPending); err != nil {
		return 0, fmt.Errorf("count pending role requests: %w", err)
	}
	return count, nil
}

// ReviewRoleRequestParams groups the columns written when resolving a request.
type ReviewRoleRequestParams struct {
	ID               string
	Status           models.RoleRequestStatus
	AdminResponse    string
	ReviewedBy       string
	ReviewedAt       time.Time
	RequestedClasses []string
}

// MarkReviewed flips a pending request into a terminal state. The update is
// guarded by status = 'pending' so a request resolved concurrently yields
// sql.ErrNoRows instead of a double review.
func (r *RoleRequestRepository) MarkReviewed(ctx context.Context, params ReviewRoleRequestParams) error {
	setParts := []string{
		"status = :status",
		"admin_response = :admin_response",
		"reviewed_by = :reviewed_by",
		"reviewed_at = :reviewed_at",
		"updated_at = :reviewed_at",
	}
	if params.RequestedClasses != nil {
		setParts = append(setParts, "requested_classes = :requested_classes")
	}
	query := fmt.Sprintf("UPDATE role_requests SET %s WHERE id = :id AND status = '%s'",
		strings.Join(setParts, ", "),
		models.RoleRequestStatusPending,
	)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":                params.ID,
		"status":            params.Status,
		"admin_response":    params.AdminResponse,
		"reviewed_by":       params.ReviewedBy,
		"reviewed_at":       params.ReviewedAt,
		"requested_classes": pq.StringArray(params.RequestedClasses),
	})
	if err != nil {
		return fmt.Errorf("mark role request reviewed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check role request update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a request regardless of status.
func (r *RoleRequestRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM role_requests WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete role request: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check deleted role request rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
