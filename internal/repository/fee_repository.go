package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/guardianlink/guardianlink-api/internal/models"
)

// FeeRepository persists fee records.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// Upsert writes one fee row keyed by (student, term).
func (r *FeeRepository) Upsert(ctx context.Context, fee *models.FeeRecord) error {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = now
	}
	fee.UpdatedAt = now
	fee.Status = models.DeriveFeeStatus(fee.AmountDue, fee.AmountPaid)
	const query = `INSERT INTO fee_records (id, student_id, term, amount_due, amount_paid, status, updated_by, created_at, updated_at)
	VALUES (:id, :student_id, :term, :amount_due, :amount_paid, :status, :updated_by, :created_at, :updated_at)
	ON CONFLICT (student_id, term) DO UPDATE SET
	amount_due = EXCLUDED.amount_due, amount_paid = EXCLUDED.amount_paid,
	status = EXCLUDED.status, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, fee); err != nil {
		return fmt.Errorf("upsert fee record: %w", err)
	}
	return nil
}

// List returns fee records matching the filter.
func (r *FeeRepository) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeRecord, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 3)
	builder.WriteString(`SELECT id, student_id, term, amount_due, amount_paid, status, updated_by, created_at, updated_at FROM fee_records`)

	conditions := make([]string, 0, 3)
	if filter.StudentID != "" {
		args = append(args, filter.StudentID)
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.Term != "" {
		args = append(args, filter.Term)
		conditions = append(conditions, fmt.Sprintf("term = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY term DESC, student_id ASC")

	var fees []models.FeeRecord
	if err := r.db.SelectContext(ctx, &fees, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list fee records: %w", err)
	}
	return fees, nil
}

// Totals sums amounts due and paid across all fee records.
func (r *FeeRepository) Totals(ctx context.Context) (due int64, paid int64, err error) {
	const query = `SELECT COALESCE(SUM(amount_due), 0) AS due, COALESCE(SUM(amount_paid), 0) AS paid FROM fee_records`
	var totals struct {
		Due  int64 `db:"due"`
		Paid int64 `db:"paid"`
	}
	if err := r.db.GetContext(ctx, &totals, query); err != nil {
		return 0, 0, fmt.Errorf("sum fee totals: %w", err)
	}
	return totals.Due, totals.Paid, nil
}
