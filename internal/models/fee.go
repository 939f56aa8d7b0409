package models

import "time"

// FeeStatus enumerates payment states shown on parent dashboards.
type FeeStatus string

const (
	FeePaid    FeeStatus = "PAID"
	FeePartial FeeStatus = "PARTIAL"
	FeeUnpaid  FeeStatus = "UNPAID"
)

// FeeRecord tracks what a student owes for a term. Amounts are stored in the
// currency's minor unit.
type FeeRecord struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Term       string    `db:"term" json:"term"`
	AmountDue  int64     `db:"amount_due" json:"amount_due"`
	AmountPaid int64     `db:"amount_paid" json:"amount_paid"`
	Status     FeeStatus `db:"status" json:"status"`
	UpdatedBy  *string   `db:"updated_by" json:"updated_by,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// DeriveFeeStatus computes the status from the paid/due amounts.
func DeriveFeeStatus(due, paid int64) FeeStatus {
	switch {
	case due > 0 && paid >= due:
		return FeePaid
	case paid > 0:
		return FeePartial
	default:
		return FeeUnpaid
	}
}

// FeeFilter constrains fee queries.
type FeeFilter struct {
	StudentID string
	Term      string
	Status    *FeeStatus
}
