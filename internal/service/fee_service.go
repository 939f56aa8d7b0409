package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/guardianlink/guardianlink-api/internal/models"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
)

type feeRepository interface {
	Upsert(ctx context.Context, fee *models.FeeRecord) error
	List(ctx context.Context, filter models.FeeFilter) ([]models.FeeRecord, error)
	Totals(ctx context.Context) (int64, int64, error)
}

// UpsertFeeRequest records what a student owes and has paid for a term.
// Amounts are in the currency's minor unit.
type UpsertFeeRequest struct {
	StudentID  string `json:"student_id" validate:"required"`
	Term       string `json:"term" validate:"required"`
	AmountDue  int64  `json:"amount_due" validate:"min=0"`
	AmountPaid int64  `json:"amount_paid" validate:"min=0"`
}

// FeeService manages per-term fee records. The status is derived from the
// amounts, never set directly.
type FeeService struct {
	repo        feeRepository
	students    studentFinder
	invalidator summaryInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewFeeService creates a service instance.
func NewFeeService(repo feeRepository, students studentFinder, validate *validator.Validate, logger *zap.Logger) *FeeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeService{repo: repo, students: students, validator: validate, logger: logger}
}

// SetSummaryInvalidator wires the dashboard cache; fee upserts move the
// collected/outstanding totals on the admin summary.
func (s *FeeService) SetSummaryInvalidator(inv summaryInvalidator) {
	s.invalidator = inv
}

// Upsert creates or updates the fee row for (student, term).
func (s *FeeService) Upsert(ctx context.Context, claims *models.JWTClaims, req UpsertFeeRequest) (*models.FeeRecord, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can manage fees")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee payload")
	}
	if req.AmountPaid > req.AmountDue {
		return nil, appErrors.Clone(appErrors.ErrValidation, "amount paid cannot exceed amount due")
	}

	if _, err := s.students.FindByID(ctx, req.StudentID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	fee := &models.FeeRecord{
		StudentID:  req.StudentID,
		Term:       strings.TrimSpace(req.Term),
		AmountDue:  req.AmountDue,
		AmountPaid: req.AmountPaid,
		UpdatedBy:  &claims.UserID,
	}
	if err := s.repo.Upsert(ctx, fee); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save fee record")
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateAdminSummary(ctx)
	}
	return fee, nil
}

// List returns fee records matching the filter.
func (s *FeeService) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeRecord, error) {
	fees, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee records")
	}
	if fees == nil {
		fees = []models.FeeRecord{}
	}
	return fees, nil
}
