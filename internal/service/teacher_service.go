package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guardianlink/guardianlink-api/internal/models"
	"github.com/guardianlink/guardianlink-api/internal/repository"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
)

type teacherRepository interface {
	List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, int, error)
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByEmail(ctx context.Context, email string) (*models.Teacher, error)
	FindByUserID(ctx context.Context, userID string) (*models.Teacher, error)
	ExistsByEmail(ctx context.Context, email, excludeID string) (bool, error)
	ExistsByEmployeeID(ctx context.Context, employeeID, excludeID string) (bool, error)
	Create(ctx context.Context, teacher *models.Teacher) error
	Update(ctx context.Context, teacher *models.Teacher) error
	SetStatus(ctx context.Context, id string, status models.TeacherStatus) error
	MergeGrants(ctx context.Context, params repository.MergeGrantsParams) (*models.Teacher, error)
}

// CreateTeacherRequest describes a teacher provisioning payload.
type CreateTeacherRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	FullName   string `json:"full_name" validate:"required"`
	Department string `json:"department"`
	Semester   string `json:"semester"`
	UserID     string `json:"user_id"`
}

// UpdateTeacherRequest describes mutable teacher profile fields.
type UpdateTeacherRequest struct {
	Email      string               `json:"email" validate:"omitempty,email"`
	FullName   string               `json:"full_name"`
	Department string               `json:"department"`
	Semester   string               `json:"semester"`
	Status     models.TeacherStatus `json:"status"`
}

// MergeGrantsInput carries one approval's additions into the directory.
type MergeGrantsInput struct {
	TeacherID  string
	Subjects   []string
	Classes    []string
	Semester   string
	AssignedBy string
	Now        time.Time
}

// TeacherService is the authoritative directory of teacher identities and
// their current subject/class grants.
type TeacherService struct {
	repo        teacherRepository
	invalidator summaryInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewTeacherService creates a service instance.
func NewTeacherService(repo teacherRepository, validate *validator.Validate, logger *zap.Logger) *TeacherService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeacherService{repo: repo, validator: validate, logger: logger}
}

// SetSummaryInvalidator wires the dashboard cache; directory changes move the
// active-teacher count on the admin summary.
func (s *TeacherService) SetSummaryInvalidator(inv summaryInvalidator) {
	s.invalidator = inv
}

func (s *TeacherService) invalidateSummary(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateAdminSummary(ctx)
	}
}

// List returns teachers matching the filter.
func (s *TeacherService) List(ctx context.Context, filter models.TeacherFilter) ([]models.Teacher, *models.Pagination, error) {
	teachers, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return teachers, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one teacher by id.
func (s *TeacherService) Get(ctx context.Context, id string) (*models.Teacher, error) {
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}
	return teacher, nil
}

// Create provisions a teacher record after uniqueness checks.
func (s *TeacherService) Create(ctx context.Context, req CreateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	if req.Department != "" && !models.ValidDepartment(models.Department(req.Department)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department")
	}

	if exists, err := s.repo.ExistsByEmail(ctx, req.Email, ""); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher email")
	} else if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a teacher with this email already exists")
	}
	if exists, err := s.repo.ExistsByEmployeeID(ctx, req.EmployeeID, ""); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check employee id")
	} else if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "a teacher with this employee id already exists")
	}

	teacher := &models.Teacher{
		EmployeeID: req.EmployeeID,
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:   req.FullName,
		Status:     models.TeacherStatusActive,
	}
	if req.Department != "" {
		teacher.Department = &req.Department
	}
	if req.Semester != "" {
		teacher.Semester = &req.Semester
	}
	if req.UserID != "" {
		teacher.UserID = &req.UserID
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	s.invalidateSummary(ctx)
	return teacher, nil
}

// Update persists mutable teacher profile fields.
func (s *TeacherService) Update(ctx context.Context, id string, req UpdateTeacherRequest) (*models.Teacher, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid teacher payload")
	}
	teacher, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load teacher")
	}

	if req.Email != "" && !strings.EqualFold(req.Email, teacher.Email) {
		exists, err := s.repo.ExistsByEmail(ctx, req.Email, id)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check teacher email")
		}
		if exists {
			return nil, appErrors.Clone(appErrors.ErrConflict, "a teacher with this email already exists")
		}
		teacher.Email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if req.FullName != "" {
		teacher.FullName = req.FullName
	}
	if req.Department != "" {
		if !models.ValidDepartment(models.Department(req.Department)) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department")
		}
		teacher.Department = &req.Department
	}
	if req.Semester != "" {
		teacher.Semester = &req.Semester
	}
	if req.Status != "" {
		teacher.Status = req.Status
	}

	if err := s.repo.Update(ctx, teacher); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}
	if req.Status != "" {
		s.invalidateSummary(ctx)
	}
	return teacher, nil
}

// Deactivate marks a teacher INACTIVE. The directory never deletes rows.
func (s *TeacherService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.SetStatus(ctx, id, models.TeacherStatusInactive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate teacher")
	}
	s.invalidateSummary(ctx)
	return nil
}

// FindByIdentity resolves an authenticated caller to their directory record,
// trying the account link first and falling back to the email.
func (s *TeacherService) FindByIdentity(ctx context.Context, claims *models.JWTClaims) (*models.Teacher, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	teacher, err := s.repo.FindByUserID(ctx, claims.UserID)
	if err == nil {
		return teacher, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher")
	}
	if claims.Email == "" {
		return nil, sql.ErrNoRows
	}
	teacher, err = s.repo.FindByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve teacher")
	}
	return teacher, nil
}

// EnsureProvisioned resolves the caller's directory record, materialising a
// minimal one when the auth store and the directory have drifted apart. The
// generated employee id is a placeholder an admin is expected to correct.
func (s *TeacherService) EnsureProvisioned(ctx context.Context, claims *models.JWTClaims) (*models.Teacher, error) {
	teacher, err := s.FindByIdentity(ctx, claims)
	if err == nil {
		return teacher, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if claims.Email == "" || claims.FullName == "" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no teacher record found for this account")
	}

	teacher = &models.Teacher{
		UserID:     &claims.UserID,
		EmployeeID: fmt.Sprintf("TMP-%s", strings.ToUpper(uuid.NewString()[:8])),
		Email:      strings.ToLower(claims.Email),
		FullName:   claims.FullName,
		Status:     models.TeacherStatusActive,
	}
	if err := s.repo.Create(ctx, teacher); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to provision teacher record")
	}
	s.invalidateSummary(ctx)
	// Directory drift between the user store and the directory is worth
	// surfacing; the placeholder employee id marks rows needing cleanup.
	s.logger.Warn("provisioned missing teacher record",
		zap.String("teacher_id", teacher.ID),
		zap.String("user_id", claims.UserID),
		zap.String("employee_id", teacher.EmployeeID),
	)
	return teacher, nil
}

// MergeGrants widens a teacher's grant sets by set union. All approvals funnel
// through here; nothing else mutates assigned_subjects/assigned_classes.
func (s *TeacherService) MergeGrants(ctx context.Context, input MergeGrantsInput) (*models.Teacher, error) {
	params := repository.MergeGrantsParams{
		TeacherID:  input.TeacherID,
		Subjects:   input.Subjects,
		Classes:    input.Classes,
		AssignedBy: input.AssignedBy,
		Now:        input.Now,
	}
	if input.Semester != "" {
		params.Semester = &input.Semester
	}
	teacher, err := s.repo.MergeGrants(ctx, params)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "teacher not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to merge teacher grants")
	}
	return teacher, nil
}

// FindByID exposes directory lookup to the workflow engine.
func (s *TeacherService) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	return s.repo.FindByID(ctx, id)
}
