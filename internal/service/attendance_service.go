package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/guardianlink/guardianlink-api/internal/models"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
)

type attendanceRepository interface {
	Upsert(ctx context.Context, record *models.AttendanceRecord) error
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)
}

type studentFinder interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

// RecordAttendanceRequest marks one student's attendance for a date.
type RecordAttendanceRequest struct {
	StudentID string                  `json:"student_id" validate:"required"`
	Date      string                  `json:"date" validate:"required"`
	Status    models.AttendanceStatus `json:"status" validate:"required"`
}

// AttendanceService records and reads daily attendance. Entries upsert per
// (student, date): re-recording the same day overwrites the status.
type AttendanceService struct {
	repo      attendanceRepository
	students  studentFinder
	directory teacherDirectory
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAttendanceService creates a service instance.
func NewAttendanceService(repo attendanceRepository, students studentFinder, directory teacherDirectory, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{repo: repo, students: students, directory: directory, validator: validate, logger: logger}
}

// Record upserts an attendance entry. Teachers may only record for classes in
// their assigned_classes grant; admins may record anywhere.
func (s *AttendanceService) Record(ctx context.Context, claims *models.JWTClaims, req RecordAttendanceRequest) (*models.AttendanceRecord, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if !models.ValidAttendanceStatus(req.Status) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be formatted YYYY-MM-DD")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if claims.Role == models.RoleTeacher {
		if err := s.requireClassGrant(ctx, claims, student.ClassName); err != nil {
			return nil, err
		}
	} else if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}

	record := &models.AttendanceRecord{
		StudentID:  student.ID,
		ClassName:  student.ClassName,
		Date:       date,
		Status:     req.Status,
		RecordedBy: claims.UserID,
	}
	if err := s.repo.Upsert(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record attendance")
	}
	return record, nil
}

// List returns attendance entries matching the filter.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	records, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	if records == nil {
		records = []models.AttendanceRecord{}
	}
	return records, nil
}

func (s *AttendanceService) requireClassGrant(ctx context.Context, claims *models.JWTClaims, className string) error {
	teacher, err := s.directory.FindByIdentity(ctx, claims)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "no teacher record found for this account")
		}
		return err
	}
	if !teacher.HasClass(className) {
		return appErrors.Clone(appErrors.ErrForbidden, "you are not assigned to this class")
	}
	return nil
}
