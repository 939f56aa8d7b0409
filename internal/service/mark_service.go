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

type markRepository interface {
	Upsert(ctx context.Context, mark *models.Mark) error
	List(ctx context.Context, filter models.MarkFilter) ([]models.Mark, error)
}

// EnterMarkRequest records a student's score for one subject and term.
type EnterMarkRequest struct {
	StudentID string  `json:"student_id" validate:"required"`
	Subject   string  `json:"subject" validate:"required"`
	Term      string  `json:"term" validate:"required"`
	Score     float64 `json:"score" validate:"min=0"`
	MaxScore  float64 `json:"max_score" validate:"required,gt=0"`
}

// MarkService enters and reads marks. Entries upsert per
// (student, subject, term); re-entry overwrites the score.
type MarkService struct {
	repo      markRepository
	students  studentFinder
	directory teacherDirectory
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMarkService creates a service instance.
func NewMarkService(repo markRepository, students studentFinder, directory teacherDirectory, validate *validator.Validate, logger *zap.Logger) *MarkService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarkService{repo: repo, students: students, directory: directory, validator: validate, logger: logger}
}

// Enter upserts a mark. Teachers may only enter marks for subjects in their
// assigned_subjects grant; admins may enter anywhere.
func (s *MarkService) Enter(ctx context.Context, claims *models.JWTClaims, req EnterMarkRequest) (*models.Mark, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid mark payload")
	}
	if req.Score > req.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score cannot exceed max score")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	subject := strings.TrimSpace(req.Subject)
	if claims.Role == models.RoleTeacher {
		teacher, err := s.directory.FindByIdentity(ctx, claims)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrForbidden, "no teacher record found for this account")
			}
			return nil, err
		}
		if !teacher.HasSubject(subject) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "you are not assigned to this subject")
		}
	} else if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}

	mark := &models.Mark{
		StudentID: student.ID,
		Subject:   subject,
		Term:      strings.TrimSpace(req.Term),
		Score:     req.Score,
		MaxScore:  req.MaxScore,
		EnteredBy: claims.UserID,
	}
	if err := s.repo.Upsert(ctx, mark); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save mark")
	}
	return mark, nil
}

// List returns marks matching the filter.
func (s *MarkService) List(ctx context.Context, filter models.MarkFilter) ([]models.Mark, error) {
	marks, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list marks")
	}
	if marks == nil {
		marks = []models.Mark{}
	}
	return marks, nil
}
