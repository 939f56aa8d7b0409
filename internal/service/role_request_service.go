package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/guardianlink/guardianlink-api/internal/dto"
	"github.com/guardianlink/guardianlink-api/internal/models"
	"github.com/guardianlink/guardianlink-api/internal/repository"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
)

type roleRequestStore interface {
	Create(ctx context.Context, request *models.RoleRequest) error
	GetByID(ctx context.Context, id string) (*models.RoleRequest, error)
	HasPending(ctx context.Context, teacherID string) (bool, error)
	List(ctx context.Context, filter models.RoleRequestFilter) ([]models.RoleRequest, error)
	MarkReviewed(ctx context.Context, params repository.ReviewRoleRequestParams) error
	Delete(ctx context.Context, id string) error
}

type teacherDirectory interface {
	FindByID(ctx context.Context, id string) (*models.Teacher, error)
	FindByIdentity(ctx context.Context, claims *models.JWTClaims) (*models.Teacher, error)
	EnsureProvisioned(ctx context.Context, claims *models.JWTClaims) (*models.Teacher, error)
	MergeGrants(ctx context.Context, input MergeGrantsInput) (*models.Teacher, error)
}

type auditRecorder interface {
	CreateAuditLog(ctx context.Context, entry *models.AuditLog) error
}

// RoleRequestService drives the assignment request workflow: teachers submit
// asks, admins resolve them, approvals merge grants into the directory.
type RoleRequestService struct {
	store       roleRequestStore
	directory   teacherDirectory
	audit       auditRecorder
	invalidator summaryInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewRoleRequestService creates a service instance. audit may be nil.
func NewRoleRequestService(store roleRequestStore, directory teacherDirectory, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *RoleRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleRequestService{
		store:     store,
		directory: directory,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// SetSummaryInvalidator wires the dashboard cache; every request mutation
// changes the pending count shown on the admin summary.
func (s *RoleRequestService) SetSummaryInvalidator(inv summaryInvalidator) {
	s.invalidator = inv
}

func (s *RoleRequestService) invalidateSummary(ctx context.Context) {
	if s.invalidator != nil {
		s.invalidator.InvalidateAdminSummary(ctx)
	}
}

// Submit files a new pending request for the calling teacher. The caller's
// directory record is provisioned on the fly if the user store and directory
// have drifted. At most one pending request per teacher is allowed; the
// partial unique index backs up the application-level check.
func (s *RoleRequestService) Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitRoleRequest) (*models.RoleRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only teachers can submit assignment requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}
	if !models.ValidDepartment(req.Department) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown department")
	}
	subjects := dedupeTrimmed(req.RequestedSubjects)
	if len(subjects) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one subject is required")
	}

	teacher, err := s.directory.EnsureProvisioned(ctx, claims)
	if err != nil {
		return nil, err
	}
	if teacher.Status != models.TeacherStatusActive {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only active teachers can submit assignment requests")
	}

	pending, err := s.store.HasPending(ctx, teacher.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check pending requests")
	}
	if pending {
		return nil, appErrors.Clone(appErrors.ErrConflict, "you already have a pending assignment request")
	}

	request := &models.RoleRequest{
		TeacherID:         teacher.ID,
		TeacherName:       teacher.FullName,
		TeacherEmail:      teacher.Email,
		EmployeeID:        teacher.EmployeeID,
		Department:        req.Department,
		RequestedSubjects: subjects,
		Status:            models.RoleRequestStatusPending,
	}
	if msg := strings.TrimSpace(req.RequestMessage); msg != "" {
		request.RequestMessage = &msg
	}

	if err := s.store.Create(ctx, request); err != nil {
		// The check above races with concurrent submissions; the partial
		// unique index is the arbiter.
		if errors.Is(err, repository.ErrDuplicatePending) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "you already have a pending assignment request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment request")
	}

	s.invalidateSummary(ctx)
	s.recordAudit(ctx, claims.UserID, models.AuditActionRoleRequestSubmit, request.ID, nil, request)
	s.logger.Info("assignment request submitted",
		zap.String("request_id", request.ID),
		zap.String("teacher_id", teacher.ID),
		zap.String("department", string(request.Department)),
	)
	return request, nil
}

// List returns requests scoped by role: admins see everything, teachers only
// their own. A teacher without a directory record gets an empty list.
func (s *RoleRequestService) List(ctx context.Context, claims *models.JWTClaims, status *models.RoleRequestStatus, limit, offset int) ([]models.RoleRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RoleRequestFilter{Status: status, Limit: limit, Offset: offset}

	switch claims.Role {
	case models.RoleAdmin:
	case models.RoleTeacher:
		teacher, err := s.directory.FindByIdentity(ctx, claims)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []models.RoleRequest{}, nil
			}
			return nil, err
		}
		filter.TeacherID = teacher.ID
	default:
		return nil, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}

	requests, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignment requests")
	}
	if requests == nil {
		requests = []models.RoleRequest{}
	}
	return requests, nil
}

// Get returns one request; teachers may only see their own.
func (s *RoleRequestService) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.RoleRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment request")
	}
	if claims.Role != models.RoleAdmin {
		if err := s.mustOwn(ctx, claims, request); err != nil {
			return nil, err
		}
	}
	return request, nil
}

// Approve resolves a pending request in the teacher's favour. The admin picks
// the concrete classes; the requested subjects come from the request itself.
// Grants are merged into the directory before the request row flips, so a
// retry after a partial failure re-runs an idempotent merge.
func (s *RoleRequestService) Approve(ctx context.Context, claims *models.JWTClaims, id string, req dto.ApproveRoleRequest) (*dto.ApprovalResult, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can approve assignment requests")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid approval payload")
	}
	classes := dedupeTrimmed(req.Classes)
	if len(classes) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one class must be assigned")
	}

	request, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment request")
	}
	if request.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment request already processed")
	}

	now := s.now().UTC()
	teacher, err := s.directory.MergeGrants(ctx, MergeGrantsInput{
		TeacherID:  request.TeacherID,
		Subjects:   request.RequestedSubjects,
		Classes:    classes,
		Semester:   strings.TrimSpace(req.Semester),
		AssignedBy: claims.UserID,
		Now:        now,
	})
	if err != nil {
		return nil, err
	}

	response := strings.TrimSpace(req.AdminResponse)
	if response == "" {
		response = "approved"
	}
	err = s.store.MarkReviewed(ctx, repository.ReviewRoleRequestParams{
		ID:               request.ID,
		Status:           models.RoleRequestStatusApproved,
		AdminResponse:    response,
		ReviewedBy:       claims.UserID,
		ReviewedAt:       now,
		RequestedClasses: classes,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assignment request already processed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to approve assignment request")
	}

	request.Status = models.RoleRequestStatusApproved
	request.RequestedClasses = classes
	request.AdminResponse = &response
	request.ReviewedBy = &claims.UserID
	request.ReviewedAt = &now
	request.UpdatedAt = now

	s.invalidateSummary(ctx)
	s.recordAudit(ctx, claims.UserID, models.AuditActionRoleRequestApprove, request.ID, nil, request)
	s.logger.Info("assignment request approved",
		zap.String("request_id", request.ID),
		zap.String("teacher_id", request.TeacherID),
		zap.Strings("classes", classes),
	)

	return &dto.ApprovalResult{
		Request: request,
		Teacher: &models.GrantSummary{
			TeacherID:        teacher.ID,
			AssignedSubjects: teacher.AssignedSubjects,
			AssignedClasses:  teacher.AssignedClasses,
			Semester:         teacher.Semester,
			LastAssignedAt:   teacher.LastAssignedAt,
		},
	}, nil
}

// Reject resolves a pending request against the teacher. The reason is
// mandatory; rejection never touches the teacher's existing grants.
func (s *RoleRequestService) Reject(ctx context.Context, claims *models.JWTClaims, id string, req dto.RejectRoleRequest) (*models.RoleRequest, error) {
	if claims == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if claims.Role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only admins can reject assignment requests")
	}
	reason := strings.TrimSpace(req.AdminResponse)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")
	}

	request, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment request not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment request")
	}
	if request.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "assignment request already processed")
	}

	now := s.now().UTC()
	err = s.store.MarkReviewed(ctx, repository.ReviewRoleRequestParams{
		ID:            request.ID,
		Status:        models.RoleRequestStatusRejected,
		AdminResponse: reason,
		ReviewedBy:    claims.UserID,
		ReviewedAt:    now,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "assignment request already processed")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject assignment request")
	}

	request.Status = models.RoleRequestStatusRejected
	request.AdminResponse = &reason
	request.ReviewedBy = &claims.UserID
	request.ReviewedAt = &now
	request.UpdatedAt = now

	s.invalidateSummary(ctx)
	s.recordAudit(ctx, claims.UserID, models.AuditActionRoleRequestReject, request.ID, nil, request)
	s.logger.Info("assignment request rejected",
		zap.String("request_id", request.ID),
		zap.String("teacher_id", request.TeacherID),
	)
	return request, nil
}

// Delete removes a request. Admins may delete any request in any state;
// teachers may only delete their own.
func (s *RoleRequestService) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	if claims == nil {
		return appErrors.ErrUnauthorized
	}
	request, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment request")
	}
	if claims.Role != models.RoleAdmin {
		if err := s.mustOwn(ctx, claims, request); err != nil {
			return err
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment request not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete assignment request")
	}

	if request.Status == models.RoleRequestStatusPending {
		s.invalidateSummary(ctx)
	}
	s.recordAudit(ctx, claims.UserID, models.AuditActionRoleRequestDelete, request.ID, request, nil)
	return nil
}

func (s *RoleRequestService) mustOwn(ctx context.Context, claims *models.JWTClaims, request *models.RoleRequest) error {
	if claims.Role != models.RoleTeacher {
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	teacher, err := s.directory.FindByIdentity(ctx, claims)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
		}
		return err
	}
	if teacher.ID != request.TeacherID {
		return appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}
	return nil
}

func (s *RoleRequestService) recordAudit(ctx context.Context, userID, action, resourceID string, oldValue, newValue interface{}) {
	if s.audit == nil {
		return
	}
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "role_request",
		ResourceID: &resourceID,
	}
	if oldValue != nil {
		entry.OldValues, _ = json.Marshal(oldValue)
	}
	if newValue != nil {
		entry.NewValues, _ = json.Marshal(newValue)
	}
	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

// dedupeTrimmed trims whitespace, drops empties, and removes duplicates while
// keeping first-seen order.
func dedupeTrimmed(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
