package service

import (
	"context"
	"database/sql"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/guardianlink/guardianlink-api/internal/dto"
	"github.com/guardianlink/guardianlink-api/internal/models"
	"github.com/guardianlink/guardianlink-api/internal/repository"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
)

type roleRequestStoreStub struct {
	requests   map[string]*models.RoleRequest
	createErr  error
	nextID     int
	lastFilter models.RoleRequestFilter
}

func newRoleRequestStoreStub() *roleRequestStoreStub {
	return &roleRequestStoreStub{requests: make(map[string]*models.RoleRequest)}
}

func (s *roleRequestStoreStub) Create(ctx context.Context, request *models.RoleRequest) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.nextID++
	if request.ID == "" {
		request.ID = "req-" + string(rune('0'+s.nextID))
	}
	request.CreatedAt = time.Now().UTC()
	request.UpdatedAt = request.CreatedAt
	copied := *request
	s.requests[request.ID] = &copied
	return nil
}

func (s *roleRequestStoreStub) GetByID(ctx context.Context, id string) (*models.RoleRequest, error) {
	if req, ok := s.requests[id]; ok {
		copied := *req
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (s *roleRequestStoreStub) HasPending(ctx context.Context, teacherID string) (bool, error) {
	for _, req := range s.requests {
		if req.TeacherID == teacherID && req.Status == models.RoleRequestStatusPending {
			return true, nil
		}
	}
	return false, nil
}

func (s *roleRequestStoreStub) List(ctx context.Context, filter models.RoleRequestFilter) ([]models.RoleRequest, error) {
	s.lastFilter = filter
	var result []models.RoleRequest
	for _, req := range s.requests {
		if filter.TeacherID != "" && req.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Status != nil && req.Status != *filter.Status {
			continue
		}
		result = append(result, *req)
	}
	return result, nil
}

func (s *roleRequestStoreStub) MarkReviewed(ctx context.Context, params repository.ReviewRoleRequestParams) error {
	req, ok := s.requests[params.ID]
	if !ok || req.Status != models.RoleRequestStatusPending {
		return sql.ErrNoRows
	}
	req.Status = params.Status
	req.AdminResponse = &params.AdminResponse
	req.ReviewedBy = &params.ReviewedBy
	req.ReviewedAt = &params.ReviewedAt
	req.UpdatedAt = params.ReviewedAt
	if params.RequestedClasses != nil {
		req.RequestedClasses = params.RequestedClasses
	}
	return nil
}

func (s *roleRequestStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.requests[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.requests, id)
	return nil
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type directoryStub struct {
	teachers    map[string]*models.Teacher
	provisioned int
	mergeCalls  int
}

func newDirectoryStub(teachers ...*models.Teacher) *directoryStub {
	d := &directoryStub{teachers: make(map[string]*models.Teacher)}
	for _, t := range teachers {
		d.teachers[t.ID] = t
	}
	return d
}

func (d *directoryStub) FindByID(ctx context.Context, id string) (*models.Teacher, error) {
	if t, ok := d.teachers[id]; ok {
		copied := *t
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (d *directoryStub) FindByIdentity(ctx context.Context, claims *models.JWTClaims) (*models.Teacher, error) {
	for _, t := range d.teachers {
		if (t.UserID != nil && *t.UserID == claims.UserID) || t.Email == claims.Email {
			copied := *t
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (d *directoryStub) EnsureProvisioned(ctx context.Context, claims *models.JWTClaims) (*models.Teacher, error) {
	if t, err := d.FindByIdentity(ctx, claims); err == nil {
		return t, nil
	}
	d.provisioned++
	t := &models.Teacher{
		ID:         "teacher-" + claims.UserID,
		UserID:     &claims.UserID,
		EmployeeID: "TMP-AUTOGEN",
		Email:      claims.Email,
		FullName:   claims.FullName,
		Status:     models.TeacherStatusActive,
	}
	d.teachers[t.ID] = t
	copied := *t
	return &copied, nil
}

func (d *directoryStub) MergeGrants(ctx context.Context, input MergeGrantsInput) (*models.Teacher, error) {
	d.mergeCalls++
	t, ok := d.teachers[input.TeacherID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	t.AssignedSubjects = unionStringsForTest(t.AssignedSubjects, input.Subjects)
	t.AssignedClasses = unionStringsForTest(t.AssignedClasses, input.Classes)
	if input.Semester != "" {
		t.Semester = &input.Semester
	}
	t.LastAssignedAt = &input.Now
	t.AssignedBy = &input.AssignedBy
	copied := *t
	return &copied, nil
}

func unionStringsForTest(existing, additions []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := append([]string(nil), existing...)
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	for _, v := range additions {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func teacherClaims(userID, email string) *models.JWTClaims {
	return &models.JWTClaims{
		UserID:           userID,
		Role:             models.RoleTeacher,
		Email:            email,
		FullName:         "Test Teacher",
		RegisteredClaims: jwt.RegisteredClaims{},
	}
}

func adminClaims(userID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: userID, Role: models.RoleAdmin, Email: "admin@example.com", FullName: "Test Admin"}
}

func activeTeacher(id, userID string) *models.Teacher {
	return &models.Teacher{
		ID:         id,
		UserID:     &userID,
		EmployeeID: "EMP-001",
		Email:      "teacher@example.com",
		FullName:   "Test Teacher",
		Status:     models.TeacherStatusActive,
	}
}

func requireAppError(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	require.Equal(t, status, appErr.Status)
}

func TestRoleRequestSubmit(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	audit := &auditStub{}
	svc := NewRoleRequestService(store, directory, audit, nil, nil)

	request, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms", "Databases"},
		RequestMessage:    "second semester load",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleRequestStatusPending, request.Status)
	require.Equal(t, "teacher-1", request.TeacherID)
	require.Equal(t, "Test Teacher", request.TeacherName)
	require.Equal(t, []string{"Algorithms", "Databases"}, []string(request.RequestedSubjects))
	require.Empty(t, request.RequestedClasses)
	require.Len(t, audit.logs, 1)
	require.Equal(t, models.AuditActionRoleRequestSubmit, audit.logs[0].Action)
}

func TestRoleRequestSubmitRejectsSecondPending(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	svc := NewRoleRequestService(store, directory, nil, nil, nil)
	claims := teacherClaims("user-1", "teacher@example.com")

	_, err := svc.Submit(context.Background(), claims, dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), claims, dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Networks"},
	})
	requireAppError(t, err, http.StatusConflict)
}

func TestRoleRequestSubmitMapsDuplicateIndexViolation(t *testing.T) {
	store := newRoleRequestStoreStub()
	store.createErr = repository.ErrDuplicatePending
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	svc := NewRoleRequestService(store, directory, nil, nil, nil)

	_, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	requireAppError(t, err, http.StatusConflict)
}

func TestRoleRequestSubmitProvisionsMissingTeacher(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub()
	svc := NewRoleRequestService(store, directory, nil, nil, nil)

	request, err := svc.Submit(context.Background(), teacherClaims("user-9", "new@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentECE,
		RequestedSubjects: []string{"Signals"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, directory.provisioned)
	require.Equal(t, "teacher-user-9", request.TeacherID)
}

func TestRoleRequestSubmitForbidsNonTeachers(t *testing.T) {
	svc := NewRoleRequestService(newRoleRequestStoreStub(), newDirectoryStub(), nil, nil, nil)

	_, err := svc.Submit(context.Background(), adminClaims("admin-1"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	requireAppError(t, err, http.StatusForbidden)
}

func TestRoleRequestSubmitValidatesPayload(t *testing.T) {
	svc := NewRoleRequestService(newRoleRequestStoreStub(), newDirectoryStub(activeTeacher("teacher-1", "user-1")), nil, nil, nil)
	claims := teacherClaims("user-1", "teacher@example.com")

	_, err := svc.Submit(context.Background(), claims, dto.SubmitRoleRequest{
		Department: models.DepartmentCSE,
	})
	requireAppError(t, err, http.StatusBadRequest)

	_, err = svc.Submit(context.Background(), claims, dto.SubmitRoleRequest{
		Department:        models.Department("PHY"),
		RequestedSubjects: []string{"Optics"},
	})
	requireAppError(t, err, http.StatusBadRequest)
}

func TestRoleRequestApproveMergesGrants(t *testing.T) {
	store := newRoleRequestStoreStub()
	teacher := activeTeacher("teacher-1", "user-1")
	teacher.AssignedSubjects = []string{"Algorithms"}
	teacher.AssignedClasses = []string{"CSE-3A"}
	directory := newDirectoryStub(teacher)
	audit := &auditStub{}
	svc := NewRoleRequestService(store, directory, audit, nil, nil)

	claims := teacherClaims("user-1", "teacher@example.com")
	request, err := svc.Submit(context.Background(), claims, dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms", "Databases"},
	})
	require.NoError(t, err)

	result, err := svc.Approve(context.Background(), adminClaims("admin-1"), request.ID, dto.ApproveRoleRequest{
		Classes:  []string{"CSE-3A", "CSE-3B"},
		Semester: "2026-odd",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleRequestStatusApproved, result.Request.Status)
	require.Equal(t, []string{"CSE-3A", "CSE-3B"}, []string(result.Request.RequestedClasses))
	require.NotNil(t, result.Request.ReviewedAt)

	// Union semantics: existing grants survive, duplicates collapse.
	require.Equal(t, []string{"Algorithms", "Databases"}, result.Teacher.AssignedSubjects)
	require.Equal(t, []string{"CSE-3A", "CSE-3B"}, result.Teacher.AssignedClasses)
	require.Equal(t, "2026-odd", *result.Teacher.Semester)
	require.Len(t, audit.logs, 2)
}

func TestRoleRequestApproveRequiresClasses(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	svc := NewRoleRequestService(store, directory, nil, nil, nil)

	request, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), adminClaims("admin-1"), request.ID, dto.ApproveRoleRequest{})
	requireAppError(t, err, http.StatusBadRequest)

	_, err = svc.Approve(context.Background(), adminClaims("admin-1"), request.ID, dto.ApproveRoleRequest{
		Classes: []string{"  ", ""},
	})
	requireAppError(t, err, http.StatusBadRequest)
	require.Zero(t, directory.mergeCalls)
}

func TestRoleRequestApproveTerminalIsConflict(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	svc := NewRoleRequestService(store, directory, nil, nil, nil)

	request, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	require.NoError(t, err)

	_, err = svc.Approve(context.Background(), adminClaims("admin-1"), request.ID, dto.ApproveRoleRequest{
		Classes: []string{"CSE-3A"},
	})
	require.NoError(t, err)

	// Second approval attempt must not widen grants further.
	merges := directory.mergeCalls
	_, err = svc.Approve(context.Background(), adminClaims("admin-1"), request.ID, dto.ApproveRoleRequest{
		Classes: []string{"CSE-4A"},
	})
	requireAppError(t, err, http.StatusConflict)
	require.Equal(t, merges, directory.mergeCalls)

	_, err = svc.Reject(context.Background(), adminClaims("admin-1"), request.ID, dto.RejectRoleRequest{
		AdminResponse: "too late",
	})
	requireAppError(t, err, http.StatusConflict)
}

func TestRoleRequestApproveForbidsNonAdmins(t *testing.T) {
	svc := NewRoleRequestService(newRoleRequestStoreStub(), newDirectoryStub(), nil, nil, nil)
	_, err := svc.Approve(context.Background(), teacherClaims("user-1", "t@example.com"), "req-1", dto.ApproveRoleRequest{
		Classes: []string{"CSE-3A"},
	})
	requireAppError(t, err, http.StatusForbidden)
}

func TestRoleRequestRejectRequiresReason(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	svc := NewRoleRequestService(store, directory, nil, nil, nil)

	request, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), adminClaims("admin-1"), request.ID, dto.RejectRoleRequest{AdminResponse: "   "})
	requireAppError(t, err, http.StatusBadRequest)
}

func TestRoleRequestRejectLeavesGrantsUntouched(t *testing.T) {
	store := newRoleRequestStoreStub()
	teacher := activeTeacher("teacher-1", "user-1")
	teacher.AssignedSubjects = []string{"Algorithms"}
	directory := newDirectoryStub(teacher)
	svc := NewRoleRequestService(store, directory, nil, nil, nil)

	request, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Databases"},
	})
	require.NoError(t, err)

	rejected, err := svc.Reject(context.Background(), adminClaims("admin-1"), request.ID, dto.RejectRoleRequest{
		AdminResponse: "no open slots",
	})
	require.NoError(t, err)
	require.Equal(t, models.RoleRequestStatusRejected, rejected.Status)
	require.Equal(t, "no open slots", *rejected.AdminResponse)
	require.Zero(t, directory.mergeCalls)
	require.Equal(t, []string{"Algorithms"}, []string(directory.teachers["teacher-1"].AssignedSubjects))

	// The teacher can file again after a rejection.
	_, err = svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Databases"},
	})
	require.NoError(t, err)
}

func TestRoleRequestListScopedByRole(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	svc := NewRoleRequestService(store, directory, nil, nil, nil)

	_, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	require.NoError(t, err)

	all, err := svc.List(context.Background(), adminClaims("admin-1"), nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Empty(t, store.lastFilter.TeacherID)

	own, err := svc.List(context.Background(), teacherClaims("user-1", "teacher@example.com"), nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, "teacher-1", store.lastFilter.TeacherID)

	// Teacher accounts without directory records see an empty list.
	none, err := svc.List(context.Background(), teacherClaims("user-2", "other@example.com"), nil, 0, 0)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestRoleRequestDeleteOwnership(t *testing.T) {
	store := newRoleRequestStoreStub()
	owner := activeTeacher("teacher-1", "user-1")
	otherID := "user-2"
	other := &models.Teacher{
		ID:         "teacher-2",
		UserID:     &otherID,
		EmployeeID: "EMP-002",
		Email:      "other@example.com",
		FullName:   "Other Teacher",
		Status:     models.TeacherStatusActive,
	}
	directory := newDirectoryStub(owner, other)
	svc := NewRoleRequestService(store, directory, nil, nil, nil)

	request, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	require.NoError(t, err)

	err = svc.Delete(context.Background(), teacherClaims("user-2", "other@example.com"), request.ID)
	requireAppError(t, err, http.StatusForbidden)

	err = svc.Delete(context.Background(), teacherClaims("user-1", "teacher@example.com"), request.ID)
	require.NoError(t, err)

	err = svc.Delete(context.Background(), adminClaims("admin-1"), request.ID)
	requireAppError(t, err, http.StatusNotFound)
}

func TestRoleRequestGetOwnership(t *testing.T) {
	store := newRoleRequestStoreStub()
	directory := newDirectoryStub(activeTeacher("teacher-1", "user-1"))
	svc := NewRoleRequestService(store, directory, nil, nil, nil)

	request, err := svc.Submit(context.Background(), teacherClaims("user-1", "teacher@example.com"), dto.SubmitRoleRequest{
		Department:        models.DepartmentCSE,
		RequestedSubjects: []string{"Algorithms"},
	})
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), adminClaims("admin-1"), request.ID)
	require.NoError(t, err)
	require.Equal(t, request.ID, got.ID)

	_, err = svc.Get(context.Background(), teacherClaims("user-3", "stranger@example.com"), request.ID)
	requireAppError(t, err, http.StatusForbidden)

	_, err = svc.Get(context.Background(), adminClaims("admin-1"), "missing")
	requireAppError(t, err, http.StatusNotFound)
}
