package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardianlink/guardianlink-api/internal/dto"
	"github.com/guardianlink/guardianlink-api/internal/middleware"
	"github.com/guardianlink/guardianlink-api/internal/models"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
)

type roleRequestServiceMock struct {
	submitResp    *models.RoleRequest
	submitErr     error
	listResp      []models.RoleRequest
	listErr       error
	approveResp   *dto.ApprovalResult
	approveErr    error
	rejectResp    *models.RoleRequest
	rejectErr     error
	deleteErr     error
	lastStatus    *models.RoleRequestStatus
	lastSubmit    dto.SubmitRoleRequest
	submitCalled  bool
	approveCalled bool
}

func (m *roleRequestServiceMock) Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitRoleRequest) (*models.RoleRequest, error) {
	m.submitCalled = true
	m.lastSubmit = req
	return m.submitResp, m.submitErr
}

func (m *roleRequestServiceMock) List(ctx context.Context, claims *models.JWTClaims, status *models.RoleRequestStatus, limit, offset int) ([]models.RoleRequest, error) {
	m.lastStatus = status
	return m.listResp, m.listErr
}

func (m *roleRequestServiceMock) Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.RoleRequest, error) {
	for i := range m.listResp {
		if m.listResp[i].ID == id {
			return &m.listResp[i], nil
		}
	}
	return nil, appErrors.ErrNotFound
}

func (m *roleRequestServiceMock) Approve(ctx context.Context, claims *models.JWTClaims, id string, req dto.ApproveRoleRequest) (*dto.ApprovalResult, error) {
	m.approveCalled = true
	return m.approveResp, m.approveErr
}

func (m *roleRequestServiceMock) Reject(ctx context.Context, claims *models.JWTClaims, id string, req dto.RejectRoleRequest) (*models.RoleRequest, error) {
	return m.rejectResp, m.rejectErr
}

func (m *roleRequestServiceMock) Delete(ctx context.Context, claims *models.JWTClaims, id string) error {
	return m.deleteErr
}

type workflowMetricsMock struct {
	events []string
}

func (m *workflowMetricsMock) RecordWorkflowEvent(event string) {
	m.events = append(m.events, event)
}

func newWorkflowTestContext(t *testing.T, method, target string, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestRoleRequestHandlerSubmit(t *testing.T) {
	mockSvc := &roleRequestServiceMock{
		submitResp: &models.RoleRequest{ID: "req-1", Status: models.RoleRequestStatusPending},
	}
	metrics := &workflowMetricsMock{}
	handler := NewRoleRequestHandler(mockSvc, metrics)

	c, w := newWorkflowTestContext(t, http.MethodPost, "/role-requests",
		`{"department":"CSE","requested_subjects":["Algorithms"]}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher})

	handler.Submit(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.submitCalled)
	assert.Equal(t, models.DepartmentCSE, mockSvc.lastSubmit.Department)
	assert.Equal(t, []string{"submit"}, metrics.events)
}

func TestRoleRequestHandlerSubmitInvalidBody(t *testing.T) {
	metrics := &workflowMetricsMock{}
	handler := NewRoleRequestHandler(&roleRequestServiceMock{}, metrics)

	c, w := newWorkflowTestContext(t, http.MethodPost, "/role-requests", `{"department":`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher})

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, metrics.events)
}

func TestRoleRequestHandlerSubmitMissingClaims(t *testing.T) {
	handler := NewRoleRequestHandler(&roleRequestServiceMock{}, nil)

	c, w := newWorkflowTestContext(t, http.MethodPost, "/role-requests",
		`{"department":"CSE","requested_subjects":["Algorithms"]}`)

	handler.Submit(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleRequestHandlerListStatusFilter(t *testing.T) {
	mockSvc := &roleRequestServiceMock{listResp: []models.RoleRequest{{ID: "req-1"}}}
	handler := NewRoleRequestHandler(mockSvc, nil)

	c, w := newWorkflowTestContext(t, http.MethodGet, "/role-requests?status=Pending", "")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastStatus)
	assert.Equal(t, models.RoleRequestStatusPending, *mockSvc.lastStatus)
}

func TestRoleRequestHandlerListUnknownStatus(t *testing.T) {
	handler := NewRoleRequestHandler(&roleRequestServiceMock{}, nil)

	c, w := newWorkflowTestContext(t, http.MethodGet, "/role-requests?status=archived", "")
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoleRequestHandlerApprove(t *testing.T) {
	mockSvc := &roleRequestServiceMock{
		approveResp: &dto.ApprovalResult{
			Request: &models.RoleRequest{ID: "req-1", Status: models.RoleRequestStatusApproved},
		},
	}
	metrics := &workflowMetricsMock{}
	handler := NewRoleRequestHandler(mockSvc, metrics)

	c, w := newWorkflowTestContext(t, http.MethodPost, "/role-requests/req-1/approve",
		`{"classes":["CSE-3A"]}`)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Approve(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, mockSvc.approveCalled)
	assert.Equal(t, []string{"approve"}, metrics.events)
}

func TestRoleRequestHandlerApproveConflict(t *testing.T) {
	mockSvc := &roleRequestServiceMock{
		approveErr: appErrors.Clone(appErrors.ErrConflict, "this request was already processed"),
	}
	metrics := &workflowMetricsMock{}
	handler := NewRoleRequestHandler(mockSvc, metrics)

	c, w := newWorkflowTestContext(t, http.MethodPost, "/role-requests/req-1/approve",
		`{"classes":["CSE-3A"]}`)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Approve(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, metrics.events)
}

func TestRoleRequestHandlerReject(t *testing.T) {
	mockSvc := &roleRequestServiceMock{
		rejectResp: &models.RoleRequest{ID: "req-1", Status: models.RoleRequestStatusRejected},
	}
	metrics := &workflowMetricsMock{}
	handler := NewRoleRequestHandler(mockSvc, metrics)

	c, w := newWorkflowTestContext(t, http.MethodPost, "/role-requests/req-1/reject",
		`{"admin_response":"no open slots this term"}`)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})

	handler.Reject(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"reject"}, metrics.events)
}

func TestRoleRequestHandlerDelete(t *testing.T) {
	handler := NewRoleRequestHandler(&roleRequestServiceMock{}, nil)

	c, w := newWorkflowTestContext(t, http.MethodDelete, "/role-requests/req-1", "")
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher})

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
}

func TestRoleRequestHandlerDeleteForbidden(t *testing.T) {
	handler := NewRoleRequestHandler(&roleRequestServiceMock{deleteErr: appErrors.ErrForbidden}, nil)

	c, w := newWorkflowTestContext(t, http.MethodDelete, "/role-requests/req-9", "")
	c.Params = gin.Params{{Key: "id", Value: "req-9"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleTeacher})

	handler.Delete(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
