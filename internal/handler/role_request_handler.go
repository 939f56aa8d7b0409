package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/guardianlink/guardianlink-api/internal/dto"
	"github.com/guardianlink/guardianlink-api/internal/models"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
	"github.com/guardianlink/guardianlink-api/pkg/response"
)

type roleRequestService interface {
	Submit(ctx context.Context, claims *models.JWTClaims, req dto.SubmitRoleRequest) (*models.RoleRequest, error)
	List(ctx context.Context, claims *models.JWTClaims, status *models.RoleRequestStatus, limit, offset int) ([]models.RoleRequest, error)
	Get(ctx context.Context, claims *models.JWTClaims, id string) (*models.RoleRequest, error)
	Approve(ctx context.Context, claims *models.JWTClaims, id string, req dto.ApproveRoleRequest) (*dto.ApprovalResult, error)
	Reject(ctx context.Context, claims *models.JWTClaims, id string, req dto.RejectRoleRequest) (*models.RoleRequest, error)
	Delete(ctx context.Context, claims *models.JWTClaims, id string) error
}

type workflowMetrics interface {
	RecordWorkflowEvent(event string)
}

// RoleRequestHandler exposes REST endpoints for the assignment request workflow.
type RoleRequestHandler struct {
	service roleRequestService
	metrics workflowMetrics
}

// NewRoleRequestHandler constructs the handler. metrics may be nil.
func NewRoleRequestHandler(service roleRequestService, metrics workflowMetrics) *RoleRequestHandler {
	return &RoleRequestHandler{service: service, metrics: metrics}
}

// Submit godoc
// @Summary Submit an assignment request
// @Tags RoleRequests
// @Accept json
// @Produce json
// @Param payload body dto.SubmitRoleRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /role-requests [post]
func (h *RoleRequestHandler) Submit(c *gin.Context) {
	var req dto.SubmitRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Submit(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordWorkflowEvent("submit")
	}
	response.JSON(c, http.StatusCreated, request, nil)
}

// List godoc
// @Summary List assignment requests
// @Tags RoleRequests
// @Produce json
// @Param status query string false "pending, approved or rejected"
// @Success 200 {object} response.Envelope
// @Router /role-requests [get]
func (h *RoleRequestHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var status *models.RoleRequestStatus
	if raw := strings.ToLower(strings.TrimSpace(c.Query("status"))); raw != "" {
		value := models.RoleRequestStatus(raw)
		switch value {
		case models.RoleRequestStatusPending, models.RoleRequestStatusApproved, models.RoleRequestStatusRejected:
			status = &value
		default:
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status must be pending, approved or rejected"))
			return
		}
	}

	requests, err := h.service.List(c.Request.Context(), claims, status, queryInt(c, "limit"), queryInt(c, "offset"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get one assignment request
// @Tags RoleRequests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /role-requests/{id} [get]
func (h *RoleRequestHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Get(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Approve godoc
// @Summary Approve an assignment request
// @Tags RoleRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.ApproveRoleRequest true "Approval payload"
// @Success 200 {object} response.Envelope
// @Router /role-requests/{id}/approve [post]
func (h *RoleRequestHandler) Approve(c *gin.Context) {
	var req dto.ApproveRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid approval payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.service.Approve(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordWorkflowEvent("approve")
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Reject godoc
// @Summary Reject an assignment request
// @Tags RoleRequests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRoleRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Router /role-requests/{id}/reject [post]
func (h *RoleRequestHandler) Reject(c *gin.Context) {
	var req dto.RejectRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rejection payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.service.Reject(c.Request.Context(), claims, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.metrics != nil {
		h.metrics.RecordWorkflowEvent("reject")
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Departments godoc
// @Summary List the valid departments
// @Tags RoleRequests
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *RoleRequestHandler) Departments(c *gin.Context) {
	response.JSON(c, http.StatusOK, models.Departments(), nil)
}

// Delete godoc
// @Summary Delete an assignment request
// @Tags RoleRequests
// @Param id path string true "Request ID"
// @Success 204
// @Router /role-requests/{id} [delete]
func (h *RoleRequestHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
