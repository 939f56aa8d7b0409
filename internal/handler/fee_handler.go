package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/guardianlink/guardianlink-api/internal/models"
	"github.com/guardianlink/guardianlink-api/internal/service"
	appErrors "github.com/guardianlink/guardianlink-api/pkg/errors"
	"github.com/guardianlink/guardianlink-api/pkg/response"
)

// FeeHandler exposes fee endpoints.
type FeeHandler struct {
	service *service.FeeService
}

// NewFeeHandler constructs the handler.
func NewFeeHandler(svc *service.FeeService) *FeeHandler {
	return &FeeHandler{service: svc}
}

// Upsert godoc
// @Summary Create or update a fee record
// @Tags Fees
// @Accept json
// @Produce json
// @Param payload body service.UpsertFeeRequest true "Fee payload"
// @Success 200 {object} response.Envelope
// @Router /fees [put]
func (h *FeeHandler) Upsert(c *gin.Context) {
	var req service.UpsertFeeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid fee payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	fee, err := h.service.Upsert(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fee, nil)
}

// List godoc
// @Summary List fee records
// @Tags Fees
// @Produce json
// @Param student_id query string false "Student ID"
// @Param term query string false "Term"
// @Param status query string false "PAID, PARTIAL or UNPAID"
// @Success 200 {object} response.Envelope
// @Router /fees [get]
func (h *FeeHandler) List(c *gin.Context) {
	filter := models.FeeFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		Term:      strings.TrimSpace(c.Query("term")),
	}
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		status := models.FeeStatus(raw)
		switch status {
		case models.FeePaid, models.FeePartial, models.FeeUnpaid:
			filter.Status = &status
		default:
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "status must be PAID, PARTIAL or UNPAID"))
			return
		}
	}

	fees, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fees, nil)
}
