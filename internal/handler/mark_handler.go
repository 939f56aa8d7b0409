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

// MarkHandler exposes marks endpoints.
type MarkHandler struct {
	service *service.MarkService
}

// NewMarkHandler constructs the handler.
func NewMarkHandler(svc *service.MarkService) *MarkHandler {
	return &MarkHandler{service: svc}
}

// Enter godoc
// @Summary Enter a mark for a student
// @Tags Marks
// @Accept json
// @Produce json
// @Param payload body service.EnterMarkRequest true "Mark payload"
// @Success 201 {object} response.Envelope
// @Router /marks [post]
func (h *MarkHandler) Enter(c *gin.Context) {
	var req service.EnterMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid mark payload"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	mark, err := h.service.Enter(c.Request.Context(), claims, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, mark, nil)
}

// List godoc
// @Summary List marks
// @Tags Marks
// @Produce json
// @Param student_id query string false "Student ID"
// @Param subject query string false "Subject"
// @Param term query string false "Term"
// @Success 200 {object} response.Envelope
// @Router /marks [get]
func (h *MarkHandler) List(c *gin.Context) {
	filter := models.MarkFilter{
		StudentID: strings.TrimSpace(c.Query("student_id")),
		Subject:   strings.TrimSpace(c.Query("subject")),
		Term:      strings.TrimSpace(c.Query("term")),
	}
	marks, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, marks, nil)
}
