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

// ImportHandler exposes bulk roster import endpoints.
type ImportHandler struct {
	service *service.ImportService
}

// NewImportHandler constructs the handler.
func NewImportHandler(svc *service.ImportService) *ImportHandler {
	return &ImportHandler{service: svc}
}

// Submit godoc
// @Summary Upload a roster CSV for background import
// @Tags Imports
// @Accept multipart/form-data
// @Produce json
// @Param kind query string true "students or teachers"
// @Param file formData file true "CSV file"
// @Success 202 {object} response.Envelope
// @Router /imports [post]
func (h *ImportHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	kind := models.ImportKind(strings.ToLower(strings.TrimSpace(c.Query("kind"))))

	file, _, err := c.Request.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "a CSV file upload is required"))
		return
	}
	defer file.Close()

	job, err := h.service.Submit(c.Request.Context(), claims, kind, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// Get godoc
// @Summary Poll an import job
// @Tags Imports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Router /imports/{id} [get]
func (h *ImportHandler) Get(c *gin.Context) {
	job, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, job, nil)
}
