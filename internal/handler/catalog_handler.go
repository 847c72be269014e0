package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyflow/audit-api/internal/models"
	appErrors "github.com/studyflow/audit-api/pkg/errors"
	"github.com/studyflow/audit-api/pkg/response"
)

// CatalogReader captures the catalog operations the handler depends on.
type CatalogReader interface {
	ListPrograms(ctx context.Context) ([]models.Program, error)
	GetProgram(ctx context.Context, id string) (*models.Program, error)
	ListEnrollments(ctx context.Context, studentID string) ([]models.ProgramEnrollment, error)
}

// CatalogHandler exposes degree catalog endpoints.
type CatalogHandler struct {
	catalog CatalogReader
}

// NewCatalogHandler constructs handler.
func NewCatalogHandler(catalog CatalogReader) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListPrograms godoc
// @Summary List degree programs
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /programs [get]
func (h *CatalogHandler) ListPrograms(c *gin.Context) {
	programs, err := h.catalog.ListPrograms(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, programs, nil)
}

// GetProgram godoc
// @Summary Get a program with its requirements
// @Tags Catalog
// @Produce json
// @Param id path string true "Program ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /programs/{id} [get]
func (h *CatalogHandler) GetProgram(c *gin.Context) {
	program, err := h.catalog.GetProgram(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, program, nil)
}

// ListEnrollments godoc
// @Summary List the caller's program enrollments
// @Tags Catalog
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /enrollments [get]
func (h *CatalogHandler) ListEnrollments(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollments, err := h.catalog.ListEnrollments(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}
