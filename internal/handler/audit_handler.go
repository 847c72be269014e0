package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/studyflow/audit-api/internal/models"
	"github.com/studyflow/audit-api/internal/service"
	appErrors "github.com/studyflow/audit-api/pkg/errors"
	"github.com/studyflow/audit-api/pkg/response"
)

// AuditRunner captures the audit operations the handler depends on.
type AuditRunner interface {
	RunAudit(ctx context.Context, studentID, enrollmentID string, forceRefresh bool) (*models.DegreeAuditResult, error)
	GetCachedAudit(ctx context.Context, studentID, enrollmentID string) (*models.DegreeAuditResult, error)
	WhatIfAnalysis(ctx context.Context, studentID, enrollmentID string, hypothetical []service.HypotheticalCourse) (*models.DegreeAuditResult, error)
	InvalidateCache(ctx context.Context, studentID, enrollmentID string) error
	GetQuickProgress(ctx context.Context, studentID string) (*models.QuickProgress, error)
}

// AuditExporter renders audits into downloadable documents.
type AuditExporter interface {
	ExportAudit(ctx context.Context, studentID, enrollmentID string, format service.ExportFormat) ([]byte, string, string, error)
}

// AuditHandler exposes degree audit endpoints.
type AuditHandler struct {
	audits  AuditRunner
	exports AuditExporter
}

// NewAuditHandler constructs handler.
func NewAuditHandler(audits AuditRunner, exports AuditExporter) *AuditHandler {
	return &AuditHandler{audits: audits, exports: exports}
}

// RunAuditRequest is the payload for running an audit.
type RunAuditRequest struct {
	EnrollmentID string `json:"enrollment_id"`
	ForceRefresh bool   `json:"force_refresh"`
}

// WhatIfRequest is the payload for a hypothetical audit.
type WhatIfRequest struct {
	EnrollmentID string                       `json:"enrollment_id"`
	Courses      []service.HypotheticalCourse `json:"courses" binding:"required"`
}

// Run godoc
// @Summary Run a degree audit
// @Tags Audits
// @Accept json
// @Produce json
// @Param payload body RunAuditRequest true "Audit payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /audits/run [post]
func (h *AuditHandler) Run(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req RunAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.audits.RunAudit(c.Request.Context(), claims.UserID, req.EnrollmentID, req.ForceRefresh)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Cached godoc
// @Summary Get the last cached audit
// @Tags Audits
// @Produce json
// @Param enrollmentId query string false "Program enrollment"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /audits/cached [get]
func (h *AuditHandler) Cached(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	result, err := h.audits.GetCachedAudit(c.Request.Context(), claims.UserID, c.Query("enrollmentId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// WhatIf godoc
// @Summary Run a hypothetical audit
// @Tags Audits
// @Accept json
// @Produce json
// @Param payload body WhatIfRequest true "Hypothetical payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /audits/what-if [post]
func (h *AuditHandler) WhatIf(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req WhatIfRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.audits.WhatIfAnalysis(c.Request.Context(), claims.UserID, req.EnrollmentID, req.Courses)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Invalidate godoc
// @Summary Invalidate the cached audit
// @Tags Audits
// @Produce json
// @Param enrollmentId query string false "Program enrollment"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /audits/cache [delete]
func (h *AuditHandler) Invalidate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.audits.InvalidateCache(c.Request.Context(), claims.UserID, c.Query("enrollmentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "invalidated"}, nil)
}

// Progress godoc
// @Summary Get a quick progress summary
// @Tags Audits
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /audits/progress [get]
func (h *AuditHandler) Progress(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	progress, err := h.audits.GetQuickProgress(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

// Export godoc
// @Summary Export the audit as CSV or PDF
// @Tags Audits
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf" default(csv)
// @Param enrollmentId query string false "Program enrollment"
// @Success 200 {file} byte
// @Security BearerAuth
// @Router /audits/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV)))
	payload, contentType, filename, err := h.exports.ExportAudit(c.Request.Context(), claims.UserID, c.Query("enrollmentId"), format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, payload)
}
