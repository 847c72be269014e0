package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/studyflow/audit-api/internal/models"
	appErrors "github.com/studyflow/audit-api/pkg/errors"
	"github.com/studyflow/audit-api/pkg/export"
)

// ExportFormat enumerates supported audit export encodings.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

type auditRunner interface {
	RunAudit(ctx context.Context, studentID, enrollmentID string, forceRefresh bool) (*models.DegreeAuditResult, error)
}

// ExportService renders an audit result into downloadable documents.
type ExportService struct {
	audits auditRunner
	csv    *export.CSVExporter
	pdf    *export.PDFExporter
	logger *zap.Logger
}

func NewExportService(audits auditRunner, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		audits: audits,
		csv:    export.NewCSVExporter(),
		pdf:    export.NewPDFExporter(),
		logger: logger,
	}
}

// ExportAudit runs (or serves the cached) audit and renders it in the
// requested format. Returns the bytes, a content type and a filename.
func (s *ExportService) ExportAudit(ctx context.Context, studentID, enrollmentID string, format ExportFormat) ([]byte, string, string, error) {
	result, err := s.audits.RunAudit(ctx, studentID, enrollmentID, false)
	if err != nil {
		return nil, "", "", err
	}

	dataset := auditDataset(result)
	switch format {
	case ExportFormatCSV:
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return payload, "text/csv", exportFilename(result, "csv"), nil
	case ExportFormatPDF:
		payload, err := s.pdf.Render(dataset)
		if err != nil {
			return nil, "", "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return payload, "application/pdf", exportFilename(result, "pdf"), nil
	default:
		return nil, "", "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func auditDataset(result *models.DegreeAuditResult) export.Dataset {
	headers := []string{"Requirement", "Category", "Status", "Hours Required", "Hours Satisfied", "Courses Required", "Courses Satisfied", "Applied Courses"}
	rows := make([]map[string]string, 0, len(result.Requirements))
	for _, req := range result.Requirements {
		applied := make([]string, 0, len(req.AppliedCourses))
		for _, app := range req.AppliedCourses {
			applied = append(applied, app.CourseCode)
		}
		rows = append(rows, map[string]string{
			"Requirement":       req.Name,
			"Category":          string(req.Category),
			"Status":            string(req.Status),
			"Hours Required":    formatHours(req.HoursRequired),
			"Hours Satisfied":   formatHours(req.HoursSatisfied),
			"Courses Required":  strconv.Itoa(req.CoursesRequired),
			"Courses Satisfied": strconv.Itoa(req.CoursesSatisfied),
			"Applied Courses":   strings.Join(applied, " "),
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Degree Audit - %s", result.ProgramName),
		Headers: headers,
		Rows:    rows,
	}
}

func formatHours(hours float64) string {
	return strconv.FormatFloat(hours, 'f', -1, 64)
}

func exportFilename(result *models.DegreeAuditResult, ext string) string {
	return fmt.Sprintf("degree-audit-%s-%s.%s", result.StudentID, result.ComputedAt.Format("20060102"), ext)
}
