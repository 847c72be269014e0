package service

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/studyflow/audit-api/internal/models"
	appErrors "github.com/studyflow/audit-api/pkg/errors"
)

type programCatalog interface {
	ListPrograms(ctx context.Context) ([]models.Program, error)
	FindProgram(ctx context.Context, id string) (*models.Program, error)
	ListRequirements(ctx context.Context, programID string) ([]models.Requirement, error)
}

type enrollmentLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.ProgramEnrollment, error)
}

// CatalogService exposes read access to the degree catalog: programs and
// their requirement definitions.
type CatalogService struct {
	catalog     programCatalog
	enrollments enrollmentLister
	logger      *zap.Logger
}

func NewCatalogService(catalog programCatalog, enrollments enrollmentLister, logger *zap.Logger) *CatalogService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogService{catalog: catalog, enrollments: enrollments, logger: logger}
}

// ListPrograms returns all programs in the catalog.
func (s *CatalogService) ListPrograms(ctx context.Context) ([]models.Program, error) {
	programs, err := s.catalog.ListPrograms(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list programs")
	}
	return programs, nil
}

// GetProgram returns one program with its ordered requirement definitions
// attached.
func (s *CatalogService) GetProgram(ctx context.Context, id string) (*models.Program, error) {
	program, err := s.catalog.FindProgram(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	requirements, err := s.catalog.ListRequirements(ctx, program.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requirements")
	}
	program.Requirements = requirements
	return program, nil
}

// ListEnrollments returns a student's program enrollments.
func (s *CatalogService) ListEnrollments(ctx context.Context, studentID string) ([]models.ProgramEnrollment, error) {
	enrollments, err := s.enrollments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, nil
}
