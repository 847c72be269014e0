package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studyflow/audit-api/internal/models"
)

// EnrollmentRepository reads program enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.ProgramEnrollment, error) {
	const query = `SELECT id, student_id, program_id, status, is_primary, enrolled_at
        FROM program_enrollments WHERE id = $1`
	var enrollment models.ProgramEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindPrimaryActive returns the student's primary active enrollment,
// falling back to the most recent active one when none is marked primary.
func (r *EnrollmentRepository) FindPrimaryActive(ctx context.Context, studentID string) (*models.ProgramEnrollment, error) {
	const query = `SELECT id, student_id, program_id, status, is_primary, enrolled_at
        FROM program_enrollments WHERE student_id = $1 AND status = $2
        ORDER BY is_primary DESC, enrolled_at DESC LIMIT 1`
	var enrollment models.ProgramEnrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, models.EnrollmentStatusActive); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// ListByStudent returns all of a student's enrollments.
func (r *EnrollmentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.ProgramEnrollment, error) {
	const query = `SELECT id, student_id, program_id, status, is_primary, enrolled_at
        FROM program_enrollments WHERE student_id = $1 ORDER BY enrolled_at DESC`
	var enrollments []models.ProgramEnrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, studentID); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return enrollments, nil
}
