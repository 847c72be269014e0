package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/studyflow/audit-api/internal/models"
)

// LedgerRepository reads the completed-course ledger. The ledger is owned
// by the coursework service; this repository is read-only by contract.
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository constructs the repository.
func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// ListByStudent returns a student's completed courses in ledger order.
func (r *LedgerRepository) ListByStudent(ctx context.Context, studentID string) ([]models.CompletedCourse, error) {
	const query = `SELECT id, student_id, course_code, grade, credit_hours, created_at
        FROM completed_courses WHERE student_id = $1 ORDER BY created_at, course_code`
	var courses []models.CompletedCourse
	if err := r.db.SelectContext(ctx, &courses, query, studentID); err != nil {
		return nil, fmt.Errorf("list completed courses: %w", err)
	}
	return courses, nil
}
