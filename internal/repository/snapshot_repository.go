package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/studyflow/audit-api/internal/models"
)

// SnapshotRepository persists cached audit snapshots, one row per
// (student, enrollment, requirement) with applied-course child rows.
type SnapshotRepository struct {
	db *sqlx.DB
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(db *sqlx.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Replace atomically clears and rewrites the snapshot rows for an
// enrollment. The delete and all inserts share one transaction so a
// failure mid-write rolls back instead of leaving a partial snapshot.
func (r *SnapshotRepository) Replace(ctx context.Context, studentID, enrollmentID string, records []models.SnapshotRecord) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	const deleteCourses = `DELETE FROM audit_snapshot_courses WHERE snapshot_id IN
        (SELECT id FROM audit_snapshots WHERE student_id = $1 AND enrollment_id = $2)`
	if _, err := tx.ExecContext(ctx, deleteCourses, studentID, enrollmentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear snapshot courses: %w", err)
	}
	const deleteSnapshots = `DELETE FROM audit_snapshots WHERE student_id = $1 AND enrollment_id = $2`
	if _, err := tx.ExecContext(ctx, deleteSnapshots, studentID, enrollmentID); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("clear snapshots: %w", err)
	}

	const insertSnapshot = `INSERT INTO audit_snapshots (id, student_id, enrollment_id, requirement_id, status,
        hours_required, hours_satisfied, courses_required, courses_satisfied, gpa_required, gpa_achieved, computed_at)
        VALUES (:id, :student_id, :enrollment_id, :requirement_id, :status,
        :hours_required, :hours_satisfied, :courses_required, :courses_satisfied, :gpa_required, :gpa_achieved, :computed_at)`
	const insertCourse = `INSERT INTO audit_snapshot_courses (id, snapshot_id, course_code, grade, credit_hours, is_passing, display_order)
        VALUES (:id, :snapshot_id, :course_code, :grade, :credit_hours, :is_passing, :display_order)`

	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].ComputedAt.IsZero() {
			records[i].ComputedAt = now
		}
		records[i].StudentID = studentID
		records[i].EnrollmentID = enrollmentID
		if _, err := tx.NamedExecContext(ctx, insertSnapshot, records[i].AuditSnapshot); err != nil {
			tx.Rollback() //nolint:errcheck
			return fmt.Errorf("insert snapshot: %w", err)
		}
		for j := range records[i].Courses {
			if records[i].Courses[j].ID == "" {
				records[i].Courses[j].ID = uuid.NewString()
			}
			records[i].Courses[j].SnapshotID = records[i].ID
			if _, err := tx.NamedExecContext(ctx, insertCourse, records[i].Courses[j]); err != nil {
				tx.Rollback() //nolint:errcheck
				return fmt.Errorf("insert snapshot course: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot replace: %w", err)
	}
	return nil
}

// ListByEnrollment returns the snapshot rows for an enrollment.
func (r *SnapshotRepository) ListByEnrollment(ctx context.Context, studentID, enrollmentID string) ([]models.AuditSnapshot, error) {
	const query = `SELECT id, student_id, enrollment_id, requirement_id, status,
        hours_required, hours_satisfied, courses_required, courses_satisfied, gpa_required, gpa_achieved, computed_at
        FROM audit_snapshots WHERE student_id = $1 AND enrollment_id = $2`
	var snapshots []models.AuditSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, studentID, enrollmentID); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return snapshots, nil
}

// ListCourses returns applied-course child rows grouped by snapshot ID.
func (r *SnapshotRepository) ListCourses(ctx context.Context, snapshotIDs []string) (map[string][]models.SnapshotCourse, error) {
	result := make(map[string][]models.SnapshotCourse, len(snapshotIDs))
	if len(snapshotIDs) == 0 {
		return result, nil
	}
	placeholders, args := inArgs(snapshotIDs)
	query := fmt.Sprintf(`SELECT id, snapshot_id, course_code, grade, credit_hours, is_passing, display_order
        FROM audit_snapshot_courses WHERE snapshot_id IN (%s) ORDER BY snapshot_id, display_order`, placeholders)
	var courses []models.SnapshotCourse
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list snapshot courses: %w", err)
	}
	for _, course := range courses {
		result[course.SnapshotID] = append(result[course.SnapshotID], course)
	}
	return result, nil
}

// DeleteByEnrollment removes cached rows for one enrollment.
func (r *SnapshotRepository) DeleteByEnrollment(ctx context.Context, studentID, enrollmentID string) error {
	return r.delete(ctx, `student_id = $1 AND enrollment_id = $2`, studentID, enrollmentID)
}

// DeleteByStudent removes cached rows for all of a student's enrollments.
func (r *SnapshotRepository) DeleteByStudent(ctx context.Context, studentID string) error {
	return r.delete(ctx, `student_id = $1`, studentID)
}

func (r *SnapshotRepository) delete(ctx context.Context, where string, args ...interface{}) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	courseQuery := fmt.Sprintf(`DELETE FROM audit_snapshot_courses WHERE snapshot_id IN
        (SELECT id FROM audit_snapshots WHERE %s)`, where)
	if _, err := tx.ExecContext(ctx, courseQuery, args...); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete snapshot courses: %w", err)
	}
	snapshotQuery := fmt.Sprintf(`DELETE FROM audit_snapshots WHERE %s`, where)
	if _, err := tx.ExecContext(ctx, snapshotQuery, args...); err != nil {
		tx.Rollback() //nolint:errcheck
		return fmt.Errorf("delete snapshots: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot delete: %w", err)
	}
	return nil
}
