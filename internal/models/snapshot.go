package models

import "time"

// AuditSnapshot mirrors one RequirementResult's scalar fields, persisted
// per (student, enrollment, requirement). Rows are fully cleared and
// rewritten on every real audit run, never merged.
type AuditSnapshot struct {
	ID               string            `db:"id" json:"id"`
	StudentID        string            `db:"student_id" json:"student_id"`
	EnrollmentID     string            `db:"enrollment_id" json:"enrollment_id"`
	RequirementID    string            `db:"requirement_id" json:"requirement_id"`
	Status           RequirementStatus `db:"status" json:"status"`
	HoursRequired    float64           `db:"hours_required" json:"hours_required"`
	HoursSatisfied   float64           `db:"hours_satisfied" json:"hours_satisfied"`
	CoursesRequired  int               `db:"courses_required" json:"courses_required"`
	CoursesSatisfied int               `db:"courses_satisfied" json:"courses_satisfied"`
	GPARequired      *float64          `db:"gpa_required" json:"gpa_required,omitempty"`
	GPAAchieved      *float64          `db:"gpa_achieved" json:"gpa_achieved,omitempty"`
	ComputedAt       time.Time         `db:"computed_at" json:"computed_at"`
}

// SnapshotCourse is one applied-course child row of a snapshot.
type SnapshotCourse struct {
	ID           string  `db:"id" json:"id"`
	SnapshotID   string  `db:"snapshot_id" json:"snapshot_id"`
	CourseCode   string  `db:"course_code" json:"course_code"`
	Grade        *string `db:"grade" json:"grade,omitempty"`
	CreditHours  float64 `db:"credit_hours" json:"credit_hours"`
	IsPassing    bool    `db:"is_passing" json:"is_passing"`
	DisplayOrder int     `db:"display_order" json:"display_order"`
}

// SnapshotRecord pairs a snapshot row with its applied-course children for
// the atomic clear-and-rewrite.
type SnapshotRecord struct {
	AuditSnapshot
	Courses []SnapshotCourse
}
