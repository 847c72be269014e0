package models

import "time"

// CompletedCourse is one ledger item of a student's coursework. Grade is
// nil when the student withheld it for privacy; that is a valid state and
// the course still counts as passed for earned hours.
type CompletedCourse struct {
	ID          string    `db:"id" json:"id"`
	StudentID   string    `db:"student_id" json:"student_id"`
	CourseCode  string    `db:"course_code" json:"course_code"`
	Grade       *string   `db:"grade" json:"grade,omitempty"`
	CreditHours float64   `db:"credit_hours" json:"credit_hours"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
