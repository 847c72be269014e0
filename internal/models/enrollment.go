package models

import "time"

// EnrollmentStatus represents the lifecycle of a program enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
	EnrollmentStatusWithdrawn EnrollmentStatus = "WITHDRAWN"
)

// ProgramEnrollment ties a student to a degree program.
type ProgramEnrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	ProgramID  string           `db:"program_id" json:"program_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	IsPrimary  bool             `db:"is_primary" json:"is_primary"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
}
