package models

import "time"

// RequirementStatus is the satisfaction state of a requirement or of the
// overall audit.
type RequirementStatus string

// Possible requirement statuses.
const (
	StatusIncomplete RequirementStatus = "incomplete"
	StatusInProgress RequirementStatus = "in_progress"
	StatusComplete   RequirementStatus = "complete"
)

// CourseApplication records one completed course credited to one
// requirement. Across a single audit a course code appears in at most one
// requirement's applications.
type CourseApplication struct {
	CourseCode  string  `json:"course_code"`
	Grade       *string `json:"grade,omitempty"`
	CreditHours float64 `json:"credit_hours"`
	IsPassing   bool    `json:"is_passing"`
}

// RequirementResult is the per-requirement outcome of an audit.
type RequirementResult struct {
	RequirementID    string              `json:"requirement_id"`
	Name             string              `json:"name"`
	Category         RequirementCategory `json:"category"`
	Status           RequirementStatus   `json:"status"`
	HoursRequired    float64             `json:"hours_required"`
	HoursSatisfied   float64             `json:"hours_satisfied"`
	CoursesRequired  int                 `json:"courses_required"`
	CoursesSatisfied int                 `json:"courses_satisfied"`
	GPARequired      *float64            `json:"gpa_required,omitempty"`
	GPAAchieved      *float64            `json:"gpa_achieved,omitempty"`
	AppliedCourses   []CourseApplication `json:"applied_courses"`
	RemainingCourses []string            `json:"remaining_courses,omitempty"`
}

// DegreeAuditResult aggregates a full audit of a student against a
// program's requirement catalog.
type DegreeAuditResult struct {
	StudentID          string              `json:"student_id"`
	EnrollmentID       string              `json:"enrollment_id"`
	ProgramID          string              `json:"program_id"`
	ProgramName        string              `json:"program_name"`
	DegreeType         string              `json:"degree_type"`
	Status             RequirementStatus   `json:"status"`
	ProgressPercent    float64             `json:"progress_percent"`
	TotalHoursRequired float64             `json:"total_hours_required"`
	TotalHoursEarned   float64             `json:"total_hours_earned"`
	CumulativeGPA      *float64            `json:"cumulative_gpa,omitempty"`
	Requirements       []RequirementResult `json:"requirements"`
	RecommendedCourses []string            `json:"recommended_courses,omitempty"`
	ComputedAt         time.Time           `json:"computed_at"`
	FromCache          bool                `json:"from_cache"`
}

// QuickProgress is a cheap summary from ledger aggregates alone, without
// per-requirement detail.
type QuickProgress struct {
	StudentID       string   `json:"student_id"`
	ProgramID       string   `json:"program_id"`
	ProgramName     string   `json:"program_name"`
	HoursEarned     float64  `json:"hours_earned"`
	GPA             *float64 `json:"gpa,omitempty"`
	ProgressPercent float64  `json:"progress_percent"`
}
