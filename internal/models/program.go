package models

// RequirementCategory groups requirements for display and GPA scoping.
type RequirementCategory string

// Recognised requirement categories.
const (
	CategoryMajor      RequirementCategory = "major"
	CategoryCore       RequirementCategory = "core"
	CategoryFoundation RequirementCategory = "foundation"
	CategoryGenEd      RequirementCategory = "gen_ed"
	CategoryElective   RequirementCategory = "elective"
	CategoryOther      RequirementCategory = "other"
)

// SelectionMode states how many of a requirement's listed courses are needed.
type SelectionMode string

// Possible selection modes.
const (
	SelectionAll     SelectionMode = "all"
	SelectionChooseN SelectionMode = "choose_n"
)

// Program is the read-only catalog entry for a degree program.
type Program struct {
	ID         string   `db:"id" json:"id"`
	Name       string   `db:"name" json:"name"`
	DegreeType string   `db:"degree_type" json:"degree_type"`
	TotalHours *float64 `db:"total_hours" json:"total_hours,omitempty"`

	Requirements []Requirement `json:"requirements,omitempty"`
}

// Requirement is one named bucket of a degree program.
type Requirement struct {
	ID              string              `db:"id" json:"id"`
	ProgramID       string              `db:"program_id" json:"program_id"`
	Name            string              `db:"name" json:"name"`
	Category        RequirementCategory `db:"category" json:"category"`
	RequiredHours   *float64            `db:"required_hours" json:"required_hours,omitempty"`
	MinHours        *float64            `db:"min_hours" json:"min_hours,omitempty"`
	SelectionMode   SelectionMode       `db:"selection_mode" json:"selection_mode"`
	CoursesToSelect *int                `db:"courses_to_select" json:"courses_to_select,omitempty"`
	DisplayOrder    int                 `db:"display_order" json:"display_order"`

	Courses []RequirementCourse `json:"courses,omitempty"`
	Rules   []RequirementRule   `json:"rules,omitempty"`
}

// RequirementCourse is one entry of a requirement's course list. Group
// entries are elective placeholders, not concrete courses.
type RequirementCourse struct {
	ID            string   `db:"id" json:"id"`
	RequirementID string   `db:"requirement_id" json:"requirement_id"`
	CourseCode    string   `db:"course_code" json:"course_code"`
	CreditHours   *float64 `db:"credit_hours" json:"credit_hours,omitempty"`
	IsGroup       bool     `db:"is_group" json:"is_group"`
	DisplayOrder  int      `db:"display_order" json:"display_order"`
}
