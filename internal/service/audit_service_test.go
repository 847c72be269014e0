package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyflow/audit-api/internal/models"
	appErrors "github.com/studyflow/audit-api/pkg/errors"
)

type mockCatalog struct {
	program      *models.Program
	requirements []models.Requirement
}

func (m *mockCatalog) FindProgram(ctx context.Context, id string) (*models.Program, error) {
	if m.program != nil && m.program.ID == id {
		program := *m.program
		return &program, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockCatalog) ListRequirements(ctx context.Context, programID string) ([]models.Requirement, error) {
	return m.requirements, nil
}

type mockLedger struct {
	courses []models.CompletedCourse
}

func (m *mockLedger) ListByStudent(ctx context.Context, studentID string) ([]models.CompletedCourse, error) {
	var out []models.CompletedCourse
	for _, c := range m.courses {
		if c.StudentID == studentID {
			out = append(out, c)
		}
	}
	return out, nil
}

type mockEnrollments struct {
	enrollments map[string]*models.ProgramEnrollment
}

func (m *mockEnrollments) FindByID(ctx context.Context, id string) (*models.ProgramEnrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		enrollment := *e
		return &enrollment, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollments) FindPrimaryActive(ctx context.Context, studentID string) (*models.ProgramEnrollment, error) {
	for _, e := range m.enrollments {
		if e.StudentID == studentID && e.Status == models.EnrollmentStatusActive && e.IsPrimary {
			enrollment := *e
			return &enrollment, nil
		}
	}
	return nil, sql.ErrNoRows
}

func listedCourse(code string) models.RequirementCourse {
	return models.RequirementCourse{CourseCode: code}
}

func hoursRule(hours float64, subjects []string, minLevel int) models.RequirementRule {
	return models.RequirementRule{
		Type:   models.RuleHoursFromPool,
		Config: models.RuleConfig{HoursFromPool: &models.HoursFromPoolConfig{Hours: hours, Subjects: subjects, MinLevel: minLevel}},
	}
}

func newAuditFixture(program *models.Program, requirements []models.Requirement, ledger []models.CompletedCourse) *AuditService {
	catalog := &mockCatalog{program: program, requirements: requirements}
	enrollments := &mockEnrollments{enrollments: map[string]*models.ProgramEnrollment{
		"en1": {ID: "en1", StudentID: "stu1", ProgramID: program.ID, Status: models.EnrollmentStatusActive, IsPrimary: true},
	}}
	return NewAuditService(catalog, &mockLedger{courses: ledger}, enrollments, validator.New(), zap.NewNop(), 0, 0)
}

func errorCode(err error) string {
	return appErrors.FromError(err).Code
}

func TestAuditSpecificClaimsBeforePool(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS Computer Science", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-electives", Name: "CS Electives", Category: models.CategoryElective,
			Rules: []models.RequirementRule{hoursRule(3, []string{"CS"}, 0)},
		},
		{
			ID: "req-core", Name: "Major Core", Category: models.CategoryMajor,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("CS101"), listedCourse("CS102")},
		},
	}
	ledger := []models.CompletedCourse{
		completed("CS101", "A", 3),
		completed("CS102", "B", 3),
		completed("CS310", "A", 3),
	}
	svc := newAuditFixture(program, requirements, ledger)

	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)

	byID := make(map[string]models.RequirementResult)
	for _, res := range result.Requirements {
		byID[res.RequirementID] = res
	}

	// The pool is listed first in the catalog but must not steal the
	// core's named courses.
	core := byID["req-core"]
	assert.Equal(t, models.StatusComplete, core.Status)
	assert.Equal(t, 2, core.CoursesSatisfied)

	electives := byID["req-electives"]
	assert.Equal(t, models.StatusComplete, electives.Status)
	require.Len(t, electives.AppliedCourses, 1)
	assert.Equal(t, "CS310", electives.AppliedCourses[0].CourseCode)

	assert.Equal(t, models.StatusComplete, result.Status)
	assert.Equal(t, 100.0, result.ProgressPercent)
	assert.Equal(t, 9.0, result.TotalHoursEarned)
}

func TestAuditNeverDoubleCountsACourse(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BA History", DegreeType: "BA"}
	requirements := []models.Requirement{
		{
			ID: "req-a", Name: "Foundation", Category: models.CategoryFoundation,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("HIST101")},
		},
		{
			ID: "req-b", Name: "Survey", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("HIST101")},
		},
	}
	ledger := []models.CompletedCourse{completed("HIST101", "A", 3)}
	svc := newAuditFixture(program, requirements, ledger)

	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)

	applied := 0
	for _, res := range result.Requirements {
		applied += len(res.AppliedCourses)
	}
	assert.Equal(t, 1, applied)

	first := result.Requirements[0]
	second := result.Requirements[1]
	assert.Equal(t, models.StatusComplete, first.Status)
	assert.Equal(t, models.StatusIncomplete, second.Status)
	assert.Contains(t, second.RemainingCourses, "HIST101")
}

func TestAuditPoolStatusThresholds(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS Math", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-pool", Name: "Math Electives", Category: models.CategoryElective,
			Rules: []models.RequirementRule{hoursRule(9, []string{"MATH"}, 0)},
		},
	}
	cases := []struct {
		name   string
		ledger []models.CompletedCourse
		status models.RequirementStatus
	}{
		{"all nine hours", []models.CompletedCourse{
			completed("MATH201", "A", 3), completed("MATH202", "B", 3), completed("MATH203", "B", 3),
		}, models.StatusComplete},
		{"six of nine hours", []models.CompletedCourse{
			completed("MATH201", "A", 3), completed("MATH202", "B", 3),
		}, models.StatusInProgress},
		{"no matching hours", []models.CompletedCourse{
			completed("ENGL101", "A", 3),
		}, models.StatusIncomplete},
	}
	for _, tc := range cases {
		svc := newAuditFixture(program, requirements, tc.ledger)
		result, err := svc.Run(context.Background(), "stu1", "en1")
		require.NoError(t, err, tc.name)
		require.Len(t, result.Requirements, 1, tc.name)
		assert.Equal(t, tc.status, result.Requirements[0].Status, tc.name)
	}
}

func TestAuditCourseLevelFilterSkipsMalformedCodes(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-upper", Name: "Upper Division", Category: models.CategoryMajor,
			Rules: []models.RequirementRule{{
				Type:   models.RuleCourseLevel,
				Config: models.RuleConfig{CourseLevel: &models.CourseLevelConfig{Hours: 6, MinLevel: 300}},
			}},
		},
	}
	ledger := []models.CompletedCourse{
		completed("CS101", "A", 3),   // below the floor
		completed("SEMINAR", "A", 3), // unparseable, skipped by the filter
		completed("CS301", "A", 3),
		completed("CS410", "B", 3),
	}
	svc := newAuditFixture(program, requirements, ledger)

	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	res := result.Requirements[0]
	assert.Equal(t, models.StatusComplete, res.Status)
	require.Len(t, res.AppliedCourses, 2)
	assert.Equal(t, "CS301", res.AppliedCourses[0].CourseCode)
	assert.Equal(t, "CS410", res.AppliedCourses[1].CourseCode)
}

func TestAuditCourseListSelect(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BA Writing", DegreeType: "BA"}
	requirements := []models.Requirement{
		{
			ID: "req-list", Name: "Writing Intensive", Category: models.CategoryGenEd,
			Rules: []models.RequirementRule{{
				Type:   models.RuleCourseList,
				Config: models.RuleConfig{CourseList: &models.CourseListConfig{Courses: []string{"ENGL210", "ENGL220", "ENGL230"}, Select: 2}},
			}},
		},
	}
	ledger := []models.CompletedCourse{
		completed("ENGL210", "A", 3),
		completed("ENGL230", "B", 3),
		completed("ENGL220", "A", 3),
	}
	svc := newAuditFixture(program, requirements, ledger)

	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	res := result.Requirements[0]
	assert.Equal(t, models.StatusComplete, res.Status)
	assert.Equal(t, 2, res.CoursesRequired)
	assert.Equal(t, 2, res.CoursesSatisfied)
}

func TestAuditGPAMinimumRule(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS Biology", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-gpa", Name: "Major GPA", Category: models.CategoryMajor,
			Rules: []models.RequirementRule{{
				Type:   models.RuleGPAMinimum,
				Config: models.RuleConfig{GPAMinimum: &models.GPAMinimumConfig{GPA: 2.5, Scope: "all"}},
			}},
		},
	}

	svc := newAuditFixture(program, requirements, []models.CompletedCourse{
		completed("BIO101", "A", 3), completed("BIO102", "B", 3),
	})
	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	res := result.Requirements[0]
	assert.Equal(t, models.StatusComplete, res.Status)
	require.NotNil(t, res.GPARequired)
	assert.Equal(t, 2.5, *res.GPARequired)
	require.NotNil(t, res.GPAAchieved)
	assert.Equal(t, 3.5, *res.GPAAchieved)

	svc = newAuditFixture(program, requirements, []models.CompletedCourse{
		completed("BIO101", "D", 3), completed("BIO102", "C", 3),
	})
	result, err = svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, result.Requirements[0].Status)
}

func TestAuditFailingAndWithheldGrades(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS Physics", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-core", Name: "Core", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("PHYS101"), listedCourse("PHYS102")},
		},
	}
	withheld := models.CompletedCourse{StudentID: "stu1", CourseCode: "PHYS102", CreditHours: 4}
	ledger := []models.CompletedCourse{
		completed("PHYS101", "F", 4),
		withheld,
	}
	svc := newAuditFixture(program, requirements, ledger)

	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	res := result.Requirements[0]
	require.Len(t, res.AppliedCourses, 1)
	assert.Equal(t, "PHYS102", res.AppliedCourses[0].CourseCode)
	assert.Nil(t, res.AppliedCourses[0].Grade)
	assert.Contains(t, res.RemainingCourses, "PHYS101")
	assert.Equal(t, models.StatusInProgress, res.Status)
}

func TestAuditProgramTotalHoursDrivesProgress(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS", TotalHours: ptrFloat(120)}
	requirements := []models.Requirement{
		{
			ID: "req-core", Name: "Core", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("CS101")},
		},
	}
	svc := newAuditFixture(program, requirements, []models.CompletedCourse{completed("CS101", "A", 3)})

	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	assert.Equal(t, 120.0, result.TotalHoursRequired)
	assert.Equal(t, 2.5, result.ProgressPercent)
}

func TestAuditResolveEnrollment(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	svc := newAuditFixture(program, nil, nil)

	// Empty ID falls back to the primary active enrollment.
	result, err := svc.Run(context.Background(), "stu1", "")
	require.NoError(t, err)
	assert.Equal(t, "en1", result.EnrollmentID)

	_, err = svc.Run(context.Background(), "stu1", "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidReference.Code, errorCode(err))

	// Someone else's enrollment resolves but is rejected.
	_, err = svc.Run(context.Background(), "stu2", "en1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidReference.Code, errorCode(err))

	// A student with no enrollments at all.
	_, err = svc.Run(context.Background(), "stu2", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidReference.Code, errorCode(err))
}

func TestAuditWhatIfDefaultsAndNonPersistence(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-core", Name: "Core", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("CS101"), listedCourse("CS401")},
		},
	}
	ledger := &mockLedger{courses: []models.CompletedCourse{completed("CS101", "B", 3)}}
	catalog := &mockCatalog{program: program, requirements: requirements}
	enrollments := &mockEnrollments{enrollments: map[string]*models.ProgramEnrollment{
		"en1": {ID: "en1", StudentID: "stu1", ProgramID: "prog", Status: models.EnrollmentStatusActive, IsPrimary: true},
	}}
	svc := NewAuditService(catalog, ledger, enrollments, validator.New(), zap.NewNop(), 0, 0)

	result, err := svc.WhatIf(context.Background(), "stu1", "en1", []HypotheticalCourse{{CourseCode: "CS401"}})
	require.NoError(t, err)
	res := result.Requirements[0]
	assert.Equal(t, models.StatusComplete, res.Status)
	require.Len(t, res.AppliedCourses, 2)
	hypothetical := res.AppliedCourses[1]
	assert.Equal(t, "CS401", hypothetical.CourseCode)
	require.NotNil(t, hypothetical.Grade)
	assert.Equal(t, "A", *hypothetical.Grade)
	assert.Equal(t, 3.0, hypothetical.CreditHours)

	// Nothing leaked into the ledger.
	assert.Len(t, ledger.courses, 1)

	_, err = svc.WhatIf(context.Background(), "stu1", "en1", []HypotheticalCourse{{}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, errorCode(err))
}

func TestAuditRecommendedCoursesDedupedAndCapped(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-a", Name: "Core A", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("CS201"), listedCourse("CS202"), listedCourse("CS203")},
		},
		{
			ID: "req-b", Name: "Core B", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("cs 201"), listedCourse("CS204")},
		},
	}
	catalog := &mockCatalog{program: program, requirements: requirements}
	enrollments := &mockEnrollments{enrollments: map[string]*models.ProgramEnrollment{
		"en1": {ID: "en1", StudentID: "stu1", ProgramID: "prog", Status: models.EnrollmentStatusActive, IsPrimary: true},
	}}
	svc := NewAuditService(catalog, &mockLedger{}, enrollments, validator.New(), zap.NewNop(), 3, 5)

	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	// "cs 201" normalizes to the already-recommended CS201.
	assert.Equal(t, []string{"CS201", "CS202", "CS203"}, result.RecommendedCourses)
}

func TestAuditChooseNSpecificRequirement(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-core", Name: "Core", Category: models.CategoryCore,
			SelectionMode:   models.SelectionAll,
			CoursesToSelect: ptrInt(2),
			Courses:         []models.RequirementCourse{listedCourse("CS101"), listedCourse("CS102"), listedCourse("CS103")},
		},
	}
	svc := newAuditFixture(program, requirements, []models.CompletedCourse{
		completed("CS101", "A", 3), completed("CS103", "B", 3),
	})

	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	res := result.Requirements[0]
	assert.Equal(t, 2, res.CoursesRequired)
	assert.Equal(t, models.StatusComplete, res.Status)
}

func TestAuditRetakeAfterFailureIsClaimed(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-core", Name: "Core", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("CS101")},
		},
		{
			ID: "req-list", Name: "Writing Intensive", Category: models.CategoryGenEd,
			Rules: []models.RequirementRule{{
				Type:   models.RuleCourseList,
				Config: models.RuleConfig{CourseList: &models.CourseListConfig{Courses: []string{"ENGL210"}, Select: 1}},
			}},
		},
	}
	// Failed first attempts precede the passing retakes in the ledger.
	ledger := []models.CompletedCourse{
		completed("CS101", "F", 3),
		completed("ENGL210", "F", 3),
		completed("CS101", "A", 3),
		completed("ENGL210", "B", 3),
	}
	svc := newAuditFixture(program, requirements, ledger)

	result, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)

	byID := make(map[string]models.RequirementResult)
	for _, res := range result.Requirements {
		byID[res.RequirementID] = res
	}

	core := byID["req-core"]
	assert.Equal(t, models.StatusComplete, core.Status)
	require.Len(t, core.AppliedCourses, 1)
	require.NotNil(t, core.AppliedCourses[0].Grade)
	assert.Equal(t, "A", *core.AppliedCourses[0].Grade)

	list := byID["req-list"]
	assert.Equal(t, models.StatusComplete, list.Status)
	assert.Equal(t, 1, list.CoursesSatisfied)
}

func TestAuditAddingPassingCourseNeverDecreasesSatisfaction(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-core", Name: "Core", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("CS101"), listedCourse("CS102")},
		},
		{
			ID: "req-upper", Name: "Upper Division", Category: models.CategoryMajor,
			Rules: []models.RequirementRule{{
				Type:   models.RuleCourseLevel,
				Config: models.RuleConfig{CourseLevel: &models.CourseLevelConfig{Hours: 6, MinLevel: 300}},
			}},
		},
		{
			ID: "req-electives", Name: "Electives", Category: models.CategoryElective,
			Rules: []models.RequirementRule{hoursRule(6, nil, 0)},
		},
	}
	ledger := []models.CompletedCourse{
		completed("CS101", "B", 3),
		completed("CS310", "A", 3),
		completed("ART110", "C", 3),
	}
	additions := []models.CompletedCourse{
		completed("CS102", "A", 3),
		completed("CS420", "B", 3),
		completed("MUS120", "A", 3),
	}

	svc := newAuditFixture(program, requirements, ledger)
	before, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)

	for _, addition := range additions {
		ledger = append(ledger, addition)
		svc = newAuditFixture(program, requirements, ledger)
		after, err := svc.Run(context.Background(), "stu1", "en1")
		require.NoError(t, err)

		require.Len(t, after.Requirements, len(before.Requirements))
		for i, prev := range before.Requirements {
			next := after.Requirements[i]
			assert.GreaterOrEqual(t, next.HoursSatisfied, prev.HoursSatisfied,
				"%s after adding %s", prev.Name, addition.CourseCode)
			assert.GreaterOrEqual(t, next.CoursesSatisfied, prev.CoursesSatisfied,
				"%s after adding %s", prev.Name, addition.CourseCode)
		}
		assert.GreaterOrEqual(t, after.TotalHoursEarned, before.TotalHoursEarned)
		before = after
	}
}

func TestAuditDeterministicAcrossRuns(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-core", Name: "Core", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("CS101")},
		},
		{
			ID: "req-pool", Name: "Electives", Category: models.CategoryElective,
			Rules: []models.RequirementRule{hoursRule(6, nil, 0)},
		},
	}
	ledger := []models.CompletedCourse{
		completed("CS101", "A", 3), completed("ART110", "B", 3), completed("MUS120", "C", 3),
	}
	svc := newAuditFixture(program, requirements, ledger)

	first, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	second, err := svc.Run(context.Background(), "stu1", "en1")
	require.NoError(t, err)

	require.Len(t, second.Requirements, len(first.Requirements))
	for i := range first.Requirements {
		assert.Equal(t, first.Requirements[i].Status, second.Requirements[i].Status)
		assert.Equal(t, first.Requirements[i].HoursSatisfied, second.Requirements[i].HoursSatisfied)
		assert.Equal(t, first.Requirements[i].AppliedCourses, second.Requirements[i].AppliedCourses)
	}
	assert.Equal(t, first.Status, second.Status)
}
