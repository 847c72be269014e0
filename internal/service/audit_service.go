package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/studyflow/audit-api/internal/models"
	appErrors "github.com/studyflow/audit-api/pkg/errors"
)

type catalogReader interface {
	FindProgram(ctx context.Context, id string) (*models.Program, error)
	ListRequirements(ctx context.Context, programID string) ([]models.Requirement, error)
}

type ledgerReader interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.CompletedCourse, error)
}

type enrollmentReader interface {
	FindByID(ctx context.Context, id string) (*models.ProgramEnrollment, error)
	FindPrimaryActive(ctx context.Context, studentID string) (*models.ProgramEnrollment, error)
}

// HypotheticalCourse is a not-yet-completed course merged into a what-if
// audit. Grade defaults to "A" and credit hours to 3 when omitted.
type HypotheticalCourse struct {
	CourseCode  string  `json:"course_code" validate:"required"`
	Grade       string  `json:"grade"`
	CreditHours float64 `json:"credit_hours" validate:"omitempty,gt=0"`
}

const (
	defaultRecommendedLimit = 10
	defaultRemainingPreview = 5
	defaultCourseHours      = 3.0
	defaultWhatIfGrade      = "A"
)

// AuditService is the allocation engine: it evaluates a student's ledger
// against a program's requirement catalog without double-counting courses.
type AuditService struct {
	catalog          catalogReader
	ledger           ledgerReader
	enrollments      enrollmentReader
	validator        *validator.Validate
	logger           *zap.Logger
	recommendedLimit int
	remainingPreview int
}

// NewAuditService constructs the allocation engine.
func NewAuditService(catalog catalogReader, ledger ledgerReader, enrollments enrollmentReader, validate *validator.Validate, logger *zap.Logger, recommendedLimit, remainingPreview int) *AuditService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if recommendedLimit <= 0 {
		recommendedLimit = defaultRecommendedLimit
	}
	if remainingPreview <= 0 {
		remainingPreview = defaultRemainingPreview
	}
	return &AuditService{
		catalog:          catalog,
		ledger:           ledger,
		enrollments:      enrollments,
		validator:        validate,
		logger:           logger,
		recommendedLimit: recommendedLimit,
		remainingPreview: remainingPreview,
	}
}

// Run performs a real audit for the student's enrollment. An empty
// enrollmentID resolves to the student's primary active enrollment.
func (s *AuditService) Run(ctx context.Context, studentID, enrollmentID string) (*models.DegreeAuditResult, error) {
	return s.run(ctx, studentID, enrollmentID, nil)
}

// WhatIf runs the identical algorithm with the ledger extended by the
// hypothetical courses. Nothing is persisted.
func (s *AuditService) WhatIf(ctx context.Context, studentID, enrollmentID string, hypothetical []HypotheticalCourse) (*models.DegreeAuditResult, error) {
	extra := make([]models.CompletedCourse, 0, len(hypothetical))
	for _, h := range hypothetical {
		if err := s.validator.Struct(h); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid hypothetical course")
		}
		grade := h.Grade
		if grade == "" {
			grade = defaultWhatIfGrade
		}
		hours := h.CreditHours
		if hours <= 0 {
			hours = defaultCourseHours
		}
		extra = append(extra, models.CompletedCourse{
			StudentID:   studentID,
			CourseCode:  h.CourseCode,
			Grade:       &grade,
			CreditHours: hours,
		})
	}
	return s.run(ctx, studentID, enrollmentID, extra)
}

func (s *AuditService) run(ctx context.Context, studentID, enrollmentID string, extra []models.CompletedCourse) (*models.DegreeAuditResult, error) {
	enrollment, err := s.ResolveEnrollment(ctx, studentID, enrollmentID)
	if err != nil {
		return nil, err
	}
	program, err := s.catalog.FindProgram(ctx, enrollment.ProgramID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidReference, "program not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load program")
	}
	requirements, err := s.catalog.ListRequirements(ctx, program.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load requirements")
	}
	ledger, err := s.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}
	if len(extra) > 0 {
		merged := make([]models.CompletedCourse, 0, len(ledger)+len(extra))
		merged = append(merged, ledger...)
		merged = append(merged, extra...)
		ledger = merged
	}

	result := s.evaluate(studentID, enrollment.ID, program, requirements, ledger)
	return result, nil
}

// ResolveEnrollment loads and ownership-checks an enrollment, falling back
// to the student's primary active enrollment when no ID is given.
func (s *AuditService) ResolveEnrollment(ctx context.Context, studentID, enrollmentID string) (*models.ProgramEnrollment, error) {
	if enrollmentID == "" {
		enrollment, err := s.enrollments.FindPrimaryActive(ctx, studentID)
		if err != nil {
			if err == sql.ErrNoRows {
				return nil, appErrors.Clone(appErrors.ErrInvalidReference, "student has no active enrollment")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve enrollment")
		}
		return enrollment, nil
	}
	enrollment, err := s.enrollments.FindByID(ctx, enrollmentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrInvalidReference, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if enrollment.StudentID != studentID {
		return nil, appErrors.Clone(appErrors.ErrInvalidReference, "enrollment does not belong to student")
	}
	return enrollment, nil
}

// allocation carries the mutable state threaded through one evaluation.
type allocation struct {
	byCode            map[string]models.CompletedCourse
	used              map[string]bool
	ledger            []models.CompletedCourse
	claimedByCategory map[models.RequirementCategory][]models.CompletedCourse
}

func (a *allocation) claim(category models.RequirementCategory, course models.CompletedCourse) {
	a.used[normalizeCode(course.CourseCode)] = true
	a.claimedByCategory[category] = append(a.claimedByCategory[category], course)
}

func (s *AuditService) evaluate(studentID, enrollmentID string, program *models.Program, requirements []models.Requirement, ledger []models.CompletedCourse) *models.DegreeAuditResult {
	alloc := &allocation{
		byCode:            make(map[string]models.CompletedCourse, len(ledger)),
		used:              make(map[string]bool, len(ledger)),
		ledger:            ledger,
		claimedByCategory: make(map[models.RequirementCategory][]models.CompletedCourse),
	}
	// A passing retake supersedes an earlier failed attempt of the same
	// course, so listed-course lookups see the attempt that can be claimed.
	for _, course := range ledger {
		code := normalizeCode(course.CourseCode)
		existing, exists := alloc.byCode[code]
		if !exists || (!IsPassingGrade(existing.Grade) && IsPassingGrade(course.Grade)) {
			alloc.byCode[code] = course
		}
	}

	results := make([]models.RequirementResult, len(requirements))

	// Specific pass first: named courses are claimed exclusively before
	// any broad pool rule can take them.
	for i, req := range requirements {
		if isSpecific(req) {
			results[i] = s.evaluateSpecific(req, alloc)
		}
	}
	for i, req := range requirements {
		if !isSpecific(req) {
			results[i] = s.evaluatePool(req, alloc)
		}
	}

	result := &models.DegreeAuditResult{
		StudentID:    studentID,
		EnrollmentID: enrollmentID,
		ProgramID:    program.ID,
		ProgramName:  program.Name,
		DegreeType:   program.DegreeType,
		Requirements: results,
		ComputedAt:   time.Now().UTC(),
	}

	var totalRequired, totalEarned float64
	for _, r := range results {
		totalRequired += r.HoursRequired
		totalEarned += r.HoursSatisfied
	}
	if program.TotalHours != nil {
		totalRequired = *program.TotalHours
	}
	result.TotalHoursRequired = totalRequired
	result.TotalHoursEarned = totalEarned
	if totalRequired > 0 {
		percent := totalEarned / totalRequired * 100
		if percent > 100 {
			percent = 100
		}
		result.ProgressPercent = roundGPA(percent)
	}
	result.Status = overallStatus(results)
	result.CumulativeGPA = CumulativeGPA(ledger)
	result.RecommendedCourses = s.recommendCourses(results)
	return result
}

// isSpecific reports whether a requirement names its exact courses: the
// "all" selection mode with a non-placeholder course list.
func isSpecific(req models.Requirement) bool {
	if req.SelectionMode != models.SelectionAll {
		return false
	}
	for _, course := range req.Courses {
		if !course.IsGroup {
			return true
		}
	}
	return false
}

func (s *AuditService) evaluateSpecific(req models.Requirement, alloc *allocation) models.RequirementResult {
	res := models.RequirementResult{
		RequirementID:  req.ID,
		Name:           req.Name,
		Category:       req.Category,
		AppliedCourses: []models.CourseApplication{},
	}

	var listedHours float64
	listed := 0
	for _, rc := range req.Courses {
		if rc.IsGroup {
			continue
		}
		listed++
		listedHours += courseHours(rc)
		code := normalizeCode(rc.CourseCode)
		course, ok := alloc.byCode[code]
		if ok && !alloc.used[code] && IsPassingGrade(course.Grade) {
			alloc.claim(req.Category, course)
			res.AppliedCourses = append(res.AppliedCourses, applicationFrom(course))
			res.HoursSatisfied += course.CreditHours
		} else if len(res.RemainingCourses) < s.remainingPreview {
			res.RemainingCourses = append(res.RemainingCourses, rc.CourseCode)
		}
	}

	res.CoursesRequired = listed
	if req.CoursesToSelect != nil {
		res.CoursesRequired = *req.CoursesToSelect
	}
	res.CoursesSatisfied = len(res.AppliedCourses)
	if req.RequiredHours != nil {
		res.HoursRequired = *req.RequiredHours
	} else {
		res.HoursRequired = listedHours
	}

	switch {
	case res.CoursesSatisfied >= res.CoursesRequired:
		res.Status = models.StatusComplete
	case res.CoursesSatisfied > 0:
		res.Status = models.StatusInProgress
	default:
		res.Status = models.StatusIncomplete
	}
	return res
}

func (s *AuditService) evaluatePool(req models.Requirement, alloc *allocation) models.RequirementResult {
	res := models.RequirementResult{
		RequirementID:  req.ID,
		Name:           req.Name,
		Category:       req.Category,
		AppliedCourses: []models.CourseApplication{},
	}

	res.HoursRequired = s.poolHoursRequired(req)
	res.CoursesRequired = poolCoursesRequired(req)

	gpaMet := true
	hasGPARule := false
	for _, rule := range req.Rules {
		switch rule.Type {
		case models.RuleHoursFromPool:
			cfg := rule.Config.HoursFromPool
			s.claimHours(req, alloc, &res, cfg.Hours, cfg.Subjects, cfg.MinLevel)
		case models.RuleCourseLevel:
			cfg := rule.Config.CourseLevel
			s.claimHours(req, alloc, &res, cfg.Hours, nil, cfg.MinLevel)
		case models.RuleGPAMinimum:
			cfg := rule.Config.GPAMinimum
			hasGPARule = true
			required := cfg.GPA
			res.GPARequired = &required
			res.GPAAchieved = s.scopedGPA(cfg.Scope, alloc)
			if res.GPAAchieved == nil || *res.GPAAchieved < cfg.GPA {
				gpaMet = false
			}
		case models.RuleCourseList:
			cfg := rule.Config.CourseList
			s.claimFromList(req, alloc, &res, cfg.Courses, cfg.Select)
		}
	}

	if len(req.Rules) == 0 {
		if hasListedCourses(req) {
			s.claimListed(req, alloc, &res)
		} else if res.HoursRequired > 0 {
			// Bare elective bucket: any unclaimed passing course counts.
			s.claimHours(req, alloc, &res, res.HoursRequired, nil, 0)
		}
	}

	res.CoursesSatisfied = len(res.AppliedCourses)

	hoursOK := res.HoursRequired <= 0 || res.HoursSatisfied >= res.HoursRequired
	coursesOK := res.CoursesRequired <= 0 || res.CoursesSatisfied >= res.CoursesRequired
	hasTarget := res.HoursRequired > 0 || res.CoursesRequired > 0 || hasGPARule
	switch {
	case !hasTarget, hoursOK && coursesOK && gpaMet:
		res.Status = models.StatusComplete
	case res.HoursSatisfied > 0 || res.CoursesSatisfied > 0:
		res.Status = models.StatusInProgress
	case hasGPARule && res.GPAAchieved != nil:
		res.Status = models.StatusInProgress
	default:
		res.Status = models.StatusIncomplete
	}
	return res
}

// claimHours claims unclaimed passing courses matching the optional
// subject and level filters until the rule's hour target is met.
// Malformed course codes are skipped for the filters only.
func (s *AuditService) claimHours(req models.Requirement, alloc *allocation, res *models.RequirementResult, target float64, subjects []string, minLevel int) {
	var claimed float64
	for _, course := range alloc.ledger {
		if claimed >= target {
			break
		}
		code := normalizeCode(course.CourseCode)
		if alloc.used[code] || !IsPassingGrade(course.Grade) {
			continue
		}
		if len(subjects) > 0 || minLevel > 0 {
			subject, level, err := parseCourseCode(course.CourseCode)
			if err != nil {
				s.logger.Debug("skipping unparseable course code for level filter",
					zap.String("course_code", course.CourseCode),
					zap.String("requirement_id", req.ID))
				continue
			}
			if len(subjects) > 0 && !matchesSubject(subjects, subject) {
				continue
			}
			if minLevel > 0 && level < minLevel {
				continue
			}
		}
		alloc.claim(req.Category, course)
		res.AppliedCourses = append(res.AppliedCourses, applicationFrom(course))
		res.HoursSatisfied += course.CreditHours
		claimed += course.CreditHours
	}
}

// claimFromList claims unclaimed passing courses from an explicit
// allow-list in list order, optionally capped.
func (s *AuditService) claimFromList(req models.Requirement, alloc *allocation, res *models.RequirementResult, courses []string, limit int) {
	claimed := 0
	for _, listed := range courses {
		if limit > 0 && claimed >= limit {
			break
		}
		code := normalizeCode(listed)
		course, ok := alloc.byCode[code]
		if !ok || alloc.used[code] || !IsPassingGrade(course.Grade) {
			if len(res.RemainingCourses) < s.remainingPreview {
				res.RemainingCourses = append(res.RemainingCourses, listed)
			}
			continue
		}
		alloc.claim(req.Category, course)
		res.AppliedCourses = append(res.AppliedCourses, applicationFrom(course))
		res.HoursSatisfied += course.CreditHours
		claimed++
	}
}

// claimListed is the fallback for rule-less requirements with a course
// list: directly claim any unclaimed listed course.
func (s *AuditService) claimListed(req models.Requirement, alloc *allocation, res *models.RequirementResult) {
	for _, rc := range req.Courses {
		if rc.IsGroup {
			continue
		}
		code := normalizeCode(rc.CourseCode)
		course, ok := alloc.byCode[code]
		if !ok || alloc.used[code] || !IsPassingGrade(course.Grade) {
			if len(res.RemainingCourses) < s.remainingPreview {
				res.RemainingCourses = append(res.RemainingCourses, rc.CourseCode)
			}
			continue
		}
		alloc.claim(req.Category, course)
		res.AppliedCourses = append(res.AppliedCourses, applicationFrom(course))
		res.HoursSatisfied += course.CreditHours
	}
}

// scopedGPA computes the GPA for a gpa_minimum rule: the full ledger for
// scope "all", otherwise courses applied so far to requirements of the
// named category.
func (s *AuditService) scopedGPA(scope string, alloc *allocation) *float64 {
	if scope == "" || scope == "all" {
		return CumulativeGPA(alloc.ledger)
	}
	return CumulativeGPA(alloc.claimedByCategory[models.RequirementCategory(scope)])
}

func (s *AuditService) poolHoursRequired(req models.Requirement) float64 {
	if req.RequiredHours != nil {
		return *req.RequiredHours
	}
	if req.MinHours != nil {
		return *req.MinHours
	}
	var fromRules float64
	for _, rule := range req.Rules {
		switch rule.Type {
		case models.RuleHoursFromPool:
			fromRules += rule.Config.HoursFromPool.Hours
		case models.RuleCourseLevel:
			fromRules += rule.Config.CourseLevel.Hours
		}
	}
	if fromRules > 0 {
		return fromRules
	}
	var fromCourses float64
	for _, rc := range req.Courses {
		if !rc.IsGroup {
			fromCourses += courseHours(rc)
		}
	}
	return fromCourses
}

func poolCoursesRequired(req models.Requirement) int {
	if req.CoursesToSelect != nil {
		return *req.CoursesToSelect
	}
	for _, rule := range req.Rules {
		if rule.Type == models.RuleCourseList && rule.Config.CourseList.Select > 0 {
			return rule.Config.CourseList.Select
		}
	}
	return 0
}

func (s *AuditService) recommendCourses(results []models.RequirementResult) []string {
	seen := make(map[string]bool)
	var recommended []string
	for _, res := range results {
		if res.Status == models.StatusComplete {
			continue
		}
		for _, code := range res.RemainingCourses {
			normalized := normalizeCode(code)
			if seen[normalized] {
				continue
			}
			seen[normalized] = true
			recommended = append(recommended, code)
			if len(recommended) >= s.recommendedLimit {
				return recommended
			}
		}
	}
	return recommended
}

func overallStatus(results []models.RequirementResult) models.RequirementStatus {
	complete := true
	anyProgress := false
	for _, res := range results {
		if res.Status != models.StatusComplete {
			complete = false
		}
		if res.Status != models.StatusIncomplete {
			anyProgress = true
		}
	}
	switch {
	case complete:
		return models.StatusComplete
	case anyProgress:
		return models.StatusInProgress
	default:
		return models.StatusIncomplete
	}
}

func hasListedCourses(req models.Requirement) bool {
	for _, rc := range req.Courses {
		if !rc.IsGroup {
			return true
		}
	}
	return false
}

func courseHours(rc models.RequirementCourse) float64 {
	if rc.CreditHours != nil {
		return *rc.CreditHours
	}
	return defaultCourseHours
}

func applicationFrom(course models.CompletedCourse) models.CourseApplication {
	return models.CourseApplication{
		CourseCode:  course.CourseCode,
		Grade:       course.Grade,
		CreditHours: course.CreditHours,
		IsPassing:   IsPassingGrade(course.Grade),
	}
}

func matchesSubject(subjects []string, subject string) bool {
	for _, s := range subjects {
		if normalizeCode(s) == subject {
			return true
		}
	}
	return false
}
