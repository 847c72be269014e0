package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/studyflow/audit-api/internal/models"
	appErrors "github.com/studyflow/audit-api/pkg/errors"
)

type auditEngine interface {
	Run(ctx context.Context, studentID, enrollmentID string) (*models.DegreeAuditResult, error)
	WhatIf(ctx context.Context, studentID, enrollmentID string, hypothetical []HypotheticalCourse) (*models.DegreeAuditResult, error)
	ResolveEnrollment(ctx context.Context, studentID, enrollmentID string) (*models.ProgramEnrollment, error)
}

type snapshotStore interface {
	Replace(ctx context.Context, studentID, enrollmentID string, records []models.SnapshotRecord) error
	ListByEnrollment(ctx context.Context, studentID, enrollmentID string) ([]models.AuditSnapshot, error)
	ListCourses(ctx context.Context, snapshotIDs []string) (map[string][]models.SnapshotCourse, error)
	DeleteByEnrollment(ctx context.Context, studentID, enrollmentID string) error
	DeleteByStudent(ctx context.Context, studentID string) error
}

// AuditCacheService wraps the allocation engine for the real-audit path:
// it persists a snapshot of the last computed result per (student,
// enrollment), serves cheap cached reads, and exposes explicit
// invalidation for collaborators that change the ledger.
type AuditCacheService struct {
	engine    auditEngine
	snapshots snapshotStore
	catalog   catalogReader
	ledger    ledgerReader
	cache     *CacheService
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewAuditCacheService constructs the audit cache.
func NewAuditCacheService(engine auditEngine, snapshots snapshotStore, catalog catalogReader, ledger ledgerReader, cache *CacheService, metrics *MetricsService, logger *zap.Logger) *AuditCacheService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditCacheService{
		engine:    engine,
		snapshots: snapshots,
		catalog:   catalog,
		ledger:    ledger,
		cache:     cache,
		metrics:   metrics,
		logger:    logger,
	}
}

// RunAudit resolves the enrollment, runs the engine and atomically
// rewrites the cached snapshot. When forceRefresh is false an existing
// snapshot is served without recomputation.
func (s *AuditCacheService) RunAudit(ctx context.Context, studentID, enrollmentID string, forceRefresh bool) (*models.DegreeAuditResult, error) {
	enrollment, err := s.engine.ResolveEnrollment(ctx, studentID, enrollmentID)
	if err != nil {
		return nil, err
	}

	if !forceRefresh {
		cached, err := s.reconstruct(ctx, enrollment)
		if err == nil {
			return cached, nil
		}
		if appErr := appErrors.FromError(err); appErr.Code != appErrors.ErrNoCache.Code {
			s.logger.Warn("cached audit unusable, recomputing",
				zap.String("student_id", studentID),
				zap.String("enrollment_id", enrollment.ID),
				zap.Error(err))
		}
	}

	start := time.Now()
	result, err := s.engine.Run(ctx, studentID, enrollment.ID)
	s.metrics.ObserveAuditRun("real", time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if err := s.snapshots.Replace(ctx, studentID, enrollment.ID, snapshotRecords(result)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist audit snapshot")
	}
	if err := s.cache.Invalidate(ctx, quickProgressKey(studentID)); err != nil {
		s.logger.Warn("quick progress invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
	return result, nil
}

// GetCachedAudit reconstructs the last persisted result without
// recomputation. Returns ErrNoCache when no snapshot rows exist.
func (s *AuditCacheService) GetCachedAudit(ctx context.Context, studentID, enrollmentID string) (*models.DegreeAuditResult, error) {
	enrollment, err := s.engine.ResolveEnrollment(ctx, studentID, enrollmentID)
	if err != nil {
		return nil, err
	}
	return s.reconstruct(ctx, enrollment)
}

// InvalidateCache deletes the cached snapshot rows. Collaborators that
// mutate the completed-course ledger must call this; the engine has no
// automatic dependency tracking.
func (s *AuditCacheService) InvalidateCache(ctx context.Context, studentID, enrollmentID string) error {
	var err error
	if enrollmentID == "" {
		err = s.snapshots.DeleteByStudent(ctx, studentID)
	} else {
		err = s.snapshots.DeleteByEnrollment(ctx, studentID, enrollmentID)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to invalidate audit cache")
	}
	if err := s.cache.Invalidate(ctx, quickProgressKey(studentID)); err != nil {
		s.logger.Warn("quick progress invalidation failed", zap.String("student_id", studentID), zap.Error(err))
	}
	return nil
}

// WhatIfAnalysis is a pure pass-through to the engine's what-if mode and
// bypasses the snapshot cache entirely, both read and write.
func (s *AuditCacheService) WhatIfAnalysis(ctx context.Context, studentID, enrollmentID string, hypothetical []HypotheticalCourse) (*models.DegreeAuditResult, error) {
	start := time.Now()
	result, err := s.engine.WhatIf(ctx, studentID, enrollmentID, hypothetical)
	s.metrics.ObserveAuditRun("what_if", time.Since(start), err)
	return result, err
}

// GetQuickProgress returns a cheap summary from ledger aggregates alone,
// without per-requirement detail. Served from Redis when warm.
func (s *AuditCacheService) GetQuickProgress(ctx context.Context, studentID string) (*models.QuickProgress, error) {
	key := quickProgressKey(studentID)
	var cached models.QuickProgress
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	enrollment, err := s.engine.ResolveEnrollment(ctx, studentID, "")
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
	courses, err := s.ledger.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}

	var earned float64
	for _, course := range courses {
		if IsPassingGrade(course.Grade) {
			earned += course.CreditHours
		}
	}
	progress := &models.QuickProgress{
		StudentID:   studentID,
		ProgramID:   program.ID,
		ProgramName: program.Name,
		HoursEarned: earned,
		GPA:         CumulativeGPA(courses),
	}
	if program.TotalHours != nil && *program.TotalHours > 0 {
		percent := earned / *program.TotalHours * 100
		if percent > 100 {
			percent = 100
		}
		progress.ProgressPercent = roundGPA(percent)
	}

	if err := s.cache.Set(ctx, key, progress, 0); err != nil {
		s.logger.Warn("quick progress cache write failed", zap.String("student_id", studentID), zap.Error(err))
	}
	return progress, nil
}

// reconstruct rebuilds a DegreeAuditResult from persisted snapshot rows.
// Orphaned rows referencing a deleted requirement are skipped; they are
// purged on the next real run. The cumulative GPA is recomputed from the
// ledger because it is not a per-requirement scalar.
func (s *AuditCacheService) reconstruct(ctx context.Context, enrollment *models.ProgramEnrollment) (*models.DegreeAuditResult, error) {
	snapshots, err := s.snapshots.ListByEnrollment(ctx, enrollment.StudentID, enrollment.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit snapshot")
	}
	if len(snapshots) == 0 {
		return nil, appErrors.ErrNoCache
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

	byRequirement := make(map[string]models.AuditSnapshot, len(snapshots))
	ids := make([]string, 0, len(snapshots))
	for _, snapshot := range snapshots {
		byRequirement[snapshot.RequirementID] = snapshot
		ids = append(ids, snapshot.ID)
	}
	courses, err := s.snapshots.ListCourses(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load audit snapshot courses")
	}

	known := make(map[string]bool, len(requirements))
	var results []models.RequirementResult
	var computedAt time.Time
	for _, req := range requirements {
		known[req.ID] = true
		snapshot, ok := byRequirement[req.ID]
		if !ok {
			// Requirement added after the snapshot; the next run fills it.
			continue
		}
		res := models.RequirementResult{
			RequirementID:    req.ID,
			Name:             req.Name,
			Category:         req.Category,
			Status:           snapshot.Status,
			HoursRequired:    snapshot.HoursRequired,
			HoursSatisfied:   snapshot.HoursSatisfied,
			CoursesRequired:  snapshot.CoursesRequired,
			CoursesSatisfied: snapshot.CoursesSatisfied,
			GPARequired:      snapshot.GPARequired,
			GPAAchieved:      snapshot.GPAAchieved,
			AppliedCourses:   []models.CourseApplication{},
		}
		for _, course := range courses[snapshot.ID] {
			res.AppliedCourses = append(res.AppliedCourses, models.CourseApplication{
				CourseCode:  course.CourseCode,
				Grade:       course.Grade,
				CreditHours: course.CreditHours,
				IsPassing:   course.IsPassing,
			})
		}
		results = append(results, res)
		if snapshot.ComputedAt.After(computedAt) {
			computedAt = snapshot.ComputedAt
		}
	}
	for _, snapshot := range snapshots {
		if !known[snapshot.RequirementID] {
			s.logger.Debug("skipping orphaned snapshot row",
				zap.String("snapshot_id", snapshot.ID),
				zap.String("requirement_id", snapshot.RequirementID))
		}
	}
	if len(results) == 0 {
		return nil, appErrors.ErrNoCache
	}

	ledger, err := s.ledger.ListByStudent(ctx, enrollment.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load completed courses")
	}

	result := &models.DegreeAuditResult{
		StudentID:     enrollment.StudentID,
		EnrollmentID:  enrollment.ID,
		ProgramID:     program.ID,
		ProgramName:   program.Name,
		DegreeType:    program.DegreeType,
		Requirements:  results,
		CumulativeGPA: CumulativeGPA(ledger),
		ComputedAt:    computedAt,
		FromCache:     true,
	}
	var totalRequired, totalEarned float64
	for _, res := range results {
		totalRequired += res.HoursRequired
		totalEarned += res.HoursSatisfied
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
	result.RecommendedCourses = recommendFromCatalog(requirements, results, defaultRecommendedLimit)
	return result, nil
}

// recommendFromCatalog rebuilds the recommended-course preview for a
// reconstructed result. The engine derives it from unclaimed listed
// courses, which are not persisted, so cached reads recompute it from
// the requirement catalog instead.
func recommendFromCatalog(requirements []models.Requirement, results []models.RequirementResult, limit int) []string {
	claimed := make(map[string]bool)
	for _, res := range results {
		for _, app := range res.AppliedCourses {
			claimed[normalizeCode(app.CourseCode)] = true
		}
	}
	reqByID := make(map[string]models.Requirement, len(requirements))
	for _, req := range requirements {
		reqByID[req.ID] = req
	}

	seen := make(map[string]bool)
	var recommended []string
	for _, res := range results {
		if res.Status == models.StatusComplete {
			continue
		}
		for _, code := range listedCodes(reqByID[res.RequirementID]) {
			normalized := normalizeCode(code)
			if claimed[normalized] || seen[normalized] {
				continue
			}
			seen[normalized] = true
			recommended = append(recommended, code)
			if len(recommended) >= limit {
				return recommended
			}
		}
	}
	return recommended
}

func listedCodes(req models.Requirement) []string {
	var codes []string
	for _, rc := range req.Courses {
		if !rc.IsGroup {
			codes = append(codes, rc.CourseCode)
		}
	}
	for _, rule := range req.Rules {
		if rule.Type == models.RuleCourseList && rule.Config.CourseList != nil {
			codes = append(codes, rule.Config.CourseList.Courses...)
		}
	}
	return codes
}

func snapshotRecords(result *models.DegreeAuditResult) []models.SnapshotRecord {
	records := make([]models.SnapshotRecord, 0, len(result.Requirements))
	for _, res := range result.Requirements {
		record := models.SnapshotRecord{
			AuditSnapshot: models.AuditSnapshot{
				StudentID:        result.StudentID,
				EnrollmentID:     result.EnrollmentID,
				RequirementID:    res.RequirementID,
				Status:           res.Status,
				HoursRequired:    res.HoursRequired,
				HoursSatisfied:   res.HoursSatisfied,
				CoursesRequired:  res.CoursesRequired,
				CoursesSatisfied: res.CoursesSatisfied,
				GPARequired:      res.GPARequired,
				GPAAchieved:      res.GPAAchieved,
				ComputedAt:       result.ComputedAt,
			},
		}
		for i, app := range res.AppliedCourses {
			record.Courses = append(record.Courses, models.SnapshotCourse{
				CourseCode:   app.CourseCode,
				Grade:        app.Grade,
				CreditHours:  app.CreditHours,
				IsPassing:    app.IsPassing,
				DisplayOrder: i,
			})
		}
		records = append(records, record)
	}
	return records
}

func quickProgressKey(studentID string) string {
	return fmt.Sprintf("audit:quick_progress:%s", studentID)
}
