package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/studyflow/audit-api/internal/models"
	appErrors "github.com/studyflow/audit-api/pkg/errors"
)

type countingEngine struct {
	inner *AuditService
	runs  int
}

func (e *countingEngine) Run(ctx context.Context, studentID, enrollmentID string) (*models.DegreeAuditResult, error) {
	e.runs++
	return e.inner.Run(ctx, studentID, enrollmentID)
}

func (e *countingEngine) WhatIf(ctx context.Context, studentID, enrollmentID string, hypothetical []HypotheticalCourse) (*models.DegreeAuditResult, error) {
	return e.inner.WhatIf(ctx, studentID, enrollmentID, hypothetical)
}

func (e *countingEngine) ResolveEnrollment(ctx context.Context, studentID, enrollmentID string) (*models.ProgramEnrollment, error) {
	return e.inner.ResolveEnrollment(ctx, studentID, enrollmentID)
}

type mockSnapshotStore struct {
	records map[string][]models.SnapshotRecord
}

func storeKey(studentID, enrollmentID string) string {
	return studentID + "|" + enrollmentID
}

func (m *mockSnapshotStore) Replace(ctx context.Context, studentID, enrollmentID string, records []models.SnapshotRecord) error {
	if m.records == nil {
		m.records = make(map[string][]models.SnapshotRecord)
	}
	stored := make([]models.SnapshotRecord, len(records))
	copy(stored, records)
	for i := range stored {
		stored[i].ID = fmt.Sprintf("snap-%d", i)
		stored[i].StudentID = studentID
		stored[i].EnrollmentID = enrollmentID
		if stored[i].ComputedAt.IsZero() {
			stored[i].ComputedAt = time.Now().UTC()
		}
		for j := range stored[i].Courses {
			stored[i].Courses[j].SnapshotID = stored[i].ID
		}
	}
	m.records[storeKey(studentID, enrollmentID)] = stored
	return nil
}

func (m *mockSnapshotStore) ListByEnrollment(ctx context.Context, studentID, enrollmentID string) ([]models.AuditSnapshot, error) {
	var out []models.AuditSnapshot
	for _, record := range m.records[storeKey(studentID, enrollmentID)] {
		out = append(out, record.AuditSnapshot)
	}
	return out, nil
}

func (m *mockSnapshotStore) ListCourses(ctx context.Context, snapshotIDs []string) (map[string][]models.SnapshotCourse, error) {
	out := make(map[string][]models.SnapshotCourse)
	wanted := make(map[string]bool, len(snapshotIDs))
	for _, id := range snapshotIDs {
		wanted[id] = true
	}
	for _, records := range m.records {
		for _, record := range records {
			if wanted[record.ID] {
				out[record.ID] = record.Courses
			}
		}
	}
	return out, nil
}

func (m *mockSnapshotStore) DeleteByEnrollment(ctx context.Context, studentID, enrollmentID string) error {
	delete(m.records, storeKey(studentID, enrollmentID))
	return nil
}

func (m *mockSnapshotStore) DeleteByStudent(ctx context.Context, studentID string) error {
	for key := range m.records {
		if len(key) > len(studentID) && key[:len(studentID)+1] == studentID+"|" {
			delete(m.records, key)
		}
	}
	return nil
}

type memCacheRepo struct {
	data map[string][]byte
}

func (m *memCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	delete(m.data, pattern)
	return nil
}

type cacheFixture struct {
	svc    *AuditCacheService
	engine *countingEngine
	store  *mockSnapshotStore
	redis  *memCacheRepo
	ledger *mockLedger
}

func newCacheFixture(program *models.Program, requirements []models.Requirement, courses []models.CompletedCourse) *cacheFixture {
	catalog := &mockCatalog{program: program, requirements: requirements}
	ledger := &mockLedger{courses: courses}
	enrollments := &mockEnrollments{enrollments: map[string]*models.ProgramEnrollment{
		"en1": {ID: "en1", StudentID: "stu1", ProgramID: program.ID, Status: models.EnrollmentStatusActive, IsPrimary: true},
	}}
	inner := NewAuditService(catalog, ledger, enrollments, validator.New(), zap.NewNop(), 0, 0)
	engine := &countingEngine{inner: inner}
	store := &mockSnapshotStore{}
	redis := &memCacheRepo{}
	metrics := NewMetricsService()
	cacheSvc := NewCacheService(redis, metrics, time.Minute, zap.NewNop())
	svc := NewAuditCacheService(engine, store, catalog, ledger, cacheSvc, metrics, zap.NewNop())
	return &cacheFixture{svc: svc, engine: engine, store: store, redis: redis, ledger: ledger}
}

func csFixtureRequirements() []models.Requirement {
	return []models.Requirement{
		{
			ID: "req-core", Name: "Core", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("CS101"), listedCourse("CS102")},
		},
		{
			ID: "req-pool", Name: "Electives", Category: models.CategoryElective,
			Rules: []models.RequirementRule{hoursRule(3, []string{"CS"}, 0)},
		},
	}
}

func TestRunAuditPersistsSnapshot(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	f := newCacheFixture(program, csFixtureRequirements(), []models.CompletedCourse{
		completed("CS101", "A", 3), completed("CS310", "B", 3),
	})

	result, err := f.svc.RunAudit(context.Background(), "stu1", "en1", true)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, 1, f.engine.runs)

	records := f.store.records[storeKey("stu1", "en1")]
	require.Len(t, records, 2)
	byReq := make(map[string]models.SnapshotRecord)
	for _, record := range records {
		byReq[record.RequirementID] = record
	}
	core := byReq["req-core"]
	assert.Equal(t, models.StatusInProgress, core.Status)
	require.Len(t, core.Courses, 1)
	assert.Equal(t, "CS101", core.Courses[0].CourseCode)

	pool := byReq["req-pool"]
	assert.Equal(t, models.StatusComplete, pool.Status)
	require.Len(t, pool.Courses, 1)
	assert.Equal(t, "CS310", pool.Courses[0].CourseCode)
}

func TestRunAuditServesCachedSnapshot(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	f := newCacheFixture(program, csFixtureRequirements(), []models.CompletedCourse{
		completed("CS101", "A", 3), completed("CS310", "B", 3),
	})

	fresh, err := f.svc.RunAudit(context.Background(), "stu1", "en1", true)
	require.NoError(t, err)
	require.Equal(t, 1, f.engine.runs)

	cached, err := f.svc.RunAudit(context.Background(), "stu1", "en1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.engine.runs, "cached read must not recompute")
	assert.True(t, cached.FromCache)

	assert.Equal(t, fresh.Status, cached.Status)
	assert.Equal(t, fresh.TotalHoursEarned, cached.TotalHoursEarned)
	assert.Equal(t, fresh.TotalHoursRequired, cached.TotalHoursRequired)
	assert.Equal(t, fresh.ProgressPercent, cached.ProgressPercent)
	assert.Equal(t, fresh.RecommendedCourses, cached.RecommendedCourses)
	require.Len(t, cached.Requirements, len(fresh.Requirements))
	for i := range fresh.Requirements {
		assert.Equal(t, fresh.Requirements[i].Status, cached.Requirements[i].Status)
		assert.Equal(t, fresh.Requirements[i].HoursSatisfied, cached.Requirements[i].HoursSatisfied)
		assert.Equal(t, fresh.Requirements[i].AppliedCourses, cached.Requirements[i].AppliedCourses)
	}

	// forceRefresh recomputes even with a warm cache.
	refreshed, err := f.svc.RunAudit(context.Background(), "stu1", "en1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.engine.runs)
	assert.False(t, refreshed.FromCache)
}

func TestGetCachedAuditWithoutSnapshot(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	f := newCacheFixture(program, csFixtureRequirements(), nil)

	_, err := f.svc.GetCachedAudit(context.Background(), "stu1", "en1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoCache.Code, errorCode(err))
}

func TestCachedAuditSkipsOrphanedRows(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	f := newCacheFixture(program, csFixtureRequirements(), []models.CompletedCourse{
		completed("CS101", "A", 3),
	})

	_, err := f.svc.RunAudit(context.Background(), "stu1", "en1", true)
	require.NoError(t, err)

	// Simulate a requirement deleted from the catalog after caching.
	key := storeKey("stu1", "en1")
	f.store.records[key] = append(f.store.records[key], models.SnapshotRecord{
		AuditSnapshot: models.AuditSnapshot{
			ID: "snap-orphan", StudentID: "stu1", EnrollmentID: "en1",
			RequirementID: "req-deleted", Status: models.StatusComplete,
			HoursRequired: 99, HoursSatisfied: 99, ComputedAt: time.Now().UTC(),
		},
	})

	cached, err := f.svc.GetCachedAudit(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	assert.Len(t, cached.Requirements, 2)
	for _, res := range cached.Requirements {
		assert.NotEqual(t, "req-deleted", res.RequirementID)
	}
}

func TestCachedAuditRebuildsRecommendations(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	requirements := []models.Requirement{
		{
			ID: "req-core", Name: "Core", Category: models.CategoryCore,
			SelectionMode: models.SelectionAll,
			Courses:       []models.RequirementCourse{listedCourse("CS101"), listedCourse("CS102"), listedCourse("CS103")},
		},
		{
			ID: "req-list", Name: "Writing Intensive", Category: models.CategoryGenEd,
			Rules: []models.RequirementRule{{
				Type:   models.RuleCourseList,
				Config: models.RuleConfig{CourseList: &models.CourseListConfig{Courses: []string{"ENGL210", "ENGL220"}, Select: 1}},
			}},
		},
	}
	f := newCacheFixture(program, requirements, []models.CompletedCourse{
		completed("CS101", "A", 3),
	})

	_, err := f.svc.RunAudit(context.Background(), "stu1", "en1", true)
	require.NoError(t, err)

	cached, err := f.svc.GetCachedAudit(context.Background(), "stu1", "en1")
	require.NoError(t, err)
	assert.True(t, cached.FromCache)
	// Claimed CS101 is excluded; the rest of each incomplete
	// requirement's listed courses are suggested in catalog order.
	assert.Equal(t, []string{"CS102", "CS103", "ENGL210", "ENGL220"}, cached.RecommendedCourses)
}

func TestInvalidateCache(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	f := newCacheFixture(program, csFixtureRequirements(), []models.CompletedCourse{
		completed("CS101", "A", 3),
	})

	_, err := f.svc.RunAudit(context.Background(), "stu1", "en1", true)
	require.NoError(t, err)

	require.NoError(t, f.svc.InvalidateCache(context.Background(), "stu1", "en1"))
	_, err = f.svc.GetCachedAudit(context.Background(), "stu1", "en1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNoCache.Code, errorCode(err))

	// Empty enrollment clears everything the student has.
	_, err = f.svc.RunAudit(context.Background(), "stu1", "en1", true)
	require.NoError(t, err)
	require.NoError(t, f.svc.InvalidateCache(context.Background(), "stu1", ""))
	assert.Empty(t, f.store.records)
}

func TestWhatIfAnalysisBypassesSnapshotStore(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS"}
	f := newCacheFixture(program, csFixtureRequirements(), []models.CompletedCourse{
		completed("CS101", "A", 3),
	})

	result, err := f.svc.WhatIfAnalysis(context.Background(), "stu1", "en1", []HypotheticalCourse{{CourseCode: "CS102"}})
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Empty(t, f.store.records)
}

func TestGetQuickProgress(t *testing.T) {
	program := &models.Program{ID: "prog", Name: "BS CS", DegreeType: "BS", TotalHours: ptrFloat(120)}
	f := newCacheFixture(program, csFixtureRequirements(), []models.CompletedCourse{
		completed("CS101", "A", 3),
		completed("CS102", "F", 3), // failed, earns nothing
		completed("CS103", "", 3),  // withheld, still earned
	})

	progress, err := f.svc.GetQuickProgress(context.Background(), "stu1")
	require.NoError(t, err)
	assert.Equal(t, "prog", progress.ProgramID)
	assert.Equal(t, "BS CS", progress.ProgramName)
	assert.Equal(t, 6.0, progress.HoursEarned)
	require.NotNil(t, progress.GPA)
	assert.Equal(t, 2.0, *progress.GPA)
	assert.Equal(t, 5.0, progress.ProgressPercent)

	// Second call is served from the cache even after the ledger changes.
	f.ledger.courses = append(f.ledger.courses, completed("CS104", "A", 3))
	again, err := f.svc.GetQuickProgress(context.Background(), "stu1")
	require.NoError(t, err)
	assert.Equal(t, 6.0, again.HoursEarned)
	assert.Contains(t, f.redis.data, "audit:quick_progress:stu1")
}
