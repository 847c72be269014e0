package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/studyflow/audit-api/internal/models"
)

// CatalogRepository reads programs and their requirement catalogs. The
// catalog is populated by external pipelines; this service never writes it.
type CatalogRepository struct {
	db *sqlx.DB
}

// NewCatalogRepository constructs the repository.
func NewCatalogRepository(db *sqlx.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// ListPrograms returns all catalog programs ordered by name.
func (r *CatalogRepository) ListPrograms(ctx context.Context) ([]models.Program, error) {
	const query = `SELECT id, name, degree_type, total_hours FROM programs ORDER BY name`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query); err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	return programs, nil
}

// FindProgram returns a program by its ID.
func (r *CatalogRepository) FindProgram(ctx context.Context, id string) (*models.Program, error) {
	const query = `SELECT id, name, degree_type, total_hours FROM programs WHERE id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		return nil, err
	}
	return &program, nil
}

// ListRequirements returns a program's requirements in catalog display
// order, with course lists and decoded rules attached.
func (r *CatalogRepository) ListRequirements(ctx context.Context, programID string) ([]models.Requirement, error) {
	const query = `SELECT id, program_id, name, category, required_hours, min_hours, selection_mode, courses_to_select, display_order
        FROM requirements WHERE program_id = $1 ORDER BY display_order, name`
	var requirements []models.Requirement
	if err := r.db.SelectContext(ctx, &requirements, query, programID); err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	if len(requirements) == 0 {
		return requirements, nil
	}

	index := make(map[string]int, len(requirements))
	ids := make([]string, len(requirements))
	for i := range requirements {
		index[requirements[i].ID] = i
		ids[i] = requirements[i].ID
	}

	courses, err := r.listCourses(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, course := range courses {
		i := index[course.RequirementID]
		requirements[i].Courses = append(requirements[i].Courses, course)
	}

	rules, err := r.listRules(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, rule := range rules {
		i := index[rule.RequirementID]
		requirements[i].Rules = append(requirements[i].Rules, rule)
	}

	return requirements, nil
}

func (r *CatalogRepository) listCourses(ctx context.Context, requirementIDs []string) ([]models.RequirementCourse, error) {
	placeholders, args := inArgs(requirementIDs)
	query := fmt.Sprintf(`SELECT id, requirement_id, course_code, credit_hours, is_group, display_order
        FROM requirement_courses WHERE requirement_id IN (%s) ORDER BY requirement_id, display_order`, placeholders)
	var courses []models.RequirementCourse
	if err := r.db.SelectContext(ctx, &courses, query, args...); err != nil {
		return nil, fmt.Errorf("list requirement courses: %w", err)
	}
	return courses, nil
}

type requirementRuleRow struct {
	ID            string          `db:"id"`
	RequirementID string          `db:"requirement_id"`
	RuleType      models.RuleType `db:"rule_type"`
	Config        json.RawMessage `db:"config"`
	DisplayOrder  int             `db:"display_order"`
}

func (r *CatalogRepository) listRules(ctx context.Context, requirementIDs []string) ([]models.RequirementRule, error) {
	placeholders, args := inArgs(requirementIDs)
	query := fmt.Sprintf(`SELECT id, requirement_id, rule_type, config, display_order
        FROM requirement_rules WHERE requirement_id IN (%s) ORDER BY requirement_id, display_order`, placeholders)
	var rows []requirementRuleRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list requirement rules: %w", err)
	}
	rules := make([]models.RequirementRule, 0, len(rows))
	for _, row := range rows {
		config, err := models.DecodeRuleConfig(row.RuleType, row.Config)
		if err != nil {
			return nil, fmt.Errorf("requirement %s rule %s: %w", row.RequirementID, row.ID, err)
		}
		rules = append(rules, models.RequirementRule{
			ID:            row.ID,
			RequirementID: row.RequirementID,
			Type:          row.RuleType,
			DisplayOrder:  row.DisplayOrder,
			Config:        config,
		})
	}
	return rules, nil
}

func inArgs(ids []string) (string, []interface{}) {
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}
