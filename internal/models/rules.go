package models

import (
	"encoding/json"
	"fmt"
)

// RuleType tags the variant carried by a requirement rule.
type RuleType string

// Supported rule types.
const (
	RuleHoursFromPool RuleType = "hours_from_pool"
	RuleCourseLevel   RuleType = "course_level"
	RuleGPAMinimum    RuleType = "gpa_minimum"
	RuleCourseList    RuleType = "course_list"
)

// RequirementRule is a typed satisfaction rule attached to a requirement.
type RequirementRule struct {
	ID            string   `db:"id" json:"id"`
	RequirementID string   `db:"requirement_id" json:"requirement_id"`
	Type          RuleType `db:"rule_type" json:"rule_type"`
	DisplayOrder  int      `db:"display_order" json:"display_order"`

	Config RuleConfig `json:"config"`
}

// RuleConfig is a tagged union; exactly one member is set, matching the
// rule's Type.
type RuleConfig struct {
	HoursFromPool *HoursFromPoolConfig `json:"hours_from_pool,omitempty"`
	CourseLevel   *CourseLevelConfig   `json:"course_level,omitempty"`
	GPAMinimum    *GPAMinimumConfig    `json:"gpa_minimum,omitempty"`
	CourseList    *CourseListConfig    `json:"course_list,omitempty"`
}

// HoursFromPoolConfig claims unclaimed courses until an hour target is met,
// optionally filtered by subject prefixes and a minimum course level.
type HoursFromPoolConfig struct {
	Hours    float64  `json:"hours"`
	Subjects []string `json:"subjects,omitempty"`
	MinLevel int      `json:"min_level,omitempty"`
}

// CourseLevelConfig claims hours restricted to a numeric level floor.
type CourseLevelConfig struct {
	Hours    float64 `json:"hours"`
	MinLevel int     `json:"min_level"`
}

// GPAMinimumConfig compares a scoped GPA against a threshold. Scope is
// "all" for the cumulative GPA or a requirement category name.
type GPAMinimumConfig struct {
	GPA   float64 `json:"gpa"`
	Scope string  `json:"scope"`
}

// CourseListConfig claims from an explicit allow-list in list order,
// optionally capped at Select courses.
type CourseListConfig struct {
	Courses []string `json:"courses"`
	Select  int      `json:"select,omitempty"`
}

// DecodeRuleConfig validates and decodes the schemaless catalog blob into
// the variant matching ruleType. Unknown types and malformed payloads are
// load errors so bad catalog data fails fast instead of silently
// evaluating as a no-op.
func DecodeRuleConfig(ruleType RuleType, raw json.RawMessage) (RuleConfig, error) {
	var cfg RuleConfig
	switch ruleType {
	case RuleHoursFromPool:
		v := &HoursFromPoolConfig{}
		if err := json.Unmarshal(raw, v); err != nil {
			return cfg, fmt.Errorf("decode hours_from_pool config: %w", err)
		}
		if v.Hours <= 0 {
			return cfg, fmt.Errorf("hours_from_pool rule requires a positive hour target")
		}
		cfg.HoursFromPool = v
	case RuleCourseLevel:
		v := &CourseLevelConfig{}
		if err := json.Unmarshal(raw, v); err != nil {
			return cfg, fmt.Errorf("decode course_level config: %w", err)
		}
		if v.Hours <= 0 || v.MinLevel <= 0 {
			return cfg, fmt.Errorf("course_level rule requires positive hours and min_level")
		}
		cfg.CourseLevel = v
	case RuleGPAMinimum:
		v := &GPAMinimumConfig{}
		if err := json.Unmarshal(raw, v); err != nil {
			return cfg, fmt.Errorf("decode gpa_minimum config: %w", err)
		}
		if v.GPA <= 0 {
			return cfg, fmt.Errorf("gpa_minimum rule requires a positive threshold")
		}
		if v.Scope == "" {
			v.Scope = "all"
		}
		cfg.GPAMinimum = v
	case RuleCourseList:
		v := &CourseListConfig{}
		if err := json.Unmarshal(raw, v); err != nil {
			return cfg, fmt.Errorf("decode course_list config: %w", err)
		}
		if len(v.Courses) == 0 {
			return cfg, fmt.Errorf("course_list rule requires at least one course")
		}
		cfg.CourseList = v
	default:
		return cfg, fmt.Errorf("unknown rule type %q", ruleType)
	}
	return cfg, nil
}
