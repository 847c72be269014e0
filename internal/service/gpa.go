package service

import (
	"math"
	"strings"

	"github.com/studyflow/audit-api/internal/models"
)

// qualityPoints maps letter grades to quality points on the 4.0 scale.
var qualityPoints = map[string]float64{
	"A+": 4.0,
	"A":  4.0,
	"A-": 3.7,
	"B+": 3.3,
	"B":  3.0,
	"B-": 2.7,
	"C+": 2.3,
	"C":  2.0,
	"C-": 1.7,
	"D+": 1.3,
	"D":  1.0,
	"D-": 0.7,
	"F":  0.0,
}

// passingMarks are non-letter marks that count as passed but carry no
// quality points.
var passingMarks = map[string]bool{
	"P":  true,
	"S":  true,
	"CR": true,
}

// QualityPoints returns the quality points for a letter grade.
func QualityPoints(grade string) (float64, bool) {
	points, ok := qualityPoints[normalizeGrade(grade)]
	return points, ok
}

// IsPassingGrade reports whether a grade counts as passed. A nil grade is
// withheld for privacy and is assumed passed.
func IsPassingGrade(grade *string) bool {
	if grade == nil {
		return true
	}
	g := normalizeGrade(*grade)
	if g == "" {
		return true
	}
	if passingMarks[g] {
		return true
	}
	points, ok := qualityPoints[g]
	return ok && points > 0
}

// CumulativeGPA computes the GPA over the graded portion of the given
// courses. Courses without a grade, and marks outside the letter scale,
// contribute neither quality points nor hours. Returns nil when no graded
// hours exist.
func CumulativeGPA(courses []models.CompletedCourse) *float64 {
	var points, hours float64
	for _, course := range courses {
		if course.Grade == nil {
			continue
		}
		qp, ok := QualityPoints(*course.Grade)
		if !ok {
			continue
		}
		points += qp * course.CreditHours
		hours += course.CreditHours
	}
	if hours == 0 {
		return nil
	}
	gpa := roundGPA(points / hours)
	return &gpa
}

func roundGPA(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

func normalizeGrade(grade string) string {
	return strings.ToUpper(strings.TrimSpace(grade))
}
