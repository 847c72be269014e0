package service

import (
	"fmt"
	"strings"
	"unicode"
)

// normalizeCode canonicalizes a course code for comparison: uppercase with
// whitespace removed, so "cs 301" and "CS301" allocate identically.
func normalizeCode(code string) string {
	var b strings.Builder
	for _, r := range code {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}

// parseCourseCode splits a code like "MATH 301" into its subject prefix
// and numeric level. Codes that do not fit the subject+level shape are
// malformed; callers skip them for level filtering only.
func parseCourseCode(code string) (string, int, error) {
	normalized := normalizeCode(code)
	i := 0
	for i < len(normalized) && normalized[i] >= 'A' && normalized[i] <= 'Z' {
		i++
	}
	if i == 0 {
		return "", 0, fmt.Errorf("course code %q has no subject prefix", code)
	}
	level := 0
	j := i
	for j < len(normalized) && normalized[j] >= '0' && normalized[j] <= '9' {
		level = level*10 + int(normalized[j]-'0')
		j++
	}
	if j == i {
		return "", 0, fmt.Errorf("course code %q has no numeric level", code)
	}
	return normalized[:i], level, nil
}
