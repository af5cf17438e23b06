package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

// ErrUnknownValue reports a value that is not part of an enum.
var ErrUnknownValue = errors.New("catalog: unknown value")

// UnknownValueError carries the rejected value and the closest known candidate.
type UnknownValueError struct {
	Field      string
	Value      string
	Suggestion string
}

func (e *UnknownValueError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown %s %q (did you mean %q?)", e.Field, e.Value, e.Suggestion)
	}
	return fmt.Sprintf("unknown %s %q", e.Field, e.Value)
}

func (e *UnknownValueError) Unwrap() error { return ErrUnknownValue }

// Match resolves value against candidates ignoring case and surrounding
// whitespace, returning the canonical spelling.
func Match(field, value string, candidates []string) (string, error) {
	trimmed := strings.TrimSpace(value)
	for _, cand := range candidates {
		if strings.EqualFold(cand, trimmed) {
			return cand, nil
		}
	}
	suggestion, _ := Suggest(trimmed, candidates)
	return "", &UnknownValueError{Field: field, Value: value, Suggestion: suggestion}
}

// Suggest returns the candidate closest to value by edit distance, if any is
// close enough to be a plausible typo.
func Suggest(value string, candidates []string) (string, bool) {
	token := strings.ToLower(strings.TrimSpace(value))
	if token == "" {
		return "", false
	}
	type scored struct {
		val  string
		dist int
	}
	var results []scored
	for _, cand := range candidates {
		lower := strings.ToLower(cand)
		if strings.HasPrefix(lower, token) && len(token) >= 2 {
			results = append(results, scored{val: cand, dist: 0})
			continue
		}
		dist := levenshtein.ComputeDistance(token, lower)
		if dist > distanceLimit(len(lower)) {
			continue
		}
		results = append(results, scored{val: cand, dist: dist})
	}
	if len(results) == 0 {
		return "", false
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].dist < results[j].dist
	})
	return results[0].val, true
}

func distanceLimit(n int) int {
	switch {
	case n <= 4:
		return 1
	case n <= 8:
		return 2
	default:
		return n / 4
	}
}

// TaskIDs lists mission task identifiers in declaration order.
func (c *Catalog) TaskIDs() []string {
	ids := make([]string, 0, len(c.doc.MissionTasks))
	for _, t := range c.doc.MissionTasks {
		ids = append(ids, strings.TrimSpace(t.ID))
	}
	return ids
}

// ComponentIDs lists footprint component identifiers in declaration order.
func (c *Catalog) ComponentIDs() []string {
	ids := make([]string, 0, len(c.doc.Footprint))
	for _, comp := range c.doc.Footprint {
		ids = append(ids, strings.TrimSpace(comp.ID))
	}
	return ids
}
