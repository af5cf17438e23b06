package exercise

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/kingrea/role2-builder/internal/catalog"
)

// Issue is a single validation finding tied to a configuration field.
type Issue struct {
	Field   string
	Message string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// ValidationError bundles the issues that stop a configuration from being
// submitted.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		parts = append(parts, issue.String())
	}
	return "exercise: invalid configuration: " + strings.Join(parts, "; ")
}

// Structural checks the invariants that must hold for a configuration to be
// usable at all: a positive duration, one day per position with matching day
// numbers, and mascal detail only on mascal days.
func (c Config) Structural() error {
	if c.Duration < 1 {
		return fmt.Errorf("exercise: duration must be at least 1, got %d", c.Duration)
	}
	if len(c.Days) != c.Duration {
		return fmt.Errorf("exercise: schedule has %d days, duration is %d", len(c.Days), c.Duration)
	}
	for i, d := range c.Days {
		if d.Number != i+1 {
			return fmt.Errorf("exercise: day at position %d is numbered %d", i+1, d.Number)
		}
	}
	return nil
}

// Validate returns every issue with the configuration. An empty result
// combined with SubmitBlocked() == false means the configuration can be sent.
func (c Config) Validate() []Issue {
	cat := catalog.Default()
	var issues []Issue
	add := func(field, format string, args ...any) {
		issues = append(issues, Issue{Field: field, Message: fmt.Sprintf(format, args...)})
	}
	if err := c.Structural(); err != nil {
		add("days", "%s", strings.TrimPrefix(err.Error(), "exercise: "))
	}
	if strings.TrimSpace(c.Name) == "" {
		add("exercise_name", "exercise name is required")
	}
	checkEnum := func(field, value string, allowed []string) {
		if !slices.Contains(allowed, value) {
			add(field, "unknown value %q", value)
		}
	}
	checkEnum("unit_type", c.UnitType, cat.UnitTypes())
	checkEnum("environment", c.Environment, cat.Environments())
	checkEnum("threat_level", c.ThreatLevel, cat.ThreatLevels())
	checkEnum("region", c.Region, cat.Regions())
	seen := map[string]bool{}
	for _, id := range c.MissionTasks {
		if seen[id] {
			add("mission_tasks", "duplicate mission task %s", id)
		}
		seen[id] = true
		if _, ok := cat.Task(id); !ok {
			add("mission_tasks", "unknown mission task %s", id)
		}
	}
	seen = map[string]bool{}
	for _, id := range c.Footprint {
		if seen[id] {
			add("footprint", "duplicate footprint component %s", id)
		}
		seen[id] = true
		if _, ok := cat.Component(id); !ok {
			add("footprint", "unknown footprint component %s", id)
		}
	}
	for name, count := range c.Specialists {
		if !slices.Contains(cat.Specialties(), name) {
			add("specialists", "unknown specialty %s", name)
		}
		if count < 0 || count > MaxSpecialistCount {
			add("specialists", "%s count %d outside 0-%d", name, count, MaxSpecialistCount)
		}
	}
	for _, d := range c.Days {
		field := fmt.Sprintf("days[%d]", d.Number)
		if !slices.Contains(cat.TacticalSettings(), d.TacticalSetting) {
			add(field, "unknown tactical setting %q", d.TacticalSetting)
		}
		if d.TotalPatients < 1 {
			add(field, "total patients must be at least 1")
		}
		if d.TotalWaves < 1 || d.TotalWaves > d.TotalPatients {
			add(field, "total waves must be between 1 and total patients")
		}
		if d.Mascal == nil {
			continue
		}
		if d.Mascal.Etiology == "" {
			add(field, "mascal day requires an etiology")
		} else if !slices.Contains(cat.Etiologies(), d.Mascal.Etiology) {
			add(field, "unknown etiology %q", d.Mascal.Etiology)
		}
		if d.Mascal.Patients < MinMascalPatients || d.Mascal.Patients > MaxMascalPatients {
			add(field, "mascal patients must be between %d and %d", MinMascalPatients, MaxMascalPatients)
		}
	}
	return issues
}

// CheckSubmittable returns a *ValidationError when the configuration cannot be
// handed to the generation service.
func (c Config) CheckSubmittable() error {
	issues := c.Validate()
	if len(issues) == 0 {
		return nil
	}
	return &ValidationError{Issues: issues}
}

// IsValidationError reports whether err carries configuration issues.
func IsValidationError(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
