// Package exercise models the exercise configuration assembled by the wizard
// and the per-day tactical schedule derived from its duration.
package exercise

import (
	"fmt"
	"slices"
	"strings"

	"github.com/kingrea/role2-builder/internal/catalog"
)

const (
	DefaultDuration    = 3
	MaxSpecialistCount = 5
)

// Config is the full exercise configuration. It is a plain value: Clone it
// before handing it to anything that outlives the current edit.
type Config struct {
	Name         string         `json:"exercise_name"`
	Duration     int            `json:"duration"`
	UnitType     string         `json:"unit_type"`
	Environment  string         `json:"environment"`
	ThreatLevel  string         `json:"threat_level"`
	Region       string         `json:"region"`
	MissionTasks []string       `json:"mission_tasks"`
	Footprint    []string       `json:"footprint"`
	Specialists  map[string]int `json:"specialists"`
	Days         []Day          `json:"days"`
}

// New returns a configuration populated with defaults: the first value of
// every enum and DefaultDuration default days.
func New() Config {
	cat := catalog.Default()
	cfg := Config{
		Duration:     DefaultDuration,
		UnitType:     cat.UnitTypes()[0],
		Environment:  cat.Environments()[0],
		ThreatLevel:  cat.ThreatLevels()[0],
		Region:       cat.Regions()[0],
		MissionTasks: []string{},
		Footprint:    []string{},
		Specialists:  map[string]int{},
	}
	cfg.Days = Resize(nil, cfg.Duration)
	return cfg
}

// Clone returns a deep copy.
func (c Config) Clone() Config {
	out := c
	out.MissionTasks = slices.Clone(c.MissionTasks)
	out.Footprint = slices.Clone(c.Footprint)
	if c.Specialists != nil {
		out.Specialists = make(map[string]int, len(c.Specialists))
		for k, v := range c.Specialists {
			out.Specialists[k] = v
		}
	}
	if c.Days != nil {
		out.Days = make([]Day, len(c.Days))
		for i, d := range c.Days {
			out.Days[i] = d.Clone()
		}
	}
	return out
}

// SetName trims and stores the exercise name.
func (c *Config) SetName(name string) {
	c.Name = strings.TrimSpace(name)
}

// SetDuration changes the duration and re-derives the schedule.
func (c *Config) SetDuration(n int) error {
	if n < 1 {
		return fmt.Errorf("exercise: duration must be at least 1 day, got %d", n)
	}
	c.Duration = n
	c.Days = Resize(c.Days, n)
	return nil
}

func (c *Config) SetUnitType(v string) error {
	m, err := catalog.Match("unit type", v, catalog.Default().UnitTypes())
	if err != nil {
		return err
	}
	c.UnitType = m
	return nil
}

func (c *Config) SetEnvironment(v string) error {
	m, err := catalog.Match("environment", v, catalog.Default().Environments())
	if err != nil {
		return err
	}
	c.Environment = m
	return nil
}

func (c *Config) SetThreatLevel(v string) error {
	m, err := catalog.Match("threat level", v, catalog.Default().ThreatLevels())
	if err != nil {
		return err
	}
	c.ThreatLevel = m
	return nil
}

func (c *Config) SetRegion(v string) error {
	m, err := catalog.Match("region", v, catalog.Default().Regions())
	if err != nil {
		return err
	}
	c.Region = m
	return nil
}

// HasMissionTask reports whether the task is selected.
func (c Config) HasMissionTask(id string) bool {
	return slices.Contains(c.MissionTasks, id)
}

// HasFootprint reports whether the component is enabled.
func (c Config) HasFootprint(id string) bool {
	return slices.Contains(c.Footprint, id)
}

// ToggleMissionTask flips the selection of a mission task and reports the
// new state. Selecting a task never enables its required footprint.
func (c *Config) ToggleMissionTask(id string) (bool, error) {
	id, err := catalog.Match("mission task", id, catalog.Default().TaskIDs())
	if err != nil {
		return false, err
	}
	if idx := slices.Index(c.MissionTasks, id); idx >= 0 {
		c.MissionTasks = slices.Delete(c.MissionTasks, idx, idx+1)
		return false, nil
	}
	c.MissionTasks = append(c.MissionTasks, id)
	return true, nil
}

// ToggleFootprint flips a footprint component and reports the new state.
func (c *Config) ToggleFootprint(id string) (bool, error) {
	id, err := catalog.Match("footprint component", id, catalog.Default().ComponentIDs())
	if err != nil {
		return false, err
	}
	if idx := slices.Index(c.Footprint, id); idx >= 0 {
		c.Footprint = slices.Delete(c.Footprint, idx, idx+1)
		return false, nil
	}
	c.Footprint = append(c.Footprint, id)
	return true, nil
}

// SetSpecialist records the staffing count for a specialty. Zero removes it.
func (c *Config) SetSpecialist(specialty string, count int) error {
	name, err := catalog.Match("specialty", specialty, catalog.Default().Specialties())
	if err != nil {
		return err
	}
	if count < 0 || count > MaxSpecialistCount {
		return fmt.Errorf("exercise: %s count must be between 0 and %d", name, MaxSpecialistCount)
	}
	if c.Specialists == nil {
		c.Specialists = map[string]int{}
	}
	if count == 0 {
		delete(c.Specialists, name)
		return nil
	}
	c.Specialists[name] = count
	return nil
}

// Day returns the day with the given 1-based number.
func (c Config) Day(number int) (Day, error) {
	if number < 1 || number > len(c.Days) {
		return Day{}, fmt.Errorf("%w: day %d of %d", ErrDayOutOfRange, number, len(c.Days))
	}
	return c.Days[number-1].Clone(), nil
}

// UpdateDay applies a partial edit to the day with the given 1-based number.
func (c *Config) UpdateDay(number int, u DayUpdate) error {
	if number < 1 || number > len(c.Days) {
		return fmt.Errorf("%w: day %d of %d", ErrDayOutOfRange, number, len(c.Days))
	}
	updated, err := ApplyUpdate(c.Days[number-1], u)
	if err != nil {
		return err
	}
	c.Days[number-1] = updated
	return nil
}

// SetMascal toggles the mass-casualty flag of a day, clearing its detail when
// switched off.
func (c *Config) SetMascal(number int, on bool) error {
	if number < 1 || number > len(c.Days) {
		return fmt.Errorf("%w: day %d of %d", ErrDayOutOfRange, number, len(c.Days))
	}
	c.Days[number-1] = SetMascal(c.Days[number-1], on)
	return nil
}

// CopyForward copies day index from (0-based) over every later day.
func (c *Config) CopyForward(from int) error {
	days, err := CopyForward(c.Days, from)
	if err != nil {
		return err
	}
	c.Days = days
	return nil
}

// SubmitBlocked reports whether a mascal day is missing its etiology.
func (c Config) SubmitBlocked() bool {
	return SubmitBlocked(c.Days)
}
