// Package catalog exposes the static reference data used by the exercise
// builder: mission tasks, footprint components, specialties and every enum a
// configuration field can take. The data ships embedded as YAML and is loaded
// once per process.
package catalog

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// MissionTask is a top-level training objective with checklist items and the
// footprint components it needs to be fully supported.
type MissionTask struct {
	ID                string
	Name              string
	Items             []string
	RequiredFootprint []string
}

// FootprintComponent is a staffed capability that can be enabled for an exercise.
type FootprintComponent struct {
	ID   string
	Name string
}

type taskDoc struct {
	ID                string   `yaml:"id"`
	Name              string   `yaml:"name"`
	Items             []string `yaml:"items"`
	RequiredFootprint []string `yaml:"required_footprint"`
}

type componentDoc struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type document struct {
	Durations        []int          `yaml:"durations"`
	UnitTypes        []string       `yaml:"unit_types"`
	Environments     []string       `yaml:"environments"`
	ThreatLevels     []string       `yaml:"threat_levels"`
	Regions          []string       `yaml:"regions"`
	TacticalSettings []string       `yaml:"tactical_settings"`
	EvacStatuses     []string       `yaml:"evac_statuses"`
	Etiologies       []string       `yaml:"etiologies"`
	Specialties      []string       `yaml:"specialties"`
	Footprint        []componentDoc `yaml:"footprint"`
	MissionTasks     []taskDoc      `yaml:"mission_tasks"`
}

// Catalog is read-only reference data. Accessors hand out copies so callers
// can never mutate the shared instance.
type Catalog struct {
	doc        document
	tasks      map[string]MissionTask
	components map[string]FootprintComponent
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns the embedded catalog. The embedded YAML is part of the
// binary, so a parse failure is a build defect and panics.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := Parse(embeddedCatalog)
		if err != nil {
			panic(fmt.Sprintf("catalog: embedded data invalid: %v", err))
		}
		defaultCatalog = c
	})
	return defaultCatalog
}

// Parse decodes and validates catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	c := &Catalog{
		doc:        doc,
		tasks:      make(map[string]MissionTask, len(doc.MissionTasks)),
		components: make(map[string]FootprintComponent, len(doc.Footprint)),
	}
	if err := c.index(); err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return c, nil
}

func (c *Catalog) index() error {
	lists := map[string][]string{
		"unit_types":        c.doc.UnitTypes,
		"environments":      c.doc.Environments,
		"threat_levels":     c.doc.ThreatLevels,
		"regions":           c.doc.Regions,
		"tactical_settings": c.doc.TacticalSettings,
		"evac_statuses":     c.doc.EvacStatuses,
		"etiologies":        c.doc.Etiologies,
		"specialties":       c.doc.Specialties,
	}
	for name, values := range lists {
		if len(values) == 0 {
			return fmt.Errorf("%s must not be empty", name)
		}
	}
	if len(c.doc.Durations) == 0 {
		return fmt.Errorf("durations must not be empty")
	}
	for _, d := range c.doc.Durations {
		if d < 1 {
			return fmt.Errorf("duration %d must be positive", d)
		}
	}
	for _, comp := range c.doc.Footprint {
		id := strings.TrimSpace(comp.ID)
		if id == "" {
			return fmt.Errorf("footprint component id is required")
		}
		if _, dup := c.components[id]; dup {
			return fmt.Errorf("duplicate footprint component %s", id)
		}
		c.components[id] = FootprintComponent{ID: id, Name: comp.Name}
	}
	for _, t := range c.doc.MissionTasks {
		id := strings.TrimSpace(t.ID)
		if id == "" {
			return fmt.Errorf("mission task id is required")
		}
		if _, dup := c.tasks[id]; dup {
			return fmt.Errorf("duplicate mission task %s", id)
		}
		for _, req := range t.RequiredFootprint {
			if _, ok := c.components[req]; !ok {
				return fmt.Errorf("mission task %s requires unknown footprint component %s", id, req)
			}
		}
		c.tasks[id] = MissionTask{
			ID:                id,
			Name:              t.Name,
			Items:             cloneStrings(t.Items),
			RequiredFootprint: cloneStrings(t.RequiredFootprint),
		}
	}
	return nil
}

// Durations lists the durations offered by the setup step.
func (c *Catalog) Durations() []int {
	out := make([]int, len(c.doc.Durations))
	copy(out, c.doc.Durations)
	return out
}

func (c *Catalog) UnitTypes() []string        { return cloneStrings(c.doc.UnitTypes) }
func (c *Catalog) Environments() []string     { return cloneStrings(c.doc.Environments) }
func (c *Catalog) ThreatLevels() []string     { return cloneStrings(c.doc.ThreatLevels) }
func (c *Catalog) Regions() []string          { return cloneStrings(c.doc.Regions) }
func (c *Catalog) TacticalSettings() []string { return cloneStrings(c.doc.TacticalSettings) }
func (c *Catalog) EvacStatuses() []string     { return cloneStrings(c.doc.EvacStatuses) }
func (c *Catalog) Etiologies() []string       { return cloneStrings(c.doc.Etiologies) }
func (c *Catalog) Specialties() []string      { return cloneStrings(c.doc.Specialties) }

// MissionTasks returns every mission task in declaration order.
func (c *Catalog) MissionTasks() []MissionTask {
	out := make([]MissionTask, 0, len(c.doc.MissionTasks))
	for _, t := range c.doc.MissionTasks {
		task, _ := c.Task(t.ID)
		out = append(out, task)
	}
	return out
}

// Footprint returns every footprint component in declaration order.
func (c *Catalog) Footprint() []FootprintComponent {
	out := make([]FootprintComponent, 0, len(c.doc.Footprint))
	for _, comp := range c.doc.Footprint {
		out = append(out, c.components[strings.TrimSpace(comp.ID)])
	}
	return out
}

// Task looks up a mission task by identifier.
func (c *Catalog) Task(id string) (MissionTask, bool) {
	task, ok := c.tasks[strings.TrimSpace(id)]
	if !ok {
		return MissionTask{}, false
	}
	task.Items = cloneStrings(task.Items)
	task.RequiredFootprint = cloneStrings(task.RequiredFootprint)
	return task, true
}

// Component looks up a footprint component by identifier.
func (c *Catalog) Component(id string) (FootprintComponent, bool) {
	comp, ok := c.components[strings.TrimSpace(id)]
	return comp, ok
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
