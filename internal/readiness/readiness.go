// Package readiness evaluates whether the selected mission tasks are backed
// by the footprint components enabled for an exercise. Every function is pure
// and recomputed on demand; footprint sets are small enough that caching
// would only add staleness.
package readiness

import (
	"slices"

	"github.com/kingrea/role2-builder/internal/catalog"
)

// Support is the dependency status of one mission task.
type Support struct {
	TaskID         string
	FullySupported bool
	// Missing lists required components absent from the footprint, in the
	// order the task declares them.
	Missing []string
}

// Evaluate checks a task's required footprint against the selection. A task
// without requirements is always fully supported.
func Evaluate(task catalog.MissionTask, footprint []string) Support {
	var missing []string
	for _, id := range task.RequiredFootprint {
		if !slices.Contains(footprint, id) {
			missing = append(missing, id)
		}
	}
	return Support{
		TaskID:         task.ID,
		FullySupported: len(missing) == 0,
		Missing:        missing,
	}
}

// Report summarises the support status of every selected task.
type Report struct {
	Tasks []Support
	// Ready is true when every selected task is fully supported.
	Ready bool
	// MissingComponents is the ordered union of missing components across
	// the selected tasks.
	MissingComponents []string
}

// Underpowered returns the tasks that lack at least one required component.
func (r Report) Underpowered() []Support {
	var out []Support
	for _, s := range r.Tasks {
		if !s.FullySupported {
			out = append(out, s)
		}
	}
	return out
}

// Build evaluates the selected tasks in selection order. Unknown task ids are
// skipped; selection validity is the configuration's concern.
func Build(cat *catalog.Catalog, selected, footprint []string) Report {
	report := Report{Ready: true}
	for _, id := range selected {
		task, ok := cat.Task(id)
		if !ok {
			continue
		}
		support := Evaluate(task, footprint)
		report.Tasks = append(report.Tasks, support)
		if support.FullySupported {
			continue
		}
		report.Ready = false
		for _, m := range support.Missing {
			if !slices.Contains(report.MissingComponents, m) {
				report.MissingComponents = append(report.MissingComponents, m)
			}
		}
	}
	return report
}
