package generation

import (
	"fmt"
	"strings"
)

// State is a step of the generation sequence.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateAwaitingRemote
	StateDownloading
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateAwaitingRemote:
		return "awaiting remote"
	case StateDownloading:
		return "downloading"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a sequence is in flight.
func (s State) Active() bool {
	return s == StatePreparing || s == StateAwaitingRemote || s == StateDownloading
}

// Terminal reports whether the sequence has ended.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Job selects which artifact a sequence generates.
type Job int

const (
	JobPackage Job = iota
	JobWarno
	JobMSEL
)

func (j Job) String() string {
	switch j {
	case JobPackage:
		return "package"
	case JobWarno:
		return "warno"
	case JobMSEL:
		return "msel"
	default:
		return fmt.Sprintf("job(%d)", int(j))
	}
}

// Label is the human readable artifact name.
func (j Job) Label() string {
	switch j {
	case JobPackage:
		return "exercise package"
	case JobWarno:
		return "WARNO draft"
	case JobMSEL:
		return "MSEL"
	default:
		return j.String()
	}
}

// FileName returns the download name for an exercise.
func (j Job) FileName(exerciseName string) string {
	name := strings.TrimSpace(exerciseName)
	switch j {
	case JobWarno:
		return name + "_WARNO.txt"
	case JobMSEL:
		return name + "_MSEL.xlsx"
	default:
		return name + "_Package.zip"
	}
}

// ParseJob maps a CLI key to a Job.
func ParseJob(key string) (Job, error) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "", "package", "exercise":
		return JobPackage, nil
	case "warno":
		return JobWarno, nil
	case "msel":
		return JobMSEL, nil
	default:
		return 0, fmt.Errorf("generation: unknown job %q (want package, warno or msel)", key)
	}
}

// Progress is the observable status of the orchestrator.
type Progress struct {
	State   State
	Job     Job
	Message string
	// Err is set when State is StateFailed.
	Err error
	// Path is the saved file once State is StateComplete.
	Path string
}
