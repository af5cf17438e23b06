package exercise

import (
	"errors"
	"fmt"

	"github.com/kingrea/role2-builder/internal/catalog"
)

var (
	// ErrDayOutOfRange reports a day number or index outside the schedule.
	ErrDayOutOfRange = errors.New("exercise: day out of range")
	// ErrNotMascal reports a mascal-only field edited on a standard day.
	ErrNotMascal = errors.New("exercise: day is not a mascal day")
)

// DefaultDay returns a freshly defaulted schedule entry for the given 1-based
// day number.
func DefaultDay(number int) Day {
	cat := catalog.Default()
	return Day{
		Number:          number,
		TacticalSetting: cat.TacticalSettings()[0],
		TotalPatients:   DefaultTotalPatients,
		TotalWaves:      DefaultTotalWaves,
		EvacStatus:      cat.EvacStatuses()[0],
	}
}

// Resize returns a schedule of exactly n days. Entries below n are copied
// unchanged; missing entries are appended as defaults with sequential numbers.
// n below zero is treated as zero.
func Resize(days []Day, n int) []Day {
	if n < 0 {
		n = 0
	}
	out := make([]Day, n)
	for i := 0; i < n; i++ {
		if i < len(days) {
			out[i] = days[i].Clone()
			continue
		}
		out[i] = DefaultDay(i + 1)
	}
	return out
}

// CopyForward returns a schedule where every day after index from (0-based)
// carries day from's fields. Day numbers keep their positions.
func CopyForward(days []Day, from int) ([]Day, error) {
	if from < 0 || from >= len(days) {
		return nil, fmt.Errorf("%w: index %d of %d", ErrDayOutOfRange, from, len(days))
	}
	out := make([]Day, len(days))
	for i := range days {
		if i <= from {
			out[i] = days[i].Clone()
			continue
		}
		copied := days[from].Clone()
		copied.Number = i + 1
		out[i] = copied
	}
	return out, nil
}

// SetMascal returns d with the mass-casualty flag set. Turning the flag off
// drops the etiology and patient count in the same step; turning it on keeps
// an existing detail or installs one with no etiology and the default surge.
func SetMascal(d Day, on bool) Day {
	out := d.Clone()
	if !on {
		out.Mascal = nil
		return out
	}
	if out.Mascal == nil {
		out.Mascal = &MascalDetail{Patients: DefaultMascalPatients}
	}
	return out
}

// DayUpdate describes a partial edit of one day. Nil fields are left alone.
type DayUpdate struct {
	TacticalSetting *string
	TotalPatients   *int
	TotalWaves      *int
	NightOps        *bool
	CBRNDrill       *bool
	DetaineeOps     *bool
	EvacStatus      *string
	Mascal          *bool
	MascalEtiology  *string
	MascalPatients  *int
}

// ApplyUpdate returns d with u applied, or an error leaving d untouched. The
// mascal flag is applied before the mascal fields so one update can switch a
// day to mascal and fill in its detail.
func ApplyUpdate(d Day, u DayUpdate) (Day, error) {
	cat := catalog.Default()
	out := d.Clone()
	if u.TacticalSetting != nil {
		v, err := catalog.Match("tactical setting", *u.TacticalSetting, cat.TacticalSettings())
		if err != nil {
			return d, err
		}
		out.TacticalSetting = v
	}
	if u.EvacStatus != nil {
		v, err := catalog.Match("evac status", *u.EvacStatus, cat.EvacStatuses())
		if err != nil {
			return d, err
		}
		out.EvacStatus = v
	}
	if u.TotalPatients != nil {
		out.TotalPatients = *u.TotalPatients
	}
	if u.TotalWaves != nil {
		out.TotalWaves = *u.TotalWaves
	}
	if out.TotalPatients < 1 {
		return d, fmt.Errorf("day %d: total patients must be at least 1", d.Number)
	}
	if out.TotalWaves < 1 {
		return d, fmt.Errorf("day %d: total waves must be at least 1", d.Number)
	}
	if out.TotalWaves > out.TotalPatients {
		return d, fmt.Errorf("day %d: total waves (%d) cannot exceed total patients (%d)", d.Number, out.TotalWaves, out.TotalPatients)
	}
	if u.NightOps != nil {
		out.NightOps = *u.NightOps
	}
	if u.CBRNDrill != nil {
		out.CBRNDrill = *u.CBRNDrill
	}
	if u.DetaineeOps != nil {
		out.DetaineeOps = *u.DetaineeOps
	}
	if u.Mascal != nil {
		out = SetMascal(out, *u.Mascal)
	}
	if u.MascalEtiology != nil {
		if out.Mascal == nil {
			return d, fmt.Errorf("day %d: %w", d.Number, ErrNotMascal)
		}
		etiology := *u.MascalEtiology
		if etiology != "" {
			v, err := catalog.Match("etiology", etiology, cat.Etiologies())
			if err != nil {
				return d, err
			}
			etiology = v
		}
		out.Mascal.Etiology = etiology
	}
	if u.MascalPatients != nil {
		if out.Mascal == nil {
			return d, fmt.Errorf("day %d: %w", d.Number, ErrNotMascal)
		}
		n := *u.MascalPatients
		if n < MinMascalPatients || n > MaxMascalPatients {
			return d, fmt.Errorf("day %d: mascal patients must be between %d and %d", d.Number, MinMascalPatients, MaxMascalPatients)
		}
		out.Mascal.Patients = n
	}
	return out, nil
}

// SubmitBlocked reports whether any mascal day is still missing its etiology.
// Generation stays disabled exactly while this is true.
func SubmitBlocked(days []Day) bool {
	for _, d := range days {
		if d.IsMascal() && d.Etiology() == "" {
			return true
		}
	}
	return false
}

// BlockingDays lists the day numbers that keep SubmitBlocked true.
func BlockingDays(days []Day) []int {
	var out []int
	for _, d := range days {
		if d.IsMascal() && d.Etiology() == "" {
			out = append(out, d.Number)
		}
	}
	return out
}

// Ptr is a small helper for building DayUpdate values.
func Ptr[T any](v T) *T { return &v }
