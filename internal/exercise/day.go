package exercise

import (
	"encoding/json"
	"fmt"
)

const (
	DefaultTotalPatients  = 8
	DefaultTotalWaves     = 3
	DefaultMascalPatients = 10
	MinMascalPatients     = 3
	MaxMascalPatients     = 20
)

// MascalDetail holds the fields that only exist on a mass-casualty day.
// An empty Etiology means the user has not picked one yet.
type MascalDetail struct {
	Etiology string
	Patients int
}

// Day is one entry of the tactical schedule. Mascal is nil on a standard day;
// the detail only exists while the mass-casualty flag is on, so turning the
// flag off can never leave a stale etiology behind.
type Day struct {
	Number          int
	TacticalSetting string
	TotalPatients   int
	TotalWaves      int
	NightOps        bool
	CBRNDrill       bool
	DetaineeOps     bool
	EvacStatus      string
	Mascal          *MascalDetail
}

// IsMascal reports whether the day is a mass-casualty day.
func (d Day) IsMascal() bool { return d.Mascal != nil }

// Etiology returns the mass-casualty etiology or "" on a standard day.
func (d Day) Etiology() string {
	if d.Mascal == nil {
		return ""
	}
	return d.Mascal.Etiology
}

// MascalPatients returns the surge patient count or 0 on a standard day.
func (d Day) MascalPatients() int {
	if d.Mascal == nil {
		return 0
	}
	return d.Mascal.Patients
}

// Clone returns a copy that shares no pointers with d.
func (d Day) Clone() Day {
	out := d
	if d.Mascal != nil {
		detail := *d.Mascal
		out.Mascal = &detail
	}
	return out
}

type dayWire struct {
	DayNumber       int     `json:"day_number"`
	TacticalSetting string  `json:"tactical_setting"`
	TotalPatients   int     `json:"total_patients"`
	TotalWaves      int     `json:"total_waves"`
	NightOps        bool    `json:"night_ops"`
	Mascal          bool    `json:"mascal"`
	MascalEtiology  *string `json:"mascal_etiology"`
	MascalPatients  *int    `json:"mascal_patients"`
	CBRNDrill       bool    `json:"cbrn_drill"`
	DetaineeOps     bool    `json:"detainee_ops"`
	EvacStatus      string  `json:"evac_status,omitempty"`
}

// MarshalJSON flattens the day into the wire shape the generation service
// expects; mascal fields are null on a standard day.
func (d Day) MarshalJSON() ([]byte, error) {
	wire := dayWire{
		DayNumber:       d.Number,
		TacticalSetting: d.TacticalSetting,
		TotalPatients:   d.TotalPatients,
		TotalWaves:      d.TotalWaves,
		NightOps:        d.NightOps,
		Mascal:          d.IsMascal(),
		CBRNDrill:       d.CBRNDrill,
		DetaineeOps:     d.DetaineeOps,
		EvacStatus:      d.EvacStatus,
	}
	if d.Mascal != nil {
		if d.Mascal.Etiology != "" {
			etiology := d.Mascal.Etiology
			wire.MascalEtiology = &etiology
		}
		if d.Mascal.Patients != 0 {
			patients := d.Mascal.Patients
			wire.MascalPatients = &patients
		}
	}
	return json.Marshal(wire)
}

// UnmarshalJSON rebuilds the tagged form. Mascal fields on a standard day are
// rejected rather than dropped.
func (d *Day) UnmarshalJSON(data []byte) error {
	var wire dayWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	out := Day{
		Number:          wire.DayNumber,
		TacticalSetting: wire.TacticalSetting,
		TotalPatients:   wire.TotalPatients,
		TotalWaves:      wire.TotalWaves,
		NightOps:        wire.NightOps,
		CBRNDrill:       wire.CBRNDrill,
		DetaineeOps:     wire.DetaineeOps,
		EvacStatus:      wire.EvacStatus,
	}
	if wire.Mascal {
		detail := &MascalDetail{}
		if wire.MascalEtiology != nil {
			detail.Etiology = *wire.MascalEtiology
		}
		if wire.MascalPatients != nil {
			detail.Patients = *wire.MascalPatients
		}
		out.Mascal = detail
	} else if wire.MascalEtiology != nil || wire.MascalPatients != nil {
		return fmt.Errorf("day %d: mascal fields set on a standard day", wire.DayNumber)
	}
	*d = out
	return nil
}
