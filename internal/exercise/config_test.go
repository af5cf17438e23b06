package exercise

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCloneIsDeep(t *testing.T) {
	cfg := New()
	_, _ = cfg.ToggleMissionTask("MET-2")
	_, _ = cfg.ToggleFootprint("STP")
	_ = cfg.SetSpecialist("PA", 2)
	_ = cfg.SetMascal(1, true)

	clone := cfg.Clone()
	clone.MissionTasks[0] = "MET-9"
	clone.Footprint[0] = "Lab"
	clone.Specialists["PA"] = 5
	clone.Days[0].Mascal.Etiology = "Burn"

	if cfg.MissionTasks[0] != "MET-2" || cfg.Footprint[0] != "STP" || cfg.Specialists["PA"] != 2 {
		t.Fatalf("clone shares collections with original: %+v", cfg)
	}
	if cfg.Days[0].Etiology() != "" {
		t.Fatalf("clone shares mascal detail with original")
	}
}

func TestToggleEnforcesUniqueness(t *testing.T) {
	cfg := New()
	on, err := cfg.ToggleMissionTask("met-3")
	if err != nil || !on {
		t.Fatalf("toggle on: %v %v", on, err)
	}
	on, err = cfg.ToggleMissionTask("MET-3")
	if err != nil || on {
		t.Fatalf("toggle off: %v %v", on, err)
	}
	if len(cfg.MissionTasks) != 0 {
		t.Fatalf("expected no tasks, got %v", cfg.MissionTasks)
	}
	if _, err := cfg.ToggleFootprint("XRAY"); err == nil {
		t.Fatalf("expected unknown component error")
	}
}

func TestSetSpecialistBounds(t *testing.T) {
	cfg := New()
	if err := cfg.SetSpecialist("General Surgeon", 6); err == nil {
		t.Fatalf("expected upper bound error")
	}
	if err := cfg.SetSpecialist("General Surgeon", -1); err == nil {
		t.Fatalf("expected lower bound error")
	}
	if err := cfg.SetSpecialist("general surgeon", 5); err != nil {
		t.Fatalf("set specialist: %v", err)
	}
	if cfg.Specialists["General Surgeon"] != 5 {
		t.Fatalf("expected canonical key, got %v", cfg.Specialists)
	}
	if err := cfg.SetSpecialist("General Surgeon", 0); err != nil {
		t.Fatalf("clear specialist: %v", err)
	}
	if _, ok := cfg.Specialists["General Surgeon"]; ok {
		t.Fatalf("zero count should remove the entry")
	}
	if err := cfg.SetSpecialist("Veterinarian", 1); err == nil {
		t.Fatalf("expected unknown specialty error")
	}
}

func TestValidateReportsIssues(t *testing.T) {
	cfg := New()
	_ = cfg.SetMascal(2, true)
	cfg.Days = cfg.Days[:2]
	issues := cfg.Validate()
	var fields []string
	for _, issue := range issues {
		fields = append(fields, issue.Field)
	}
	joined := strings.Join(fields, ",")
	for _, want := range []string{"days", "exercise_name", "days[2]"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("expected issue for %s, got %v", want, issues)
		}
	}
	if err := cfg.CheckSubmittable(); !IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfigJSONRoundTripKeepsSchedule(t *testing.T) {
	cfg := New()
	cfg.SetName("Steel Knight")
	_ = cfg.UpdateDay(3, DayUpdate{Mascal: Ptr(true), MascalEtiology: Ptr("Burn")})
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Config
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if err := decoded.CheckSubmittable(); err != nil {
		t.Fatalf("decoded config should be submittable: %v", err)
	}
	if decoded.Days[2].Etiology() != "Burn" || decoded.Days[2].MascalPatients() != DefaultMascalPatients {
		t.Fatalf("mascal detail lost: %+v", decoded.Days[2])
	}
}
