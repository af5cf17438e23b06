package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/role2-builder/internal/exercise"
	"github.com/kingrea/role2-builder/internal/generation"
)

type dayField int

const (
	dayTacticalSetting dayField = iota
	dayTotalPatients
	dayTotalWaves
	dayNightOps
	dayCBRNDrill
	dayDetaineeOps
	dayEvacStatus
	dayMascal
	dayMascalEtiology
	dayMascalPatients
)

// tacticalView is the cursor state of step 2: the day being edited and the
// field under the cursor.
type tacticalView struct {
	day   int
	field int
}

func dayFields(d exercise.Day) []dayField {
	fields := []dayField{
		dayTacticalSetting, dayTotalPatients, dayTotalWaves,
		dayNightOps, dayCBRNDrill, dayDetaineeOps, dayEvacStatus, dayMascal,
	}
	if d.IsMascal() {
		fields = append(fields, dayMascalEtiology, dayMascalPatients)
	}
	return fields
}

func (a *App) currentDay() (exercise.Config, exercise.Day, bool) {
	cfg, err := a.store.Snapshot()
	if err != nil {
		return exercise.Config{}, exercise.Day{}, false
	}
	day, err := cfg.Day(a.tactical.day)
	if err != nil {
		return cfg, exercise.Day{}, false
	}
	return cfg, day, true
}

func (a *App) handleTacticalKey(msg tea.KeyMsg) tea.Cmd {
	cfg, day, ok := a.currentDay()
	if !ok {
		return a.enterTactical()
	}
	fields := dayFields(day)
	if a.tactical.field >= len(fields) {
		a.tactical.field = len(fields) - 1
	}
	field := fields[a.tactical.field]

	switch msg.String() {
	case "up", "k":
		a.tactical.field = (a.tactical.field - 1 + len(fields)) % len(fields)
	case "down", "j":
		a.tactical.field = (a.tactical.field + 1) % len(fields)
	case "[", "pgup":
		if a.tactical.day > 1 {
			a.tactical.day--
		}
	case "]", "pgdown", "tab":
		if a.tactical.day < cfg.Duration {
			a.tactical.day++
		}
	case "left", "h", "-":
		a.applyDayChange(day, field, -1)
	case "right", "l", "+":
		a.applyDayChange(day, field, 1)
	case " ", "space", "enter":
		a.applyDayChange(day, field, 1)
	case "c":
		if err := a.store.CopyForward(a.tactical.day - 1); err != nil {
			a.statusMsg = err.Error()
		} else {
			a.statusMsg = fmt.Sprintf("Day %d copied to the following days", a.tactical.day)
			a.logInfo("Tactical · day %d copied forward", a.tactical.day)
		}
	case "s":
		return a.submit(generation.JobPackage)
	case "w":
		return a.submit(generation.JobWarno)
	case "m":
		return a.submit(generation.JobMSEL)
	}
	return nil
}

func (a *App) applyDayChange(day exercise.Day, field dayField, delta int) {
	var update exercise.DayUpdate
	switch field {
	case dayTacticalSetting:
		update.TacticalSetting = exercise.Ptr(cycle(a.catalog.TacticalSettings(), day.TacticalSetting, delta))
	case dayTotalPatients:
		update.TotalPatients = exercise.Ptr(day.TotalPatients + delta)
	case dayTotalWaves:
		update.TotalWaves = exercise.Ptr(day.TotalWaves + delta)
	case dayNightOps:
		update.NightOps = exercise.Ptr(!day.NightOps)
	case dayCBRNDrill:
		update.CBRNDrill = exercise.Ptr(!day.CBRNDrill)
	case dayDetaineeOps:
		update.DetaineeOps = exercise.Ptr(!day.DetaineeOps)
	case dayEvacStatus:
		update.EvacStatus = exercise.Ptr(cycle(a.catalog.EvacStatuses(), day.EvacStatus, delta))
	case dayMascal:
		if err := a.store.SetMascal(day.Number, !day.IsMascal()); err != nil {
			a.statusMsg = err.Error()
			return
		}
		a.logInfo("Tactical · day %d mascal %s", day.Number, onOff(!day.IsMascal()))
		return
	case dayMascalEtiology:
		update.MascalEtiology = exercise.Ptr(cycle(a.catalog.Etiologies(), day.Etiology(), delta))
	case dayMascalPatients:
		update.MascalPatients = exercise.Ptr(day.MascalPatients() + delta)
	}
	if err := a.store.UpdateDay(day.Number, update); err != nil {
		a.statusMsg = err.Error()
	}
}

// submit persists the edited schedule and hands a snapshot to the
// orchestrator.
func (a *App) submit(job generation.Job) tea.Cmd {
	cfg, err := a.store.Snapshot()
	if err != nil {
		a.statusMsg = err.Error()
		return nil
	}
	if cfg.SubmitBlocked() {
		a.statusMsg = blockedMessage(cfg)
		return nil
	}
	if err := a.store.SaveSnapshot(a.ctx); err != nil {
		a.logWarn("Saving configuration before generation failed: %v", err)
	}
	if err := a.generator.Submit(a.ctx, job, cfg); err != nil {
		switch {
		case errors.Is(err, generation.ErrBusy):
			a.statusMsg = "A generation is already running"
		default:
			a.statusMsg = err.Error()
		}
		return nil
	}
	a.state = stateGenerating
	a.statusMsg = "x cancel · esc back when finished"
	a.logInfo("Submitted %s for %s", job.Label(), cfg.Name)
	return a.listenForProgress()
}

func blockedMessage(cfg exercise.Config) string {
	days := exercise.BlockingDays(cfg.Days)
	labels := make([]string, len(days))
	for i, n := range days {
		labels[i] = fmt.Sprintf("%d", n)
	}
	return "Select a MASCAL etiology for day " + strings.Join(labels, ", ") + " before submitting"
}

func (a *App) renderTactical() string {
	cfg, day, ok := a.currentDay()
	if !ok {
		return "No configuration loaded."
	}
	var tabs []string
	for _, d := range cfg.Days {
		label := fmt.Sprintf(" Day %d ", d.Number)
		if d.IsMascal() {
			label = fmt.Sprintf(" Day %d ✚ ", d.Number)
		}
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
		if d.Number == day.Number {
			style = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#5B8DEF"))
		}
		tabs = append(tabs, style.Render(label))
	}
	lines := []string{
		headingStyle().Render(cfg.Name),
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...),
		"",
	}
	for i, field := range dayFields(day) {
		line := dayFieldLabel(day, field)
		if i == a.tactical.field {
			line = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Render("› " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	submit := "s → generate package    w → WARNO draft    m → MSEL"
	if cfg.SubmitBlocked() {
		lines = append(lines, "", warnStyle().Render("Submit disabled · "+blockedMessage(cfg)))
	} else {
		lines = append(lines, hintStyle().Render(submit))
	}
	return strings.Join(lines, "\n")
}

func dayFieldLabel(d exercise.Day, field dayField) string {
	switch field {
	case dayTacticalSetting:
		return "Operation       ‹ " + d.TacticalSetting + " ›"
	case dayTotalPatients:
		return fmt.Sprintf("Patients        ‹ %d ›", d.TotalPatients)
	case dayTotalWaves:
		return fmt.Sprintf("Waves           ‹ %d ›", d.TotalWaves)
	case dayNightOps:
		return checkbox(d.NightOps) + " Night operations"
	case dayCBRNDrill:
		return checkbox(d.CBRNDrill) + " CBRN drill"
	case dayDetaineeOps:
		return checkbox(d.DetaineeOps) + " Detainee operations"
	case dayEvacStatus:
		return "Evacuation      ‹ " + d.EvacStatus + " ›"
	case dayMascal:
		return checkbox(d.IsMascal()) + " MASCAL event"
	case dayMascalEtiology:
		etiology := d.Etiology()
		if etiology == "" {
			return warnStyle().Render("Etiology        ‹ select one ›")
		}
		return "Etiology        ‹ " + etiology + " ›"
	case dayMascalPatients:
		return fmt.Sprintf("Surge patients  ‹ %d ›", d.MascalPatients())
	}
	return ""
}

func (a *App) renderSchedulePanel() string {
	cfg, err := a.store.Snapshot()
	if err != nil {
		return ""
	}
	total, mascal := 0, 0
	for _, d := range cfg.Days {
		total += d.TotalPatients + d.MascalPatients()
		if d.IsMascal() {
			mascal++
		}
	}
	lines := []string{
		headingStyle().Render("Scenario"),
		a.printer.Sprintf("%d days · %s · %s", cfg.Duration, cfg.Environment, cfg.UnitType),
		a.printer.Sprintf("%d total casualties", total),
		a.printer.Sprintf("%d MASCAL day(s)", mascal),
	}
	if len(cfg.MissionTasks) > 0 {
		lines = append(lines, "METs: "+strings.Join(cfg.MissionTasks, ", "))
	}
	if blocked := exercise.BlockingDays(cfg.Days); len(blocked) > 0 {
		lines = append(lines, "", warnStyle().Render(blockedMessage(cfg)))
	}
	return strings.Join(lines, "\n")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
