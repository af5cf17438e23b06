package tui

import (
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/role2-builder/internal/exercise"
	"github.com/kingrea/role2-builder/internal/readiness"
	"github.com/kingrea/role2-builder/internal/session"
)

type setupField int

const (
	fieldName setupField = iota
	fieldDuration
	fieldUnitType
	fieldEnvironment
	fieldThreatLevel
	fieldRegion
	fieldMissionTask
	fieldFootprint
	fieldSpecialist
	fieldContinue
)

type setupRow struct {
	field setupField
	key   string
}

// setupView is the cursor state of step 1. The values themselves live in the
// session store.
type setupView struct {
	rows      []setupRow
	cursor    int
	suggested string
}

type nameSuggestedMsg struct {
	name string
}

func (a *App) buildSetupRows() []setupRow {
	rows := []setupRow{
		{field: fieldName},
		{field: fieldDuration},
		{field: fieldUnitType},
		{field: fieldEnvironment},
		{field: fieldThreatLevel},
		{field: fieldRegion},
	}
	for _, task := range a.catalog.MissionTasks() {
		rows = append(rows, setupRow{field: fieldMissionTask, key: task.ID})
	}
	for _, comp := range a.catalog.Footprint() {
		rows = append(rows, setupRow{field: fieldFootprint, key: comp.ID})
	}
	for _, specialty := range a.catalog.Specialties() {
		rows = append(rows, setupRow{field: fieldSpecialist, key: specialty})
	}
	return append(rows, setupRow{field: fieldContinue})
}

// startNewExercise begins a fresh session and opens step 1.
func (a *App) startNewExercise() tea.Cmd {
	cfg := a.store.Begin()
	a.setup = setupView{rows: a.buildSetupRows()}
	a.nameInput.SetValue(cfg.Name)
	a.nameInput.Placeholder = defaultPlaceholder
	a.state = stateSetup
	a.statusMsg = "↑/↓ move · ←/→ change · space toggle · ctrl+g suggest name · ctrl+n continue"
	return tea.Batch(a.focusSetupRow(), a.suggestName())
}

func (a *App) suggestName() tea.Cmd {
	cfg, err := a.store.Snapshot()
	if err != nil {
		return nil
	}
	ctx := a.ctx
	gen := a.generator
	return func() tea.Msg {
		return nameSuggestedMsg{name: gen.SuggestName(ctx, cfg)}
	}
}

func (a *App) handleNameSuggested(msg nameSuggestedMsg) tea.Cmd {
	name := strings.TrimSpace(msg.name)
	if name == "" {
		return nil
	}
	a.setup.suggested = name
	a.nameInput.Placeholder = "e.g. " + name
	return nil
}

func (a *App) focusSetupRow() tea.Cmd {
	if len(a.setup.rows) == 0 {
		a.setup.rows = a.buildSetupRows()
	}
	if a.setup.rows[a.setup.cursor].field == fieldName {
		return a.nameInput.Focus()
	}
	a.nameInput.Blur()
	return nil
}

func (a *App) moveSetupCursor(delta int) tea.Cmd {
	n := len(a.setup.rows)
	if n == 0 {
		return nil
	}
	a.setup.cursor = ((a.setup.cursor+delta)%n + n) % n
	return a.focusSetupRow()
}

func (a *App) handleSetupKey(msg tea.KeyMsg) tea.Cmd {
	if len(a.setup.rows) == 0 {
		a.setup.rows = a.buildSetupRows()
	}
	row := a.setup.rows[a.setup.cursor]
	switch msg.String() {
	case "up", "shift+tab":
		return a.moveSetupCursor(-1)
	case "down", "tab":
		return a.moveSetupCursor(1)
	case "ctrl+n":
		return a.completeSetup()
	case "ctrl+g":
		if a.setup.suggested != "" {
			a.nameInput.SetValue(a.setup.suggested)
			a.applyName()
		}
		return a.suggestName()
	case "enter":
		if row.field == fieldContinue || row.field == fieldName {
			return a.completeSetup()
		}
		a.toggleSetupRow(row)
		return nil
	case " ", "space":
		if row.field != fieldName {
			a.toggleSetupRow(row)
			return nil
		}
	case "left", "h", "-":
		if row.field != fieldName {
			a.adjustSetupRow(row, -1)
			return nil
		}
	case "right", "l", "+":
		if row.field != fieldName {
			a.adjustSetupRow(row, 1)
			return nil
		}
	}
	if row.field != fieldName {
		return nil
	}
	var cmd tea.Cmd
	a.nameInput, cmd = a.nameInput.Update(msg)
	a.applyName()
	return cmd
}

func (a *App) applyName() {
	if err := a.store.SetName(a.nameInput.Value()); err != nil {
		a.statusMsg = err.Error()
	}
}

func (a *App) toggleSetupRow(row setupRow) {
	var (
		on  bool
		err error
	)
	switch row.field {
	case fieldMissionTask:
		on, err = a.store.ToggleMissionTask(row.key)
		if err == nil {
			a.logInfo("Setup · %s %s", row.key, selectedWord(on))
		}
	case fieldFootprint:
		on, err = a.store.ToggleFootprint(row.key)
		if err == nil {
			a.logInfo("Setup · %s %s", row.key, enabledWord(on))
		}
	default:
		a.adjustSetupRow(row, 1)
		return
	}
	if err != nil {
		a.statusMsg = err.Error()
	}
}

func (a *App) adjustSetupRow(row setupRow, delta int) {
	cfg, err := a.store.Snapshot()
	if err != nil {
		a.statusMsg = err.Error()
		return
	}
	switch row.field {
	case fieldDuration:
		next := cycleInt(a.catalog.Durations(), cfg.Duration, delta)
		err = a.store.SetDuration(next)
	case fieldUnitType:
		err = a.store.SetUnitType(cycle(a.catalog.UnitTypes(), cfg.UnitType, delta))
	case fieldEnvironment:
		err = a.store.SetEnvironment(cycle(a.catalog.Environments(), cfg.Environment, delta))
	case fieldThreatLevel:
		err = a.store.SetThreatLevel(cycle(a.catalog.ThreatLevels(), cfg.ThreatLevel, delta))
	case fieldRegion:
		err = a.store.SetRegion(cycle(a.catalog.Regions(), cfg.Region, delta))
	case fieldSpecialist:
		count := cfg.Specialists[row.key] + delta
		if count < 0 || count > exercise.MaxSpecialistCount {
			return
		}
		err = a.store.SetSpecialist(row.key, count)
	case fieldMissionTask, fieldFootprint:
		a.toggleSetupRow(row)
		return
	}
	if err != nil {
		a.statusMsg = err.Error()
	}
}

// completeSetup persists the configuration and moves on to step 2, which
// reloads it from storage the same way a resumed session does.
func (a *App) completeSetup() tea.Cmd {
	name := strings.TrimSpace(a.nameInput.Value())
	if name == "" {
		if a.setup.suggested == "" {
			a.statusMsg = "Exercise name is required · press ctrl+g for a suggestion"
			return nil
		}
		name = a.setup.suggested
		a.nameInput.SetValue(name)
	}
	if err := a.store.SetName(name); err != nil {
		a.statusMsg = err.Error()
		return nil
	}
	if err := a.store.SaveSnapshot(a.ctx); err != nil {
		a.statusMsg = fmt.Sprintf("Could not save configuration: %v", err)
		a.logError("Saving configuration failed: %v", err)
		return nil
	}
	a.nameInput.Blur()
	return a.enterTactical()
}

// enterTactical loads the saved snapshot for step 2. Without a usable
// snapshot the user is sent back to step 1.
func (a *App) enterTactical() tea.Cmd {
	cfg, err := a.store.LoadSnapshot(a.ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoConfiguration) {
			a.logWarn("No saved configuration · starting at exercise setup")
			cmd := a.startNewExercise()
			a.statusMsg = "No saved configuration found · complete exercise setup first"
			return cmd
		}
		a.statusMsg = fmt.Sprintf("Could not load configuration: %v", err)
		a.logError("Loading configuration failed: %v", err)
		return nil
	}
	a.nameInput.SetValue(cfg.Name)
	if a.tactical.day < 1 || a.tactical.day > cfg.Duration {
		a.tactical = tacticalView{day: 1}
	}
	a.state = stateTactical
	a.statusMsg = "[/] day · ↑/↓ field · ←/→ change · space toggle · c copy forward · s submit · w WARNO · m MSEL"
	a.logInfo("Tactical scenario opened for %s (%d days)", cfg.Name, cfg.Duration)
	return nil
}

func (a *App) renderSetup() string {
	cfg, err := a.store.Snapshot()
	if err != nil {
		return "No active exercise. Choose New Exercise from the main menu."
	}
	var lines []string
	section := ""
	for i, row := range a.setup.rows {
		if title := setupSection(row.field); title != section && title != "" {
			section = title
			lines = append(lines, "", headingStyle().Render(title))
		}
		line := a.setupRowLabel(cfg, row)
		if i == a.setup.cursor {
			line = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Render("› " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func setupSection(f setupField) string {
	switch f {
	case fieldName, fieldDuration, fieldUnitType, fieldEnvironment, fieldThreatLevel, fieldRegion:
		return "Exercise"
	case fieldMissionTask:
		return "Mission Essential Tasks"
	case fieldFootprint:
		return "Functional Footprint"
	case fieldSpecialist:
		return "Specialists"
	default:
		return ""
	}
}

func (a *App) setupRowLabel(cfg exercise.Config, row setupRow) string {
	switch row.field {
	case fieldName:
		return "Name         " + a.nameInput.View()
	case fieldDuration:
		return a.printer.Sprintf("Duration     ‹ %d days ›", cfg.Duration)
	case fieldUnitType:
		return "Unit type    ‹ " + cfg.UnitType + " ›"
	case fieldEnvironment:
		return "Environment  ‹ " + cfg.Environment + " ›"
	case fieldThreatLevel:
		return "Threat level ‹ " + cfg.ThreatLevel + " ›"
	case fieldRegion:
		return "Region       ‹ " + cfg.Region + " ›"
	case fieldMissionTask:
		task, _ := a.catalog.Task(row.key)
		return fmt.Sprintf("%s %s · %s", checkbox(cfg.HasMissionTask(row.key)), task.ID, task.Name)
	case fieldFootprint:
		comp, _ := a.catalog.Component(row.key)
		return fmt.Sprintf("%s %s", checkbox(cfg.HasFootprint(row.key)), comp.Name)
	case fieldSpecialist:
		return fmt.Sprintf("%-28s ‹ %d ›", row.key, cfg.Specialists[row.key])
	case fieldContinue:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Render("Continue to tactical scenario →")
	}
	return ""
}

func (a *App) renderReadinessPanel() string {
	cfg, err := a.store.Snapshot()
	if err != nil {
		return ""
	}
	title := headingStyle().Render("Readiness")
	report := readiness.Build(a.catalog, cfg.MissionTasks, cfg.Footprint)
	if len(report.Tasks) == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, "No mission tasks selected.")
	}
	lines := []string{title}
	if report.Ready {
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("#57E389")).
			Render(a.printer.Sprintf("All %d selected tasks are supported.", len(report.Tasks))))
	}
	for _, support := range report.Underpowered() {
		names := make([]string, 0, len(support.Missing))
		for _, id := range support.Missing {
			if comp, ok := a.catalog.Component(id); ok {
				names = append(names, comp.Name)
			} else {
				names = append(names, id)
			}
		}
		lines = append(lines, warnStyle().Render(fmt.Sprintf("⚠ %s needs %s", support.TaskID, strings.Join(names, ", "))))
	}
	if a.setup.cursor >= len(a.setup.rows) {
		return strings.Join(lines, "\n")
	}
	if row := a.setup.rows[a.setup.cursor]; row.field == fieldMissionTask {
		if task, ok := a.catalog.Task(row.key); ok && len(task.Items) > 0 {
			lines = append(lines, "", headingStyle().Render(task.ID))
			for _, item := range task.Items {
				lines = append(lines, "• "+item)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func selectedWord(on bool) string {
	if on {
		return "selected"
	}
	return "deselected"
}

func enabledWord(on bool) string {
	if on {
		return "enabled"
	}
	return "disabled"
}
