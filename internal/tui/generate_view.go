package tui

import (
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/role2-builder/internal/generation"
)

// progressMsg carries an orchestrator status change into the update loop.
type progressMsg generation.Progress

var generationSteps = []generation.State{
	generation.StatePreparing,
	generation.StateAwaitingRemote,
	generation.StateDownloading,
	generation.StateComplete,
}

// listenForProgress waits for the next status change. Only one listener is
// kept armed at a time.
func (a *App) listenForProgress() tea.Cmd {
	if a.listening {
		return nil
	}
	a.listening = true
	ch := a.progressCh
	return func() tea.Msg {
		return progressMsg(<-ch)
	}
}

func (a *App) handleProgress(p generation.Progress) tea.Cmd {
	a.listening = false
	a.progress = p
	switch p.State {
	case generation.StateComplete:
		a.statusMsg = "Saved " + p.Path + " · esc to return"
		a.logProgress("Generation complete · " + p.Path)
		return nil
	case generation.StateFailed:
		a.statusMsg = "r retry · esc back"
		return nil
	}
	return a.listenForProgress()
}

func (a *App) handleGeneratingKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "x":
		if a.progress.State.Active() {
			a.generator.Cancel()
			a.statusMsg = "Cancelling…"
		}
	case "r":
		if a.progress.State != generation.StateFailed {
			return nil
		}
		if err := a.generator.Retry(a.ctx); err != nil {
			if errors.Is(err, generation.ErrNothingToRetry) {
				a.statusMsg = "Nothing to retry"
			} else {
				a.statusMsg = err.Error()
			}
			return nil
		}
		a.statusMsg = "x cancel · esc back when finished"
		a.logInfo("Retrying %s", a.progress.Job.Label())
		return a.listenForProgress()
	}
	return nil
}

func (a *App) renderGenerating() string {
	p := a.progress
	title := headingStyle().Render("Generating " + p.Job.Label())
	lines := []string{title, ""}
	reached := stepIndex(p.State)
	for i, step := range generationSteps {
		marker := "○"
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
		switch {
		case p.State == generation.StateFailed:
			// The failed step is unknown here; show everything as pending.
		case i < reached || p.State == generation.StateComplete:
			marker = "●"
			style = lipgloss.NewStyle().Foreground(lipgloss.Color("#57E389"))
		case i == reached:
			marker = "◐"
			style = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF"))
		}
		lines = append(lines, style.Render(marker+" "+a.titler.String(step.String())))
	}
	lines = append(lines, "")
	switch p.State {
	case generation.StateFailed:
		lines = append(lines, errorStyle().Render("✗ "+p.Message))
		lines = append(lines, hintStyle().Render("r → retry    esc → back to tactical scenario"))
	case generation.StateComplete:
		lines = append(lines, lipgloss.NewStyle().Foreground(lipgloss.Color("#57E389")).Render("✓ "+p.Message))
	default:
		if msg := strings.TrimSpace(p.Message); msg != "" {
			lines = append(lines, msg)
		}
		lines = append(lines, hintStyle().Render("x → cancel"))
	}
	return strings.Join(lines, "\n")
}

func stepIndex(s generation.State) int {
	for i, step := range generationSteps {
		if step == s {
			return i
		}
	}
	return -1
}
