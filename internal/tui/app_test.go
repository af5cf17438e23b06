package tui

import (
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/role2-builder/internal/download"
	"github.com/kingrea/role2-builder/internal/exercise"
	"github.com/kingrea/role2-builder/internal/generation"
	"github.com/kingrea/role2-builder/internal/genclient"
	"github.com/kingrea/role2-builder/internal/history"
	"github.com/kingrea/role2-builder/internal/logbook"
	"github.com/kingrea/role2-builder/internal/session"
	"github.com/kingrea/role2-builder/internal/stubservice"
)

func TestNewExerciseFlowReachesTactical(t *testing.T) {
	app := newTestApp(t)
	app.startNewExercise()
	if app.state != stateSetup {
		t.Fatalf("expected setup state, got %d", app.state)
	}
	msg := app.suggestName()()
	app = update(t, app, msg)
	if app.setup.suggested == "" {
		t.Fatalf("expected a suggested name")
	}

	app = update(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("Iron Tide")})
	cfg, err := app.store.Snapshot()
	if err != nil || cfg.Name != "Iron Tide" {
		t.Fatalf("name not applied: %q, %v", cfg.Name, err)
	}
	app = update(t, app, tea.KeyMsg{Type: tea.KeyCtrlN})
	if app.state != stateTactical {
		t.Fatalf("expected tactical state, got %d (%s)", app.state, app.statusMsg)
	}
	duration, err := app.store.SavedDuration(app.ctx)
	if err != nil || duration != exercise.DefaultDuration {
		t.Fatalf("saved duration = %d, %v", duration, err)
	}
}

func TestEmptyNameUsesSuggestion(t *testing.T) {
	app := newTestApp(t)
	app.startNewExercise()
	app = update(t, app, nameSuggestedMsg{name: "Granite Lance"})
	app.completeSetup()
	if app.state != stateTactical {
		t.Fatalf("expected tactical state, got %d", app.state)
	}
	cfg, _ := app.store.Snapshot()
	if cfg.Name != "Granite Lance" {
		t.Fatalf("expected suggested name, got %q", cfg.Name)
	}
}

func TestTacticalWithoutSnapshotRedirectsToSetup(t *testing.T) {
	app := newTestApp(t)
	app.enterTactical()
	if app.state != stateSetup {
		t.Fatalf("expected redirect to setup, got %d", app.state)
	}
	if !strings.Contains(app.statusMsg, "No saved configuration") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}

func TestSetupToggleShowsReadinessWarning(t *testing.T) {
	app := newTestApp(t)
	app.startNewExercise()
	for app.setup.rows[app.setup.cursor].key != "MET-2" {
		app = update(t, app, tea.KeyMsg{Type: tea.KeyDown})
	}
	app = update(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(" ")})
	cfg, _ := app.store.Snapshot()
	if !cfg.HasMissionTask("MET-2") {
		t.Fatalf("MET-2 not selected: %v", cfg.MissionTasks)
	}
	if panel := app.renderReadinessPanel(); !strings.Contains(panel, "MET-2 needs") {
		t.Fatalf("expected readiness warning, got %q", panel)
	}
}

func TestSubmitBlockedUntilEtiologyChosen(t *testing.T) {
	app := tacticalApp(t)
	if err := app.store.SetMascal(2, true); err != nil {
		t.Fatal(err)
	}
	app = update(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if app.state != stateTactical {
		t.Fatalf("submit should be refused, state %d", app.state)
	}
	if !strings.Contains(app.statusMsg, "day 2") {
		t.Fatalf("expected blocking day in status, got %q", app.statusMsg)
	}
	if app.generator.Progress().State != generation.StateIdle {
		t.Fatalf("orchestrator should stay idle")
	}
}

func TestGenerationRunsToCompletion(t *testing.T) {
	app := tacticalApp(t)
	if err := app.store.UpdateDay(1, exercise.DayUpdate{
		Mascal:         exercise.Ptr(true),
		MascalEtiology: exercise.Ptr("IED/Blast"),
	}); err != nil {
		t.Fatal(err)
	}
	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	app = runCommands(t, model, cmd)
	if app.progress.State != generation.StateComplete {
		t.Fatalf("expected complete, got %s (%s)", app.progress.State, app.progress.Message)
	}
	if !strings.HasSuffix(app.progress.Path, "Iron Tide_Package.zip") {
		t.Fatalf("unexpected path %q", app.progress.Path)
	}
	if _, err := os.Stat(app.progress.Path); err != nil {
		t.Fatalf("package not saved: %v", err)
	}

	app = update(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if app.state != stateTactical {
		t.Fatalf("expected return to tactical, got %d", app.state)
	}
	if app.generator.Progress().State != generation.StateIdle {
		t.Fatalf("orchestrator should be reset")
	}
}

func TestCompletionLogKeepsPercentInPath(t *testing.T) {
	app := newTestApp(t)
	path := "/dl/Op 100%done_Package.zip"
	app.handleProgress(generation.Progress{State: generation.StateComplete, Path: path})
	lines, _ := app.logbook.Tail(logPanelLines)
	if len(lines) == 0 || !strings.HasSuffix(lines[len(lines)-1], "Generation complete · "+path) {
		t.Fatalf("expected completion path in journey log, got %q", lines)
	}
}

func TestHistoryKeepsPackagesOnFailure(t *testing.T) {
	app := tacticalApp(t)
	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	app = runCommands(t, model, cmd)
	if app.progress.State != generation.StateComplete {
		t.Fatalf("generation failed: %s", app.progress.Message)
	}

	app = runCommands(t, app, app.enterHistory())
	if len(app.packages) != 1 {
		t.Fatalf("expected one package, got %d", len(app.packages))
	}
	model, cmd = app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	app = runCommands(t, model, cmd)
	if !strings.HasSuffix(app.statusMsg, "Iron Tide_MSEL.xlsx") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}

	app = update(t, app, historyLoadedMsg{err: genclient.ErrUnavailable})
	if len(app.packages) != 1 {
		t.Fatalf("failed refresh must keep the list")
	}
	if app.historyErr == "" {
		t.Fatalf("expected an error banner")
	}
	app = update(t, app, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")})
	if app.historyErr != "" {
		t.Fatalf("error should be dismissed")
	}

	app = update(t, app, downloadFinishedMsg{label: "Iron Tide package", err: &genclient.RemoteError{Status: 404, Detail: "Exercise not found"}})
	if !strings.Contains(app.historyErr, "Exercise not found") {
		t.Fatalf("expected server detail, got %q", app.historyErr)
	}
}

func TestDownloadAllReportsPartialFailure(t *testing.T) {
	app := newTestApp(t)
	app.state = stateHistory
	app = update(t, app, downloadFinishedMsg{label: "X documents", results: []history.Result{
		{Doc: history.DocMSEL, Path: "/tmp/X_MSEL.xlsx"},
		{Doc: history.DocCaseBook, Err: errors.New("boom")},
	}})
	if !strings.Contains(app.statusMsg, "Saved 1 of 2") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
	if !strings.Contains(app.historyErr, "Case Book") {
		t.Fatalf("expected failed document in banner, got %q", app.historyErr)
	}
}

func TestCycleWraps(t *testing.T) {
	values := []string{"a", "b", "c"}
	if got := cycle(values, "a", -1); got != "c" {
		t.Fatalf("cycle back = %q", got)
	}
	if got := cycle(values, "c", 1); got != "a" {
		t.Fatalf("cycle forward = %q", got)
	}
	if got := cycle(values, "", 1); got != "a" {
		t.Fatalf("unknown value should start at first, got %q", got)
	}
	if got := cycleInt([]int{1, 2, 3, 4, 5, 7, 10, 14}, 14, 1); got != 1 {
		t.Fatalf("cycleInt = %d", got)
	}
}

func TestViewRendersEveryScreen(t *testing.T) {
	app := tacticalApp(t)
	for _, state := range []appState{stateMainMenu, stateSetup, stateTactical, stateGenerating, stateHistory} {
		app.state = state
		if strings.TrimSpace(app.View()) == "" {
			t.Fatalf("state %d rendered nothing", state)
		}
	}
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	stub := stubservice.NewServer(stubservice.Settings{})
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	book, err := logbook.New(filepath.Join(dir, "logs", "journey.log"))
	if err != nil {
		t.Fatalf("logbook: %v", err)
	}
	client := genclient.New(srv.URL, genclient.WithRetry(1, time.Millisecond))
	saver := download.NewSaver(filepath.Join(dir, "downloads"))
	store := session.NewStore(session.NewFileStorage(filepath.Join(dir, "state")), session.WithLogbook(book))
	app, err := NewApp(Services{
		Store:     store,
		Generator: generation.New(client, saver, generation.WithLogbook(book), generation.WithTimeout(10*time.Second)),
		History:   history.NewClient(client, saver, book),
		Logbook:   book,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return app
}

func tacticalApp(t *testing.T) *App {
	t.Helper()
	app := newTestApp(t)
	app.startNewExercise()
	app.nameInput.SetValue("Iron Tide")
	app.completeSetup()
	if app.state != stateTactical {
		t.Fatalf("expected tactical state, got %d (%s)", app.state, app.statusMsg)
	}
	return app
}

func update(t *testing.T, app *App, msg tea.Msg) *App {
	t.Helper()
	model, _ := app.Update(msg)
	next, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	return next
}

func runCommands(t *testing.T, model tea.Model, cmd tea.Cmd) *App {
	t.Helper()
	app, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			break
		}
		nextModel, nextCmd := app.Update(msg)
		var ok bool
		app, ok = nextModel.(*App)
		if !ok {
			t.Fatalf("unexpected model type: %T", nextModel)
		}
		cmd = nextCmd
	}
	return app
}
