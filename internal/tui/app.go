// internal/tui/app.go
//
// This is the terminal wizard for the Role 2 exercise builder.
// It uses bubbletea, which follows The Elm Architecture:
//
// 1. Model: the wizard state (current screen, session, progress)
// 2. Update: a function that updates state based on messages
// 3. View: a function that renders state to a string
//
// The flow is: User Input -> Message -> Update -> New Model -> View -> Screen

package tui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kingrea/role2-builder/internal/catalog"
	"github.com/kingrea/role2-builder/internal/config"
	"github.com/kingrea/role2-builder/internal/generation"
	"github.com/kingrea/role2-builder/internal/genclient"
	"github.com/kingrea/role2-builder/internal/history"
	"github.com/kingrea/role2-builder/internal/logbook"
	"github.com/kingrea/role2-builder/internal/session"
)

// appState represents which "screen" we're on
type appState int

const (
	stateMainMenu   appState = iota // New exercise, resume, history, exit
	stateSetup                      // Step 1: exercise setup
	stateTactical                   // Step 2: tactical scenario
	stateGenerating                 // Generation progress
	stateHistory                    // Historic exercises
)

const (
	logPanelLines      = 8
	progressBufferSize = 32
	defaultPlaceholder = "e.g. Steel Knight"
)

var stepOrder = []appState{stateSetup, stateTactical, stateGenerating}

// Services bundles the collaborators the wizard drives.
type Services struct {
	Config    *config.Config
	Store     *session.Store
	Generator *generation.Orchestrator
	History   *history.Client
	Logbook   *logbook.Logbook
}

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithContext sets the context used for remote calls and persistence.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// WithCatalog overrides the reference data shown by the setup screens.
func WithCatalog(cat *catalog.Catalog) AppOption {
	return func(a *App) {
		if cat != nil {
			a.catalog = cat
		}
	}
}

// App is the main application model. In bubbletea, this holds ALL your state.
type App struct {
	state     appState
	ctx       context.Context
	config    *config.Config
	catalog   *catalog.Catalog
	store     *session.Store
	generator *generation.Orchestrator
	history   *history.Client
	logbook   *logbook.Logbook
	printer   *message.Printer
	titler    cases.Caser

	// UI components
	mainMenu      list.Model
	historyList   list.Model
	nameInput     textinput.Model
	statusMsg     string
	lastLogStatus string

	setup    setupView
	tactical tacticalView

	progress   generation.Progress
	progressCh chan generation.Progress
	listening  bool

	packages     []genclient.GeneratedPackage
	historyErr   string
	historyBusy  bool
	historyNotes []string

	// Window size (we get this from bubbletea)
	width  int
	height int
}

// menuItem implements list.Item interface for our menu items
type menuItem struct {
	title string
	desc  string
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

// NewApp creates a new App instance
func NewApp(svc Services, opts ...AppOption) (*App, error) {
	if svc.Store == nil || svc.Generator == nil || svc.History == nil {
		return nil, errors.New("tui: store, generator and history client are required")
	}

	mainMenu := list.New(buildMainMenu(), list.NewDefaultDelegate(), 0, 0)
	mainMenu.Title = "✚ ROLE 2 BUILDER"
	mainMenu.SetShowStatusBar(false)
	mainMenu.SetFilteringEnabled(false)
	historyList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	historyList.Title = "Historic Exercises"
	historyList.SetShowStatusBar(false)
	historyList.SetFilteringEnabled(false)

	nameInput := textinput.New()
	nameInput.Placeholder = defaultPlaceholder
	nameInput.CharLimit = 80
	nameInput.Width = 40
	nameInput.Prompt = ""

	app := &App{
		state:       stateMainMenu,
		ctx:         context.Background(),
		config:      svc.Config,
		catalog:     catalog.Default(),
		store:       svc.Store,
		generator:   svc.Generator,
		history:     svc.History,
		logbook:     svc.Logbook,
		printer:     message.NewPrinter(language.English),
		titler:      cases.Title(language.English),
		mainMenu:    mainMenu,
		historyList: historyList,
		nameInput:   nameInput,
		progressCh:  make(chan generation.Progress, progressBufferSize),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.generator.Observe(func(p generation.Progress) {
		select {
		case app.progressCh <- p:
		default:
		}
	})
	app.progress = app.generator.Progress()
	app.logInfo("Session opened · downloads go to %s", app.downloadsDir())
	return app, nil
}

// buildMainMenu creates the main menu items
func buildMainMenu() []list.Item {
	return []list.Item{
		menuItem{title: "New Exercise", desc: "Start a fresh exercise configuration"},
		menuItem{title: "Resume Exercise", desc: "Continue the saved tactical scenario"},
		menuItem{title: "Historic Exercises", desc: "Browse and download generated packages"},
		menuItem{title: "Exit", desc: "Quit the builder"},
	}
}

func (a *App) downloadsDir() string {
	if a.config == nil {
		return "."
	}
	return a.config.DownloadsDir()
}

func (a *App) logInfo(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Warn(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.logbook == nil {
		return
	}
	a.logbook.Error(format, args...)
}

func (a *App) logProgress(status string) {
	status = strings.TrimSpace(status)
	if status == "" || status == a.lastLogStatus {
		return
	}
	a.lastLogStatus = status
	a.logInfo("%s", status)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.mainMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-10))
		a.historyList.SetSize(max(0, msg.Width-6), max(0, msg.Height-14))
		return a, nil

	case nameSuggestedMsg:
		return a, a.handleNameSuggested(msg)

	case progressMsg:
		return a, a.handleProgress(generation.Progress(msg))

	case historyLoadedMsg:
		a.handleHistoryLoaded(msg)
		return a, nil

	case downloadFinishedMsg:
		a.handleDownloadFinished(msg)
		return a, nil

	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "ctrl+c":
			a.generator.Cancel()
			return a, tea.Quit
		case "q":
			if a.state == stateMainMenu {
				return a, tea.Quit
			}
		case "esc":
			if a.state != stateMainMenu {
				return a.handleEscape()
			}
		case "enter":
			if a.state == stateMainMenu {
				return a.handleMainMenuSelection()
			}
		}
		switch a.state {
		case stateSetup:
			return a, a.handleSetupKey(msg)
		case stateTactical:
			return a, a.handleTacticalKey(msg)
		case stateGenerating:
			return a, a.handleGeneratingKey(msg)
		case stateHistory:
			if cmd, handled := a.handleHistoryKey(msg); handled {
				return a, cmd
			}
		}
	}

	var cmds []tea.Cmd
	switch a.state {
	case stateMainMenu:
		var menuCmd tea.Cmd
		a.mainMenu, menuCmd = a.mainMenu.Update(msg)
		if menuCmd != nil {
			cmds = append(cmds, menuCmd)
		}
	case stateHistory:
		var listCmd tea.Cmd
		a.historyList, listCmd = a.historyList.Update(msg)
		if listCmd != nil {
			cmds = append(cmds, listCmd)
		}
	case stateSetup:
		if a.nameInput.Focused() {
			var inputCmd tea.Cmd
			a.nameInput, inputCmd = a.nameInput.Update(msg)
			if inputCmd != nil {
				cmds = append(cmds, inputCmd)
			}
		}
	}

	return a, tea.Batch(cmds...)
}

// handleMainMenuSelection processes menu item selection
func (a *App) handleMainMenuSelection() (tea.Model, tea.Cmd) {
	item, ok := a.mainMenu.SelectedItem().(menuItem)
	if !ok {
		return a, nil
	}

	switch item.title {
	case "New Exercise":
		a.logInfo("Menu · New Exercise selected")
		return a, a.startNewExercise()

	case "Resume Exercise":
		a.logInfo("Menu · Resume Exercise selected")
		return a, a.enterTactical()

	case "Historic Exercises":
		a.logInfo("Menu · Historic Exercises selected")
		return a, a.enterHistory()

	case "Exit":
		a.logInfo("Menu · Exit selected")
		return a, tea.Quit
	}

	return a, nil
}

func (a *App) handleEscape() (tea.Model, tea.Cmd) {
	switch a.state {
	case stateTactical:
		a.state = stateSetup
		a.statusMsg = "Back to exercise setup"
		return a, a.focusSetupRow()
	case stateGenerating:
		if a.progress.State.Active() {
			a.statusMsg = "Generation in progress · press x to cancel"
			return a, nil
		}
		_ = a.generator.Reset()
		a.progress = a.generator.Progress()
		return a, a.enterTactical()
	}
	return a.returnToMainMenu()
}

// returnToMainMenu transitions back to the main menu
func (a *App) returnToMainMenu() (tea.Model, tea.Cmd) {
	a.state = stateMainMenu
	a.nameInput.Blur()
	a.statusMsg = ""
	a.logInfo("Returned to main menu")
	return a, nil
}

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	rightWidth := max(32, width/3)
	leftWidth := width - rightWidth - 4
	if leftWidth < 40 {
		leftWidth = width - 4
	}
	if leftWidth < 20 {
		leftWidth = width
		rightWidth = 0
	}
	var content string
	switch a.state {
	case stateMainMenu:
		a.mainMenu.SetSize(max(20, leftWidth-4), max(10, a.height-10))
		content = a.mainMenu.View()
	case stateSetup:
		content = a.renderSetup()
	case stateTactical:
		content = a.renderTactical()
	case stateGenerating:
		content = a.renderGenerating()
	case stateHistory:
		content = a.renderHistory()
	}
	return a.renderBoard(content, leftWidth, rightWidth)
}

func (a *App) renderLogPanel() string {
	if a.logbook == nil {
		return ""
	}
	lines, total := a.logbook.Tail(logPanelLines)
	if len(lines) == 0 {
		return ""
	}
	fileName := filepath.Base(a.logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	head := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#5B8DEF")).
		Render(a.printer.Sprintf("LOG · %s (%d entries)", fileName, total))
	body := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA")).
		Render(strings.Join(lines, "\n"))
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Render(fmt.Sprintf("%s\n%s", head, body))
	return box
}

func (a *App) renderBoard(mainContent string, leftWidth, rightWidth int) string {
	header := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FF6B6B")).
		MarginBottom(1).
		Render("✚ ROLE 2 EXERCISE BUILDER")
	left := lipgloss.JoinVertical(lipgloss.Left,
		a.renderStepPanel(leftWidth-4),
		"",
		a.renderMainArea(mainContent, leftWidth-4),
	)
	leftBox := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#444444")).
		Padding(0, 1).
		Width(max(20, leftWidth)).
		Render(left)
	var body string
	if rightWidth > 0 {
		right := a.renderSidePanel(rightWidth - 4)
		rightBox := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1).
			Width(max(20, rightWidth)).
			Render(right)
		body = lipgloss.JoinHorizontal(lipgloss.Top, leftBox, rightBox)
	} else {
		body = leftBox
	}
	sections := []string{header, body}
	if logPanel := a.renderLogPanel(); logPanel != "" {
		sections = append(sections, logPanel)
	}
	footer := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#888888")).
		MarginTop(1).
		Render(a.statusMsg)
	sections = append(sections, footer)
	return strings.Join(sections, "\n")
}

func (a *App) renderStepPanel(width int) string {
	var line string
	switch a.state {
	case stateMainMenu:
		line = "Main menu"
	case stateHistory:
		line = "Historic exercises"
	default:
		pos, total := stepPosition(a.state)
		line = fmt.Sprintf("Step %d of %d · %s", pos+1, total, stepName(a.state))
	}
	lines := []string{line}
	if id := a.store.SessionID(); id != "" {
		lines = append(lines, fmt.Sprintf("Session %s", shortID(id)))
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(strings.Join(lines, "\n"))
}

func (a *App) renderMainArea(content string, width int) string {
	if strings.TrimSpace(content) == "" {
		content = "Ready to build an exercise."
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(content)
}

func (a *App) renderSidePanel(width int) string {
	var body string
	switch a.state {
	case stateSetup:
		body = a.renderReadinessPanel()
	case stateTactical, stateGenerating:
		body = a.renderSchedulePanel()
	case stateHistory:
		body = a.renderPackagePanel()
	default:
		body = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).
			Render("Downloads: " + a.downloadsDir())
	}
	return lipgloss.NewStyle().Width(max(20, width)).Render(body)
}

func hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).MarginTop(1)
}

func headingStyle() lipgloss.Style {
	return lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
}

func warnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#E5A50A"))
}

func errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
}

func stepPosition(s appState) (int, int) {
	for i, step := range stepOrder {
		if s == step {
			return i, len(stepOrder)
		}
	}
	return len(stepOrder), len(stepOrder)
}

func stepName(s appState) string {
	switch s {
	case stateSetup:
		return "Exercise Setup"
	case stateTactical:
		return "Tactical Scenario"
	case stateGenerating:
		return "Generation"
	default:
		return ""
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// cycle returns the value delta steps away from current in values,
// wrapping at both ends. An unknown current starts from the first value.
func cycle(values []string, current string, delta int) string {
	if len(values) == 0 {
		return current
	}
	idx := -1
	for i, v := range values {
		if v == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return values[0]
	}
	n := len(values)
	return values[((idx+delta)%n+n)%n]
}

func cycleInt(values []int, current, delta int) int {
	if len(values) == 0 {
		return current
	}
	idx := -1
	for i, v := range values {
		if v == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		return values[0]
	}
	n := len(values)
	return values[((idx+delta)%n+n)%n]
}

func checkbox(on bool) string {
	if on {
		return "[x]"
	}
	return "[ ]"
}
