package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/role2-builder/internal/genclient"
	"github.com/kingrea/role2-builder/internal/history"
)

const historyTimeLayout = "02 Jan 2006 15:04"

type historyLoadedMsg struct {
	packages []genclient.GeneratedPackage
	err      error
}

type downloadFinishedMsg struct {
	label   string
	path    string
	err     error
	results []history.Result
}

type packageItem struct {
	pkg   genclient.GeneratedPackage
	title string
	desc  string
}

func (i packageItem) Title() string       { return i.title }
func (i packageItem) Description() string { return i.desc }
func (i packageItem) FilterValue() string { return i.pkg.Name }

func (a *App) enterHistory() tea.Cmd {
	a.state = stateHistory
	a.historyErr = ""
	a.historyNotes = nil
	a.statusMsg = "enter package · 1-5 document · a all documents · r refresh · x dismiss error"
	return a.loadHistory()
}

func (a *App) loadHistory() tea.Cmd {
	a.historyBusy = true
	ctx := a.ctx
	client := a.history
	return func() tea.Msg {
		pkgs, err := client.List(ctx)
		return historyLoadedMsg{packages: pkgs, err: err}
	}
}

// handleHistoryLoaded replaces the list only on success; a failed refresh
// keeps the previous packages on screen.
func (a *App) handleHistoryLoaded(msg historyLoadedMsg) {
	a.historyBusy = false
	if msg.err != nil {
		a.historyErr = "Could not load exercises: " + genclient.ErrorMessage(msg.err)
		a.logError("Loading exercises failed: %v", msg.err)
		return
	}
	a.packages = msg.packages
	items := make([]list.Item, len(msg.packages))
	for i, pkg := range msg.packages {
		items[i] = a.newPackageItem(pkg)
	}
	a.historyList.SetItems(items)
	a.logProgress(a.printer.Sprintf("Loaded %d generated exercises", len(msg.packages)))
}

func (a *App) newPackageItem(pkg genclient.GeneratedPackage) packageItem {
	var parts []string
	parts = append(parts, "#"+strconv.FormatInt(pkg.ID, 10))
	if created, ok := pkg.Created(); ok {
		parts = append(parts, created.Local().Format(historyTimeLayout))
	}
	if pkg.Duration != nil {
		parts = append(parts, a.printer.Sprintf("%d days", *pkg.Duration))
	}
	if pkg.Environment != nil && *pkg.Environment != "" {
		parts = append(parts, *pkg.Environment)
	}
	parts = append(parts, a.printer.Sprintf("%d cases", pkg.TotalCases))
	return packageItem{pkg: pkg, title: pkg.Name, desc: strings.Join(parts, " · ")}
}

func (a *App) selectedPackage() (genclient.GeneratedPackage, bool) {
	item, ok := a.historyList.SelectedItem().(packageItem)
	if !ok {
		return genclient.GeneratedPackage{}, false
	}
	return item.pkg, true
}

// handleHistoryKey returns handled=false for keys the list should see.
func (a *App) handleHistoryKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	key := msg.String()
	switch key {
	case "r":
		return a.loadHistory(), true
	case "x":
		a.historyErr = ""
		return nil, true
	case "enter":
		pkg, ok := a.selectedPackage()
		if !ok {
			return nil, true
		}
		return a.downloadPackage(pkg), true
	case "a":
		pkg, ok := a.selectedPackage()
		if !ok {
			return nil, true
		}
		return a.downloadAll(pkg), true
	case "1", "2", "3", "4", "5":
		pkg, ok := a.selectedPackage()
		if !ok {
			return nil, true
		}
		idx, _ := strconv.Atoi(key)
		return a.downloadDocument(pkg, history.DocTypes()[idx-1]), true
	}
	return nil, false
}

func (a *App) downloadPackage(pkg genclient.GeneratedPackage) tea.Cmd {
	ctx := a.ctx
	client := a.history
	label := pkg.Name + " package"
	a.statusMsg = "Downloading " + label + "…"
	return func() tea.Msg {
		path, err := client.DownloadPackage(ctx, pkg)
		return downloadFinishedMsg{label: label, path: path, err: err}
	}
}

func (a *App) downloadDocument(pkg genclient.GeneratedPackage, doc history.DocType) tea.Cmd {
	ctx := a.ctx
	client := a.history
	label := pkg.Name + " " + a.docTitle(doc)
	a.statusMsg = "Downloading " + label + "…"
	return func() tea.Msg {
		path, err := client.DownloadDocument(ctx, pkg, doc)
		return downloadFinishedMsg{label: label, path: path, err: err}
	}
}

func (a *App) downloadAll(pkg genclient.GeneratedPackage) tea.Cmd {
	ctx := a.ctx
	client := a.history
	label := pkg.Name + " documents"
	a.statusMsg = "Downloading " + label + "…"
	return func() tea.Msg {
		return downloadFinishedMsg{label: label, results: client.DownloadAll(ctx, pkg)}
	}
}

func (a *App) handleDownloadFinished(msg downloadFinishedMsg) {
	if msg.results != nil {
		var failed []string
		saved := 0
		for _, res := range msg.results {
			if res.Err != nil {
				failed = append(failed, fmt.Sprintf("%s (%s)", a.docTitle(res.Doc), genclient.ErrorMessage(res.Err)))
				continue
			}
			saved++
			a.addHistoryNote("Saved " + res.Path)
		}
		a.statusMsg = a.printer.Sprintf("Saved %d of %d documents for %s", saved, len(msg.results), msg.label)
		if len(failed) > 0 {
			a.historyErr = "Some downloads failed: " + strings.Join(failed, "; ")
		}
		return
	}
	if msg.err != nil {
		a.historyErr = "Download of " + msg.label + " failed: " + genclient.ErrorMessage(msg.err)
		a.statusMsg = ""
		return
	}
	a.statusMsg = "Saved " + msg.path
	a.addHistoryNote("Saved " + msg.path)
}

func (a *App) addHistoryNote(note string) {
	a.historyNotes = append(a.historyNotes, note)
	if len(a.historyNotes) > 5 {
		a.historyNotes = a.historyNotes[len(a.historyNotes)-5:]
	}
}

// docTitle renders a document key such as "case_book" as "Case Book".
func (a *App) docTitle(doc history.DocType) string {
	return a.titler.String(strings.ReplaceAll(string(doc), "_", " "))
}

func (a *App) renderHistory() string {
	var sections []string
	if a.historyBusy && len(a.packages) == 0 {
		sections = append(sections, "Loading generated exercises…")
	} else if len(a.packages) == 0 {
		sections = append(sections, "No exercises have been generated yet.")
	} else {
		sections = append(sections, a.historyList.View())
	}
	if a.historyErr != "" {
		sections = append(sections, errorStyle().Render("⚠ "+a.historyErr+"  (x to dismiss)"))
	}
	sections = append(sections, hintStyle().Render("enter → package zip    1-5 → document    a → all documents    esc → menu"))
	return strings.Join(sections, "\n")
}

func (a *App) renderPackagePanel() string {
	lines := []string{headingStyle().Render("Documents")}
	for i, doc := range history.DocTypes() {
		lines = append(lines, fmt.Sprintf("%d  %s (.%s)", i+1, a.docTitle(doc), doc.Extension()))
	}
	if pkg, ok := a.selectedPackage(); ok {
		lines = append(lines, "", headingStyle().Render(pkg.Name))
		lines = append(lines, a.printer.Sprintf("%d total cases", pkg.TotalCases))
	}
	if len(a.historyNotes) > 0 {
		lines = append(lines, "", headingStyle().Render("Recent downloads"))
		lines = append(lines, a.historyNotes...)
	}
	return strings.Join(lines, "\n")
}
