// cmd/role2/main.go
//
// This is the entry point for the role2 CLI.
// When you run `role2` from any directory, this is what executes.
//
// Flow:
// 1. Subcommands (history, fetch, generate, serve-stub) run headless and exit
// 2. Otherwise initialise the .role2 folder and wire the services
// 3. Launch the TUI

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/role2-builder/internal/config"
	"github.com/kingrea/role2-builder/internal/download"
	"github.com/kingrea/role2-builder/internal/generation"
	"github.com/kingrea/role2-builder/internal/genclient"
	"github.com/kingrea/role2-builder/internal/history"
	"github.com/kingrea/role2-builder/internal/logbook"
	"github.com/kingrea/role2-builder/internal/logging"
	"github.com/kingrea/role2-builder/internal/session"
	"github.com/kingrea/role2-builder/internal/telemetry"
	"github.com/kingrea/role2-builder/internal/tui"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if handleSubcommand(os.Args[1:]) {
		return
	}

	ctx := context.Background()
	rt, err := newRuntime(ctx)
	if err != nil {
		die("%v", err)
	}
	defer rt.Close()

	app, err := tui.NewApp(rt.services(), tui.WithContext(ctx))
	if err != nil {
		die("start wizard: %v", err)
	}

	// tea.NewProgram creates a new bubbletea application around our model
	p := tea.NewProgram(app, tea.WithAltScreen())

	// Run blocks until the user quits
	if _, err := p.Run(); err != nil {
		rt.Close()
		die("running TUI: %v", err)
	}
}

// runtime holds everything wired from .role2/config.yaml.
type runtime struct {
	cfg       *config.Config
	journal   *logbook.Logbook
	logger    *logging.Logger
	storage   session.Storage
	store     *session.Store
	client    *genclient.Client
	saver     *download.Saver
	generator *generation.Orchestrator
	history   *history.Client
	shutdown  func(context.Context) error
}

func newRuntime(ctx context.Context) (*runtime, error) {
	// The directory role2 is launched from is the "project" we work in
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}
	if err := config.InitDir(cwd); err != nil {
		return nil, fmt.Errorf("initializing .role2 directory: %w", err)
	}
	cfg, err := config.NewConfig(cwd)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	rt := &runtime{cfg: cfg}
	rt.journal, err = logbook.New(filepath.Join(cfg.LogsDir(), logbook.FileName))
	if err != nil {
		return nil, fmt.Errorf("opening journey log: %w", err)
	}
	rt.logger, err = logging.New(cfg.LogsDir())
	if err != nil {
		return nil, err
	}
	rt.shutdown, err = telemetry.Setup(ctx, cfg.Project.Telemetry, version)
	if err != nil {
		rt.journal.Warn("Telemetry disabled: %v", err)
	}
	rt.storage, err = session.OpenStorage(cfg)
	if err != nil {
		rt.Close()
		return nil, err
	}

	rt.client = genclient.New(cfg.BaseURL(),
		genclient.WithLogger(rt.logger),
		genclient.WithRequestTimeout(cfg.Project.Service.RequestTimeout),
	)
	rt.saver = download.NewSaver(cfg.DownloadsDir())
	rt.store = session.NewStore(rt.storage, session.WithLogbook(rt.journal))
	rt.generator = generation.New(rt.client, rt.saver,
		generation.WithLogbook(rt.journal),
		generation.WithTimeout(cfg.Project.Service.GenerationTimeout),
	)
	rt.history = history.NewClient(rt.client, rt.saver, rt.journal)
	rt.journal.Info("role2 %s · service %s · storage %s", version, cfg.BaseURL(), cfg.StorageBackend())
	return rt, nil
}

func (rt *runtime) services() tui.Services {
	return tui.Services{
		Config:    rt.cfg,
		Store:     rt.store,
		Generator: rt.generator,
		History:   rt.history,
		Logbook:   rt.journal,
	}
}

// Close flushes telemetry and releases storage and log handles.
func (rt *runtime) Close() {
	if rt == nil {
		return
	}
	if rt.shutdown != nil {
		_ = rt.shutdown(context.Background())
		rt.shutdown = nil
	}
	if rt.storage != nil {
		_ = rt.storage.Close()
		rt.storage = nil
	}
	if rt.logger != nil {
		_ = rt.logger.Close()
		rt.logger = nil
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "role2: "+format+"\n", args...)
	os.Exit(1)
}
