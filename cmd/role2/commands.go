package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/kingrea/role2-builder/internal/generation"
	"github.com/kingrea/role2-builder/internal/genclient"
	"github.com/kingrea/role2-builder/internal/history"
	"github.com/kingrea/role2-builder/internal/logging"
	"github.com/kingrea/role2-builder/internal/session"
	"github.com/kingrea/role2-builder/internal/stubservice"
)

const usage = `Usage:
  role2                              open the exercise wizard
  role2 history                      list generated exercises
  role2 fetch <id> [doc-type|all]    download a package or document
  role2 generate [-job package|warno|msel]
                                     generate from the saved session
  role2 serve-stub [-addr host:port] run the local stub service
`

// handleSubcommand runs a headless command and reports whether one matched.
func handleSubcommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "history":
		err = withRuntime(ctx, func(rt *runtime) error { return runHistory(ctx, rt, os.Stdout) })
	case "fetch":
		err = withRuntime(ctx, func(rt *runtime) error { return runFetch(ctx, rt, args[1:], os.Stdout) })
	case "generate":
		err = withRuntime(ctx, func(rt *runtime) error { return runGenerate(ctx, rt, args[1:], os.Stdout) })
	case "serve-stub":
		err = runServeStub(ctx, args[1:], os.Stdout)
	case "help", "-h", "--help":
		fmt.Print(usage)
		return true
	default:
		fmt.Fprintf(os.Stderr, "role2: unknown command %q\n\n%s", args[0], usage)
		os.Exit(2)
	}
	if err != nil {
		die("%v", err)
	}
	return true
}

func withRuntime(ctx context.Context, fn func(*runtime) error) error {
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func runHistory(ctx context.Context, rt *runtime, out io.Writer) error {
	pkgs, err := rt.history.List(ctx)
	if err != nil {
		return fmt.Errorf("listing exercises: %s", genclient.ErrorMessage(err))
	}
	if len(pkgs) == 0 {
		fmt.Fprintln(out, "No exercises have been generated yet.")
		return nil
	}
	p := message.NewPrinter(language.English)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCREATED\tDAYS\tENVIRONMENT\tCASES")
	for _, pkg := range pkgs {
		created := "-"
		if t, ok := pkg.Created(); ok {
			created = t.Local().Format("2006-01-02 15:04")
		}
		days := "-"
		if pkg.Duration != nil {
			days = strconv.Itoa(*pkg.Duration)
		}
		env := "-"
		if pkg.Environment != nil && *pkg.Environment != "" {
			env = *pkg.Environment
		}
		p.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%d\n", pkg.ID, pkg.Name, created, days, env, pkg.TotalCases)
	}
	return tw.Flush()
}

func runFetch(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: role2 fetch <id> [doc-type|all]")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid exercise id %q", args[0])
	}
	pkgs, err := rt.history.List(ctx)
	if err != nil {
		return fmt.Errorf("listing exercises: %s", genclient.ErrorMessage(err))
	}
	var pkg *genclient.GeneratedPackage
	for i := range pkgs {
		if pkgs[i].ID == id {
			pkg = &pkgs[i]
			break
		}
	}
	if pkg == nil {
		return fmt.Errorf("exercise %d not found", id)
	}

	target := ""
	if len(args) == 2 {
		target = strings.ToLower(strings.TrimSpace(args[1]))
	}
	switch target {
	case "":
		path, err := rt.history.DownloadPackage(ctx, *pkg)
		if err != nil {
			return fmt.Errorf("download failed: %s", genclient.ErrorMessage(err))
		}
		fmt.Fprintln(out, path)
		return nil
	case "all":
		failed := 0
		for _, res := range rt.history.DownloadAll(ctx, *pkg) {
			if res.Err != nil {
				failed++
				fmt.Fprintf(out, "%s: %s\n", res.Doc.Label(), genclient.ErrorMessage(res.Err))
				continue
			}
			fmt.Fprintln(out, res.Path)
		}
		if failed > 0 {
			return fmt.Errorf("%d document(s) failed", failed)
		}
		return nil
	}
	doc, err := history.ParseDocType(target)
	if err != nil {
		return err
	}
	path, err := rt.history.DownloadDocument(ctx, *pkg, doc)
	if err != nil {
		return fmt.Errorf("download failed: %s", genclient.ErrorMessage(err))
	}
	fmt.Fprintln(out, path)
	return nil
}

func runGenerate(ctx context.Context, rt *runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	jobKey := fs.String("job", "package", "artifact to generate: package, warno or msel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	job, err := generation.ParseJob(*jobKey)
	if err != nil {
		return err
	}
	cfg, err := rt.store.LoadSnapshot(ctx)
	if err != nil {
		if errors.Is(err, session.ErrNoConfiguration) {
			return errors.New("no saved configuration; run role2 and complete exercise setup first")
		}
		return err
	}
	rt.generator.Observe(func(p generation.Progress) {
		fmt.Fprintf(out, "[%s] %s\n", p.State, p.Message)
	})
	if err := rt.generator.Submit(ctx, job, cfg); err != nil {
		return err
	}
	final, err := rt.generator.Wait(ctx)
	if err != nil {
		// Interrupted: cancel the sequence and wait for it to settle.
		rt.generator.Cancel()
		final, _ = rt.generator.Wait(context.Background())
	}
	if final.State != generation.StateComplete {
		return errors.New(final.Message)
	}
	fmt.Fprintln(out, final.Path)
	return nil
}

func runServeStub(ctx context.Context, args []string, out io.Writer) error {
	settings, err := stubservice.SettingsFromEnv()
	if err != nil {
		return err
	}
	fs := flag.NewFlagSet("serve-stub", flag.ContinueOnError)
	addr := fs.String("addr", settings.Address(), "listen address (host:port)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := settings.ParseAddress(*addr); err != nil {
		return err
	}
	logger := logging.NewWriter(os.Stderr)
	srv := stubservice.NewServer(settings, stubservice.WithLogger(logger))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "stub generation service listening on %s\n", srv.BaseURL())
	fmt.Fprintf(out, "point the builder at it with ROLE2_API_URL=%s\n", srv.BaseURL())
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
