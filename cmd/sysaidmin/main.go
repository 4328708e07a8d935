package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sysaidmin/sysaidmin/internal/backup"
	"github.com/sysaidmin/sysaidmin/internal/config"
	"github.com/sysaidmin/sysaidmin/internal/executor"
	"github.com/sysaidmin/sysaidmin/internal/inbox"
	"github.com/sysaidmin/sysaidmin/internal/lock"
	"github.com/sysaidmin/sysaidmin/internal/logging"
	"github.com/sysaidmin/sysaidmin/internal/model"
	"github.com/sysaidmin/sysaidmin/internal/observability"
	"github.com/sysaidmin/sysaidmin/internal/orchestrator"
	"github.com/sysaidmin/sysaidmin/internal/plan"
	"github.com/sysaidmin/sysaidmin/internal/session"

	"github.com/prometheus/client_golang/prometheus"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runPlanFile(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "restore":
		runRestore(os.Args[2:])
	case "version":
		fmt.Printf("sysaidmin %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `usage: sysaidmin <command> [options]

commands:
  run <plan.json|->   execute one plan document (use - for stdin)
  watch               watch the inbox directory for plan documents
  restore <path>      restore a file from its .sysaidmin.bak safety copy
  version             print version`)
}

type engine struct {
	cfg      model.Config
	logger   *logging.Logger
	recorder *session.Recorder
	orch     *orchestrator.Orchestrator
}

func buildEngine(configPath string, dryRunOverride *bool) (*engine, error) {
	cfg, rules, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dryRunOverride != nil {
		cfg.DryRun = *dryRunOverride
	}

	logger := logging.New(os.Stderr, "sysaidmin", logging.ParseLevel(cfg.Logging.Level))

	recorder, err := session.NewRecorder(cfg.SessionDir)
	if err != nil {
		return nil, err
	}

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer, "sysaidmin")
	exec := executor.New(cfg.DefaultShell, time.Duration(cfg.CommandTimeoutSec)*time.Second)

	orch := orchestrator.New(orchestrator.Options{
		Rules:    rules,
		Executor: exec,
		Recorder: recorder,
		Metrics:  metrics,
		Logger:   logger.Named("orchestrator"),
		DryRun:   cfg.DryRun,
		Workers:  cfg.Workers,
	})

	return &engine{cfg: cfg, logger: logger, recorder: recorder, orch: orch}, nil
}

func runPlanFile(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "sysaidmin.yaml", "path to config file")
	dryRun := fs.Bool("dry-run", false, "simulate tasks without mutating the system")
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: sysaidmin run [options] <plan.json|->")
		os.Exit(1)
	}

	var override *bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "dry-run" {
			override = dryRun
		}
	})

	eng, err := buildEngine(*configPath, override)
	if err != nil {
		fatal(err)
	}
	defer eng.recorder.Close()

	raw, err := readPlanDocument(fs.Arg(0))
	if err != nil {
		fatal(err)
	}
	p, err := plan.Parse(raw, eng.cfg.DefaultShell)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h, err := eng.orch.Run(ctx, p)
	if err != nil {
		fatal(err)
	}

	failed := 0
	for oc := range h.Outcomes() {
		printOutcome(oc)
		if oc.Status == model.StatusFailed {
			failed++
		}
	}
	<-h.Done()

	if failed > 0 {
		os.Exit(1)
	}
}

func readPlanDocument(arg string) ([]byte, error) {
	if arg == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(arg)
}

func printOutcome(oc model.TaskOutcome) {
	fmt.Printf("task %d [%s] %s: %s\n", oc.TaskID, oc.Kind, oc.Status, oc.Detail)
	if oc.Stdout != "" {
		fmt.Print(indent(oc.Stdout))
	}
	if oc.Stderr != "" {
		fmt.Print(indent(oc.Stderr))
	}
}

func indent(s string) string {
	var b strings.Builder
	for _, line := range strings.Split(strings.TrimRight(s, "\n"), "\n") {
		b.WriteString("    ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func runWatch(args []string) {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "sysaidmin.yaml", "path to config file")
	fs.Parse(args)

	eng, err := buildEngine(*configPath, nil)
	if err != nil {
		fatal(err)
	}
	defer eng.recorder.Close()

	// One engine per session directory; a second watcher would interleave
	// plans.
	fileLock := lock.NewFileLock(filepath.Join(eng.cfg.SessionDir, "sysaidmin.lock"))
	if err := fileLock.TryLock(); err != nil {
		fatal(err)
	}
	defer fileLock.Unlock()

	if eng.cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.MetricsHandler())
		go func() {
			if err := http.ListenAndServe(eng.cfg.MetricsAddr, mux); err != nil {
				eng.logger.Errorf("metrics server: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ib := inbox.New(eng.cfg.InboxDir, eng.cfg.DefaultShell, eng.orch, eng.logger.Named("inbox"))
	if err := ib.Run(ctx); err != nil && err != context.Canceled {
		fatal(err)
	}
	eng.logger.Infof("shutdown")
}

func runRestore(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: sysaidmin restore <path>")
		os.Exit(1)
	}
	original := fs.Arg(0)
	bakPath := backup.PathFor(original)
	if _, err := os.Stat(bakPath); err != nil {
		fatal(fmt.Errorf("no backup found at %s", bakPath))
	}

	rec := backup.Record{OriginalPath: original, BackupPath: bakPath}
	if err := backup.Restore(rec); err != nil {
		fatal(err)
	}
	fmt.Printf("restored %s from %s\n", original, bakPath)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "sysaidmin: %v\n", err)
	os.Exit(1)
}
