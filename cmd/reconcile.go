package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/grovekit/grove/internal/log"
	"github.com/grovekit/grove/internal/materialize"
	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/tracing"
)

var (
	reconcileRepair bool
	reconcileWatch  bool
)

// watchDebounce coalesces filesystem event bursts into one reconcile.
const watchDebounce = 300 * time.Millisecond

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <name>",
	Short: "Compare a workspace tree against its links",
	Long: `Compare a workspace's on-disk entries against its declared links and
report missing, stale, and matched aliases. With --repair the tree is
brought back in line. With --watch grove stays in the foreground and
re-reconciles whenever the workspace directory changes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := name.Parse(args[0])
		if err != nil {
			return err
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}

		tracerCfg := rt.cfg.Tracing
		if tracerCfg.Enabled && tracerCfg.FilePath == "" {
			tracerCfg.FilePath = rt.genPath("traces.jsonl")
		}
		provider, err := tracing.NewProvider(tracerCfg)
		if err != nil {
			return err
		}
		defer func() { _ = provider.Shutdown(context.Background()) }()

		if !reconcileWatch {
			return reconcileOnce(rt, provider, n)
		}
		return watchLoop(rt, provider, n)
	},
}

func reconcileOnce(rt *runtime, provider *tracing.Provider, n name.Name) error {
	_, span := provider.StartReconcile(context.Background(), n.String(), reconcileRepair)
	defer span.End()

	state, err := rt.store.Load()
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	node, err := state.Registry.Lookup(n)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	links, err := materialize.ResolveAll(state, n)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	m := materialize.New(rt.root)
	workspaceRoot := state.AbsPath(node)

	var report *materialize.Report
	if reconcileRepair {
		report, err = m.Repair(workspaceRoot, links)
	} else {
		report, err = m.Reconcile(workspaceRoot, links)
	}
	if report != nil {
		printReport(n, report)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func printReport(n name.Name, report *materialize.Report) {
	if report.Clean() {
		printSuccess("%s is in sync (%d link(s))", n, len(report.Matched))
		return
	}
	for _, alias := range report.Missing {
		printWarn("missing   %s", alias)
	}
	for _, alias := range report.Stale {
		printWarn("stale     %s", alias)
	}
	for _, alias := range report.Occupied {
		printError("occupied  %s", alias)
	}
	for _, alias := range report.Matched {
		printDim("matched   %s", alias)
	}
}

// watchLoop re-runs reconciliation whenever the workspace directory
// changes, debounced, until interrupted. Foreground only; grove never
// daemonizes.
func watchLoop(rt *runtime, provider *tracing.Provider, n name.Name) error {
	state, err := rt.store.Load()
	if err != nil {
		return err
	}
	node, err := state.Registry.Lookup(n)
	if err != nil {
		return err
	}
	workspaceRoot := state.AbsPath(node)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(workspaceRoot); err != nil {
		return fmt.Errorf("watching %s: %w", workspaceRoot, err)
	}

	if err := reconcileOnce(rt, provider, n); err != nil {
		printWarn("%v", err)
	}
	printDim("watching %s (ctrl-c to stop)", workspaceRoot)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			log.Debug(log.CatFS, "watch event", "op", event.Op.String(), "path", event.Name)
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
				timerC = timer.C
			} else {
				timer.Reset(watchDebounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			if err := reconcileOnce(rt, provider, n); err != nil {
				printWarn("%v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			printWarn("watch error: %v", err)
		case <-sigCh:
			return nil
		}
	}
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileRepair, "repair", false,
		"re-materialize missing links and remove stale entries")
	reconcileCmd.Flags().BoolVar(&reconcileWatch, "watch", false,
		"stay in the foreground and reconcile on changes")
	rootCmd.AddCommand(reconcileCmd)
}
