package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/codes"

	"github.com/grovekit/grove/internal/dispatch"
	"github.com/grovekit/grove/internal/history"
	"github.com/grovekit/grove/internal/log"
	"github.com/grovekit/grove/internal/name"
	"github.com/grovekit/grove/internal/tracing"
)

var execTarget string

var execCmd = &cobra.Command{
	Use:   "exec -n <name> -- <command> [args...]",
	Short: "Run a command inside a registered tree",
	Long: `Run a command with the target tree as working directory. The child
environment carries GROVE_TARGET_ROOT, one GROVE_LINK_<ALIAS> variable
per outgoing link, and any variables from the tree's grove.env file.
The child's exit code becomes grove's exit code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if execTarget == "" {
			return fmt.Errorf("a target is required (-n)")
		}
		n, err := name.Parse(execTarget)
		if err != nil {
			return err
		}

		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		target, err := resolveTarget(rt, n)
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

		ctx, span := provider.StartExec(context.Background(), n.String(), args[0])
		started := time.Now()
		result, err := dispatch.New().Exec(ctx, target, args[0], args[1:])
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			span.End()
			return err
		}
		span.End()

		recordRun(rt, history.Run{
			Target:    n.String(),
			Command:   args[0],
			Args:      strings.Join(args[1:], " "),
			ExitCode:  result.ExitCode,
			Duration:  result.Duration,
			StartedAt: started,
		})

		if result.ExitCode != 0 {
			_ = provider.Shutdown(context.Background())
			if closeLog != nil {
				closeLog()
			}
			os.Exit(result.ExitCode)
		}
		return nil
	},
}

// resolveTarget builds the dispatch scope for a registered tree.
func resolveTarget(rt *runtime, n name.Name) (dispatch.Target, error) {
	state, err := rt.store.Load()
	if err != nil {
		return dispatch.Target{}, err
	}
	node, err := state.Registry.Lookup(n)
	if err != nil {
		return dispatch.Target{}, err
	}

	// Link variables carry the resolved path of the link's target, not the
	// alias entry inside the source tree: the alias path is a copy for
	// copy-kind links and absent entirely until the link is materialized.
	target := dispatch.Target{Name: n, Root: state.AbsPath(node)}
	for _, e := range state.Graph.EdgesFrom(n) {
		targetNode, err := state.Registry.Lookup(e.Target)
		if err != nil {
			return dispatch.Target{}, fmt.Errorf("resolving link %s[%s]: %w", n, e.Alias, err)
		}
		target.Links = append(target.Links, dispatch.ResolvedLink{
			Alias: e.Alias,
			Path:  state.AbsPath(targetNode),
		})
	}
	return target, nil
}

// recordRun appends to exec history. History is best-effort and never
// fails the dispatch it describes.
func recordRun(rt *runtime, run history.Run) {
	if !rt.cfg.History.Enabled {
		return
	}
	repo, err := history.Open(rt.genPath())
	if err != nil {
		log.ErrorErr(log.CatHistory, "opening history", err)
		return
	}
	defer func() { _ = repo.Close() }()
	if err := repo.Record(context.Background(), run); err != nil {
		log.ErrorErr(log.CatHistory, "recording run", err)
	}
}

func init() {
	execCmd.Flags().StringVarP(&execTarget, "name", "n", "", "target tree")
	rootCmd.AddCommand(execCmd)
}
