package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/grovekit/grove/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent dispatched commands",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := loadRuntime()
		if err != nil {
			return err
		}
		if !rt.cfg.History.Enabled {
			printDim("history is disabled (see history.enabled in %s)", ".groverc")
			return nil
		}

		limit := historyLimit
		if limit <= 0 {
			limit = rt.cfg.History.Limit
		}

		repo, err := history.Open(rt.genPath())
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()

		runs, err := repo.Recent(context.Background(), limit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			printDim("no commands recorded yet")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
		for _, run := range runs {
			command := run.Command
			if run.Args != "" {
				command += " " + run.Args
			}
			fmt.Fprintf(w, "%s\t%s\t%s\texit %d\t%s\n",
				run.StartedAt.Local().Format(time.DateTime),
				run.Target, command, run.ExitCode,
				run.Duration.Round(time.Millisecond))
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 0,
		"number of entries to show (default from config)")
	rootCmd.AddCommand(historyCmd)
}
