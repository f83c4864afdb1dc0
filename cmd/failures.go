package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog-engine/internal/failures"
	"github.com/zjrosen/catalog-engine/internal/infrastructure/sqlite"
	"github.com/zjrosen/catalog-engine/internal/presentation"
)

var (
	failRunID  string
	failModule string
	failKind   string
	failLimit  int
	failJSON   bool
	failOutput string
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect the failure log",
	Long: `Inspect records the datastore refused and modules whose tracker lookup
ran out of retries. Payloads are the exact deltas that were not applied.`,
}

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List logged failures, newest first",
	Example: `  catalog-engine failures list --kind write
  catalog-engine failures list --run 4b6f... --json | jq '.[].payload'`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withFailureLog(func(repo failures.Repository) error {
			list, err := repo.List(failureFilter())
			if err != nil {
				return err
			}
			f := presentation.NewFormatter(cmd.OutOrStdout())
			if failJSON {
				return f.FormatJSON(presentation.FromFailures(list))
			}
			return f.FormatFailures(presentation.FromFailures(list))
		})
	},
}

var failuresExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export logged failures as YAML",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withFailureLog(func(repo failures.Repository) error {
			list, err := repo.List(failureFilter())
			if err != nil {
				return err
			}
			var w io.Writer = cmd.OutOrStdout()
			if failOutput != "" && failOutput != "-" {
				file, err := os.Create(failOutput) // #nosec G304 -- operator-chosen output path
				if err != nil {
					return fmt.Errorf("creating %s: %w", failOutput, err)
				}
				defer func() { _ = file.Close() }()
				w = file
			}
			return failures.WriteYAML(w, list)
		})
	},
}

var failuresClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete logged failures for one run, or all of them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withFailureLog(func(repo failures.Repository) error {
			n, err := repo.Clear(failRunID)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d failures\n", n)
			return err
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{failuresListCmd, failuresExportCmd, failuresClearCmd} {
		c.Flags().StringVar(&failRunID, "run", "", "only failures from this run ID")
	}
	for _, c := range []*cobra.Command{failuresListCmd, failuresExportCmd} {
		c.Flags().StringVar(&failModule, "module", "", "only failures for this name@revision")
		c.Flags().StringVar(&failKind, "kind", "", "only failures of this kind: write or tracker")
		c.Flags().IntVar(&failLimit, "limit", 0, "maximum number of failures (0 for all)")
	}
	failuresListCmd.Flags().BoolVar(&failJSON, "json", false, "print JSON instead of a table")
	failuresExportCmd.Flags().StringVarP(&failOutput, "output", "o", "-", "output file")

	failuresCmd.AddCommand(failuresListCmd, failuresExportCmd, failuresClearCmd)
	rootCmd.AddCommand(failuresCmd)
}

func failureFilter() failures.ListFilter {
	return failures.ListFilter{
		RunID: failRunID,
		Key:   failModule,
		Kind:  failures.Kind(failKind),
		Limit: failLimit,
	}
}

func withFailureLog(fn func(failures.Repository) error) error {
	switch failures.Kind(failKind) {
	case "", failures.KindWrite, failures.KindTracker:
	default:
		return fmt.Errorf("unknown failure kind %q", failKind)
	}
	if cfg.Failures.DBPath == "" {
		return fmt.Errorf("failures.db_path is not configured")
	}
	db, err := sqlite.NewDB(cfg.Failures.DBPath)
	if err != nil {
		return fmt.Errorf("opening failure log: %w", err)
	}
	defer func() { _ = db.Close() }()
	return fn(db.FailureRepository())
}
