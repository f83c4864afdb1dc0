package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog-engine/internal/catalog"
	"github.com/zjrosen/catalog-engine/internal/engine"
	"github.com/zjrosen/catalog-engine/internal/presentation"
)

var (
	runMode    string
	runModules []string
	runJSON    bool
)

var runCmd = &cobra.Command{
	Use:   "run [name@revision ...]",
	Short: "Run one catalog pass",
	Long: `Run one catalog pass and print its summary.

An incremental run processes the given modules and the records they touch:
the targets of their dependencies, the modules that depend on them and the
rest of their revision chain. A full run reprocesses the whole catalog.

Examples:
  catalog-engine run ietf-interfaces@2018-02-20
  catalog-engine run --module ietf-ip@2018-02-22 --module ietf-routing@2018-03-13
  catalog-engine run --mode full --json | jq .updated`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runMode, "mode", "m", string(engine.ModeIncremental), "run mode: incremental or full")
	runCmd.Flags().StringArrayVar(&runModules, "module", nil, "module to process as name@revision (repeatable)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the summary as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	mode, err := engine.ParseMode(runMode)
	if err != nil {
		return err
	}
	keys, err := parseKeys(append(append([]string{}, runModules...), args...))
	if err != nil {
		return err
	}
	if mode == engine.ModeIncremental && len(keys) == 0 {
		return fmt.Errorf("an incremental run needs at least one module")
	}

	svc, err := openServices(cfg)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, runErr := svc.engine.Run(ctx, keys, mode)

	formatter := presentation.NewFormatter(cmd.OutOrStdout())
	dto := presentation.FromSummary(summary)
	if runJSON {
		err = formatter.FormatJSON(dto)
	} else {
		err = formatter.FormatSummary(dto)
	}
	if runErr != nil {
		return runErr
	}
	return err
}

func parseKeys(raw []string) ([]catalog.ModuleKey, error) {
	keys := make([]catalog.ModuleKey, 0, len(raw))
	for _, s := range raw {
		k, err := catalog.ParseKey(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}
