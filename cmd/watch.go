package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/catalog-engine/internal/engine"
	"github.com/zjrosen/catalog-engine/internal/log"
	"github.com/zjrosen/catalog-engine/internal/presentation"
	"github.com/zjrosen/catalog-engine/internal/pubsub"
	"github.com/zjrosen/catalog-engine/internal/watcher"
)

var watchFullEvery time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run incremental passes for modules dropped into the spool directory",
	Long: `Watch the spool directory and run an incremental pass whenever *.keys
files appear in it. Each file lists one name@revision per line and is removed
once read. With --full-every a full pass also runs on that interval.

Example:
  catalog-engine watch --full-every 24h
  echo ietf-ip@2018-02-22 > .catalog-engine/spool/import-42.keys`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchFullEvery, "full-every", 0, "also run a full pass on this interval (0 disables)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	if err := os.MkdirAll(cfg.Watch.SpoolDir, 0o750); err != nil {
		return fmt.Errorf("creating spool directory: %w", err)
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

	w, err := watcher.New(watcher.Config{SpoolDir: cfg.Watch.SpoolDir, Debounce: cfg.Watch.Debounce})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()
	onChange, err := w.Start()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go printSummaries(ctx, svc.events, presentation.NewFormatter(cmd.OutOrStdout()))

	var fullTick <-chan time.Time
	if watchFullEvery > 0 {
		ticker := time.NewTicker(watchFullEvery)
		defer ticker.Stop()
		fullTick = ticker.C
	}

	log.Info(log.CatWatch, "watching spool", "dir", cfg.Watch.SpoolDir, "full_every", watchFullEvery)
	drainAndRun(ctx, svc.engine)
	for {
		select {
		case <-ctx.Done():
			log.Info(log.CatWatch, "stopping")
			return nil
		case <-onChange:
			drainAndRun(ctx, svc.engine)
		case <-fullTick:
			_, _ = svc.engine.Run(ctx, nil, engine.ModeFull)
		}
	}
}

// drainAndRun runs one incremental pass over everything in the spool.
// Run errors are already logged and published; watching continues.
func drainAndRun(ctx context.Context, eng *engine.Engine) {
	keys, err := watcher.Drain(cfg.Watch.SpoolDir)
	if err != nil {
		log.WarnErr(log.CatWatch, "spool partially read", err)
	}
	if len(keys) == 0 {
		return
	}
	_, _ = eng.Run(ctx, keys, engine.ModeIncremental)
}

func printSummaries(ctx context.Context, events pubsub.Subscriber[engine.Summary], f *presentation.Formatter) {
	for ev := range events.Subscribe(ctx) {
		if !ev.Type.Terminal() {
			continue
		}
		s := ev.Payload
		_ = f.FormatSummary(presentation.FromSummary(&s))
	}
}
