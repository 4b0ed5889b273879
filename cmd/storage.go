package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/F-swanlight/sniffer-geo/internal/config"
	"github.com/F-swanlight/sniffer-geo/internal/report"
)

var flagPruneOlderThan string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Drop delivered articles older than the retention window",
	Long: `Remove delivered articles whose push date is older than the retention period
and trim the delivered-links list to its cap. Undelivered articles are kept.

Uses the retention value from config (default: 30d) unless overridden with --older-than.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		if flagPruneOlderThan != "" {
			d, err := parseOlderThan(flagPruneOlderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than value: %w", err)
			}
			cfg.Retention = formatDuration(d)
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		store.Load()
		dropped := store.Cleanup(time.Now())
		if err := store.Persist(); err != nil {
			return fmt.Errorf("saving state: %w", err)
		}

		if dropped == 0 {
			fmt.Println("Nothing to prune.")
		} else {
			fmt.Printf("Pruned %d article(s) delivered more than %s ago.\n", dropped, formatDuration(cfg.RetentionDuration()))
		}
		return nil
	},
}

var flagStatsRuns int

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show backlog counts and recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()
		store.Load()

		size, err := store.FileSize()
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}
		runs, err := store.RecentRuns(flagStatsRuns)
		if err != nil {
			return fmt.Errorf("reading runs: %w", err)
		}

		report.Stats(cmd.OutOrStdout(), report.StateInfo{
			Path:   store.Path(),
			Size:   size,
			Counts: store.Counts(),
			Runs:   runs,
		})
		return nil
	},
}

func init() {
	pruneCmd.Flags().StringVar(&flagPruneOlderThan, "older-than", "", "override retention period (e.g., 30d, 720h)")
	statsCmd.Flags().IntVar(&flagStatsRuns, "runs", 10, "number of recent runs to show")
}

func parseOlderThan(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	return config.ParseDuration(s)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 && d == time.Duration(days)*24*time.Hour {
		return fmt.Sprintf("%dd", days)
	}
	return d.String()
}
