package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/F-swanlight/sniffer-geo/internal/feed"
	"github.com/F-swanlight/sniffer-geo/internal/update"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig   string
	flagLogLevel string
	flagDryRun   bool
	flagCheck    bool
)

var rootCmd = &cobra.Command{
	Use:   "sniffer-geo",
	Short: "Daily geoscience journal digest for group chats",
	Long: `sniffer-geo polls geoscience journal feeds, keeps the articles matching your
keywords, ranks them by journal weight and pushes a daily digest to a chat
webhook. Quiet days are topped up from a backlog of earlier, undelivered
articles.`,
	SilenceUsage: true,
	RunE:         runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.Flags().BoolVar(&flagDryRun, "dry-run", false, "fetch and plan, print the batches, send and save nothing")

	versionCmd.Flags().BoolVar(&flagCheck, "check", false, "check for a newer release")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(scheduleCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sniffer-geo %s (commit: %s, built: %s)\n", version, commit, date)
		if !flagCheck {
			return
		}
		rel, err := update.NewChecker(update.DefaultTimeout, feed.DefaultUserAgent).Latest(cmd.Context())
		switch {
		case errors.Is(err, update.ErrNoReleases):
			fmt.Println("No releases published yet.")
		case err != nil:
			slog.Warn("update check failed", "err", err)
		case update.Newer(version, rel.Version):
			fmt.Printf("A newer version is available: %s (%s)\n", rel.Version, rel.URL)
		default:
			fmt.Printf("Up to date (latest release %s).\n", rel.Version)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
