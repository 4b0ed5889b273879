package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/F-swanlight/sniffer-geo/internal/discover"
	"github.com/F-swanlight/sniffer-geo/internal/feed"
)

var discoverCmd = &cobra.Command{
	Use:   "discover <site-url>",
	Short: "Find RSS/Atom feeds offered by a journal site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		feeds, err := discover.New(feed.DefaultTimeout, feed.DefaultUserAgent).Find(ctx, args[0])
		if err != nil {
			return fmt.Errorf("discovering feeds: %w", err)
		}
		if len(feeds) == 0 {
			fmt.Println("No feeds found.")
			return nil
		}
		for _, f := range feeds {
			fmt.Println(f)
		}
		return nil
	},
}
