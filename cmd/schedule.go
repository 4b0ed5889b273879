package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/F-swanlight/sniffer-geo/internal/report"
)

var flagCron string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the daily check on a cron schedule",
	Long: `Stay in the foreground and run the daily check on a cron schedule, in the
configured time zone. A run that is still going when the next one is due
causes that tick to be skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		m, err := newMonitor(cfg, store, false)
		if err != nil {
			return err
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		log := cronLogger{}
		c := cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		)
		sched, err := cron.ParseStandard(flagCron)
		if err != nil {
			return fmt.Errorf("invalid --cron spec %q: %w", flagCron, err)
		}
		c.Schedule(sched, cron.FuncJob(func() {
			res, err := m.Run(ctx)
			if err != nil {
				slog.Warn("scheduled run stopped", "err", err)
				return
			}
			if len(res.Batches) > 0 {
				report.Delivery(os.Stdout, res.Report)
			}
		}))

		c.Start()
		slog.Info("scheduler started", "cron", flagCron, "next", sched.Next(time.Now().In(loc)).Format("2006-01-02 15:04 MST"))

		<-ctx.Done()
		slog.Info("stopping scheduler, waiting for a running check to finish")
		<-c.Stop().Done()
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&flagCron, "cron", "0 9 * * *", "cron spec (minute hour dom month dow) or @daily-style descriptor")
}

// cronLogger routes cron's logging through slog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
