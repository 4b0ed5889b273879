package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/F-swanlight/sniffer-geo/internal/backlog"
	"github.com/F-swanlight/sniffer-geo/internal/config"
	"github.com/F-swanlight/sniffer-geo/internal/feed"
	"github.com/F-swanlight/sniffer-geo/internal/logger"
	"github.com/F-swanlight/sniffer-geo/internal/monitor"
	"github.com/F-swanlight/sniffer-geo/internal/notify"
	"github.com/F-swanlight/sniffer-geo/internal/report"
	"github.com/F-swanlight/sniffer-geo/internal/translate"
)

// setup loads .env and the config file and installs the logger.
func setup() (*config.Config, io.Closer, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	closer, err := logger.Init(level, cfg.LogFile)
	if err != nil {
		return nil, nil, err
	}
	return cfg, closer, nil
}

func openStore(cfg *config.Config) (*backlog.Store, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	store, err := backlog.Open(cfg.GetStatePath(), backlog.Options{
		Retention:     cfg.RetentionDuration(),
		PushedLinkCap: cfg.PushedLinkCap,
		Location:      loc,
	})
	if err != nil {
		return nil, fmt.Errorf("opening state: %w", err)
	}
	return store, nil
}

func newMonitor(cfg *config.Config, store *backlog.Store, dryRun bool) (*monitor.Monitor, error) {
	mc, err := monitor.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	mc.DryRun = dryRun

	fetcher := feed.NewRSSFetcher(feed.Options{
		Timeout:  cfg.FetchTimeout(),
		Attempts: cfg.FetchAttempts(),
	})
	sender := notify.New(cfg.Webhook(), 0)
	m := monitor.New(mc, fetcher, sender, store)

	if cfg.TranslationEnabled() {
		p, err := translate.NewProvider(cfg.Translation, cfg.AIKey())
		if err != nil {
			return nil, err
		}
		m.WithTranslator(translate.New(p, cfg.Translation.Target))
	}
	return m, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runCheck(cmd *cobra.Command, args []string) error {
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

	m, err := newMonitor(cfg, store, flagDryRun)
	if err != nil {
		return err
	}
	if cfg.Webhook() == "" && !flagDryRun {
		slog.Warn("no webhook configured, messages will only be logged", "config", config.DefaultConfigPath())
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	res, err := m.Run(ctx)
	if flagDryRun {
		report.Preview(os.Stdout, res.Batches, res.Messages)
	} else if len(res.Batches) > 0 {
		report.Delivery(os.Stdout, res.Report)
	} else if res.Report.EmptySent {
		fmt.Println("Nothing to send today; empty-day notice posted.")
	} else if err == nil {
		fmt.Println("Nothing to send today.")
	}
	return err
}
