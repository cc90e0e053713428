package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/bmcfanctl/internal/config"
	"codeberg.org/mutker/bmcfanctl/internal/daemon"
	"codeberg.org/mutker/bmcfanctl/internal/errors"
	"codeberg.org/mutker/bmcfanctl/internal/ipmi"
	"codeberg.org/mutker/bmcfanctl/internal/journal"
	"codeberg.org/mutker/bmcfanctl/internal/logger"
	"codeberg.org/mutker/bmcfanctl/internal/mcptools"
	"codeberg.org/mutker/bmcfanctl/internal/notify"
	"codeberg.org/mutker/bmcfanctl/internal/operator"
	"codeberg.org/mutker/bmcfanctl/internal/pid"
	"codeberg.org/mutker/bmcfanctl/internal/policy"
	"codeberg.org/mutker/bmcfanctl/internal/readiness"
	"codeberg.org/mutker/bmcfanctl/internal/telemetry"
)

// Set at build time via ldflags.
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	if cfg.MCP {
		// stdout carries the MCP protocol
		logger.InitWithWriter(os.Stderr, level, logger.IsService())
	} else {
		logger.Init(level, logger.IsService())
	}
	logger.Debug().Msg("Config loaded")

	if err := pid.Write(cfg.Host); err != nil {
		var coded errors.Error
		if errors.As(err, &coded) {
			logger.FatalWithCode(coded).Msg("Failed to acquire pid file")
		}
		logger.Fatal().Err(err).Msg("Failed to acquire pid file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go handleSignals(cancel)

	err = run(ctx, cfg)
	cancel()

	if rmErr := pid.Remove(cfg.Host); rmErr != nil {
		logger.Warn().Err(rmErr).Msg("Failed to remove pid file")
	}
	if err != nil {
		logger.Error().Err(err).Msg("Daemon failed")
		os.Exit(1)
	}
	logger.Info().Msg("Exiting...")
}

func run(ctx context.Context, cfg *config.Config) error {
	ipmiLog := logger.WithComponent("ipmi")
	client := ipmi.NewClient(ipmi.NewExecRunner(ipmi.Options{
		Path:      cfg.IPMITool,
		Host:      cfg.Host,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Interface: cfg.Interface,
		Timeout:   cfg.CommandTimeout,
	}, ipmiLog), ipmiLog)

	store := policy.Open(cfg.PolicyFile, policy.Default(cfg.DefaultPercent), logger.WithComponent("policy"))

	journalCfg := journal.DefaultConfig()
	journalCfg.Enabled = cfg.Journal
	journalCfg.DBPath = cfg.JournalDB
	rec, err := journal.NewService(journalCfg, logger.WithComponent("journal"))
	if err != nil {
		return err
	}
	defer func() {
		if err := rec.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close journal")
		}
	}()

	broker := notify.NewBroker()
	notifyLog := logger.WithComponent("notify")
	go notify.Consume(ctx, broker.Subscribe("log"), func(ev *notify.Event) {
		notifyLog.Info().Str("kind", string(ev.Kind)).Msg(ev.String())
	})

	d := daemon.New(client, store, broker, rec, daemon.Config{
		Readiness: readiness.Config{
			BackoffMin:         cfg.ProbeBackoffMin,
			BackoffMax:         cfg.ProbeBackoffMax,
			SensorRetryDelay:   cfg.SensorRetryDelay,
			ReadyCheckInterval: cfg.ReadyCheckInterval,
		},
		SettleDelay:       cfg.SettleDelay,
		NotifyDelta:       cfg.NotifyDelta,
		ReapplyInterval:   cfg.ReapplyInterval,
		PollInterval:      cfg.PollInterval,
		RestoreAutoOnExit: cfg.RestoreAutoOnExit,
	}, logger.WithComponent("daemon"))

	op := operator.New(store, d.Status(), d, logger.WithComponent("operator"),
		operator.WithAuthorizer(operator.NewAllowlist(cfg.Authorized)),
		operator.WithPublisher(broker),
		operator.WithJournal(rec),
		operator.WithModeReader(client),
	)

	if cfg.MetricsAddr != "" {
		metricsLog := logger.WithComponent("telemetry")
		go func() {
			if err := telemetry.Serve(ctx, cfg.MetricsAddr, metricsLog); err != nil {
				metricsLog.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	if cfg.MCP {
		mcpLog := logger.WithComponent("mcp")
		go func() {
			s := mcptools.NewServer(op, broker, version)
			if err := mcptools.Serve(ctx, s, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
				mcpLog.Warn().Err(err).Msg("MCP server stopped")
			}
		}()
	}

	host := cfg.Host
	if host == "" {
		host = "local"
	}
	logger.Info().
		Str("version", version).
		Str("host", host).
		Str("policy", store.Load().String()).
		Msg("Starting bmcfanctl")

	return d.Run(ctx)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
