package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sdpower/ccmonitor-go/internal/loader"
	"github.com/sdpower/ccmonitor-go/internal/metrics"
	"github.com/sdpower/ccmonitor-go/internal/monitor"
	"github.com/sdpower/ccmonitor-go/internal/output"
	"github.com/spf13/cobra"
)

func NewMonitorCommand(global *globalFlags) *cobra.Command {
	var (
		refresh     int
		reportDir   string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Continuously publish usage snapshots",
		Long: `Tail the event feed and publish a usage snapshot every refresh interval
and whenever the feed changes. Snapshots go to <report-dir>/current.json and,
when --metrics-addr is set, to /metrics and /snapshot over HTTP.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("refresh") {
				cfg.RefreshIntervalSeconds = refresh
			}
			if cmd.Flags().Changed("report-dir") {
				cfg.StateFile.Dir = reportDir
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			collector := metrics.NewWithRegistry(reg)

			a, err := newApp(ctx, cfg, collector, cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("failed to start monitor: %w", err)
			}
			defer a.Close()
			logger := a.logger

			a.engine.AddSink("metrics", collector)
			if cfg.StateFile.Dir != "" {
				if err := os.MkdirAll(cfg.StateFile.Dir, 0o755); err != nil {
					return fmt.Errorf("failed to create report directory: %w", err)
				}
				writer := output.NewStateFileWriter(cfg.StateFile.Dir)
				a.engine.AddSink("state_file", writer)
				logger.Info().Str("path", writer.Path()).Msg("writing state file")
			}

			tail := loader.NewTail(loader.New(logger), cfg.Feed.Path)
			defer tail.Close()
			changes, err := tail.Watch()
			if err != nil {
				logger.Warn().Err(err).Msg("feed watch unavailable, polling only")
			}

			serverErr := make(chan error, 1)
			if cfg.Metrics.Addr != "" {
				server := metrics.NewServer(metrics.ServerOptions{
					Addr:     cfg.Metrics.Addr,
					Cell:     a.cell,
					Gatherer: reg,
					Location: time.Local,
					Logger:   logger,
				})
				go func() { serverErr <- server.Run(ctx) }()
			}

			runner := monitor.NewRunner(a.engine, tail, monitor.RunnerOptions{
				Interval: cfg.RefreshInterval(),
				Changes:  changes,
				Logger:   logger,
			})

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			serverFailed := make(chan error, 1)
			go func() {
				select {
				case err := <-serverErr:
					if err != nil {
						logger.Error().Err(err).Msg("metrics server stopped")
						serverFailed <- err
						cancel()
					}
				case <-runCtx.Done():
				}
			}()

			if err := runner.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			select {
			case err := <-serverFailed:
				return fmt.Errorf("metrics server: %w", err)
			default:
			}
			logger.Info().Msg("monitor stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&refresh, "refresh", 0, "Refresh interval in seconds (default 10)")
	cmd.Flags().StringVar(&reportDir, "report-dir", "", "Directory for current.json (default $"+output.ReportDirEnv+")")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve /metrics and /snapshot on this address")

	return cmd
}
