package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sdpower/ccmonitor-go/internal/calculator"
	"github.com/sdpower/ccmonitor-go/internal/config"
	"github.com/sdpower/ccmonitor-go/internal/history"
	"github.com/sdpower/ccmonitor-go/internal/metrics"
	"github.com/sdpower/ccmonitor-go/internal/monitor"
	"github.com/sdpower/ccmonitor-go/internal/snapshot"
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand. Each one overrides the
// matching config value only when set explicitly; nothing is persisted.
type globalFlags struct {
	configPath  string
	plan        string
	timezone    string
	timeFormat  string
	feedPath    string
	historyPath string
	logLevel    string
	logFormat   string
}

func (g *globalFlags) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&g.configPath, "config", "", "Path to config file (default ~/.config/ccmonitor/config.yaml)")
	f.StringVarP(&g.plan, "plan", "p", "", "Plan: "+fmt.Sprint(calculator.PlanIDs()))
	f.StringVar(&g.timezone, "timezone", "", "IANA timezone for reset times")
	f.StringVar(&g.timeFormat, "time-format", "", "Clock style for reset times (12h, 24h)")
	f.StringVar(&g.feedPath, "feed", "", "Event feed file or directory of *.jsonl files")
	f.StringVar(&g.historyPath, "history-db", "", "SQLite database of closed session windows")
	f.StringVar(&g.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&g.logFormat, "log-format", "", "Log format (console, json)")
}

// loadConfig reads the config file and applies explicitly set flags.
func (g *globalFlags) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithFallback(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	changed := cmd.Flags().Changed
	if changed("plan") {
		cfg.Plan = g.plan
	}
	if changed("timezone") {
		cfg.DisplayTimezone = g.timezone
	}
	if changed("time-format") {
		cfg.TimeFormat = g.timeFormat
	}
	if changed("feed") {
		cfg.Feed.Path = g.feedPath
	}
	if changed("history-db") {
		cfg.History.Path = g.historyPath
	}
	if changed("log-level") {
		cfg.Logging.Level = g.logLevel
	}
	if changed("log-format") {
		cfg.Logging.Format = g.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app is the wired engine plus the resources the command must release.
type app struct {
	engine   *monitor.Engine
	cell     *snapshot.Cell
	location *time.Location
	history  *history.Store
	logger   zerolog.Logger
}

func (a *app) Close() error {
	if a.history != nil {
		return a.history.Close()
	}
	return nil
}

// newApp wires the engine from cfg. The history store, when configured,
// seeds the windower and archives every window that closes.
func newApp(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logOut io.Writer) (*app, error) {
	logger := config.NewLogger(cfg.Logging, logOut)

	plan, err := calculator.ParsePlan(cfg.Plan)
	if err != nil {
		return nil, err
	}
	format, err := calculator.ParseTimeFormat(cfg.TimeFormat)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Warn().Err(err).Msg("invalid display timezone, using UTC")
	}

	a := &app{cell: snapshot.NewCell(), location: loc, logger: logger}
	opts := monitor.Options{
		Plan:       plan,
		Windower:   cfg.WindowerOptions(),
		Location:   loc,
		TimeFormat: format,
		Cell:       a.cell,
		Metrics:    collector,
		Retention:  cfg.Retention(),
		Logger:     logger,
	}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, err
		}
		a.history = store
		opts.Archive = store
	}

	engine, err := monitor.NewEngine(opts)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.engine = engine

	if a.history != nil {
		windows, err := a.history.Load(ctx, time.Time{})
		if err != nil {
			a.Close()
			return nil, err
		}
		engine.Seed(windows)
		logger.Debug().Int("windows", len(windows)).Str("path", cfg.History.Path).Msg("seeded window history")
	}

	logger.Info().
		Str("plan", plan.ID()).
		Dur("window", cfg.WindowDuration()).
		Str("feed", cfg.Feed.Path).
		Msg("engine ready")
	return a, nil
}
