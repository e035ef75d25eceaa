package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/sdpower/ccmonitor-go/internal/loader"
	"github.com/sdpower/ccmonitor-go/internal/output"
	"github.com/sdpower/ccmonitor-go/internal/types"
	"github.com/spf13/cobra"
)

func NewStatusCommand(global *globalFlags) *cobra.Command {
	var (
		format  string
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the current usage snapshot once",
		Long: `Load the whole event feed, compute one snapshot and print it. The default
format is a table on a terminal and the state file JSON document otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := global.loadConfig(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), cfg, nil, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := loader.New(a.logger).LoadFromPath(cmd.Context(), cfg.Feed.Path)
			if err != nil && !errors.Is(err, types.ErrDataNotFound) && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to load usage data: %w", err)
			}
			a.engine.Ingest(events)

			out := cmd.OutOrStdout()
			formatter := output.NewFormatter(output.FormatterOptions{
				Format:   resolveFormat(format, out),
				NoColor:  noColor || !isTerminal(out),
				Location: time.Local,
			})

			snap, err := a.engine.Tick(cmd.Context(), time.Now())
			if errors.Is(err, types.ErrNoActiveSession) {
				fmt.Fprintln(cmd.ErrOrStderr(), "No active session.")
				return nil
			}
			if err != nil {
				return err
			}

			text, err := formatter.FormatSnapshot(snap)
			if err != nil {
				return fmt.Errorf("failed to format snapshot: %w", err)
			}
			fmt.Fprint(out, text)
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "auto", "Output format (auto, table, json)")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	return cmd
}

func resolveFormat(format string, out io.Writer) string {
	if format != "auto" {
		return format
	}
	if isTerminal(out) {
		return "table"
	}
	return "json"
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
