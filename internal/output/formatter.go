package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/sdpower/ccmonitor-go/internal/types"
)

// Usage thresholds for colouring percentages
const (
	WarningPercent  = 80.0
	CriticalPercent = 95.0
)

type Formatter struct {
	options FormatterOptions
}

type FormatterOptions struct {
	Format   string // "table" or "json"
	NoColor  bool
	Location *time.Location // zone for lastUpdate in JSON output
}

func NewFormatter(opts FormatterOptions) *Formatter {
	if opts.Format == "" {
		opts.Format = "table"
	}
	return &Formatter{options: opts}
}

// FormatSnapshot renders snap as the JSON document or a status table.
func (f *Formatter) FormatSnapshot(snap *types.UsageSnapshot) (string, error) {
	if snap == nil {
		return "No active session.\n", nil
	}

	switch f.options.Format {
	case "json":
		data, err := MarshalDocument(snap, f.options.Location)
		if err != nil {
			return "", err
		}
		return string(data), nil
	case "table":
		return f.formatTable(snap), nil
	}
	return "", fmt.Errorf("%w: output format %q", types.ErrInvalidFormat, f.options.Format)
}

func (f *Formatter) formatTable(snap *types.UsageSnapshot) string {
	var buf bytes.Buffer

	table := tablewriter.NewTable(&buf,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.On}},
		})),
		tablewriter.WithConfig(tablewriter.Config{
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignRight},
			},
		}),
		tablewriter.WithHeaderAutoFormat(tw.Off), // Disable auto uppercase
	)

	table.Header([]string{"Metric", "Used", "Limit", "Usage"})
	table.Append([]string{
		"Messages",
		formatNumberWithCommas(int(snap.Messages.Used)),
		formatIntLimit(snap.Messages),
		f.formatPercent(snap.Messages),
	})
	table.Append([]string{
		"Tokens",
		formatNumberWithCommas(int(snap.Tokens.Used)),
		formatIntLimit(snap.Tokens),
		f.formatPercent(snap.Tokens),
	})
	table.Append([]string{
		"Cost",
		fmt.Sprintf("$%.2f", snap.Cost.Used),
		formatCostLimit(snap.Cost),
		f.formatPercent(snap.Cost),
	})
	table.Render()

	var out strings.Builder
	if snap.Plan != "" {
		out.WriteString(fmt.Sprintf("Plan: %s\n", snap.Plan))
	}
	out.WriteString(buf.String())
	out.WriteString(fmt.Sprintf("Burn rate: %s tokens/min\n", formatNumberWithCommas(int(snap.BurnRate.TokensPerMinute))))
	out.WriteString(fmt.Sprintf("Resets at %s (in %s)\n",
		snap.Reset.FormattedTime,
		formatDuration(time.Duration(snap.Reset.SecondsRemaining)*time.Second)))
	return out.String()
}

func (f *Formatter) formatPercent(m types.UsageMetric) string {
	if !m.Known() {
		return "-"
	}
	text := fmt.Sprintf("%.1f%%", m.Percent)
	if f.options.NoColor {
		return text
	}

	color := "\033[32m" // green
	if m.Percent > WarningPercent {
		color = "\033[33m" // yellow
	}
	if m.Percent > CriticalPercent {
		color = "\033[31m" // red
	}
	return color + text + "\033[0m"
}

func formatIntLimit(m types.UsageMetric) string {
	if !m.Known() {
		return "unknown"
	}
	return formatNumberWithCommas(int(m.Limit))
}

func formatCostLimit(m types.UsageMetric) string {
	if !m.Known() {
		return "unknown"
	}
	return fmt.Sprintf("$%.2f", m.Limit)
}

// formatNumberWithCommas formats a number with comma separators
func formatNumberWithCommas(n int) string {
	if n < 0 {
		return "-" + formatNumberWithCommas(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return formatNumberWithCommas(n/1000) + "," + fmt.Sprintf("%03d", n%1000)
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
