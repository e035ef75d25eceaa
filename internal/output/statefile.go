package output

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sdpower/ccmonitor-go/internal/types"
)

const (
	// StateFileName is the document readers poll inside the report directory.
	StateFileName = "current.json"
	// ReportDirEnv names the environment variable that selects the report directory.
	ReportDirEnv = "CLAUDE_MONITOR_REPORT_DIR"

	// ResetTimestampLayout renders UTC as "+00:00" rather than "Z".
	ResetTimestampLayout = "2006-01-02T15:04:05-07:00"
	LastUpdateLayout     = "2006-01-02T15:04:05.000000-07:00"
)

// Document is the JSON shape of the state file. Field names and types are a
// compatibility contract with external readers.
type Document struct {
	Messages   IntMetric   `json:"messages"`
	Tokens     IntMetric   `json:"tokens"`
	Cost       FloatMetric `json:"cost"`
	Reset      ResetDoc    `json:"reset"`
	BurnRate   BurnRateDoc `json:"burnRate"`
	LastUpdate string      `json:"lastUpdate"`
}

type IntMetric struct {
	Used    int     `json:"used"`
	Limit   int     `json:"limit"`
	Percent float64 `json:"percent"`
}

type FloatMetric struct {
	Used    float64 `json:"used"`
	Limit   float64 `json:"limit"`
	Percent float64 `json:"percent"`
}

type ResetDoc struct {
	Timestamp        string `json:"timestamp"`
	SecondsRemaining int64  `json:"secondsRemaining"`
	FormattedTime    string `json:"formattedTime"`
}

type BurnRateDoc struct {
	Tokens   float64 `json:"tokens"`
	Messages int     `json:"messages"`
}

// NewDocument converts a snapshot into the state file shape. lastUpdate is
// rendered in local; percentages and burn rate are rounded to 2 decimals.
func NewDocument(snap *types.UsageSnapshot, local *time.Location) Document {
	if local == nil {
		local = time.Local
	}
	return Document{
		Messages: IntMetric{
			Used:    int(snap.Messages.Used),
			Limit:   int(snap.Messages.Limit),
			Percent: round2(snap.Messages.Percent),
		},
		Tokens: IntMetric{
			Used:    int(snap.Tokens.Used),
			Limit:   int(snap.Tokens.Limit),
			Percent: round2(snap.Tokens.Percent),
		},
		Cost: FloatMetric{
			Used:    snap.Cost.Used,
			Limit:   snap.Cost.Limit,
			Percent: round2(snap.Cost.Percent),
		},
		Reset: ResetDoc{
			Timestamp:        snap.Reset.Timestamp.UTC().Format(ResetTimestampLayout),
			SecondsRemaining: snap.Reset.SecondsRemaining,
			FormattedTime:    snap.Reset.FormattedTime,
		},
		BurnRate: BurnRateDoc{
			Tokens:   round2(snap.BurnRate.TokensPerMinute),
			Messages: snap.BurnRate.MessagesPerMinute,
		},
		LastUpdate: snap.GeneratedAt.In(local).Format(LastUpdateLayout),
	}
}

// MarshalDocument returns the indented JSON document for snap.
func MarshalDocument(snap *types.UsageSnapshot, local *time.Location) ([]byte, error) {
	data, err := json.MarshalIndent(NewDocument(snap, local), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal state document: %w", err)
	}
	return append(data, '\n'), nil
}

func round2(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

// StateFileWriter publishes snapshots to <dir>/current.json.
type StateFileWriter struct {
	dir   string
	local *time.Location
}

// NewStateFileWriter returns a writer for dir; lastUpdate uses time.Local.
func NewStateFileWriter(dir string) *StateFileWriter {
	return &StateFileWriter{dir: dir, local: time.Local}
}

// ReportDirFromEnv returns the report directory set in the environment, if any.
func ReportDirFromEnv() string {
	return os.Getenv(ReportDirEnv)
}

// WithLocation overrides the zone lastUpdate is rendered in.
func (w *StateFileWriter) WithLocation(loc *time.Location) *StateFileWriter {
	w.local = loc
	return w
}

// Path returns the full state file path.
func (w *StateFileWriter) Path() string {
	return filepath.Join(w.dir, StateFileName)
}

// Consume writes snap; it satisfies the engine's sink contract.
func (w *StateFileWriter) Consume(snap *types.UsageSnapshot) error {
	return w.Write(snap)
}

// Write replaces the state file atomically. A nil snapshot writes nothing.
func (w *StateFileWriter) Write(snap *types.UsageSnapshot) error {
	if w.dir == "" {
		return types.ErrStateFileDisabled
	}
	if snap == nil {
		return nil
	}

	data, err := MarshalDocument(snap, w.local)
	if err != nil {
		return err
	}
	if err := WriteFileAtomic(w.Path(), data, 0o644); err != nil {
		return fmt.Errorf("write state file %s: %w", w.Path(), err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file next to path and renames it
// into place. The temp file is removed on every failure path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
