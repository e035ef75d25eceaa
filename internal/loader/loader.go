// Package loader reads the parsed usage-event feed (JSON Lines) that the
// engine consumes.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sdpower/ccmonitor-go/internal/pricing"
	"github.com/sdpower/ccmonitor-go/internal/types"
)

// feedRecord is one line of the event feed.
type feedRecord struct {
	ID        string          `json:"id,omitempty"`
	Timestamp json.RawMessage `json:"timestamp"`
	Messages  *int            `json:"messages,omitempty"`
	Tokens    *int            `json:"tokens,omitempty"`
	Cost      *float64        `json:"cost,omitempty"`
	Model     string          `json:"model,omitempty"`
	types.TokenCounts
}

type Loader struct {
	maxWorkers int
	logger     zerolog.Logger
	prices     *pricing.Table

	dedupeMu sync.Mutex
	seen     map[string]bool
}

func New(logger zerolog.Logger) *Loader {
	return &Loader{
		maxWorkers: 10,
		logger:     logger,
		prices:     pricing.NewTable(),
		seen:       make(map[string]bool),
	}
}

// LoadFromPath reads a feed file, or every *.jsonl file below a directory,
// and returns the events ordered by timestamp.
func (l *Loader) LoadFromPath(ctx context.Context, path string) ([]types.UsageEvent, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, types.LoaderError{Path: path, Err: err}
	}

	paths, err := FindFeedFiles(path)
	if err != nil {
		return nil, fmt.Errorf("failed to find feed files: %w", err)
	}
	l.logger.Debug().Int("files", len(paths)).Str("path", path).Msg("found feed files")

	if len(paths) == 0 {
		return nil, types.ErrDataNotFound
	}

	return l.LoadParallel(ctx, paths)
}

// LoadParallel reads every path from the start with a bounded worker pool.
func (l *Loader) LoadParallel(ctx context.Context, paths []string) ([]types.UsageEvent, error) {
	events, _, err := l.loadFiles(ctx, paths, nil)
	return events, err
}

type fileResult struct {
	path   string
	events []types.UsageEvent
	offset int64
	err    error
}

// loadFiles reads each path from its offset and reports the offset just past
// the last complete line consumed.
func (l *Loader) loadFiles(ctx context.Context, paths []string, offsets map[string]int64) ([]types.UsageEvent, map[string]int64, error) {
	jobs := make(chan string, len(paths))
	results := make(chan fileResult, len(paths))

	var wg sync.WaitGroup
	workers := l.maxWorkers
	if workers > len(paths) {
		workers = len(paths)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
					results <- l.loadFile(path, offsets[path], offsets == nil)
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case <-ctx.Done():
				return
			case jobs <- path:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []types.UsageEvent
	var errs []error
	newOffsets := make(map[string]int64, len(paths))

	for res := range results {
		if res.err != nil {
			errs = append(errs, res.err)
			continue
		}
		all = append(all, res.events...)
		newOffsets[res.path] = res.offset
	}

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if len(errs) > 0 && len(newOffsets) == 0 {
		return nil, nil, fmt.Errorf("failed to load any files: %w", errors.Join(errs...))
	}
	for _, err := range errs {
		l.logger.Warn().Err(err).Msg("skipping unreadable feed file")
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp.Before(all[j].Timestamp)
	})
	return all, newOffsets, nil
}

// loadFile parses complete lines from offset. With final set, an
// unterminated last line is parsed too, for one-shot reads.
func (l *Loader) loadFile(path string, offset int64, final bool) fileResult {
	res := fileResult{path: path, offset: offset}

	file, err := os.Open(path)
	if err != nil {
		res.err = types.LoaderError{Path: path, Err: err}
		return res
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		res.err = types.LoaderError{Path: path, Err: err}
		return res
	}
	if info.Size() < offset {
		// Truncated or replaced: start over.
		l.logger.Debug().Str("path", path).Msg("feed file shrank, rereading from start")
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		res.err = types.LoaderError{Path: path, Err: err}
		return res
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	lineNum := 0
	parseErrors := 0
	var firstErr error

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Otherwise a trailing line without newline is still being written.
				if final && len(bytes.TrimSpace(line)) > 0 {
					offset += int64(len(line))
					lineNum++
					if ev, ok, perr := l.parseLine(line); perr == nil && ok {
						res.events = append(res.events, ev)
					}
				}
				break
			}
			res.err = types.LoaderError{Path: path, Err: err}
			return res
		}
		offset += int64(len(line))
		lineNum++

		ev, ok, perr := l.parseLine(line)
		if perr != nil {
			parseErrors++
			if firstErr == nil {
				firstErr = types.ParseError{Path: path, Line: lineNum, Err: perr}
			}
			continue
		}
		if ok {
			res.events = append(res.events, ev)
		}
	}

	if parseErrors > 0 {
		l.logger.Debug().
			Str("file", filepath.Base(path)).
			Int("count", parseErrors).
			AnErr("first", firstErr).
			Msg("feed file had parse errors")
	}

	res.offset = offset
	return res
}

// parseLine decodes one feed line. ok is false for blank lines and duplicates.
func (l *Loader) parseLine(line []byte) (types.UsageEvent, bool, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return types.UsageEvent{}, false, nil
	}

	var rec feedRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		return types.UsageEvent{}, false, fmt.Errorf("%w: %v", types.ErrInvalidFormat, err)
	}

	ts, err := parseTimestamp(rec.Timestamp)
	if err != nil {
		return types.UsageEvent{}, false, err
	}

	if rec.ID != "" && !l.markSeen(rec.ID) {
		return types.UsageEvent{}, false, nil
	}

	ev := types.UsageEvent{
		Timestamp: ts,
		Messages:  1,
		Tokens:    rec.TokenCounts.GetTotal(),
	}
	switch {
	case rec.Cost != nil:
		ev.Cost = *rec.Cost
	case rec.Model != "":
		// Records without a cost are priced from their token categories.
		if cost, ok := l.prices.Cost(rec.Model, rec.TokenCounts); ok {
			ev.Cost = cost
		} else {
			l.logger.Debug().Str("model", rec.Model).Msg("no price for model, cost left at zero")
		}
	}
	if rec.Messages != nil {
		ev.Messages = *rec.Messages
	}
	if rec.Tokens != nil {
		ev.Tokens = *rec.Tokens
	}
	return ev, true, nil
}

func (l *Loader) markSeen(id string) bool {
	l.dedupeMu.Lock()
	defer l.dedupeMu.Unlock()
	if l.seen[id] {
		return false
	}
	l.seen[id] = true
	return true
}

// parseTimestamp accepts RFC 3339 strings or Unix seconds.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, fmt.Errorf("%w: missing timestamp", types.ErrInvalidFormat)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		ts, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: timestamp %q", types.ErrInvalidFormat, s)
		}
		return ts.UTC(), nil
	}

	secs, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: timestamp %s", types.ErrInvalidFormat, raw)
	}
	return time.Unix(0, int64(secs*float64(time.Second))).UTC(), nil
}

// FindFeedFiles returns path itself when it is a file, or every *.jsonl
// file below it when it is a directory.
func FindFeedFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Continue walking, ignore inaccessible files
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(p), ".jsonl") {
			files = append(files, p)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
