package loader

import (
	"context"
	"fmt"
	"os"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sdpower/ccmonitor-go/internal/types"
)

// Tail incrementally reads the feed, returning only lines appended since the
// previous Drain.
type Tail struct {
	loader *Loader
	root   string

	mu      sync.Mutex
	offsets map[string]int64

	watcher *fsnotify.Watcher
	changed chan struct{}
	stopCh  chan struct{}
}

func NewTail(loader *Loader, root string) *Tail {
	return &Tail{
		loader:  loader,
		root:    root,
		offsets: make(map[string]int64),
		changed: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

// Drain returns the complete events appended since the last call, ordered
// by timestamp. A missing feed yields no events rather than an error so the
// monitor can start before the first event is written.
func (t *Tail) Drain(ctx context.Context) ([]types.UsageEvent, error) {
	paths, err := FindFeedFiles(t.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find feed files: %w", err)
	}
	if len(paths) == 0 {
		return nil, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	events, offsets, err := t.loader.loadFiles(ctx, paths, t.offsets)
	if err != nil {
		return nil, err
	}
	for path, off := range offsets {
		t.offsets[path] = off
	}
	return events, nil
}

// Watch starts an fsnotify watcher on the feed location. The returned
// channel receives a value (coalesced) whenever a feed file is written.
func (t *Tail) Watch() (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	t.watcher = watcher
	if info, statErr := os.Stat(t.root); statErr == nil && info.IsDir() {
		err = t.watchTree(t.root)
	} else {
		// Watch the directory (more reliable for writers that replace files)
		err = watcher.Add(filepath.Dir(t.root))
	}
	if err != nil {
		watcher.Close()
		t.watcher = nil
		return nil, fmt.Errorf("watch directory: %w", err)
	}

	go t.watchLoop()
	return t.changed, nil
}

// Close stops the watcher, if any.
func (t *Tail) Close() error {
	select {
	case <-t.stopCh:
		return nil
	default:
		close(t.stopCh)
	}
	if t.watcher != nil {
		return t.watcher.Close()
	}
	return nil
}

func (t *Tail) watchLoop() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Create != 0 && t.isFeedDir(event.Name) {
				if err := t.watchTree(event.Name); err != nil {
					t.loader.logger.Warn().Err(err).Str("dir", event.Name).Msg("cannot watch new feed directory")
				}
				continue
			}
			if !t.relevant(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				t.loader.logger.Debug().
					Str("event", event.Op.String()).
					Str("file", event.Name).
					Msg("feed changed")
				select {
				case t.changed <- struct{}{}:
				default:
				}
			}

		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.loader.logger.Error().Err(err).Msg("feed watcher error")

		case <-t.stopCh:
			return
		}
	}
}

func (t *Tail) relevant(name string) bool {
	if info, err := os.Stat(t.root); err == nil && !info.IsDir() {
		return filepath.Clean(name) == filepath.Clean(t.root)
	}
	return strings.EqualFold(filepath.Ext(name), ".jsonl")
}

// watchTree adds dir and every directory below it to the watcher.
func (t *Tail) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return t.watcher.Add(path)
	})
}

func (t *Tail) isFeedDir(name string) bool {
	info, err := os.Stat(name)
	if err != nil || !info.IsDir() {
		return false
	}
	root, err := os.Stat(t.root)
	return err == nil && root.IsDir()
}
