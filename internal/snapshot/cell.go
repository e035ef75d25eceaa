package snapshot

import (
	"sync/atomic"

	"github.com/sdpower/ccmonitor-go/internal/types"
)

// Cell is the single-writer slot holding the current snapshot.
// Readers always observe either the previous or the next complete snapshot.
type Cell struct {
	current atomic.Pointer[types.UsageSnapshot]
}

func NewCell() *Cell {
	return &Cell{}
}

// Load returns the latest published snapshot, or nil if none was published.
// The returned value must be treated as read-only.
func (c *Cell) Load() *types.UsageSnapshot {
	return c.current.Load()
}

// Store replaces the current snapshot.
func (c *Cell) Store(s *types.UsageSnapshot) {
	c.current.Store(s)
}
