package monitor

import (
	"sync"
	"time"

	"github.com/evandepol/homewatch/types"
)

// defaultBufferSize caps the rolling change buffer.
const defaultBufferSize = 1000

// Buffer is a bounded rolling window of recent state changes. Oldest entries
// fall off when the cap is reached.
type Buffer struct {
	mu      sync.RWMutex
	changes []types.StateChange
	max     int
}

// NewBuffer creates a buffer with the given capacity, or the default when
// max is not positive.
func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = defaultBufferSize
	}
	return &Buffer{max: max}
}

// Add appends changes, evicting the oldest past capacity.
func (b *Buffer) Add(changes ...types.StateChange) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.changes = append(b.changes, changes...)
	if len(b.changes) > b.max {
		b.changes = b.changes[len(b.changes)-b.max:]
	}
}

// Recent returns changes newer than the window, oldest first.
func (b *Buffer) Recent(window time.Duration) []types.StateChange {
	b.mu.RLock()
	defer b.mu.RUnlock()

	cutoff := time.Now().Add(-window)
	for i, change := range b.changes {
		if change.ChangedAt.After(cutoff) {
			out := make([]types.StateChange, len(b.changes)-i)
			copy(out, b.changes[i:])
			return out
		}
	}
	return nil
}

// Len returns the current buffer population.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.changes)
}
