package slotd

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/msgslot/internal/slot"
)

// DeviceEntry is one path served by the daemon.
type DeviceEntry struct {
	Path  string `json:"path"`
	Minor uint32 `json:"minor"`
}

// DeviceTable resolves device paths to minors.
type DeviceTable struct {
	mu      sync.RWMutex
	entries map[string]uint32
}

func NewDeviceTable(entries map[string]uint32) *DeviceTable {
	t := &DeviceTable{}
	t.Replace(entries)
	return t
}

// Resolve returns the minor bound to path.
func (t *DeviceTable) Resolve(path string) (uint32, error) {
	key := strings.TrimSpace(path)
	t.mu.RLock()
	defer t.mu.RUnlock()
	minor, ok := t.entries[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", slot.ErrNoDevice, key)
	}
	return minor, nil
}

// Replace swaps in a new path table. Open handles keep their minor.
func (t *DeviceTable) Replace(entries map[string]uint32) {
	next := make(map[string]uint32, len(entries))
	for path, minor := range entries {
		next[strings.TrimSpace(path)] = minor
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = next
}

// List returns the table sorted by path.
func (t *DeviceTable) List() []DeviceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]DeviceEntry, 0, len(t.entries))
	for path, minor := range t.entries {
		out = append(out, DeviceEntry{Path: path, Minor: minor})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Path < out[j].Path
	})
	return out
}

func (t *DeviceTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
