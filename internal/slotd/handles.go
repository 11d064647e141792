package slotd

import (
	"fmt"
	"strings"
	"sync"

	"github.com/danmuck/msgslot/internal/device"
	"github.com/danmuck/msgslot/internal/slot"
)

// handleTable holds the device handles opened over one connection.
type handleTable struct {
	mu    sync.RWMutex
	items map[string]*device.File
}

func newHandleTable() *handleTable {
	return &handleTable{
		items: make(map[string]*device.File),
	}
}

func (h *handleTable) put(f *device.File) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items[f.ID()] = f
}

func (h *handleTable) get(id string) (*device.File, error) {
	key := strings.TrimSpace(id)
	h.mu.RLock()
	defer h.mu.RUnlock()
	f, ok := h.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle %q", slot.ErrBadHandle, key)
	}
	return f, nil
}

func (h *handleTable) remove(id string) (*device.File, error) {
	key := strings.TrimSpace(id)
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: unknown handle %q", slot.ErrBadHandle, key)
	}
	delete(h.items, key)
	return f, nil
}

func (h *handleTable) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// closeAll releases every handle and returns how many were open.
func (h *handleTable) closeAll() int {
	h.mu.Lock()
	items := h.items
	h.items = make(map[string]*device.File)
	h.mu.Unlock()
	for _, f := range items {
		_ = f.Close()
	}
	return len(items)
}
