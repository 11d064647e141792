package slot

import (
	"fmt"
	"sort"
	"sync"
)

// Limits bounds registry growth. Zero means unlimited.
type Limits struct {
	MaxSlots    int
	MaxChannels int
}

// Registry stores slots by device minor.
type Registry struct {
	limits Limits

	mu    sync.RWMutex
	slots map[uint32]*Slot
}

// NewRegistry creates an empty registry.
func NewRegistry(limits Limits) *Registry {
	return &Registry{
		limits: limits,
		slots:  make(map[uint32]*Slot),
	}
}

// Lookup returns the slot for minor, or nil when it was never opened.
func (r *Registry) Lookup(minor uint32) *Slot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[minor]
}

// GetOrCreate returns the slot for minor, registering an empty one on miss.
func (r *Registry) GetOrCreate(minor uint32) (*Slot, error) {
	if s := r.Lookup(minor); s != nil {
		return s, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.slots[minor]; ok {
		return s, nil
	}
	if r.limits.MaxSlots > 0 && len(r.slots) >= r.limits.MaxSlots {
		return nil, fmt.Errorf("%w: registry holds %d slots", ErrNoMemory, len(r.slots))
	}
	s := newSlot(minor, r.limits.MaxChannels)
	r.slots[minor] = s
	return s, nil
}

// SlotInfo describes one slot and its channels.
type SlotInfo struct {
	Minor    uint32        `json:"minor"`
	Channels []ChannelInfo `json:"channels"`
}

// Snapshot returns every slot ordered by minor.
func (r *Registry) Snapshot() []SlotInfo {
	r.mu.RLock()
	slots := make([]*Slot, 0, len(r.slots))
	for _, s := range r.slots {
		slots = append(slots, s)
	}
	r.mu.RUnlock()

	sort.Slice(slots, func(i, j int) bool {
		return slots[i].minor < slots[j].minor
	})
	out := make([]SlotInfo, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotInfo{Minor: s.minor, Channels: s.Channels()})
	}
	return out
}

// Counts returns the number of slots and channels currently registered.
func (r *Registry) Counts() (slots, channels int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.slots {
		channels += s.ChannelCount()
	}
	return len(r.slots), channels
}

// Teardown frees every slot and every channel it owns. Handles that are
// still open afterwards see their slot as unknown.
func (r *Registry) Teardown() (slots, channels int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for minor, s := range r.slots {
		channels += s.release()
		delete(r.slots, minor)
		slots++
	}
	return slots, channels
}
