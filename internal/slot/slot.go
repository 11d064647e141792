package slot

import (
	"fmt"
	"sort"
	"sync"
)

// Slot owns the channels of one device minor.
type Slot struct {
	minor       uint32
	maxChannels int

	mu       sync.Mutex
	channels map[uint32]*Channel
}

func newSlot(minor uint32, maxChannels int) *Slot {
	return &Slot{
		minor:       minor,
		maxChannels: maxChannels,
		channels:    make(map[uint32]*Channel),
	}
}

// Minor returns the device minor this slot belongs to.
func (s *Slot) Minor() uint32 {
	return s.minor
}

// Find returns the channel with id, or nil when it has never been created.
func (s *Slot) Find(id uint32) *Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channels[id]
}

// GetOrCreate returns the channel with id, creating an empty one on miss.
func (s *Slot) GetOrCreate(id uint32) (*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(id)
}

func (s *Slot) getOrCreateLocked(id uint32) (*Channel, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: channel id 0", ErrInvalidArgument)
	}
	if ch, ok := s.channels[id]; ok {
		return ch, nil
	}
	if s.maxChannels > 0 && len(s.channels) >= s.maxChannels {
		return nil, fmt.Errorf("%w: slot %d holds %d channels", ErrNoMemory, s.minor, len(s.channels))
	}
	ch := newChannel(id)
	s.channels[id] = ch
	return ch, nil
}

// Store commits msg to channel id, creating the channel if needed. The
// message and its length change together or not at all.
func (s *Slot) Store(id uint32, msg []byte) (int, error) {
	if len(msg) == 0 || len(msg) > MaxMessageLen {
		return 0, fmt.Errorf("%w: length %d", ErrMessageSize, len(msg))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, err := s.getOrCreateLocked(id)
	if err != nil {
		return 0, err
	}
	ch.store(msg)
	return ch.length, nil
}

// Load copies the message of channel id into dst. It never copies a partial
// message: dst must hold the whole message or ErrNoSpace is returned.
func (s *Slot) Load(id uint32, dst []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[id]
	if !ok || ch.length == 0 {
		return 0, fmt.Errorf("%w: slot %d channel %d", ErrWouldBlock, s.minor, id)
	}
	if len(dst) < ch.length {
		return 0, fmt.Errorf("%w: capacity %d message %d", ErrNoSpace, len(dst), ch.length)
	}
	return ch.load(dst), nil
}

// ChannelInfo describes one channel without its content.
type ChannelInfo struct {
	ID     uint32 `json:"id"`
	Length int    `json:"length"`
}

// Channels returns the channels ordered by id.
func (s *Slot) Channels() []ChannelInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChannelInfo, 0, len(s.channels))
	for _, ch := range s.channels {
		out = append(out, ChannelInfo{ID: ch.id, Length: ch.length})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// ChannelCount returns the number of channels created in this slot.
func (s *Slot) ChannelCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.channels)
}

func (s *Slot) release() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.channels)
	clear(s.channels)
	return n
}
