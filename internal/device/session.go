package device

import (
	"fmt"

	"github.com/danmuck/msgslot/internal/slot"
)

// Session is the private state of one open handle. The zero value is the
// state every handle starts in: no channel selected, censorship off.
type Session struct {
	channel uint32
	censor  bool
}

// Channel returns the selected channel id, 0 when none is selected.
func (s Session) Channel() uint32 {
	return s.channel
}

// Configured reports whether a channel has been selected.
func (s Session) Configured() bool {
	return s.channel != 0
}

// Censored reports whether writes on this handle are censored.
func (s Session) Censored() bool {
	return s.censor
}

// SetChannel selects id. Selecting 0 fails and keeps the previous selection.
func (s *Session) SetChannel(id uint32) error {
	if id == 0 {
		return fmt.Errorf("%w: channel id must be non-zero", slot.ErrInvalidArgument)
	}
	s.channel = id
	return nil
}

// SetCensorship accepts exactly 0 or 1.
func (s *Session) SetCensorship(flag uint32) error {
	switch flag {
	case 0:
		s.censor = false
	case 1:
		s.censor = true
	default:
		return fmt.Errorf("%w: censorship flag %d", slot.ErrInvalidArgument, flag)
	}
	return nil
}
