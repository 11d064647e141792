package device

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/danmuck/msgslot/internal/observability"
	"github.com/danmuck/msgslot/internal/slot"
	"github.com/rs/zerolog/log"
)

// File is one open handle on a message slot device.
type File struct {
	dev   *Device
	id    string
	minor uint32

	mu      sync.Mutex
	session Session
	closed  bool
}

var (
	_ io.Reader = (*File)(nil)
	_ io.Writer = (*File)(nil)
	_ io.Closer = (*File)(nil)
)

// ID returns the handle identifier.
func (f *File) ID() string {
	return f.id
}

// Minor returns the device minor the handle was opened on.
func (f *File) Minor() uint32 {
	return f.minor
}

// Dev returns the packed device number of the handle.
func (f *File) Dev() uint32 {
	return Mkdev(f.dev.major, f.minor)
}

// Session returns a copy of the handle's session state.
func (f *File) Session() Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session
}

// Ioctl applies a configuration command to the handle's session.
func (f *File) Ioctl(cmd uint32, arg uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.ioctlLocked(cmd, arg)
	f.record("ioctl", 0, err)
	if err != nil {
		log.Debug().
			Str("handle", f.id).
			Str("cmd", CommandName(cmd)).
			Uint64("arg", arg).
			Err(err).
			Msg("device ioctl rejected")
	}
	return err
}

func (f *File) ioctlLocked(cmd uint32, arg uint64) error {
	if f.closed {
		return fmt.Errorf("%w: handle %s closed", slot.ErrBadHandle, f.id)
	}
	// The argument is narrowed to an unsigned int like the kernel's cast.
	value := uint32(arg)
	switch cmd {
	case CmdSetChannel:
		return f.session.SetChannel(value)
	case CmdSetCensorship:
		return f.session.SetCensorship(value)
	default:
		return fmt.Errorf("%w: unknown ioctl command %#x", slot.ErrInvalidArgument, cmd)
	}
}

// Write stores p as the selected channel's message.
func (f *File) Write(p []byte) (int, error) {
	var src io.Reader
	if p != nil {
		src = bytes.NewReader(p)
	}
	return f.WriteFrom(src, len(p))
}

// WriteFrom stores exactly length bytes read from src as the selected
// channel's message. The bytes are staged before the channel is touched, so
// a short or failing src leaves the previous message in place.
func (f *File) WriteFrom(src io.Reader, length int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.writeLocked(src, length)
	f.record("write", n, err)
	return n, err
}

func (f *File) writeLocked(src io.Reader, length int) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("%w: handle %s closed", slot.ErrBadHandle, f.id)
	}
	if !f.session.Configured() {
		return 0, fmt.Errorf("%w: no channel selected", slot.ErrInvalidArgument)
	}
	if length <= 0 || length > slot.MaxMessageLen {
		return 0, fmt.Errorf("%w: length %d", slot.ErrMessageSize, length)
	}
	if src == nil {
		return 0, fmt.Errorf("%w: nil source buffer", slot.ErrInvalidArgument)
	}
	s := f.dev.registry.Lookup(f.minor)
	if s == nil {
		return 0, fmt.Errorf("%w: unknown slot %d", slot.ErrInvalidArgument, f.minor)
	}

	var staged [slot.MaxMessageLen]byte
	msg := staged[:length]
	if _, err := io.ReadFull(src, msg); err != nil {
		return 0, fmt.Errorf("%w: copy from caller: %v", slot.ErrFault, err)
	}
	if f.session.Censored() {
		slot.CensorMessage(msg)
	}
	n, err := s.Store(f.session.Channel(), msg)
	if err != nil {
		return 0, err
	}
	f.dev.syncRegistryGauges()
	log.Debug().
		Str("handle", f.id).
		Uint32("minor", f.minor).
		Uint32("channel", f.session.Channel()).
		Bool("censored", f.session.Censored()).
		Int("bytes", n).
		Msg("device write")
	return n, nil
}

// Read copies the selected channel's message into p. p must be able to hold
// the whole message; reads are never truncated.
func (f *File) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.readLocked(p)
	f.record("read", n, err)
	return n, err
}

// ReadTo delivers the selected channel's message to dst, provided capacity
// can hold it. A dst that does not accept every byte is a transfer fault.
func (f *File) ReadTo(dst io.Writer, capacity int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.readToLocked(dst, capacity)
	f.record("read", n, err)
	return n, err
}

func (f *File) readToLocked(dst io.Writer, capacity int) (int, error) {
	if dst == nil {
		capacity = -1
	}
	if capacity < 0 {
		return f.readLocked(nil)
	}
	var staged [slot.MaxMessageLen]byte
	buf := staged[:min(capacity, slot.MaxMessageLen)]
	n, err := f.readLocked(buf)
	if err != nil {
		return 0, err
	}
	written, err := dst.Write(buf[:n])
	if err != nil {
		return 0, fmt.Errorf("%w: copy to caller: %v", slot.ErrFault, err)
	}
	if written != n {
		return 0, fmt.Errorf("%w: copy to caller: short write %d/%d", slot.ErrFault, written, n)
	}
	return n, nil
}

func (f *File) readLocked(p []byte) (int, error) {
	if f.closed {
		return 0, fmt.Errorf("%w: handle %s closed", slot.ErrBadHandle, f.id)
	}
	if !f.session.Configured() {
		return 0, fmt.Errorf("%w: no channel selected", slot.ErrInvalidArgument)
	}
	if p == nil {
		return 0, fmt.Errorf("%w: nil destination buffer", slot.ErrInvalidArgument)
	}
	s := f.dev.registry.Lookup(f.minor)
	if s == nil {
		return 0, fmt.Errorf("%w: unknown slot %d", slot.ErrInvalidArgument, f.minor)
	}
	n, err := s.Load(f.session.Channel(), p)
	if err != nil {
		return 0, err
	}
	log.Debug().
		Str("handle", f.id).
		Uint32("minor", f.minor).
		Uint32("channel", f.session.Channel()).
		Int("bytes", n).
		Msg("device read")
	return n, nil
}

// Close releases the session. Slot and channel data are untouched.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return fmt.Errorf("%w: handle %s closed", slot.ErrBadHandle, f.id)
	}
	f.closed = true
	f.session = Session{}
	f.dev.release()
	observability.RecordDeviceOp("release", "ok", 0)
	log.Debug().Str("handle", f.id).Uint32("minor", f.minor).Msg("device release")
	return nil
}

func (f *File) record(op string, n int, err error) {
	if err != nil {
		observability.RecordDeviceOp(op, string(slot.Classify(err)), 0)
		return
	}
	observability.RecordDeviceOp(op, "ok", n)
}
