package client

import (
	"context"

	"github.com/danmuck/msgslot/internal/device"
	"github.com/danmuck/msgslot/internal/protocol/session"
	"github.com/danmuck/msgslot/internal/slot"
)

// File is a remote device handle. Errors unwrap to the slot sentinels.
type File struct {
	conn   *Conn
	handle string
	minor  uint32
	path   string
}

func (f *File) Handle() string {
	return f.handle
}

func (f *File) Minor() uint32 {
	return f.minor
}

func (f *File) Path() string {
	return f.path
}

// Ioctl issues a raw configuration command.
func (f *File) Ioctl(ctx context.Context, cmd uint32, arg uint64) error {
	_, err := f.conn.roundTrip(ctx, session.IoctlRequest{Handle: f.handle, Command: cmd, Arg: arg})
	return err
}

// SetChannel selects the channel used by Read and Write.
func (f *File) SetChannel(ctx context.Context, id uint64) error {
	return f.Ioctl(ctx, device.CmdSetChannel, id)
}

// SetCensorship turns censorship on (1) or off (0) for later writes.
func (f *File) SetCensorship(ctx context.Context, flag uint64) error {
	return f.Ioctl(ctx, device.CmdSetCensorship, flag)
}

// Write stores p on the selected channel. A nil p is sent as a missing
// source buffer.
func (f *File) Write(ctx context.Context, p []byte) (int, error) {
	req := session.WriteRequest{
		Handle:     f.handle,
		Length:     uint32(len(p)),
		Data:       p,
		NullBuffer: p == nil,
	}
	// The daemon rejects the declared length before it reads any data, so an
	// oversized message only needs to carry enough bytes to stay oversized.
	if len(p) > slot.MaxMessageLen {
		req.Data = p[:slot.MaxMessageLen+1]
	}
	res, err := f.conn.roundTrip(ctx, req)
	if err != nil {
		return 0, err
	}
	return int(res.Count), nil
}

// Read copies the selected channel's message into p. A nil p is sent as a
// missing destination buffer.
func (f *File) Read(ctx context.Context, p []byte) (int, error) {
	req := session.ReadRequest{
		Handle:     f.handle,
		Capacity:   uint32(len(p)),
		NullBuffer: p == nil,
	}
	res, err := f.conn.roundTrip(ctx, req)
	if err != nil {
		return 0, err
	}
	return copy(p, res.Data), nil
}

// Close releases the handle. Stored messages persist.
func (f *File) Close(ctx context.Context) error {
	_, err := f.conn.roundTrip(ctx, session.ReleaseRequest{Handle: f.handle})
	return err
}
