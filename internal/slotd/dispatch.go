package slotd

import (
	"bytes"
	"fmt"
	"io"

	"github.com/danmuck/msgslot/internal/protocol/session"
	"github.com/danmuck/msgslot/internal/slot"
	"github.com/rs/zerolog/log"
)

// dispatch runs one decoded request against the connection's handles.
func (s *Service) dispatch(handles *handleTable, req session.Request) (session.Result, error) {
	switch r := req.(type) {
	case session.OpenRequest:
		minor, err := s.devices.Resolve(r.Path)
		if err != nil {
			return session.Result{}, err
		}
		f, err := s.dev.Open(minor)
		if err != nil {
			return session.Result{}, err
		}
		handles.put(f)
		log.Debug().Str("path", r.Path).Uint32("minor", minor).Str("handle", f.ID()).Msg("slotd open")
		return session.Result{Handle: f.ID(), Minor: minor, HasMinor: true}, nil

	case session.IoctlRequest:
		f, err := handles.get(r.Handle)
		if err != nil {
			return session.Result{}, err
		}
		return session.Result{}, f.Ioctl(r.Command, r.Arg)

	case session.ReadRequest:
		f, err := handles.get(r.Handle)
		if err != nil {
			return session.Result{}, err
		}
		if r.NullBuffer {
			_, err := f.ReadTo(nil, 0)
			return session.Result{}, err
		}
		var buf bytes.Buffer
		n, err := f.ReadTo(&buf, int(r.Capacity))
		if err != nil {
			return session.Result{}, err
		}
		return session.Result{Count: uint32(n), Data: buf.Bytes()}, nil

	case session.WriteRequest:
		f, err := handles.get(r.Handle)
		if err != nil {
			return session.Result{}, err
		}
		var src io.Reader
		switch {
		case r.NullBuffer:
		case len(r.Data) != int(r.Length):
			src = mismatchedSource{have: len(r.Data), want: int(r.Length)}
		default:
			src = bytes.NewReader(r.Data)
		}
		n, err := f.WriteFrom(src, int(r.Length))
		if err != nil {
			return session.Result{}, err
		}
		return session.Result{Count: uint32(n)}, nil

	case session.ReleaseRequest:
		f, err := handles.remove(r.Handle)
		if err != nil {
			return session.Result{}, err
		}
		return session.Result{}, f.Close()

	default:
		return session.Result{}, fmt.Errorf("%w: unsupported request %T", slot.ErrInvalidArgument, req)
	}
}

// mismatchedSource stands in for a caller buffer whose size disagrees with
// the declared write length.
type mismatchedSource struct {
	have int
	want int
}

func (m mismatchedSource) Read([]byte) (int, error) {
	return 0, fmt.Errorf("source holds %d bytes, write declares %d", m.have, m.want)
}
