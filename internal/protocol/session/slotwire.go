package session

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/msgslot/internal/protocol/frame"
	"github.com/danmuck/msgslot/internal/protocol/schema"
	"github.com/danmuck/msgslot/internal/protocol/tlv"
	"github.com/danmuck/msgslot/internal/slot"
	"golang.org/x/sys/unix"
)

var ErrUnexpectedMessage = errors.New("session: unexpected message type")

// Request is one client->slotd operation.
type Request interface {
	MessageType() uint32
	fields() []tlv.Field
}

// OpenRequest resolves Path through the device table.
type OpenRequest struct {
	Path string
}

// IoctlRequest issues Command with Arg on Handle.
type IoctlRequest struct {
	Handle  string
	Command uint32
	Arg     uint64
}

// ReadRequest reads the selected channel into a buffer of Capacity bytes.
// NullBuffer models a read into no buffer at all.
type ReadRequest struct {
	Handle     string
	Capacity   uint32
	NullBuffer bool
}

// WriteRequest writes Length bytes from Data. NullBuffer models a write
// from no buffer at all; len(Data) != Length models a faulting source.
type WriteRequest struct {
	Handle     string
	Length     uint32
	Data       []byte
	NullBuffer bool
}

// ReleaseRequest closes Handle.
type ReleaseRequest struct {
	Handle string
}

func (OpenRequest) MessageType() uint32    { return schema.MsgOpen }
func (IoctlRequest) MessageType() uint32   { return schema.MsgIoctl }
func (ReadRequest) MessageType() uint32    { return schema.MsgRead }
func (WriteRequest) MessageType() uint32   { return schema.MsgWrite }
func (ReleaseRequest) MessageType() uint32 { return schema.MsgRelease }

func (r OpenRequest) fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldPath, r.Path)}
}

func (r IoctlRequest) fields() []tlv.Field {
	return []tlv.Field{
		tlv.String(schema.FieldHandle, r.Handle),
		tlv.U32(schema.FieldCommand, r.Command),
		tlv.U64(schema.FieldArg, r.Arg),
	}
}

func (r ReadRequest) fields() []tlv.Field {
	out := []tlv.Field{tlv.String(schema.FieldHandle, r.Handle)}
	if !r.NullBuffer {
		out = append(out, tlv.U32(schema.FieldCapacity, r.Capacity))
	}
	return out
}

func (r WriteRequest) fields() []tlv.Field {
	out := []tlv.Field{
		tlv.String(schema.FieldHandle, r.Handle),
		tlv.U32(schema.FieldLength, r.Length),
	}
	if !r.NullBuffer {
		out = append(out, tlv.Bytes(schema.FieldData, r.Data))
	}
	return out
}

func (r ReleaseRequest) fields() []tlv.Field {
	return []tlv.Field{tlv.String(schema.FieldHandle, r.Handle)}
}

// Result is a successful response. Handle and Minor are set for open,
// Data for read, Count for read and write.
type Result struct {
	Count    uint32
	Handle   string
	Minor    uint32
	HasMinor bool
	Data     []byte
}

// ErrorReply is a failed response.
type ErrorReply struct {
	Errno  uint32
	Reason string
}

// RemoteError is an error reported by slotd. It unwraps to the device
// sentinel for its errno.
type RemoteError struct {
	Errno  unix.Errno
	Reason string
}

func (e *RemoteError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("slotd: %s", e.Errno.Error())
	}
	return fmt.Sprintf("slotd: %s (%s)", e.Reason, e.Errno.Error())
}

func (e *RemoteError) Unwrap() error {
	return slot.FromErrno(e.Errno)
}

// EncodeRequest builds a framed request for messageID.
func EncodeRequest(messageID uint64, req Request, limits frame.Limits) ([]byte, error) {
	if req == nil {
		return nil, fmt.Errorf("session: nil request")
	}
	return encodeFrame(messageID, req.MessageType(), 0, req.fields(), limits)
}

// DecodeRequest parses a request frame into its typed request.
func DecodeRequest(fr frame.Frame) (Request, error) {
	if fr.IsResponse() {
		return nil, fmt.Errorf("%w: response flag on request", ErrUnexpectedMessage)
	}
	mt := fr.Header.MessageType
	if !schema.IsRequest(mt) {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedMessage, mt)
	}
	fields, err := decodeFields(mt, fr.Payload)
	if err != nil {
		return nil, err
	}

	switch mt {
	case schema.MsgOpen:
		return OpenRequest{Path: tlv.GetString(fields, schema.FieldPath)}, nil
	case schema.MsgIoctl:
		cmd, _, err := tlv.GetU32(fields, schema.FieldCommand)
		if err != nil {
			return nil, err
		}
		arg, _, err := tlv.GetU64(fields, schema.FieldArg)
		if err != nil {
			return nil, err
		}
		return IoctlRequest{
			Handle:  tlv.GetString(fields, schema.FieldHandle),
			Command: cmd,
			Arg:     arg,
		}, nil
	case schema.MsgRead:
		capacity, ok, err := tlv.GetU32(fields, schema.FieldCapacity)
		if err != nil {
			return nil, err
		}
		return ReadRequest{
			Handle:     tlv.GetString(fields, schema.FieldHandle),
			Capacity:   capacity,
			NullBuffer: !ok,
		}, nil
	case schema.MsgWrite:
		length, _, err := tlv.GetU32(fields, schema.FieldLength)
		if err != nil {
			return nil, err
		}
		data, ok := tlv.GetField(fields, schema.FieldData)
		return WriteRequest{
			Handle:     tlv.GetString(fields, schema.FieldHandle),
			Length:     length,
			Data:       data.Value,
			NullBuffer: !ok,
		}, nil
	default:
		return ReleaseRequest{Handle: tlv.GetString(fields, schema.FieldHandle)}, nil
	}
}

// RequestHandle returns the handle a request targets, or "" for open.
func RequestHandle(req Request) string {
	switch r := req.(type) {
	case IoctlRequest:
		return r.Handle
	case ReadRequest:
		return r.Handle
	case WriteRequest:
		return r.Handle
	case ReleaseRequest:
		return r.Handle
	default:
		return ""
	}
}

// EncodeResult builds a success response echoing messageID.
func EncodeResult(messageID uint64, res Result, limits frame.Limits) ([]byte, error) {
	fields := []tlv.Field{tlv.U32(schema.FieldCount, res.Count)}
	if strings.TrimSpace(res.Handle) != "" {
		fields = append(fields, tlv.String(schema.FieldHandle, res.Handle))
	}
	if res.HasMinor {
		fields = append(fields, tlv.U32(schema.FieldMinor, res.Minor))
	}
	if res.Data != nil {
		fields = append(fields, tlv.Bytes(schema.FieldData, res.Data))
	}
	return encodeFrame(messageID, schema.MsgResult, frame.FlagIsResponse, fields, limits)
}

// EncodeError builds an error response for err echoing messageID.
func EncodeError(messageID uint64, err error, limits frame.Limits) ([]byte, error) {
	reply := ErrorReply{Errno: uint32(slot.Errno(err))}
	if err != nil {
		reply.Reason = err.Error()
	}
	fields := []tlv.Field{
		tlv.U32(schema.FieldErrno, reply.Errno),
		tlv.String(schema.FieldReason, reply.Reason),
	}
	return encodeFrame(messageID, schema.MsgError, frame.FlagIsResponse|frame.FlagIsError, fields, limits)
}

// DecodeResponse parses a response frame. An error reply comes back as a
// *RemoteError.
func DecodeResponse(fr frame.Frame) (Result, error) {
	if !fr.IsResponse() {
		return Result{}, fmt.Errorf("%w: missing response flag", ErrUnexpectedMessage)
	}
	mt := fr.Header.MessageType
	if mt != schema.MsgResult && mt != schema.MsgError {
		return Result{}, fmt.Errorf("%w: %d", ErrUnexpectedMessage, mt)
	}
	fields, err := decodeFields(mt, fr.Payload)
	if err != nil {
		return Result{}, err
	}

	if mt == schema.MsgError {
		errno, _, err := tlv.GetU32(fields, schema.FieldErrno)
		if err != nil {
			return Result{}, err
		}
		return Result{}, &RemoteError{
			Errno:  unix.Errno(errno),
			Reason: tlv.GetString(fields, schema.FieldReason),
		}
	}

	count, _, err := tlv.GetU32(fields, schema.FieldCount)
	if err != nil {
		return Result{}, err
	}
	minor, hasMinor, err := tlv.GetU32(fields, schema.FieldMinor)
	if err != nil {
		return Result{}, err
	}
	res := Result{
		Count:    count,
		Handle:   tlv.GetString(fields, schema.FieldHandle),
		Minor:    minor,
		HasMinor: hasMinor,
	}
	if data, ok := tlv.GetField(fields, schema.FieldData); ok {
		res.Data = data.Value
	}
	return res, nil
}

func decodeFields(messageType uint32, payload []byte) ([]tlv.Field, error) {
	fields, err := tlv.DecodeFields(payload)
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func encodeFrame(messageID uint64, messageType uint32, flags uint32, fields []tlv.Field, limits frame.Limits) ([]byte, error) {
	if err := schema.Validate(messageType, fields); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := frame.WriteFrame(&buf, frame.Frame{
		Header: frame.Header{
			MessageID:   messageID,
			MessageType: messageType,
			Flags:       flags,
		},
		Payload: tlv.EncodeFields(fields),
	}, limits)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
