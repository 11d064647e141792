package schema

import (
	"fmt"

	"github.com/danmuck/msgslot/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Message type IDs.
const (
	MsgOpen    uint32 = 1
	MsgIoctl   uint32 = 2
	MsgRead    uint32 = 3
	MsgWrite   uint32 = 4
	MsgRelease uint32 = 5
	MsgResult  uint32 = 6
	MsgError   uint32 = 7
)

// Field IDs.
const (
	FieldPath     uint16 = 1
	FieldHandle   uint16 = 2
	FieldCommand  uint16 = 3
	FieldArg      uint16 = 4
	FieldCapacity uint16 = 5
	FieldLength   uint16 = 6
	FieldData     uint16 = 7
	FieldMinor    uint16 = 8
	FieldCount    uint16 = 9
	FieldErrno    uint16 = 10
	FieldReason   uint16 = 11
)

// Requirement describes one field of a message. Optional fields are only
// type-checked when present.
type Requirement struct {
	ID       uint16
	Type     uint8
	Optional bool
}

type ValidationError struct {
	MessageType uint32
	FieldID     uint16
	Reason      string
}

func (e ValidationError) Error() string {
	if e.FieldID == 0 {
		return fmt.Sprintf("schema: message_type=%d: %s", e.MessageType, e.Reason)
	}
	return fmt.Sprintf("schema: message_type=%d field=%d: %s", e.MessageType, e.FieldID, e.Reason)
}

var requirements = map[uint32][]Requirement{
	MsgOpen: {
		{ID: FieldPath, Type: tlv.TypeString},
	},
	MsgIoctl: {
		{ID: FieldHandle, Type: tlv.TypeString},
		{ID: FieldCommand, Type: tlv.TypeU32},
		{ID: FieldArg, Type: tlv.TypeU64},
	},
	MsgRead: {
		{ID: FieldHandle, Type: tlv.TypeString},
		{ID: FieldCapacity, Type: tlv.TypeU32, Optional: true},
	},
	MsgWrite: {
		{ID: FieldHandle, Type: tlv.TypeString},
		{ID: FieldLength, Type: tlv.TypeU32},
		{ID: FieldData, Type: tlv.TypeBytes, Optional: true},
	},
	MsgRelease: {
		{ID: FieldHandle, Type: tlv.TypeString},
	},
	MsgResult: {
		{ID: FieldCount, Type: tlv.TypeU32},
		{ID: FieldHandle, Type: tlv.TypeString, Optional: true},
		{ID: FieldMinor, Type: tlv.TypeU32, Optional: true},
		{ID: FieldData, Type: tlv.TypeBytes, Optional: true},
	},
	MsgError: {
		{ID: FieldErrno, Type: tlv.TypeU32},
		{ID: FieldReason, Type: tlv.TypeString},
	},
}

// Name returns a short label for a message type.
func Name(messageType uint32) string {
	switch messageType {
	case MsgOpen:
		return "open"
	case MsgIoctl:
		return "ioctl"
	case MsgRead:
		return "read"
	case MsgWrite:
		return "write"
	case MsgRelease:
		return "release"
	case MsgResult:
		return "result"
	case MsgError:
		return "error"
	default:
		return "unknown"
	}
}

// IsRequest reports whether messageType is sent by clients.
func IsRequest(messageType uint32) bool {
	return messageType >= MsgOpen && messageType <= MsgRelease
}

// Validate enforces required fields and field types for a message type.
// Unknown fields are ignored.
func Validate(messageType uint32, fields []tlv.Field) error {
	reqs, ok := requirements[messageType]
	if !ok {
		log.Error().Uint32("message_type", messageType).Msg("schema: unknown message type")
		return ValidationError{MessageType: messageType, Reason: "unknown message_type"}
	}
	for _, req := range reqs {
		f, found := tlv.GetField(fields, req.ID)
		if !found {
			if req.Optional {
				continue
			}
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Msg("schema: missing required field")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "missing required field"}
		}
		if f.Type != req.Type {
			log.Error().
				Uint32("message_type", messageType).
				Uint16("field_id", req.ID).
				Uint8("got", f.Type).
				Uint8("want", req.Type).
				Msg("schema: type mismatch")
			return ValidationError{MessageType: messageType, FieldID: req.ID, Reason: "type mismatch"}
		}
	}
	log.Trace().Uint32("message_type", messageType).Str("message_name", Name(messageType)).Int("fields", len(fields)).Msg("schema: ok")
	return nil
}
