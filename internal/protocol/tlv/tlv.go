// Package tlv encodes the type-length-value fields carried in a frame
// payload.
//
// Each field is a 7-byte header followed by its value:
//
//	id(2) | type(1) | length(4) | value(length)
//
// All integers are big endian. A payload is a plain concatenation of fields;
// decoders keep fields they do not recognize so newer peers can add optional
// fields without breaking older ones.
package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the size of a field header.
const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
	ErrDuplicateField   = errors.New("tlv: duplicate field id")
)

// Value types. IDs 1, 2 and 5 are reserved for u8, u16 and bool.
const (
	TypeU32    uint8 = 3
	TypeU64    uint8 = 4
	TypeString uint8 = 6
	TypeBytes  uint8 = 7
)

// Field is one decoded TLV field.
type Field struct {
	ID    uint16
	Type  uint8
	Value []byte
}

func String(id uint16, v string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(v)}
}

// Bytes copies v so later changes to the caller's buffer do not leak into an
// encoded payload.
func Bytes(id uint16, v []byte) Field {
	buf := make([]byte, len(v))
	copy(buf, v)
	return Field{ID: id, Type: TypeBytes, Value: buf}
}

func U32(id uint16, v uint32) Field {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, v)
	return Field{ID: id, Type: TypeU32, Value: buf}
}

func U64(id uint16, v uint64) Field {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Field{ID: id, Type: TypeU64, Value: buf}
}

// EncodedLen is the number of bytes EncodeFields produces for fields.
func EncodedLen(fields []Field) int {
	n := 0
	for _, f := range fields {
		n += HeaderLen + len(f.Value)
	}
	return n
}

// AppendField appends the encoding of f to dst.
func AppendField(dst []byte, f Field) []byte {
	var hdr [HeaderLen]byte
	binary.BigEndian.PutUint16(hdr[0:2], f.ID)
	hdr[2] = f.Type
	binary.BigEndian.PutUint32(hdr[3:7], uint32(len(f.Value)))
	dst = append(dst, hdr[:]...)
	return append(dst, f.Value...)
}

// EncodeFields concatenates fields in order.
func EncodeFields(fields []Field) []byte {
	out := make([]byte, 0, EncodedLen(fields))
	for _, f := range fields {
		out = AppendField(out, f)
	}
	return out
}

// DecodeFields splits payload into fields. Values are copied out of payload.
// A truncated header or value fails the whole payload, and so does a field id
// that appears twice.
func DecodeFields(payload []byte) ([]Field, error) {
	var fields []Field
	seen := make(map[uint16]struct{})
	for i := 0; i < len(payload); {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typ := payload[i+2]
		n := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint64(len(payload)-i) < uint64(n) {
			return nil, fmt.Errorf("%w: field %d wants %d bytes, %d left", ErrShortFieldValue, id, n, len(payload)-i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateField, id)
		}
		seen[id] = struct{}{}
		val := make([]byte, n)
		copy(val, payload[i:i+int(n)])
		i += int(n)
		fields = append(fields, Field{ID: id, Type: typ, Value: val})
	}
	return fields, nil
}

// GetField returns the field with id.
func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

// MustType reports a mismatch between f's type and expected.
func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("tlv: field %d type mismatch: got %d want %d", f.ID, f.Type, expected)
	}
	return nil
}

func U32FromBytes(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("tlv: invalid u32 length: %d", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

func U64FromBytes(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("tlv: invalid u64 length: %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// GetString returns the value of field id as a string, or "" when the field
// is absent. The type is not checked; schema validation covers that before
// any request is decoded.
func GetString(fields []Field, id uint16) string {
	f, _ := GetField(fields, id)
	return string(f.Value)
}

// GetU32 returns the value of field id. ok is false and err nil when the
// field is absent, which is how optional fields such as a read capacity are
// left out. A present field of the wrong type or width is an error.
func GetU32(fields []Field, id uint16) (v uint32, ok bool, err error) {
	f, found := GetField(fields, id)
	if !found {
		return 0, false, nil
	}
	if err := MustType(f, TypeU32); err != nil {
		return 0, false, err
	}
	v, err = U32FromBytes(f.Value)
	return v, err == nil, err
}

// GetU64 is GetU32 for 8-byte values.
func GetU64(fields []Field, id uint16) (v uint64, ok bool, err error) {
	f, found := GetField(fields, id)
	if !found {
		return 0, false, nil
	}
	if err := MustType(f, TypeU64); err != nil {
		return 0, false, err
	}
	v, err = U64FromBytes(f.Value)
	return v, err == nil, err
}
