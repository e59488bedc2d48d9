package tlv

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is id(u16) + type(u8) + length(u32).
const HeaderLen = 7

var (
	ErrShortFieldHeader = errors.New("tlv: short field header")
	ErrShortFieldValue  = errors.New("tlv: short field value")
)

// Type IDs.
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

func String(id uint16, s string) Field {
	return Field{ID: id, Type: TypeString, Value: []byte(s)}
}

func Bytes(id uint16, b []byte) Field {
	return Field{ID: id, Type: TypeBytes, Value: b}
}

func U32(id uint16, v uint32) Field {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return Field{ID: id, Type: TypeU32, Value: out}
}

func U64(id uint16, v uint64) Field {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return Field{ID: id, Type: TypeU64, Value: out}
}

// Uint32 reads a TypeU32 field.
func (f Field) Uint32() (uint32, error) {
	if err := MustType(f, TypeU32); err != nil {
		return 0, err
	}
	if len(f.Value) != 4 {
		return 0, fmt.Errorf("tlv: field %d invalid u32 length: %d", f.ID, len(f.Value))
	}
	return binary.BigEndian.Uint32(f.Value), nil
}

// Uint64 reads a TypeU64 field.
func (f Field) Uint64() (uint64, error) {
	if err := MustType(f, TypeU64); err != nil {
		return 0, err
	}
	if len(f.Value) != 8 {
		return 0, fmt.Errorf("tlv: field %d invalid u64 length: %d", f.ID, len(f.Value))
	}
	return binary.BigEndian.Uint64(f.Value), nil
}

func EncodeField(f Field) []byte {
	return appendField(make([]byte, 0, HeaderLen+len(f.Value)), f)
}

func EncodeFields(fields []Field) []byte {
	n := 0
	for _, f := range fields {
		n += HeaderLen + len(f.Value)
	}
	out := make([]byte, 0, n)
	for _, f := range fields {
		out = appendField(out, f)
	}
	return out
}

func appendField(buf []byte, f Field) []byte {
	buf = binary.BigEndian.AppendUint16(buf, f.ID)
	buf = append(buf, f.Type)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.Value)))
	return append(buf, f.Value...)
}

// DecodeFields keeps unknown field ids; callers look up what they need.
func DecodeFields(payload []byte) ([]Field, error) {
	fields := make([]Field, 0)
	i := 0
	for i < len(payload) {
		if len(payload)-i < HeaderLen {
			return nil, ErrShortFieldHeader
		}
		id := binary.BigEndian.Uint16(payload[i : i+2])
		typeID := payload[i+2]
		l := binary.BigEndian.Uint32(payload[i+3 : i+7])
		i += HeaderLen
		if uint64(len(payload)-i) < uint64(l) {
			return nil, ErrShortFieldValue
		}
		val := make([]byte, l)
		copy(val, payload[i:i+int(l)])
		i += int(l)
		fields = append(fields, Field{ID: id, Type: typeID, Value: val})
	}
	return fields, nil
}

// GetField returns the first field with id.
func GetField(fields []Field, id uint16) (Field, bool) {
	for _, f := range fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

func MustType(f Field, expected uint8) error {
	if f.Type != expected {
		return fmt.Errorf("tlv: field %d type mismatch: got %d want %d", f.ID, f.Type, expected)
	}
	return nil
}
