package args

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

const prefixSize = 4

// LengthMode selects how a wide string's length prefix is counted.
type LengthMode int

const (
	// LengthUnits counts UTF-16 code units including the terminator.
	LengthUnits LengthMode = iota
	// LengthBytes counts bytes including the 2-byte terminator.
	LengthBytes
)

func (m LengthMode) String() string {
	if m == LengthBytes {
		return "bytes"
	}
	return "units"
}

// ParseLengthMode accepts "units" or "bytes".
func ParseLengthMode(raw string) (LengthMode, error) {
	switch raw {
	case "", "units":
		return LengthUnits, nil
	case "bytes":
		return LengthBytes, nil
	default:
		return LengthUnits, fmt.Errorf("args: unknown wide length mode %q", raw)
	}
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encoder packs argument lists. The zero Encoder uses LengthUnits.
type Encoder struct {
	WideLength LengthMode
}

// Encode packs l with the default Encoder.
func Encode(l List) ([]byte, error) {
	return Encoder{}.Encode(l)
}

// Encode packs l into a single positional buffer. An empty list yields an
// empty, non-nil buffer.
func (e Encoder) Encode(l List) ([]byte, error) {
	size, err := e.EncodedLen(l)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, size)
	for i, v := range l {
		buf, err = e.appendRecord(buf, v)
		if err != nil {
			return nil, &RecordError{Position: i, Tag: v.tag, Err: err}
		}
	}
	return buf, nil
}

// EncodedLen is the exact size Encode produces for l.
func (e Encoder) EncodedLen(l List) (int, error) {
	total := 0
	for i, v := range l {
		n, err := RecordLen(v)
		if err != nil {
			return 0, &RecordError{Position: i, Tag: v.tag, Err: err}
		}
		total += n
	}
	return total, nil
}

// RecordLen predicts the encoded size of one record from its tag and content.
// It does not depend on the length mode.
func RecordLen(v Value) (int, error) {
	switch v.tag {
	case TagInt32:
		return 4, nil
	case TagInt16:
		return 2, nil
	case TagString:
		return checked(prefixSize + len(v.str) + 1)
	case TagWString:
		units, err := wideUnits(v.str)
		if err != nil {
			return 0, err
		}
		return checked(prefixSize + 2*(units+1))
	case TagBytes:
		return checked(prefixSize + len(v.raw))
	default:
		return 0, ErrUnspecifiedValue
	}
}

func checked(n int) (int, error) {
	if uint64(n-prefixSize) > math.MaxUint32 {
		return 0, ErrTooLarge
	}
	return n, nil
}

func (e Encoder) appendRecord(buf []byte, v Value) ([]byte, error) {
	switch v.tag {
	case TagInt32:
		return binary.LittleEndian.AppendUint32(buf, uint32(v.num)), nil
	case TagInt16:
		return binary.LittleEndian.AppendUint16(buf, uint16(int16(v.num))), nil
	case TagString:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.str)+1))
		buf = append(buf, v.str...)
		return append(buf, 0x00), nil
	case TagWString:
		wide, err := utf16le.NewEncoder().Bytes([]byte(v.str))
		if err != nil {
			return nil, err
		}
		length := uint32(len(wide)/2 + 1)
		if e.WideLength == LengthBytes {
			length = uint32(len(wide) + 2)
		}
		buf = binary.LittleEndian.AppendUint32(buf, length)
		buf = append(buf, wide...)
		return append(buf, 0x00, 0x00), nil
	case TagBytes:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.raw)))
		return append(buf, v.raw...), nil
	default:
		return nil, ErrUnspecifiedValue
	}
}

// wideUnits counts the UTF-16 code units s encodes to. Invalid UTF-8 would be
// replaced with U+FFFD by the encoder, so it is rejected instead.
func wideUnits(s string) (int, error) {
	if !utf8.ValidString(s) {
		return 0, ErrInvalidText
	}
	wide, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return 0, err
	}
	return len(wide) / 2, nil
}
