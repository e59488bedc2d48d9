package args

import (
	"encoding/binary"
	"fmt"
)

// Parser reads records back out of an encoded buffer in order, the way the
// receiving loader extracts them.
type Parser struct {
	buf        []byte
	off        int
	pos        int
	wideLength LengthMode
}

func NewParser(buf []byte) *Parser {
	return &Parser{buf: buf}
}

// NewParserMode reads wide strings whose prefixes were written in mode.
func NewParserMode(buf []byte, mode LengthMode) *Parser {
	return &Parser{buf: buf, wideLength: mode}
}

// Remaining is the number of unread bytes.
func (p *Parser) Remaining() int {
	return len(p.buf) - p.off
}

func (p *Parser) Int32() (int32, error) {
	b, err := p.take(TagInt32, 4)
	if err != nil {
		return 0, err
	}
	p.pos++
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (p *Parser) Int16() (int16, error) {
	b, err := p.take(TagInt16, 2)
	if err != nil {
		return 0, err
	}
	p.pos++
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func (p *Parser) String() (string, error) {
	n, err := p.prefix(TagString)
	if err != nil {
		return "", err
	}
	if n < 1 {
		return "", p.fail(TagString, ErrInvalidLength)
	}
	b, err := p.take(TagString, n)
	if err != nil {
		return "", err
	}
	if b[n-1] != 0x00 {
		return "", p.fail(TagString, ErrMissingTerminator)
	}
	p.pos++
	return string(b[:n-1]), nil
}

func (p *Parser) WString() (string, error) {
	n, err := p.prefix(TagWString)
	if err != nil {
		return "", err
	}
	size := 2 * n
	if p.wideLength == LengthBytes {
		if n%2 != 0 {
			return "", p.fail(TagWString, ErrInvalidLength)
		}
		size = n
	}
	if size < 2 {
		return "", p.fail(TagWString, ErrInvalidLength)
	}
	b, err := p.take(TagWString, size)
	if err != nil {
		return "", err
	}
	if b[size-2] != 0x00 || b[size-1] != 0x00 {
		return "", p.fail(TagWString, ErrMissingTerminator)
	}
	text, err := utf16le.NewDecoder().Bytes(b[:size-2])
	if err != nil {
		return "", p.fail(TagWString, err)
	}
	p.pos++
	return string(text), nil
}

func (p *Parser) Bytes() ([]byte, error) {
	n, err := p.prefix(TagBytes)
	if err != nil {
		return nil, err
	}
	b, err := p.take(TagBytes, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	p.pos++
	return out, nil
}

// Extract reads the next record as tag.
func (p *Parser) Extract(tag Tag) (Value, error) {
	switch tag {
	case TagInt32:
		v, err := p.Int32()
		return Int32(v), err
	case TagInt16:
		v, err := p.Int16()
		return Int16(v), err
	case TagString:
		v, err := p.String()
		return String(v), err
	case TagWString:
		v, err := p.WString()
		return WString(v), err
	case TagBytes:
		v, err := p.Bytes()
		return Bytes(v), err
	default:
		return Value{}, p.fail(tag, ErrUnspecifiedValue)
	}
}

// Decode reads one record per schema tag and requires the buffer to be fully consumed.
func Decode(buf []byte, schema []Tag, mode LengthMode) (List, error) {
	p := NewParserMode(buf, mode)
	out := make(List, 0, len(schema))
	for _, tag := range schema {
		v, err := p.Extract(tag)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if p.Remaining() != 0 {
		return nil, fmt.Errorf("args: %d trailing bytes after %d records", p.Remaining(), len(schema))
	}
	return out, nil
}

func (p *Parser) prefix(tag Tag) (int, error) {
	b, err := p.take(tag, prefixSize)
	if err != nil {
		return 0, err
	}
	return int(binary.LittleEndian.Uint32(b)), nil
}

func (p *Parser) take(tag Tag, n int) ([]byte, error) {
	if n < 0 || n > p.Remaining() {
		return nil, p.fail(tag, ErrTruncated)
	}
	b := p.buf[p.off : p.off+n]
	p.off += n
	return b, nil
}

func (p *Parser) fail(tag Tag, err error) error {
	return &RecordError{Position: p.pos, Tag: tag, Err: err}
}
