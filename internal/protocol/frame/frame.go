package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	Magic          uint32 = 0x0B1EC701
	Version        uint16 = 1
	FixedHeaderLen        = 24

	FlagIsError uint16 = 0x01
)

var (
	ErrShortHeader     = errors.New("frame: short fixed header")
	ErrBadMagic        = errors.New("frame: bad magic")
	ErrVersion         = errors.New("frame: unsupported version")
	ErrPayloadTooLarge = errors.New("frame: payload too large")
	ErrTrailingBytes   = errors.New("frame: trailing bytes after payload")
)

// Header is the fixed wire header. Multi-byte fields are big-endian.
//
//	0  magic        u32
//	4  version      u16
//	6  flags        u16
//	8  message_id   u64
//	16 message_type u32
//	20 payload_len  u32
type Header struct {
	Magic       uint32
	Version     uint16
	Flags       uint16
	MessageID   uint64
	MessageType uint32
	PayloadLen  uint32
}

// Frame is one complete wire message.
type Frame struct {
	Header  Header
	Payload []byte
}

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxPayloadBytes uint32
}

func DefaultLimits() Limits {
	return Limits{MaxPayloadBytes: 4 * 1024 * 1024}
}

func ReadFrame(r io.Reader, limits Limits) (Frame, error) {
	var fixed [FixedHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return Frame{}, ErrShortHeader
		}
		return Frame{}, err
	}
	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return Frame{}, err
	}
	if h.PayloadLen > limits.MaxPayloadBytes {
		return Frame{}, ErrPayloadTooLarge
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return Frame{}, fmt.Errorf("frame: short payload: %w", err)
		}
	}
	return Frame{Header: h, Payload: payload}, nil
}

// WriteFrame stamps magic, version and payload length before writing.
func WriteFrame(w io.Writer, f Frame, limits Limits) error {
	if uint64(len(f.Payload)) > uint64(limits.MaxPayloadBytes) {
		return ErrPayloadTooLarge
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint32(len(f.Payload))
	if _, err := w.Write(EncodeHeader(h)); err != nil {
		return err
	}
	if len(f.Payload) > 0 {
		if _, err := w.Write(f.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Marshal renders f as one message body, e.g. an MQTT payload.
func Marshal(f Frame) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(FixedHeaderLen + len(f.Payload))
	if err := WriteFrame(&buf, f, DefaultLimits()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal parses exactly one frame from b.
func Unmarshal(b []byte) (Frame, error) {
	r := bytes.NewReader(b)
	f, err := ReadFrame(r, DefaultLimits())
	if err != nil {
		return Frame{}, err
	}
	if r.Len() != 0 {
		return Frame{}, fmt.Errorf("%w: %d", ErrTrailingBytes, r.Len())
	}
	return f, nil
}

func EncodeHeader(h Header) []byte {
	buf := make([]byte, FixedHeaderLen)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	binary.BigEndian.PutUint16(buf[6:8], h.Flags)
	binary.BigEndian.PutUint64(buf[8:16], h.MessageID)
	binary.BigEndian.PutUint32(buf[16:20], h.MessageType)
	binary.BigEndian.PutUint32(buf[20:24], h.PayloadLen)
	return buf
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) != FixedHeaderLen {
		return Header{}, fmt.Errorf("frame: invalid fixed header length: %d", len(b))
	}
	h := Header{
		Magic:       binary.BigEndian.Uint32(b[0:4]),
		Version:     binary.BigEndian.Uint16(b[4:6]),
		Flags:       binary.BigEndian.Uint16(b[6:8]),
		MessageID:   binary.BigEndian.Uint64(b[8:16]),
		MessageType: binary.BigEndian.Uint32(b[16:20]),
		PayloadLen:  binary.BigEndian.Uint32(b[20:24]),
	}
	if h.Magic != Magic {
		return Header{}, fmt.Errorf("%w: %#08x", ErrBadMagic, h.Magic)
	}
	if h.Version != Version {
		return Header{}, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	return h, nil
}
