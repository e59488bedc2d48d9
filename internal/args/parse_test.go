package args

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/objctl/internal/testutil/testlog"
)

func TestStringRoundTrip(t *testing.T) {
	testlog.Start(t)
	inputs := []string{"", "a", "finger", "embedded\x00nul", "héllo", "\U0001F600 grin", "日本語"}
	for _, mode := range []LengthMode{LengthUnits, LengthBytes} {
		enc := Encoder{WideLength: mode}
		for _, s := range inputs {
			buf, err := enc.Encode(List{String(s), WString(s)})
			if err != nil {
				t.Fatalf("encode %q: %v", s, err)
			}
			p := NewParserMode(buf, mode)
			narrow, err := p.String()
			if err != nil {
				t.Fatalf("narrow %q: %v", s, err)
			}
			wide, err := p.WString()
			if err != nil {
				t.Fatalf("wide %q: %v", s, err)
			}
			if narrow != s || wide != s {
				t.Fatalf("round trip mismatch: in=%q narrow=%q wide=%q", s, narrow, wide)
			}
			if p.Remaining() != 0 {
				t.Fatalf("trailing bytes after %q: %d", s, p.Remaining())
			}
		}
	}
}

func TestDecodeBySchema(t *testing.T) {
	testlog.Start(t)
	in := List{Int32(-40), Int16(12), String("n"), WString("w"), Bytes([]byte{0xaa})}
	buf, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(buf, in.Tags(), LengthUnits)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out[0].Int() != -40 || out[1].Int() != 12 || out[2].Text() != "n" || out[3].Text() != "w" {
		t.Fatalf("decoded values mismatch: %v", out)
	}
	if !bytes.Equal(out[4].Raw(), []byte{0xaa}) {
		t.Fatalf("bytes mismatch: % x", out[4].Raw())
	}
}

func TestDecodeTrailingBytesRejected(t *testing.T) {
	testlog.Start(t)
	buf, _ := Encode(List{Int16(1), Int16(2)})
	if _, err := Decode(buf, []Tag{TagInt16}, LengthUnits); err == nil {
		t.Fatalf("expected trailing bytes error")
	}
}

func TestParserTruncatedIsDeterministic(t *testing.T) {
	testlog.Start(t)
	_, err := NewParser([]byte{5, 0, 0, 0, 'a'}).String()
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	_, err = NewParser([]byte{1, 0}).Int32()
	if !errors.Is(err, ErrTruncated) {
		t.Fatalf("expected ErrTruncated for short int, got %v", err)
	}
}

func TestParserMissingTerminator(t *testing.T) {
	testlog.Start(t)
	_, err := NewParser([]byte{2, 0, 0, 0, 'a', 'b'}).String()
	if !errors.Is(err, ErrMissingTerminator) {
		t.Fatalf("expected ErrMissingTerminator, got %v", err)
	}
	_, err = NewParser([]byte{1, 0, 0, 0, 'a', 0}).WString()
	if !errors.Is(err, ErrMissingTerminator) {
		t.Fatalf("expected ErrMissingTerminator for wide, got %v", err)
	}
}

func TestParserZeroLengthStringRejected(t *testing.T) {
	testlog.Start(t)
	_, err := NewParser([]byte{0, 0, 0, 0}).String()
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength, got %v", err)
	}
	_, err = NewParserMode([]byte{3, 0, 0, 0, 0, 0, 0}, LengthBytes).WString()
	if !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("expected ErrInvalidLength for odd byte count, got %v", err)
	}
}
