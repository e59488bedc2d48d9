package args

import "fmt"

// Tag is the logical type of one argument.
type Tag uint8

const (
	TagUnspecified Tag = iota
	TagInt32
	TagInt16
	TagString
	TagWString
	TagBytes
)

var tagNames = map[Tag]string{
	TagUnspecified: "unspecified",
	TagInt32:       "int32",
	TagInt16:       "int16",
	TagString:      "string",
	TagWString:     "wstring",
	TagBytes:       "bytes",
}

func (t Tag) String() string {
	if name, ok := tagNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Valid reports whether t names a concrete encoding.
func (t Tag) Valid() bool {
	return t >= TagInt32 && t <= TagBytes
}

// ParseTag resolves a tag by its name.
func ParseTag(name string) (Tag, bool) {
	for tag, n := range tagNames {
		if n == name && tag.Valid() {
			return tag, true
		}
	}
	return TagUnspecified, false
}

// Value is one tagged argument. The zero Value is unspecified and does not encode.
type Value struct {
	tag Tag
	num int32
	str string
	raw []byte
}

// List is an ordered argument list; order must match the module's parameters.
type List []Value

func Int32(v int32) Value {
	return Value{tag: TagInt32, num: v}
}

func Int16(v int16) Value {
	return Value{tag: TagInt16, num: int32(v)}
}

// String is a narrow (byte) string argument.
func String(s string) Value {
	return Value{tag: TagString, str: s}
}

// WString is a wide string argument, sent as UTF-16LE.
func WString(s string) Value {
	return Value{tag: TagWString, str: s}
}

func Bytes(b []byte) Value {
	raw := make([]byte, len(b))
	copy(raw, b)
	return Value{tag: TagBytes, raw: raw}
}

func (v Value) Tag() Tag {
	return v.tag
}

// Int returns the integer payload of Int32 and Int16 values.
func (v Value) Int() int32 {
	return v.num
}

// Text returns the payload of String and WString values.
func (v Value) Text() string {
	return v.str
}

// Raw returns a copy of the payload of a Bytes value.
func (v Value) Raw() []byte {
	if v.raw == nil {
		return nil
	}
	out := make([]byte, len(v.raw))
	copy(out, v.raw)
	return out
}

func (v Value) String() string {
	switch v.tag {
	case TagInt32, TagInt16:
		return fmt.Sprintf("%s(%d)", v.tag, v.num)
	case TagString, TagWString:
		return fmt.Sprintf("%s(%q)", v.tag, v.str)
	case TagBytes:
		return fmt.Sprintf("%s(%d bytes)", v.tag, len(v.raw))
	default:
		return v.tag.String()
	}
}

// Tags returns the tag sequence of l.
func (l List) Tags() []Tag {
	tags := make([]Tag, len(l))
	for i, v := range l {
		tags[i] = v.tag
	}
	return tags
}
