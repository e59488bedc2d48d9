package task

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danmuck/objctl/internal/args"
)

const DefaultBinaryDir = "dist"

// SchemaError rejects a descriptor at registration time.
type SchemaError struct {
	Module   string
	Position int
	Reason   string
}

func (e *SchemaError) Error() string {
	if e.Position < 0 {
		return fmt.Sprintf("task: module %q: %s", e.Module, e.Reason)
	}
	return fmt.Sprintf("task: module %q schema[%d]: %s", e.Module, e.Position, e.Reason)
}

// Metadata is operator-facing text. It never affects encoding.
type Metadata struct {
	Description string
	Usage       string
}

// Descriptor declares one task: which module runs it and the ordered
// argument tags that module reads.
type Descriptor struct {
	moduleID   string
	binaryName string
	binaryDir  string
	schema     []args.Tag
	meta       Metadata
}

type Option func(*Descriptor)

// WithBinary overrides the on-disk lookup key of the compiled module.
func WithBinary(dir, name string) Option {
	return func(d *Descriptor) {
		if v := strings.TrimSpace(dir); v != "" {
			d.binaryDir = v
		}
		if v := strings.TrimSpace(name); v != "" {
			d.binaryName = v
		}
	}
}

func WithMetadata(meta Metadata) Option {
	return func(d *Descriptor) {
		d.meta = meta
	}
}

// New validates and builds a descriptor. An empty schema is valid and means
// the module takes no arguments.
func New(moduleID string, schema []args.Tag, opts ...Option) (Descriptor, error) {
	id := strings.TrimSpace(moduleID)
	if !isValidID(id) {
		return Descriptor{}, &SchemaError{Module: moduleID, Position: -1, Reason: "invalid module id"}
	}
	tags := make([]args.Tag, len(schema))
	for i, tag := range schema {
		if !tag.Valid() {
			return Descriptor{}, &SchemaError{
				Module:   id,
				Position: i,
				Reason:   fmt.Sprintf("unspecified or unknown tag %s", tag),
			}
		}
		tags[i] = tag
	}
	d := Descriptor{
		moduleID:   id,
		binaryName: id,
		binaryDir:  DefaultBinaryDir,
		schema:     tags,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d, nil
}

func (d Descriptor) ModuleID() string {
	return d.moduleID
}

func (d Descriptor) BinaryName() string {
	return d.binaryName
}

func (d Descriptor) BinaryDir() string {
	return d.binaryDir
}

// BinaryPath is the object file for arch, e.g. dist/curl.x64.o.
func (d Descriptor) BinaryPath(arch string) string {
	return filepath.Join(d.binaryDir, fmt.Sprintf("%s.%s.o", d.binaryName, arch))
}

// Schema returns a copy of the argument tags.
func (d Descriptor) Schema() []args.Tag {
	out := make([]args.Tag, len(d.schema))
	copy(out, d.schema)
	return out
}

func (d Descriptor) Metadata() Metadata {
	return d.meta
}

func isValidID(id string) bool {
	if id == "" {
		return false
	}
	lastSep := false
	for i := 0; i < len(id); i++ {
		c := id[i]
		isLower := c >= 'a' && c <= 'z'
		isDigit := c >= '0' && c <= '9'
		isSep := c == '.' || c == '-' || c == '_'
		if !(isLower || isDigit || isSep) {
			return false
		}
		if (i == 0 || i == len(id)-1) && isSep {
			return false
		}
		if isSep && lastSep {
			return false
		}
		lastSep = isSep
	}
	return true
}
