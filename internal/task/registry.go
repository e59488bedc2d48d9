package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/objctl/internal/args"
	"github.com/rs/zerolog/log"
)

var ErrDescriptorExists = errors.New("task: descriptor already registered")

// UnknownModuleError is returned when no descriptor is registered for a module id.
type UnknownModuleError struct {
	Module string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("task: unknown module %q", e.Module)
}

// Registry stores descriptors by module id for the life of the process.
type Registry struct {
	mu    sync.RWMutex
	items map[string]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[string]Descriptor)}
}

// Register adds d. Descriptors built outside New are rejected.
func (r *Registry) Register(d Descriptor) error {
	if d.moduleID == "" {
		return &SchemaError{Module: "", Position: -1, Reason: "descriptor not constructed with task.New"}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[d.moduleID]; ok {
		return fmt.Errorf("%w: %s", ErrDescriptorExists, d.moduleID)
	}
	r.items[d.moduleID] = d
	log.Debug().Str("module", d.moduleID).Int("arity", len(d.schema)).Msg("task.Registry.Register")
	return nil
}

// Define builds and registers a descriptor in one step.
func (r *Registry) Define(moduleID string, schema []args.Tag, opts ...Option) (Descriptor, error) {
	d, err := New(moduleID, schema, opts...)
	if err != nil {
		return Descriptor{}, err
	}
	if err := r.Register(d); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func (r *Registry) Resolve(moduleID string) (Descriptor, error) {
	key := strings.TrimSpace(moduleID)
	r.mu.RLock()
	d, ok := r.items[key]
	r.mu.RUnlock()
	if !ok {
		return Descriptor{}, &UnknownModuleError{Module: key}
	}
	return d, nil
}

// List returns descriptors ordered by module id.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	list := make([]Descriptor, 0, len(r.items))
	for _, d := range r.items {
		list = append(list, d)
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		return list[i].moduleID < list[j].moduleID
	})
	return list
}
