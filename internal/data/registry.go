// Package data implements the data registry (C2): the typed, per-active
// data-state storage with change notification (spec.md §4.2).
//
// Grounded in the teacher's primitives.Context (sync.Map-backed key/value
// store, github.com/comalice/statechartx/internal/primitives/context.go),
// generalized from a flat string-keyed blob into per-Key activation slots
// with lifecycle (activate/deactivate) and a broadcast change stream per
// slot, and ordered per SPEC_FULL.md's "Domain stack" using
// github.com/wk8/go-ordered-map/v2 so Snapshot() iterates in activation
// order deterministically (the same ordering property dragomit-hsm relies
// on go-ordered-map for in its own transition tables).
package data

import (
	"errors"
	"fmt"
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/arborium/hsm/internal/tree"
	"github.com/arborium/hsm/stream"
)

// ErrNoSuchDataState is returned by Read/Update when key has no active slot
// (spec.md §7 "NoSuchDataState").
var ErrNoSuchDataState = errors.New("data: no such active data state")

// ErrStateExited is returned by Read/Update for a slot that is still stored
// but marked exited. Deactivate removes the slot from the registry, so a
// Read or Update after Deactivate returns ErrNoSuchDataState instead.
var ErrStateExited = errors.New("data: state has exited")

type slot struct {
	value  any
	stream *stream.Stream[any]
	exited bool
}

// Registry owns the typed data slot of each currently active data state.
type Registry struct {
	mu     sync.Mutex
	active *orderedmap.OrderedMap[tree.Key, *slot]
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{active: orderedmap.New[tree.Key, *slot]()}
}

// Activate creates the slot for key and opens its change stream. Called by
// the engine at on-enter, before the node's OnEnter callback runs.
func (r *Registry) Activate(key tree.Key, initial any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active.Set(key, &slot{value: initial, stream: stream.New(stream.WithInitialValue(initial))})
}

// Read returns the current value for key.
func (r *Registry) Read(key tree.Key) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active.Get(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoSuchDataState, key)
	}
	if s.exited {
		return nil, fmt.Errorf("%w: %s", ErrStateExited, key)
	}
	return s.value, nil
}

// Update atomically replaces the value for key and emits on its change
// stream.
func (r *Registry) Update(key tree.Key, fn func(any) any) error {
	r.mu.Lock()
	s, ok := r.active.Get(key)
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoSuchDataState, key)
	}
	if s.exited {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrStateExited, key)
	}
	s.value = fn(s.value)
	v := s.value
	r.mu.Unlock()
	s.stream.Emit(v)
	return nil
}

// Replace is Update with a constant replacement value.
func (r *Registry) Replace(key tree.Key, v any) error {
	return r.Update(key, func(any) any { return v })
}

// FindAncestor walks path (ordered root..leaf, as produced by
// tree.Spec.PathFromRoot) from the leaf end upward, returning the first
// active data value whose key matches dataType's data-type tag.
func (r *Registry) FindAncestor(path []tree.Key, dataType tree.Key) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(path) - 1; i >= 0; i-- {
		k := path[i]
		if !k.IsData() || k.DataType() != dataType.DataType() {
			continue
		}
		s, ok := r.active.Get(k)
		if ok && !s.exited {
			return s.value, true
		}
	}
	return nil, false
}

// Stream returns the broadcast change stream for key's slot, or nil if key
// is not active.
func (r *Registry) Stream(key tree.Key) *stream.Stream[any] {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active.Get(key)
	if !ok {
		return nil
	}
	return s.stream
}

// Deactivate tears down key's slot. Called by the engine strictly after the
// node's OnExit callback has returned (spec.md §4.2).
func (r *Registry) Deactivate(key tree.Key) {
	r.mu.Lock()
	s, ok := r.active.Get(key)
	if !ok {
		r.mu.Unlock()
		return
	}
	s.exited = true
	r.active.Delete(key)
	r.mu.Unlock()
	s.stream.Close()
}

// IsActive reports whether key currently has a live slot.
func (r *Registry) IsActive(key tree.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.active.Get(key)
	return ok && !s.exited
}

// Entry is one row of a Snapshot, in activation order.
type Entry struct {
	Key   tree.Key
	Value any
}

// Snapshot returns every active slot's key and value, in activation order,
// for use by the persist package (spec.md §6 "Persisted state layout").
func (r *Registry) Snapshot() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]Entry, 0, r.active.Len())
	for pair := r.active.Oldest(); pair != nil; pair = pair.Next() {
		entries = append(entries, Entry{Key: pair.Key, Value: pair.Value.value})
	}
	return entries
}
