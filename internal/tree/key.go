// Package tree provides the immutable tree model (C1): state identity,
// node descriptions, the definition surface consumed by the engine, and
// tree validation / LCA / path queries.
//
// Grounded in the teacher's primitives.StateConfig / primitives.MachineConfig
// (github.com/comalice/statechartx/internal/primitives), generalized from a
// flat ID-map-of-StateConfig into an immutable node arena addressed by Key,
// with typed data-state keys added (spec.md §3 "StateKey").
package tree

import (
	"fmt"
	"reflect"
)

// Key is an opaque identity for a state. Two states with the same Name but
// different data types are distinct keys; equality is structural over
// (name, optional data type tag), matching spec.md §3.
type Key struct {
	name     string
	dataType reflect.Type
}

// NewKey creates a plain (non-data) key.
func NewKey(name string) Key {
	return Key{name: name}
}

// NewDataKey creates a key that witnesses it stores data of type D.
func NewDataKey[D any](name string) Key {
	var zero D
	return Key{name: name, dataType: reflect.TypeOf(&zero).Elem()}
}

// Name returns the human-readable name of the key.
func (k Key) Name() string { return k.name }

// IsData reports whether this key carries a data-type tag.
func (k Key) IsData() bool { return k.dataType != nil }

// DataType returns the reflect.Type tag for a data key, or nil for a plain
// key.
func (k Key) DataType() reflect.Type { return k.dataType }

// String implements fmt.Stringer for diagnostics and log fields.
func (k Key) String() string {
	if k.dataType != nil {
		return fmt.Sprintf("%s<%s>", k.name, k.dataType)
	}
	return k.name
}

// IsZero reports whether k is the zero Key value (used as a sentinel for
// "no key").
func (k Key) IsZero() bool { return k == Key{} }

// Stopped is the always-present implicit final leaf entered by Machine.Stop.
var Stopped = NewKey("<stopped>")
