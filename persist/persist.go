// Package persist implements the snapshot persistence contract (spec.md §6
// "Persisted state layout"): the active path and each active data state's
// encoded value, round-tripped through a Codec per data key. Armed timers
// are not captured.
//
// Grounded in the teacher's internal/production.YAMLPersister (github.com/
// comalice/statechartx/internal/production/persister.go), which saves a
// core.MachineSnapshot as one YAML file per machine ID; generalized from a
// single JSON/YAML-tagged struct to per-key tree.Codec encoding so each
// data state controls its own wire format (spec.md's "Codec" node field).
package persist

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/arborium/hsm/internal/data"
	"github.com/arborium/hsm/internal/tree"
)

// ErrSnapshotMismatch is returned by ResolveOverrides and Restore when a
// snapshot names a state that the target spec does not define (spec.md §7).
var ErrSnapshotMismatch = errors.New("persist: snapshot does not match spec")

// DataEntry is one active data state's encoded value.
type DataEntry struct {
	Key   string `yaml:"key"`
	Value []byte `yaml:"value,omitempty"`
}

// Snapshot is the on-wire representation of one machine instance (spec.md
// §6): the full active path, root to leaf, plus each active data state's
// encoded value in activation order.
type Snapshot struct {
	MachineLabel string      `yaml:"machine_label,omitempty"`
	ActivePath   []string    `yaml:"active_path"`
	Data         []DataEntry `yaml:"data,omitempty"`
}

// Capture builds a Snapshot from a running machine's active path and data
// registry, encoding each data entry with its node's Codec (entries with no
// codec are skipped — spec.md leaves un-codec'd data out of scope for
// persistence, matching the "persistence is opt-in per data state" design).
func Capture(label string, activePath []tree.Key, spec tree.Spec, reg *data.Registry) (Snapshot, error) {
	s := Snapshot{MachineLabel: label}
	for _, k := range activePath {
		s.ActivePath = append(s.ActivePath, k.String())
	}
	for _, entry := range reg.Snapshot() {
		n, ok := spec.Node(entry.Key)
		if !ok || n.Codec == nil {
			continue
		}
		enc, err := n.Codec.Encode(entry.Value)
		if err != nil {
			return Snapshot{}, fmt.Errorf("encode %s: %w", entry.Key, err)
		}
		s.Data = append(s.Data, DataEntry{Key: entry.Key.String(), Value: enc})
	}
	return s, nil
}

// ResolveOverrides turns a captured active path back into the initial-
// child overrides Start consumes, so the machine re-enters along the exact
// saved path instead of each composite's normal initial-child resolver
// (spec.md §4.5 Start's "overrides" parameter).
func ResolveOverrides(s Snapshot, spec tree.Spec) (map[tree.Key]tree.Key, error) {
	byName := map[string]tree.Key{}
	for _, k := range spec.Descendants(spec.RootKey()) {
		byName[k.String()] = k
	}
	resolved := make([]tree.Key, 0, len(s.ActivePath))
	for _, name := range s.ActivePath {
		k, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown state %q", ErrSnapshotMismatch, name)
		}
		resolved = append(resolved, k)
	}
	overrides := make(map[tree.Key]tree.Key, len(resolved))
	for i := 0; i+1 < len(resolved); i++ {
		overrides[resolved[i]] = resolved[i+1]
	}
	return overrides, nil
}

// Restore decodes each saved data entry and writes it back into reg,
// overwriting the fresh value DataFactory produced during Start. Call this
// immediately after Start succeeds with ResolveOverrides' map.
func Restore(s Snapshot, spec tree.Spec, reg *data.Registry) error {
	byName := map[string]tree.Key{}
	for _, k := range spec.Descendants(spec.RootKey()) {
		byName[k.String()] = k
	}
	for _, e := range s.Data {
		key, ok := byName[e.Key]
		if !ok {
			return fmt.Errorf("%w: unknown state %q", ErrSnapshotMismatch, e.Key)
		}
		n, ok := spec.Node(key)
		if !ok || n.Codec == nil {
			continue
		}
		v, err := n.Codec.Decode(e.Value)
		if err != nil {
			return fmt.Errorf("persist: decode %s: %w", e.Key, err)
		}
		if err := reg.Replace(key, v); err != nil {
			return fmt.Errorf("persist: replace %s: %w", e.Key, err)
		}
	}
	return nil
}

// Codec is the persistence-layer serialization contract for a Snapshot
// (spec.md §6 "Persister").
type Codec interface {
	Marshal(Snapshot) ([]byte, error)
	Unmarshal([]byte) (Snapshot, error)
}

// YAMLCodec is the one reference Codec, grounded in the teacher's
// YAMLPersister.
type YAMLCodec struct{}

func (YAMLCodec) Marshal(s Snapshot) ([]byte, error) {
	b, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("persist: yaml marshal: %w", err)
	}
	return b, nil
}

func (YAMLCodec) Unmarshal(b []byte) (Snapshot, error) {
	var s Snapshot
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Snapshot{}, fmt.Errorf("persist: yaml unmarshal: %w", err)
	}
	return s, nil
}
