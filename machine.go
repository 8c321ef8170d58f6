package hsm

import (
	"errors"
	"fmt"

	"github.com/arborium/hsm/internal/data"
	"github.com/arborium/hsm/internal/engine"
	"github.com/arborium/hsm/internal/tree"
	"github.com/arborium/hsm/logging"
	"github.com/arborium/hsm/stream"
)

// ErrDataTypeMismatch is returned by DataValue when the active data
// state's stored value does not assert to the requested type.
var ErrDataTypeMismatch = errors.New("hsm: data value type mismatch")

// Option configures a Machine at construction, mirroring engine.Option.
type Option = engine.Option

// WithLogger installs the structured log sink.
func WithLogger(l logging.Logger) Option { return engine.WithLogger(l) }

// WithLabel sets the label attached to every log record.
func WithLabel(label string) Option { return engine.WithLabel(label) }

// WithRedirectLimit overrides the default on-enter redirect chain bound.
func WithRedirectLimit(n int) Option { return engine.WithRedirectLimit(n) }

// Machine is a constructed, not-yet-started (or running) state machine
// instance over one tree.Spec.
type Machine struct {
	spec tree.Spec
	eng  *engine.Engine
}

// New constructs a Machine over spec (typically produced by
// builder.Build).
func New(spec tree.Spec, opts ...Option) *Machine {
	return &Machine{spec: spec, eng: engine.New(spec, opts...)}
}

// Spec returns the underlying validated tree definition, e.g. for dot.Export.
func (m *Machine) Spec() tree.Spec { return m.spec }

// Start enters the initial configuration. overrides, if non-nil, forces
// specific composites' initial child (used to restore a persisted path);
// see persist.ResolveOverrides.
func (m *Machine) Start(overrides map[StateKey]StateKey) error {
	return m.eng.StartWithOverrides(overrides)
}

// Stop halts the machine externally (spec.md §4.5).
func (m *Machine) Stop() { m.eng.Stop() }

// Send enqueues msg and blocks until it has been fully processed,
// returning its outcome.
func (m *Machine) Send(msg any) (ProcessedMessage, error) { return m.eng.Send(msg) }

// Post enqueues msg without waiting for its outcome; observe Handled() or
// Processed() to learn what happened.
func (m *Machine) Post(msg any) { m.eng.PostAsync(msg) }

// Done is closed once the machine reaches a terminal state (a final leaf
// or an external Stop).
func (m *Machine) Done() <-chan struct{} { return m.eng.Done() }

// IsDone reports whether the machine has reached a terminal state.
func (m *Machine) IsDone() bool { return m.eng.IsDone() }

// Current returns a read-only view of the active configuration.
func (m *Machine) Current() CurrentState {
	leaf, started := m.eng.CurrentLeaf()
	return CurrentState{machine: m, leaf: leaf, started: started}
}

// Transitions is the broadcast stream of every committed transition.
func (m *Machine) Transitions() *stream.Stream[Transition] { return m.eng.Transitions() }

// Processed is the broadcast stream of every dispatch outcome.
func (m *Machine) Processed() *stream.Stream[ProcessedMessage] { return m.eng.Processed() }

// Handled pairs each inbound message with its outcome.
func (m *Machine) Handled() *stream.Stream[HandledMessage] { return m.eng.Handled() }

// data exposes the registry for CurrentState's typed accessors.
func (m *Machine) data() *data.Registry { return m.eng.Data() }

// CurrentState is a handle onto the machine's active configuration. Key and
// Started are captured when Current is called; IsIn and the data accessors
// read the machine's live configuration.
type CurrentState struct {
	machine *Machine
	leaf    StateKey
	started bool
}

// Key returns the active leaf.
func (c CurrentState) Key() StateKey { return c.leaf }

// Started reports whether Start has completed at least once.
func (c CurrentState) Started() bool { return c.started }

// IsIn reports whether key is the active leaf or one of its ancestors.
func (c CurrentState) IsIn(key StateKey) bool {
	for _, k := range c.machine.eng.ActivePath() {
		if k == key {
			return true
		}
	}
	return false
}

// DataValue reads the typed value of an active data state by key.
func DataValue[D any](c CurrentState, key StateKey) (D, error) {
	var zero D
	v, err := c.machine.data().Read(key)
	if err != nil {
		return zero, err
	}
	d, ok := v.(D)
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrDataTypeMismatch, key)
	}
	return d, nil
}

// FindAncestorData searches the active ancestor chain for the nearest data
// state whose key carries values of type D.
func FindAncestorData[D any](c CurrentState, dataType StateKey) (D, bool) {
	var zero D
	v, ok := c.machine.data().FindAncestor(c.machine.eng.ActivePath(), dataType)
	if !ok {
		return zero, false
	}
	d, ok := v.(D)
	return d, ok
}
