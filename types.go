// Package hsm is the façade over the hierarchical state machine runtime:
// build a tree with the builder package, construct a Machine from it, Start
// it, and Send or Post messages.
//
// Grounded in the teacher's top-level statechartx package (statechart.go /
// context.go), which exposes Runtime/State/Event/StateID as the single
// public surface over the lower internal packages — this package plays the
// same role over internal/tree, internal/engine, internal/data and stream.
package hsm

import (
	"github.com/arborium/hsm/internal/engine"
	"github.com/arborium/hsm/internal/tree"
)

// StateKey names one node in the tree. Construct with NewKey or
// NewDataKey[D].
type StateKey = tree.Key

// NewKey names a plain state.
func NewKey(name string) StateKey { return tree.NewKey(name) }

// NewDataKey names a data state carrying values of type D.
func NewDataKey[D any](name string) StateKey { return tree.NewDataKey[D](name) }

// Stopped is the implicit leaf entered by an external Stop.
var Stopped = tree.Stopped

// Reason classifies why a transition happened.
type Reason = engine.Reason

const (
	ReasonInitial      = engine.ReasonInitial
	ReasonMessage      = engine.ReasonMessage
	ReasonRedirect     = engine.ReasonRedirect
	ReasonExternalStop = engine.ReasonExternalStop
	ReasonNestedDone   = engine.ReasonNestedDone
)

// Transition is one committed transition record.
type Transition = engine.Transition

// ProcessedKind is the outcome of dispatching one message.
type ProcessedKind = engine.ProcessedKind

const (
	Handled   = engine.Handled
	Unhandled = engine.Unhandled
	Failed    = engine.Failed
)

// ProcessedMessage is the per-dispatch observability record.
type ProcessedMessage = engine.ProcessedMessage

// HandledMessage pairs a message with its outcome.
type HandledMessage = engine.HandledMessage

// Re-exported handler types and context interfaces, so callers only ever
// import this package and builder.
type (
	EnterExitContext    = tree.EnterExitContext
	MessageContext      = tree.MessageContext
	InitialChildContext = tree.InitialChildContext
	DataAccessor        = tree.DataAccessor
	GoToOption          = tree.GoToOption
	Filter              = tree.Filter
	Codec               = tree.Codec
	MachineLeafConfig   = tree.MachineLeafConfig
	InnerMachine        = tree.InnerMachine

	OnEnterFunc          = tree.OnEnterFunc
	OnExitFunc           = tree.OnExitFunc
	OnMessageFunc        = tree.OnMessageFunc
	TransitionActionFunc = tree.TransitionActionFunc
	DataFactoryFunc      = tree.DataFactoryFunc
	InitialChildFunc     = tree.InitialChildFunc
)

// WithPayload, WithMetadata, WithReenter and WithTransitionAction configure
// a GoTo decision.
var (
	WithPayload          = tree.WithPayload
	WithMetadata         = tree.WithMetadata
	WithReenter          = tree.WithReenter
	WithTransitionAction = tree.WithTransitionAction
)

// Sentinel errors re-exported for callers that want errors.Is.
var (
	ErrRedirectCycle  = engine.ErrRedirectCycle
	ErrNotStarted     = engine.ErrNotStarted
	ErrAlreadyStarted = engine.ErrAlreadyStarted
	ErrUndefinedState = engine.ErrUndefinedState
	ErrNoDecision     = engine.ErrNoDecision
)

// DefinitionError is raised by builder.Build when a tree fails validation.
type DefinitionError = tree.DefinitionError

// HandlerError wraps an error raised from a handler callback.
type HandlerError = engine.HandlerError
