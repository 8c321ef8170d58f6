package tree

import "time"

// DataAccessor is the subset of context behavior shared by enter/exit and
// message handlers: typed access to the active data registry, scoped to the
// node whose handler is running (spec.md §4.2, §4.4).
type DataAccessor interface {
	// Data returns the current value stored for key, or an error if the
	// data state named by key is not active (NoSuchDataState).
	Data(key Key) (any, error)
	// FindAncestorData returns the nearest active ancestor's data value
	// whose key carries dataType, walking from the current leaf upward.
	FindAncestorData(dataType Key) (any, bool)
	// UpdateData atomically replaces the value stored for key.
	UpdateData(key Key, fn func(any) any) error
	// ReplaceData is UpdateData with a constant replacement value.
	ReplaceData(key Key, v any) error
}

// EnterExitContext is what on-enter, on-exit, and transition-action
// handlers see (spec.md §4.3 TransitionContext, as exposed to handlers).
type EnterExitContext interface {
	DataAccessor

	// Payload returns the payload attached by the triggering handler, if
	// any.
	Payload() (any, bool)
	// Metadata returns the free-form annotation map carried on this
	// transition.
	Metadata() map[string]any
	// SetMetadata adds or overwrites a metadata entry.
	SetMetadata(k string, v any)
	// Redirect abandons the remainder of the current entry path and
	// re-routes to target (spec.md §4.5 step 5, §4.1 redirect). Only
	// meaningful when called from on-enter.
	Redirect(target Key)
	// Post queues msg for dispatch strictly after the current transition
	// completes (spec.md §4.3 "posted").
	Post(msg any)
	// Schedule arms a timer owned by the node whose handler is running;
	// it is cancelled when that node exits (spec.md §4.5 "Timers").
	Schedule(produce func() any, delay time.Duration, periodic bool)
}

// MessageContext is what an on-message handler sees (spec.md §4.4).
type MessageContext interface {
	DataAccessor

	// Message returns the message being dispatched.
	Message() any

	// Decisions. One must be called before the handler returns; a handler
	// that calls none fails with ErrNoDecision, and if several are called
	// the last one wins.
	GoTo(target Key, opts ...GoToOption)
	GoToSelf()
	Stay()
	Unhandled()

	// Side effects: do not themselves decide.
	Post(msg any)
	Schedule(produce func() any, delay time.Duration, periodic bool)
}

// GoToOption configures a GoTo decision.
type GoToOption func(*GoToOptions)

// GoToOptions is the resolved configuration of a GoTo decision.
type GoToOptions struct {
	Payload          any
	HasPayload       bool
	Metadata         map[string]any
	Reenter          bool
	TransitionAction TransitionActionFunc
}

// WithPayload attaches a payload to a GoTo decision.
func WithPayload(v any) GoToOption {
	return func(o *GoToOptions) { o.Payload = v; o.HasPayload = true }
}

// WithMetadata merges metadata entries into a GoTo decision.
func WithMetadata(md map[string]any) GoToOption {
	return func(o *GoToOptions) {
		if o.Metadata == nil {
			o.Metadata = make(map[string]any, len(md))
		}
		for k, v := range md {
			o.Metadata[k] = v
		}
	}
}

// WithReenter forces exit+re-entry of the target itself when target is an
// ancestor of (or equal to) the source leaf: the target's parent becomes the
// transition boundary. It has no effect for any other target.
func WithReenter(reenter bool) GoToOption {
	return func(o *GoToOptions) { o.Reenter = reenter }
}

// WithTransitionAction runs action between exit and enter (spec.md §4.5
// step 4).
func WithTransitionAction(action TransitionActionFunc) GoToOption {
	return func(o *GoToOptions) { o.TransitionAction = action }
}

// ResolveGoToOptions applies opts and returns the resolved options.
func ResolveGoToOptions(opts []GoToOption) GoToOptions {
	var o GoToOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// OnEnterFunc is a state's entry action.
type OnEnterFunc func(ctx EnterExitContext) error

// OnExitFunc is a state's exit action.
type OnExitFunc func(ctx EnterExitContext) error

// OnMessageFunc is a state's message handler.
type OnMessageFunc func(ctx MessageContext) error

// TransitionActionFunc runs between exit and enter of a transition.
type TransitionActionFunc func(ctx EnterExitContext) error

// DataFactoryFunc produces the initial value for a data state's slot; it may
// consult the in-progress transition's payload.
type DataFactoryFunc func(ctx EnterExitContext) any

// InitialChildContext is passed to an InitialChildFunc resolver.
type InitialChildContext interface {
	EnterExitContext
	// LastActiveChild returns the child recorded as last active at this
	// node's most recent exit, for shallow-history resolvers.
	LastActiveChild() (Key, bool)
}

// InitialChildFunc resolves the child to descend into from a composite
// node. The default resolver used by the builder for a plain composite just
// returns a fixed key; a shallow-history node's resolver consults
// LastActiveChild first.
type InitialChildFunc func(ctx InitialChildContext) Key

// Codec is the (interface-only, per spec.md §1 non-goals) persistence hook
// for a data state: encode/decode its value to bytes.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

// Filter wraps message and enter/exit handlers in declaration order
// (spec.md §4.5 step 1, §9 open question: filters do not wrap the
// transition-action of a GoTo).
type Filter interface {
	WrapMessage(next OnMessageFunc) OnMessageFunc
	WrapEnter(next OnEnterFunc) OnEnterFunc
	WrapExit(next OnExitFunc) OnExitFunc
}

// InnerMachine is the minimal surface a machine-leaf's embedded machine
// must expose to the engine (spec.md §4.5 "Nested machine state"). The
// engine's own Engine type implements this, so a machine-leaf's inner
// machine is, recursively, another Engine.
type InnerMachine interface {
	Start() error
	Stop()
	PostAsync(msg any)
	IsDone() bool
	OnTransition(fn func(from, to Key, isFinal bool)) (cancel func())
	OnDisposed(fn func()) (cancel func())
}

// MachineLeafConfig configures a machine-leaf node.
type MachineLeafConfig struct {
	// New constructs (or adopts) the inner machine when this leaf is
	// entered.
	New func(ctx EnterExitContext) InnerMachine
	// ForwardMessages, when true, forwards every message dispatched to
	// this leaf to the inner machine's PostAsync, and the outer dispatch
	// reports it Handled by this leaf without running its OnMessage.
	ForwardMessages bool
	// IsDone evaluates whether an inner transition completes the nested
	// machine. A transition to an inner final leaf is always done,
	// regardless of this predicate.
	IsDone func(from, to Key, isFinal bool) bool
	// OnDone is invoked when the inner machine is done; it must produce a
	// GoTo decision.
	OnDone OnMessageFunc
	// OnDisposed is invoked if the inner machine is disposed out of band.
	OnDisposed OnMessageFunc
}
