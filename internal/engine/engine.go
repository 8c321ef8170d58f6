// Package engine implements the hierarchical-state-machine runtime (C5):
// single active leaf plus ancestor chain, LCA-based transition execution,
// redirect-on-entry, self-transition, shallow history and machine-leaf
// composition, all driven by a single-goroutine message loop.
//
// Grounded in the teacher's realtime.Runtime (github.com/comalice/
// statechartx/realtime/runtime.go) and statechart.go: the mutex-guarded
// slice queue with head-prepend for internally raised messages
// (Runtime.SendEvent appends to the back, Runtime.Raise prepends to the
// front — "Prepend to queue for internal priority"), generalized here from
// a flat event table to a tree walk with LCA exit/enter and redirect.
package engine

import (
	"fmt"
	"sync"

	"github.com/arborium/hsm/internal/data"
	"github.com/arborium/hsm/internal/tree"
	"github.com/arborium/hsm/logging"
	"github.com/arborium/hsm/stream"
)

// Engine is the running instance of one tree.Spec.
type Engine struct {
	mu            sync.Mutex
	spec          tree.Spec
	dataReg       *data.Registry
	logger        logging.Logger
	label         string
	redirectLimit int

	started  bool
	terminal bool

	queue []queueEntry
	wake  chan struct{}
	done  chan struct{}

	hasCurrentLeaf bool
	currentLeaf    Key
	activePath     []Key

	lastActiveChild map[Key]Key
	timers          map[Key][]*timerHandle
	nested          map[Key]*nestedState

	transitions     *stream.Stream[Transition]
	processedStream *stream.Stream[ProcessedMessage]
	handledStream   *stream.Stream[HandledMessage]

	disposedSubs     []func()
	suppressDisposed bool
}

type queueEntry struct {
	msg   any
	reply chan ProcessedMessage
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger installs the structured log sink (default logging.Nop{}).
func WithLogger(l logging.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithLabel sets the label attached to every log record.
func WithLabel(label string) Option { return func(e *Engine) { e.label = label } }

// WithRedirectLimit overrides the default on-enter redirect chain bound (8).
func WithRedirectLimit(n int) Option { return func(e *Engine) { e.redirectLimit = n } }

// New constructs a stopped Engine over spec. Call Start to begin running.
func New(spec tree.Spec, opts ...Option) *Engine {
	e := &Engine{
		spec:            spec,
		dataReg:         data.New(),
		logger:          logging.Nop{},
		redirectLimit:   8,
		wake:            make(chan struct{}, 1),
		done:            make(chan struct{}),
		lastActiveChild: map[Key]Key{},
		timers:          map[Key][]*timerHandle{},
		nested:          map[Key]*nestedState{},
		transitions:     stream.New[Transition](),
		processedStream: stream.New[ProcessedMessage](),
		handledStream:   stream.New[HandledMessage](),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Transitions is the broadcast stream of every committed transition.
func (e *Engine) Transitions() *stream.Stream[Transition] { return e.transitions }

// Processed is the broadcast stream of every dispatch outcome.
func (e *Engine) Processed() *stream.Stream[ProcessedMessage] { return e.processedStream }

// Handled pairs each inbound message with its outcome.
func (e *Engine) Handled() *stream.Stream[HandledMessage] { return e.handledStream }

// Data exposes the data registry for the facade package's typed accessors.
func (e *Engine) Data() *data.Registry { return e.dataReg }

// CurrentLeaf returns the active leaf and whether the machine has started.
func (e *Engine) CurrentLeaf() (Key, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentLeaf, e.hasCurrentLeaf
}

// ActivePath returns a copy of the current root..leaf ancestor chain.
func (e *Engine) ActivePath() []Key {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Key{}, e.activePath...)
}

// IsDone reports whether the machine has reached a final state or been
// externally stopped (tree.InnerMachine).
func (e *Engine) IsDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.terminal
}

// Start enters the initial configuration with no initial-child overrides.
// It satisfies tree.InnerMachine for machine-leaf composition.
func (e *Engine) Start() error { return e.StartWithOverrides(nil) }

// StartWithOverrides enters the initial configuration from the root,
// descending via initial-child resolvers (consulting overrides where
// provided) and running on-enter top-down, honoring redirect-on-entry
// (spec.md §4.5 "Start").
func (e *Engine) StartWithOverrides(overrides map[Key]Key) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	path, posted, err := e.enterSuffix(nil, e.spec.RootKey(), nil, false, nil, ReasonInitial, overrides)
	if err != nil {
		e.mu.Lock()
		e.started = false
		e.mu.Unlock()
		e.logger.Log(logging.Error, "start failed", logging.Fields{MachineLabel: e.label, Phase: "start", Err: err})
		return err
	}

	leaf := path[len(path)-1]
	final := e.spec.IsFinal(leaf)

	e.mu.Lock()
	e.currentLeaf = leaf
	e.hasCurrentLeaf = true
	e.activePath = path
	e.terminal = final
	e.mu.Unlock()

	e.logger.Log(logging.Info, "started", logging.Fields{MachineLabel: e.label, Phase: "start", Key: leaf.String()})
	e.transitions.Emit(Transition{To: leaf, EnterPath: path, Reason: ReasonInitial, IsFinal: final})
	e.drainPosted(posted)

	if final {
		e.finishTerminal()
		return nil
	}
	go e.runLoop()
	return nil
}

// PostAsync enqueues msg for asynchronous dispatch (tree.InnerMachine / the
// facade's fire-and-forget send).
func (e *Engine) PostAsync(msg any) {
	e.mu.Lock()
	if e.terminal {
		e.mu.Unlock()
		e.processedStream.Emit(ProcessedMessage{Ignored: true})
		e.handledStream.Emit(HandledMessage{Message: msg, Processed: ProcessedMessage{Ignored: true}})
		return
	}
	e.queue = append(e.queue, queueEntry{msg: msg})
	e.mu.Unlock()
	e.signal()
}

// Send enqueues msg and blocks for its ProcessedMessage outcome.
func (e *Engine) Send(msg any) (ProcessedMessage, error) {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return ProcessedMessage{}, ErrNotStarted
	}
	if e.terminal {
		e.mu.Unlock()
		pm := ProcessedMessage{Ignored: true}
		e.processedStream.Emit(pm)
		e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
		return pm, nil
	}
	reply := make(chan ProcessedMessage, 1)
	e.queue = append(e.queue, queueEntry{msg: msg, reply: reply})
	e.mu.Unlock()
	e.signal()
	return <-reply, nil
}

func (e *Engine) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// drainPosted enqueues messages raised by enter/exit/transition-action
// handlers at the head of the queue, preserving their own relative order,
// exactly as the teacher's Runtime.Raise prepends (statechart.go): "events
// raised during processing run before anything already externally queued".
func (e *Engine) drainPosted(msgs []any) {
	if len(msgs) == 0 {
		return
	}
	e.mu.Lock()
	entries := make([]queueEntry, len(msgs))
	for i, m := range msgs {
		entries[i] = queueEntry{msg: m}
	}
	e.queue = append(entries, e.queue...)
	e.mu.Unlock()
	e.signal()
}

// runLoop is the single goroutine owning this machine's active configuration.
func (e *Engine) runLoop() {
	for {
		e.mu.Lock()
		if e.terminal {
			e.mu.Unlock()
			return
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			<-e.wake
			continue
		}
		entry := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		pm := e.dispatch(entry.msg)
		if entry.reply != nil {
			entry.reply <- pm
		}

		e.mu.Lock()
		done := e.terminal
		e.mu.Unlock()
		if done {
			return
		}
	}
}

// dispatch walks from the active leaf toward the root, offering msg to
// each ancestor's OnMessage in turn, stopping at the first state that
// decides (spec.md §4.4). A machine-leaf node with ForwardMessages set
// gets first refusal via its inner machine before its own OnMessage runs:
// a successful forward itself counts as Handled/Stay, since the outer
// machine cannot transition away from the wrapper while the inner machine
// is still running (spec.md §4.5 "Nested machine state").
func (e *Engine) dispatch(msg any) ProcessedMessage {
	e.mu.Lock()
	leaf := e.currentLeaf
	path := append([]Key{}, e.activePath...)
	e.mu.Unlock()

	if done, ok := msg.(nestedDoneMessage); ok {
		if pm, handled := e.dispatchNestedEvent(done.leaf, path, leaf, msg, func(n *tree.Node, ctx *messageContext) error {
			return n.MachineLeaf.OnDone(ctx)
		}); handled {
			return pm
		}
	}
	if disp, ok := msg.(nestedDisposedMessage); ok {
		if pm, handled := e.dispatchNestedEvent(disp.leaf, path, leaf, msg, func(n *tree.Node, ctx *messageContext) error {
			return n.MachineLeaf.OnDisposed(ctx)
		}); handled {
			return pm
		}
	}

	var inspected []Key
	for i := len(path) - 1; i >= 0; i-- {
		node := path[i]
		n, ok := e.spec.Node(node)
		if !ok {
			inspected = append(inspected, node)
			continue
		}
		if n.Kind == tree.MachineLeaf && e.forwardToNested(node, msg) {
			pm := ProcessedMessage{Kind: Handled, ReceivingLeaf: leaf, HandlingState: node, Inspected: inspected}
			e.processedStream.Emit(pm)
			e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
			return pm
		}
		if n.OnMessage == nil {
			inspected = append(inspected, node)
			continue
		}
		mctx := newMessageContext(e, msg, node, path)
		if pm, done := e.runHandlerAndSettle(n, mctx, leaf, node, msg, inspected); done {
			return pm
		}
		inspected = append(inspected, node)
	}

	pm := ProcessedMessage{Kind: Unhandled, ReceivingLeaf: leaf, Inspected: inspected}
	e.processedStream.Emit(pm)
	e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
	return pm
}

// dispatchNestedEvent invokes a machine-leaf's OnDone/OnDisposed hook
// directly against its node, bypassing the ancestor walk, since the event
// names its owning node explicitly.
func (e *Engine) dispatchNestedEvent(owner Key, path []Key, leaf Key, msg any, call func(*tree.Node, *messageContext) error) (ProcessedMessage, bool) {
	onPath := false
	for _, k := range path {
		if k == owner {
			onPath = true
			break
		}
	}
	if !onPath {
		pm := ProcessedMessage{Ignored: true}
		e.processedStream.Emit(pm)
		e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
		return pm, true
	}
	n, ok := e.spec.Node(owner)
	if !ok || n.MachineLeaf == nil {
		pm := ProcessedMessage{Ignored: true}
		return pm, true
	}
	mctx := newMessageContext(e, msg, owner, path)
	if err := call(n, mctx); err != nil {
		pm := ProcessedMessage{Kind: Failed, ReceivingLeaf: leaf, HandlingState: owner, Err: &HandlerError{Key: owner, Err: err}}
		e.processedStream.Emit(pm)
		e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
		return pm, true
	}
	if !mctx.decided {
		pm := ProcessedMessage{Kind: Handled, ReceivingLeaf: leaf, HandlingState: owner}
		e.processedStream.Emit(pm)
		e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
		return pm, true
	}
	pm, _ := e.settleDecision(mctx, leaf, owner, msg, nil)
	return pm, true
}

// runHandlerAndSettle runs n.OnMessage and, if it decided, settles that
// decision into a ProcessedMessage; the bool return reports whether dispatch
// should stop here.
func (e *Engine) runHandlerAndSettle(n *tree.Node, mctx *messageContext, leaf, node Key, msg any, inspected []Key) (ProcessedMessage, bool) {
	if err := e.runOnMessage(n, mctx); err != nil {
		pm := ProcessedMessage{Kind: Failed, ReceivingLeaf: leaf, HandlingState: node, Err: &HandlerError{Key: node, Err: err}, Inspected: inspected}
		e.logger.Log(logging.Error, "handler failed", logging.Fields{MachineLabel: e.label, Phase: "message", Key: node.String(), Err: err})
		e.processedStream.Emit(pm)
		e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
		return pm, true
	}
	if !mctx.decided {
		err := &HandlerError{Key: node, Err: ErrNoDecision}
		pm := ProcessedMessage{Kind: Failed, ReceivingLeaf: leaf, HandlingState: node, Err: err, Inspected: inspected}
		e.logger.Log(logging.Error, "handler made no decision", logging.Fields{MachineLabel: e.label, Phase: "message", Key: node.String(), Err: err})
		e.processedStream.Emit(pm)
		e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
		return pm, true
	}
	if mctx.kind == decisionUnhandled {
		return ProcessedMessage{}, false
	}
	return e.settleDecision(mctx, leaf, node, msg, inspected)
}

func (e *Engine) settleDecision(mctx *messageContext, leaf, node Key, msg any, inspected []Key) (ProcessedMessage, bool) {
	e.drainPosted(mctx.posted)
	e.armTimers(mctx.scheduled)

	switch mctx.kind {
	case decisionStay:
		pm := ProcessedMessage{Kind: Handled, ReceivingLeaf: leaf, HandlingState: node, Inspected: inspected}
		e.processedStream.Emit(pm)
		e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
		return pm, true
	case decisionGoTo:
		tr, err := e.executeTransition(leaf, node, mctx.target, mctx.goToOpts, ReasonMessage)
		if err != nil {
			pm := ProcessedMessage{Kind: Failed, ReceivingLeaf: leaf, HandlingState: node, Err: err, Inspected: inspected}
			e.processedStream.Emit(pm)
			e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
			return pm, true
		}
		pm := ProcessedMessage{Kind: Handled, ReceivingLeaf: leaf, HandlingState: node, Transition: tr, Inspected: inspected}
		e.processedStream.Emit(pm)
		e.handledStream.Emit(HandledMessage{Message: msg, Processed: pm})
		if tr.IsFinal {
			e.finishTerminal()
		}
		return pm, true
	default:
		return ProcessedMessage{}, false
	}
}

// Stop halts the machine externally, entering the implicit tree.Stopped
// leaf without running any further message dispatch (spec.md §4.5
// "external stop").
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.terminal {
		e.mu.Unlock()
		return
	}
	path := append([]Key{}, e.activePath...)
	e.mu.Unlock()

	e.exitNodesRaw(reverseKeys(path))
	e.cancelAllTimers()

	e.mu.Lock()
	e.currentLeaf = tree.Stopped
	e.activePath = nil
	e.terminal = true
	suppressed := e.suppressDisposed
	e.mu.Unlock()

	e.transitions.Emit(Transition{From: path[len(path)-1], HasFrom: true, To: tree.Stopped, ExitPath: reverseKeys(path), Reason: ReasonExternalStop, IsFinal: true})
	e.signal()
	e.notifyDone()
	if !suppressed {
		e.notifyDisposed()
	}
}

func (e *Engine) finishTerminal() {
	e.mu.Lock()
	e.terminal = true
	e.mu.Unlock()
	e.cancelAllTimers()
	e.notifyDone()
}

func (e *Engine) notifyDone() {
	select {
	case <-e.done:
	default:
		close(e.done)
	}
}

// Done returns a channel closed once the machine reaches a terminal state.
func (e *Engine) Done() <-chan struct{} { return e.done }

// resolveLeaf descends from target via initial-child resolution (consulting
// overrides, used only at Start) until a leaf node is reached.
func (e *Engine) resolveLeaf(target Key, overrides map[Key]Key) (Key, error) {
	cur := target
	seen := map[Key]bool{}
	for {
		n, ok := e.spec.Node(cur)
		if !ok {
			return Key{}, fmt.Errorf("%w: %s", ErrUndefinedState, cur)
		}
		if n.Kind.IsLeaf() {
			return cur, nil
		}
		if seen[cur] {
			return Key{}, ErrRedirectCycle
		}
		seen[cur] = true
		if overrides != nil {
			if ov, ok := overrides[cur]; ok {
				cur = ov
				continue
			}
		}
		ctx := newTransitionContext(e, cur, nil, false, nil, e.ActivePath())
		e.mu.Lock()
		ctx.lastChild = e.lastActiveChild
		e.mu.Unlock()
		next := e.spec.InitialChild(cur, ctx)
		if next.IsZero() {
			return Key{}, fmt.Errorf("%w: no initial child for %s", ErrUndefinedState, cur)
		}
		cur = next
	}
}
