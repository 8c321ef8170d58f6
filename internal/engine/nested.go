package engine

import (
	"sync"

	"github.com/arborium/hsm/internal/tree"
)

// OnTransition registers fn to be called on every committed transition
// (tree.InnerMachine, consumed by an outer machine-leaf's forwarding
// wiring). The returned cancel func removes the subscription.
func (e *Engine) OnTransition(fn func(from, to Key, isFinal bool)) (cancel func()) {
	sub := e.transitions.Subscribe(false)
	var once sync.Once
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case ev, ok := <-sub.C():
				if !ok {
					return
				}
				if ev.Closed || ev.Err != nil {
					return
				}
				fn(ev.Value.From, ev.Value.To, ev.Value.IsFinal)
			case <-stop:
				return
			}
		}
	}()
	return func() {
		once.Do(func() {
			close(stop)
			sub.Unsubscribe()
		})
	}
}

// OnDisposed registers fn to run if this machine is stopped from outside
// its own normal teardown path (tree.InnerMachine). The common case —
// an outer machine-leaf tearing down its inner machine as part of its own
// exit — suppresses this notification via suppressDisposedOnExit.
func (e *Engine) OnDisposed(fn func()) (cancel func()) {
	e.mu.Lock()
	idx := len(e.disposedSubs)
	e.disposedSubs = append(e.disposedSubs, fn)
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		if idx < len(e.disposedSubs) {
			e.disposedSubs[idx] = nil
		}
		e.mu.Unlock()
	}
}

func (e *Engine) notifyDisposed() {
	e.mu.Lock()
	subs := append([]func(){}, e.disposedSubs...)
	e.mu.Unlock()
	for _, fn := range subs {
		if fn != nil {
			fn()
		}
	}
}

// suppressDisposedOnExit marks this engine so a subsequent Stop() (called
// by the owning machine-leaf as ordinary teardown) does not fire
// OnDisposed subscribers.
func (e *Engine) suppressDisposedOnExit() {
	e.mu.Lock()
	e.suppressDisposed = true
	e.mu.Unlock()
}

// nestedState tracks one active machine-leaf's inner machine and its
// forwarding subscriptions (spec.md §4.6 "Machine-leaf composition").
//
// Grounded in the teacher's statechart.go sub-machine hooks (realtime.
// Runtime embeds a child Runtime for composite regions); generalized here
// so the inner machine is any tree.InnerMachine, recursively an *Engine in
// the common case.
type nestedState struct {
	inner           tree.InnerMachine
	cancelTransit   func()
	cancelDisposed  func()
	forwardMessages bool
}

// startMachineLeaf constructs and starts the inner machine for a
// machine-leaf node being entered, wiring done/disposed forwarding per its
// MachineLeafConfig.
func (e *Engine) startMachineLeaf(node Key, n *tree.Node, ctx *transitionContext) error {
	cfg := n.MachineLeaf
	inner := cfg.New(ctx)
	ns := &nestedState{inner: inner, forwardMessages: cfg.ForwardMessages}

	if cfg.IsDone != nil || cfg.OnDone != nil {
		ns.cancelTransit = inner.OnTransition(func(from, to Key, isFinal bool) {
			done := isFinal
			if !done && cfg.IsDone != nil {
				done = cfg.IsDone(from, to, isFinal)
			}
			if done && cfg.OnDone != nil {
				e.PostAsync(nestedDoneMessage{leaf: node, from: from, to: to})
			}
		})
	}
	if cfg.OnDisposed != nil {
		ns.cancelDisposed = inner.OnDisposed(func() {
			e.PostAsync(nestedDisposedMessage{leaf: node})
		})
	}

	e.mu.Lock()
	e.nested[node] = ns
	e.mu.Unlock()

	return inner.Start()
}

// stopMachineLeaf tears down the inner machine belonging to a machine-leaf
// node being exited, suppressing its OnDisposed notification since this is
// ordinary teardown, not an out-of-band stop.
func (e *Engine) stopMachineLeaf(node Key) {
	e.mu.Lock()
	ns, ok := e.nested[node]
	delete(e.nested, node)
	e.mu.Unlock()
	if !ok {
		return
	}
	if s, ok := ns.inner.(interface{ suppressDisposedOnExit() }); ok {
		s.suppressDisposedOnExit()
	}
	if ns.cancelTransit != nil {
		ns.cancelTransit()
	}
	if ns.cancelDisposed != nil {
		ns.cancelDisposed()
	}
	ns.inner.Stop()
}

// forwardToNested hands msg to the currently active machine-leaf's inner
// machine, if any and if its config asked for forwarding. Used by dispatch
// before falling back to this node's own OnMessage.
func (e *Engine) forwardToNested(node Key, msg any) bool {
	e.mu.Lock()
	ns, ok := e.nested[node]
	e.mu.Unlock()
	if !ok || !ns.forwardMessages {
		return false
	}
	ns.inner.PostAsync(msg)
	return true
}

type nestedDoneMessage struct {
	leaf     Key
	from, to Key
}

type nestedDisposedMessage struct{ leaf Key }
