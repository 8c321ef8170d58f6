package engine

import "github.com/arborium/hsm/internal/tree"

// runOnEnter invokes n.OnEnter wrapped by n.Filters (outermost first), per
// spec.md §4.1 "filters wrap on-enter and on-exit, never the transition
// action" — the teacher's equivalent is extensibility.LoggingActionRunner
// wrapping a plain ActionRunner.Run.
func (e *Engine) runOnEnter(n *tree.Node, ctx *transitionContext) error {
	next := n.OnEnter
	if next == nil {
		next = func(tree.EnterExitContext) error { return nil }
	}
	for i := len(n.Filters) - 1; i >= 0; i-- {
		next = n.Filters[i].WrapEnter(next)
	}
	return next(ctx)
}

func (e *Engine) runOnExit(n *tree.Node, ctx *transitionContext) error {
	next := n.OnExit
	if next == nil {
		next = func(tree.EnterExitContext) error { return nil }
	}
	for i := len(n.Filters) - 1; i >= 0; i-- {
		next = n.Filters[i].WrapExit(next)
	}
	return next(ctx)
}

func (e *Engine) runOnMessage(n *tree.Node, ctx *messageContext) error {
	next := n.OnMessage
	for i := len(n.Filters) - 1; i >= 0; i-- {
		next = n.Filters[i].WrapMessage(next)
	}
	return next(ctx)
}

func hasPrefix(full, prefix []tree.Key) bool {
	if len(prefix) > len(full) {
		return false
	}
	for i, k := range prefix {
		if full[i] != k {
			return false
		}
	}
	return true
}

func reverseKeys(ks []tree.Key) []tree.Key {
	out := make([]tree.Key, len(ks))
	for i, k := range ks {
		out[len(ks)-1-i] = k
	}
	return out
}
