package engine

import (
	"fmt"

	"github.com/arborium/hsm/internal/tree"
	"github.com/arborium/hsm/logging"
)

// redirectOutOfScope signals that an enterSuffix redirect landed outside
// the subtree rooted at the caller's prefix boundary, so the caller must
// widen the boundary (exit further up) before retrying (spec.md §4.5 step
// 5, "restart transition from step 1 with the redirect as the new
// target").
type redirectOutOfScope struct{ target Key }

func (r *redirectOutOfScope) Error() string {
	return fmt.Sprintf("engine: redirect target %s outside current exit boundary", r.target)
}

func sliceAfter(full []Key, after Key) []Key {
	for i, k := range full {
		if k == after {
			return append([]Key{}, full[i+1:]...)
		}
	}
	return append([]Key{}, full...)
}

func prefixAppend(prefix, suffix []Key) []Key {
	out := make([]Key, 0, len(prefix)+len(suffix))
	out = append(out, prefix...)
	out = append(out, suffix...)
	return out
}

func (e *Engine) recordHistory(exitedChild Key) {
	parent, ok := e.spec.Parent(exitedChild)
	if !ok {
		return
	}
	pn, ok := e.spec.Node(parent)
	if !ok || !pn.RemembersLastChild {
		return
	}
	e.mu.Lock()
	e.lastActiveChild[parent] = exitedChild
	e.mu.Unlock()
}

// exitPath runs on-exit for each node of path in the order given; path must
// already be in deepest-first order. It stops at the first handler error,
// returning the nodes it actually finished exiting.
func (e *Engine) exitPath(path []Key) (exited []Key, posted []any, err error) {
	for _, node := range path {
		n, ok := e.spec.Node(node)
		if !ok {
			continue
		}
		if n.Kind == tree.MachineLeaf {
			e.stopMachineLeaf(node)
		}
		ctx := newTransitionContext(e, node, nil, false, nil, e.spec.PathFromRoot(node))
		if hErr := e.runOnExit(n, ctx); hErr != nil {
			return exited, posted, &HandlerError{Key: node, Err: hErr}
		}
		posted = append(posted, ctx.posted...)
		e.armTimers(ctx.scheduled)
		e.recordHistory(node)
		e.cancelTimersFor(node)
		e.dataReg.Deactivate(node)
		exited = append(exited, node)
	}
	return exited, posted, nil
}

// exitNodesRaw tears down path unconditionally, logging (not propagating)
// any handler error. Used for redirect rollback within enterSuffix, where
// the nodes being undone never became part of any committed configuration,
// and by Stop to tear down the whole active path.
func (e *Engine) exitNodesRaw(path []Key) []any {
	var posted []any
	for _, node := range path {
		n, ok := e.spec.Node(node)
		if !ok {
			continue
		}
		if n.Kind == tree.MachineLeaf {
			e.stopMachineLeaf(node)
		}
		ctx := newTransitionContext(e, node, nil, false, nil, e.spec.PathFromRoot(node))
		if err := e.runOnExit(n, ctx); err != nil {
			e.logger.Log(logging.Warn, "rollback exit handler failed", logging.Fields{MachineLabel: e.label, Phase: "rollback", Key: node.String(), Err: err})
		}
		posted = append(posted, ctx.posted...)
		e.cancelTimersFor(node)
		e.dataReg.Deactivate(node)
	}
	return posted
}

// enterSuffix enters the path from target's resolved leaf back up to (but
// not including) prefix, shallow-first, honoring on-enter redirect within
// prefix's subtree. Returns the full path (prefix+entered) on success.
func (e *Engine) enterSuffix(prefix []Key, target Key, payload any, hasPayload bool, metadata map[string]any, reason Reason, overrides map[Key]Key) ([]Key, []any, error) {
	attempts := 0
	for {
		leaf, err := e.resolveLeaf(target, overrides)
		if err != nil {
			return nil, nil, err
		}
		full := e.spec.PathFromRoot(leaf)
		if !hasPrefix(full, prefix) {
			return nil, nil, &redirectOutOfScope{target: leaf}
		}
		suffix := full[len(prefix):]

		var entered []Key
		var posted []any
		redirected := false
		var nextTarget Key

		for _, node := range suffix {
			n, _ := e.spec.Node(node)
			activePath := prefixAppend(prefix, entered)
			ctx := newTransitionContext(e, node, payload, hasPayload, metadata, activePath)
			e.mu.Lock()
			ctx.lastChild = e.lastActiveChild
			e.mu.Unlock()

			var val any
			if n.DataFactory != nil {
				val = n.DataFactory(ctx)
			}
			e.dataReg.Activate(node, val)

			if hErr := e.runOnEnter(n, ctx); hErr != nil {
				entered = append(entered, node)
				return prefixAppend(prefix, entered), posted, &HandlerError{Key: node, Err: hErr}
			}
			entered = append(entered, node)
			posted = append(posted, ctx.posted...)
			e.armTimers(ctx.scheduled)

			if n.Kind == tree.MachineLeaf {
				if mErr := e.startMachineLeaf(node, n, ctx); mErr != nil {
					return prefixAppend(prefix, entered), posted, &HandlerError{Key: node, Err: mErr}
				}
			}

			if ctx.hasRedirect {
				e.exitNodesRaw(reverseKeys(entered))
				redirected = true
				nextTarget = ctx.redirect
				break
			}
		}

		if !redirected {
			return prefixAppend(prefix, entered), posted, nil
		}
		attempts++
		if attempts > e.redirectLimit {
			return nil, nil, ErrRedirectCycle
		}
		target = nextTarget
	}
}

// revertToLeaf re-enters from prefix down to target, best-effort, used to
// restore the pre-transition leaf after a failed exit/action/enter phase
// or an exhausted redirect chain (spec.md §4.5: RedirectCycle and
// transition-time handler failures "revert to the pre-transition leaf").
func (e *Engine) revertToLeaf(prefix []Key, target Key) {
	if _, _, err := e.enterSuffix(prefix, target, nil, false, nil, ReasonRedirect, nil); err != nil {
		e.logger.Log(logging.Error, "revert to pre-transition leaf failed", logging.Fields{MachineLabel: e.label, Phase: "revert", Key: target.String(), Err: err})
	}
}

// executeTransition runs the full LCA exit/transition-action/enter
// algorithm for a handler's GoTo decision (spec.md §4.5).
func (e *Engine) executeTransition(sourceLeaf Key, handlingNode Key, targetRaw Key, opts tree.GoToOptions, reason Reason) (*Transition, error) {
	leaf0, err := e.resolveLeaf(targetRaw, nil)
	if err != nil {
		return nil, err
	}

	lca := e.spec.LCA(sourceLeaf, leaf0)
	// Reenter only lowers the LCA when the target is an ancestor of the
	// source leaf (or the leaf itself): the boundary becomes the target's
	// parent, so the target is exited and re-entered. For an unrelated
	// target, lca is already the correct boundary and must not be widened
	// past a true common ancestor (spec.md §4.5 step 2).
	if opts.Reenter {
		for _, k := range e.spec.PathFromRoot(sourceLeaf) {
			if k != targetRaw {
				continue
			}
			if p, ok := e.spec.Parent(targetRaw); ok {
				lca = p
			}
			break
		}
	}

	exitSuffix := reverseKeys(sliceAfter(e.spec.PathFromRoot(sourceLeaf), lca))
	exited, posted1, err := e.exitPath(exitSuffix)
	if err != nil {
		e.revertToLeaf(e.spec.PathFromRoot(lca), sourceLeaf)
		return nil, err
	}

	var actionPosted []any
	if opts.TransitionAction != nil {
		actx := newTransitionContext(e, handlingNode, opts.Payload, opts.HasPayload, opts.Metadata, e.spec.PathFromRoot(lca))
		if aErr := opts.TransitionAction(actx); aErr != nil {
			e.revertToLeaf(e.spec.PathFromRoot(lca), sourceLeaf)
			return nil, &HandlerError{Key: handlingNode, Err: aErr}
		}
		actionPosted = actx.posted
		e.armTimers(actx.scheduled)
	}

	boundary := lca
	boundaryPath := e.spec.PathFromRoot(lca)
	target := leaf0
	var enteredFull []Key
	var posted2 []any
	var extraExited []Key

	for {
		p, posted, eErr := e.enterSuffix(boundaryPath, target, opts.Payload, opts.HasPayload, opts.Metadata, reason, nil)
		if eErr == nil {
			enteredFull = p[len(boundaryPath):]
			posted2 = posted
			break
		}
		if oos, ok := eErr.(*redirectOutOfScope); ok {
			newBoundary := e.spec.LCA(boundary, oos.target)
			if newBoundary == boundary {
				e.revertToLeaf(boundaryPath, sourceLeaf)
				return nil, fmt.Errorf("%w: redirect target %s unreachable", ErrUndefinedState, oos.target)
			}
			extra := reverseKeys(sliceAfter(e.spec.PathFromRoot(boundary), newBoundary))
			exitedExtra, postedExtra, exitErr := e.exitPath(extra)
			extraExited = append(extraExited, exitedExtra...)
			posted1 = append(posted1, postedExtra...)
			if exitErr != nil {
				e.revertToLeaf(e.spec.PathFromRoot(newBoundary), sourceLeaf)
				return nil, exitErr
			}
			boundary = newBoundary
			boundaryPath = e.spec.PathFromRoot(newBoundary)
			target = oos.target
			continue
		}
		e.revertToLeaf(boundaryPath, sourceLeaf)
		return nil, eErr
	}

	finalLeaf := enteredFull[len(enteredFull)-1]
	full := prefixAppend(boundaryPath, enteredFull)

	e.mu.Lock()
	e.currentLeaf = finalLeaf
	e.activePath = full
	e.mu.Unlock()

	allExited := append(exited, extraExited...)
	isFinal := e.spec.IsFinal(finalLeaf)
	tr := &Transition{
		From:      sourceLeaf,
		HasFrom:   true,
		To:        finalLeaf,
		ExitPath:  allExited,
		EnterPath: enteredFull,
		Reason:    reason,
		IsFinal:   isFinal,
	}
	e.transitions.Emit(*tr)
	e.logger.Log(logging.Fine, "transitioned", logging.Fields{MachineLabel: e.label, Phase: "transition", Key: sourceLeaf.String(), TargetKey: finalLeaf.String()})

	allPosted := append(append(append([]any{}, posted1...), actionPosted...), posted2...)
	e.drainPosted(allPosted)

	return tr, nil
}
