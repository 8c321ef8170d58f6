package engine

import "time"

// transitionContext implements tree.EnterExitContext and
// tree.InitialChildContext. One is built per on-enter/on-exit/transition-
// action/initial-child invocation; its side effects (redirect, posted
// messages, scheduled timers, metadata) are drained by the engine
// immediately after the callback returns.
//
// Grounded in the teacher's primitives.Context (the handler-facing façade
// passed to StateConfig callbacks in internal/primitives/context.go), split
// here into the enter/exit and message variants the tree package's handler
// interfaces require.
type transitionContext struct {
	eng       *Engine
	ownerNode Key // the node whose callback is currently running

	payload    any
	hasPayload bool
	metadata   map[string]any

	hasRedirect bool
	redirect    Key

	posted    []any
	scheduled []scheduledSpec

	// activePath is a snapshot of the ancestor chain in effect for this
	// callback, used for FindAncestorData. During enter it is the path
	// including nodes entered so far in the current walk; during exit it
	// is the path including the node currently being exited.
	activePath []Key

	// lastChild is consulted only when this context is used to resolve an
	// initial child (LastActiveChild).
	lastChild map[Key]Key
}

func newTransitionContext(eng *Engine, owner Key, payload any, hasPayload bool, metadata map[string]any, activePath []Key) *transitionContext {
	return &transitionContext{
		eng:        eng,
		ownerNode:  owner,
		payload:    payload,
		hasPayload: hasPayload,
		metadata:   metadata,
		activePath: activePath,
	}
}

func (c *transitionContext) Data(key Key) (any, error) { return c.eng.dataReg.Read(key) }

func (c *transitionContext) FindAncestorData(dataType Key) (any, bool) {
	return c.eng.dataReg.FindAncestor(c.activePath, dataType)
}

func (c *transitionContext) UpdateData(key Key, fn func(any) any) error {
	return c.eng.dataReg.Update(key, fn)
}

func (c *transitionContext) ReplaceData(key Key, v any) error {
	return c.eng.dataReg.Replace(key, v)
}

func (c *transitionContext) Payload() (any, bool) { return c.payload, c.hasPayload }

func (c *transitionContext) Metadata() map[string]any {
	if c.metadata == nil {
		c.metadata = map[string]any{}
	}
	return c.metadata
}

func (c *transitionContext) SetMetadata(k string, v any) {
	if c.metadata == nil {
		c.metadata = map[string]any{}
	}
	c.metadata[k] = v
}

func (c *transitionContext) Redirect(target Key) {
	c.hasRedirect = true
	c.redirect = target
}

func (c *transitionContext) Post(msg any) { c.posted = append(c.posted, msg) }

func (c *transitionContext) Schedule(produce func() any, delay time.Duration, periodic bool) {
	c.scheduled = append(c.scheduled, scheduledSpec{owner: c.ownerNode, produce: produce, delay: delay, periodic: periodic})
}

func (c *transitionContext) LastActiveChild() (Key, bool) {
	k, ok := c.lastChild[c.ownerNode]
	return k, ok
}
