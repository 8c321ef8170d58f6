package engine

import (
	"time"

	"github.com/arborium/hsm/internal/tree"
)

type decisionKind int

const (
	decisionNone decisionKind = iota
	decisionGoTo
	decisionStay
	decisionUnhandled
)

// messageContext implements tree.MessageContext. Exactly one of GoTo,
// GoToSelf, Stay or Unhandled must be called before the handler returns;
// the engine enforces this at return (spec.md §4.4 "Decisions"). Calling
// more than one is not an error here — last write wins — so the handler
// author's final intent is what the engine sees; calling none is what the
// engine rejects.
//
// Grounded in the teacher's primitives.Context plus realtime.Runtime's
// transition-decision handling in statechart.go (TransitionTo / Raise),
// generalized into an explicit decision object instead of a direct method
// call into the runtime.
type messageContext struct {
	eng          *Engine
	msg          any
	handlingNode Key
	activePath   []Key

	decided  bool
	kind     decisionKind
	target   Key
	goToOpts tree.GoToOptions

	posted    []any
	scheduled []scheduledSpec
}

func newMessageContext(eng *Engine, msg any, handling Key, activePath []Key) *messageContext {
	return &messageContext{eng: eng, msg: msg, handlingNode: handling, activePath: activePath}
}

func (c *messageContext) Data(key Key) (any, error) { return c.eng.dataReg.Read(key) }

func (c *messageContext) FindAncestorData(dataType Key) (any, bool) {
	return c.eng.dataReg.FindAncestor(c.activePath, dataType)
}

func (c *messageContext) UpdateData(key Key, fn func(any) any) error {
	return c.eng.dataReg.Update(key, fn)
}

func (c *messageContext) ReplaceData(key Key, v any) error {
	return c.eng.dataReg.Replace(key, v)
}

func (c *messageContext) Message() any { return c.msg }

func (c *messageContext) GoTo(target Key, opts ...tree.GoToOption) {
	c.decided = true
	c.kind = decisionGoTo
	c.target = target
	c.goToOpts = tree.ResolveGoToOptions(opts)
}

func (c *messageContext) GoToSelf() {
	c.decided = true
	c.kind = decisionGoTo
	c.target = c.activePath[len(c.activePath)-1]
	c.goToOpts = tree.ResolveGoToOptions([]tree.GoToOption{tree.WithReenter(true)})
}

func (c *messageContext) Stay() {
	c.decided = true
	c.kind = decisionStay
}

func (c *messageContext) Unhandled() {
	c.decided = true
	c.kind = decisionUnhandled
}

func (c *messageContext) Post(msg any) { c.posted = append(c.posted, msg) }

func (c *messageContext) Schedule(produce func() any, delay time.Duration, periodic bool) {
	c.scheduled = append(c.scheduled, scheduledSpec{owner: c.handlingNode, produce: produce, delay: delay, periodic: periodic})
}
