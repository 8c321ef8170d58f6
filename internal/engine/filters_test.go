package engine

import (
	"testing"

	"github.com/arborium/hsm/builder"
	"github.com/arborium/hsm/internal/tree"
)

// traceFilter records, in order, every phase it wraps around.
type traceFilter struct {
	name string
	log  *[]string
}

func (f traceFilter) WrapMessage(next tree.OnMessageFunc) tree.OnMessageFunc {
	return func(ctx tree.MessageContext) error {
		*f.log = append(*f.log, f.name+":before:message")
		err := next(ctx)
		*f.log = append(*f.log, f.name+":after:message")
		return err
	}
}

func (f traceFilter) WrapEnter(next tree.OnEnterFunc) tree.OnEnterFunc {
	return func(ctx tree.EnterExitContext) error {
		*f.log = append(*f.log, f.name+":before:enter")
		err := next(ctx)
		*f.log = append(*f.log, f.name+":after:enter")
		return err
	}
}

func (f traceFilter) WrapExit(next tree.OnExitFunc) tree.OnExitFunc {
	return func(ctx tree.EnterExitContext) error {
		*f.log = append(*f.log, f.name+":before:exit")
		err := next(ctx)
		*f.log = append(*f.log, f.name+":after:exit")
		return err
	}
}

func TestFiltersWrapOutermostFirst(t *testing.T) {
	var log []string
	root := tree.NewKey("root")
	leaf := tree.NewKey("leaf")

	leafNB := builder.State(leaf).
		OnEnter(func(tree.EnterExitContext) error { log = append(log, "handler:enter"); return nil }).
		Filter(traceFilter{name: "outer", log: &log}, traceFilter{name: "inner", log: &log})

	spec, err := builder.Build(builder.Composite(root, leafNB))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e := New(spec)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	want := []string{
		"outer:before:enter",
		"inner:before:enter",
		"handler:enter",
		"inner:after:enter",
		"outer:after:enter",
	}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %q, want %q (full log %v)", i, log[i], want[i], log)
		}
	}
}

// TestTransitionActionNotWrappedByFilters confirms filters wrap only
// on-enter/on-exit/on-message, never a GoTo's transition action.
func TestTransitionActionNotWrappedByFilters(t *testing.T) {
	var log []string
	root := tree.NewKey("root")
	source := tree.NewKey("source")
	target := tree.NewKey("target")

	sourceNB := builder.State(source).
		OnMessage(func(ctx tree.MessageContext) error {
			ctx.GoTo(target, tree.WithTransitionAction(func(tree.EnterExitContext) error {
				log = append(log, "action")
				return nil
			}))
			return nil
		}).
		Filter(traceFilter{name: "f", log: &log})

	spec, err := builder.Build(builder.Composite(root, sourceNB, builder.State(target)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	e := New(spec)
	if err := e.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	log = nil
	if _, err := e.Send(nextMsg{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	want := []string{"f:before:message", "action", "f:after:message"}
	if len(log) != len(want) {
		t.Fatalf("log = %v, want %v (transition action must run unwrapped)", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log[%d] = %q, want %q", i, log[i], want[i])
		}
	}
}
