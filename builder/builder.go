// Package builder provides the one fluent tree-construction API: a
// NodeBuilder tree assembled with State/Composite/CompositeFunc/Final/Machine
// helpers and
// turned into a validated tree.Spec by Build.
//
// Grounded in the teacher's two builder generations — the root-level
// State/Composite/On/OnEntry/OnExit helpers (statechartx/builder.go) and
// internal/primitives.MachineBuilder/StateBuilder's WithX option chaining —
// consolidated into a single generation over the Key/Node arena, in the
// spirit of dragomit-hsm's StateBuilder[E]/stateOption[E] composition.
package builder

import (
	"github.com/arborium/hsm/internal/tree"
)

// NodeBuilder accumulates one state's definition before Build assembles the
// whole tree.
type NodeBuilder struct {
	key         tree.Key
	kind        tree.Kind
	initial     tree.InitialChildFunc
	onEnter     tree.OnEnterFunc
	onExit      tree.OnExitFunc
	onMessage   tree.OnMessageFunc
	dataFactory tree.DataFactoryFunc
	codec       tree.Codec
	filters     []tree.Filter
	isFinal     bool
	machineLeaf *tree.MachineLeafConfig
	history     bool
	children    []*NodeBuilder
}

// State declares a plain leaf state.
func State(key tree.Key) *NodeBuilder {
	return &NodeBuilder{key: key, kind: tree.Leaf}
}

// Final declares a final leaf state: reaching it ends the machine (spec.md
// §4.5 "final-state rule").
func Final(key tree.Key) *NodeBuilder {
	return &NodeBuilder{key: key, kind: tree.FinalLeaf, isFinal: true}
}

// Machine declares a machine-leaf state: a leaf whose content is itself a
// nested running machine (spec.md §4.6).
func Machine(key tree.Key, cfg tree.MachineLeafConfig) *NodeBuilder {
	c := cfg
	return &NodeBuilder{key: key, kind: tree.MachineLeaf, machineLeaf: &c}
}

// Composite declares an interior state whose first child is its static
// initial child.
func Composite(key tree.Key, children ...*NodeBuilder) *NodeBuilder {
	nb := &NodeBuilder{key: key, kind: tree.Interior, children: children}
	if len(children) > 0 {
		first := children[0].key
		nb.initial = func(tree.InitialChildContext) tree.Key { return first }
	}
	return nb
}

// CompositeFunc declares an interior state with a custom initial-child
// resolver, for conditional or history-driven entry.
func CompositeFunc(key tree.Key, initial tree.InitialChildFunc, children ...*NodeBuilder) *NodeBuilder {
	return &NodeBuilder{key: key, kind: tree.Interior, initial: initial, children: children}
}

// OnEnter sets the state's entry callback.
func (nb *NodeBuilder) OnEnter(fn tree.OnEnterFunc) *NodeBuilder { nb.onEnter = fn; return nb }

// OnExit sets the state's exit callback.
func (nb *NodeBuilder) OnExit(fn tree.OnExitFunc) *NodeBuilder { nb.onExit = fn; return nb }

// OnMessage sets the state's message handler.
func (nb *NodeBuilder) OnMessage(fn tree.OnMessageFunc) *NodeBuilder { nb.onMessage = fn; return nb }

// Data installs a data-state factory, run once per activation before
// OnEnter (spec.md §4.2).
func (nb *NodeBuilder) Data(factory tree.DataFactoryFunc) *NodeBuilder {
	nb.dataFactory = factory
	return nb
}

// Codec installs a persistence codec for this state's data (spec.md §6).
func (nb *NodeBuilder) Codec(c tree.Codec) *NodeBuilder { nb.codec = c; return nb }

// Filter appends middleware wrapping this state's on-enter/on-exit/
// on-message callbacks, outermost first.
func (nb *NodeBuilder) Filter(f ...tree.Filter) *NodeBuilder {
	nb.filters = append(nb.filters, f...)
	return nb
}

// History marks a composite as remembering its last active child across
// exit/re-entry (spec.md's supplemental shallow-history feature). Only
// meaningful on composite/root nodes.
func (nb *NodeBuilder) History() *NodeBuilder {
	nb.history = true
	static := nb.initial
	nb.initial = func(ctx tree.InitialChildContext) tree.Key {
		if last, ok := ctx.LastActiveChild(); ok {
			return last
		}
		if static != nil {
			return static(ctx)
		}
		return tree.Key{}
	}
	return nb
}

// Build validates and assembles the tree rooted at root.
func Build(root *NodeBuilder) (tree.Spec, error) {
	nodes := map[tree.Key]*tree.Node{}
	var walk func(nb *NodeBuilder, parent tree.Key, hasParent bool)
	walk = func(nb *NodeBuilder, parent tree.Key, hasParent bool) {
		kind := nb.kind
		if !hasParent {
			kind = tree.Root
		}
		n := &tree.Node{
			Key:                nb.key,
			Kind:               kind,
			Parent:             parent,
			HasParent:          hasParent,
			Initial:            nb.initial,
			OnEnter:            nb.onEnter,
			OnExit:             nb.onExit,
			OnMessage:          nb.onMessage,
			DataFactory:        nb.dataFactory,
			Codec:              nb.codec,
			Filters:            nb.filters,
			IsFinal:            nb.isFinal,
			MachineLeaf:        nb.machineLeaf,
			RemembersLastChild: nb.history,
		}
		for _, c := range nb.children {
			n.Children = append(n.Children, c.key)
		}
		nodes[nb.key] = n
		for _, c := range nb.children {
			walk(c, nb.key, true)
		}
	}
	walk(root, tree.Key{}, false)
	return tree.BuildOrFail(root.key, nodes)
}
