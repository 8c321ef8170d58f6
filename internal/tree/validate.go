package tree

import (
	"fmt"
	"time"
)

// BuildOrFail validates a set of nodes and returns an immutable Spec, or the
// first DefinitionError found (spec.md §4.1 "build_or_fail").
//
// Grounded in primitives.MachineConfig.Validate / primitives.StateConfig.Validate
// (github.com/comalice/statechartx/internal/primitives), generalized from a
// flat string-ID map to the Key/Node arena.
func BuildOrFail(rootKey Key, nodes map[Key]*Node) (Spec, error) {
	if _, ok := nodes[rootKey]; !ok {
		return nil, &DefinitionError{Key: rootKey, Rule: "root key not present among nodes"}
	}

	var rootCount int
	for k, n := range nodes {
		if n.Key != k {
			return nil, &DefinitionError{Key: k, Rule: "node stored under mismatched key"}
		}
		if !n.HasParent {
			rootCount++
			if k != rootKey {
				return nil, &DefinitionError{Key: k, Rule: "non-root node missing parent"}
			}
		} else {
			parent, ok := nodes[n.Parent]
			if !ok {
				return nil, &DefinitionError{Key: k, Rule: fmt.Sprintf("parent %q not defined", n.Parent)}
			}
			found := false
			for _, c := range parent.Children {
				if c == k {
					found = true
					break
				}
			}
			if !found {
				return nil, &DefinitionError{Key: k, Rule: fmt.Sprintf("parent %q does not list child", n.Parent)}
			}
		}
		for _, c := range n.Children {
			child, ok := nodes[c]
			if !ok {
				return nil, &DefinitionError{Key: k, Rule: fmt.Sprintf("child %q not defined", c)}
			}
			if !child.HasParent || child.Parent != k {
				return nil, &DefinitionError{Key: c, Rule: fmt.Sprintf("child's parent field does not point back to %q", k)}
			}
		}
		if n.Kind.IsLeaf() && len(n.Children) > 0 {
			return nil, &DefinitionError{Key: k, Rule: "leaf state has children"}
		}
		if !n.Kind.IsLeaf() && n.Initial == nil {
			return nil, &DefinitionError{Key: k, Rule: "composite state missing initial-child resolver"}
		}
		if n.IsFinal && n.Kind != FinalLeaf {
			return nil, &DefinitionError{Key: k, Rule: "is_final set on a non-final-leaf node"}
		}
		if n.Kind == FinalLeaf && !n.IsFinal {
			return nil, &DefinitionError{Key: k, Rule: "final-leaf node missing is_final flag"}
		}
		if n.Kind == MachineLeaf && n.MachineLeaf == nil {
			return nil, &DefinitionError{Key: k, Rule: "machine-leaf node missing MachineLeafConfig"}
		}
		if n.Kind != MachineLeaf && n.MachineLeaf != nil {
			return nil, &DefinitionError{Key: k, Rule: "non-machine-leaf node carries a MachineLeafConfig"}
		}
	}
	if rootCount != 1 {
		return nil, &DefinitionError{Key: rootKey, Rule: fmt.Sprintf("expected exactly one root, found %d", rootCount)}
	}

	if err := checkAcyclic(rootKey, nodes); err != nil {
		return nil, err
	}

	s := &spec{root: rootKey, nodes: nodes}

	if err := checkInitialChildrenResolve(s); err != nil {
		return nil, err
	}

	if err := checkReachableFromRoot(s); err != nil {
		return nil, err
	}

	return s, nil
}

func checkAcyclic(rootKey Key, nodes map[Key]*Node) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[Key]int, len(nodes))
	var visit func(Key) error
	visit = func(k Key) error {
		color[k] = gray
		n := nodes[k]
		for _, c := range n.Children {
			switch color[c] {
			case gray:
				return &DefinitionError{Key: c, Rule: "cycle detected in tree"}
			case white:
				if err := visit(c); err != nil {
					return err
				}
			}
		}
		color[k] = black
		return nil
	}
	if err := visit(rootKey); err != nil {
		return err
	}
	for k := range nodes {
		if color[k] == white {
			return &DefinitionError{Key: k, Rule: "node unreachable from root (orphaned)"}
		}
	}
	return nil
}

// checkInitialChildrenResolve verifies every composite's static initial
// child (as resolved with a no-op context) is an actual child of that node.
// A resolver may still choose a different key at runtime (history), but the
// builder-provided default must name a real child so initial entry always
// has somewhere to land.
func checkInitialChildrenResolve(s *spec) error {
	probe := &staticProbeContext{}
	for k, n := range s.nodes {
		if n.Kind.IsLeaf() {
			continue
		}
		initial := n.Initial(probe)
		if initial.IsZero() {
			return &DefinitionError{Key: k, Rule: "initial-child resolver returned no key"}
		}
		child, ok := s.nodes[initial]
		if !ok {
			return &DefinitionError{Key: k, Rule: fmt.Sprintf("initial child %q is not a defined state", initial)}
		}
		if !child.HasParent || child.Parent != k {
			return &DefinitionError{Key: k, Rule: fmt.Sprintf("initial child %q is not a direct child", initial)}
		}
	}
	return nil
}

func checkReachableFromRoot(s *spec) error {
	// Every node already proven reachable via parent/child links in
	// checkAcyclic's orphan check; this pass additionally confirms every
	// interior/root node's transitive initial-descent terminates at a
	// leaf, per spec.md §4.1 "every parent has a valid initial-child that
	// is actually its descendant".
	probe := &staticProbeContext{}
	for k, n := range s.nodes {
		if n.Kind.IsLeaf() {
			continue
		}
		seen := map[Key]bool{k: true}
		cur := k
		for {
			next := s.InitialChild(cur, probe)
			if seen[next] {
				return &DefinitionError{Key: k, Rule: "initial-child descent cycles without reaching a leaf"}
			}
			seen[next] = true
			child, ok := s.nodes[next]
			if !ok {
				return &DefinitionError{Key: k, Rule: fmt.Sprintf("initial descent hits undefined state %q", next)}
			}
			if child.Kind.IsLeaf() {
				break
			}
			cur = next
		}
	}
	return nil
}

// staticProbeContext is a minimal, inert InitialChildContext used only to
// probe a resolver's static default during validation. History resolvers
// see no recorded last-active child here (by design: validation checks the
// resolver's fallback path, which is what must reach a leaf).
type staticProbeContext struct{}

func (staticProbeContext) Data(Key) (any, error)                         { return nil, fmt.Errorf("no active transition") }
func (staticProbeContext) FindAncestorData(Key) (any, bool)              { return nil, false }
func (staticProbeContext) UpdateData(Key, func(any) any) error           { return fmt.Errorf("no active transition") }
func (staticProbeContext) ReplaceData(Key, any) error                    { return fmt.Errorf("no active transition") }
func (staticProbeContext) Payload() (any, bool)                          { return nil, false }
func (staticProbeContext) Metadata() map[string]any                     { return nil }
func (staticProbeContext) SetMetadata(string, any)                      {}
func (staticProbeContext) Redirect(Key)                                 {}
func (staticProbeContext) Post(any)                                     {}
func (staticProbeContext) Schedule(func() any, time.Duration, bool)      {}
func (staticProbeContext) LastActiveChild() (Key, bool)                 { return Key{}, false }
