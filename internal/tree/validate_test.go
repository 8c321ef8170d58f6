package tree

import "testing"

// linearNodes builds root -> branch -> { a (leaf), b (leaf) }, a three-level
// tree used across several validation and spec-query tests.
func linearNodes() (Key, Key, Key, Key, map[Key]*Node) {
	root := NewKey("root")
	branch := NewKey("branch")
	a := NewKey("a")
	b := NewKey("b")

	nodes := map[Key]*Node{
		root: {
			Key: root, Kind: Root, Children: []Key{branch},
			Initial: func(InitialChildContext) Key { return branch },
		},
		branch: {
			Key: branch, Kind: Interior, Parent: root, HasParent: true,
			Children: []Key{a, b},
			Initial:  func(InitialChildContext) Key { return a },
		},
		a: {Key: a, Kind: Leaf, Parent: branch, HasParent: true},
		b: {Key: b, Kind: Leaf, Parent: branch, HasParent: true},
	}
	return root, branch, a, b, nodes
}

func TestBuildOrFailValidTree(t *testing.T) {
	root, _, _, _, nodes := linearNodes()
	s, err := BuildOrFail(root, nodes)
	if err != nil {
		t.Fatalf("BuildOrFail returned error on a valid tree: %v", err)
	}
	if s.RootKey() != root {
		t.Fatalf("RootKey() = %v, want %v", s.RootKey(), root)
	}
}

func TestBuildOrFailMissingRoot(t *testing.T) {
	root, _, _, _, nodes := linearNodes()
	delete(nodes, root)
	if _, err := BuildOrFail(root, nodes); err == nil {
		t.Fatalf("expected DefinitionError when root key is absent from nodes")
	}
}

func TestBuildOrFailLeafWithChildren(t *testing.T) {
	root, _, a, _, nodes := linearNodes()
	leaf := nodes[a]
	leaf.Children = []Key{NewKey("ghost")}
	if _, err := BuildOrFail(root, nodes); err == nil {
		t.Fatalf("expected DefinitionError when a leaf node carries children")
	}
}

func TestBuildOrFailCompositeMissingInitial(t *testing.T) {
	root, branch, _, _, nodes := linearNodes()
	nodes[branch].Initial = nil
	if _, err := BuildOrFail(root, nodes); err == nil {
		t.Fatalf("expected DefinitionError when a composite has no initial-child resolver")
	}
}

func TestBuildOrFailCycle(t *testing.T) {
	root := NewKey("root")
	x := NewKey("x")
	y := NewKey("y")
	nodes := map[Key]*Node{
		root: {Key: root, Kind: Root, Children: []Key{x}, Initial: func(InitialChildContext) Key { return x }},
		x: {
			Key: x, Kind: Interior, Parent: root, HasParent: true,
			Children: []Key{y}, Initial: func(InitialChildContext) Key { return y },
		},
		y: {
			Key: y, Kind: Interior, Parent: x, HasParent: true,
			Children: []Key{x}, Initial: func(InitialChildContext) Key { return x },
		},
	}
	if _, err := BuildOrFail(root, nodes); err == nil {
		t.Fatalf("expected DefinitionError when the tree contains a cycle")
	}
}

func TestBuildOrFailOrphanNode(t *testing.T) {
	root, _, _, _, nodes := linearNodes()
	orphan := NewKey("orphan")
	nodes[orphan] = &Node{Key: orphan, Kind: Leaf, Parent: NewKey("nowhere"), HasParent: true}
	if _, err := BuildOrFail(root, nodes); err == nil {
		t.Fatalf("expected DefinitionError for a node whose parent is not defined")
	}
}

func TestBuildOrFailInitialChildNotAChild(t *testing.T) {
	root, branch, _, _, nodes := linearNodes()
	nodes[branch].Initial = func(InitialChildContext) Key { return NewKey("nonexistent") }
	if _, err := BuildOrFail(root, nodes); err == nil {
		t.Fatalf("expected DefinitionError when initial child resolver names an undefined state")
	}
}

func TestBuildOrFailFinalLeafFlagsMustMatch(t *testing.T) {
	root, _, a, _, nodes := linearNodes()
	nodes[a].IsFinal = true // Kind is still Leaf, not FinalLeaf
	if _, err := BuildOrFail(root, nodes); err == nil {
		t.Fatalf("expected DefinitionError when IsFinal is set on a non-final-leaf node")
	}
}

func TestBuildOrFailMachineLeafRequiresConfig(t *testing.T) {
	root, _, a, _, nodes := linearNodes()
	nodes[a].Kind = MachineLeaf
	if _, err := BuildOrFail(root, nodes); err == nil {
		t.Fatalf("expected DefinitionError when a machine-leaf node has no MachineLeafConfig")
	}
}

func TestSpecPathFromRootAndLCA(t *testing.T) {
	root, branch, a, b, nodes := linearNodes()
	s, err := BuildOrFail(root, nodes)
	if err != nil {
		t.Fatalf("BuildOrFail: %v", err)
	}

	path := s.PathFromRoot(a)
	want := []Key{root, branch, a}
	if len(path) != len(want) {
		t.Fatalf("PathFromRoot(a) = %v, want %v", path, want)
	}
	for i := range want {
		if path[i] != want[i] {
			t.Fatalf("PathFromRoot(a)[%d] = %v, want %v", i, path[i], want[i])
		}
	}

	if lca := s.LCA(a, b); lca != branch {
		t.Fatalf("LCA(a, b) = %v, want %v", lca, branch)
	}
	if lca := s.LCA(a, a); lca != a {
		t.Fatalf("LCA(a, a) = %v, want %v", lca, a)
	}
}

func TestSpecDescendants(t *testing.T) {
	root, branch, a, b, nodes := linearNodes()
	s, err := BuildOrFail(root, nodes)
	if err != nil {
		t.Fatalf("BuildOrFail: %v", err)
	}
	got := s.Descendants(root)
	want := map[Key]bool{root: true, branch: true, a: true, b: true}
	if len(got) != len(want) {
		t.Fatalf("Descendants(root) = %v, want all of %v", got, want)
	}
	for _, k := range got {
		if !want[k] {
			t.Fatalf("unexpected descendant %v", k)
		}
	}
}

func TestSpecParentAndChildren(t *testing.T) {
	root, branch, a, b, nodes := linearNodes()
	s, err := BuildOrFail(root, nodes)
	if err != nil {
		t.Fatalf("BuildOrFail: %v", err)
	}
	if p, ok := s.Parent(a); !ok || p != branch {
		t.Fatalf("Parent(a) = %v, %v; want %v, true", p, ok, branch)
	}
	if _, ok := s.Parent(root); ok {
		t.Fatalf("Parent(root) should report ok=false")
	}
	children := s.Children(branch)
	if len(children) != 2 || children[0] != a || children[1] != b {
		t.Fatalf("Children(branch) = %v, want [a b]", children)
	}
}
