package persist

import (
	"errors"
	"testing"

	"github.com/arborium/hsm/builder"
	"github.com/arborium/hsm/internal/data"
	"github.com/arborium/hsm/internal/tree"
)

type intCodec struct{}

func (intCodec) Encode(v any) ([]byte, error) { return []byte{byte(v.(int))}, nil }
func (intCodec) Decode(b []byte) (any, error)  { return int(b[0]), nil }

func buildCounterSpec(t *testing.T) (tree.Spec, tree.Key, tree.Key) {
	t.Helper()
	counter := tree.NewDataKey[int]("counter")
	leaf := tree.NewKey("leaf")
	root := tree.NewKey("root")

	leafNB := builder.State(leaf)
	counterNB := builder.CompositeFunc(counter, func(tree.InitialChildContext) tree.Key { return leaf }, leafNB).
		Data(func(tree.EnterExitContext) any { return 0 }).
		Codec(intCodec{})

	spec, err := builder.Build(builder.Composite(root, counterNB))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return spec, counter, leaf
}

func TestCaptureAndResolveOverrides(t *testing.T) {
	spec, counter, leaf := buildCounterSpec(t)
	reg := data.New()
	reg.Activate(counter, 7)

	activePath := spec.PathFromRoot(leaf)
	snap, err := Capture("m1", activePath, spec, reg)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if snap.MachineLabel != "m1" {
		t.Fatalf("MachineLabel = %q, want m1", snap.MachineLabel)
	}
	if len(snap.Data) != 1 || snap.Data[0].Value[0] != 7 {
		t.Fatalf("Data = %v, want one entry encoding 7", snap.Data)
	}

	overrides, err := ResolveOverrides(snap, spec)
	if err != nil {
		t.Fatalf("ResolveOverrides: %v", err)
	}
	// root -> counter -> leaf: overrides maps each non-terminal step to its
	// successor.
	if len(overrides) != len(activePath)-1 {
		t.Fatalf("overrides = %v, want %d entries", overrides, len(activePath)-1)
	}
}

func TestResolveOverridesMismatch(t *testing.T) {
	spec, _, _ := buildCounterSpec(t)
	snap := Snapshot{ActivePath: []string{"nonexistent-state"}}
	if _, err := ResolveOverrides(snap, spec); !errors.Is(err, ErrSnapshotMismatch) {
		t.Fatalf("ResolveOverrides error = %v, want ErrSnapshotMismatch", err)
	}
}

func TestRestoreDecodesIntoRegistry(t *testing.T) {
	spec, counter, _ := buildCounterSpec(t)
	reg := data.New()
	reg.Activate(counter, 0)

	snap := Snapshot{Data: []DataEntry{{Key: counter.String(), Value: []byte{42}}}}
	if err := Restore(snap, spec, reg); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	v, err := reg.Read(counter)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v.(int) != 42 {
		t.Fatalf("Read() after Restore = %v, want 42", v)
	}
}

func TestYAMLCodecRoundTrip(t *testing.T) {
	c := YAMLCodec{}
	snap := Snapshot{MachineLabel: "m1", ActivePath: []string{"root", "leaf"}}
	b, err := c.Marshal(snap)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := c.Unmarshal(b)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.MachineLabel != snap.MachineLabel || len(got.ActivePath) != len(snap.ActivePath) {
		t.Fatalf("round trip = %+v, want %+v", got, snap)
	}
}

func TestFilePersisterSaveLoad(t *testing.T) {
	p, err := NewFilePersister(t.TempDir(), nil, "")
	if err != nil {
		t.Fatalf("NewFilePersister: %v", err)
	}
	snap := Snapshot{MachineLabel: "m1", ActivePath: []string{"root", "leaf"}}
	if err := p.Save("instance-1", snap); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := p.Load("instance-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.MachineLabel != snap.MachineLabel {
		t.Fatalf("Load() = %+v, want %+v", got, snap)
	}
}

func TestFilePersisterLoadMissing(t *testing.T) {
	p, err := NewFilePersister(t.TempDir(), nil, "")
	if err != nil {
		t.Fatalf("NewFilePersister: %v", err)
	}
	if _, err := p.Load("nope"); err == nil {
		t.Fatalf("Load(nonexistent) should return an error")
	}
}
