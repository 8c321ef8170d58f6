package dot

import (
	"strings"
	"testing"

	"github.com/arborium/hsm/builder"
	"github.com/arborium/hsm/internal/tree"
)

func TestExportMarksActivePath(t *testing.T) {
	root := tree.NewKey("root")
	locked := tree.NewKey("locked")
	unlocked := tree.NewKey("unlocked")

	spec, err := builder.Build(builder.Composite(root, builder.State(locked), builder.State(unlocked)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out := Export(spec, []tree.Key{root, locked})
	if !strings.HasPrefix(out, "digraph HSM {") {
		t.Fatalf("Export output does not start with digraph header: %q", out)
	}
	if !strings.Contains(out, `"locked" [shape=box, style="rounded,filled"]`) {
		t.Fatalf("active node locked should be styled filled, got: %s", out)
	}
	if !strings.Contains(out, `"unlocked" [shape=box, style="rounded"]`) {
		t.Fatalf("inactive node unlocked should not be styled filled, got: %s", out)
	}
	if !strings.Contains(out, `"root" -> "locked"`) {
		t.Fatalf("expected a containment edge from root to locked, got: %s", out)
	}
}

func TestExportMarksFinalLeafShape(t *testing.T) {
	root := tree.NewKey("root")
	working := tree.NewKey("working")
	done := tree.NewKey("done")

	spec, err := builder.Build(builder.Composite(root, builder.State(working), builder.Final(done)))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	out := Export(spec, nil)
	if !strings.Contains(out, `"done" [shape=doublecircle`) {
		t.Fatalf("final leaf should render as doublecircle, got: %s", out)
	}
}
