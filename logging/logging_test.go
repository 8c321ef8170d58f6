package logging

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
)

func TestLevelString(t *testing.T) {
	cases := map[Level]string{
		Trace: "trace",
		Fine:  "fine",
		Info:  "info",
		Warn:  "warn",
		Error: "error",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Fatalf("Level(%d).String() = %q, want %q", level, got, want)
		}
	}
}

func TestStdLoggerFiltersBelowMinimum(t *testing.T) {
	var buf bytes.Buffer
	l := NewStdLogger(log.New(&buf, "", 0), Warn)

	l.Log(Info, "should be dropped", Fields{})
	if buf.Len() != 0 {
		t.Fatalf("expected no output below Minimum, got %q", buf.String())
	}

	l.Log(Error, "should be kept", Fields{MachineLabel: "m1", Phase: "enter", Key: "k1", TargetKey: "k2", Err: errors.New("boom")})
	out := buf.String()
	for _, want := range []string{"should be kept", "machine=m1", "phase=enter", "key=k1", "target=k2", `error="boom"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output %q missing %q", out, want)
		}
	}
}

func TestStdLoggerDefaultsNilLogger(t *testing.T) {
	l := NewStdLogger(nil, Trace)
	if l.out == nil {
		t.Fatalf("NewStdLogger(nil, ...) should fall back to a non-nil logger")
	}
}

func TestNopDiscardsEverything(t *testing.T) {
	// Nop.Log must not panic regardless of input; there is nothing further
	// to assert since it has no observable side effect.
	Nop{}.Log(Error, "ignored", Fields{Err: errors.New("x")})
}
