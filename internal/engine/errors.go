package engine

import (
	"errors"
	"fmt"

	"github.com/arborium/hsm/internal/tree"
)

// Sentinel errors for spec.md §7 "ERROR HANDLING DESIGN". Each is wrapped
// with context via fmt.Errorf("...: %w", ...) at the call site, matching
// the teacher's style in internal/core/registry.go (ErrNotFound, ErrExists)
// and internal/primitives (fmt.Errorf wrapping throughout stateconfig.go).
var (
	// ErrRedirectCycle is returned when a chain of on-enter redirects
	// exceeds the configured limit.
	ErrRedirectCycle = errors.New("engine: redirect cycle exceeded limit")
	// ErrNotStarted is returned by Send before Start has succeeded.
	ErrNotStarted = errors.New("engine: machine not started")
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("engine: machine already started")
	// ErrUndefinedState is returned when a target or initial-child key
	// does not resolve to a defined node.
	ErrUndefinedState = errors.New("engine: undefined state")
	// ErrNoDecision is a HandlerError cause: a message handler returned
	// without calling any decision method.
	ErrNoDecision = errors.New("engine: message handler returned without a decision")
)

// HandlerError wraps any error raised from a handler (spec.md §7
// "HandlerError"), naming the node whose callback failed.
type HandlerError struct {
	Key Key
	Err error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("engine: handler error at %q: %v", e.Key, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Key is a local alias so the rest of the package can write Key instead of
// tree.Key; kept as a defined type (not a fresh type) so values interop
// transparently with tree.Key.
type Key = tree.Key
