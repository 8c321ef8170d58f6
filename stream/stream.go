// Package stream provides the broadcast value-stream primitive used
// throughout the engine for data-change notifications and the
// transition/processed/handled event feeds.
//
// A Stream[T] is a single-writer, multi-reader broadcast: the writer calls
// Emit or Fail, and any number of subscribers receive every value in order.
// A subscriber also gets synchronous access to the most recently emitted
// value (or error) without subscribing, which is what lets handlers and the
// façade answer "what is the current state/value" without awaiting anything.
//
// Grounded in the teacher's channel-based fan-out (production.ChannelPublisher,
// extensibility.ChannelEventSource): each subscriber owns its own buffered
// channel, which Emit, Fail and Close write to directly on the caller's
// goroutine, rather than a shared channel with multiple readers racing for
// values.
package stream

import "sync"

// Stream is a broadcast stream of values of type T with synchronous access
// to the latest value or error.
type Stream[T any] struct {
	mu          sync.RWMutex
	subscribers map[int]*subscription[T]
	nextID      int
	hasValue    bool
	value       T
	hasError    bool
	err         error
	closed      bool
}

type subscription[T any] struct {
	ch     chan Event[T]
	replay bool
}

// Event is a single item delivered to a subscriber: either a value, an
// error (terminal), or a close notification (terminal).
type Event[T any] struct {
	Value  T
	Err    error
	Closed bool
}

// Option configures a new Stream.
type Option[T any] func(*Stream[T])

// WithInitialValue seeds the stream with a value visible to Value() and to
// replay-on-subscribe before any Emit call.
func WithInitialValue[T any](v T) Option[T] {
	return func(s *Stream[T]) {
		s.hasValue = true
		s.value = v
	}
}

// New creates an empty broadcast Stream.
func New[T any](opts ...Option[T]) *Stream[T] {
	s := &Stream[T]{subscribers: make(map[int]*subscription[T])}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HasValue reports whether a value has ever been emitted (or seeded via
// WithInitialValue).
func (s *Stream[T]) HasValue() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasValue
}

// Value returns the most recently emitted value. The second return is false
// if no value has ever been emitted.
func (s *Stream[T]) Value() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.hasValue
}

// HasError reports whether the stream has failed.
func (s *Stream[T]) HasError() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasError
}

// Error returns the stream's terminal error, if any.
func (s *Stream[T]) Error() (error, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err, s.hasError
}

// Emit broadcasts a new value to all current subscribers and updates the
// synchronously-readable latest value.
func (s *Stream[T]) Emit(v T) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.hasValue = true
	s.value = v
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.ch <- Event[T]{Value: v}
	}
}

// Fail broadcasts a terminal error and closes the stream to further Emits.
func (s *Stream[T]) Fail(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.hasError = true
	s.err = err
	s.closed = true
	subs := s.snapshotSubs()
	s.subscribers = make(map[int]*subscription[T])
	s.mu.Unlock()

	for _, sub := range subs {
		sub.ch <- Event[T]{Err: err}
		close(sub.ch)
	}
}

// Close terminates the stream without an error; subsequent Subscribe calls
// still get replay of the last value, but receive a Closed event and no
// further items.
func (s *Stream[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	subs := s.snapshotSubs()
	s.subscribers = make(map[int]*subscription[T])
	s.mu.Unlock()

	for _, sub := range subs {
		sub.ch <- Event[T]{Closed: true}
		close(sub.ch)
	}
}

func (s *Stream[T]) snapshotSubs() []*subscription[T] {
	subs := make([]*subscription[T], 0, len(s.subscribers))
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	return subs
}

// Subscription is a live handle on a Stream subscriber's channel.
type Subscription[T any] struct {
	ch   <-chan Event[T]
	s    *Stream[T]
	id   int
}

// C returns the channel of events for this subscription.
func (sub *Subscription[T]) C() <-chan Event[T] { return sub.ch }

// Unsubscribe stops delivery to this subscription.
func (sub *Subscription[T]) Unsubscribe() {
	sub.s.mu.Lock()
	defer sub.s.mu.Unlock()
	delete(sub.s.subscribers, sub.id)
}

// Subscribe registers a new subscriber. If replayLatest is true and a value
// (or error) already exists, it is delivered first, synchronously queued as
// the first channel item.
func (s *Stream[T]) Subscribe(replayLatest bool) *Subscription[T] {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan Event[T], 16)
	sub := &subscription[T]{ch: ch, replay: replayLatest}

	if s.closed {
		if replayLatest && s.hasValue {
			ch <- Event[T]{Value: s.value}
		}
		if s.hasError {
			ch <- Event[T]{Err: s.err}
		} else {
			ch <- Event[T]{Closed: true}
		}
		close(ch)
		return &Subscription[T]{ch: ch, s: s, id: id}
	}

	s.subscribers[id] = sub
	if replayLatest && s.hasValue {
		ch <- Event[T]{Value: s.value}
	}
	return &Subscription[T]{ch: ch, s: s, id: id}
}

// Map returns a derived Stream whose values are f(v) for each v emitted by
// s, preserving the synchronous-access contract (Map's own Value()/Error()
// reflect the last transformed value, independent of further upstream
// activity).
func Map[T, U any](s *Stream[T], f func(T) U) *Stream[U] {
	out := New[U]()
	if v, ok := s.Value(); ok {
		out.Emit(f(v))
	}
	sub := s.Subscribe(false)
	go func() {
		for ev := range sub.C() {
			switch {
			case ev.Err != nil:
				out.Fail(ev.Err)
				return
			case ev.Closed:
				out.Close()
				return
			default:
				out.Emit(f(ev.Value))
			}
		}
	}()
	return out
}

// Merge interleaves every value from all input streams into one output
// stream, finishing only once every input has finished.
func Merge[T any](streams ...*Stream[T]) *Stream[T] {
	out := New[T]()
	if len(streams) == 0 {
		out.Close()
		return out
	}
	var wg sync.WaitGroup
	wg.Add(len(streams))
	for _, s := range streams {
		sub := s.Subscribe(false)
		go func(sub *Subscription[T]) {
			defer wg.Done()
			for ev := range sub.C() {
				if ev.Err != nil {
					out.Fail(ev.Err)
					return
				}
				if ev.Closed {
					return
				}
				out.Emit(ev.Value)
			}
		}(sub)
	}
	go func() {
		wg.Wait()
		out.Close()
	}()
	return out
}

// Combined holds the latest value from each of N combined streams.
type Combined[T any] []T

// CombineLatest emits a Combined snapshot every time any input stream
// produces a new value, once every input has produced at least one value.
// It finishes as soon as any input finishes.
func CombineLatest[T any](streams ...*Stream[T]) *Stream[Combined[T]] {
	out := New[Combined[T]]()
	n := len(streams)
	if n == 0 {
		out.Close()
		return out
	}
	latest := make([]T, n)
	have := make([]bool, n)
	var mu sync.Mutex

	emitIfReady := func() {
		mu.Lock()
		defer mu.Unlock()
		for _, ok := range have {
			if !ok {
				return
			}
		}
		snap := make(Combined[T], n)
		copy(snap, latest)
		out.Emit(snap)
	}

	for i, s := range streams {
		i, sub := i, s.Subscribe(false)
		go func() {
			for ev := range sub.C() {
				switch {
				case ev.Err != nil:
					out.Fail(ev.Err)
					return
				case ev.Closed:
					out.Close()
					return
				default:
					mu.Lock()
					latest[i] = ev.Value
					have[i] = true
					mu.Unlock()
					emitIfReady()
				}
			}
		}()
	}
	return out
}
