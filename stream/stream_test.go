package stream

import (
	"errors"
	"testing"
	"time"
)

func TestStreamEmitAndValue(t *testing.T) {
	s := New[int]()
	if _, ok := s.Value(); ok {
		t.Fatalf("expected no value before first Emit")
	}
	s.Emit(1)
	s.Emit(2)
	v, ok := s.Value()
	if !ok || v != 2 {
		t.Fatalf("Value() = %v, %v; want 2, true", v, ok)
	}
}

func TestStreamWithInitialValue(t *testing.T) {
	s := New(WithInitialValue(7))
	v, ok := s.Value()
	if !ok || v != 7 {
		t.Fatalf("Value() = %v, %v; want 7, true", v, ok)
	}
}

func TestStreamSubscribeReplay(t *testing.T) {
	s := New[int]()
	s.Emit(5)
	sub := s.Subscribe(true)
	defer sub.Unsubscribe()

	select {
	case ev := <-sub.C():
		if ev.Value != 5 {
			t.Fatalf("replayed value = %d, want 5", ev.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for replay")
	}

	s.Emit(6)
	select {
	case ev := <-sub.C():
		if ev.Value != 6 {
			t.Fatalf("value = %d, want 6", ev.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for emit")
	}
}

func TestStreamSubscribeNoReplay(t *testing.T) {
	s := New[int]()
	s.Emit(1)
	sub := s.Subscribe(false)
	defer sub.Unsubscribe()

	select {
	case ev := <-sub.C():
		t.Fatalf("unexpected event before any post-subscribe emit: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStreamFail(t *testing.T) {
	s := New[int]()
	sub := s.Subscribe(false)
	wantErr := errors.New("boom")
	s.Fail(wantErr)

	ev := <-sub.C()
	if !errors.Is(ev.Err, wantErr) {
		t.Fatalf("Err = %v, want %v", ev.Err, wantErr)
	}
	if _, ok := <-sub.C(); ok {
		t.Fatal("channel should be closed after Fail")
	}
	if !s.HasError() {
		t.Fatal("HasError() should be true after Fail")
	}

	// Emit after Fail is a no-op.
	s.Emit(42)
	if v, _ := s.Value(); v == 42 {
		t.Fatal("Emit after Fail should be ignored")
	}
}

func TestStreamCloseThenSubscribe(t *testing.T) {
	s := New[int]()
	s.Emit(9)
	s.Close()

	sub := s.Subscribe(true)
	ev := <-sub.C()
	if ev.Value != 9 {
		t.Fatalf("replay after close = %d, want 9", ev.Value)
	}
	ev2 := <-sub.C()
	if !ev2.Closed {
		t.Fatalf("expected Closed event, got %+v", ev2)
	}
}

func TestMap(t *testing.T) {
	s := New(WithInitialValue(2))
	doubled := Map(s, func(v int) int { return v * 2 })
	if v, ok := doubled.Value(); !ok || v != 4 {
		t.Fatalf("seeded Map value = %v, %v; want 4, true", v, ok)
	}

	sub := doubled.Subscribe(false)
	s.Emit(10)
	ev := <-sub.C()
	if ev.Value != 20 {
		t.Fatalf("mapped value = %d, want 20", ev.Value)
	}
}

func TestMerge(t *testing.T) {
	a, b := New[int](), New[int]()
	merged := Merge(a, b)
	sub := merged.Subscribe(false)

	a.Emit(1)
	b.Emit(2)

	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		select {
		case ev := <-sub.C():
			seen[ev.Value] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for merged value")
		}
	}
	if !seen[1] || !seen[2] {
		t.Fatalf("seen = %v, want both 1 and 2", seen)
	}

	a.Close()
	b.Close()
	select {
	case ev := <-sub.C():
		if !ev.Closed {
			t.Fatalf("expected Closed, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("merged stream never closed")
	}
}

func TestCombineLatest(t *testing.T) {
	a, b := New[int](), New[int]()
	combo := CombineLatest(a, b)
	sub := combo.Subscribe(false)

	a.Emit(1)
	select {
	case <-sub.C():
		t.Fatal("should not emit until every input has a value")
	case <-time.After(50 * time.Millisecond):
	}

	b.Emit(2)
	select {
	case ev := <-sub.C():
		if ev.Value[0] != 1 || ev.Value[1] != 2 {
			t.Fatalf("combined = %v, want [1 2]", ev.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for combined value")
	}
}
