package queue

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_PushTryPopFIFO(t *testing.T) {
	q := New[int](4)

	for i := 0; i < 5; i++ {
		if !q.Push(i) {
			t.Fatalf("Push(%d) returned false", i)
		}
	}

	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		v, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if v != i {
			t.Errorf("popped %d, want %d", v, i)
		}
	}

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_TryPopEmpty(t *testing.T) {
	q := New[string](0)

	for i := 0; i < 3; i++ {
		v, ok := q.TryPop()
		if ok {
			t.Fatalf("TryPop() on empty queue returned ok with %q", v)
		}
		if v != "" {
			t.Errorf("TryPop() value = %q, want zero value", v)
		}
	}

	stats := q.Stats()
	if stats.Popped != 0 {
		t.Errorf("Popped = %d, want 0", stats.Popped)
	}
}

func TestQueue_GrowsWhenFull(t *testing.T) {
	q := New[int](minCapacity)

	for i := 0; i < minCapacity; i++ {
		q.Push(i)
	}
	if q.Stats().Resizes != 0 {
		t.Fatalf("Resizes = %d before overflow, want 0", q.Stats().Resizes)
	}

	q.Push(minCapacity)

	stats := q.Stats()
	if stats.Resizes != 1 {
		t.Errorf("Resizes = %d, want 1", stats.Resizes)
	}
	if stats.Cap != minCapacity*2 {
		t.Errorf("Cap = %d, want %d", stats.Cap, minCapacity*2)
	}
}

func TestQueue_OrderSurvivesWrapAndGrow(t *testing.T) {
	q := New[int](minCapacity)

	// Advance head so the ring wraps before it grows.
	for i := 0; i < 10; i++ {
		q.Push(-1)
	}
	for i := 0; i < 10; i++ {
		q.TryPop()
	}

	for i := 0; i < 100; i++ {
		q.Push(i)
	}

	for i := 0; i < 100; i++ {
		v, ok := q.TryPop()
		if !ok {
			t.Fatalf("TryPop() returned false for item %d", i)
		}
		if v != i {
			t.Fatalf("popped %d, want %d", v, i)
		}
	}
}

func TestQueue_BlockingPop(t *testing.T) {
	q := New[int](0)

	got := make(chan int, 1)
	go func() {
		v, ok := q.Pop()
		if ok {
			got <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Push(42)

	select {
	case v := <-got:
		if v != 42 {
			t.Errorf("Pop() = %d, want 42", v)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for Pop")
	}
}

func TestQueue_CloseWakesPop(t *testing.T) {
	q := New[int](0)

	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Pop() after Close on empty queue returned ok")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake Pop")
	}

	if q.Push(1) {
		t.Error("Push after Close returned true")
	}
}

func TestQueue_CloseKeepsQueuedItems(t *testing.T) {
	q := New[int](0)
	q.Push(1)
	q.Push(2)
	q.Close()

	for want := 1; want <= 2; want++ {
		v, ok := q.Pop()
		if !ok || v != want {
			t.Errorf("Pop() = (%d, %v), want (%d, true)", v, ok, want)
		}
	}
}

func TestQueue_Drain(t *testing.T) {
	q := New[int](0)
	for i := 0; i < 10; i++ {
		q.Push(i)
	}

	first := q.Drain(3)
	if len(first) != 3 {
		t.Fatalf("Drain(3) returned %d items", len(first))
	}
	for i, v := range first {
		if v != i {
			t.Errorf("first[%d] = %d, want %d", i, v, i)
		}
	}

	rest := q.Drain(0)
	if len(rest) != 7 {
		t.Fatalf("Drain(0) returned %d items, want 7", len(rest))
	}
	if rest[0] != 3 || rest[6] != 9 {
		t.Errorf("rest = %v, want 3..9", rest)
	}

	if got := q.Drain(0); got != nil {
		t.Errorf("Drain on empty queue = %v, want nil", got)
	}
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int](0)

	const writers = 8
	const perWriter = 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				q.Push(w*perWriter + i)
			}
		}(w)
	}
	wg.Wait()

	stats := q.Stats()
	if stats.Len != writers*perWriter {
		t.Errorf("Len = %d, want %d", stats.Len, writers*perWriter)
	}
	if stats.Pushed != writers*perWriter {
		t.Errorf("Pushed = %d, want %d", stats.Pushed, writers*perWriter)
	}

	// Per-writer order must be preserved.
	last := make([]int, writers)
	for i := range last {
		last[i] = -1
	}
	for {
		v, ok := q.TryPop()
		if !ok {
			break
		}
		w := v / perWriter
		if v <= last[w] {
			t.Fatalf("writer %d out of order: %d after %d", w, v, last[w])
		}
		last[w] = v
	}
}
