package fle

import (
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestQueuePushPoll(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := newQueue[int]()
	q.Push(1)
	q.Push(2)

	v, ok := q.Poll(time.Second)
	if !ok || v != 1 {
		t.Fatalf("expected (1, true), got (%d, %v)", v, ok)
	}
	v, ok = q.Poll(time.Second)
	if !ok || v != 2 {
		t.Fatalf("expected (2, true), got (%d, %v)", v, ok)
	}
}

func TestQueuePollTimeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := newQueue[int]()
	start := time.Now()
	_, ok := q.Poll(50 * time.Millisecond)
	if ok {
		t.Fatal("expected timeout on empty queue")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Fatalf("returned before timeout elapsed: %v", elapsed)
	}
}

func TestQueuePollUnblocksOnPush(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := newQueue[string]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		time.Sleep(20 * time.Millisecond)
		q.Push("hi")
	}()

	v, ok := q.Poll(2 * time.Second)
	<-done
	if !ok || v != "hi" {
		t.Fatalf("expected (\"hi\", true), got (%q, %v)", v, ok)
	}
}

func TestQueuePushFrontOrdering(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := newQueue[int]()
	q.Push(2)
	q.Push(3)
	q.PushFront(1)

	for _, want := range []int{1, 2, 3} {
		got, ok := q.Poll(time.Second)
		if !ok || got != want {
			t.Fatalf("expected %d, got (%d, %v)", want, got, ok)
		}
	}
}

func TestQueueDrain(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := newQueue[int]()
	q.Push(1)
	q.Push(2)
	q.Push(3)

	items := q.Drain()
	if len(items) != 3 {
		t.Fatalf("expected 3 drained items, got %d", len(items))
	}
	if q.Len() != 0 {
		t.Fatal("queue should be empty after drain")
	}
}

func TestQueueCloseUnblocksWaiters(t *testing.T) {
	defer goleak.VerifyNone(t)

	q := newQueue[int]()
	resultCh := make(chan bool, 1)
	go func() {
		_, ok := q.Poll(5 * time.Second)
		resultCh <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case ok := <-resultCh:
		if ok {
			t.Fatal("expected poll to report no item after close")
		}
	case <-time.After(time.Second):
		t.Fatal("poll did not unblock after close")
	}

	q.Push(1) // dropped silently; must not panic
}
