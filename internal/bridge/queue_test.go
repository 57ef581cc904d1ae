package bridge

import (
	"sync"
	"testing"
	"time"

	"github.com/retroenv/retrogolib/assert"
)

func TestQueueFIFO(t *testing.T) {
	t.Parallel()

	q := NewQueue[string]()
	_, ok := q.Pop()
	assert.False(t, ok)

	q.Push("a")
	q.Push("b")
	assert.Equal(t, 2, q.Len())

	item, ok := q.Pop()
	assert.True(t, ok)
	assert.Equal(t, "a", item)
	q.Push("c")

	item, _ = q.Pop()
	assert.Equal(t, "b", item)
	item, _ = q.Pop()
	assert.Equal(t, "c", item)
	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestQueueConcurrentOrder(t *testing.T) {
	t.Parallel()

	const count = 10000
	q := NewQueue[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range count {
			q.Push(i)
		}
	}()

	received := make([]int, 0, count)
	deadline := time.Now().Add(10 * time.Second)
	for len(received) < count && time.Now().Before(deadline) {
		if item, ok := q.Pop(); ok {
			received = append(received, item)
		}
	}
	wg.Wait()

	assert.Len(t, received, count)
	for i, item := range received {
		if item != i {
			t.Fatalf("item %d popped at position %d", item, i)
		}
	}
}

func TestQueuePopDoesNotBlock(t *testing.T) {
	t.Parallel()

	q := NewQueue[string]()
	done := make(chan struct{})
	go func() {
		for range 1000 {
			_, _ = q.Pop()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pop on empty queue blocked")
	}
}
