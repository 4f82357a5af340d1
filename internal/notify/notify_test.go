package notify

import (
	"sync"
	"testing"
)

func TestQueueDrain(t *testing.T) {
	q := NewQueue()
	q.Success("Expense added successfully")
	q.Error("Failed to load expenses")

	got := q.Drain()
	if len(got) != 2 {
		t.Fatalf("Drain() returned %d toasts, want 2", len(got))
	}
	if got[0].Kind != KindSuccess || got[1].Kind != KindError {
		t.Errorf("unexpected order: %+v", got)
	}
	if q.Len() != 0 || len(q.Drain()) != 0 {
		t.Error("queue should be empty after drain")
	}
}

func TestQueueConcurrentPush(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Error("x")
		}()
	}
	wg.Wait()
	if q.Len() != 50 {
		t.Errorf("Len() = %d, want 50", q.Len())
	}
}
