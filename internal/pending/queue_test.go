package pending

import (
	"fmt"
	"testing"

	"github.com/felixgeelhaar/keysync/internal/domain"
	"github.com/felixgeelhaar/keysync/internal/storage/slot"
)

func newQueue(t *testing.T) *Queue {
	t.Helper()
	s, err := slot.NewFileSlot(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewFileSlot() error = %v", err)
	}
	return New(s, nil)
}

func record(n int) domain.Result {
	r := domain.Result{
		TestID:            fmt.Sprintf("words-%d", n),
		WPM:               40,
		Accuracy:          95,
		TotalCharacters:   100,
		CorrectCharacters: 95,
		TimeElapsed:       30000,
		Timestamp:         int64(1700000000000 + n),
	}
	r.EnsureFingerprint()
	return r
}

func TestQueue_FIFO(t *testing.T) {
	q := newQueue(t)

	for i := 0; i < 3; i++ {
		if err := q.Enqueue(record(i)); err != nil {
			t.Fatalf("Enqueue(%d) error = %v", i, err)
		}
	}

	snap := q.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("len = %d, want 3", len(snap))
	}
	for i, e := range snap {
		if want := fmt.Sprintf("words-%d", i); e.TestID != want {
			t.Errorf("snapshot[%d] = %s, want %s (FIFO)", i, e.TestID, want)
		}
	}
}

func TestQueue_EnqueueDuplicate(t *testing.T) {
	q := newQueue(t)
	rec := record(1)

	q.Enqueue(rec)
	q.Enqueue(rec)

	if got := q.Len(); got != 1 {
		t.Errorf("Len() = %d after duplicate enqueue, want 1", got)
	}
}

func TestQueue_Remove(t *testing.T) {
	q := newQueue(t)
	a, b, c := record(1), record(2), record(3)
	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)

	if err := q.Remove(a.Fingerprint, c.Fingerprint); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	snap := q.Snapshot()
	if len(snap) != 1 || snap[0].Fingerprint != b.Fingerprint {
		t.Errorf("snapshot after Remove = %v, want only %s", snap, b.TestID)
	}
}

func TestQueue_RemoveKeepsConcurrentEnqueues(t *testing.T) {
	q := newQueue(t)
	a := record(1)
	q.Enqueue(a)

	// Simulate a write landing between a sync snapshot and its removal.
	snap := q.Snapshot()
	late := record(2)
	q.Enqueue(late)

	var done []string
	for _, e := range snap {
		done = append(done, e.Fingerprint)
	}
	if err := q.Remove(done...); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	remaining := q.Snapshot()
	if len(remaining) != 1 || remaining[0].Fingerprint != late.Fingerprint {
		t.Errorf("late enqueue lost during Remove: %v", remaining)
	}
}

func TestQueue_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, _ := slot.NewFileSlot(dir, 0)
	q := New(s, nil)
	q.Enqueue(record(1))

	s2, _ := slot.NewFileSlot(dir, 0)
	q2 := New(s2, nil)
	if got := q2.Len(); got != 1 {
		t.Errorf("Len() after reopen = %d, want 1", got)
	}
}

func TestQueue_Clear(t *testing.T) {
	q := newQueue(t)
	q.Enqueue(record(1))

	if err := q.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if got := q.Len(); got != 0 {
		t.Errorf("Len() = %d after Clear, want 0", got)
	}
}
