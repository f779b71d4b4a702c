// Package pending implements the persistent FIFO queue of results that
// were accepted locally but not yet confirmed by the remote store.
package pending

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/keysync/internal/domain"
	"github.com/felixgeelhaar/keysync/internal/storage/slot"
)

// QueueKey is the slot key holding the serialized queue.
const QueueKey = "typing-trainer-pending"

// Queue holds full records in enqueue order so a replay needs nothing
// beyond the queue itself. Entries leave only after a confirmed remote
// write; they survive process restarts.
type Queue struct {
	slot   slot.Slot
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a pending queue on the given slot.
func New(s slot.Slot, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{slot: s, logger: logger}
}

// Enqueue appends the record unless its fingerprint is already queued.
func (q *Queue) Enqueue(rec domain.Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.load()
	for i := range entries {
		if entries[i].Fingerprint == rec.Fingerprint {
			return nil
		}
	}
	entries = append(entries, rec)
	return q.persist(entries)
}

// Snapshot returns a copy of the queue in FIFO order.
func (q *Queue) Snapshot() []domain.Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.load()
	out := make([]domain.Result, len(entries))
	copy(out, entries)
	return out
}

// Remove drops the entries with the given fingerprints. It re-reads the
// queue under the lock so entries enqueued during an in-flight sync are
// never lost.
func (q *Queue) Remove(fingerprints ...string) error {
	if len(fingerprints) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	done := make(map[string]struct{}, len(fingerprints))
	for _, fp := range fingerprints {
		done[fp] = struct{}{}
	}

	entries := q.load()
	kept := entries[:0]
	for _, e := range entries {
		if _, ok := done[e.Fingerprint]; !ok {
			kept = append(kept, e)
		}
	}
	return q.persist(kept)
}

// Len reports how many entries are waiting.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.load())
}

// Clear empties the queue.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.slot.Delete(QueueKey); err != nil {
		return fmt.Errorf("clear pending queue: %w", err)
	}
	return nil
}

func (q *Queue) load() []domain.Result {
	raw, ok, err := q.slot.Get(QueueKey)
	if err != nil {
		q.logger.Warn("pending slot unreadable, treating as empty", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var entries []domain.Result
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		q.logger.Warn("pending slot corrupted, treating as empty", "error", err)
		return nil
	}
	return entries
}

func (q *Queue) persist(entries []domain.Result) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode pending queue: %w", err)
	}
	if err := q.slot.Set(QueueKey, string(data)); err != nil {
		return fmt.Errorf("persist pending queue: %w", err)
	}
	return nil
}
