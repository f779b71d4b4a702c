// Package cache implements the capped, ordered local result store backed
// by a persistent slot. It is the durability point of the write path: a
// result accepted here survives restarts even if the remote store never
// becomes reachable.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/keysync/internal/domain"
	"github.com/felixgeelhaar/keysync/internal/storage/slot"
)

const (
	// ResultsKey is the slot key holding the serialized result list.
	ResultsKey = "typing-trainer-results"

	// RetentionCap bounds how many records the cache keeps.
	RetentionCap = 100

	// reducedCap is the retention used for the one bounded retry after a
	// quota failure.
	reducedCap = 50
)

// Store is an ordered (newest first) collection of results addressable
// by fingerprint. All read-modify-write sequences are linearized by one
// mutex so interleaved writers never lose updates.
type Store struct {
	slot   slot.Slot
	logger *slog.Logger
	mu     sync.Mutex
}

// New creates a cache store on the given slot.
func New(s slot.Slot, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{slot: s, logger: logger}
}

// InsertIfAbsent inserts the record at the front unless a record with the
// same fingerprint is already present, evicting the oldest entries past
// the retention cap. It reports whether the record was inserted; a write
// failure carries slot.ErrQuotaExceeded or slot.ErrUnavailable for the
// caller to classify.
func (s *Store) InsertIfAbsent(rec domain.Result) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.load()
	for i := range records {
		if records[i].Fingerprint == rec.Fingerprint {
			if !records[i].SameTuple(&rec) {
				s.logger.Debug("fingerprint collision with differing fields, keeping existing record",
					"fingerprint", rec.Fingerprint)
			}
			return false, nil
		}
	}

	records = append([]domain.Result{rec}, records...)
	if len(records) > RetentionCap {
		records = records[:RetentionCap]
	}

	if err := s.persist(records); err != nil {
		return false, err
	}
	return true, nil
}

// All returns the current list, newest first. A corrupted or unavailable
// slot reads as empty.
func (s *Store) All() []domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Clear empties the store.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.slot.Delete(ResultsKey); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	return nil
}

// load reads and decodes the result list. Malformed data is treated as
// empty: the practice loop must never be blocked by a bad cache.
func (s *Store) load() []domain.Result {
	raw, ok, err := s.slot.Get(ResultsKey)
	if err != nil {
		s.logger.Warn("results slot unreadable, treating as empty", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var records []domain.Result
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		s.logger.Warn("results slot corrupted, treating as empty", "error", err)
		return nil
	}
	return records
}

// persist writes the list back. A quota failure gets one bounded retry
// with a reduced payload (newest half); a permanent failure is returned
// as-is without retry.
func (s *Store) persist(records []domain.Result) error {
	err := s.write(records)
	if err == nil {
		return nil
	}
	if errors.Is(err, slot.ErrQuotaExceeded) && len(records) > reducedCap {
		s.logger.Warn("results slot full, retrying with reduced payload",
			"records", len(records), "reduced", reducedCap)
		return s.write(records[:reducedCap])
	}
	return err
}

func (s *Store) write(records []domain.Result) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if err := s.slot.Set(ResultsKey, string(data)); err != nil {
		return fmt.Errorf("persist results: %w", err)
	}
	return nil
}
