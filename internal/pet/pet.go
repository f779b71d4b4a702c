// Package pet tracks the practice companion's progression. The manager
// is explicit state owned by the daemon; there is no package-level
// singleton. Rendering is out of scope, only the numbers live here.
package pet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/keysync/internal/domain"
	"github.com/felixgeelhaar/keysync/internal/storage/slot"
)

// StateKey is the slot key holding the serialized pet state.
const StateKey = "typing-trainer-pet"

// Moods, best to worst.
const (
	MoodHappy   = "happy"
	MoodContent = "content"
	MoodHungry  = "hungry"
)

const (
	// xpPerLevel scales the experience needed for the next level:
	// level n requires n*xpPerLevel more experience than level n-1.
	xpPerLevel = 100

	accuracyBonusThreshold = 95
)

// State is the persisted progression snapshot.
type State struct {
	Level      int    `json:"level"`
	Experience int    `json:"experience"`
	Mood       string `json:"mood"`
	LastFedAt  int64  `json:"lastFedAt"` // epoch millis of the last applied result
}

// Manager loads, mutates, and persists pet state over a storage slot.
type Manager struct {
	slot   slot.Slot
	logger *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

// New creates a manager over the given slot.
func New(s slot.Slot, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{slot: s, logger: logger, now: time.Now}
}

// State returns the current snapshot with the mood refreshed against the
// clock. A missing or corrupt slot yields a fresh level-1 pet.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.load()
	st.Mood = moodFor(st.LastFedAt, m.now())
	return st
}

// Apply feeds one completed session into the progression: experience
// from wpm with an accuracy bonus, level-ups at fixed thresholds, and a
// mood reset. The updated state is persisted before it is returned.
func (m *Manager) Apply(rec domain.Result) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.load()
	st.Experience += experienceFor(rec)
	for st.Experience >= nextLevelAt(st.Level) {
		st.Experience -= nextLevelAt(st.Level)
		st.Level++
	}
	st.LastFedAt = rec.Timestamp
	st.Mood = moodFor(st.LastFedAt, m.now())

	if err := m.persist(st); err != nil {
		return st, fmt.Errorf("persist pet state: %w", err)
	}
	return st, nil
}

// Clear resets the pet to its initial state.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slot.Delete(StateKey)
}

func (m *Manager) load() State {
	fresh := State{Level: 1, Mood: MoodContent}

	raw, ok, err := m.slot.Get(StateKey)
	if err != nil {
		m.logger.Warn("pet state unreadable, starting fresh", "error", err)
		return fresh
	}
	if !ok {
		return fresh
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		m.logger.Warn("pet state corrupted, starting fresh", "error", err)
		return fresh
	}
	if st.Level < 1 {
		st.Level = 1
	}
	return st
}

func (m *Manager) persist(st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return m.slot.Set(StateKey, string(raw))
}

// experienceFor grants one point per two wpm, plus a flat bonus for a
// near-perfect run.
func experienceFor(rec domain.Result) int {
	xp := rec.WPM / 2
	if rec.Accuracy >= accuracyBonusThreshold {
		xp += 10
	}
	if xp < 1 {
		xp = 1
	}
	return xp
}

func nextLevelAt(level int) int {
	return level * xpPerLevel
}

// moodFor decays with idle time: a practice session within a day keeps
// the pet happy, within three days content, beyond that hungry. A pet
// never fed at all starts content.
func moodFor(lastFedAt int64, now time.Time) string {
	if lastFedAt == 0 {
		return MoodContent
	}
	idle := now.Sub(time.UnixMilli(lastFedAt))
	switch {
	case idle < 24*time.Hour:
		return MoodHappy
	case idle < 72*time.Hour:
		return MoodContent
	default:
		return MoodHungry
	}
}
