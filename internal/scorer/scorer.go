// Package scorer turns a stream of keystrokes against a target text into
// exactly one canonical result record.
package scorer

import (
	"math"
	"sync"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/felixgeelhaar/keysync/internal/domain"
)

// Status represents the session state.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusInProgress Status = "in_progress"
	StatusComplete   Status = "complete"
)

type keystroke struct {
	r       rune
	correct bool
}

// Session scores one typing session. The state machine is
// Idle -> InProgress (first keystroke) -> Complete (cursor == length);
// Complete is terminal and fires exactly once even when an inline check
// and an external fallback check observe the terminal state together.
type Session struct {
	id          string
	testID      string
	category    string
	subcategory string
	target      []rune

	mu        sync.Mutex
	cursor    int
	typed     []keystroke
	status    Status
	startedAt time.Time
	result    *domain.Result

	now func() time.Time
}

// NewSession creates an idle session against the given target text.
func NewSession(testID, category, subcategory, target string) *Session {
	return &Session{
		id:          uuid.NewString(),
		testID:      testID,
		category:    category,
		subcategory: subcategory,
		target:      []rune(target),
		status:      StatusIdle,
		now:         time.Now,
	}
}

// ID returns the session identifier (grouping only, not identity).
func (s *Session) ID() string { return s.id }

// Status returns the current state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// KeyEvent is one keyboard event as delivered by the UI: a single typed
// character, or a named key.
type KeyEvent struct {
	Key string `json:"key"`
}

// Apply dispatches a keyboard event. Named keys map onto the characters
// the content actually contains: Tab is U+0009, Enter and Return are
// newline. It reports whether the session just completed.
func (s *Session) Apply(ev KeyEvent) bool {
	switch ev.Key {
	case "Backspace":
		s.Backspace()
		return false
	case "Tab":
		return s.Type('\t')
	case "Enter", "Return":
		return s.Type('\n')
	default:
		runes := []rune(ev.Key)
		if len(runes) != 1 {
			// Modifier or unrecognized named key; not a typed character.
			return s.CheckComplete()
		}
		return s.Type(runes[0])
	}
}

// Type records one typed rune against the expected character at the
// cursor and reports whether the session just completed. Keystrokes
// after completion are ignored.
func (s *Session) Type(r rune) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusComplete || s.cursor >= len(s.target) {
		return s.completeLocked()
	}

	if s.status == StatusIdle {
		s.status = StatusInProgress
		s.startedAt = s.now()
	}

	expected := s.target[s.cursor]
	s.typed = append(s.typed, keystroke{r: r, correct: matches(r, expected)})
	s.cursor++

	return s.completeLocked()
}

// Backspace removes the most recent typed character and steps the cursor
// back. It never counts as an error and never advances time.
func (s *Session) Backspace() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusInProgress || len(s.typed) == 0 {
		return
	}
	s.typed = s.typed[:len(s.typed)-1]
	s.cursor--
}

// CheckComplete is the reactive fallback for callers that observe the
// terminal state out-of-band. It finalizes at most once.
func (s *Session) CheckComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completeLocked()
}

// Result returns the scored record once the session is complete.
func (s *Session) Result() (*domain.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.result == nil {
		return nil, false
	}
	out := *s.result
	return &out, true
}

// completeLocked detects and finalizes completion. The result is built
// exactly once; repeated observations of the terminal state are no-ops.
func (s *Session) completeLocked() bool {
	if s.cursor < len(s.target) || s.status == StatusIdle {
		return false
	}
	if s.status == StatusComplete {
		return true
	}

	s.status = StatusComplete

	correct, errs := 0, 0
	for _, k := range s.typed {
		if k.correct {
			correct++
		} else {
			errs++
		}
	}
	total := len(s.typed)

	completedAt := s.now()
	elapsed := completedAt.Sub(s.startedAt).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	s.result = &domain.Result{
		TestID:            s.testID,
		Category:          s.category,
		Subcategory:       s.subcategory,
		WPM:               wpm(correct, elapsed),
		Accuracy:          accuracy(correct, total),
		Errors:            errs,
		TotalCharacters:   total,
		CorrectCharacters: correct,
		TimeElapsed:       elapsed,
		Timestamp:         completedAt.UnixMilli(),
		SessionID:         s.id,
	}
	return true
}

// wpm uses the 5-characters-per-word convention.
func wpm(correct int, elapsedMs int64) int {
	if elapsedMs == 0 {
		return 0
	}
	minutes := float64(elapsedMs) / 60000.0
	return int(math.Round((float64(correct) / 5.0) / minutes))
}

func accuracy(correct, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// matches applies the layered comparison: exact match, then
// Unicode-normalized match, then case-insensitive match for letters.
// The expected side is whatever the content actually contains; tab and
// newline arrive as their literal runes.
func matches(typed, expected rune) bool {
	if typed == expected {
		return true
	}
	if norm.NFC.String(string(typed)) == norm.NFC.String(string(expected)) {
		return true
	}
	if unicode.IsLetter(expected) && unicode.ToLower(typed) == unicode.ToLower(expected) {
		return true
	}
	return false
}
