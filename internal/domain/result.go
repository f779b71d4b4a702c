// Package domain defines the canonical result record and its identity scheme.
package domain

import (
	"fmt"
	"time"
)

// Result is the canonical record of one completed typing session. Once a
// fingerprint is assigned the record is immutable; a retry produces the
// same fingerprint and is a no-op for any store that already holds it.
type Result struct {
	TestID            string `json:"testId"`
	Category          string `json:"category,omitempty"`
	Subcategory       string `json:"subcategory,omitempty"`
	WPM               int    `json:"wpm"`
	Accuracy          int    `json:"accuracy"`
	Errors            int    `json:"errors"`
	TotalCharacters   int    `json:"totalCharacters"`
	CorrectCharacters int    `json:"correctCharacters"`
	TimeElapsed       int64  `json:"timeElapsed"` // milliseconds
	Timestamp         int64  `json:"timestamp"`   // epoch milliseconds, sole sort key
	Fingerprint       string `json:"fingerprint"`
	SessionID         string `json:"sessionId,omitempty"` // grouping only, not identity
}

// Validate checks the record's field invariants.
func (r *Result) Validate() error {
	if r.TestID == "" {
		return fmt.Errorf("result: empty testId")
	}
	if r.WPM < 0 {
		return fmt.Errorf("result: negative wpm %d", r.WPM)
	}
	if r.Accuracy < 0 || r.Accuracy > 100 {
		return fmt.Errorf("result: accuracy %d out of range", r.Accuracy)
	}
	if r.Errors < 0 || r.TotalCharacters < 0 || r.CorrectCharacters < 0 {
		return fmt.Errorf("result: negative character counts")
	}
	if r.TimeElapsed < 0 {
		return fmt.Errorf("result: negative timeElapsed %d", r.TimeElapsed)
	}
	return nil
}

// CompletedAt returns the completion time derived from the timestamp.
func (r *Result) CompletedAt() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// SameTuple reports whether two records agree on every fingerprinted
// field. Used as a secondary check when fingerprints collide.
func (r *Result) SameTuple(other *Result) bool {
	return r.TestID == other.TestID &&
		r.Timestamp == other.Timestamp &&
		r.WPM == other.WPM &&
		r.Accuracy == other.Accuracy &&
		r.Errors == other.Errors &&
		r.TotalCharacters == other.TotalCharacters &&
		r.CorrectCharacters == other.CorrectCharacters &&
		r.TimeElapsed == other.TimeElapsed
}
