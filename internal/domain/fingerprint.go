package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FingerprintLength is the fixed width of every fingerprint.
const FingerprintLength = 16

// Fingerprint derives the deterministic idempotency key for a completed
// session. Identical arguments always yield the identical 16-character
// base-36 string; there is no randomness, clock read, or I/O.
func Fingerprint(testID string, timestamp int64, wpm, accuracy, errs, totalChars, correctChars int, timeElapsed int64) string {
	return hash36(fingerprintInput(testID, timestamp, wpm, accuracy, errs, totalChars, correctChars, timeElapsed))
}

// NewFingerprint produces a fresh, non-colliding identifier from the same
// inputs plus a random component. Callers that want an idempotent write
// must use Fingerprint instead; the two variants are never mixed on one
// write path.
func NewFingerprint(testID string, timestamp int64, wpm, accuracy, errs, totalChars, correctChars int, timeElapsed int64) string {
	in := fingerprintInput(testID, timestamp, wpm, accuracy, errs, totalChars, correctChars, timeElapsed)
	return hash36(in + "|" + uuid.NewString())
}

// ComputeFingerprint returns the deterministic fingerprint for the
// record's immutable fields without assigning it.
func (r *Result) ComputeFingerprint() string {
	return Fingerprint(r.TestID, r.Timestamp, r.WPM, r.Accuracy, r.Errors,
		r.TotalCharacters, r.CorrectCharacters, r.TimeElapsed)
}

// EnsureFingerprint assigns the deterministic fingerprint if the record
// does not carry one yet.
func (r *Result) EnsureFingerprint() {
	if r.Fingerprint == "" {
		r.Fingerprint = r.ComputeFingerprint()
	}
}

func fingerprintInput(testID string, timestamp int64, wpm, accuracy, errs, totalChars, correctChars int, timeElapsed int64) string {
	return fmt.Sprintf("%s|%d|%d|%d|%d|%d|%d|%d",
		testID, timestamp, wpm, accuracy, errs, totalChars, correctChars, timeElapsed)
}

// hash36 runs a cheap rolling hash over the input and encodes it as a
// fixed-width base-36 string. Not cryptographic; collisions are handled
// by a secondary tuple check at the store layer.
func hash36(in string) string {
	var h int32
	for i := 0; i < len(in); i++ {
		h = h*31 + int32(in[i])
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	enc := strconv.FormatInt(v, 36)
	if len(enc) < FingerprintLength {
		enc = strings.Repeat("0", FingerprintLength-len(enc)) + enc
	}
	return enc[:FingerprintLength]
}
