// Package reconcile merges the always-available local cache and the
// intermittently-available remote store into one consistent view, and
// replays writes the remote store missed.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/felixgeelhaar/keysync/internal/domain"
	"github.com/felixgeelhaar/keysync/internal/pending"
	"github.com/felixgeelhaar/keysync/internal/storage/cache"
	"github.com/felixgeelhaar/keysync/internal/storage/slot"
)

// RemoteStore is the slice of the remote client the engine needs.
type RemoteStore interface {
	Submit(ctx context.Context, rec domain.Result) (bool, error)
	FetchResults(ctx context.Context, limit int) ([]domain.Result, error)
}

// Combination names which stores hold the record after a write.
type Combination string

const (
	CombinationBoth       Combination = "both"
	CombinationLocalOnly  Combination = "localOnly"
	CombinationRemoteOnly Combination = "remoteOnly"
	CombinationNeither    Combination = "neither"
)

// Outcome is the typed result of a write. Record never fails with a Go
// error; every failure path resolves into this struct.
type Outcome struct {
	Fingerprint string
	Combination Combination
	Queued      bool // enqueued for a later remote retry

	LocalErr  error // set when the local write failed
	RemoteErr error // set when the remote write failed
}

// Saved reports whether at least one store holds the record.
func (o Outcome) Saved() bool {
	return o.Combination != CombinationNeither
}

// LocalPermanent reports whether the local failure is not worth retrying.
func (o Outcome) LocalPermanent() bool {
	return errors.Is(o.LocalErr, slot.ErrUnavailable)
}

// StatusMessage renders the short-lived, user-facing status line for the
// combination achieved.
func (o Outcome) StatusMessage() string {
	switch o.Combination {
	case CombinationBoth:
		return "Result saved and synced"
	case CombinationLocalOnly:
		return "Result saved locally, sync pending"
	case CombinationRemoteOnly:
		return "Result synced, local save failed"
	default:
		return "Result could not be saved"
	}
}

// Report summarizes one pending-queue replay.
type Report struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

// Engine coordinates the dual-write saga: the local cache commit is the
// durability point, the remote submit is an asynchronous, retryable
// side-effect.
type Engine struct {
	local  *cache.Store
	queue  *pending.Queue
	remote RemoteStore
	logger *slog.Logger

	syncMu sync.Mutex // serializes pending replays
}

// New creates an engine over the given stores.
func New(local *cache.Store, queue *pending.Queue, remote RemoteStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{local: local, queue: queue, remote: remote, logger: logger}
}

// Record persists one result: local first (synchronous durability
// point), then a best-effort remote submit. A failed remote attempt
// parks the record on the pending queue. The advisory connectivity flag
// is never consulted; the attempt itself is the probe.
func (e *Engine) Record(ctx context.Context, rec domain.Result) Outcome {
	rec.EnsureFingerprint()
	out := Outcome{Fingerprint: rec.Fingerprint}

	_, localErr := e.local.InsertIfAbsent(rec)
	localOK := localErr == nil
	if !localOK {
		out.LocalErr = localErr
		e.logger.Warn("local write failed",
			"fingerprint", rec.Fingerprint,
			"permanent", errors.Is(localErr, slot.ErrUnavailable),
			"error", localErr)
	}

	accepted, remoteErr := e.remote.Submit(ctx, rec)
	remoteOK := remoteErr == nil && accepted
	if !remoteOK {
		if remoteErr != nil {
			out.RemoteErr = remoteErr
		}
		if err := e.queue.Enqueue(rec); err != nil {
			e.logger.Warn("could not enqueue for sync", "fingerprint", rec.Fingerprint, "error", err)
		} else {
			out.Queued = true
		}
	}

	switch {
	case localOK && remoteOK:
		out.Combination = CombinationBoth
	case localOK:
		out.Combination = CombinationLocalOnly
	case remoteOK:
		out.Combination = CombinationRemoteOnly
	default:
		out.Combination = CombinationNeither
	}

	e.logger.Info("result recorded",
		"fingerprint", rec.Fingerprint,
		"combination", out.Combination,
		"queued", out.Queued)
	return out
}

// ReconciledResults merges both sources into one deduplicated view,
// newest first, truncated to limit. Remote records take precedence on a
// fingerprint conflict; local records the remote never saw are kept.
// Records that predate categorization get a display-time category; the
// stored data is never rewritten.
func (e *Engine) ReconciledResults(ctx context.Context, limit int) []domain.Result {
	var remote []domain.Result
	if e.remote != nil {
		fetched, err := e.remote.FetchResults(ctx, limit)
		if err != nil {
			e.logger.Info("remote unreachable, serving local cache", "error", err)
		} else {
			remote = fetched
		}
	}

	seen := make(map[string]struct{}, len(remote))
	merged := make([]domain.Result, 0, len(remote))
	for _, r := range remote {
		if _, dup := seen[r.Fingerprint]; dup {
			continue
		}
		seen[r.Fingerprint] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range e.local.All() {
		if _, dup := seen[r.Fingerprint]; dup {
			continue
		}
		seen[r.Fingerprint] = struct{}{}
		merged = append(merged, r)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}

	for i := range merged {
		if merged[i].Category == "" {
			merged[i].Category = domain.InferCategory(merged[i].TestID)
		}
	}
	return merged
}

// SyncPending replays the queue in FIFO order. A confirmed submit
// removes its entry; a failed one stays for the next pass without
// blocking the entries behind it. Replays are serialized with each
// other but interleave safely with new writes.
func (e *Engine) SyncPending(ctx context.Context) Report {
	e.syncMu.Lock()
	defer e.syncMu.Unlock()

	var report Report
	var done []string

	for _, rec := range e.queue.Snapshot() {
		accepted, err := e.remote.Submit(ctx, rec)
		if err != nil || !accepted {
			report.Failed++
			e.logger.Debug("pending replay failed", "fingerprint", rec.Fingerprint, "error", err)
			continue
		}
		done = append(done, rec.Fingerprint)
	}

	if err := e.queue.Remove(done...); err != nil {
		e.logger.Warn("could not compact pending queue", "error", err)
	}
	report.Synced = len(done)

	if report.Synced > 0 || report.Failed > 0 {
		e.logger.Info("pending sync finished", "synced", report.Synced, "failed", report.Failed)
	}
	return report
}

// PendingCount reports how many records await a remote confirmation.
func (e *Engine) PendingCount() int {
	return e.queue.Len()
}

// Clear wipes the local cache and the pending queue. Bulk clearing is
// the only deletion the store model supports.
func (e *Engine) Clear() error {
	if err := e.local.Clear(); err != nil {
		return err
	}
	return e.queue.Clear()
}
