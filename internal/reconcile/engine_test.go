package reconcile

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/felixgeelhaar/keysync/internal/domain"
	"github.com/felixgeelhaar/keysync/internal/pending"
	"github.com/felixgeelhaar/keysync/internal/storage/cache"
	"github.com/felixgeelhaar/keysync/internal/storage/slot"
)

// fakeRemote is an in-memory remote store with a switchable outage.
type fakeRemote struct {
	down    bool
	results map[string]domain.Result
	order   []string
	submits int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{results: map[string]domain.Result{}}
}

func (f *fakeRemote) Submit(_ context.Context, rec domain.Result) (bool, error) {
	f.submits++
	if f.down {
		return false, errors.New("connection refused")
	}
	if _, dup := f.results[rec.Fingerprint]; dup {
		return true, nil
	}
	f.results[rec.Fingerprint] = rec
	f.order = append(f.order, rec.Fingerprint)
	return true, nil
}

func (f *fakeRemote) FetchResults(_ context.Context, limit int) ([]domain.Result, error) {
	if f.down {
		return nil, errors.New("connection refused")
	}
	out := make([]domain.Result, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0; i-- {
		out = append(out, f.results[f.order[i]])
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// failSlot rejects every write with a permanent failure.
type failSlot struct{}

func (failSlot) Get(string) (string, bool, error) { return "", false, nil }
func (failSlot) Set(string, string) error         { return slot.ErrUnavailable }
func (failSlot) Delete(string) error              { return slot.ErrUnavailable }

func newEngine(t *testing.T, remote RemoteStore) (*Engine, *cache.Store, *pending.Queue) {
	t.Helper()
	fs, err := slot.NewFileSlot(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewFileSlot() error = %v", err)
	}
	local := cache.New(fs, nil)
	queue := pending.New(fs, nil)
	return New(local, queue, remote, nil), local, queue
}

func record(n int) domain.Result {
	return domain.Result{
		TestID:            fmt.Sprintf("words-%d", n),
		Category:          "words",
		WPM:               40 + n,
		Accuracy:          95,
		Errors:            5,
		TotalCharacters:   100,
		CorrectCharacters: 95,
		TimeElapsed:       30000,
		Timestamp:         int64(1700000000000 + n),
	}
}

func TestRecord_Both(t *testing.T) {
	remote := newFakeRemote()
	e, local, queue := newEngine(t, remote)

	out := e.Record(context.Background(), record(1))

	if out.Combination != CombinationBoth {
		t.Errorf("combination = %s, want both", out.Combination)
	}
	if out.Queued {
		t.Error("record queued despite remote success")
	}
	if out.Fingerprint == "" {
		t.Error("no fingerprint assigned")
	}
	if len(local.All()) != 1 {
		t.Error("record missing from local cache")
	}
	if queue.Len() != 0 {
		t.Error("pending queue not empty")
	}
}

func TestRecord_RemoteDown(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	e, local, queue := newEngine(t, remote)

	out := e.Record(context.Background(), record(1))

	if out.Combination != CombinationLocalOnly {
		t.Errorf("combination = %s, want localOnly", out.Combination)
	}
	if !out.Queued {
		t.Error("record not queued for retry")
	}
	if out.RemoteErr == nil {
		t.Error("remote failure not reported")
	}
	if len(local.All()) != 1 || queue.Len() != 1 {
		t.Errorf("local = %d, queued = %d, want 1, 1", len(local.All()), queue.Len())
	}
	if !out.Saved() {
		t.Error("Saved() = false for a locally durable write")
	}
}

func TestRecord_LocalPermanentFailure(t *testing.T) {
	remote := newFakeRemote()
	local := cache.New(failSlot{}, nil)
	queue := pending.New(failSlot{}, nil)
	e := New(local, queue, remote, nil)

	out := e.Record(context.Background(), record(1))

	if out.Combination != CombinationRemoteOnly {
		t.Errorf("combination = %s, want remoteOnly", out.Combination)
	}
	if !out.LocalPermanent() {
		t.Error("LocalPermanent() = false for ErrUnavailable")
	}
}

func TestRecord_Neither(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	local := cache.New(failSlot{}, nil)
	queue := pending.New(failSlot{}, nil)
	e := New(local, queue, remote, nil)

	out := e.Record(context.Background(), record(1))

	if out.Combination != CombinationNeither {
		t.Errorf("combination = %s, want neither", out.Combination)
	}
	if out.Saved() {
		t.Error("Saved() = true with every store down")
	}
	if out.Queued {
		t.Error("Queued = true though the queue slot is unavailable")
	}
}

func TestRecord_DuplicateIsIdempotent(t *testing.T) {
	remote := newFakeRemote()
	e, local, _ := newEngine(t, remote)
	rec := record(1)

	first := e.Record(context.Background(), rec)
	second := e.Record(context.Background(), rec)

	if first.Fingerprint != second.Fingerprint {
		t.Error("retry produced a different fingerprint")
	}
	if second.Combination != CombinationBoth {
		t.Errorf("retry combination = %s, want both", second.Combination)
	}
	if len(local.All()) != 1 {
		t.Errorf("local holds %d records, want 1", len(local.All()))
	}
	if got := e.ReconciledResults(context.Background(), 10); len(got) != 1 {
		t.Errorf("reconciled view holds %d records, want 1", len(got))
	}
}

func TestReconciledResults_RoundTrip(t *testing.T) {
	remote := newFakeRemote()
	e, _, _ := newEngine(t, remote)
	rec := record(1)

	out := e.Record(context.Background(), rec)
	got := e.ReconciledResults(context.Background(), 10)

	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	r := got[0]
	if r.Fingerprint != out.Fingerprint || r.TestID != rec.TestID ||
		r.WPM != rec.WPM || r.Accuracy != rec.Accuracy ||
		r.Errors != rec.Errors || r.TotalCharacters != rec.TotalCharacters ||
		r.CorrectCharacters != rec.CorrectCharacters ||
		r.TimeElapsed != rec.TimeElapsed || r.Timestamp != rec.Timestamp {
		t.Errorf("round trip mismatch: got %+v", r)
	}
}

func TestReconciledResults_FallbackToLocal(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	e, _, _ := newEngine(t, remote)

	for i := 0; i < 4; i++ {
		e.Record(context.Background(), record(i))
	}

	got := e.ReconciledResults(context.Background(), 10)
	if len(got) != 4 {
		t.Fatalf("len = %d, want all 4 from local", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].Timestamp < got[i].Timestamp {
			t.Fatal("results not sorted newest first")
		}
	}
}

func TestReconciledResults_RemotePrecedence(t *testing.T) {
	remote := newFakeRemote()
	e, local, _ := newEngine(t, remote)

	rec := record(1)
	rec.EnsureFingerprint()

	// Same fingerprint on both sides; the remote copy carries the
	// authoritative category.
	localCopy := rec
	localCopy.Category = ""
	local.InsertIfAbsent(localCopy)
	remoteCopy := rec
	remoteCopy.Category = "words"
	remote.Submit(context.Background(), remoteCopy)

	got := e.ReconciledResults(context.Background(), 10)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 after dedup", len(got))
	}
	if got[0].Category != "words" {
		t.Errorf("category = %q, remote must take precedence", got[0].Category)
	}
}

func TestReconciledResults_MergeAndTruncate(t *testing.T) {
	remote := newFakeRemote()
	e, local, _ := newEngine(t, remote)

	// Two remote-only and two local-only records, interleaved in time.
	for _, n := range []int{1, 3} {
		r := record(n)
		r.EnsureFingerprint()
		remote.Submit(context.Background(), r)
	}
	for _, n := range []int{2, 4} {
		r := record(n)
		r.EnsureFingerprint()
		local.InsertIfAbsent(r)
	}

	got := e.ReconciledResults(context.Background(), 3)
	if len(got) != 3 {
		t.Fatalf("len = %d, want truncation to 3", len(got))
	}
	wantOrder := []string{"words-4", "words-3", "words-2"}
	for i, want := range wantOrder {
		if got[i].TestID != want {
			t.Errorf("got[%d] = %s, want %s", i, got[i].TestID, want)
		}
	}
}

func TestReconciledResults_CategoryInference(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	e, local, _ := newEngine(t, remote)

	old := domain.Result{TestID: "quotes-7", WPM: 50, Accuracy: 99,
		TotalCharacters: 80, CorrectCharacters: 79, Errors: 1,
		TimeElapsed: 20000, Timestamp: 1700000000000}
	old.EnsureFingerprint()
	local.InsertIfAbsent(old)

	legacy := domain.Result{TestID: "drill-9", WPM: 30, Accuracy: 90,
		TotalCharacters: 50, CorrectCharacters: 45, Errors: 5,
		TimeElapsed: 20000, Timestamp: 1700000001000}
	legacy.EnsureFingerprint()
	local.InsertIfAbsent(legacy)

	got := e.ReconciledResults(context.Background(), 10)
	byID := map[string]domain.Result{}
	for _, r := range got {
		byID[r.TestID] = r
	}
	if byID["quotes-7"].Category != "quotes" {
		t.Errorf("category = %q, want inferred %q", byID["quotes-7"].Category, "quotes")
	}
	if byID["drill-9"].Category != domain.CategoryUnknown {
		t.Errorf("category = %q, want %q sentinel", byID["drill-9"].Category, domain.CategoryUnknown)
	}

	// Inference is display-only: the cached records stay untouched.
	for _, r := range local.All() {
		if r.Category != "" {
			t.Errorf("stored record %s rewritten with category %q", r.TestID, r.Category)
		}
	}
}

func TestSyncPending_Replay(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	e, _, queue := newEngine(t, remote)

	for i := 0; i < 3; i++ {
		e.Record(context.Background(), record(i))
	}
	if queue.Len() != 3 {
		t.Fatalf("queued = %d, want 3", queue.Len())
	}

	remote.down = false
	report := e.SyncPending(context.Background())

	if report.Synced != 3 || report.Failed != 0 {
		t.Errorf("report = %+v, want {3 0}", report)
	}
	if queue.Len() != 0 {
		t.Errorf("queue len = %d after replay, want 0", queue.Len())
	}
	if len(remote.results) != 3 {
		t.Errorf("remote holds %d records, want 3", len(remote.results))
	}

	// Replaying an empty queue is a harmless no-op.
	again := e.SyncPending(context.Background())
	if again.Synced != 0 || again.Failed != 0 {
		t.Errorf("second replay report = %+v, want zeros", again)
	}
}

func TestSyncPending_StillDown(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	e, _, queue := newEngine(t, remote)

	for i := 0; i < 2; i++ {
		e.Record(context.Background(), record(i))
	}

	report := e.SyncPending(context.Background())
	if report.Synced != 0 || report.Failed != 2 {
		t.Errorf("report = %+v, want {0 2}", report)
	}
	if queue.Len() != 2 {
		t.Errorf("queue len = %d, entries must survive failed replay", queue.Len())
	}
}

func TestClear(t *testing.T) {
	remote := newFakeRemote()
	remote.down = true
	e, local, queue := newEngine(t, remote)

	e.Record(context.Background(), record(1))
	if err := e.Clear(); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if len(local.All()) != 0 || queue.Len() != 0 {
		t.Error("Clear() left data behind")
	}
}
