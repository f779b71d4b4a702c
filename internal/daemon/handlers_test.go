package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/felixgeelhaar/keysync/internal/config"
	"github.com/felixgeelhaar/keysync/internal/domain"
	"github.com/felixgeelhaar/keysync/internal/pending"
	"github.com/felixgeelhaar/keysync/internal/pet"
	"github.com/felixgeelhaar/keysync/internal/reconcile"
	"github.com/felixgeelhaar/keysync/internal/stats"
	"github.com/felixgeelhaar/keysync/internal/storage/cache"
	"github.com/felixgeelhaar/keysync/internal/storage/slot"
)

type fakeRemote struct {
	down    bool
	results map[string]domain.Result
}

func (f *fakeRemote) Submit(_ context.Context, rec domain.Result) (bool, error) {
	if f.down {
		return false, errors.New("connection refused")
	}
	f.results[rec.Fingerprint] = rec
	return true, nil
}

func (f *fakeRemote) FetchResults(_ context.Context, _ int) ([]domain.Result, error) {
	if f.down {
		return nil, errors.New("connection refused")
	}
	out := make([]domain.Result, 0, len(f.results))
	for _, r := range f.results {
		out = append(out, r)
	}
	return out, nil
}

type fakeConnectivity struct{ online bool }

func (f *fakeConnectivity) Ping(context.Context) error {
	if !f.online {
		return errors.New("unreachable")
	}
	return nil
}

func (f *fakeConnectivity) Online() bool { return f.online }

type testDaemon struct {
	srv    *httptest.Server
	remote *fakeRemote
}

func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()

	fs, err := slot.NewFileSlot(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewFileSlot() error = %v", err)
	}
	remote := &fakeRemote{results: map[string]domain.Result{}}
	engine := reconcile.New(cache.New(fs, nil), pending.New(fs, nil), remote, nil)

	s := NewServer(Deps{
		Config:       config.DefaultLocalConfig(),
		Engine:       engine,
		Pets:         pet.New(fs, nil),
		Connectivity: &fakeConnectivity{online: true},
	})

	srv := httptest.NewServer(s.server.Handler)
	t.Cleanup(srv.Close)
	return &testDaemon{srv: srv, remote: remote}
}

func (d *testDaemon) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	resp, err := http.Post(d.srv.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func (d *testDaemon) get(t *testing.T, path string, into any) {
	t.Helper()
	resp, err := http.Get(d.srv.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
}

func sessionResult(n int) domain.Result {
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

func TestHandleRecordResult(t *testing.T) {
	d := newTestDaemon(t)

	resp := d.post(t, "/v1/results", sessionResult(1))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var rr recordResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rr.Combination != reconcile.CombinationBoth {
		t.Errorf("combination = %s, want both", rr.Combination)
	}
	if len(rr.Fingerprint) != domain.FingerprintLength {
		t.Errorf("fingerprint = %q", rr.Fingerprint)
	}
	if rr.Queued {
		t.Error("queued despite remote success")
	}
}

func TestHandleRecordResult_RemoteDown(t *testing.T) {
	d := newTestDaemon(t)
	d.remote.down = true

	resp := d.post(t, "/v1/results", sessionResult(1))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, local-only save is still a success", resp.StatusCode)
	}

	var rr recordResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if rr.Combination != reconcile.CombinationLocalOnly || !rr.Queued {
		t.Errorf("response = %+v, want queued localOnly", rr)
	}
}

func TestHandleRecordResult_InvalidPayload(t *testing.T) {
	d := newTestDaemon(t)

	resp := d.post(t, "/v1/results", map[string]any{"wpm": -1, "testId": "words-1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleListResults(t *testing.T) {
	d := newTestDaemon(t)
	for i := 0; i < 3; i++ {
		d.post(t, "/v1/results", sessionResult(i)).Body.Close()
	}

	var body struct {
		Results []domain.Result `json:"results"`
		Count   int             `json:"count"`
	}
	d.get(t, "/v1/results?limit=2", &body)
	if body.Count != 2 || len(body.Results) != 2 {
		t.Fatalf("count = %d, len = %d, want 2", body.Count, len(body.Results))
	}
	if body.Results[0].Timestamp < body.Results[1].Timestamp {
		t.Error("results not newest first")
	}
}

func TestHandleListResults_InvalidLimit(t *testing.T) {
	d := newTestDaemon(t)
	resp, err := http.Get(d.srv.URL + "/v1/results?limit=nope")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleStats(t *testing.T) {
	d := newTestDaemon(t)
	a := sessionResult(1)
	a.WPM, a.Accuracy = 40, 90
	b := sessionResult(2)
	b.WPM, b.Accuracy = 60, 100
	d.post(t, "/v1/results", a).Body.Close()
	d.post(t, "/v1/results", b).Body.Close()

	var s stats.UserStats
	d.get(t, "/v1/stats", &s)
	if s.TotalTests != 2 || s.AverageWPM != 50 || s.BestWPM != 60 || s.AverageAccuracy != 95 {
		t.Errorf("stats = %+v", s)
	}
}

func TestHandlePet(t *testing.T) {
	d := newTestDaemon(t)
	d.post(t, "/v1/results", sessionResult(1)).Body.Close()

	var st pet.State
	d.get(t, "/v1/pet", &st)
	if st.Experience == 0 {
		t.Error("recording a result granted no experience")
	}
	if st.Mood != pet.MoodHappy {
		t.Errorf("mood = %s, want happy after fresh practice", st.Mood)
	}
}

func TestHandleSync(t *testing.T) {
	d := newTestDaemon(t)
	d.remote.down = true
	for i := 0; i < 3; i++ {
		d.post(t, "/v1/results", sessionResult(i)).Body.Close()
	}

	d.remote.down = false
	var report reconcile.Report
	resp := d.post(t, "/v1/sync", nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Synced != 3 || report.Failed != 0 {
		t.Errorf("report = %+v, want {3 0}", report)
	}
}

func TestHandleHealth(t *testing.T) {
	d := newTestDaemon(t)

	var body struct {
		Status       string `json:"status"`
		RemoteOnline bool   `json:"remote_online"`
		Pending      int    `json:"pending"`
	}
	d.get(t, "/v1/health", &body)
	if body.Status != "healthy" {
		t.Errorf("status = %q", body.Status)
	}
	if !body.RemoteOnline {
		t.Error("remote_online = false with a reachable remote")
	}
}

func TestCorrelationIDEchoed(t *testing.T) {
	d := newTestDaemon(t)

	req, _ := http.NewRequest(http.MethodGet, d.srv.URL+"/v1/health", nil)
	req.Header.Set(CorrelationIDHeader, "trace-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if got := resp.Header.Get(CorrelationIDHeader); got != "trace-123" {
		t.Errorf("correlation id = %q, want echo of caller's", got)
	}
}
