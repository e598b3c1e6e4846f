package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/yumio/endwatch/internal/history"
	"github.com/yumio/endwatch/pkg/codes"
)

type nopStore struct{ state *codes.WatchState }

func (s *nopStore) Load() *codes.WatchState { return s.state }

func (s *nopStore) Save(*codes.WatchState) error { return nil }

func (s *nopStore) AcquireLease(holder string, ttl time.Duration) bool { return true }

func (s *nopStore) ReleaseLease(holder string) {}

func testServer(t *testing.T, withWatcher, withHistory bool) *Server {
	t.Helper()

	var watcher *codes.Watcher
	if withWatcher {
		state := codes.NewWatchState()
		now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
		state.Codes["ENDFIELD2026"] = &codes.TrackedCode{
			Code:        "ENDFIELD2026",
			FirstSeenAt: now,
			LastSeenAt:  now,
			Sources:     []codes.TrackedCodeSource{{SourceID: "game8", SourceTier: codes.TierCurated}},
		}
		watcher = codes.NewWatcher(codes.Config{Enabled: true, Mode: codes.ModeActive},
			nil, &nopStore{state: state}, state, nil, nil, nil)
	}

	var hist *history.Log
	if withHistory {
		var err error
		hist, err = history.Open(filepath.Join(t.TempDir(), "history.db"))
		if err != nil {
			t.Fatalf("open history: %v", err)
		}
		t.Cleanup(func() { hist.Close() })
	}

	return New(watcher, hist, 8080)
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, false, false)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestHandleCodes(t *testing.T) {
	s := testServer(t, true, false)
	rec := httptest.NewRecorder()
	s.handleCodes(rec, httptest.NewRequest(http.MethodGet, "/api/v1/codes?limit=5", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Data  []*codes.TrackedCode `json:"data"`
		Count int                  `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 || body.Data[0].Code != "ENDFIELD2026" {
		t.Errorf("body = %+v", body)
	}
}

func TestHandleCodesFilters(t *testing.T) {
	s := testServer(t, true, false)

	rec := httptest.NewRecorder()
	s.handleCodes(rec, httptest.NewRequest(http.MethodGet, "/api/v1/codes?notified=true", nil))
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 0 {
		t.Errorf("notified filter returned %d codes", body.Count)
	}

	rec = httptest.NewRecorder()
	s.handleCodes(rec, httptest.NewRequest(http.MethodGet, "/api/v1/codes?source=destructoid", nil))
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 0 {
		t.Errorf("source filter returned %d codes", body.Count)
	}
}

func TestHandleCodesUnavailable(t *testing.T) {
	s := testServer(t, false, false)
	rec := httptest.NewRecorder()
	s.handleCodes(rec, httptest.NewRequest(http.MethodGet, "/api/v1/codes", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHandleCodesMethodNotAllowed(t *testing.T) {
	s := testServer(t, true, false)
	rec := httptest.NewRecorder()
	s.handleCodes(rec, httptest.NewRequest(http.MethodPost, "/api/v1/codes", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleWatch(t *testing.T) {
	s := testServer(t, true, true)
	rec := httptest.NewRecorder()
	s.handleWatch(rec, httptest.NewRequest(http.MethodPost, "/api/v1/watch", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var summary codes.RunSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatal(err)
	}
	if summary.Reason != codes.ReasonManual {
		t.Errorf("reason = %q", summary.Reason)
	}

	// The manual run lands in the watch history.
	entries, err := s.history.ListWatch(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].RunReason != "manual" {
		t.Errorf("history entries = %+v", entries)
	}
}

func TestHandleWatchRequiresPost(t *testing.T) {
	s := testServer(t, true, false)
	rec := httptest.NewRecorder()
	s.handleWatch(rec, httptest.NewRequest(http.MethodGet, "/api/v1/watch", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleAttendanceHistory(t *testing.T) {
	s := testServer(t, false, true)
	if err := s.history.RecordAttendance(context.Background(), &history.AttendanceEntry{
		ProfileID: "main", RunReason: "scheduled", Outcome: "ok",
	}); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	s.handleAttendanceHistory(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history/attendance?profile=main", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1", body.Count)
	}
}

func TestHistoryEndpointsUnavailable(t *testing.T) {
	s := testServer(t, false, false)

	rec := httptest.NewRecorder()
	s.handleAttendanceHistory(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history/attendance", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("attendance status = %d, want 503", rec.Code)
	}

	rec = httptest.NewRecorder()
	s.handleWatchHistory(rec, httptest.NewRequest(http.MethodGet, "/api/v1/history/watch", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("watch status = %d, want 503", rec.Code)
	}
}
