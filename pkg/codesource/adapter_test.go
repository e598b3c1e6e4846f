package codesource

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yumio/endwatch/pkg/codes"
)

func testAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &Adapter{
		meta: codes.SourceMeta{
			ID:   "test_source",
			Name: "Test Source",
			URL:  srv.URL,
			Tier: codes.TierCurated,
		},
		extract: func(text string, meta codes.SourceMeta) []codes.Candidate {
			if !strings.Contains(text, "ENDFIELD2026") {
				return nil
			}
			return []codes.Candidate{{Code: "ENDFIELD2026", SourceID: meta.ID}}
		},
		client: srv.Client(),
		logger: slog.Default(),
	}
}

func TestFetchSendsConditionalHeaders(t *testing.T) {
	var gotEtag, gotModified string
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotEtag = r.Header.Get("If-None-Match")
		gotModified = r.Header.Get("If-Modified-Since")
		w.Header().Set("Etag", `"v2"`)
		w.Write([]byte("page with ENDFIELD2026"))
	})

	result, err := adapter.Fetch(context.Background(), codes.FetchContext{
		State: codes.SourceState{
			LastEtag:     `"v1"`,
			LastModified: "Mon, 02 Feb 2026 00:00:00 GMT",
		},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if gotEtag != `"v1"` || gotModified != "Mon, 02 Feb 2026 00:00:00 GMT" {
		t.Errorf("conditional headers = %q / %q", gotEtag, gotModified)
	}
	if result.NotModified {
		t.Error("fresh body reported as not modified")
	}
	if result.ETag != `"v2"` {
		t.Errorf("ETag = %q, want %q", result.ETag, `"v2"`)
	}
	if result.ContentHash == "" {
		t.Error("content hash missing")
	}
	if len(result.Candidates) != 1 || result.Candidates[0].Code != "ENDFIELD2026" {
		t.Errorf("candidates = %+v", result.Candidates)
	}
}

func TestFetchNotModifiedKeepsStoredValidators(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	})

	result, err := adapter.Fetch(context.Background(), codes.FetchContext{
		State: codes.SourceState{
			LastEtag:        `"v1"`,
			LastContentHash: "abc123",
		},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !result.NotModified {
		t.Fatal("304 not reported as not modified")
	}
	if result.ETag != `"v1"` || result.ContentHash != "abc123" {
		t.Errorf("stored validators lost: etag=%q hash=%q", result.ETag, result.ContentHash)
	}
	if len(result.Candidates) != 0 {
		t.Errorf("304 produced candidates: %+v", result.Candidates)
	}
}

func TestFetchHashDedupOn200(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page with ENDFIELD2026"))
	})

	first, err := adapter.Fetch(context.Background(), codes.FetchContext{})
	if err != nil {
		t.Fatalf("first Fetch: %v", err)
	}
	if first.NotModified || len(first.Candidates) != 1 {
		t.Fatalf("first fetch = %+v", first)
	}

	second, err := adapter.Fetch(context.Background(), codes.FetchContext{
		State: codes.SourceState{LastContentHash: first.ContentHash},
	})
	if err != nil {
		t.Fatalf("second Fetch: %v", err)
	}
	if !second.NotModified {
		t.Error("unchanged body not deduplicated by hash")
	}
	if len(second.Candidates) != 0 {
		t.Errorf("deduplicated fetch produced candidates: %+v", second.Candidates)
	}
}

func TestFetchHTTPErrorIncludesPreview(t *testing.T) {
	adapter := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(strings.Repeat("x", 400)))
	})

	_, err := adapter.Fetch(context.Background(), codes.FetchContext{})
	if err == nil {
		t.Fatal("503 did not error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "HTTP 503: ") {
		t.Errorf("error = %q", msg)
	}
	if !strings.HasSuffix(msg, "...") {
		t.Errorf("long body not truncated: %q", msg)
	}
	if len(msg) > len("HTTP 503: ")+errorBodyPreview+3 {
		t.Errorf("preview too long: %d chars", len(msg))
	}
}
