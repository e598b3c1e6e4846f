package codesource

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/yumio/endwatch/pkg/codes"
)

const (
	userAgent    = "endwatch code-watch/0.1"
	acceptHeader = "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8,*/*;q=0.7"

	errorBodyPreview = 180
)

// Extractor pulls candidate codes out of raw page markup. It is the only
// site-specific part of an adapter; everything else (conditional requests,
// hashing, rate metadata) is shared.
type Extractor func(text string, meta codes.SourceMeta) []codes.Candidate

// Adapter is a code source built from metadata plus an extractor. It issues
// conditional GETs using the validators from the previous cycle and hashes
// response bodies to catch servers that ignore conditional headers.
type Adapter struct {
	meta    codes.SourceMeta
	extract Extractor
	client  *http.Client
	logger  *slog.Logger
}

func newAdapter(meta codes.SourceMeta, extract Extractor) *Adapter {
	// Timeout comes from the per-fetch context, set by the orchestrator.
	return &Adapter{
		meta:    meta,
		extract: extract,
		client:  &http.Client{},
		logger:  slog.Default(),
	}
}

func (a *Adapter) Meta() codes.SourceMeta { return a.meta }

func (a *Adapter) Fetch(ctx context.Context, fc codes.FetchContext) (*codes.FetchResult, error) {
	a.logger.Debug("code source fetch request", "sourceId", a.meta.ID, "url", a.meta.URL, "timeout", fc.Timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.meta.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request %s: %w", a.meta.ID, err)
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if fc.State.LastEtag != "" {
		req.Header.Set("If-None-Match", fc.State.LastEtag)
	}
	if fc.State.LastModified != "" {
		req.Header.Set("If-Modified-Since", fc.State.LastModified)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", a.meta.ID, err)
	}
	defer resp.Body.Close()

	etag := resp.Header.Get("Etag")
	lastModified := resp.Header.Get("Last-Modified")
	fetchedURL := a.meta.URL
	if resp.Request != nil && resp.Request.URL != nil {
		fetchedURL = resp.Request.URL.String()
	}

	if resp.StatusCode == http.StatusNotModified {
		result := &codes.FetchResult{
			FetchedURL:   fetchedURL,
			HTTPStatus:   resp.StatusCode,
			NotModified:  true,
			ETag:         fc.State.LastEtag,
			LastModified: fc.State.LastModified,
			ContentHash:  fc.State.LastContentHash,
			Candidates:   nil,
		}
		if etag != "" {
			result.ETag = etag
		}
		if lastModified != "" {
			result.LastModified = lastModified
		}
		return result, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body %s: %w", a.meta.ID, err)
	}
	sum := sha256.Sum256(body)
	contentHash := hex.EncodeToString(sum[:])

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview := string(body)
		if len(preview) > errorBodyPreview {
			preview = preview[:errorBodyPreview] + "..."
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, preview)
	}

	result := &codes.FetchResult{
		FetchedURL:   fetchedURL,
		HTTPStatus:   resp.StatusCode,
		ETag:         etag,
		LastModified: lastModified,
		ContentHash:  contentHash,
	}

	// Some servers return 200 with an unchanged body despite conditional
	// headers; the stored hash catches that.
	if fc.State.LastContentHash != "" && fc.State.LastContentHash == contentHash {
		result.NotModified = true
		return result, nil
	}

	result.Candidates = a.extract(string(body), a.meta)
	a.logger.Debug("code source fetch response",
		"sourceId", a.meta.ID,
		"status", resp.StatusCode,
		"candidates", len(result.Candidates),
	)
	return result, nil
}
