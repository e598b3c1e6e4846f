// Package codesource implements the site adapters the code watcher polls.
// Each adapter pairs shared conditional-GET fetching with a site-specific
// extractor that turns page markup into code candidates.
package codesource

import (
	"regexp"
	"time"

	"github.com/yumio/endwatch/pkg/codes"
)

// All returns every known source adapter, in notification priority order.
func All() []codes.Source {
	return []codes.Source{
		Game8(),
		Destructoid(),
		PocketTactics(),
	}
}

// IDs returns the identifiers of every known source.
func IDs() []string {
	all := All()
	ids := make([]string, 0, len(all))
	for _, src := range all {
		ids = append(ids, src.Meta().ID)
	}
	return ids
}

// Resolve maps source identifiers to adapters, preserving request order.
// Unknown identifiers are returned separately so callers can warn without
// aborting the whole watch.
func Resolve(sourceIDs []string) (sources []codes.Source, unknown []string) {
	byID := map[string]codes.Source{}
	for _, src := range All() {
		byID[src.Meta().ID] = src
	}
	for _, id := range sourceIDs {
		src, ok := byID[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		sources = append(sources, src)
	}
	return sources, unknown
}

// codeSet accumulates normalized, validated codes in first-seen order.
type codeSet struct {
	seen  map[string]bool
	order []string
}

func newCodeSet() *codeSet {
	return &codeSet{seen: map[string]bool{}}
}

// add normalizes raw and keeps it if it passes the strong-match shape check.
// Every extractor works from delimited contexts, so the strong rules apply.
func (s *codeSet) add(raw string) {
	token := codes.NormalizeCode(raw)
	if !codes.LooksLikeCode(token, true) {
		return
	}
	if s.seen[token] {
		return
	}
	s.seen[token] = true
	s.order = append(s.order, token)
}

func (s *codeSet) candidates(meta codes.SourceMeta, publishedAt time.Time) []codes.Candidate {
	out := make([]codes.Candidate, 0, len(s.order))
	for _, code := range s.order {
		out = append(out, codes.Candidate{
			Code:         code,
			SourceID:     meta.ID,
			SourceName:   meta.Name,
			SourceURL:    meta.URL,
			SourceTier:   meta.Tier,
			PublishedAt:  publishedAt,
			ReferenceURL: meta.URL,
		})
	}
	return out
}

// scopeSection cuts text down to the region between the first match of start
// and the following match of end. Missing markers fall back to the full text
// (no start) or everything after start (no end).
func scopeSection(text string, start, end *regexp.Regexp) string {
	loc := start.FindStringIndex(text)
	if loc == nil {
		return text
	}
	scoped := text[loc[0]:]
	if endLoc := end.FindStringIndex(scoped); endLoc != nil && endLoc[0] > 0 {
		scoped = scoped[:endLoc[0]]
	}
	return scoped
}
