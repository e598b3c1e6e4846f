package codes

import (
	"log/slog"
	"sort"
	"strings"
	"time"
)

// Registry is the merge engine over the tracked-code map of a WatchState.
// The registry itself takes no locks; the owning Watcher serializes mutation
// and guards concurrent reads.
type Registry struct {
	state  *WatchState
	logger *slog.Logger
}

// NewRegistry wraps state. The caller should run PruneInvalid once after
// construction and persist if it removed anything.
func NewRegistry(state *WatchState, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{state: state, logger: logger}
}

// MergeResult reports which tracked codes a merge touched and which of them
// were created during this merge.
type MergeResult struct {
	Touched         []*TrackedCode
	NewlyDiscovered []*TrackedCode
}

// Merge folds candidates into the registry. Repeat sightings of the same
// (code, sourceId) pair update the existing source record in place; a new
// sourceId appends. lastSeenAt always advances to now.
func (r *Registry) Merge(candidates []Candidate, now time.Time) MergeResult {
	var result MergeResult
	touchedSeen := map[string]bool{}

	for _, candidate := range candidates {
		normalized := NormalizeCode(candidate.Code)
		if normalized == "" {
			continue
		}
		if !IsTrackableCode(normalized) {
			continue
		}

		tracked, ok := r.state.Codes[normalized]
		isNew := !ok
		if isNew {
			tracked = &TrackedCode{
				Code:        normalized,
				FirstSeenAt: now,
				LastSeenAt:  now,
				Sources:     []TrackedCodeSource{},
			}
			r.state.Codes[normalized] = tracked
		}

		idx := -1
		for i := range tracked.Sources {
			if tracked.Sources[i].SourceID == candidate.SourceID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			mergeSourceInPlace(&tracked.Sources[idx], candidate, now)
		} else {
			tracked.Sources = append(tracked.Sources, newTrackedSource(candidate, now))
		}

		tracked.LastSeenAt = now
		if !touchedSeen[tracked.Code] {
			touchedSeen[tracked.Code] = true
			result.Touched = append(result.Touched, tracked)
		}
		if isNew {
			result.NewlyDiscovered = append(result.NewlyDiscovered, tracked)
		}
	}

	return result
}

func newTrackedSource(candidate Candidate, now time.Time) TrackedCodeSource {
	return TrackedCodeSource{
		SourceID:     candidate.SourceID,
		SourceName:   candidate.SourceName,
		SourceURL:    candidate.SourceURL,
		SourceTier:   candidate.SourceTier,
		FirstSeenAt:  now,
		LastSeenAt:   now,
		PublishedAt:  candidate.PublishedAt,
		ReferenceURL: candidate.ReferenceURL,
	}
}

func mergeSourceInPlace(existing *TrackedCodeSource, candidate Candidate, now time.Time) {
	existing.SourceName = candidate.SourceName
	existing.SourceURL = candidate.SourceURL
	existing.SourceTier = candidate.SourceTier
	existing.LastSeenAt = now
	if existing.PublishedAt.IsZero() {
		existing.PublishedAt = candidate.PublishedAt
	}
	if existing.ReferenceURL == "" {
		existing.ReferenceURL = candidate.ReferenceURL
	}
}

// Notifiable reports whether a code has met the confidence threshold: any
// official source, any curated source, or sightings from two or more distinct
// sources. Community-only single-source codes never qualify.
func Notifiable(code *TrackedCode) bool {
	for i := range code.Sources {
		if code.Sources[i].SourceTier == TierOfficial {
			return true
		}
	}
	for i := range code.Sources {
		if code.Sources[i].SourceTier == TierCurated {
			return true
		}
	}
	return len(code.Sources) >= 2
}

// PruneInvalid removes tracked codes that no longer pass the trackable
// filter, covering denylist growth between versions. Returns how many were
// removed.
func (r *Registry) PruneInvalid() int {
	removed := 0
	for key, tracked := range r.state.Codes {
		if tracked != nil && IsTrackableCode(tracked.Code) && IsTrackableCode(key) {
			continue
		}
		delete(r.state.Codes, key)
		removed++
	}
	if removed > 0 {
		r.logger.Warn("removed invalid tracked codes from state", "removed", removed)
	}
	return removed
}

// ListLatest returns up to limit trackable codes sorted by most recent
// sighting, tie-broken lexicographically. notifiedOnly restricts the result
// to codes that have ever been notified; sourceID restricts to codes seen by
// one source.
func (r *Registry) ListLatest(limit int, notifiedOnly bool, sourceID string) []*TrackedCode {
	sourceID = strings.TrimSpace(sourceID)
	var all []*TrackedCode
	for _, tracked := range r.state.Codes {
		if tracked == nil || !IsTrackableCode(tracked.Code) {
			continue
		}
		if notifiedOnly && tracked.FirstNotifiedAt.IsZero() {
			continue
		}
		if sourceID != "" && !seenBySource(tracked, sourceID) {
			continue
		}
		all = append(all, tracked)
	}

	sort.Slice(all, func(i, j int) bool {
		return moreRecent(all[i], all[j])
	})

	if limit < 1 {
		limit = 1
	}
	if len(all) > limit {
		all = all[:limit]
	}
	return all
}

func seenBySource(code *TrackedCode, sourceID string) bool {
	for i := range code.Sources {
		if code.Sources[i].SourceID == sourceID {
			return true
		}
	}
	return false
}

// moreRecent orders by lastSeenAt descending, then code ascending.
func moreRecent(left, right *TrackedCode) bool {
	if !left.LastSeenAt.Equal(right.LastSeenAt) {
		return left.LastSeenAt.After(right.LastSeenAt)
	}
	return left.Code < right.Code
}

func sortMostRecentDesc(codes []*TrackedCode) {
	sort.Slice(codes, func(i, j int) bool {
		return moreRecent(codes[i], codes[j])
	})
}
