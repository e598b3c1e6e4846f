package codes

import (
	"context"
	"time"
)

// Tier is the trust classification of a code source. Higher tiers lower the
// bar for notifying users about a code.
type Tier string

const (
	TierOfficial  Tier = "official"
	TierCurated   Tier = "curated"
	TierCommunity Tier = "community"
)

// Mode controls whether the watcher actually scans sources.
type Mode string

const (
	ModeActive  Mode = "active"
	ModePassive Mode = "passive"
)

// RunReason identifies what triggered a watch cycle.
type RunReason string

const (
	ReasonStartup   RunReason = "startup"
	ReasonScheduled RunReason = "scheduled"
	ReasonManual    RunReason = "manual"
)

// Candidate is a code string extracted from one source fetch, not yet
// deduplicated against the registry.
type Candidate struct {
	Code         string
	SourceID     string
	SourceName   string
	SourceURL    string
	SourceTier   Tier
	PublishedAt  time.Time
	ReferenceURL string
}

// TrackedCodeSource records one source's sightings of a tracked code.
type TrackedCodeSource struct {
	SourceID     string    `json:"sourceId"`
	SourceName   string    `json:"sourceName"`
	SourceURL    string    `json:"sourceUrl"`
	SourceTier   Tier      `json:"sourceTier"`
	FirstSeenAt  time.Time `json:"firstSeenAt"`
	LastSeenAt   time.Time `json:"lastSeenAt"`
	PublishedAt  time.Time `json:"publishedAt,omitzero"`
	ReferenceURL string    `json:"referenceUrl,omitempty"`
}

// TrackedCode is the deduplicated registry record for a code string,
// aggregating all source sightings. A zero FirstNotifiedAt means the code has
// never been notified.
type TrackedCode struct {
	Code            string              `json:"code"`
	FirstSeenAt     time.Time           `json:"firstSeenAt"`
	LastSeenAt      time.Time           `json:"lastSeenAt"`
	Sources         []TrackedCodeSource `json:"sources"`
	FirstNotifiedAt time.Time           `json:"firstNotifiedAt,omitzero"`
	LastNotifiedAt  time.Time           `json:"lastNotifiedAt,omitzero"`
}

// SourceState is the per-source scraper bookkeeping: cache validators,
// failure backoff, and the rolling hourly request window.
type SourceState struct {
	LastCheckedAt      time.Time `json:"lastCheckedAt,omitzero"`
	LastSuccessAt      time.Time `json:"lastSuccessAt,omitzero"`
	LastEtag           string    `json:"lastEtag,omitempty"`
	LastModified       string    `json:"lastModified,omitempty"`
	LastContentHash    string    `json:"lastContentHash,omitempty"`
	LastStatus         int       `json:"lastStatus,omitempty"`
	LastError          string    `json:"lastError,omitempty"`
	FailureCount       int       `json:"failureCount,omitempty"`
	BackoffUntil       time.Time `json:"backoffUntil,omitzero"`
	WindowStartedAt    time.Time `json:"windowStartedAt,omitzero"`
	WindowRequestCount int       `json:"windowRequestCount,omitempty"`
}

// WatchState is the persisted aggregate: schema version, per-source scraper
// state, and the tracked code registry keyed by normalized code.
type WatchState struct {
	Version     int                     `json:"version"`
	SourceState map[string]*SourceState `json:"sourceState"`
	Codes       map[string]*TrackedCode `json:"codes"`
}

// NewWatchState returns an empty state at the current schema version.
func NewWatchState() *WatchState {
	return &WatchState{
		Version:     1,
		SourceState: map[string]*SourceState{},
		Codes:       map[string]*TrackedCode{},
	}
}

// FetchContext carries the prior source state into an adapter fetch so it can
// issue conditional requests.
type FetchContext struct {
	State   SourceState
	Timeout time.Duration
}

// FetchResult reports one adapter fetch. NotModified is set both for HTTP 304
// responses and for 200 responses whose body hash matches the stored hash.
type FetchResult struct {
	FetchedURL   string
	HTTPStatus   int
	NotModified  bool
	ETag         string
	LastModified string
	ContentHash  string
	Candidates   []Candidate
}

// SourceMeta describes a source adapter and its politeness limits. The
// orchestrator, not the adapter, enforces MinInterval and MaxRequestsPerHour.
type SourceMeta struct {
	ID                 string
	Name               string
	URL                string
	Tier               Tier
	MinInterval        time.Duration
	MaxRequestsPerHour int
}

// Source is implemented by each site adapter.
type Source interface {
	Meta() SourceMeta
	Fetch(ctx context.Context, fc FetchContext) (*FetchResult, error)
}

// SkippedSource attributes a skip or failure to a source with a
// human-readable reason. SourceID "all" marks a whole-cycle skip.
type SkippedSource struct {
	SourceID string `json:"sourceId"`
	Reason   string `json:"reason"`
}

// RunSummary describes one watch cycle.
type RunSummary struct {
	Mode           Mode            `json:"mode"`
	Reason         RunReason       `json:"reason"`
	StartedAt      time.Time       `json:"startedAt"`
	FinishedAt     time.Time       `json:"finishedAt"`
	CheckedSources []string        `json:"checkedSources"`
	SkippedSources []SkippedSource `json:"skippedSources"`
	NewCodes       []*TrackedCode  `json:"newCodes"`
	NotifiedCodes  []*TrackedCode  `json:"notifiedCodes"`
	TotalKnown     int             `json:"totalKnown"`
}
