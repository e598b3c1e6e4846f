package codes

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yumio/endwatch/pkg/alert"
)

const (
	minLeaseTTL   = 30 * time.Second
	backoffBase   = 5 * time.Minute
	maxBackoff    = time.Hour
	requestWindow = time.Hour
)

// Store is the persistence boundary the watcher drives. Load never fails (a
// broken state file degrades to an empty state); Save propagates failures
// because losing durability is not recoverable. AcquireLease returns false on
// contention, which is a concurrency-control no-op, not an error.
type Store interface {
	Load() *WatchState
	Save(state *WatchState) error
	AcquireLease(holder string, ttl time.Duration) bool
	ReleaseLease(holder string)
}

// PayloadBuilder turns freshly notified codes into an outbound notification
// payload. Injected so the watcher stays ignorant of message formatting.
type PayloadBuilder func(codes []*TrackedCode, reason RunReason, timestamp time.Time) alert.Payload

// Config is the service-level watcher configuration.
type Config struct {
	Enabled            bool
	Mode               Mode
	Timeout            time.Duration
	LeaseTTL           time.Duration
	MaxRequestsPerHour int
}

// Watcher drives watch cycles: per-source budgets and backoff, adapter
// fetches, candidate merging, persistence, and discovery notification.
//
// Run is serialized by the inFlight guard; mu additionally guards the tracked
// code map so ListLatest can be called from HTTP handlers while the scheduler
// runs a cycle.
type Watcher struct {
	cfg          Config
	sources      []Source
	store        Store
	state        *WatchState
	registry     *Registry
	notifier     alert.Notifier
	buildPayload PayloadBuilder
	leaseHolder  string
	logger       *slog.Logger

	mu          sync.RWMutex
	pendingSave bool
	inFlight    atomic.Bool
}

// NewWatcher builds a watcher over a pre-loaded state. Construction prunes
// invalid tracked codes; the removal is persisted on the next cycle even if
// that cycle fetches nothing.
func NewWatcher(cfg Config, sources []Source, st Store, state *WatchState, notifier alert.Notifier, buildPayload PayloadBuilder, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LeaseTTL < minLeaseTTL {
		cfg.LeaseTTL = minLeaseTTL
	}
	if cfg.MaxRequestsPerHour < 1 {
		cfg.MaxRequestsPerHour = 1
	}
	if state == nil {
		state = NewWatchState()
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "endwatch"
	}

	registry := NewRegistry(state, logger)
	w := &Watcher{
		cfg:          cfg,
		sources:      sources,
		store:        st,
		state:        state,
		registry:     registry,
		notifier:     notifier,
		buildPayload: buildPayload,
		leaseHolder:  fmt.Sprintf("%s-%d", hostname, os.Getpid()),
		logger:       logger,
	}
	w.pendingSave = registry.PruneInvalid() > 0
	return w
}

// Enabled reports whether the watcher has anything to do.
func (w *Watcher) Enabled() bool { return w.cfg.Enabled }

// ListLatest exposes the registry listing for bot commands and the HTTP API.
// It returns copies, so callers can hold the result while a cycle mutates the
// underlying state.
func (w *Watcher) ListLatest(limit int, notifiedOnly bool, sourceID string) []*TrackedCode {
	w.mu.RLock()
	defer w.mu.RUnlock()

	tracked := w.registry.ListLatest(limit, notifiedOnly, sourceID)
	out := make([]*TrackedCode, len(tracked))
	for i, code := range tracked {
		clone := *code
		clone.Sources = append([]TrackedCodeSource(nil), code.Sources...)
		out[i] = &clone
	}
	return out
}

// Run executes one watch cycle. Lease contention, passive mode, and an
// in-flight run all yield an all-skipped summary rather than an error; only a
// failed state save is fatal.
func (w *Watcher) Run(ctx context.Context, reason RunReason) (*RunSummary, error) {
	startedAt := time.Now().UTC()
	w.mu.RLock()
	totalKnown := len(w.state.Codes)
	w.mu.RUnlock()
	summary := &RunSummary{
		Mode:           w.cfg.Mode,
		Reason:         reason,
		StartedAt:      startedAt,
		FinishedAt:     startedAt,
		CheckedSources: []string{},
		SkippedSources: []SkippedSource{},
		NewCodes:       []*TrackedCode{},
		NotifiedCodes:  []*TrackedCode{},
		TotalKnown:     totalKnown,
	}

	if !w.cfg.Enabled {
		return w.skipAll(summary, "disabled"), nil
	}
	if w.cfg.Mode != ModeActive {
		return w.skipAll(summary, "passive mode"), nil
	}
	if !w.inFlight.CompareAndSwap(false, true) {
		return w.skipAll(summary, "run in progress"), nil
	}
	defer w.inFlight.Store(false)

	if !w.store.AcquireLease(w.leaseHolder, w.cfg.LeaseTTL) {
		return w.skipAll(summary, "lease held by another active instance"), nil
	}
	defer w.store.ReleaseLease(w.leaseHolder)

	changed := false
	var touched, fresh []*TrackedCode
	touchedSeen := map[string]bool{}
	freshSeen := map[string]bool{}

	for _, src := range w.sources {
		meta := src.Meta()
		now := time.Now().UTC()
		st := w.ensureSourceState(meta.ID)

		if skip := skipReason(meta, st, w.cfg.MaxRequestsPerHour, now); skip != "" {
			summary.SkippedSources = append(summary.SkippedSources, SkippedSource{SourceID: meta.ID, Reason: skip})
			continue
		}

		bumpRequestWindow(st, now)
		st.LastCheckedAt = now
		changed = true
		summary.CheckedSources = append(summary.CheckedSources, meta.ID)

		result, err := w.fetchSource(ctx, src)
		if err != nil {
			st.FailureCount++
			delay := backoffDelay(st.FailureCount)
			st.LastError = err.Error()
			st.BackoffUntil = time.Now().UTC().Add(delay)
			w.logger.Warn("code source fetch failed",
				"sourceId", meta.ID,
				"error", err.Error(),
				"failureCount", st.FailureCount,
				"backoff", delay,
			)
			summary.SkippedSources = append(summary.SkippedSources, SkippedSource{SourceID: meta.ID, Reason: "error: " + err.Error()})
			continue
		}

		st.LastStatus = result.HTTPStatus
		st.LastError = ""
		st.FailureCount = 0
		st.BackoffUntil = time.Time{}
		st.LastSuccessAt = now
		if result.ETag != "" {
			st.LastEtag = result.ETag
		}
		if result.LastModified != "" {
			st.LastModified = result.LastModified
		}
		if result.ContentHash != "" {
			st.LastContentHash = result.ContentHash
		}

		if !result.NotModified && len(result.Candidates) > 0 {
			w.mu.Lock()
			merged := w.registry.Merge(result.Candidates, now)
			w.mu.Unlock()
			for _, code := range merged.Touched {
				if !touchedSeen[code.Code] {
					touchedSeen[code.Code] = true
					touched = append(touched, code)
				}
			}
			for _, code := range merged.NewlyDiscovered {
				if !freshSeen[code.Code] {
					freshSeen[code.Code] = true
					fresh = append(fresh, code)
				}
			}
		}
	}

	if err := w.commit(summary, touched, changed); err != nil {
		return summary, err
	}

	sortMostRecentDesc(fresh)
	summary.NewCodes = fresh
	summary.FinishedAt = time.Now().UTC()

	w.sendNotification(ctx, summary, reason, startedAt)

	w.logger.Info("code watch run completed",
		"reason", reason,
		"checkedSources", len(summary.CheckedSources),
		"skippedSources", len(summary.SkippedSources),
		"newCodes", len(summary.NewCodes),
		"notifiedCodes", len(summary.NotifiedCodes),
		"totalKnown", summary.TotalKnown,
	)
	return summary, nil
}

// commit stamps newly notifiable codes and persists the state under the write
// lock. The first transition into notifiable state stamps the code
// permanently; already-notified codes are never re-notified.
func (w *Watcher) commit(summary *RunSummary, touched []*TrackedCode, changed bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	notifiedAt := time.Now().UTC()
	for _, code := range touched {
		if !code.FirstNotifiedAt.IsZero() {
			continue
		}
		if !Notifiable(code) {
			continue
		}
		code.FirstNotifiedAt = notifiedAt
		code.LastNotifiedAt = notifiedAt
		summary.NotifiedCodes = append(summary.NotifiedCodes, code)
		changed = true
	}

	if changed || w.pendingSave {
		if err := w.store.Save(w.state); err != nil {
			return fmt.Errorf("save code watch state: %w", err)
		}
		w.pendingSave = false
	}

	summary.TotalKnown = len(w.state.Codes)
	return nil
}

func (w *Watcher) skipAll(summary *RunSummary, reason string) *RunSummary {
	summary.SkippedSources = append(summary.SkippedSources, SkippedSource{SourceID: "all", Reason: reason})
	summary.FinishedAt = time.Now().UTC()
	return summary
}

func (w *Watcher) ensureSourceState(sourceID string) *SourceState {
	st, ok := w.state.SourceState[sourceID]
	if !ok || st == nil {
		st = &SourceState{}
		w.state.SourceState[sourceID] = st
	}
	return st
}

func (w *Watcher) fetchSource(ctx context.Context, src Source) (*FetchResult, error) {
	fetchCtx := ctx
	if w.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, w.cfg.Timeout)
		defer cancel()
	}
	return src.Fetch(fetchCtx, FetchContext{
		State:   *w.state.SourceState[src.Meta().ID],
		Timeout: w.cfg.Timeout,
	})
}

// skipReason returns the first applicable skip reason (backoff > interval >
// budget), or "" when the source should be checked.
func skipReason(meta SourceMeta, st *SourceState, serviceMaxPerHour int, now time.Time) string {
	if !st.BackoffUntil.IsZero() && st.BackoffUntil.After(now) {
		return "backoff active"
	}
	if !st.LastCheckedAt.IsZero() && now.Sub(st.LastCheckedAt) < meta.MinInterval {
		return "min interval not reached"
	}

	budget := meta.MaxRequestsPerHour
	if serviceMaxPerHour < budget {
		budget = serviceMaxPerHour
	}
	if st.WindowStartedAt.IsZero() || now.Sub(st.WindowStartedAt) >= requestWindow {
		return ""
	}
	if st.WindowRequestCount >= budget {
		return "hourly request budget reached"
	}
	return ""
}

// bumpRequestWindow counts a request against the rolling hour window,
// restarting the window if more than an hour has elapsed since it opened.
func bumpRequestWindow(st *SourceState, now time.Time) {
	if st.WindowStartedAt.IsZero() || now.Sub(st.WindowStartedAt) >= requestWindow {
		st.WindowStartedAt = now
		st.WindowRequestCount = 1
		return
	}
	st.WindowRequestCount++
}

// backoffDelay grows 5m, 10m, 20m, ... doubling per consecutive failure and
// capping at one hour. The base and cap are tuned to the watched sites'
// politeness expectations; keep them as is.
func backoffDelay(failureCount int) time.Duration {
	exp := failureCount - 1
	if exp < 0 {
		exp = 0
	}
	if exp > 6 {
		exp = 6
	}
	delay := backoffBase << uint(exp)
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

func (w *Watcher) sendNotification(ctx context.Context, summary *RunSummary, reason RunReason, timestamp time.Time) {
	if reason == ReasonManual {
		return
	}
	if w.notifier == nil || w.buildPayload == nil {
		return
	}
	if len(summary.NotifiedCodes) == 0 {
		return
	}

	payload := w.buildPayload(summary.NotifiedCodes, reason, timestamp)
	if err := w.notifier.Send(ctx, payload); err != nil {
		codesList := make([]string, 0, len(summary.NotifiedCodes))
		for _, code := range summary.NotifiedCodes {
			codesList = append(codesList, code.Code)
		}
		w.logger.Warn("code notification failed", "codes", codesList, "error", err.Error())
	}
}
