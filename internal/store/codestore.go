package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/yumio/endwatch/pkg/codes"
)

const (
	codeStateFile = "codes.json"
	codeLockFile  = "code-watch.lock"
)

// CodeStore persists the code watch state as pretty-printed JSON and arbitrates
// cross-process runs through a lease file. Load is deliberately forgiving: a
// missing or corrupt state file degrades to an empty state so one bad write
// never bricks the watcher.
type CodeStore struct {
	dataPath  string
	statePath string
	lockPath  string
	logger    *slog.Logger
}

// NewCodeStore creates a store rooted at dataPath. The directory is created
// lazily on first save or lease acquisition.
func NewCodeStore(dataPath string, logger *slog.Logger) *CodeStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CodeStore{
		dataPath:  dataPath,
		statePath: filepath.Join(dataPath, codeStateFile),
		lockPath:  filepath.Join(dataPath, codeLockFile),
		logger:    logger,
	}
}

// Load reads the persisted watch state, returning an empty state when the
// file is missing or unreadable.
func (s *CodeStore) Load() *codes.WatchState {
	raw, err := os.ReadFile(s.statePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("code state load failed; using defaults", "path", s.statePath, "error", err.Error())
		}
		return codes.NewWatchState()
	}

	var state codes.WatchState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Warn("code state parse failed; using defaults", "path", s.statePath, "error", err.Error())
		return codes.NewWatchState()
	}

	// Normalize shape so callers never see nil maps.
	if state.Version == 0 {
		state.Version = 1
	}
	if state.SourceState == nil {
		state.SourceState = map[string]*codes.SourceState{}
	}
	if state.Codes == nil {
		state.Codes = map[string]*codes.TrackedCode{}
	}
	s.logger.Debug("code state loaded", "path", s.statePath, "count", len(state.Codes))
	return &state
}

// Save writes the watch state to disk, creating the data directory if needed.
func (s *CodeStore) Save(state *codes.WatchState) error {
	if err := os.MkdirAll(s.dataPath, 0o755); err != nil {
		return err
	}
	if state.Version == 0 {
		state.Version = 1
	}
	if state.SourceState == nil {
		state.SourceState = map[string]*codes.SourceState{}
	}
	if state.Codes == nil {
		state.Codes = map[string]*codes.TrackedCode{}
	}

	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.statePath, raw, 0o644); err != nil {
		s.logger.Error("code state save failed", "path", s.statePath, "error", err.Error())
		return err
	}
	s.logger.Debug("code state saved", "path", s.statePath, "count", len(state.Codes))
	return nil
}

type lease struct {
	Holder     string    `json:"holder"`
	AcquiredAt time.Time `json:"acquiredAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// AcquireLease claims the watch lease for holder. It first tries an exclusive
// create; if the lock file already exists the lease is taken over when it is
// expired, unparseable, or held by the same holder. Returns false when a live
// lease belongs to someone else.
func (s *CodeStore) AcquireLease(holder string, ttl time.Duration) bool {
	if err := os.MkdirAll(s.dataPath, 0o755); err != nil {
		s.logger.Warn("code watch lease dir create failed", "holder", holder, "error", err.Error())
		return false
	}

	now := time.Now().UTC()
	next := lease{Holder: holder, AcquiredAt: now, ExpiresAt: now.Add(ttl)}
	raw, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return false
	}

	f, err := os.OpenFile(s.lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		_, werr := f.Write(raw)
		cerr := f.Close()
		if werr != nil || cerr != nil {
			s.logger.Warn("code watch lease write failed", "holder", holder)
			return false
		}
		s.logger.Debug("code watch lease acquired", "holder", holder, "mode", "create")
		return true
	}
	if !errors.Is(err, os.ErrExist) {
		s.logger.Warn("code watch lease create failed", "holder", holder, "error", err.Error())
		return false
	}

	existing, rerr := s.readLease()
	if rerr == nil && existing.ExpiresAt.After(now) && existing.Holder != holder {
		s.logger.Debug("code watch lease held by another instance",
			"holder", holder,
			"currentHolder", existing.Holder,
			"expiresAt", existing.ExpiresAt,
		)
		return false
	}
	if rerr != nil {
		s.logger.Warn("code watch lease parse failed; replacing lock", "holder", holder, "error", rerr.Error())
	}

	if err := os.WriteFile(s.lockPath, raw, 0o644); err != nil {
		s.logger.Warn("code watch lease replace failed", "holder", holder, "error", err.Error())
		return false
	}
	s.logger.Debug("code watch lease acquired", "holder", holder, "mode", "replace")
	return true
}

// ReleaseLease removes the lock file, but only when holder still owns it.
func (s *CodeStore) ReleaseLease(holder string) {
	existing, err := s.readLease()
	if err != nil {
		return
	}
	if existing.Holder != holder {
		return
	}
	if err := os.Remove(s.lockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("code watch lease release skipped", "holder", holder, "error", err.Error())
		return
	}
	s.logger.Debug("code watch lease released", "holder", holder)
}

func (s *CodeStore) readLease() (lease, error) {
	raw, err := os.ReadFile(s.lockPath)
	if err != nil {
		return lease{}, err
	}
	var l lease
	if err := json.Unmarshal(raw, &l); err != nil {
		return lease{}, err
	}
	if l.Holder == "" {
		return lease{}, errors.New("lease missing holder")
	}
	return l, nil
}
