package store

import (
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
)

const appStateFile = "state.json"

// AppState is the small persisted service state outside the code registry:
// the last successful attendance day per profile, keyed by profile ID.
type AppState struct {
	LastSuccessByProfile map[string]string `json:"lastSuccessByProfile"`
}

// NewAppState returns an empty app state.
func NewAppState() *AppState {
	return &AppState{LastSuccessByProfile: map[string]string{}}
}

// StateStore persists AppState as JSON under the data directory. Like
// CodeStore, loads degrade to defaults instead of failing.
type StateStore struct {
	dataPath  string
	statePath string
	logger    *slog.Logger
}

func NewStateStore(dataPath string, logger *slog.Logger) *StateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateStore{
		dataPath:  dataPath,
		statePath: filepath.Join(dataPath, appStateFile),
		logger:    logger,
	}
}

func (s *StateStore) Load() *AppState {
	raw, err := os.ReadFile(s.statePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("state load failed; using defaults", "path", s.statePath, "error", err.Error())
		}
		return NewAppState()
	}
	var state AppState
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Warn("state parse failed; using defaults", "path", s.statePath, "error", err.Error())
		return NewAppState()
	}
	if state.LastSuccessByProfile == nil {
		state.LastSuccessByProfile = map[string]string{}
	}
	return &state
}

func (s *StateStore) Save(state *AppState) error {
	if err := os.MkdirAll(s.dataPath, 0o755); err != nil {
		return err
	}
	if state.LastSuccessByProfile == nil {
		state.LastSuccessByProfile = map[string]string{}
	}
	raw, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.statePath, raw, 0o644); err != nil {
		s.logger.Error("state save failed", "path", s.statePath, "error", err.Error())
		return err
	}
	s.logger.Debug("state saved", "path", s.statePath)
	return nil
}
