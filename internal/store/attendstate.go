package store

// AttendState binds an in-memory AppState to its StateStore so the
// attendance service can mark successes and persist them without knowing
// about files.
type AttendState struct {
	state *AppState
	store *StateStore
}

func NewAttendState(state *AppState, store *StateStore) *AttendState {
	if state == nil {
		state = NewAppState()
	}
	return &AttendState{state: state, store: store}
}

// LastSuccess returns the last successful attendance day for a profile, ""
// when the profile has never succeeded.
func (a *AttendState) LastSuccess(profileID string) string {
	return a.state.LastSuccessByProfile[profileID]
}

func (a *AttendState) MarkSuccess(profileID, day string) {
	a.state.LastSuccessByProfile[profileID] = day
}

func (a *AttendState) Save() error {
	return a.store.Save(a.state)
}
