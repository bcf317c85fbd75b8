// internal/state/session.go
package state

import (
	"maps"
	"sync"

	"github.com/user/rerunctl/internal/types"
)

// SessionState is the record of which recording is bound to the viewer and
// which catalog was last observed. Fields are independent of each other.
type SessionState struct {
	ApplicationID     string            `json:"application_id"`
	SourceDescriptor  string            `json:"source_descriptor"`
	RecordingID       types.RecordingID `json:"recording_id"`
	DatabaseStructure types.DBStructure `json:"database_structure"`
	Collection        string            `json:"collection"`
	Dataset           string            `json:"dataset"`
}

// Group names the independent field groups of a SessionState.
type Group int

const (
	GroupRerunInfo Group = iota + 1
	GroupDBStructure
	GroupSelection
)

// Change is delivered to observers after every mutation: the group that was
// written and the state as it stands after the write.
type Change struct {
	Group Group
	State SessionState
}

// Observer is called after every mutation. Observers run in write order and
// must not call the Store's setters.
type Observer func(Change)

// Store holds one SessionState. It is created empty and only changed through
// its setters; there is no reset, callers overwrite with empty values.
//
// Concurrent writers are not queued by caller: whichever setter runs last
// wins. writeMu spans the assignment and the notification so observers see
// writes in the order they were applied.
type Store struct {
	writeMu   sync.Mutex
	mu        sync.RWMutex
	state     SessionState
	observers []Observer
}

// NewStore returns a Store with every string empty and an empty structure.
func NewStore() *Store {
	return &Store{
		state: SessionState{DatabaseStructure: types.DBStructure{}},
	}
}

// SetRerunInfo binds a recording. All three fields are overwritten together.
func (s *Store) SetRerunInfo(applicationID, sourceDescriptor string, recordingID types.RecordingID) {
	s.write(GroupRerunInfo, func(st *SessionState) {
		st.ApplicationID = applicationID
		st.SourceDescriptor = sourceDescriptor
		st.RecordingID = recordingID
	})
}

// SetDBStructure replaces the catalog snapshot with a shallow copy of
// structure. The previous map is never mutated, so observers can detect the
// change by identity.
func (s *Store) SetDBStructure(structure types.DBStructure) {
	next := make(types.DBStructure, len(structure))
	maps.Copy(next, structure)

	s.write(GroupDBStructure, func(st *SessionState) {
		st.DatabaseStructure = next
	})
}

// SetSelection records the catalog coordinates the user picked.
func (s *Store) SetSelection(collection, dataset string) {
	s.write(GroupSelection, func(st *SessionState) {
		st.Collection = collection
		st.Dataset = dataset
	})
}

func (s *Store) write(group Group, apply func(*SessionState)) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	apply(&s.state)
	change := Change{Group: group, State: s.state}
	observers := s.observers
	s.mu.Unlock()

	for _, fn := range observers {
		fn(change)
	}
}

// replaceFrom overwrites the whole state with what load returns, without
// notifying observers. writeMu is held across load so no setter can land
// between reading the new state and adopting it.
func (s *Store) replaceFrom(load func() (SessionState, error)) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next, err := load()
	if err != nil {
		return err
	}
	if next.DatabaseStructure == nil {
		next.DatabaseStructure = types.DBStructure{}
	}
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
	return nil
}

// Snapshot returns the current state. DatabaseStructure is shared with the
// store and must be treated as read-only.
func (s *Store) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// RecordingID returns the bound recording, or "" when none is bound.
func (s *Store) RecordingID() types.RecordingID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.RecordingID
}

// Subscribe registers fn to run after each mutation.
func (s *Store) Subscribe(fn Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers[:len(s.observers):len(s.observers)], fn)
}
