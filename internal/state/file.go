// internal/state/file.go
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists SessionState to <root>/state.json so that separate
// processes see the same binding. Several processes may write the file; each
// write only replaces the field group that changed, under an exclusive lock
// on <root>/state.lock.
type FileStore struct {
	root string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore rooted at the given directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Path returns the snapshot file location.
func (f *FileStore) Path() string {
	return filepath.Join(f.root, "state.json")
}

func (f *FileStore) lockPath() string {
	return filepath.Join(f.root, "state.lock")
}

// locked runs fn while holding both the in-process and the cross-process lock.
func (f *FileStore) locked(fn func() error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(f.root, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	lock, err := acquireFileLock(f.lockPath())
	if err != nil {
		return err
	}
	defer releaseFileLock(lock)
	return fn()
}

// read returns the persisted state; a missing file is the empty state.
func (f *FileStore) read() (SessionState, error) {
	var snap SessionState
	data, err := os.ReadFile(f.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snap, nil
		}
		return snap, fmt.Errorf("read state: %w", err)
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("unmarshal state: %w", err)
	}
	return snap, nil
}

func (f *FileStore) write(snap SessionState) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := f.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := os.Rename(tmp, f.Path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp state: %w", err)
	}
	return nil
}

// Load rebuilds a Store from the snapshot file. A missing file yields an
// empty Store.
func (f *FileStore) Load() (*Store, error) {
	store := NewStore()
	if err := f.Reload(store); err != nil {
		return nil, err
	}
	return store, nil
}

// Reload replaces store's state with what is on disk, picking up writes made
// by other processes. Observers are not notified.
func (f *FileStore) Reload(store *Store) error {
	return store.replaceFrom(func() (SessionState, error) {
		var snap SessionState
		err := f.locked(func() error {
			var err error
			snap, err = f.read()
			return err
		})
		return snap, err
	})
}

// Save merges the fields of group from snap onto the persisted state. Fields
// of other groups are kept as they are on disk.
func (f *FileStore) Save(group Group, snap SessionState) error {
	return f.locked(func() error {
		current, err := f.read()
		if err != nil {
			return err
		}
		switch group {
		case GroupRerunInfo:
			current.ApplicationID = snap.ApplicationID
			current.SourceDescriptor = snap.SourceDescriptor
			current.RecordingID = snap.RecordingID
		case GroupDBStructure:
			current.DatabaseStructure = snap.DatabaseStructure
		case GroupSelection:
			current.Collection = snap.Collection
			current.Dataset = snap.Dataset
		default:
			return fmt.Errorf("unknown state group %d", group)
		}
		return f.write(current)
	})
}

// Attach saves every subsequent mutation of store. Write failures are
// logged; the in-memory state stays authoritative.
func (f *FileStore) Attach(store *Store) {
	store.Subscribe(func(c Change) {
		if err := f.Save(c.Group, c.State); err != nil {
			slog.Error("persist session state failed", "path", f.Path(), "error", err)
		}
	})
}
