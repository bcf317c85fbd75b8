// internal/state/file_test.go
package state

import (
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/rerunctl/internal/types"
)

func TestFileStoreMissingFileIsEmpty(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	store, err := fs.Load()
	require.NoError(t, err)
	assert.True(t, store.RecordingID().IsZero())
	assert.Empty(t, store.Snapshot().DatabaseStructure)
}

func TestFileStoreAttachPersistsMutations(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)

	store, err := fs.Load()
	require.NoError(t, err)
	fs.Attach(store)

	store.SetRerunInfo("app-1", "rerun+http://10.0.0.2:9877/proxy", "abc-123")
	store.SetDBStructure(types.DBStructure{"db_prod": []any{"db_dev"}})
	store.SetSelection("db_dev", "db_prod")

	reloaded, err := NewFileStore(dir).Load()
	require.NoError(t, err)

	snap := reloaded.Snapshot()
	assert.Equal(t, "app-1", snap.ApplicationID)
	assert.Equal(t, types.RecordingID("abc-123"), snap.RecordingID)
	assert.Equal(t, "db_dev", snap.Collection)
	assert.Equal(t, "db_prod", snap.Dataset)
	assert.Equal(t, []any{"db_dev"}, snap.DatabaseStructure["db_prod"])

	_, err = os.Stat(fs.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should not exist after save")
}

func TestFileStoreCorruptFile(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	require.NoError(t, os.WriteFile(fs.Path(), []byte("{not json"), 0o644))

	_, err := fs.Load()
	assert.Error(t, err)
}

func TestFileStoreWritersMergeByGroup(t *testing.T) {
	dir := t.TempDir()

	daemonFiles := NewFileStore(dir)
	daemon, err := daemonFiles.Load()
	require.NoError(t, err)
	daemonFiles.Attach(daemon)

	cliFiles := NewFileStore(dir)
	cli, err := cliFiles.Load()
	require.NoError(t, err)
	cliFiles.Attach(cli)

	cli.SetRerunInfo("app-cli", "rerun+http://127.0.0.1:9877/proxy", "rec-cli")
	daemon.SetDBStructure(types.DBStructure{"db_prod": []any{"db_dev"}})

	persisted, err := NewFileStore(dir).Load()
	require.NoError(t, err)
	snap := persisted.Snapshot()
	assert.Equal(t, types.RecordingID("rec-cli"), snap.RecordingID)
	assert.Equal(t, "app-cli", snap.ApplicationID)
	assert.Contains(t, snap.DatabaseStructure, "db_prod")

	// The daemon's own memory still holds the old binding until it reloads.
	assert.True(t, daemon.RecordingID().IsZero())
	require.NoError(t, daemonFiles.Reload(daemon))
	assert.Equal(t, types.RecordingID("rec-cli"), daemon.RecordingID())
	assert.Contains(t, daemon.Snapshot().DatabaseStructure, "db_prod")
}

func TestFileStoreLaterBindingWins(t *testing.T) {
	dir := t.TempDir()

	first := NewFileStore(dir)
	a, err := first.Load()
	require.NoError(t, err)
	first.Attach(a)

	second := NewFileStore(dir)
	b, err := second.Load()
	require.NoError(t, err)
	second.Attach(b)

	a.SetRerunInfo("app-a", "src-a", "rec-a")
	b.SetRerunInfo("app-b", "src-b", "rec-b")
	a.SetSelection("col", "ds")

	persisted, err := NewFileStore(dir).Load()
	require.NoError(t, err)
	snap := persisted.Snapshot()
	assert.Equal(t, types.RecordingID("rec-b"), snap.RecordingID)
	assert.Equal(t, "col", snap.Collection)
}

func TestFileStorePersistsInWriteOrder(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(dir)
	store, err := fs.Load()
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	store.Subscribe(func(c Change) {
		if c.State.RecordingID == "rec-a" {
			close(entered)
			<-release
		}
	})
	fs.Attach(store)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		store.SetRerunInfo("app", "src", "rec-a")
	}()
	<-entered
	go func() {
		defer wg.Done()
		store.SetRerunInfo("app", "src", "rec-b")
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	persisted, err := NewFileStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, store.RecordingID(), persisted.RecordingID())
	assert.Equal(t, types.RecordingID("rec-b"), persisted.RecordingID())
}

func TestFileStoreReloadMissingFileIsEmpty(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	store := NewStore()
	store.SetRerunInfo("app", "src", "rec")

	require.NoError(t, fs.Reload(store))
	assert.True(t, store.RecordingID().IsZero())
	assert.NotNil(t, store.Snapshot().DatabaseStructure)
}
