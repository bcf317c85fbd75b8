//go:build integration

package test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/user/rerunctl/internal/client"
	"github.com/user/rerunctl/internal/client/clienttest"
	"github.com/user/rerunctl/internal/config"
	"github.com/user/rerunctl/internal/console"
	"github.com/user/rerunctl/internal/endpoint"
	"github.com/user/rerunctl/internal/keepalive"
	"github.com/user/rerunctl/internal/state"
	"github.com/user/rerunctl/internal/types"
)

func TestEndToEnd(t *testing.T) {
	dir := t.TempDir()

	backend := clienttest.NewBackend(t, types.DBStructure{
		"db_prod": []any{"db_dev", "frames"},
	})
	resolver := endpoint.NewResolver(backend.URL + "/")
	api := client.New(resolver, 2*time.Second)

	files := state.NewFileStore(dir)
	store, err := files.Load()
	if err != nil {
		t.Fatal(err)
	}
	files.Attach(store)

	srv := httptest.NewServer(console.NewServer(store, api, resolver, console.Options{
		ViewerBaseURL: config.DefaultViewerBaseURL,
		Streaming:     config.Default().Streaming,
		CatalogTTL:    time.Minute,
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	keeper := keepalive.New(api, store, time.Second)
	done := make(chan error, 1)
	go func() { done <- keeper.Run(ctx) }()

	// Catalog lands in the store.
	resp, err := http.Get(srv.URL + "/api/catalog")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("catalog: status %d", resp.StatusCode)
	}
	if _, ok := store.Snapshot().DatabaseStructure["db_prod"]; !ok {
		t.Fatal("catalog not stored")
	}

	// Creating a source binds the recording.
	resp, err = http.Post(srv.URL+"/api/sources", "application/json",
		strings.NewReader(`{"dataset":"db_prod","collection":"db_dev"}`))
	if err != nil {
		t.Fatal(err)
	}
	var created struct {
		Source types.SourceResponse `json:"source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	id := store.RecordingID()
	if id.IsZero() || id != created.Source.RecordingUUID {
		t.Fatalf("bound recording = %q, want %q", id, created.Source.RecordingUUID)
	}

	// Scoped calls reach the backend under the bound id.
	resp, err = http.Post(srv.URL+"/api/play", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !backend.Playing(id) {
		t.Error("expected recording to be playing")
	}

	// The keeper picks the recording up on its next tick.
	deadline := time.Now().Add(5 * time.Second)
	for backend.Heartbeats(id) == 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if backend.Heartbeats(id) == 0 {
		t.Error("expected at least one heartbeat")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatal(err)
	}

	// The binding survives a restart through the state file.
	reloaded, err := state.NewFileStore(dir).Load()
	if err != nil {
		t.Fatal(err)
	}
	snap := reloaded.Snapshot()
	if snap.RecordingID != id {
		t.Errorf("reloaded recording = %q, want %q", snap.RecordingID, id)
	}
	if snap.Dataset != "db_prod" || snap.Collection != "db_dev" {
		t.Errorf("reloaded selection = %q/%q", snap.Dataset, snap.Collection)
	}
}
