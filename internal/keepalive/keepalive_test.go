// internal/keepalive/keepalive_test.go
package keepalive

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/user/rerunctl/internal/client"
	"github.com/user/rerunctl/internal/client/clienttest"
	"github.com/user/rerunctl/internal/endpoint"
	"github.com/user/rerunctl/internal/state"
	"github.com/user/rerunctl/internal/types"
)

func setup(t *testing.T) (*client.Client, *clienttest.Backend, *state.Store) {
	t.Helper()
	backend := clienttest.NewBackend(t, types.DBStructure{})
	c := client.New(endpoint.NewResolver(backend.URL), time.Second)
	return c, backend, state.NewStore()
}

func TestBeatSkipsWhenUnbound(t *testing.T) {
	c, backend, store := setup(t)

	New(c, store, time.Second).Beat(context.Background())

	if n := len(backend.Calls()); n != 0 {
		t.Errorf("expected no backend calls while unbound, got %d", n)
	}
}

func TestBeatSendsHeartbeatForBoundRecording(t *testing.T) {
	c, backend, store := setup(t)
	ctx := context.Background()

	src, err := c.CreateSource(ctx, types.CreateSourceRequest{Dataset: "db", Collection: "col"})
	if err != nil {
		t.Fatal(err)
	}
	store.SetRerunInfo(src.AppID, src.ConnectURL, src.RecordingUUID)

	k := New(c, store, time.Second)
	k.Beat(ctx)
	k.Beat(ctx)

	if got := backend.Heartbeats(src.RecordingUUID); got != 2 {
		t.Errorf("expected 2 heartbeats, got %d", got)
	}
}

func TestBeatFollowsRebinding(t *testing.T) {
	c, backend, store := setup(t)
	ctx := context.Background()

	first, err := c.CreateSource(ctx, types.CreateSourceRequest{Dataset: "db", Collection: "a"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.CreateSource(ctx, types.CreateSourceRequest{Dataset: "db", Collection: "b"})
	if err != nil {
		t.Fatal(err)
	}

	k := New(c, store, time.Second)
	store.SetRerunInfo(first.AppID, first.ConnectURL, first.RecordingUUID)
	k.Beat(ctx)
	store.SetRerunInfo(second.AppID, second.ConnectURL, second.RecordingUUID)
	k.Beat(ctx)

	if got := backend.Heartbeats(first.RecordingUUID); got != 1 {
		t.Errorf("expected 1 heartbeat for first, got %d", got)
	}
	if got := backend.Heartbeats(second.RecordingUUID); got != 1 {
		t.Errorf("expected 1 heartbeat for second, got %d", got)
	}
}

func TestBeatStopsAfterExpiry(t *testing.T) {
	c, backend, store := setup(t)
	ctx := context.Background()

	src, err := c.CreateSource(ctx, types.CreateSourceRequest{Dataset: "db", Collection: "col"})
	if err != nil {
		t.Fatal(err)
	}
	store.SetRerunInfo(src.AppID, src.ConnectURL, src.RecordingUUID)
	backend.Expire(src.RecordingUUID)

	k := New(c, store, time.Second)
	k.Beat(ctx)
	k.Beat(ctx)

	path := "/heartbeat/" + string(src.RecordingUUID)
	if n := backend.CountCalls(http.MethodPost, path); n != 1 {
		t.Errorf("expected a single heartbeat attempt after expiry, got %d", n)
	}
}

func TestKeeperFiresOnSchedule(t *testing.T) {
	c, backend, store := setup(t)

	src, err := c.CreateSource(context.Background(), types.CreateSourceRequest{Dataset: "db", Collection: "col"})
	if err != nil {
		t.Fatal(err)
	}
	store.SetRerunInfo(src.AppID, src.ConnectURL, src.RecordingUUID)

	k := New(c, store, time.Second)
	if err := k.Start(); err != nil {
		t.Fatal(err)
	}
	defer k.Stop()

	// Wait up to 2.5 seconds for at least one fire
	deadline := time.After(2500 * time.Millisecond)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			t.Fatalf("heartbeat did not fire within 2.5s")
		case <-ticker.C:
			if backend.Heartbeats(src.RecordingUUID) > 0 {
				return
			}
		}
	}
}

func TestStartRejectsZeroInterval(t *testing.T) {
	c, _, store := setup(t)
	if err := New(c, store, 0).Start(); err == nil {
		t.Fatal("expected error for zero interval")
	}
}

func TestBeatPicksUpBindingFromAnotherProcess(t *testing.T) {
	c, backend, _ := setup(t)
	ctx := context.Background()
	dir := t.TempDir()

	daemonFiles := state.NewFileStore(dir)
	daemon, err := daemonFiles.Load()
	if err != nil {
		t.Fatal(err)
	}
	daemonFiles.Attach(daemon)

	cliFiles := state.NewFileStore(dir)
	cli, err := cliFiles.Load()
	if err != nil {
		t.Fatal(err)
	}
	cliFiles.Attach(cli)

	src, err := c.CreateSource(ctx, types.CreateSourceRequest{Dataset: "db", Collection: "col"})
	if err != nil {
		t.Fatal(err)
	}
	cli.SetRerunInfo(src.AppID, src.ConnectURL, src.RecordingUUID)

	k := New(c, daemon, time.Second, WithReload(func() error { return daemonFiles.Reload(daemon) }))
	k.Beat(ctx)

	if got := backend.Heartbeats(src.RecordingUUID); got != 1 {
		t.Errorf("expected 1 heartbeat for the recording bound elsewhere, got %d", got)
	}
}
