// internal/keepalive/keepalive.go
package keepalive

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/user/rerunctl/internal/client"
	"github.com/user/rerunctl/internal/types"
)

// RecordingSource yields the currently bound recording, "" when unbound.
// *state.Store satisfies it.
type RecordingSource interface {
	RecordingID() types.RecordingID
}

// Keeper sends a heartbeat for the bound recording on a fixed interval so
// the backend does not reap the session as idle.
type Keeper struct {
	backend  types.Backend
	source   RecordingSource
	interval time.Duration
	cron     *cron.Cron
	timeout  time.Duration
	reload   func() error

	mu      sync.Mutex
	expired types.RecordingID
}

// Option configures a Keeper.
type Option func(*Keeper)

// WithReload runs fn before each beat so a binding written by another
// process is picked up. A failing reload is logged and the beat uses the
// recording already in memory.
func WithReload(fn func() error) Option {
	return func(k *Keeper) { k.reload = fn }
}

// New creates a Keeper. The heartbeat fires every interval.
func New(backend types.Backend, source RecordingSource, interval time.Duration, opts ...Option) *Keeper {
	k := &Keeper{
		backend:  backend,
		source:   source,
		interval: interval,
		cron:     cron.New(cron.WithSeconds()),
		timeout:  interval,
	}
	for _, opt := range opts {
		opt(k)
	}
	return k
}

// Start registers the heartbeat entry and starts the cron ticker.
func (k *Keeper) Start() error {
	if k.interval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %s", k.interval)
	}
	spec := "@every " + k.interval.String()
	if _, err := k.cron.AddFunc(spec, func() { k.Beat(context.Background()) }); err != nil {
		return fmt.Errorf("schedule heartbeat %q: %w", spec, err)
	}
	k.cron.Start()
	slog.Info("heartbeat scheduled", "interval", k.interval)
	return nil
}

// Run starts the Keeper and blocks until ctx is done.
func (k *Keeper) Run(ctx context.Context) error {
	if err := k.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	k.Stop()
	return nil
}

// Stop stops the cron ticker and waits for a running beat to finish.
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
}

// Beat sends one heartbeat. It does nothing while no recording is bound,
// and logs an expired recording once rather than on every tick.
func (k *Keeper) Beat(ctx context.Context) {
	if k.reload != nil {
		if err := k.reload(); err != nil {
			slog.Warn("reload session state failed", "error", err)
		}
	}
	id := k.source.RecordingID()
	if id.IsZero() {
		return
	}

	k.mu.Lock()
	alreadyExpired := k.expired == id
	k.mu.Unlock()
	if alreadyExpired {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()

	_, err := k.backend.Heartbeat(ctx, id)
	switch {
	case err == nil:
		slog.Debug("heartbeat ok", "recording_id", string(id))
	case client.IsNotFound(err):
		k.mu.Lock()
		k.expired = id
		k.mu.Unlock()
		slog.Warn("recording expired on backend", "recording_id", string(id))
	default:
		slog.Error("heartbeat failed", "recording_id", string(id), "error", err)
	}
}
