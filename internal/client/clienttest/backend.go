// Package clienttest provides an in-process fake of the data provider
// backend for tests.
package clienttest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/rerunctl/internal/types"
)

// Call records one request received by the fake.
type Call struct {
	Method    string
	Path      string
	RequestID string
	Body      []byte
}

type session struct {
	appID      string
	dataset    string
	collection string
	port       int
	playing    bool
	streaming  bool
	alignment  bool
	heartbeats int
	created    time.Time
}

// Backend mimics the HTTP surface of the data provider.
type Backend struct {
	*httptest.Server

	mu        sync.Mutex
	sessions  map[types.RecordingID]*session
	structure types.DBStructure
	calls     []Call
	nextPort  int
	listErr   string
}

// NewBackend starts a fake backend serving structure from list_all.
// The server is closed when the test ends.
func NewBackend(t interface{ Cleanup(func()) }, structure types.DBStructure) *Backend {
	b := &Backend{
		sessions:  make(map[types.RecordingID]*session),
		structure: structure,
		nextPort:  9876,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /list_all", b.handleListAll)
	mux.HandleFunc("POST /create_source", b.handleCreate)
	mux.HandleFunc("GET /list_sessions", b.handleListSessions)
	mux.HandleFunc("POST /play_data/{id}", b.scoped(func(s *session, w http.ResponseWriter, r *http.Request) {
		s.playing = true
		writeJSON(w, map[string]any{"status": "playback_started", "recording_uuid": r.PathValue("id")})
	}))
	mux.HandleFunc("POST /heartbeat/{id}", b.scoped(func(s *session, w http.ResponseWriter, r *http.Request) {
		s.heartbeats++
		writeJSON(w, map[string]any{"status": "alive", "recording_uuid": r.PathValue("id"), "server_time": float64(time.Now().Unix())})
	}))
	mux.HandleFunc("POST /load_range/{id}", b.scoped(func(s *session, w http.ResponseWriter, r *http.Request) {
		var req types.LoadRangeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"detail":"invalid body"}`, http.StatusUnprocessableEntity)
			return
		}
		writeJSON(w, map[string]any{"status": "range_loaded", "recording_uuid": r.PathValue("id")})
	}))
	mux.HandleFunc("GET /get_info/{id}", b.scoped(func(s *session, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"recording_uuid": r.PathValue("id"),
			"total_frames":   120,
			"dataset":        s.dataset,
			"collection":     s.collection,
			"streaming":      s.streaming,
			"alignment":      s.alignment,
		})
	}))
	mux.HandleFunc("POST /enable_streaming_mode/{id}", b.scoped(func(s *session, w http.ResponseWriter, r *http.Request) {
		var req types.ModeRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.streaming = req.Enabled
		writeJSON(w, map[string]any{"status": "streaming_mode_updated", "recording_uuid": r.PathValue("id")})
	}))
	mux.HandleFunc("POST /enable_alignment_mode/{id}", b.scoped(func(s *session, w http.ResponseWriter, r *http.Request) {
		var req types.ModeRequest
		json.NewDecoder(r.Body).Decode(&req)
		s.alignment = req.Enabled
		writeJSON(w, map[string]any{"status": "alignment_mode_updated", "recording_uuid": r.PathValue("id")})
	}))
	mux.HandleFunc("POST /refresh_ui/{id}", b.scoped(func(s *session, w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"status": "ui_refresh_triggered", "recording_uuid": r.PathValue("id"), "timestamp": float64(time.Now().Unix())})
	}))

	b.Server = httptest.NewServer(b.record(mux))
	t.Cleanup(b.Close)
	return b
}

// FailListAll makes list_all answer with the in-band error shape.
func (b *Backend) FailListAll(message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = message
}

// Expire drops a session as the backend's idle monitor would.
func (b *Backend) Expire(id types.RecordingID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, id)
}

// Heartbeats returns how many heartbeats id has received.
func (b *Backend) Heartbeats(id types.RecordingID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if s, ok := b.sessions[id]; ok {
		return s.heartbeats
	}
	return 0
}

// Playing reports whether play_data was called for id.
func (b *Backend) Playing(id types.RecordingID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.sessions[id]
	return ok && s.playing
}

// Calls returns a copy of the request log.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// CountCalls returns how many requests matched method and path.
func (b *Backend) CountCalls(method, path string) int {
	n := 0
	for _, c := range b.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = readAll(r)
		}
		b.mu.Lock()
		b.calls = append(b.calls, Call{
			Method:    r.Method,
			Path:      r.URL.Path,
			RequestID: r.Header.Get("X-Request-Id"),
			Body:      body,
		})
		b.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) scoped(fn func(*session, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := types.RecordingID(r.PathValue("id"))
		b.mu.Lock()
		defer b.mu.Unlock()
		s, ok := b.sessions[id]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"detail":"Session not found or already expired"}`))
			return
		}
		fn(s, w, r)
	}
}

func (b *Backend) handleListAll(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != "" {
		writeJSON(w, map[string]any{"status": "error", "message": b.listErr})
		return
	}
	writeJSON(w, map[string]any{"status": "success", "data": b.structure, "count": len(b.structure)})
}

func (b *Backend) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Dataset == "" || req.Collection == "" {
		http.Error(w, `{"detail":"dataset and collection are required"}`, http.StatusUnprocessableEntity)
		return
	}

	b.mu.Lock()
	id := types.RecordingID(uuid.New().String())
	port := b.nextPort
	b.nextPort++
	b.sessions[id] = &session{
		appID:      "rerun_app_" + string(id)[:8],
		dataset:    req.Dataset,
		collection: req.Collection,
		port:       port,
		created:    time.Now(),
	}
	appID := b.sessions[id].appID
	b.mu.Unlock()

	writeJSON(w, types.SourceResponse{
		Status:        "created",
		AppID:         appID,
		RecordingUUID: id,
		Port:          port,
		ConnectURL:    "rerun+http://127.0.0.1:" + strconv.Itoa(port) + "/proxy",
	})
}

func (b *Backend) handleListSessions(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[types.RecordingID]types.SessionSummary, len(b.sessions))
	for id, s := range b.sessions {
		out[id] = types.SessionSummary{
			AppID:     s.appID,
			Port:      s.port,
			IsPlaying: s.playing,
			Uptime:    strconv.Itoa(int(time.Since(s.created).Seconds())) + "s",
		}
	}
	writeJSON(w, out)
}
