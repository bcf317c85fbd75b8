// internal/console/server.go
package console

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/user/rerunctl/internal/client"
	"github.com/user/rerunctl/internal/config"
	"github.com/user/rerunctl/internal/endpoint"
	"github.com/user/rerunctl/internal/state"
	"github.com/user/rerunctl/internal/types"
)

const catalogKey = "list_all"

// Server is the local HTTP console. It owns no state of its own: the
// session binding lives in the injected Store.
type Server struct {
	store     *state.Store
	backend   types.Backend
	resolver  *endpoint.Resolver
	viewer    string
	streaming config.Streaming
	catalog   *cache.Cache
	reload    func() error
	mux       *http.ServeMux
}

// Options carries the configuration the console passes through.
type Options struct {
	ViewerBaseURL string
	Streaming     config.Streaming
	// CatalogTTL is how long a list_all result is reused. Zero disables
	// caching.
	CatalogTTL time.Duration
	// Reload, when set, runs before every request so bindings written by
	// other processes are visible.
	Reload func() error
}

// NewServer creates a console Server over the given store and backend.
func NewServer(store *state.Store, backend types.Backend, resolver *endpoint.Resolver, opts Options) *Server {
	s := &Server{
		store:     store,
		backend:   backend,
		resolver:  resolver,
		viewer:    opts.ViewerBaseURL,
		streaming: opts.Streaming,
		reload:    opts.Reload,
		mux:       http.NewServeMux(),
	}
	if ttl := opts.CatalogTTL; ttl > 0 {
		s.catalog = cache.New(ttl, 2*ttl)
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/endpoints", s.handleEndpoints)
	s.mux.HandleFunc("GET /api/catalog", s.handleCatalog)
	s.mux.HandleFunc("POST /api/sources", s.handleCreateSource)
	s.mux.HandleFunc("POST /api/selection", s.handleSelection)
	s.mux.HandleFunc("GET /api/sessions", s.handleSessions)
	s.mux.HandleFunc("POST /api/play", s.bound(s.handlePlay))
	s.mux.HandleFunc("POST /api/refresh_ui", s.bound(s.handleRefreshUI))
	s.mux.HandleFunc("GET /api/info", s.bound(s.handleInfo))
	s.mux.HandleFunc("POST /api/load_range", s.bound(s.handleLoadRange))
	s.mux.HandleFunc("POST /api/mode/{mode}", s.bound(s.handleMode))
	s.mux.HandleFunc("GET /api/config/streaming", s.handleStreamingConfig)
	s.mux.HandleFunc("GET /viewer", s.bound(s.handleViewer))
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.reload != nil {
		if err := s.reload(); err != nil {
			slog.Warn("reload session state failed", "error", err)
		}
	}
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeBackendError maps a backend failure onto a console response.
func writeBackendError(w http.ResponseWriter, op string, err error) {
	var apiErr *client.APIError
	switch {
	case client.IsNotFound(err):
		writeError(w, http.StatusNotFound, "recording not found or expired")
	case errors.As(err, &apiErr):
		slog.Error("backend rejected request", "op", op, "status", apiErr.Status, "detail", apiErr.Detail)
		writeError(w, http.StatusBadGateway, apiErr.Detail)
	default:
		slog.Error("backend request failed", "op", op, "error", err)
		writeError(w, http.StatusBadGateway, "backend unavailable")
	}
}

// boundHandler is a handler that needs the bound recording id.
type boundHandler func(w http.ResponseWriter, r *http.Request, id types.RecordingID)

// bound guards scoped handlers: with no recording bound the request is
// refused before any endpoint is resolved.
func (s *Server) bound(fn boundHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := s.store.RecordingID()
		if id.IsZero() {
			writeError(w, http.StatusConflict, "no recording bound; create a source first")
			return
		}
		fn(w, r, id)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

type endpointResponse struct {
	Operation endpoint.Operation `json:"operation"`
	Kind      string             `json:"kind"`
	URL       string             `json:"url,omitempty"`
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	id := s.store.RecordingID()
	result := make([]endpointResponse, 0, len(endpoint.Operations))
	for _, op := range endpoint.Operations {
		entry := endpointResponse{Operation: op, Kind: endpoint.Catalog[op].Kind.String()}
		if url, err := s.resolver.ResolveChecked(op, id); err == nil {
			entry.URL = url
		}
		result = append(result, entry)
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "refresh must be a boolean")
			return
		}
		refresh = b
	}
	if !refresh && s.catalog != nil {
		if cached, ok := s.catalog.Get(catalogKey); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	structure, err := s.backend.ListAll(r.Context())
	if err != nil {
		writeBackendError(w, "list_all", err)
		return
	}
	if s.catalog != nil {
		s.catalog.SetDefault(catalogKey, structure)
	}
	s.store.SetDBStructure(structure)
	writeJSON(w, http.StatusOK, structure)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Dataset == "" || req.Collection == "" {
		writeError(w, http.StatusBadRequest, "dataset and collection are required")
		return
	}

	src, err := s.backend.CreateSource(r.Context(), req)
	if err != nil {
		writeBackendError(w, "create_source", err)
		return
	}

	s.store.SetRerunInfo(src.AppID, src.ConnectURL, src.RecordingUUID)
	s.store.SetSelection(req.Collection, req.Dataset)
	slog.Info("recording bound", "recording_id", string(src.RecordingUUID), "app_id", src.AppID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"source":     src,
		"viewer_url": endpoint.ViewerURL(s.viewer, src.ConnectURL),
	})
}

type selectionRequest struct {
	Collection string `json:"collection"`
	Dataset    string `json:"dataset"`
}

func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.store.SetSelection(req.Collection, req.Dataset)
	writeJSON(w, http.StatusOK, s.store.Snapshot())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.backend.ListSessions(r.Context())
	if err != nil {
		writeBackendError(w, "list_sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request, id types.RecordingID) {
	resp, err := s.backend.PlayData(r.Context(), id)
	if err != nil {
		writeBackendError(w, "play_data", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefreshUI(w http.ResponseWriter, r *http.Request, id types.RecordingID) {
	resp, err := s.backend.RefreshUI(r.Context(), id)
	if err != nil {
		writeBackendError(w, "refresh_ui", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request, id types.RecordingID) {
	info, err := s.backend.GetInfo(r.Context(), id)
	if err != nil {
		writeBackendError(w, "get_info", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if len(info.Raw) > 0 {
		w.Write(info.Raw)
		return
	}
	json.NewEncoder(w).Encode(info)
}

type loadRangeRequest struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (s *Server) handleLoadRange(w http.ResponseWriter, r *http.Request, id types.RecordingID) {
	var req loadRangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Start < 0 || req.End < req.Start {
		writeError(w, http.StatusBadRequest, "range must satisfy 0 <= start <= end")
		return
	}
	resp, err := s.backend.LoadRange(r.Context(), id, types.LoadRangeRequest{StartIdx: req.Start, EndIdx: req.End})
	if err != nil {
		writeBackendError(w, "load_range", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request, id types.RecordingID) {
	var req types.ModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	var (
		resp *types.StatusResponse
		err  error
	)
	switch mode := r.PathValue("mode"); mode {
	case "streaming":
		resp, err = s.backend.EnableStreamingMode(r.Context(), id, req.Enabled)
	case "alignment":
		resp, err = s.backend.EnableAlignmentMode(r.Context(), id, req.Enabled)
	default:
		writeError(w, http.StatusNotFound, "unknown mode: "+mode)
		return
	}
	if err != nil {
		writeBackendError(w, "mode", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type streamingConfigResponse struct {
	ViewerBase string `json:"viewer_base"`
	config.Streaming
	KeepWindow int `json:"keep_window"`
}

func (s *Server) handleStreamingConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, streamingConfigResponse{
		ViewerBase: s.viewer,
		Streaming:  s.streaming,
		KeepWindow: s.streaming.KeepWindow(),
	})
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request, _ types.RecordingID) {
	snap := s.store.Snapshot()
	http.Redirect(w, r, endpoint.ViewerURL(s.viewer, snap.SourceDescriptor), http.StatusFound)
}
