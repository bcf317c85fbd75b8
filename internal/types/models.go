// internal/types/models.go
package types

import (
	"encoding/json"
)

// DBStructure is the catalog reported by list_all: database name to the
// collections it holds. Values are kept loosely typed because the backend
// owns the shape.
type DBStructure map[string]any

type CreateSourceRequest struct {
	Dataset    string `json:"dataset"`
	Collection string `json:"collection"`
}

type SourceResponse struct {
	Status        string      `json:"status"`
	AppID         string      `json:"app_id"`
	RecordingUUID RecordingID `json:"recording_uuid"`
	Port          int         `json:"port"`
	ConnectURL    string      `json:"connect_url"`
}

type ListAllResponse struct {
	Status  string      `json:"status"`
	Data    DBStructure `json:"data"`
	Count   int         `json:"count"`
	Message string      `json:"message,omitempty"`
}

// SessionSummary is one entry of the backend's list_sessions map.
type SessionSummary struct {
	AppID     string `json:"app_id"`
	Port      int    `json:"port"`
	IsPlaying bool   `json:"is_playing"`
	Uptime    string `json:"uptime"`
}

type HeartbeatResponse struct {
	Status        string      `json:"status"`
	RecordingUUID RecordingID `json:"recording_uuid"`
	ServerTime    float64     `json:"server_time"`
}

type LoadRangeRequest struct {
	StartIdx int `json:"start_idx"`
	EndIdx   int `json:"end_idx"`
}

type ModeRequest struct {
	Enabled bool `json:"enabled"`
}

// StatusResponse covers the acknowledgement bodies of play_data, load_range,
// refresh_ui and the mode toggles.
type StatusResponse struct {
	Status        string      `json:"status"`
	RecordingUUID RecordingID `json:"recording_uuid,omitempty"`
	Timestamp     float64     `json:"timestamp,omitempty"`
}

// SessionInfo is the get_info payload. The backend may add fields at will,
// so the raw document is retained next to the commonly read ones.
type SessionInfo struct {
	RecordingUUID RecordingID     `json:"recording_uuid"`
	TotalFrames   int             `json:"total_frames"`
	Raw           json.RawMessage `json:"-"`
}
