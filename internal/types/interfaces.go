// internal/types/interfaces.go
package types

import (
	"context"
)

// Backend is the data provider surface consumed by the console and the
// keepalive loop. internal/client provides the HTTP implementation.
type Backend interface {
	ListAll(ctx context.Context) (DBStructure, error)
	CreateSource(ctx context.Context, req CreateSourceRequest) (*SourceResponse, error)
	ListSessions(ctx context.Context) (map[RecordingID]SessionSummary, error)
	PlayData(ctx context.Context, id RecordingID) (*StatusResponse, error)
	Heartbeat(ctx context.Context, id RecordingID) (*HeartbeatResponse, error)
	LoadRange(ctx context.Context, id RecordingID, req LoadRangeRequest) (*StatusResponse, error)
	GetInfo(ctx context.Context, id RecordingID) (*SessionInfo, error)
	EnableStreamingMode(ctx context.Context, id RecordingID, enabled bool) (*StatusResponse, error)
	EnableAlignmentMode(ctx context.Context, id RecordingID, enabled bool) (*StatusResponse, error)
	RefreshUI(ctx context.Context, id RecordingID) (*StatusResponse, error)
}
