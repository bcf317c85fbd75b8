// internal/types/ids.go
package types

import (
	"github.com/google/uuid"
)

// RecordingID is the server-issued identifier of one visualization session.
// It is carried verbatim; the backend is the authority on its format.
type RecordingID string

type RequestID string

func NewRequestID() RequestID {
	return RequestID(uuid.New().String())
}

// IsZero reports whether no recording is bound.
func (id RecordingID) IsZero() bool {
	return id == ""
}

func (id RecordingID) String() string {
	return string(id)
}
