// Package endpoint builds request targets for the data provider backend.
//
// Every operation is either global (one fixed URL) or scoped to a recording
// (the recording id is appended as the last path segment). Callers go
// through Resolver.Resolve and never need to know which shape an operation has.
package endpoint

import (
	"errors"
	"fmt"
	"strings"

	"github.com/user/rerunctl/internal/types"
)

// ErrNoRecording is returned by ResolveChecked when a scoped operation is
// requested while no recording is bound.
var ErrNoRecording = errors.New("no recording bound")

type Operation string

const (
	ListAll             Operation = "listAll"
	CreateSource        Operation = "createSource"
	ListSessions        Operation = "listSessions"
	PlayData            Operation = "playData"
	Heartbeat           Operation = "heartbeat"
	LoadRange           Operation = "loadRange"
	GetInfo             Operation = "getInfo"
	EnableStreamingMode Operation = "enableStreamingMode"
	EnableAlignmentMode Operation = "enableAlignmentMode"
	RefreshUI           Operation = "refreshUi"
)

type Kind int

const (
	Global Kind = iota
	Scoped
)

func (k Kind) String() string {
	if k == Scoped {
		return "scoped"
	}
	return "global"
}

// Endpoint is the static description of one operation.
type Endpoint struct {
	Kind Kind
	Path string
}

// Catalog is the fixed operation table. It is not modified at runtime.
var Catalog = map[Operation]Endpoint{
	ListAll:             {Kind: Global, Path: "list_all"},
	CreateSource:        {Kind: Global, Path: "create_source"},
	ListSessions:        {Kind: Global, Path: "list_sessions"},
	PlayData:            {Kind: Scoped, Path: "play_data"},
	Heartbeat:           {Kind: Scoped, Path: "heartbeat"},
	LoadRange:           {Kind: Scoped, Path: "load_range"},
	GetInfo:             {Kind: Scoped, Path: "get_info"},
	EnableStreamingMode: {Kind: Scoped, Path: "enable_streaming_mode"},
	EnableAlignmentMode: {Kind: Scoped, Path: "enable_alignment_mode"},
	RefreshUI:           {Kind: Scoped, Path: "refresh_ui"},
}

// Operations lists the catalog in display order.
var Operations = []Operation{
	ListAll, CreateSource, ListSessions,
	PlayData, Heartbeat, LoadRange, GetInfo,
	EnableStreamingMode, EnableAlignmentMode, RefreshUI,
}

// Resolver turns operations into absolute URLs against one base address.
// It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	base string
}

// NewResolver creates a Resolver for base. A trailing slash is dropped so
// "http://host:8000/" and "http://host:8000" resolve identically.
func NewResolver(base string) *Resolver {
	return &Resolver{base: strings.TrimRight(base, "/")}
}

// Base returns the base address the resolver was built with.
func (r *Resolver) Base() string {
	return r.base
}

// Resolve returns the request target for op. recordingID is ignored for
// global operations and appended verbatim for scoped ones.
//
// Resolving a scoped operation without a recording is a programming error
// and panics, as does an operation missing from Catalog.
func (r *Resolver) Resolve(op Operation, recordingID types.RecordingID) string {
	url, err := r.ResolveChecked(op, recordingID)
	if err != nil {
		panic(fmt.Sprintf("endpoint: %v", err))
	}
	return url
}

// ResolveChecked is Resolve with the contract violations reported as errors.
func (r *Resolver) ResolveChecked(op Operation, recordingID types.RecordingID) (string, error) {
	ep, ok := Catalog[op]
	if !ok {
		return "", fmt.Errorf("unknown operation %q", op)
	}
	if ep.Kind == Global {
		return r.base + "/" + ep.Path, nil
	}
	if recordingID.IsZero() {
		return "", fmt.Errorf("resolve %s: %w", op, ErrNoRecording)
	}
	return r.base + "/" + ep.Path + "/" + string(recordingID), nil
}

// IsScoped reports whether op needs a recording id.
func IsScoped(op Operation) bool {
	return Catalog[op].Kind == Scoped
}
