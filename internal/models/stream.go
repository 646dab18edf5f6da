package models

import "time"

// StreamKind identifies the transport family of a user-supplied stream URL
type StreamKind string

const (
	StreamKindHTTP StreamKind = "http"
	StreamKindRTSP StreamKind = "rtsp"
)

// String returns the string representation of StreamKind
func (k StreamKind) String() string {
	return string(k)
}

// IsValid checks if the stream kind is supported
func (k StreamKind) IsValid() bool {
	switch k {
	case StreamKindHTTP, StreamKindRTSP:
		return true
	default:
		return false
	}
}

// TransportMode is the playback transport currently bound to a stream
type TransportMode string

const (
	TransportPrimary  TransportMode = "primary"
	TransportFallback TransportMode = "fallback"
)

// String returns the string representation of TransportMode
func (m TransportMode) String() string {
	return string(m)
}

// IsValid checks if the transport mode is known
func (m TransportMode) IsValid() bool {
	return m == TransportPrimary || m == TransportFallback
}

// StreamSource is created on connect and dropped on disconnect.
// CanonicalURL and TransportMode only change through the transport resolver.
type StreamSource struct {
	RawURL        string        `json:"raw_url"`
	Kind          StreamKind    `json:"kind"`
	CanonicalURL  string        `json:"canonical_url"`
	TransportMode TransportMode `json:"transport_mode"`
}

// ConnectionPhase is the lifecycle phase of a stream session
type ConnectionPhase string

const (
	PhaseIdle              ConnectionPhase = "idle"
	PhaseConnecting        ConnectionPhase = "connecting"
	PhaseConnectedPrimary  ConnectionPhase = "connected_primary"
	PhaseConnectedFallback ConnectionPhase = "connected_fallback"
	PhaseDisconnected      ConnectionPhase = "disconnected"
	PhaseError             ConnectionPhase = "error"
)

// String returns the string representation of ConnectionPhase
func (p ConnectionPhase) String() string {
	return string(p)
}

// Error reasons carried by ConnectionState in PhaseError
const (
	ReasonUnreachable    = "unreachable"
	ReasonFallbackFailed = "fallback-failed"
)

// ConnectionState is the single source of truth for a session's lifecycle.
// Reason is only set in PhaseError.
type ConnectionState struct {
	Phase  ConnectionPhase `json:"phase"`
	Reason string          `json:"reason,omitempty"`
}

// IsConnected reports whether sampling is allowed in this state
func (s ConnectionState) IsConnected() bool {
	return s.Phase == PhaseConnectedPrimary || s.Phase == PhaseConnectedFallback
}

// CanConnect reports whether a new connect attempt may start from this state
func (s ConnectionState) CanConnect() bool {
	switch s.Phase {
	case PhaseIdle, PhaseDisconnected, PhaseError:
		return true
	default:
		return false
	}
}

func (s ConnectionState) String() string {
	if s.Reason != "" {
		return string(s.Phase) + "(" + s.Reason + ")"
	}
	return string(s.Phase)
}

// Frame is a raw 8-bit interleaved pixel buffer captured at one sampling tick
type Frame struct {
	Seq       uint64
	Width     int
	Height    int
	Channels  int
	Data      []byte
	Timestamp time.Time
}

// DemoStream is a selectable demo camera
type DemoStream struct {
	ID   string     `json:"id" yaml:"id"`
	Name string     `json:"name" yaml:"name"`
	URL  string     `json:"url" yaml:"url"`
	Kind StreamKind `json:"kind" yaml:"kind"`
}
