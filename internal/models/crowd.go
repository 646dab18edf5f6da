package models

import "time"

// DetectionResult is produced once per non-blank frame by a detector
type DetectionResult struct {
	PeopleCount uint    `json:"people_count"`
	Confidence  float64 `json:"confidence"`
}

// CrowdStatus is derived from the latest DetectionResult and supersedes the previous one
type CrowdStatus struct {
	IsCrowded   bool      `json:"is_crowded"`
	Confidence  float64   `json:"confidence"`
	PeopleCount uint      `json:"people_count"`
	Timestamp   time.Time `json:"timestamp"`
}

// AlertSource identifies which analysis path raised an alert
type AlertSource string

const (
	AlertSourceStream AlertSource = "stream"
	AlertSourceUpload AlertSource = "upload"
)

// AlertEvent is emitted when the alert gate fires. It is never stored.
type AlertEvent struct {
	ID          string      `json:"id"`
	SessionID   string      `json:"session_id"`
	Source      AlertSource `json:"source"`
	PeopleCount uint        `json:"people_count"`
	Confidence  float64     `json:"confidence"`
	Message     string      `json:"message"`
	Timestamp   time.Time   `json:"timestamp"`
}

// MessagePublisher publishes payloads on a message bus subject
type MessagePublisher interface {
	Publish(subject string, data interface{}) error
}

// SessionSnapshot is the read-only view handed to presentation
type SessionSnapshot struct {
	SessionID     string          `json:"session_id,omitempty"`
	State         ConnectionState `json:"state"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	Source        *StreamSource   `json:"source,omitempty"`
	TransportMode TransportMode   `json:"transport_mode,omitempty"`
	CrowdStatus   *CrowdStatus    `json:"crowd_status"`
	NoSignal      bool            `json:"no_signal"`
	AlertsEnabled bool            `json:"alerts_enabled"`
	DetectorReady bool            `json:"detector_ready"`
}

// UploadJobStatus is the lifecycle of a file analysis job
type UploadJobStatus string

const (
	UploadPending   UploadJobStatus = "pending"
	UploadAnalyzing UploadJobStatus = "analyzing"
	UploadDone      UploadJobStatus = "done"
	UploadFailed    UploadJobStatus = "failed"
)

// UploadJob tracks an analyzeFile request
type UploadJob struct {
	ID        string          `json:"id"`
	FileName  string          `json:"file_name"`
	Status    UploadJobStatus `json:"status"`
	Progress  int             `json:"progress"`
	Result    *CrowdStatus    `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	// FinishedAt is set once the job is done or failed
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
