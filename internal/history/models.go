package history

import "time"

// Status values for trigger records.
const (
	StatusSuccess          = "success"
	StatusRejected         = "rejected"
	StatusTransportFailure = "transport_failure"
	StatusBusy             = "busy"
)

// Record represents a single deploy trigger attempt.
type Record struct {
	ID              int64
	Project         string
	Image           string // empty for relay triggers (image managed remotely)
	Transport       string // "api" or "webhook"
	Ref             string // git ref for relay triggers, empty for the CLI
	Status          string
	StartedAt       time.Time
	CompletedAt     *time.Time // nullable
	DurationSeconds *float64   // nullable
	CommitHash      *string    // nullable
	ErrorMessage    *string    // nullable
}

// ProjectStatus summarizes the latest trigger state of one project.
type ProjectStatus struct {
	Project       string   `json:"project"`
	LatestTrigger *Record  `json:"latest_trigger,omitempty"`
	RecentHistory []Record `json:"recent_history"`
}
