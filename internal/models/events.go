package models

import "time"

// Event names used on the SSE stream and the notification queue
const (
	EventStatus     = "status"
	EventProgress   = "progress"
	EventMessage    = "message"
	EventCompletion = "completion"
	EventError      = "error"
)

// StatusEvent is pushed on every campaign status transition
type StatusEvent struct {
	CampaignID     string `json:"campaign_id"`
	Status         string `json:"status"`
	PreviousStatus string `json:"previous_status"`
}

// ProgressEvent is a full progress snapshot. Speed is contacts per minute;
// ETA is nil when unknown (zero speed or campaign already complete).
type ProgressEvent struct {
	CampaignID string  `json:"campaign_id"`
	Total      int     `json:"total"`
	Processed  int     `json:"processed"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	Skipped    int     `json:"skipped"`
	Percent    float64 `json:"percent"`
	Speed      float64 `json:"speed"`
	ETASeconds *int64  `json:"eta_seconds"`
}

// MessageEvent is pushed for every delivered, failed or skipped item
type MessageEvent struct {
	CampaignID string `json:"campaign_id"`
	MessageID  string `json:"message_id"`
	ProfileID  string `json:"profile_id"`
	Status     string `json:"status"`
	Channel    string `json:"channel,omitempty"`
	Error      string `json:"error,omitempty"`
}

// CompletionEvent carries the final statistics of a finished campaign
type CompletionEvent struct {
	CampaignID string     `json:"campaign_id"`
	Total      int        `json:"total"`
	Successful int        `json:"successful"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	StartedAt  *time.Time `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
}

// Error severities used by escalation events
const (
	SeverityDelivery = "delivery"
	SeverityProfile  = "profile"
	SeverityNetwork  = "network"
	SeverityCritical = "critical"
)

// ErrorEvent is pushed for every escalated failure
type ErrorEvent struct {
	CampaignID string `json:"campaign_id"`
	ProfileID  string `json:"profile_id,omitempty"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
}

// ItemResult is one queue item outcome reported by a profile worker to the
// executor
type ItemResult struct {
	CampaignID string
	ItemID     string
	ProfileID  string
	ContactID  string
	Phone      string
	Channel    string
	Status     string // sent, failed or skipped
	Error      string
	Attempts   int
}
