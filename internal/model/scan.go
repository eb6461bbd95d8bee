package model

import "time"

// ScanStatus represents the terminal state of a scan run.
type ScanStatus string

const (
	ScanRunning   ScanStatus = "running"
	ScanCompleted ScanStatus = "completed"
	ScanFailed    ScanStatus = "failed"
)

// MessageStatus records the outcome of one inbox message within a scan.
type MessageStatus string

const (
	MessageProcessed MessageStatus = "processed"
	MessageFailed    MessageStatus = "failed"
	MessageSkipped   MessageStatus = "skipped"
)

// EmailRecord stores the raw text of one ingested email. Sources reference
// it for provenance.
type EmailRecord struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	RawText   string    `json:"raw_text"`
	Network   string    `json:"network,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ScanRun tracks one batch scan invocation. Counters accumulate while the
// run is "running"; the row is immutable once it reaches a terminal status.
type ScanRun struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	Status             ScanStatus `json:"status"`
	MaxMessages        int        `json:"max_messages"`
	MessagesConsidered int        `json:"messages_considered"`
	MessagesProcessed  int        `json:"messages_processed"`
	MessagesSkipped    int        `json:"messages_skipped"`
	MessagesFailed     int        `json:"messages_failed"`
	ExpertsAdded       int        `json:"experts_added"`
	ExpertsUpdated     int        `json:"experts_updated"`
	ExpertsMerged      int        `json:"experts_merged"`
	ErrorDetails       []string   `json:"error_details,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// ScannedMessage is the idempotency marker for one inbox message within one
// project. Its presence is the sole authority for "already processed": a
// row is written immediately after every attempt, success or not, so a
// later scan never retries the message.
type ScannedMessage struct {
	ID                string        `json:"id"`
	ProjectID         string        `json:"project_id"`
	ProviderMessageID string        `json:"provider_message_id"`
	Subject           string        `json:"subject,omitempty"`
	Sender            string        `json:"sender,omitempty"`
	ReceivedAt        *time.Time    `json:"received_at,omitempty"`
	Status            MessageStatus `json:"status"`
	ScannedAt         time.Time     `json:"scanned_at"`
}
