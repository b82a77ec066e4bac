package domain

import "time"

type StreamEventType string

const (
	EventStarted  StreamEventType = "started"
	EventStopped  StreamEventType = "stopped"
	EventRejected StreamEventType = "rejected"
	EventFailed   StreamEventType = "failed"
)

// StreamEvent is published after every lifecycle decision.
type StreamEvent struct {
	Type       StreamEventType `json:"type"`
	MeetingID  string          `json:"meetingId"`
	WorkerName string          `json:"workerName,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	At         time.Time       `json:"at"`
}
