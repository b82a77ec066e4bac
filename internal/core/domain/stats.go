package domain

import "time"

// StreamStats is a point-in-time summary of controller activity since
// process start.
type StreamStats struct {
	Starts           map[string]int `json:"starts"`
	Stops            map[string]int `json:"stops"`
	Load             int            `json:"load"`
	Limit            int            `json:"limit"`
	Utilization      float64        `json:"utilization"`
	AdmissionWaitMax time.Duration  `json:"admissionWaitMax"`
	Timestamp        time.Time      `json:"timestamp"`
}
