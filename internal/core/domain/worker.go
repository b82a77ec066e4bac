package domain

import "strings"

type InstanceState string

const (
	StateCreated    InstanceState = "created"
	StateRunning    InstanceState = "running"
	StateRestarting InstanceState = "restarting"
	StatePaused     InstanceState = "paused"
	StateRemoving   InstanceState = "removing"
	StateExited     InstanceState = "exited"
	StateDead       InstanceState = "dead"
	StateAbsent     InstanceState = "absent"
)

// ParseInstanceState maps a runtime state string; unknown values are kept.
func ParseInstanceState(s string) InstanceState {
	return InstanceState(strings.ToLower(strings.TrimSpace(s)))
}

// WorkerInstance is the runtime's view of one worker.
type WorkerInstance struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Image string        `json:"image"`
	State InstanceState `json:"state"`
}

// InstanceHandle identifies a created instance.
type InstanceHandle struct {
	ID   string
	Name string
}

// Capacity is the admission view of the host.
type Capacity struct {
	Load  int `json:"load"`
	Limit int `json:"limit"`
}

// Available reports whether another worker may be admitted.
func (c Capacity) Available() bool {
	return c.Load < c.Limit
}
