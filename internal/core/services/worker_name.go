package services

const (
	DefaultWorkerImage   = "bbb-stream:v1.0"
	DefaultNamePrefix    = "bbb-stream-"
	DefaultControlSocket = "/var/run/docker.sock"

	// LabelMeetingID is set on every worker so operators can map a
	// container back to its meeting.
	LabelMeetingID = "bbb-streaming.meeting-id"
)

// DeriveWorkerName returns the deterministic worker name for a meeting.
func DeriveWorkerName(meetingID string) string {
	return deriveWorkerName(DefaultNamePrefix, meetingID)
}

func deriveWorkerName(prefix, meetingID string) string {
	return prefix + meetingID
}
