package domain

import (
	"sort"
	"strconv"
)

// StreamRequest asks for a meeting to be relayed to an RTMP destination.
type StreamRequest struct {
	MeetingID        string
	HidePresentation bool
	RTMPURL          string
}

// MeetingCredential is fetched for every start and never kept.
type MeetingCredential struct {
	AttendeePassword string
}

// Environment variable names understood by the worker image.
const (
	EnvMeetingID        = "MEETING_ID"
	EnvAttendeePassword = "ATTENDEE_PW"
	EnvHidePresentation = "HIDE_PRESENTATION"
	EnvRTMPURL          = "RTMP_URL"
)

// Bind describes a host path mounted into the worker.
type Bind struct {
	Source string
	Target string
}

func (b Bind) String() string {
	return b.Source + ":" + b.Target
}

// WorkerSpec is everything the runtime needs to create one worker.
type WorkerSpec struct {
	Name        string
	Image       string
	Environment map[string]string
	AutoRemove  bool
	Binds       []Bind
	Labels      map[string]string
}

// NewWorkerEnvironment maps a request and its credential onto the worker's
// environment.
func NewWorkerEnvironment(req StreamRequest, cred MeetingCredential) map[string]string {
	return map[string]string{
		EnvMeetingID:        req.MeetingID,
		EnvAttendeePassword: cred.AttendeePassword,
		EnvHidePresentation: strconv.FormatBool(req.HidePresentation),
		EnvRTMPURL:          req.RTMPURL,
	}
}

// EnvList renders the environment as sorted KEY=VALUE pairs.
func (s WorkerSpec) EnvList() []string {
	keys := make([]string, 0, len(s.Environment))
	for k := range s.Environment {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+s.Environment[k])
	}
	return env
}

// Redacted returns a copy safe for logs: the attendee password is masked.
func (s WorkerSpec) Redacted() WorkerSpec {
	out := s
	out.Environment = make(map[string]string, len(s.Environment))
	for k, v := range s.Environment {
		if k == EnvAttendeePassword && v != "" {
			v = "******"
		}
		out.Environment[k] = v
	}
	return out
}
