package ports

import (
	"context"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
)

// WorkerRuntime is the execution substrate that owns worker instances.
type WorkerRuntime interface {
	// ListInstances returns every visible instance of image, including
	// exited ones the runtime has not removed yet.
	ListInstances(ctx context.Context, image string) ([]domain.WorkerInstance, error)
	// CreateInstance fails with domain.ErrNameConflict when spec.Name is taken
	// and domain.ErrImageNotFound when the image is missing.
	CreateInstance(ctx context.Context, spec domain.WorkerSpec) (domain.InstanceHandle, error)
	StartInstance(ctx context.Context, handle domain.InstanceHandle) error
	// RemoveInstance fails with domain.ErrInstanceNotFound when nothing has
	// that name.
	RemoveInstance(ctx context.Context, name string, force bool) error
	Ping(ctx context.Context) error
}

// MeetingDirectory resolves meeting credentials from an external authority.
type MeetingDirectory interface {
	GetMeetingInfo(ctx context.Context, meetingID string) (domain.MeetingCredential, error)
}

// AdmissionGuard serializes the list-compare-create sequence of start.
type AdmissionGuard interface {
	Acquire(ctx context.Context) (release func(), err error)
}

// EventPublisher receives lifecycle events. Publish must not block.
type EventPublisher interface {
	Publish(event domain.StreamEvent)
}

// StreamMetrics records lifecycle outcomes.
type StreamMetrics interface {
	RecordStart(outcome string)
	RecordStop(outcome string)
	SetLoad(load, limit int)
	ObserveAdmissionWait(seconds float64)
}
