package ports

import (
	"context"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
)

// StreamController owns the lifecycle of stream workers. Every error it
// returns is a classified *errors.AppError.
type StreamController interface {
	Start(ctx context.Context, req domain.StreamRequest) (domain.WorkerInstance, error)
	Stop(ctx context.Context, meetingID string) error
	ListWorkers(ctx context.Context) ([]domain.WorkerInstance, domain.Capacity, error)
	Ready(ctx context.Context) error
}
