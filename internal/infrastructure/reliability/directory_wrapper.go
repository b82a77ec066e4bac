package reliability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/circuitbreaker"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/retry"

	"go.uber.org/zap"
)

// DirectoryWrapper wraps a MeetingDirectory with retry logic and a circuit
// breaker. Only transport failures are retried or counted against the
// breaker; a well-formed "meeting not found" proves the directory is alive.
// Each attempt gets its own attemptTimeout inside the caller's deadline, so
// a hung first attempt still leaves budget for a retry.
type DirectoryWrapper struct {
	directory      ports.MeetingDirectory
	attemptTimeout time.Duration
	logger         *zap.SugaredLogger

	retryConfig    retry.Config
	circuitBreaker *circuitbreaker.CircuitBreaker
}

// NewDirectoryWrapper creates a new wrapper with retry and circuit breaker.
// A nil cbConfig disables the breaker; a zero attemptTimeout leaves attempts
// bounded only by the caller's context.
func NewDirectoryWrapper(
	directory ports.MeetingDirectory,
	attemptTimeout time.Duration,
	retryConfig retry.Config,
	cbConfig *circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *DirectoryWrapper {
	retryConfig.ShouldRetry = isTransportFailure

	w := &DirectoryWrapper{
		directory:      directory,
		attemptTimeout: attemptTimeout,
		logger:         logger,
		retryConfig:    retryConfig,
	}

	if cbConfig != nil {
		cfg := *cbConfig
		cfg.IsFailure = isTransportFailure
		w.circuitBreaker = circuitbreaker.New(cfg)
		w.circuitBreaker.OnStateChange(func(from, to circuitbreaker.State) {
			logger.Infow("meeting directory circuit breaker state changed",
				"from", from.String(),
				"to", to.String(),
			)
		})
	}

	return w
}

func isTransportFailure(err error) bool {
	return errors.Is(err, domain.ErrDirectoryUnavailable)
}

// GetMeetingInfo looks up a meeting with retry logic
func (w *DirectoryWrapper) GetMeetingInfo(ctx context.Context, meetingID string) (domain.MeetingCredential, error) {
	return retry.RetryWithResult(ctx, w.retryConfig, func() (domain.MeetingCredential, error) {
		return w.attempt(ctx, meetingID)
	})
}

func (w *DirectoryWrapper) attempt(ctx context.Context, meetingID string) (domain.MeetingCredential, error) {
	if w.attemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.attemptTimeout)
		defer cancel()
	}

	if w.circuitBreaker == nil {
		return w.directory.GetMeetingInfo(ctx, meetingID)
	}

	cred, err := circuitbreaker.ExecuteWithResult(ctx, w.circuitBreaker, func() (domain.MeetingCredential, error) {
		return w.directory.GetMeetingInfo(ctx, meetingID)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return cred, fmt.Errorf("%w: %v", domain.ErrDirectoryUnavailable, err)
	}
	return cred, err
}

// GetCircuitBreakerStats returns circuit breaker statistics
func (w *DirectoryWrapper) GetCircuitBreakerStats() (circuitbreaker.Stats, bool) {
	if w.circuitBreaker == nil {
		return circuitbreaker.Stats{}, false
	}
	return w.circuitBreaker.GetStats(), true
}

var _ ports.MeetingDirectory = (*DirectoryWrapper)(nil)
