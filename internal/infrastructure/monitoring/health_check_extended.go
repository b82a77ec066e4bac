package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/circuitbreaker"

	"github.com/redis/go-redis/v9"
)

// AddRedisCheck adds a Redis health check
func (h *HealthChecker) AddRedisCheck(client redis.UniversalClient, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout)
}

// AddRuntimeCheck verifies the container runtime answers.
func (h *HealthChecker) AddRuntimeCheck(controller ports.StreamController, timeout time.Duration) {
	h.AddCheck("runtime", controller.Ready, timeout)
}

// AddBreakerCheck fails while the breaker is open so load balancers can
// route start requests elsewhere.
func (h *HealthChecker) AddBreakerCheck(name string, stats func() (circuitbreaker.Stats, bool)) {
	h.AddCheck(name, func(context.Context) error {
		s, ok := stats()
		if ok && s.State == circuitbreaker.StateOpen {
			return fmt.Errorf("circuit breaker open since %s", s.StateChangeTime.Format(time.RFC3339))
		}
		return nil
	}, time.Second)
}
