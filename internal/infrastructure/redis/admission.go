package redis

import (
	"context"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/ports"
	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/services"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/config"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockPrefix = "bbb-streaming:lock:"

// NewAdmissionGuard picks the admission backend from configuration. When the
// redis backend is selected but unreachable it falls back to the in-process
// guard; the returned client is nil in that case.
func NewAdmissionGuard(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (ports.AdmissionGuard, *redis.Client) {
	if cfg.Admission.Backend != config.AdmissionRedis {
		return services.NewLocalAdmissionGuard(), nil
	}

	client, err := NewRedisClient(ctx, cfg, logger)
	if err != nil {
		logger.Warnw("failed to connect to Redis, falling back to in-process admission",
			"error", err,
			"address", cfg.Redis.Address,
		)
		return services.NewLocalAdmissionGuard(), nil
	}

	locks := distributed.NewLockManager(client, lockPrefix)
	return services.NewRedisAdmissionGuard(locks, cfg.Admission.LockKey, cfg.Admission.LockTTL, cfg.Admission.LockWait, logger), client
}
