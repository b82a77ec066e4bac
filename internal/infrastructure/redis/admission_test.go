package redis

import (
	"context"
	"testing"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/services"
	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewAdmissionGuard_Local(t *testing.T) {
	cfg := config.DefaultConfig()

	guard, client := NewAdmissionGuard(context.Background(), cfg, zap.NewNop().Sugar())

	assert.IsType(t, &services.LocalAdmissionGuard{}, guard)
	assert.Nil(t, client)
}

func TestNewAdmissionGuard_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.DefaultConfig()
	cfg.Admission.Backend = config.AdmissionRedis
	cfg.Redis.Address = mr.Addr()

	guard, client := NewAdmissionGuard(context.Background(), cfg, zap.NewNop().Sugar())
	require.NotNil(t, client)
	t.Cleanup(func() { _ = CloseRedisClient(client) })
	assert.IsType(t, &services.RedisAdmissionGuard{}, guard)

	release, err := guard.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, mr.Exists(lockPrefix+cfg.Admission.LockKey))
	release()
	assert.False(t, mr.Exists(lockPrefix+cfg.Admission.LockKey))
}

func TestNewAdmissionGuard_RedisUnreachableFallsBack(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := config.DefaultConfig()
	cfg.Admission.Backend = config.AdmissionRedis
	cfg.Redis.Address = addr

	guard, client := NewAdmissionGuard(context.Background(), cfg, zap.NewNop().Sugar())
	assert.Nil(t, client)
	assert.IsType(t, &services.LocalAdmissionGuard{}, guard)
}
