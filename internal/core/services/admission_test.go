package services

import (
	"context"
	"testing"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/pkg/distributed"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalAdmissionGuard_Exclusive(t *testing.T) {
	g := NewLocalAdmissionGuard()

	release, err := g.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release2, err := g.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestRedisAdmissionGuard_Exclusive(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locks := distributed.NewLockManager(client, "bbb-streaming:")
	first := NewRedisAdmissionGuard(locks, "admission", time.Second, time.Second, zap.NewNop().Sugar())
	second := NewRedisAdmissionGuard(locks, "admission", time.Second, 30*time.Millisecond, zap.NewNop().Sugar())

	release, err := first.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, mr.Exists("bbb-streaming:admission"))

	_, err = second.Acquire(context.Background())
	assert.ErrorIs(t, err, distributed.ErrLockTimeout)

	release()
	assert.False(t, mr.Exists("bbb-streaming:admission"))

	release, err = second.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

func TestMetricsService_Snapshot(t *testing.T) {
	m := NewMetricsService()
	m.RecordStart(OutcomeSuccess)
	m.RecordStart(OutcomeSuccess)
	m.RecordStart(OutcomeRejected)
	m.RecordStop(OutcomeAbsent)
	m.SetLoad(3, 4)
	m.ObserveAdmissionWait(0.5)
	m.ObserveAdmissionWait(0.1)

	s := m.Snapshot()
	assert.Equal(t, 2, s.Starts[OutcomeSuccess])
	assert.Equal(t, 1, s.Starts[OutcomeRejected])
	assert.Equal(t, 1, s.Stops[OutcomeAbsent])
	assert.InDelta(t, 0.75, s.Utilization, 1e-9)
	assert.Equal(t, 500*time.Millisecond, s.AdmissionWaitMax)

	s.Starts[OutcomeSuccess] = 100
	assert.Equal(t, 2, m.Snapshot().Starts[OutcomeSuccess], "snapshot must be a copy")
}

func TestMetricsService_UtilizationWithZeroLimit(t *testing.T) {
	m := NewMetricsService()
	m.SetLoad(0, 0)
	assert.Equal(t, 1.0, m.Snapshot().Utilization)
}

func TestMultiMetrics_FansOut(t *testing.T) {
	a, b := NewMetricsService(), NewMetricsService()
	mm := MultiMetrics{a, b}
	mm.RecordStart(OutcomeSuccess)
	mm.SetLoad(1, 2)

	assert.Equal(t, 1, a.Snapshot().Starts[OutcomeSuccess])
	assert.Equal(t, 1, b.Snapshot().Starts[OutcomeSuccess])
	assert.Equal(t, 2, b.Snapshot().Limit)
}
