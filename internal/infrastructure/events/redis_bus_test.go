package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ulearning-intl/bigbluebutton-streaming/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type collectingPublisher struct {
	mu     sync.Mutex
	events []domain.StreamEvent
}

func (c *collectingPublisher) Publish(e domain.StreamEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collectingPublisher) snapshot() []domain.StreamEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.StreamEvent(nil), c.events...)
}

func TestRedisBus_RelaysBetweenInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	newClient := func() *redis.Client {
		c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	localA, localB := &collectingPublisher{}, &collectingPublisher{}
	busA := NewRedisBus(newClient(), "", localA, zap.NewNop().Sugar())
	busB := NewRedisBus(newClient(), "", localB, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = busA.Run(ctx) }()
	go func() { _ = busB.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(DefaultChannel)[DefaultChannel] == 2
	}, time.Second, 5*time.Millisecond)

	busA.Publish(domain.StreamEvent{Type: domain.EventStarted, MeetingID: "m1"})

	require.Eventually(t, func() bool { return len(localB.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "m1", localB.snapshot()[0].MeetingID)

	// the publishing instance sees its own event exactly once
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, localA.snapshot(), 1)
}

func TestRedisBus_PublishNeverBlocks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	local := &collectingPublisher{}
	bus := NewRedisBus(client, "", local, zap.NewNop().Sugar())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			bus.Publish(domain.StreamEvent{Type: domain.EventStopped, MeetingID: "m"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked without a running relay loop")
	}
	assert.Len(t, local.snapshot(), 1000)
}
