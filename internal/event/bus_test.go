package event

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/d60-Lab/postboard/internal/correlation"
)

func request(kind correlation.Kind, targets ...string) correlation.RequestEvent {
	return correlation.RequestEvent{ID: correlation.NewID(kind), Kind: kind, Targets: targets, IssuedAt: time.Now()}
}

func TestMemoryBusDispatchesByKind(t *testing.T) {
	bus := NewMemoryBus(16, zap.NewNop())
	var mu sync.Mutex
	got := map[correlation.Kind][]string{}
	record := func(ctx context.Context, evt correlation.RequestEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got[evt.Kind] = append(got[evt.Kind], evt.Targets...)
		return nil
	}
	bus.Subscribe(correlation.KindUser, record)
	bus.Subscribe(correlation.KindComment, record)

	stop := bus.Start(2)
	require.NoError(t, bus.Publish(context.Background(), request(correlation.KindUser, "u1")))
	require.NoError(t, bus.Publish(context.Background(), request(correlation.KindComment, "p1")))
	require.NoError(t, bus.Publish(context.Background(), request(correlation.KindBookmark, "p2")))
	require.NoError(t, stop(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"u1"}, got[correlation.KindUser])
	assert.Equal(t, []string{"p1"}, got[correlation.KindComment])
	assert.Empty(t, got[correlation.KindBookmark])
}

func TestMemoryBusQueueFull(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := NewMemoryBus(1, zap.New(core))

	require.NoError(t, bus.Publish(context.Background(), request(correlation.KindUser)))
	err := bus.Publish(context.Background(), request(correlation.KindUser))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, 1, bus.QueueLen())
}

func TestMemoryBusRecoversHandlerPanic(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	bus := NewMemoryBus(4, zap.New(core))
	var calls atomic.Int64
	bus.Subscribe(correlation.KindComment, func(context.Context, correlation.RequestEvent) error {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		return errors.New("second fails")
	})

	stop := bus.Start(1)
	require.NoError(t, bus.Publish(context.Background(), request(correlation.KindComment)))
	require.NoError(t, bus.Publish(context.Background(), request(correlation.KindComment)))
	require.NoError(t, stop(context.Background()))

	assert.Equal(t, int64(2), calls.Load())
	assert.Equal(t, 1, logs.FilterMessage("panic recovered in event handler").Len())
	assert.Equal(t, 1, logs.FilterMessage("failed to process request").Len())
}

func TestMemoryBusRejectsAfterStop(t *testing.T) {
	bus := NewMemoryBus(4, zap.NewNop())
	stop := bus.Start(1)
	require.NoError(t, stop(context.Background()))
	assert.ErrorIs(t, bus.Publish(context.Background(), request(correlation.KindUser)), ErrStopped)
}

func TestMemoryBusStopAccountsForEveryAcceptedRequest(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	bus := NewMemoryBus(64, zap.New(core))
	var handled atomic.Int64
	bus.Subscribe(correlation.KindUser, func(context.Context, correlation.RequestEvent) error {
		handled.Add(1)
		return nil
	})
	stop := bus.Start(2)

	var accepted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := bus.Publish(context.Background(), request(correlation.KindUser, "u1"))
				switch {
				case err == nil:
					accepted.Add(1)
				case errors.Is(err, ErrStopped):
					return
				default:
					time.Sleep(time.Millisecond)
				}
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, stop(context.Background()))
	wg.Wait()

	var dropped int64
	for _, e := range logs.FilterMessage("bus stopped with pending requests").All() {
		dropped += e.ContextMap()["pending"].(int64)
	}
	assert.Equal(t, accepted.Load(), handled.Load()+dropped)
	assert.Zero(t, bus.QueueLen())
}

func TestRedisStreamBusRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus, err := NewRedisStreamBus(context.Background(), client, "pb:requests", "pb", zap.NewNop())
	require.NoError(t, err)
	// creating the group twice is tolerated
	_, err = NewRedisStreamBus(context.Background(), client, "pb:requests", "pb", zap.NewNop())
	require.NoError(t, err)

	received := make(chan correlation.RequestEvent, 1)
	bus.Subscribe(correlation.KindInteraction, func(_ context.Context, evt correlation.RequestEvent) error {
		received <- evt
		return nil
	})
	bus.block = 50 * time.Millisecond
	stop := bus.Start(1)
	defer stop(context.Background())

	sent := request(correlation.KindInteraction, "p1", "p2")
	sent.Params = map[string]string{"type": "LIKE"}
	require.NoError(t, bus.Publish(context.Background(), sent))

	select {
	case evt := <-received:
		assert.Equal(t, sent.ID, evt.ID)
		assert.Equal(t, []string{"p1", "p2"}, evt.Targets)
		assert.Equal(t, "LIKE", evt.Param("type"))
	case <-time.After(3 * time.Second):
		t.Fatal("request not delivered")
	}
}

func TestRedisStreamBusSendsFailuresToDLQ(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus, err := NewRedisStreamBus(context.Background(), client, "pb:requests", "pb", zap.NewNop())
	require.NoError(t, err)
	bus.Subscribe(correlation.KindUser, func(context.Context, correlation.RequestEvent) error {
		return errors.New("db down")
	})
	bus.block = 50 * time.Millisecond
	stop := bus.Start(1)
	defer stop(context.Background())

	require.NoError(t, bus.Publish(context.Background(), request(correlation.KindUser, "u1")))

	assert.Eventually(t, func() bool {
		n, err := client.XLen(context.Background(), "pb:requests-DLQ").Result()
		return err == nil && n == 1
	}, 3*time.Second, 20*time.Millisecond)
}
