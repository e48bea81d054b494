package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/pkg/logger"
)

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// RedisStreamBus carries request events over a Redis stream with a consumer
// group, so any instance can answer a request published by another.
type RedisStreamBus struct {
	client *redis.Client
	stream string
	group  string
	maxLen int64
	block  time.Duration

	mu       sync.RWMutex
	handlers map[correlation.Kind][]Handler

	log *zap.Logger
}

// NewRedisStreamBus creates the stream and consumer group if missing.
func NewRedisStreamBus(ctx context.Context, client *redis.Client, stream, group string, log *zap.Logger) (*RedisStreamBus, error) {
	if stream == "" || group == "" {
		return nil, fmt.Errorf("redis stream bus: stream and group are required")
	}
	if log == nil {
		log = logger.L()
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("redis stream bus: create group: %w", err)
	}
	return &RedisStreamBus{
		client:   client,
		stream:   stream,
		group:    group,
		maxLen:   100000,
		block:    time.Second,
		handlers: make(map[correlation.Kind][]Handler),
		log:      log.With(zap.String("bus", "redis-stream"), zap.String("stream", stream)),
	}, nil
}

func (b *RedisStreamBus) Subscribe(kind correlation.Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

func (b *RedisStreamBus) Publish(ctx context.Context, evt correlation.RequestEvent) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("redis stream bus: marshal: %w", err)
	}
	env, err := json.Marshal(envelope{Type: evt.Type(), Payload: data})
	if err != nil {
		return fmt.Errorf("redis stream bus: envelope: %w", err)
	}
	err = b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{"event": string(env)},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis stream bus: emit: %w", err)
	}
	b.log.Debug("request emitted", zap.String("type", evt.Type()), zap.String("id", evt.ID.String()))
	return nil
}

func (b *RedisStreamBus) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		consumer := fmt.Sprintf("consumer-%d-%s", i, uuid.NewString()[:8])
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.consume(ctx, consumer)
		}()
	}
	b.log.Info("redis stream bus started", zap.Int("workers", workers))

	return func(stopCtx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

func (b *RedisStreamBus) consume(ctx context.Context, consumer string) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.group,
			Consumer: consumer,
			Streams:  []string{b.stream, ">"},
			Count:    16,
			Block:    b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			b.log.Error("error reading from stream", zap.String("consumer", consumer), zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				b.handleMessage(ctx, msg)
				if err := b.client.XAck(ctx, b.stream, b.group, msg.ID).Err(); err != nil {
					b.log.Error("failed to acknowledge message", zap.String("msg_id", msg.ID), zap.Error(err))
				}
			}
		}
	}
}

func (b *RedisStreamBus) handleMessage(ctx context.Context, msg redis.XMessage) {
	raw, ok := msg.Values["event"].(string)
	if !ok {
		b.pushToDLQ(ctx, msg.Values, "missing event field")
		return
	}
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		b.pushToDLQ(ctx, msg.Values, "bad envelope")
		return
	}
	var evt correlation.RequestEvent
	if err := json.Unmarshal(env.Payload, &evt); err != nil {
		b.pushToDLQ(ctx, msg.Values, "bad payload")
		return
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[evt.Kind]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			defer func() {
				if r := recover(); r != nil {
					b.log.Error("handler panic recovered", zap.String("type", env.Type), zap.String("panic", fmt.Sprint(r)))
					b.pushToDLQ(ctx, msg.Values, "panic")
				}
			}()
			if err := h(hctx, evt); err != nil {
				b.log.Error("handler error", zap.String("type", env.Type), zap.Error(err))
				b.pushToDLQ(ctx, msg.Values, err.Error())
			}
		}()
	}
}

// pushToDLQ 将原始消息写入 <stream>-DLQ 以便排查或重放
func (b *RedisStreamBus) pushToDLQ(ctx context.Context, values map[string]any, reason string) {
	dlq := b.stream + "-DLQ"
	vals := make(map[string]any, len(values)+1)
	for k, v := range values {
		vals[k] = v
	}
	vals["reason"] = reason
	if err := b.client.XAdd(ctx, &redis.XAddArgs{Stream: dlq, Values: vals}).Err(); err != nil {
		b.log.Error("failed to push to DLQ", zap.String("stream", dlq), zap.Error(err))
		return
	}
	b.log.Warn("event pushed to DLQ", zap.String("stream", dlq), zap.String("reason", reason))
}

var _ Bus = (*RedisStreamBus)(nil)
