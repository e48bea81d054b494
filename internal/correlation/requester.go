package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/d60-Lab/postboard/pkg/logger"
)

const instrumentationName = "github.com/d60-Lab/postboard/internal/correlation"

// DefaultTimeout applies when no WithTimeout option is given.
const DefaultTimeout = 2 * time.Second

// ErrPayloadType is reported when a responder answered with an unexpected shape.
var ErrPayloadType = errors.New("unexpected correlation payload type")

type settings struct {
	timeout      time.Duration
	pollStore    ResultStore
	pollInterval time.Duration
	log          *zap.Logger
}

type Option func(*settings)

// WithTimeout sets the per-request wait budget.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPolling switches from registry notification to re-reading the result
// store every interval. Use it only when writes cannot be pushed to waiters.
func WithPolling(store ResultStore, interval time.Duration) Option {
	return func(s *settings) {
		s.pollStore = store
		s.pollInterval = interval
	}
}

func WithLogger(l *zap.Logger) Option { return func(s *settings) { s.log = l } }

// Requester runs the register, publish, await and decode cycle for one kind
// of request whose answer is a []T.
type Requester[T any] struct {
	kind      Kind
	registry  *Registry
	publisher Publisher
	cfg       settings

	log     *zap.Logger
	tracer  trace.Tracer
	metrics requestMetrics
}

type requestMetrics struct {
	requests        metric.Int64Counter
	timeouts        metric.Int64Counter
	publishFailures metric.Int64Counter
}

func NewRequester[T any](kind Kind, registry *Registry, publisher Publisher, opts ...Option) *Requester[T] {
	cfg := settings{timeout: DefaultTimeout}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.log == nil {
		cfg.log = logger.L()
	}
	return &Requester[T]{
		kind:      kind,
		registry:  registry,
		publisher: publisher,
		cfg:       cfg,
		log:       cfg.log.With(zap.String("kind", kind.String())),
		tracer:    otel.Tracer(instrumentationName),
		metrics:   newRequestMetrics(),
	}
}

func newRequestMetrics() requestMetrics {
	meter := otel.Meter(instrumentationName)
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			return noop.Int64Counter{}
		}
		return c
	}
	return requestMetrics{
		requests:        counter("correlation.requests", "correlated requests issued"),
		timeouts:        counter("correlation.timeouts", "correlated requests that returned empty on deadline"),
		publishFailures: counter("correlation.publish_failures", "request events the publisher rejected"),
	}
}

// Kind returns the request kind this requester issues.
func (q *Requester[T]) Kind() Kind { return q.kind }

// Timeout returns the wait budget of a single request.
func (q *Requester[T]) Timeout() time.Duration { return q.cfg.timeout }

// Request blocks for at most the configured timeout and returns whatever the
// responder sent. Timeouts, publish failures and malformed answers all yield
// a nil slice; they are logged, never returned.
func (q *Requester[T]) Request(ctx context.Context, targets []string, params map[string]string) []T {
	kindAttr := metric.WithAttributes(attribute.String("kind", q.kind.String()))
	evt := RequestEvent{
		ID:       NewID(q.kind),
		Kind:     q.kind,
		Targets:  targets,
		Params:   params,
		IssuedAt: time.Now(),
	}

	ctx, span := q.tracer.Start(ctx, "correlation.request", trace.WithAttributes(
		attribute.String("correlation.kind", q.kind.String()),
		attribute.String("correlation.id", evt.ID.String()),
		attribute.Int("correlation.targets", len(targets)),
	))
	defer span.End()
	q.metrics.requests.Add(ctx, 1, kindAttr)

	// one budget for publish, store reads and the wait
	ctx, cancel := context.WithTimeout(ctx, q.cfg.timeout)
	defer cancel()

	var (
		payload any
		ok      bool
	)
	if q.cfg.pollStore != nil {
		payload, ok = q.requestByPolling(ctx, evt, span, kindAttr)
	} else {
		payload, ok = q.requestByRegistry(ctx, evt, span, kindAttr)
	}
	if !ok {
		return nil
	}

	out, err := decode[T](payload)
	if err != nil {
		q.log.Warn("discarding malformed correlation payload", zap.String("id", evt.ID.String()), zap.Error(err))
		span.RecordError(err)
		return nil
	}
	span.SetAttributes(attribute.Int("correlation.items", len(out)))
	return out
}

// Go is the asynchronous form of Request; the channel yields exactly once.
func (q *Requester[T]) Go(ctx context.Context, targets []string, params map[string]string) <-chan []T {
	out := make(chan []T, 1)
	go func() {
		out <- q.Request(ctx, targets, params)
	}()
	return out
}

func (q *Requester[T]) requestByRegistry(ctx context.Context, evt RequestEvent, span trace.Span, kindAttr metric.AddOption) (any, bool) {
	h := q.registry.Register(evt.ID)
	if err := q.publish(ctx, evt); err != nil {
		q.registry.expireHandle(h)
		q.publishFailed(ctx, evt, span, kindAttr, err)
		return nil, false
	}

	res := q.registry.Await(ctx, h, q.cfg.timeout)
	if !res.OK {
		q.metrics.timeouts.Add(ctx, 1, kindAttr)
		span.SetAttributes(attribute.Bool("correlation.timeout", true))
	}
	return res.Payload, res.OK
}

func (q *Requester[T]) requestByPolling(ctx context.Context, evt RequestEvent, span trace.Span, kindAttr metric.AddOption) (any, bool) {
	if err := q.publish(ctx, evt); err != nil {
		q.publishFailed(ctx, evt, span, kindAttr, err)
		return nil, false
	}

	key := DataKey(q.kind, evt.ID)
	data, ok := PollStore(ctx, q.cfg.pollStore, key, q.cfg.timeout, q.cfg.pollInterval)
	if !ok {
		q.metrics.timeouts.Add(ctx, 1, kindAttr)
		span.SetAttributes(attribute.Bool("correlation.timeout", true))
		q.log.Warn("correlation request timed out",
			zap.String("id", evt.ID.String()),
			zap.Duration("timeout", q.cfg.timeout),
			zap.String("mode", "poll"),
		)
		return nil, false
	}
	go func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()
		if err := q.cfg.pollStore.Delete(dctx, key); err != nil {
			q.log.Debug("delete consumed result", zap.String("key", key), zap.Error(err))
		}
	}()
	return json.RawMessage(data), true
}

// publish hands evt to the publisher but returns once ctx is done, even when
// the publisher itself ignores ctx.
func (q *Requester[T]) publish(ctx context.Context, evt RequestEvent) error {
	errc := make(chan error, 1)
	go func() { errc <- q.publisher.Publish(ctx, evt) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", evt.ID, ctx.Err())
	}
}

func (q *Requester[T]) publishFailed(ctx context.Context, evt RequestEvent, span trace.Span, kindAttr metric.AddOption, err error) {
	q.metrics.publishFailures.Add(ctx, 1, kindAttr)
	span.RecordError(err)
	span.SetStatus(codes.Error, "publish failed")
	q.log.Warn("publish correlation request failed, treating as timeout",
		zap.String("id", evt.ID.String()),
		zap.Error(err),
	)
}

func decode[T any](payload any) ([]T, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []T:
		return p, nil
	case json.RawMessage:
		return unmarshal[T](p)
	case []byte:
		return unmarshal[T](p)
	default:
		return nil, fmt.Errorf("%w: got %T, want %T", ErrPayloadType, payload, []T(nil))
	}
}

func unmarshal[T any](data []byte) ([]T, error) {
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadType, err)
	}
	return out, nil
}
