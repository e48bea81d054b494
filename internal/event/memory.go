package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/postboard/internal/correlation"
	"github.com/d60-Lab/postboard/pkg/logger"
)

type job struct {
	evt   correlation.RequestEvent
	enqAt time.Time
}

// MemoryBus 进程内异步总线：有界队列 + 若干 worker
// 队列满时 Publish 立即失败，调用方按超时处理
type MemoryBus struct {
	mu       sync.RWMutex
	handlers map[correlation.Kind][]Handler

	// sendMu 保证 stop 之后不再有任务入队
	sendMu  sync.RWMutex
	stopped bool

	ch             chan job
	handlerTimeout time.Duration
	log            *zap.Logger
}

func NewMemoryBus(queueSize int, log *zap.Logger) *MemoryBus {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = logger.L()
	}
	return &MemoryBus{
		handlers:       make(map[correlation.Kind][]Handler),
		ch:             make(chan job, queueSize),
		handlerTimeout: 5 * time.Second,
		log:            log.With(zap.String("bus", "memory")),
	}
}

func (b *MemoryBus) Subscribe(kind correlation.Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

func (b *MemoryBus) Publish(_ context.Context, evt correlation.RequestEvent) error {
	b.sendMu.RLock()
	defer b.sendMu.RUnlock()
	if b.stopped {
		return ErrStopped
	}
	select {
	case b.ch <- job{evt: evt, enqAt: time.Now()}:
		return nil
	default:
		b.log.Warn("bus queue full, drop request", zap.String("id", evt.ID.String()), zap.String("type", evt.Type()))
		return ErrQueueFull
	}
}

// QueueLen 返回当前队列长度（采样值）
func (b *MemoryBus) QueueLen() int { return len(b.ch) }

func (b *MemoryBus) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case j := <-b.ch:
					b.dispatch(j)
				case <-stopCh:
					return
				}
			}
		}()
	}

	return func(ctx context.Context) error {
		b.sendMu.Lock()
		b.stopped = true
		b.sendMu.Unlock()
		// 等待队列自然排空一小段时间
		drain := time.NewTimer(2 * time.Second)
		defer drain.Stop()
	wait:
		for len(b.ch) > 0 {
			select {
			case <-drain.C:
				break wait
			case <-ctx.Done():
				break wait
			case <-time.After(20 * time.Millisecond):
			}
		}
		close(stopCh)
		wg.Wait()
		if n := b.dropPending(); n > 0 {
			b.log.Warn("bus stopped with pending requests", zap.Int("pending", n))
		}
		return nil
	}
}

// dropPending empties the queue once the workers are gone; the dropped
// requests time out on the caller side.
func (b *MemoryBus) dropPending() int {
	n := 0
	for {
		select {
		case j := <-b.ch:
			n++
			b.log.Debug("drop pending request", zap.String("id", j.evt.ID.String()), zap.String("type", j.evt.Type()))
		default:
			return n
		}
	}
}

func (b *MemoryBus) dispatch(j job) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[j.evt.Kind]...)
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.log.Debug("no handler for request", zap.String("type", j.evt.Type()))
		return
	}

	for _, h := range handlers {
		b.invoke(h, j)
	}
}

func (b *MemoryBus) invoke(h Handler, j job) {
	ctx, cancel := context.WithTimeout(context.Background(), b.handlerTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("panic recovered in event handler",
				zap.String("type", j.evt.Type()),
				zap.String("id", j.evt.ID.String()),
				zap.String("panic", fmt.Sprint(r)),
			)
		}
	}()
	if err := h(ctx, j.evt); err != nil {
		b.log.Error("failed to process request", zap.String("type", j.evt.Type()), zap.String("id", j.evt.ID.String()), zap.Error(err))
		return
	}
	b.log.Debug("request processed", zap.String("type", j.evt.Type()), zap.Duration("latency", time.Since(j.enqAt)))
}

var _ Bus = (*MemoryBus)(nil)
