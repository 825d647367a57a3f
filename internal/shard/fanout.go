package shard

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/jkaninda/mjumbe/internal/gateway"
	"github.com/jkaninda/mjumbe/internal/observability"
)

// fanout delivers dispatch events to the sink in wire order without ever
// blocking the session loop. The queue is unbounded: backpressure on the
// socket would stall heartbeats, so a slow sink costs memory instead of the
// connection.
type fanout struct {
	shardID    int
	sink       gateway.EventSink
	log        *slog.Logger
	metrics    *observability.MetricsCollector
	shardLabel string

	mu    sync.Mutex
	queue []*gateway.InboundEvent
	wake  chan struct{}
}

func newFanout(shardID int, sink gateway.EventSink, log *slog.Logger, metrics *observability.MetricsCollector, shardLabel string) *fanout {
	return &fanout{
		shardID:    shardID,
		sink:       sink,
		log:        log,
		metrics:    metrics,
		shardLabel: shardLabel,
		wake:       make(chan struct{}, 1),
	}
}

// enqueue appends an event and wakes the dispatcher. Called only from the
// session loop, so queue order is wire order.
func (f *fanout) enqueue(ev *gateway.InboundEvent) {
	f.mu.Lock()
	f.queue = append(f.queue, ev)
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// run drains the queue one event at a time until ctx is canceled. Events
// still queued at cancellation are dropped; the session is gone and a resume
// will not replay them anyway.
func (f *fanout) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.wake:
		}
		for {
			f.mu.Lock()
			if len(f.queue) == 0 {
				f.mu.Unlock()
				break
			}
			ev := f.queue[0]
			f.queue[0] = nil
			f.queue = f.queue[1:]
			f.mu.Unlock()

			f.deliver(ctx, ev)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

// deliver hands one event to the sink with a panic boundary: a faulty
// consumer loses its event, not the connection.
func (f *fanout) deliver(ctx context.Context, ev *gateway.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("event sink panicked",
				slog.String("kind", ev.Kind),
				slog.Int64("seq", ev.Sequence),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			if f.metrics != nil {
				f.metrics.SinkPanicsTotal.WithLabelValues(f.shardLabel).Inc()
			}
		}
	}()
	f.sink.Deliver(ctx, ev)
	if f.metrics != nil {
		f.metrics.EventsDispatchedTotal.WithLabelValues(f.shardLabel, ev.Kind).Inc()
	}
}
