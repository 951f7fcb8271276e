package audit

import (
	"context"
	"sync"

	"github.com/docstack/docstack/pkg/observability"
)

// AsyncLogger decouples audit writes from the request path. Append
// enqueues onto a bounded buffer and returns immediately; a single
// worker drains the buffer into the wrapped logger. When the buffer is
// full the event is dropped and counted rather than blocking the
// caller.
type AsyncLogger struct {
	inner   Logger
	events  chan *Event
	done    chan struct{}
	once    sync.Once
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewAsyncLogger wraps inner with a buffer of the given size. bufferSize
// <= 0 uses 1024. logger and metrics may be nil.
func NewAsyncLogger(inner Logger, bufferSize int, logger *observability.Logger, metrics *observability.Metrics) *AsyncLogger {
	if bufferSize <= 0 {
		bufferSize = 1024
	}

	a := &AsyncLogger{
		inner:   inner,
		events:  make(chan *Event, bufferSize),
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics,
	}
	go a.run()
	return a
}

func (a *AsyncLogger) run() {
	defer close(a.done)
	for event := range a.events {
		if err := a.inner.Append(context.Background(), event); err != nil {
			a.count(event.EventType, "failure")
			if a.logger != nil {
				a.logger.WithError(err).Warn("audit write failed",
					"event_type", string(event.EventType))
			}
			continue
		}
		a.count(event.EventType, string(event.Status))
	}
}

// Append enqueues the event without blocking. A full buffer drops the
// event.
func (a *AsyncLogger) Append(ctx context.Context, event *Event) error {
	select {
	case a.events <- event:
	default:
		if a.metrics != nil {
			a.metrics.AuditDroppedTotal.Inc()
		}
		if a.logger != nil {
			a.logger.Warn("audit buffer full, event dropped",
				"event_type", string(event.EventType))
		}
	}
	return nil
}

// Close stops accepting events, drains the buffer into the wrapped
// logger and closes it.
func (a *AsyncLogger) Close() error {
	a.once.Do(func() {
		close(a.events)
	})
	<-a.done
	return a.inner.Close()
}

func (a *AsyncLogger) count(eventType EventType, status string) {
	if a.metrics != nil {
		a.metrics.AuditEventsTotal.WithLabelValues(string(eventType), status).Inc()
	}
}
