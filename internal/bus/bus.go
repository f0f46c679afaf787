// Package bus carries inbound events from the channel to the dispatcher
// over a buffered in-process queue.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"gembot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based queue decoupling the Telegram poller
// from aggregation and dispatch.
type InMemoryBus struct {
	inbound chan domain.Event
	mu      sync.RWMutex
	closed  bool
	logger  *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		inbound: make(chan domain.Event, bufferSize),
		logger:  logger,
	}
}

// Publish enqueues an event. Blocks up to 10 seconds if the queue is full
// instead of dropping.
func (b *InMemoryBus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.inbound <- ev:
	default:
		// Queue full — wait with timeout instead of dropping.
		b.logger.Warn("inbound bus full, waiting...", "sender", ev.SenderID)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.inbound <- ev:
			b.logger.Info("event enqueued after wait", "sender", ev.SenderID)
		case <-timer.C:
			b.logger.Error("event dropped: bus full for 10s",
				"sender", ev.SenderID,
				"kind", ev.Kind,
			)
		}
	}
}

// Subscribe returns the receive side of the queue. The channel is closed
// by Close.
func (b *InMemoryBus) Subscribe() <-chan domain.Event {
	return b.inbound
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.inbound)
	}
}
