// Package debounce coalesces bursts of inbound events per aggregation key
// into exactly one flush after a configured quiet period.
package debounce

import (
	"log/slog"
	"sync"
	"time"

	"gembot/internal/domain"
)

const (
	defaultTextWindow  = 3 * time.Second
	defaultAlbumWindow = 10 * time.Second
	defaultMaxBurst    = 32
)

// FlushFunc receives the final ordered event list for one bucket lifetime.
// forced is true when the bucket hit the burst cap instead of going quiet.
type FlushFunc func(key domain.AggregationKey, events []domain.Event, forced bool)

type Config struct {
	TextWindow     time.Duration
	AlbumWindow    time.Duration
	MaxBurstEvents int // force a flush once a bucket holds this many events
	OnFlush        FlushFunc
	Logger         *slog.Logger
}

// bucket is the mutable per-key state for one burst. It lives in the
// registry iff it holds at least one unflushed event.
type bucket struct {
	epoch  uint64
	events []domain.Event
	timer  *time.Timer
}

// Aggregator is a keyed, timer-based event buffer. Each Submit resets the
// key's quiet-period timer; the timer expiring without interruption flushes
// the bucket. Epochs resolve the cancel/fire race: every (re)arm bumps the
// key's epoch, and a firing timer that loses the lock race to a newer epoch
// becomes a no-op, so no event is ever dropped and no bucket flushes twice.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[domain.AggregationKey]*bucket
	epochs  map[domain.AggregationKey]uint64

	textWindow  time.Duration
	albumWindow time.Duration
	maxBurst    int
	onFlush     FlushFunc
	logger      *slog.Logger
	closed      bool
}

func New(cfg Config) *Aggregator {
	if cfg.TextWindow <= 0 {
		cfg.TextWindow = defaultTextWindow
	}
	if cfg.AlbumWindow <= 0 {
		cfg.AlbumWindow = defaultAlbumWindow
	}
	if cfg.MaxBurstEvents <= 0 {
		cfg.MaxBurstEvents = defaultMaxBurst
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Aggregator{
		buckets:     make(map[domain.AggregationKey]*bucket),
		epochs:      make(map[domain.AggregationKey]uint64),
		textWindow:  cfg.TextWindow,
		albumWindow: cfg.AlbumWindow,
		maxBurst:    cfg.MaxBurstEvents,
		onFlush:     cfg.OnFlush,
		logger:      cfg.Logger,
	}
}

// Submit appends ev to the bucket for key, creating it if absent, and
// re-arms the quiet-period timer. It never blocks the caller; flushes run
// on their own goroutines.
func (a *Aggregator) Submit(key domain.AggregationKey, ev domain.Event) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Warn("submit after close, event dropped", "key", key.String())
		return
	}

	b := a.buckets[key]
	if b == nil {
		b = &bucket{}
		a.buckets[key] = b
	}
	b.events = append(b.events, ev)

	if len(b.events) >= a.maxBurst {
		// Pathological burst: flush early instead of buffering without bound.
		if b.timer != nil {
			b.timer.Stop()
		}
		a.epochs[key]++ // invalidate any fire already past its timer
		delete(a.buckets, key)
		events := b.events
		a.mu.Unlock()

		a.logger.Warn("burst cap reached, forcing flush",
			"key", key.String(), "events", len(events))
		go a.onFlush(key, events, true)
		return
	}

	if b.timer != nil {
		// Stop is a no-op on an already-fired or already-stopped timer;
		// the epoch bump below is what actually invalidates a fired one.
		b.timer.Stop()
	}
	a.epochs[key]++
	epoch := a.epochs[key]
	b.epoch = epoch
	b.timer = time.AfterFunc(a.windowFor(key), func() { a.fire(key, epoch) })
	a.mu.Unlock()
}

// fire is the timer expiry path. The epoch check under the registry lock
// makes cancellation and firing mutually exclusive outcomes per epoch: a
// timer that fired concurrently with a Submit for the same key sees the
// bumped epoch here and yields.
func (a *Aggregator) fire(key domain.AggregationKey, epoch uint64) {
	a.mu.Lock()
	b := a.buckets[key]
	if b == nil || b.epoch != epoch {
		a.mu.Unlock()
		return // stale: superseded by a later submit or a forced flush
	}
	delete(a.buckets, key)
	events := b.events
	a.mu.Unlock()

	a.onFlush(key, events, false)
}

func (a *Aggregator) windowFor(key domain.AggregationKey) time.Duration {
	if key.Space == domain.KeyAlbum {
		return a.albumWindow
	}
	return a.textWindow
}

// Pending returns the number of live buckets.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buckets)
}

// Close stops all timers and discards buffered events. Submits after Close
// are dropped.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.closed = true
	for key, b := range a.buckets {
		if b.timer != nil {
			b.timer.Stop()
		}
		delete(a.buckets, key)
	}
}
