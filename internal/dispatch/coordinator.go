// Package dispatch consumes inbound events, feeds the debounce aggregator,
// and drives every flushed burst through assembly, generation, markup
// rendering, delivery, and the history append.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"gembot/internal/assemble"
	"gembot/internal/debounce"
	"gembot/internal/deliver"
	"gembot/internal/domain"
	"gembot/internal/markup"
	"gembot/internal/metrics"
)

const (
	defaultGenerationTimeout = 120 * time.Second

	apologyText = "Sorry, something went wrong while preparing a reply. Please try again."

	// Recorded as the response when generation fails; keeps the turn in
	// history so the user's input is never silently lost.
	failedResponseMarker = "[generation failed]"

	// Recorded when assembly fails before a model could be resolved. The
	// degraded append still preserves the user's side of the turn.
	failedContextMarker = "[context unavailable]"
)

// GeneratorSelector picks the generator variant for a model id.
type GeneratorSelector interface {
	ForModel(model string) domain.ContentGenerator
}

type Config struct {
	TextWindow        time.Duration
	AlbumWindow       time.Duration
	MaxBurstEvents    int
	GenerationTimeout time.Duration
	Logger            *slog.Logger
}

// Coordinator owns the aggregator and serializes flush handling per key:
// two flushes for the same key never overlap, while a re-opened bucket keeps
// buffering new events in parallel.
type Coordinator struct {
	events     <-chan domain.Event
	aggregator *debounce.Aggregator
	assembler  *assemble.Assembler
	generators GeneratorSelector
	pipeline   *deliver.Pipeline
	transport  domain.Transport
	history    domain.HistoryStore
	genTimeout time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	keyLock map[domain.AggregationKey]*sync.Mutex
	ctx     context.Context

	wg sync.WaitGroup
}

func New(events <-chan domain.Event, assembler *assemble.Assembler, generators GeneratorSelector,
	pipeline *deliver.Pipeline, transport domain.Transport, history domain.HistoryStore, cfg Config) *Coordinator {

	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = defaultGenerationTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Coordinator{
		events:     events,
		assembler:  assembler,
		generators: generators,
		pipeline:   pipeline,
		transport:  transport,
		history:    history,
		genTimeout: cfg.GenerationTimeout,
		logger:     cfg.Logger,
		keyLock:    make(map[domain.AggregationKey]*sync.Mutex),
		ctx:        context.Background(),
	}
	c.aggregator = debounce.New(debounce.Config{
		TextWindow:     cfg.TextWindow,
		AlbumWindow:    cfg.AlbumWindow,
		MaxBurstEvents: cfg.MaxBurstEvents,
		OnFlush:        c.onFlush,
		Logger:         cfg.Logger,
	})
	return c
}

// Run consumes events until ctx is cancelled or the event channel closes,
// then stops the aggregator and waits for in-flight flushes to finish.
func (c *Coordinator) Run(ctx context.Context) {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case ev, ok := <-c.events:
			if !ok {
				c.shutdown()
				return
			}
			metrics.EventsTotal.Inc()
			c.aggregator.Submit(keyFor(ev), ev)
			metrics.ActiveBuckets.Set(int64(c.aggregator.Pending()))
		}
	}
}

func (c *Coordinator) shutdown() {
	c.aggregator.Close()
	c.wg.Wait()
	metrics.ActiveBuckets.Set(0)
}

// keyFor routes album members to their shared album bucket and everything
// else to the sender's bucket.
func keyFor(ev domain.Event) domain.AggregationKey {
	if ev.AlbumID != "" {
		return domain.AlbumKey(ev.AlbumID)
	}
	return domain.UserKey(ev.SenderID)
}

func (c *Coordinator) lockFor(key domain.AggregationKey) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.keyLock[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	c.keyLock[key] = m
	return m
}

func (c *Coordinator) onFlush(key domain.AggregationKey, events []domain.Event, forced bool) {
	metrics.FlushesTotal.Inc()
	if forced {
		metrics.ForcedFlushesTotal.Inc()
	}
	metrics.ActiveBuckets.Set(int64(c.aggregator.Pending()))

	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.handleFlush(ctx, key, events)
	}()
}

// handleFlush runs one flushed burst end to end. A panic anywhere in the
// cycle is confined to this flush.
func (c *Coordinator) handleFlush(ctx context.Context, key domain.AggregationKey, events []domain.Event) {
	flushID := uuid.NewString()
	logger := c.logger.With("flush_id", flushID, "key", key.String(), "events", len(events))

	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if len(events) == 0 {
		return
	}
	userID := events[0].SenderID
	chatID := events[0].ChatID

	defer func() {
		if r := recover(); r != nil {
			logger.Error("flush handler panic", "panic", r)
			c.apologize(ctx, chatID, logger)
		}
	}()
	logger.Info("handling flush", "user", userID)

	if err := c.transport.SendTyping(ctx, chatID); err != nil {
		logger.Debug("typing indicator failed", "err", err)
	}

	req, model, err := c.assembler.Build(ctx, userID, events)
	if err != nil {
		logger.Error("context assembly failed", "err", err)
		c.appendHistory(ctx, userID, events, failedContextMarker, "", logger)
		c.apologize(ctx, chatID, logger)
		return
	}

	start := time.Now()
	response, err := c.generate(ctx, model, req)
	metrics.GenerationLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.GenerationFailures.Inc()
		logger.Error("generation failed", "model", model, "err", err)
		c.appendHistory(ctx, userID, events, failedResponseMarker, model, logger)
		c.apologize(ctx, chatID, logger)
		return
	}

	outcome := c.pipeline.Deliver(ctx, chatID, markup.Render(response), markup.Plain(response))
	switch outcome.Status {
	case deliver.StatusDelivered:
		metrics.DeliveriesDelivered.Inc()
	case deliver.StatusPartial:
		metrics.DeliveriesPartial.Inc()
		logger.Warn("partial delivery", "sent", outcome.ChunksSent, "total", outcome.ChunksTotal, "err", outcome.Err)
	case deliver.StatusFailed:
		metrics.DeliveriesFailed.Inc()
		logger.Error("delivery failed", "err", outcome.Err)
	}

	// The turn is recorded even when delivery degraded; the generated
	// response exists and later context should include it.
	c.appendHistory(ctx, userID, events, response, model, logger)
}

func (c *Coordinator) generate(ctx context.Context, model string, req *domain.GenerationRequest) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, c.genTimeout)
	defer cancel()
	return c.generators.ForModel(model).Generate(genCtx, *req)
}

func (c *Coordinator) appendHistory(ctx context.Context, userID string, events []domain.Event, response, model string, logger *slog.Logger) {
	rec := domain.ConversationRecord{
		UserID:         userID,
		Query:          assemble.BurstText(events),
		Response:       response,
		AttachmentRefs: assemble.AttachmentRefs(events),
		Model:          model,
		CreatedAt:      time.Now().UTC(),
	}
	if err := c.history.Append(ctx, rec); err != nil {
		logger.Warn("history append failed, turn not persisted", "err", err)
	}
}

func (c *Coordinator) apologize(ctx context.Context, chatID string, logger *slog.Logger) {
	if err := c.transport.SendText(ctx, chatID, apologyText, domain.MarkupNone); err != nil {
		logger.Error("could not deliver apology", "err", err)
	}
}
