// Package deliver gets a long, possibly malformed-markup response to the
// user transport reliably: chunking at sentence boundaries, retrying
// transient errors, and degrading to plain text on markup rejection.
package deliver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gembot/internal/domain"
)

const (
	defaultMaxPayload = 4096
	defaultRetries    = 3
	defaultRetryDelay = 2 * time.Second

	fallbackNotice = "Note: formatting was dropped because the original reply could not be rendered."
)

// Status classifies a delivery outcome.
type Status string

const (
	StatusDelivered Status = "delivered"
	StatusPartial   Status = "partially-delivered"
	StatusFailed    Status = "failed"
)

// Outcome is the structured result of one Deliver call. Deliveries never
// fail silently; every attempt ends in one of the three statuses.
type Outcome struct {
	Status      Status
	ChunksTotal int
	ChunksSent  int
	FellBack    bool
	Err         error
}

type Config struct {
	MaxPayload int
	Retries    int
	RetryDelay time.Duration
	Logger     *slog.Logger
}

// Pipeline delivers responses over a Transport.
type Pipeline struct {
	transport  domain.Transport
	maxPayload int
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

func New(transport domain.Transport, cfg Config) *Pipeline {
	if cfg.MaxPayload <= 0 {
		cfg.MaxPayload = defaultMaxPayload
	}
	if cfg.Retries <= 0 {
		cfg.Retries = defaultRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Pipeline{
		transport:  transport,
		maxPayload: cfg.MaxPayload,
		retries:    cfg.Retries,
		retryDelay: cfg.RetryDelay,
		logger:     cfg.Logger,
	}
}

// Deliver sends rich (markup-enabled) text in order, chunked to the payload
// limit. If the transport rejects the markup, the plain fallback text is
// sent once, chunked the same way, without markup.
func (p *Pipeline) Deliver(ctx context.Context, chatID, rich, plain string) Outcome {
	chunks := Split(rich, p.maxPayload)
	outcome := Outcome{ChunksTotal: len(chunks)}

	for i, ch := range chunks {
		if ch.Hard {
			p.logger.Debug("hard chunk split", "chat", chatID, "chunk", i+1, "len", len(ch.Text))
		}
		err := p.sendWithRetry(ctx, chatID, ch.Text, domain.MarkupHTML)
		if err == nil {
			outcome.ChunksSent++
			continue
		}
		if domain.IsTransportRejected(err) {
			p.logger.Warn("markup rejected by transport, falling back to plain text",
				"chat", chatID, "chunk", i+1, "err", err)
			return p.deliverPlain(ctx, chatID, plain, outcome)
		}
		// Exhausted retries on a transient error: record and keep going so
		// later chunks still get a chance.
		outcome.Err = err
		p.logger.Error("chunk delivery exhausted retries", "chat", chatID, "chunk", i+1, "err", err)
	}

	outcome.Status = statusFor(outcome.ChunksSent, outcome.ChunksTotal)
	return outcome
}

// deliverPlain is the one-shot fallback path: the unformatted text, prefixed
// with a note that formatting was dropped, sent without markup. A second
// rejection ends delivery; there is no further fallback.
func (p *Pipeline) deliverPlain(ctx context.Context, chatID, plain string, outcome Outcome) Outcome {
	outcome.FellBack = true
	chunks := Split(fallbackNotice+"\n\n"+plain, p.maxPayload)
	outcome.ChunksTotal = len(chunks)
	outcome.ChunksSent = 0

	for i, ch := range chunks {
		if err := p.sendWithRetry(ctx, chatID, ch.Text, domain.MarkupNone); err != nil {
			outcome.Err = err
			p.logger.Error("fallback chunk delivery failed", "chat", chatID, "chunk", i+1, "err", err)
			continue
		}
		outcome.ChunksSent++
	}

	outcome.Status = statusFor(outcome.ChunksSent, outcome.ChunksTotal)
	return outcome
}

// sendWithRetry attempts one payload up to the retry budget with a fixed
// delay between attempts. Markup rejection returns immediately: resending
// the same malformed text cannot succeed.
func (p *Pipeline) sendWithRetry(ctx context.Context, chatID, text string, mode domain.MarkupMode) error {
	var lastErr error
	for attempt := 0; attempt < p.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}
		err := p.transport.SendText(ctx, chatID, text, mode)
		if err == nil {
			return nil
		}
		if domain.IsTransportRejected(err) {
			return err
		}
		lastErr = err
		p.logger.Warn("send failed, will retry",
			"chat", chatID, "attempt", attempt+1, "retries", p.retries, "err", err)
	}
	return fmt.Errorf("send failed after %d attempts: %w", p.retries, lastErr)
}

func statusFor(sent, total int) Status {
	switch {
	case sent == total:
		return StatusDelivered
	case sent > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}
