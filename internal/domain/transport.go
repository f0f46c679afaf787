package domain

import "context"

// MarkupMode selects how the transport should parse message markup.
type MarkupMode string

const (
	MarkupNone MarkupMode = ""
	MarkupHTML MarkupMode = "HTML"
)

// Transport is the bot-client surface the core writes to. Implementations
// must return a *TransportError so callers can distinguish markup rejection
// from transient failures.
type Transport interface {
	SendText(ctx context.Context, chatID, text string, mode MarkupMode) error
	// SendTyping is a best-effort activity indicator; errors are ignored.
	SendTyping(ctx context.Context, chatID string) error
	FetchAttachment(ctx context.Context, ref string) ([]byte, error)
}
