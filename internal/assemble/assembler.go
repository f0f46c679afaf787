// Package assemble turns a flushed burst of events plus the user's stored
// history into a single generation request.
package assemble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"gembot/internal/domain"
)

// mediaOnlyQuery stands in for the textual query when a burst carries only
// photos.
const mediaOnlyQuery = "Photos"

type Assembler struct {
	history     domain.HistoryStore
	attachments domain.AttachmentStore
	logger      *slog.Logger
}

func New(history domain.HistoryStore, attachments domain.AttachmentStore, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{history: history, attachments: attachments, logger: logger}
}

// Build assembles the generation request for one flushed burst: full prior
// history (attachments deduplicated by reference across the whole pass),
// a separator, then the new burst's combined text and media. It performs no
// generation call itself; the only failure mode is store unavailability.
func (a *Assembler) Build(ctx context.Context, userID string, events []domain.Event) (*domain.GenerationRequest, string, error) {
	records, err := a.history.GetHistory(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("history unavailable for user %s: %w", userID, err)
	}

	req := &domain.GenerationRequest{}
	seen := make(map[string]bool)

	if len(records) > 0 {
		req.Segments = append(req.Segments, "Conversation history:")
	}
	for _, rec := range records {
		for _, ref := range rec.AttachmentRefs {
			if ref == "" || seen[ref] {
				continue
			}
			seen[ref] = true
			a.appendAttachment(req, ref)
		}
		req.Segments = append(req.Segments, "User: "+rec.Query)
		req.Segments = append(req.Segments, "Bot: "+rec.Response)
	}

	req.Segments = append(req.Segments, "---")
	req.Segments = append(req.Segments, "Current user message: "+BurstText(events))

	mediaN := 0
	for _, ev := range events {
		if ev.Kind != domain.EventMedia {
			continue
		}
		mediaN++
		if ev.Attachment != "" && !seen[ev.Attachment] {
			seen[ev.Attachment] = true
			a.appendAttachment(req, ev.Attachment)
		}
		if ev.Text != "" {
			req.Segments = append(req.Segments, fmt.Sprintf("Caption %d: %s", mediaN, ev.Text))
		} else {
			req.Segments = append(req.Segments, fmt.Sprintf("Image %d: no caption", mediaN))
		}
	}

	model, err := a.history.CurrentModel(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("model preference unavailable for user %s: %w", userID, err)
	}

	return req, model, nil
}

// appendAttachment resolves ref and adds it to the request, substituting an
// inline placeholder on failure. A missing attachment never aborts assembly.
func (a *Assembler) appendAttachment(req *domain.GenerationRequest, ref string) {
	data, err := a.attachments.Load(ref)
	if err != nil {
		a.logger.Warn("attachment unavailable, substituting placeholder", "ref", ref, "err", err)
		req.Segments = append(req.Segments, fmt.Sprintf("Image %s: unavailable", ref))
		return
	}
	req.Attachments = append(req.Attachments, domain.Attachment{Ref: ref, MIME: "image/jpeg", Data: data})
	req.Segments = append(req.Segments, "Image: "+ref)
}

// BurstText combines the text of all text-kind events in arrival order, or
// returns the media-only placeholder when the burst has no text.
func BurstText(events []domain.Event) string {
	var parts []string
	for _, ev := range events {
		if ev.Kind == domain.EventText && ev.Text != "" {
			parts = append(parts, ev.Text)
		}
	}
	if len(parts) == 0 {
		return mediaOnlyQuery
	}
	return strings.Join(parts, "\n")
}

// AttachmentRefs lists the attachment references carried by a burst, in
// arrival order.
func AttachmentRefs(events []domain.Event) []string {
	var refs []string
	for _, ev := range events {
		if ev.Kind == domain.EventMedia && ev.Attachment != "" {
			refs = append(refs, ev.Attachment)
		}
	}
	return refs
}
