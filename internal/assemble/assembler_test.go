package assemble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"testing"

	"gembot/internal/domain"
)

// mockHistory implements domain.HistoryStore in memory.
type mockHistory struct {
	records []domain.ConversationRecord
	model   string
	failGet bool
}

func (m *mockHistory) Append(ctx context.Context, rec domain.ConversationRecord) error {
	m.records = append(m.records, rec)
	return nil
}

func (m *mockHistory) Clear(ctx context.Context, userID string) error {
	m.records = nil
	return nil
}

func (m *mockHistory) GetHistory(ctx context.Context, userID string) ([]domain.ConversationRecord, error) {
	if m.failGet {
		return nil, errors.New("database locked")
	}
	return m.records, nil
}

func (m *mockHistory) CurrentModel(ctx context.Context, userID string) (string, error) {
	if m.model == "" {
		return "gemini-2.0-flash-exp", nil
	}
	return m.model, nil
}

func (m *mockHistory) SetModel(ctx context.Context, userID, model string) error {
	m.model = model
	return nil
}

func (m *mockHistory) Close() error { return nil }

// mockAttachments serves attachments from a map; absent refs fail.
type mockAttachments struct {
	files map[string][]byte
}

func (m *mockAttachments) Save(ref string, data []byte) (string, error) {
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[ref] = data
	return ref, nil
}

func (m *mockAttachments) Load(ref string) ([]byte, error) {
	data, ok := m.files[ref]
	if !ok {
		return nil, fmt.Errorf("no such attachment: %s", ref)
	}
	return data, nil
}

func (m *mockAttachments) ClearAll() error {
	m.files = nil
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBuild_TextBurstWithHistory(t *testing.T) {
	hist := &mockHistory{records: []domain.ConversationRecord{
		{UserID: "5", Query: "first question", Response: "first answer"},
		{UserID: "5", Query: "second question", Response: "second answer"},
	}}
	asm := New(hist, &mockAttachments{}, quietLogger())

	events := []domain.Event{
		{Kind: domain.EventText, Text: "a"},
		{Kind: domain.EventText, Text: "b"},
		{Kind: domain.EventText, Text: "c"},
	}
	req, model, err := asm.Build(context.Background(), "5", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model != "gemini-2.0-flash-exp" {
		t.Fatalf("expected baseline model, got %q", model)
	}

	joined := strings.Join(req.Segments, "\n")
	if !strings.Contains(joined, "User: first question") || !strings.Contains(joined, "Bot: second answer") {
		t.Fatalf("history turns missing from segments:\n%s", joined)
	}
	if !strings.Contains(joined, "Current user message: a\nb\nc") {
		t.Fatalf("burst text not concatenated in arrival order:\n%s", joined)
	}
	// History must precede the separator which precedes the new burst.
	sep := strings.Index(joined, "---")
	if sep < strings.Index(joined, "Bot: second answer") {
		t.Fatal("separator appears before history")
	}
}

func TestBuild_DeduplicatesAttachmentRefsAcrossHistory(t *testing.T) {
	att := &mockAttachments{files: map[string][]byte{"photo1": []byte("jpeg1")}}
	hist := &mockHistory{records: []domain.ConversationRecord{
		{Query: "q1", Response: "r1", AttachmentRefs: []string{"photo1"}},
		{Query: "q2", Response: "r2", AttachmentRefs: []string{"photo1"}},
	}}
	asm := New(hist, att, quietLogger())

	req, _, err := asm.Build(context.Background(), "5", []domain.Event{{Kind: domain.EventText, Text: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Attachments) != 1 {
		t.Fatalf("expected photo1 resolved exactly once, got %d attachments", len(req.Attachments))
	}
}

func TestBuild_MissingAttachmentSubstitutesPlaceholder(t *testing.T) {
	hist := &mockHistory{records: []domain.ConversationRecord{
		{Query: "q", Response: "r", AttachmentRefs: []string{"gone"}},
	}}
	asm := New(hist, &mockAttachments{}, quietLogger())

	req, _, err := asm.Build(context.Background(), "5", []domain.Event{{Kind: domain.EventText, Text: "hi"}})
	if err != nil {
		t.Fatalf("missing attachment must not abort assembly: %v", err)
	}
	if len(req.Attachments) != 0 {
		t.Fatalf("expected no resolved attachments, got %d", len(req.Attachments))
	}
	joined := strings.Join(req.Segments, "\n")
	if !strings.Contains(joined, "Image gone: unavailable") {
		t.Fatalf("placeholder segment missing:\n%s", joined)
	}
}

func TestBuild_MediaOnlyBurst(t *testing.T) {
	att := &mockAttachments{files: map[string][]byte{}}
	for i := 0; i < 5; i++ {
		att.files[fmt.Sprintf("p%d", i)] = []byte("jpeg")
	}
	asm := New(&mockHistory{}, att, quietLogger())

	events := []domain.Event{
		{Kind: domain.EventMedia, Attachment: "p0", Text: "sunset"},
		{Kind: domain.EventMedia, Attachment: "p1"},
		{Kind: domain.EventMedia, Attachment: "p2"},
		{Kind: domain.EventMedia, Attachment: "p3", Text: "beach"},
		{Kind: domain.EventMedia, Attachment: "p4"},
	}
	req, _, err := asm.Build(context.Background(), "5", events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(req.Attachments) != 5 {
		t.Fatalf("expected 5 resolved attachments, got %d", len(req.Attachments))
	}

	joined := strings.Join(req.Segments, "\n")
	if !strings.Contains(joined, "Current user message: "+mediaOnlyQuery) {
		t.Fatalf("media-only burst must use the default query:\n%s", joined)
	}
	if !strings.Contains(joined, "Caption 1: sunset") || !strings.Contains(joined, "Caption 4: beach") {
		t.Fatalf("captions missing:\n%s", joined)
	}
	for _, want := range []string{"Image 2: no caption", "Image 3: no caption", "Image 5: no caption"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in:\n%s", want, joined)
		}
	}
}

func TestBuild_StoreFailureAborts(t *testing.T) {
	asm := New(&mockHistory{failGet: true}, &mockAttachments{}, quietLogger())
	req, _, err := asm.Build(context.Background(), "5", []domain.Event{{Kind: domain.EventText, Text: "hi"}})
	if err == nil {
		t.Fatal("expected error when history store is unavailable")
	}
	if req != nil {
		t.Fatal("no partial request may be returned on store failure")
	}
}

func TestBurstText_MixedEvents(t *testing.T) {
	events := []domain.Event{
		{Kind: domain.EventMedia, Attachment: "p", Text: "caption"},
		{Kind: domain.EventText, Text: "hello"},
	}
	if got := BurstText(events); got != "hello" {
		t.Fatalf("captions must not leak into burst text, got %q", got)
	}
}

func TestAttachmentRefs_Order(t *testing.T) {
	events := []domain.Event{
		{Kind: domain.EventMedia, Attachment: "b"},
		{Kind: domain.EventText, Text: "x"},
		{Kind: domain.EventMedia, Attachment: "a"},
	}
	refs := AttachmentRefs(events)
	if len(refs) != 2 || refs[0] != "b" || refs[1] != "a" {
		t.Fatalf("expected [b a], got %v", refs)
	}
}
