package history

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gembot/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), "baseline-model", logger)
	if err != nil {
		t.Fatalf("cannot open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestAppendAndGetHistory_Ordered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, q := range []string{"one", "two", "three"} {
		err := store.Append(ctx, domain.ConversationRecord{
			UserID:    "42",
			Query:     q,
			Response:  "r-" + q,
			Model:     "baseline-model",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	records, err := store.GetHistory(ctx, "42")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, want := range []string{"one", "two", "three"} {
		if records[i].Query != want {
			t.Fatalf("record %d: expected %q, got %q", i, want, records[i].Query)
		}
	}
}

func TestAppend_AttachmentRefsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Append(ctx, domain.ConversationRecord{
		UserID:         "7",
		Query:          "photos",
		AttachmentRefs: []string{"f1", "f2", "f3"},
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	records, err := store.GetHistory(ctx, "7")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	refs := records[0].AttachmentRefs
	if len(refs) != 3 || refs[0] != "f1" || refs[2] != "f3" {
		t.Fatalf("refs round-trip broken: %v", refs)
	}
}

func TestGetHistory_EmptyRefsStayNil(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, domain.ConversationRecord{UserID: "7", Query: "q"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	records, err := store.GetHistory(ctx, "7")
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(records[0].AttachmentRefs) != 0 {
		t.Fatalf("expected no refs, got %v", records[0].AttachmentRefs)
	}
}

func TestClear_RemovesOnlyThatUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Append(ctx, domain.ConversationRecord{UserID: "a", Query: "qa"})
	store.Append(ctx, domain.ConversationRecord{UserID: "b", Query: "qb"})

	if err := store.Clear(ctx, "a"); err != nil {
		t.Fatalf("clear: %v", err)
	}

	ra, _ := store.GetHistory(ctx, "a")
	rb, _ := store.GetHistory(ctx, "b")
	if len(ra) != 0 {
		t.Fatalf("user a history not cleared: %d records", len(ra))
	}
	if len(rb) != 1 {
		t.Fatalf("user b history affected by clear: %d records", len(rb))
	}
}

func TestCurrentModel_DefaultsToBaseline(t *testing.T) {
	store := newTestStore(t)
	model, err := store.CurrentModel(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("current model: %v", err)
	}
	if model != "baseline-model" {
		t.Fatalf("expected baseline, got %q", model)
	}
}

func TestSetModel_UpsertsPreference(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.SetModel(ctx, "42", "thinking-model"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	if err := store.SetModel(ctx, "42", "fast-model"); err != nil {
		t.Fatalf("second set model: %v", err)
	}

	model, err := store.CurrentModel(ctx, "42")
	if err != nil {
		t.Fatalf("current model: %v", err)
	}
	if model != "fast-model" {
		t.Fatalf("expected fast-model after upsert, got %q", model)
	}
}
