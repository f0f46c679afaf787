package channel

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"gembot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClassifySendError(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		rejected bool
	}{
		{"entity parse failure", errors.New("Bad Request: can't parse entities: Unsupported start tag"), true},
		{"rate limit", errors.New("Too Many Requests: retry after 5"), false},
		{"network failure", errors.New("Post https://api.telegram.org: connection refused"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classifySendError(tc.err)
			var te *domain.TransportError
			if !errors.As(got, &te) {
				t.Fatalf("expected *domain.TransportError, got %T", got)
			}
			if te.Rejected != tc.rejected {
				t.Fatalf("rejected = %v, want %v", te.Rejected, tc.rejected)
			}
			if !errors.Is(got, tc.err) {
				t.Fatal("original error not wrapped")
			}
		})
	}
}

func TestAllowList(t *testing.T) {
	tg := NewTelegram(TelegramConfig{
		AllowFrom: []string{"123", " 456 ", "not-a-number"},
		Logger:    testLogger(),
	})

	if !tg.isAllowed(123) || !tg.isAllowed(456) {
		t.Fatal("listed IDs must be allowed")
	}
	if tg.isAllowed(789) {
		t.Fatal("unlisted ID must be rejected")
	}

	open := NewTelegram(TelegramConfig{Logger: testLogger()})
	if !open.isAllowed(789) {
		t.Fatal("empty allow list must admit everyone")
	}
}

func TestAgreementMessageUsesHTML(t *testing.T) {
	tg := NewTelegram(TelegramConfig{
		Agreement: "<b>Terms</b>: be nice.",
		Logger:    testLogger(),
	})

	msg := tg.agreementMessage(42)
	if msg.ChatID != 42 {
		t.Fatalf("chat ID = %d", msg.ChatID)
	}
	if msg.Text != "<b>Terms</b>: be nice." {
		t.Fatalf("text = %q", msg.Text)
	}
	if msg.ParseMode != "HTML" {
		t.Fatalf("parse mode = %q, want HTML", msg.ParseMode)
	}
}

func TestModelKeyboardHasAllModels(t *testing.T) {
	kb := modelKeyboard()
	if len(kb.Keyboard) != 2 {
		t.Fatalf("expected one row per model, got %d rows", len(kb.Keyboard))
	}
	if !kb.ResizeKeyboard {
		t.Fatal("keyboard should resize to content")
	}
}
