package persona

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	p, err := Load("", testLogger())
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if p.Name != Default.Name || p.SystemPrompt != Default.SystemPrompt {
		t.Fatalf("expected embedded default, got %+v", p)
	}
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pirate.yaml")
	content := "name: pirate\nsystemPrompt: Answer like a pirate captain.\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	p, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name != "pirate" {
		t.Fatalf("name = %q", p.Name)
	}
	if p.SystemPrompt != "Answer like a pirate captain." {
		t.Fatalf("systemPrompt = %q", p.SystemPrompt)
	}
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), testLogger()); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_MissingPromptIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	if err := os.WriteFile(path, []byte("name: hollow\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := Load(path, testLogger()); err == nil {
		t.Fatal("expected error for persona without systemPrompt")
	}
}

func TestLoad_DefaultNameForUnnamedProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "anon.yaml")
	if err := os.WriteFile(path, []byte("systemPrompt: Be terse.\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	p, err := Load(path, testLogger())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Name != "custom" {
		t.Fatalf("name = %q", p.Name)
	}
}
