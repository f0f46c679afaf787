package deliver

import (
	"strings"
	"testing"
)

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	chunks := Split("hello world", 4096)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "hello world" || chunks[0].Hard {
		t.Fatalf("unexpected chunk: %+v", chunks[0])
	}
}

func TestSplit_ConcatenationReproducesInput(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 80; i++ {
		sb.WriteString("This is a reasonably long sentence that fills space. ")
		sb.WriteString("Short one! Another question here? ")
	}
	text := sb.String()

	chunks := Split(text, 300)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	var joined strings.Builder
	for _, ch := range chunks {
		if len(ch.Text) > 300 {
			t.Fatalf("chunk exceeds limit: %d bytes", len(ch.Text))
		}
		if ch.Hard {
			t.Fatalf("unexpected hard split in sentence-rich text: %q", ch.Text[:40])
		}
		joined.WriteString(ch.Text)
	}
	if joined.String() != text {
		t.Fatal("concatenated chunks do not reproduce the input")
	}
}

func TestSplit_HardSplitAtExactLimit(t *testing.T) {
	text := strings.Repeat("x", 9000) // no punctuation anywhere
	chunks := Split(text, 4096)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks for 9000 bytes at limit 4096, got %d", len(chunks))
	}
	if len(chunks[0].Text) != 4096 || !chunks[0].Hard {
		t.Fatalf("first chunk: len=%d hard=%v, want 4096/true", len(chunks[0].Text), chunks[0].Hard)
	}
	var joined strings.Builder
	for _, ch := range chunks {
		joined.WriteString(ch.Text)
	}
	if joined.String() != text {
		t.Fatal("hard-split chunks do not reproduce the input")
	}
}

func TestSplit_PrefersSentenceBoundary(t *testing.T) {
	text := "First sentence here. Second sentence is much longer and keeps going for a while."
	chunks := Split(text, 40)
	if chunks[0].Text != "First sentence here. " {
		t.Fatalf("expected cut after first sentence, got %q", chunks[0].Text)
	}
	if chunks[0].Hard {
		t.Fatal("sentence cut should not be marked hard")
	}
}

func TestSplit_AbbreviationDoesNotEndSentence(t *testing.T) {
	// The only period within the limit belongs to "Dr." — the splitter must
	// not treat it as a sentence boundary.
	text := "Dr. Brown arrived early today and then stayed for the whole meeting afterwards"
	chunks := Split(text, 20)
	if chunks[0].Text == "Dr. " {
		t.Fatal("abbreviation period treated as sentence boundary")
	}
	if !chunks[0].Hard {
		t.Fatalf("expected hard split when only an abbreviation period is in range, got %q", chunks[0].Text)
	}
}

func TestSplit_SingleLetterInitialGuard(t *testing.T) {
	text := "J. R. Tolkien wrote many books over a very long and productive career indeed yes"
	chunks := Split(text, 25)
	if chunks[0].Text == "J. " || chunks[0].Text == "J. R. " {
		t.Fatalf("initials treated as sentence boundary: %q", chunks[0].Text)
	}
}

func TestSplit_NeverCutsInsideMarkupSpan(t *testing.T) {
	text := "Hello there. <b>Bold text! keeps going here</b> and a tail after the span closes."
	chunks := Split(text, 35)
	if chunks[0].Text != "Hello there. " {
		t.Fatalf("expected cut before the open span, got %q", chunks[0].Text)
	}
	var joined strings.Builder
	for _, ch := range chunks {
		joined.WriteString(ch.Text)
	}
	if joined.String() != text {
		t.Fatal("markup-aware chunks do not reproduce the input")
	}
}

func TestSplit_HardCutBacksOutOfPartialTag(t *testing.T) {
	text := strings.Repeat("y", 30) + "<pre>" + strings.Repeat("z", 30)
	chunks := Split(text, 33) // limit lands inside "<pre"
	if strings.Contains(chunks[0].Text, "<") {
		t.Fatalf("first chunk contains a severed tag: %q", chunks[0].Text)
	}
	var joined strings.Builder
	for _, ch := range chunks {
		joined.WriteString(ch.Text)
	}
	if joined.String() != text {
		t.Fatal("chunks do not reproduce the input")
	}
}
