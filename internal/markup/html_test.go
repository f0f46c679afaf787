package markup

import (
	"strings"
	"testing"
)

func TestRender_Bold(t *testing.T) {
	got := Render("some **bold** text")
	if got != "some <b>bold</b> text" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_Italic(t *testing.T) {
	got := Render("an *italic* word")
	if got != "an <i>italic</i> word" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_BoldBeforeItalic(t *testing.T) {
	// ** must be consumed as bold, not two italics.
	got := Render("**both** and *one*")
	if got != "<b>both</b> and <i>one</i>" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_CodeBlock(t *testing.T) {
	got := Render("before ```code here``` after")
	if got != "before <pre><code>code here</code></pre> after" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_CodeBlockWithLanguage(t *testing.T) {
	got := Render("```go\nfmt.Println(1)\n```")
	if got != "<pre><code>fmt.Println(1)\n</code></pre>" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_Strikethrough(t *testing.T) {
	got := Render("~old~ new")
	if got != "<strike>old</strike> new" {
		t.Fatalf("got %q", got)
	}
}

func TestRender_EscapesBeforeConverting(t *testing.T) {
	got := Render("a < b & c > d")
	if got != "a &lt; b &amp; c &gt; d" {
		t.Fatalf("got %q", got)
	}
	// Raw HTML in model output must not survive as markup.
	got = Render("<script>alert(1)</script>")
	if strings.Contains(got, "<script>") {
		t.Fatalf("raw HTML leaked through: %q", got)
	}
}

func TestRender_NormalizesWhitespace(t *testing.T) {
	got := Render("too   many\t\tspaces\n\n\n\n\nand newlines")
	if got != "too many spaces\n\nand newlines" {
		t.Fatalf("got %q", got)
	}
}

func TestPlain_StripsAllMarkers(t *testing.T) {
	in := "**bold** and *italic* and ~gone~ and ```x := 1```"
	got := Plain(in)
	if got != "bold and italic and gone and x := 1" {
		t.Fatalf("got %q", got)
	}
}

func TestPlain_LeavesSpecialCharactersAlone(t *testing.T) {
	got := Plain("a < b & c")
	if got != "a < b & c" {
		t.Fatalf("plain text must not be escaped, got %q", got)
	}
}
