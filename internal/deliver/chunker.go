package deliver

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Chunk is a contiguous slice of outbound text bounded by the transport's
// payload limit. Hard marks a cut forced at the limit because no sentence
// boundary was available.
type Chunk struct {
	Text string
	Hard bool
}

// Common abbreviations whose trailing period does not end a sentence.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"approx": true, "dept": true, "fig": true, "no": true,
	"e.g": true, "i.e": true,
}

// Split breaks text into ordered chunks no longer than limit bytes,
// cutting at sentence boundaries where possible. Concatenating the chunk
// texts reproduces the input exactly.
func Split(text string, limit int) []Chunk {
	if limit <= 0 || len(text) <= limit {
		return []Chunk{{Text: text}}
	}

	var chunks []Chunk
	for len(text) > limit {
		cut := lastSentenceEnd(text, limit)
		if cut > 0 {
			chunks = append(chunks, Chunk{Text: text[:cut]})
			text = text[cut:]
			continue
		}
		// No usable boundary within the limit: hard split, backing off to
		// a rune start and out of any partially-included markup tag.
		cut = hardCut(text, limit)
		chunks = append(chunks, Chunk{Text: text[:cut], Hard: true})
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, Chunk{Text: text})
	}
	return chunks
}

// lastSentenceEnd returns the cut index (just past the boundary whitespace)
// of the last sentence boundary in text[:limit], or 0 if none qualifies.
// A boundary is end-of-sentence punctuation followed by whitespace, with a
// guard against abbreviation false-positives, and never inside an open
// markup span.
func lastSentenceEnd(text string, limit int) int {
	s := text[:limit]
	for i := len(s) - 1; i > 0; i-- {
		if !isSpaceByte(s[i]) {
			continue
		}
		switch s[i-1] {
		case '.', '!', '?':
		default:
			continue
		}
		if s[i-1] == '.' && isAbbreviation(s[:i-1]) {
			continue
		}
		if insideMarkup(s[:i+1]) {
			continue
		}
		return i + 1
	}
	return 0
}

// hardCut returns a cut position at or below limit that does not land in
// the middle of a UTF-8 rune or inside an unterminated markup tag.
func hardCut(text string, limit int) int {
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	// Back out of a partially-included tag like "<b" or "</pre".
	if open := strings.LastIndexByte(text[:cut], '<'); open >= 0 {
		if !strings.ContainsRune(text[open:cut], '>') {
			cut = open
		}
	}
	if cut == 0 {
		cut = limit // degenerate input, take the limit as-is
	}
	return cut
}

// isAbbreviation reports whether the text ending just before a period looks
// like an abbreviation or a single-letter initial.
func isAbbreviation(prefix string) bool {
	end := len(prefix)
	start := end
	for start > 0 {
		c := prefix[start-1]
		if c == ' ' || c == '\n' || c == '\t' {
			break
		}
		start--
	}
	word := strings.ToLower(strings.TrimRight(prefix[start:end], "."))
	if word == "" {
		return false
	}
	if abbreviations[word] {
		return true
	}
	// Single-letter initials: "J. R. Tolkien".
	r, size := utf8.DecodeRuneInString(word)
	return size == len(word) && unicode.IsLetter(r)
}

// insideMarkup reports whether the end of s falls inside an open markup
// span or an unterminated tag, so a cut there would sever the markup.
func insideMarkup(s string) bool {
	depth := 0
	for i := 0; i < len(s); i++ {
		if s[i] != '<' {
			continue
		}
		end := strings.IndexByte(s[i:], '>')
		if end < 0 {
			return true // unterminated tag at the cut point
		}
		tag := s[i+1 : i+end]
		if strings.HasPrefix(tag, "/") {
			depth--
		} else {
			depth++
		}
		i += end
	}
	return depth > 0
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t'
}
