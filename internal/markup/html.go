// Package markup converts model output (a markdown-ish dialect) into the
// HTML subset the Telegram transport accepts, and produces the plain-text
// form used for the delivery fallback.
package markup

import (
	"regexp"
	"strings"
)

var (
	spaceRuns   = regexp.MustCompile(`[ \t]+`)
	newlineRuns = regexp.MustCompile(`\n{3,}`)

	boldSpan   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	italicSpan = regexp.MustCompile(`\*([^*\n]+)\*`)
	codeBlock  = regexp.MustCompile("(?s)```(?:[a-zA-Z0-9+#-]*\n)?(.*?)```")
	strikeSpan = regexp.MustCompile(`~([^~\n]+)~`)
)

// Render returns text as Telegram-flavored HTML: special characters
// escaped, then markdown spans converted to tags. Escaping happens first so
// only the injected tags survive as markup.
func Render(text string) string {
	s := normalize(text)
	s = escape(s)
	s = codeBlock.ReplaceAllString(s, "<pre><code>$1</code></pre>")
	s = boldSpan.ReplaceAllString(s, "<b>$1</b>")
	s = italicSpan.ReplaceAllString(s, "<i>$1</i>")
	s = strikeSpan.ReplaceAllString(s, "<strike>$1</strike>")
	return s
}

// Plain returns text with markdown markers stripped, for transports (or
// fallback sends) that render no markup at all.
func Plain(text string) string {
	s := normalize(text)
	s = codeBlock.ReplaceAllString(s, "$1")
	s = boldSpan.ReplaceAllString(s, "$1")
	s = italicSpan.ReplaceAllString(s, "$1")
	s = strikeSpan.ReplaceAllString(s, "$1")
	return s
}

// normalize collapses runs of spaces and tabs and caps consecutive blank
// lines at one, preserving paragraph structure.
func normalize(text string) string {
	s := spaceRuns.ReplaceAllString(text, " ")
	s = newlineRuns.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
