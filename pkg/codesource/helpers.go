package codesource

import (
	"html"
	"regexp"
	"strings"
	"time"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]+>`)
	spaceRe  = regexp.MustCompile(`[ \t\x{00a0}]+`)

	breakTagRe = regexp.MustCompile(`(?i)<br\s*/?>|</(?:p|div|li|ul|ol|tr|h[1-6]|section|article|table)>`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// stripHTML collapses markup into a single line of text. Good for scanning
// token-level patterns where layout does not matter.
func stripHTML(raw string) string {
	text := scriptRe.ReplaceAllString(raw, " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = spaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// stripHTMLKeepBreaks collapses markup to text but turns block-level closers
// and <br> into newlines, preserving enough structure for line-oriented
// extractors (bullet lists, one-code-per-row tables).
func stripHTMLKeepBreaks(raw string) string {
	text := scriptRe.ReplaceAllString(raw, " ")
	text = styleRe.ReplaceAllString(text, " ")
	text = breakTagRe.ReplaceAllString(text, "\n")
	text = tagRe.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
	}
	text = strings.Join(lines, "\n")
	text = blankRunRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

var siteDateLayouts = []string{
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2006-01-02",
}

// parseSiteDate parses the human-readable publish dates the watched sites
// print, returning the zero time when nothing matches.
func parseSiteDate(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range siteDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
