package codesource

import (
	"regexp"
	"testing"
	"time"
)

func mustRe(pattern string) *regexp.Regexp {
	return regexp.MustCompile(pattern)
}

func TestStripHTML(t *testing.T) {
	in := `<html><head><style>.x { color: red; }</style><script>var a = "<td>";</script></head>` +
		`<body><p>Use code &amp; enjoy:</p> <b>ENDFIELD2025</b></body></html>`
	want := "Use code & enjoy: ENDFIELD2025"
	if got := stripHTML(in); got != want {
		t.Errorf("stripHTML = %q, want %q", got, want)
	}
}

func TestStripHTMLKeepBreaks(t *testing.T) {
	in := `<ul><li>ALPHA2026 - reward</li><li>BETA2026 - reward</li></ul><p>Done.</p>`
	got := stripHTMLKeepBreaks(in)
	// The list closer ends the block, so the trailing text starts its own
	// paragraph.
	want := "ALPHA2026 - reward\nBETA2026 - reward\n\nDone."
	if got != want {
		t.Errorf("stripHTMLKeepBreaks = %q, want %q", got, want)
	}
}

func TestStripHTMLKeepBreaksBrTags(t *testing.T) {
	in := `first line<br>second line<br/>third line`
	got := stripHTMLKeepBreaks(in)
	want := "first line\nsecond line\nthird line"
	if got != want {
		t.Errorf("stripHTMLKeepBreaks = %q, want %q", got, want)
	}
}

func TestParseSiteDate(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
	}{
		{"February 3, 2026", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"Feb 3, 2026", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"3 February 2026", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"2026-02-03", time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
		{"  January 1, 2026  ", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"not a date", time.Time{}},
		{"", time.Time{}},
	}
	for _, tc := range cases {
		if got := parseSiteDate(tc.in); !got.Equal(tc.want) {
			t.Errorf("parseSiteDate(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestScopeSection(t *testing.T) {
	text := "intro\nACTIVE SECTION\nALPHA2026\nEXPIRED SECTION\nOLDCODE26\n"

	scoped := scopeSection(text, mustRe("ACTIVE SECTION"), mustRe("EXPIRED SECTION"))
	if want := "ACTIVE SECTION\nALPHA2026\n"; scoped != want {
		t.Errorf("scoped = %q, want %q", scoped, want)
	}

	// Missing start marker falls back to the full text.
	if got := scopeSection(text, mustRe("NO SUCH MARKER"), mustRe("EXPIRED SECTION")); got != text {
		t.Errorf("missing start: got %q", got)
	}

	// Missing end marker keeps everything after start.
	got := scopeSection(text, mustRe("EXPIRED SECTION"), mustRe("NO SUCH MARKER"))
	if want := "EXPIRED SECTION\nOLDCODE26\n"; got != want {
		t.Errorf("missing end: got %q, want %q", got, want)
	}
}
