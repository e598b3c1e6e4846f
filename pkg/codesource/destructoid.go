package codesource

import (
	"regexp"
	"strings"
	"time"

	"github.com/yumio/endwatch/pkg/codes"
)

var (
	dtUpdatedRe = regexp.MustCompile(`(?i)updated:\s*([A-Za-z]+\s+\d{1,2},\s+\d{4})`)
	dtStartRe   = regexp.MustCompile(`(?i)active\s+arknights\s*:?\s*endfield\s+codes`)
	dtEndRe     = regexp.MustCompile(`(?i)expired\s+arknights\s*:?\s*endfield\s+codes`)
	dtBulletRe  = regexp.MustCompile(`\b([A-Z0-9_-]{6,24})\s*[\x{2013}\x{2014}-]\s*REDEEM\b`)
)

// extractDestructoid scans the Destructoid codes article, keeping only the
// active section (between the "Active" and "Expired" headings) and reading
// "CODE - Redeem..." bullets.
func extractDestructoid(text string, meta codes.SourceMeta) []codes.Candidate {
	var publishedAt time.Time
	if m := dtUpdatedRe.FindStringSubmatch(text); m != nil {
		publishedAt = parseSiteDate(m[1])
	}

	lines := stripHTMLKeepBreaks(text)
	scoped := scopeSection(lines, dtStartRe, dtEndRe)

	set := newCodeSet()
	upper := strings.ToUpper(scoped)
	for _, m := range dtBulletRe.FindAllStringSubmatch(upper, -1) {
		set.add(m[1])
	}

	return set.candidates(meta, publishedAt)
}

// Destructoid returns the Destructoid article source.
func Destructoid() codes.Source {
	return newAdapter(codes.SourceMeta{
		ID:                 "destructoid",
		Name:               "Destructoid Endfield Codes",
		URL:                "https://www.destructoid.com/arknights-endfield-codes/",
		Tier:               codes.TierCurated,
		MinInterval:        45 * time.Minute,
		MaxRequestsPerHour: 4,
	}, extractDestructoid)
}
