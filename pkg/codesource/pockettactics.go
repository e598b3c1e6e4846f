package codesource

import (
	"regexp"
	"strings"
	"time"

	"github.com/yumio/endwatch/pkg/codes"
)

var (
	ptUpdatedRe  = regexp.MustCompile(`(?i)updated:\s*([A-Za-z]+\s+\d{1,2},\s+\d{4})`)
	ptStartRe    = regexp.MustCompile(`(?i)here are the new arknights\s*:?\s*endfield codes`)
	ptEndRe      = regexp.MustCompile(`(?i)if you(?:'|\x{2019})re wondering which`)
	ptHTMLListRe = regexp.MustCompile(`(?i)<li>\s*<strong>\s*([A-Z0-9_-]{6,24})\s*</strong>\s*-`)
	ptTextListRe = regexp.MustCompile(`\b([A-Z0-9_-]{6,24})\b\s*-\s*\d|\b([A-Z0-9_-]{6,24})\b\s*-\s*T-CREDS\b`)
)

// extractPocketTactics scans the Pocket Tactics codes article. The active
// list sits between the "here are the new..." intro and the "if you're
// wondering which" transition; each entry is "CODE - reward".
func extractPocketTactics(text string, meta codes.SourceMeta) []codes.Candidate {
	var publishedAt time.Time
	if m := ptUpdatedRe.FindStringSubmatch(text); m != nil {
		publishedAt = parseSiteDate(m[1])
	}

	lines := stripHTMLKeepBreaks(text)
	scoped := scopeSection(lines, ptStartRe, ptEndRe)

	set := newCodeSet()
	for _, m := range ptHTMLListRe.FindAllStringSubmatch(text, -1) {
		set.add(m[1])
	}

	upper := strings.ToUpper(scoped)
	for _, m := range ptTextListRe.FindAllStringSubmatch(upper, -1) {
		token := m[1]
		if token == "" {
			token = m[2]
		}
		set.add(token)
	}

	return set.candidates(meta, publishedAt)
}

// PocketTactics returns the Pocket Tactics article source.
func PocketTactics() codes.Source {
	return newAdapter(codes.SourceMeta{
		ID:                 "pocket_tactics",
		Name:               "Pocket Tactics Endfield Codes",
		URL:                "https://www.pockettactics.com/arknights-endfield/codes",
		Tier:               codes.TierCurated,
		MinInterval:        45 * time.Minute,
		MaxRequestsPerHour: 4,
	}, extractPocketTactics)
}
