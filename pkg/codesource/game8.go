package codesource

import (
	"regexp"
	"strings"
	"time"

	"github.com/yumio/endwatch/pkg/codes"
)

var (
	game8TableRe     = regexp.MustCompile(`(?is)<table\b.*?</table>`)
	game8RowRe       = regexp.MustCompile(`(?is)<tr\b.*?</tr>`)
	game8HeaderRe    = regexp.MustCompile(`(?i)<th\b`)
	game8CellRe      = regexp.MustCompile(`(?is)<td\b.*?</td>`)
	game8BreakRe     = regexp.MustCompile(`(?i)<br\s*/?>`)
	game8ClipboardRe = regexp.MustCompile(`(?i)\bdata-clipboard-text\s*=\s*"([^"]+)"`)
	game8ValueRe     = regexp.MustCompile(`(?i)\bvalue\s*=\s*"([^"]+)"`)
	game8LeadingRe   = regexp.MustCompile(`^\s*([A-Z0-9_-]{6,24})\b`)
	game8UpdatedRe   = regexp.MustCompile(`(?i)last updated[:\s]*([A-Za-z]{3,9}\s+\d{1,2},\s+\d{4})`)
	redeemTableRe    = regexp.MustCompile(`(?i)\bredeem\s*codes\b`)

	game8NarrativeRes = []*regexp.Regexp{
		regexp.MustCompile(`\b([A-Z0-9_-]{6,24})\b\s+IS\s+AVAILABLE\b`),
		regexp.MustCompile(`\b([A-Z0-9_-]{6,24})\b\s+IS\s+LIMITED\b`),
	}
)

// extractGame8 scans the Game8 wiki page. Codes live in the first cell of
// "redeem codes" table rows, either as copy-button attributes or as the
// leading text of the cell, with a fallback on "X IS AVAILABLE" narratives.
func extractGame8(text string, meta codes.SourceMeta) []codes.Candidate {
	var publishedAt time.Time
	if m := game8UpdatedRe.FindStringSubmatch(text); m != nil {
		publishedAt = parseSiteDate(m[1])
	}

	set := newCodeSet()
	for _, table := range game8TableRe.FindAllString(text, -1) {
		if !redeemTableRe.MatchString(stripHTML(table)) {
			continue
		}
		for _, row := range game8RowRe.FindAllString(table, -1) {
			if game8HeaderRe.MatchString(row) {
				continue
			}
			cells := game8CellRe.FindAllString(row, -1)
			if len(cells) == 0 {
				continue
			}
			collectGame8Cell(set, cells[0])
		}
	}

	plain := strings.ToUpper(stripHTML(text))
	for _, re := range game8NarrativeRes {
		for _, m := range re.FindAllStringSubmatch(plain, -1) {
			set.add(m[1])
		}
	}

	return set.candidates(meta, publishedAt)
}

func collectGame8Cell(set *codeSet, cellHTML string) {
	for _, re := range []*regexp.Regexp{game8ClipboardRe, game8ValueRe} {
		for _, m := range re.FindAllStringSubmatch(cellHTML, -1) {
			set.add(m[1])
		}
	}

	firstSegment := game8BreakRe.Split(cellHTML, 2)[0]
	leadingText := strings.ToUpper(stripHTML(firstSegment))
	if m := game8LeadingRe.FindStringSubmatch(leadingText); m != nil {
		set.add(m[1])
	}
}

// Game8 returns the Game8 wiki source.
func Game8() codes.Source {
	return newAdapter(codes.SourceMeta{
		ID:                 "game8",
		Name:               "Game8 Endfield Codes",
		URL:                "https://game8.co/games/Arknights-Endfield/archives/571509",
		Tier:               codes.TierCurated,
		MinInterval:        45 * time.Minute,
		MaxRequestsPerHour: 4,
	}, extractGame8)
}
