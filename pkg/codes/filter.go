package codes

import (
	"regexp"
	"strings"
)

// nonCodeTokens are normalized tokens that match the code shape but are known
// page furniture: URL fragments, month names, table headings, button labels.
var nonCodeTokens = map[string]bool{
	"HTTPS":       true,
	"HTTP":        true,
	"WWW":         true,
	"YOUTUBE":     true,
	"ENDMIN":      true,
	"OFFICIAL":    true,
	"CHANNEL":     true,
	"ARTICLE":     true,
	"NEWS":        true,
	"DETAILS":     true,
	"WATCHLIST":   true,
	"JANUARY":     true,
	"FEBRUARY":    true,
	"MARCH":       true,
	"APRIL":       true,
	"MAY":         true,
	"JUNE":        true,
	"JULY":        true,
	"AUGUST":      true,
	"SEPTEMBER":   true,
	"OCTOBER":     true,
	"NOVEMBER":    true,
	"DECEMBER":    true,
	"RELATED":     true,
	"FEATURE":     true,
	"REWARD":      true,
	"CHARACTERS":  true,
	"RECOMMENDED": true,
	"IN-GAME":     true,
	"INGAME":      true,
	"COPIED":      true,
	"EXPIRED":     true,
	"ACTIVE":      true,
	"CODES":       true,
	"CODE":        true,
}

var (
	invalidCodeChars = regexp.MustCompile(`[^A-Z0-9_-]`)
	hasLetter        = regexp.MustCompile(`[A-Z]`)
	hasDigit         = regexp.MustCompile(`[0-9]`)
	allDigits        = regexp.MustCompile(`^[0-9]+$`)
)

// NormalizeCode uppercases raw and strips every character outside [A-Z0-9_-].
func NormalizeCode(raw string) string {
	return invalidCodeChars.ReplaceAllString(strings.ToUpper(raw), "")
}

// IsTrackableCode reports whether raw normalizes to a non-empty token that is
// not on the denylist. This is the registry's second line of defense behind
// the extraction-time LooksLikeCode heuristics.
func IsTrackableCode(raw string) bool {
	token := NormalizeCode(raw)
	if token == "" {
		return false
	}
	return !nonCodeTokens[token]
}

// LooksLikeCode applies the shape heuristics used at extraction time. Strong
// matches come from unambiguous delimiters (a table cell, a "- REDEEM"
// suffix) and skip the must-contain-a-digit rule.
func LooksLikeCode(raw string, strongMatch bool) bool {
	token := NormalizeCode(raw)
	if len(token) < 6 || len(token) > 24 {
		return false
	}
	if !hasLetter.MatchString(token) {
		return false
	}
	if allDigits.MatchString(token) {
		return false
	}
	if nonCodeTokens[token] {
		return false
	}
	if !strongMatch && !hasDigit.MatchString(token) {
		return false
	}
	if strings.HasPrefix(token, "HTTP") {
		return false
	}
	return true
}
