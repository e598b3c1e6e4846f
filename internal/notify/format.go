// Package notify formats service events as notification embeds.
package notify

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yumio/endwatch/pkg/alert"
	"github.com/yumio/endwatch/pkg/attend"
	"github.com/yumio/endwatch/pkg/codes"
)

const (
	colorSuccess = 0xf59f00
	colorWarn    = 0xf08c00
	colorError   = 0xe03131
	colorInfo    = 0x4c6ef5

	authorName    = "Perlica"
	authorIconURL = "https://play-lh.googleusercontent.com/l6FVNa293RykBWy88TqEhUakIcGSC8bRygSnKOBgztln48JX-WzMWnrBAETrKZsxDNC4HhwCsvfle_UI7rBE=s256-rw"

	fieldValueMax = 1024
)

func author() *alert.EmbedAuthor {
	return &alert.EmbedAuthor{Name: authorName, IconURL: authorIconURL}
}

func formatAttendReason(reason codes.RunReason) string {
	switch reason {
	case codes.ReasonStartup:
		return "Startup catch-up"
	case codes.ReasonManual:
		return "Manual"
	case codes.ReasonScheduled:
		return "Scheduled"
	default:
		return "Run"
	}
}

func formatWatchReason(reason codes.RunReason) string {
	switch reason {
	case codes.ReasonStartup:
		return "Startup scan"
	case codes.ReasonScheduled:
		return "Scheduled scan"
	case codes.ReasonManual:
		return "Manual scan"
	default:
		return "Scan"
	}
}

// asDiscordTime renders a Discord client-local timestamp tag.
func asDiscordTime(t time.Time) string {
	if t.IsZero() {
		return "Unknown"
	}
	return fmt.Sprintf("<t:%d:f>", t.Unix())
}

// codeConfidence labels how trustworthy a tracked code is, from its source
// tiers and count.
func codeConfidence(code *codes.TrackedCode) string {
	hasOfficial, hasCurated := false, false
	for _, src := range code.Sources {
		switch src.SourceTier {
		case codes.TierOfficial:
			hasOfficial = true
		case codes.TierCurated:
			hasCurated = true
		}
	}
	switch {
	case hasOfficial:
		return "Official source"
	case hasCurated:
		return "Curated source"
	case len(code.Sources) >= 2:
		return "Cross-source confirmation"
	default:
		return "Community-only (unverified)"
	}
}

var sourceNameSuffixRe = regexp.MustCompile(`(?i)\s+Endfield\s+Codes$`)

func formatSourceName(name string) string {
	return strings.TrimSpace(sourceNameSuffixRe.ReplaceAllString(name, ""))
}

func formatCodeSources(code *codes.TrackedCode) string {
	seen := map[string]bool{}
	var names []string
	for _, src := range code.Sources {
		name := formatSourceName(src.SourceName)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return "Unknown"
	}
	return strings.Join(names, ", ")
}

// FormatRewardsList renders rewards as a bullet list, "None" when empty.
func FormatRewardsList(rewards []attend.Reward) string {
	if len(rewards) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(rewards))
	for _, reward := range rewards {
		line := "- " + reward.Name
		if reward.Count > 0 {
			line += fmt.Sprintf(" x%d", reward.Count)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func pickRewardIcon(rewards []attend.Reward) string {
	for _, reward := range rewards {
		if reward.Icon != "" {
			return reward.Icon
		}
	}
	return ""
}

func formatProgress(status *attend.Status) string {
	if status == nil || !status.OK {
		return "Unknown"
	}
	return fmt.Sprintf("%d/%d", status.DoneCount, status.TotalCount)
}

func formatMissing(status *attend.Status) string {
	if status == nil || !status.OK {
		return "Unknown"
	}
	return fmt.Sprintf("%d", status.MissingCount)
}

// BuildRunEmbed formats one profile's attendance outcome.
func BuildRunEmbed(result attend.RunResult, reason codes.RunReason, index, total int, timestamp time.Time) alert.Embed {
	profileLabel := result.ProfileLabel
	if profileLabel == "" {
		profileLabel = "Profile"
	}

	color := colorError
	resultText := "Attendance failed, Endmin. Endfield systems report instability."
	switch {
	case result.OK && !result.Already:
		color = colorSuccess
		resultText = "Attendance logged, Endmin. Endfield systems are steady."
	case result.Already:
		color = colorWarn
		resultText = "Attendance already on record, Endmin. Endfield systems are steady."
	}

	rewardList := "None"
	if len(result.Rewards) > 0 {
		rewardList = FormatRewardsList(result.Rewards)
	} else if result.Status != nil && len(result.Status.TodayRewards) > 0 {
		rewardList = FormatRewardsList(result.Status.TodayRewards)
	}

	embed := alert.Embed{
		Title:  "Endfield Attendance",
		Author: author(),
		Color:  color,
		Fields: []alert.EmbedField{
			{Name: "Username", Value: profileLabel},
			{Name: "Today's Reward", Value: rewardList, Inline: true},
			{Name: "Progress", Value: formatProgress(result.Status), Inline: true},
			{Name: "Missing", Value: formatMissing(result.Status), Inline: true},
			{Name: "Result", Value: resultText},
		},
		Footer:    &alert.EmbedFooter{Text: fmt.Sprintf("Endfield Auto Check-in (%d/%d) - %s", index, total, formatAttendReason(reason))},
		Timestamp: timestamp.UTC().Format(time.RFC3339),
	}

	icon := pickRewardIcon(result.Rewards)
	if icon == "" && result.Status != nil {
		icon = pickRewardIcon(result.Status.TodayRewards)
	}
	if icon != "" {
		embed.Thumbnail = &alert.EmbedThumbnail{URL: icon}
	}
	return embed
}

// BuildStatusEmbed formats an attendance status check.
func BuildStatusEmbed(profileLabel string, status *attend.Status, timestamp time.Time) alert.Embed {
	embed := alert.Embed{
		Title:     "Endfield Attendance",
		Author:    author(),
		Timestamp: timestamp.UTC().Format(time.RFC3339),
	}

	if status == nil || !status.OK {
		embed.Color = colorError
		embed.Fields = []alert.EmbedField{
			{Name: "Username", Value: profileLabel},
			{Name: "Result", Value: "Status check failed, Endmin. Endfield systems report instability."},
		}
		embed.Footer = &alert.EmbedFooter{Text: "Status check failed"}
		return embed
	}

	rewardList := "Already claimed"
	if !status.HasToday && len(status.TodayRewards) > 0 {
		rewardList = FormatRewardsList(status.TodayRewards)
	}

	embed.Color = colorInfo
	embed.Fields = []alert.EmbedField{
		{Name: "Username", Value: profileLabel},
		{Name: "Today's Reward", Value: rewardList, Inline: true},
		{Name: "Progress", Value: formatProgress(status), Inline: true},
		{Name: "Missing", Value: formatMissing(status), Inline: true},
		{Name: "Result", Value: "Status check complete, Endmin. Endfield systems are steady."},
	}
	embed.Footer = &alert.EmbedFooter{Text: "Status check"}

	if icon := pickRewardIcon(status.TodayRewards); icon != "" {
		embed.Thumbnail = &alert.EmbedThumbnail{URL: icon}
	}
	return embed
}

// BuildCodeDiscoveryEmbed formats one newly notifiable code.
func BuildCodeDiscoveryEmbed(code *codes.TrackedCode, reason codes.RunReason, index, total int, timestamp time.Time) alert.Embed {
	embed := alert.Embed{
		Title:  "Endfield Redemption Code",
		Author: author(),
		Color:  colorSuccess,
		Fields: []alert.EmbedField{
			{Name: "Code", Value: "`" + code.Code + "`"},
			{Name: "Confidence", Value: codeConfidence(code), Inline: true},
			{Name: "First Seen", Value: asDiscordTime(code.FirstSeenAt), Inline: true},
			{Name: "Sources", Value: formatCodeSources(code)},
			{Name: "Redeem", Value: "Redeem in-game only."},
		},
		Footer:    &alert.EmbedFooter{Text: fmt.Sprintf("Endfield Code Watch (%d/%d) - %s", index, total, formatWatchReason(reason))},
		Timestamp: timestamp.UTC().Format(time.RFC3339),
	}

	if len(code.Sources) > 0 {
		primary := code.Sources[0]
		link := primary.ReferenceURL
		if link == "" {
			link = primary.SourceURL
		}
		embed.URL = link
	}
	return embed
}

// buildCodeListValue renders one code per line, truncating to the embed field
// limit with a "+N more" tail.
func buildCodeListValue(tracked []*codes.TrackedCode) string {
	lines := make([]string, 0, len(tracked))
	for _, code := range tracked {
		lines = append(lines, fmt.Sprintf("`%s` - %s", code.Code, codeConfidence(code)))
	}
	joined := strings.Join(lines, "\n")
	if len(joined) <= fieldValueMax {
		return joined
	}

	var selected []string
	length := 0
	for _, line := range lines {
		next := len(line)
		if len(selected) > 0 {
			next++
		}
		if length+next > fieldValueMax-32 {
			break
		}
		selected = append(selected, line)
		length += next
	}
	if remaining := len(lines) - len(selected); remaining > 0 {
		selected = append(selected, fmt.Sprintf("+%d more", remaining))
	}
	return strings.Join(selected, "\n")
}

// BuildCodeDiscoveryBatchEmbed formats a batch of newly notifiable codes as a
// single embed.
func BuildCodeDiscoveryBatchEmbed(tracked []*codes.TrackedCode, reason codes.RunReason, timestamp time.Time) alert.Embed {
	seen := map[string]bool{}
	var sourceNames []string
	for _, code := range tracked {
		for _, src := range code.Sources {
			name := formatSourceName(src.SourceName)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			sourceNames = append(sourceNames, name)
		}
	}
	sources := strings.Join(sourceNames, ", ")
	if sources == "" {
		sources = "Unknown"
	}
	if len(sources) > fieldValueMax {
		sources = sources[:fieldValueMax]
	}

	return alert.Embed{
		Title:  "Endfield Redemption Codes",
		Author: author(),
		Color:  colorSuccess,
		Fields: []alert.EmbedField{
			{Name: "New Codes", Value: buildCodeListValue(tracked)},
			{Name: "Count", Value: fmt.Sprintf("%d", len(tracked)), Inline: true},
			{Name: "Scan", Value: formatWatchReason(reason), Inline: true},
			{Name: "Checked At", Value: asDiscordTime(timestamp), Inline: true},
			{Name: "Sources", Value: sources},
			{Name: "Redeem", Value: "Redeem in-game only."},
		},
		Footer:    &alert.EmbedFooter{Text: "Code watch discovery"},
		Timestamp: timestamp.UTC().Format(time.RFC3339),
	}
}

// BuildCodesListEmbed formats the tracked code listing for the codes command.
func BuildCodesListEmbed(tracked []*codes.TrackedCode, sourceName string, timestamp time.Time) alert.Embed {
	embed := alert.Embed{
		Title:     "Endfield Redeem Codes",
		Author:    author(),
		Color:     colorInfo,
		Footer:    &alert.EmbedFooter{Text: "Redemption Codes"},
		Timestamp: timestamp.UTC().Format(time.RFC3339),
	}

	if len(tracked) == 0 {
		if sourceName != "" {
			embed.Description = fmt.Sprintf("No redeem codes have been tracked yet for %s.", sourceName)
		} else {
			embed.Description = "No redeem codes have been tracked yet."
		}
		return embed
	}

	lines := make([]string, 0, len(tracked))
	for _, code := range tracked {
		lines = append(lines, fmt.Sprintf("`%s` - %s - seen %s", code.Code, codeConfidence(code), asDiscordTime(code.FirstSeenAt)))
	}
	embed.Description = strings.Join(lines, "\n")
	embed.Fields = []alert.EmbedField{{Name: "Redeem", Value: "Redeem in-game only."}}
	return embed
}

// BuildWatchRunEmbed formats a full watch cycle summary.
func BuildWatchRunEmbed(summary *codes.RunSummary, timestamp time.Time) alert.Embed {
	color := colorInfo
	if len(summary.NotifiedCodes) > 0 {
		color = colorSuccess
	}

	skippedText := "None"
	if len(summary.SkippedSources) > 0 {
		lines := make([]string, 0, len(summary.SkippedSources))
		for _, item := range summary.SkippedSources {
			lines = append(lines, fmt.Sprintf("%s: %s", item.SourceID, item.Reason))
		}
		skippedText = strings.Join(lines, "\n")
		if len(skippedText) > fieldValueMax {
			skippedText = skippedText[:fieldValueMax]
		}
	}

	checked := "None"
	if len(summary.CheckedSources) > 0 {
		checked = strings.Join(summary.CheckedSources, ", ")
	}

	return alert.Embed{
		Title:  "Endfield Code Watch",
		Author: author(),
		Color:  color,
		Fields: []alert.EmbedField{
			{Name: "Mode", Value: string(summary.Mode), Inline: true},
			{Name: "Reason", Value: formatWatchReason(summary.Reason), Inline: true},
			{Name: "Checked Sources", Value: checked},
			{Name: "Skipped Sources", Value: skippedText},
			{Name: "New Codes", Value: fmt.Sprintf("%d", len(summary.NewCodes)), Inline: true},
			{Name: "Notified Codes", Value: fmt.Sprintf("%d", len(summary.NotifiedCodes)), Inline: true},
			{Name: "Total Known", Value: fmt.Sprintf("%d", summary.TotalKnown), Inline: true},
		},
		Footer:    &alert.EmbedFooter{Text: "Code watch run result"},
		Timestamp: timestamp.UTC().Format(time.RFC3339),
	}
}

// BuildDiscoveryPayload is the watcher's notification payload builder: one
// batch embed when several codes land at once, one detail embed otherwise.
func BuildDiscoveryPayload(tracked []*codes.TrackedCode, reason codes.RunReason, timestamp time.Time) alert.Payload {
	if len(tracked) > 1 {
		return alert.Payload{Embeds: []alert.Embed{BuildCodeDiscoveryBatchEmbed(tracked, reason, timestamp)}}
	}
	embeds := make([]alert.Embed, 0, len(tracked))
	for i, code := range tracked {
		embeds = append(embeds, BuildCodeDiscoveryEmbed(code, reason, i+1, len(tracked), timestamp))
	}
	return alert.Payload{Embeds: embeds}
}
