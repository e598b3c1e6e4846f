package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/yumio/endwatch/pkg/attend"
	"github.com/yumio/endwatch/pkg/codes"
)

func trackedWith(code string, tiers ...codes.Tier) *codes.TrackedCode {
	tracked := &codes.TrackedCode{Code: code, FirstSeenAt: time.Unix(1700000000, 0)}
	for i, tier := range tiers {
		tracked.Sources = append(tracked.Sources, codes.TrackedCodeSource{
			SourceID:   string(rune('a' + i)),
			SourceName: "Game8 Endfield Codes",
			SourceTier: tier,
		})
	}
	return tracked
}

func TestCodeConfidence(t *testing.T) {
	cases := []struct {
		tracked *codes.TrackedCode
		want    string
	}{
		{trackedWith("A1B2C3", codes.TierOfficial, codes.TierCommunity), "Official source"},
		{trackedWith("A1B2C3", codes.TierCurated), "Curated source"},
		{trackedWith("A1B2C3", codes.TierCommunity, codes.TierCommunity), "Cross-source confirmation"},
		{trackedWith("A1B2C3", codes.TierCommunity), "Community-only (unverified)"},
	}
	for _, tc := range cases {
		if got := codeConfidence(tc.tracked); got != tc.want {
			t.Errorf("codeConfidence = %q, want %q", got, tc.want)
		}
	}
}

func TestFormatSourceName(t *testing.T) {
	if got := formatSourceName("Game8 Endfield Codes"); got != "Game8" {
		t.Errorf("formatSourceName = %q", got)
	}
	if got := formatSourceName("Destructoid"); got != "Destructoid" {
		t.Errorf("formatSourceName = %q", got)
	}
}

func TestFormatRewardsList(t *testing.T) {
	if got := FormatRewardsList(nil); got != "None" {
		t.Errorf("empty rewards = %q", got)
	}
	rewards := []attend.Reward{
		{Name: "Originium", Count: 50},
		{Name: "Sticker"},
	}
	want := "- Originium x50\n- Sticker"
	if got := FormatRewardsList(rewards); got != want {
		t.Errorf("FormatRewardsList = %q, want %q", got, want)
	}
}

func TestBuildRunEmbed(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	result := attend.RunResult{
		ProfileLabel: "Endmin",
		OK:           true,
		Message:      "check-in successful",
		Rewards:      []attend.Reward{{Name: "Originium", Count: 50, Icon: "https://cdn.example.com/r3.png"}},
		Status:       &attend.Status{OK: true, DoneCount: 3, TotalCount: 28},
	}

	embed := BuildRunEmbed(result, codes.ReasonScheduled, 1, 2, ts)
	if embed.Color != colorSuccess {
		t.Errorf("color = %#x", embed.Color)
	}
	if embed.Fields[0].Value != "Endmin" {
		t.Errorf("username field = %q", embed.Fields[0].Value)
	}
	if embed.Fields[2].Value != "3/28" {
		t.Errorf("progress field = %q", embed.Fields[2].Value)
	}
	if embed.Footer.Text != "Endfield Auto Check-in (1/2) - Scheduled" {
		t.Errorf("footer = %q", embed.Footer.Text)
	}
	if embed.Thumbnail == nil || embed.Thumbnail.URL == "" {
		t.Error("reward icon not used as thumbnail")
	}

	failed := BuildRunEmbed(attend.RunResult{ProfileLabel: "Endmin"}, codes.ReasonScheduled, 1, 1, ts)
	if failed.Color != colorError {
		t.Errorf("failed color = %#x", failed.Color)
	}

	already := BuildRunEmbed(attend.RunResult{ProfileLabel: "Endmin", OK: true, Already: true}, codes.ReasonScheduled, 1, 1, ts)
	if already.Color != colorWarn {
		t.Errorf("already color = %#x", already.Color)
	}
}

func TestBuildStatusEmbed(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	status := &attend.Status{
		OK:           true,
		DoneCount:    3,
		TotalCount:   28,
		MissingCount: 1,
		TodayRewards: []attend.Reward{{Name: "Originium", Count: 50, Icon: "https://cdn.example.com/r3.png"}},
	}

	embed := BuildStatusEmbed("Endmin", status, ts)
	if embed.Color != colorInfo {
		t.Errorf("color = %#x", embed.Color)
	}
	if embed.Fields[0].Value != "Endmin" {
		t.Errorf("username field = %q", embed.Fields[0].Value)
	}
	if embed.Fields[1].Value != "- Originium x50" {
		t.Errorf("reward field = %q", embed.Fields[1].Value)
	}
	if embed.Fields[2].Value != "3/28" || embed.Fields[3].Value != "1" {
		t.Errorf("progress/missing = %q / %q", embed.Fields[2].Value, embed.Fields[3].Value)
	}
	if embed.Thumbnail == nil || embed.Thumbnail.URL == "" {
		t.Error("reward icon not used as thumbnail")
	}

	status.HasToday = true
	claimed := BuildStatusEmbed("Endmin", status, ts)
	if claimed.Fields[1].Value != "Already claimed" {
		t.Errorf("claimed reward field = %q", claimed.Fields[1].Value)
	}

	failed := BuildStatusEmbed("Endmin", nil, ts)
	if failed.Color != colorError {
		t.Errorf("failed color = %#x", failed.Color)
	}
	if failed.Footer.Text != "Status check failed" {
		t.Errorf("failed footer = %q", failed.Footer.Text)
	}
}

func TestBuildCodesListEmbed(t *testing.T) {
	ts := time.Unix(1700000000, 0)

	empty := BuildCodesListEmbed(nil, "", ts)
	if empty.Description != "No redeem codes have been tracked yet." {
		t.Errorf("empty description = %q", empty.Description)
	}
	scoped := BuildCodesListEmbed(nil, "game8", ts)
	if !strings.Contains(scoped.Description, "for game8") {
		t.Errorf("scoped description = %q", scoped.Description)
	}

	tracked := []*codes.TrackedCode{
		trackedWith("ENDFIELD2026", codes.TierCurated),
		trackedWith("LAUNCHWEEK1", codes.TierCommunity),
	}
	embed := BuildCodesListEmbed(tracked, "", ts)
	if embed.Color != colorInfo {
		t.Errorf("color = %#x", embed.Color)
	}
	lines := strings.Split(embed.Description, "\n")
	if len(lines) != 2 {
		t.Fatalf("description lines = %d, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[0], "`ENDFIELD2026` - Curated source") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "`LAUNCHWEEK1` - Community-only (unverified)") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestBuildCodeDiscoveryEmbed(t *testing.T) {
	tracked := trackedWith("ENDFIELD2026", codes.TierCurated)
	tracked.Sources[0].ReferenceURL = "https://game8.co/endfield"

	embed := BuildCodeDiscoveryEmbed(tracked, codes.ReasonScheduled, 1, 1, time.Unix(1700000000, 0))
	if embed.Fields[0].Value != "`ENDFIELD2026`" {
		t.Errorf("code field = %q", embed.Fields[0].Value)
	}
	if embed.Fields[1].Value != "Curated source" {
		t.Errorf("confidence field = %q", embed.Fields[1].Value)
	}
	if embed.URL != "https://game8.co/endfield" {
		t.Errorf("embed URL = %q", embed.URL)
	}
	if !strings.Contains(embed.Footer.Text, "Scheduled scan") {
		t.Errorf("footer = %q", embed.Footer.Text)
	}
}

func TestBuildCodeListValueTruncates(t *testing.T) {
	var tracked []*codes.TrackedCode
	for i := 0; i < 60; i++ {
		tracked = append(tracked, trackedWith("LONGCODE2026EXAMPLE"+string(rune('A'+i%26)), codes.TierCurated))
	}

	value := buildCodeListValue(tracked)
	if len(value) > fieldValueMax {
		t.Fatalf("value length = %d, over field limit", len(value))
	}
	if !strings.Contains(value, "more") {
		t.Error("truncated list has no overflow marker")
	}
}

func TestBuildDiscoveryPayload(t *testing.T) {
	one := []*codes.TrackedCode{trackedWith("ENDFIELD2026", codes.TierCurated)}
	payload := BuildDiscoveryPayload(one, codes.ReasonScheduled, time.Unix(1700000000, 0))
	if len(payload.Embeds) != 1 || payload.Embeds[0].Title != "Endfield Redemption Code" {
		t.Errorf("single-code payload = %+v", payload.Embeds)
	}

	many := append(one, trackedWith("LAUNCHWEEK1", codes.TierCurated))
	payload = BuildDiscoveryPayload(many, codes.ReasonScheduled, time.Unix(1700000000, 0))
	if len(payload.Embeds) != 1 || payload.Embeds[0].Title != "Endfield Redemption Codes" {
		t.Errorf("batch payload = %+v", payload.Embeds)
	}
}

func TestBuildWatchRunEmbed(t *testing.T) {
	summary := &codes.RunSummary{
		Mode:           codes.ModeActive,
		Reason:         codes.ReasonStartup,
		CheckedSources: []string{"game8"},
		SkippedSources: []codes.SkippedSource{{SourceID: "destructoid", Reason: "backoff active"}},
		NotifiedCodes:  []*codes.TrackedCode{trackedWith("ENDFIELD2026", codes.TierCurated)},
		TotalKnown:     4,
	}

	embed := BuildWatchRunEmbed(summary, time.Unix(1700000000, 0))
	if embed.Color != colorSuccess {
		t.Errorf("color with notified codes = %#x", embed.Color)
	}
	if embed.Fields[1].Value != "Startup scan" {
		t.Errorf("reason field = %q", embed.Fields[1].Value)
	}
	if embed.Fields[3].Value != "destructoid: backoff active" {
		t.Errorf("skipped field = %q", embed.Fields[3].Value)
	}

	summary.NotifiedCodes = nil
	quiet := BuildWatchRunEmbed(summary, time.Unix(1700000000, 0))
	if quiet.Color != colorInfo {
		t.Errorf("quiet color = %#x", quiet.Color)
	}
}
