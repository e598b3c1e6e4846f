// Package attend implements daily attendance check-in against the game's web
// endpoint: request signing, status/check-in calls, token refresh, and the
// per-profile run loop.
package attend

import (
	"context"
	"time"
)

// Profile holds one account's credentials as stored in profiles.json. The
// sign fields are alternatives: a static precomputed sign, a refreshable
// signToken, or a long-lived signSecret. signSecret wins when both keys are
// present.
type Profile struct {
	ID          string `json:"id"`
	AccountName string `json:"accountName,omitempty"`
	Cred        string `json:"cred"`
	SkGameRole  string `json:"skGameRole"`
	Platform    string `json:"platform"`
	VName       string `json:"vName"`
	Sign        string `json:"sign,omitempty"`
	SignToken   string `json:"signToken,omitempty"`
	SignSecret  string `json:"signSecret,omitempty"`
	DeviceID    string `json:"deviceId,omitempty"`
}

// Reward is one granted or upcoming attendance reward.
type Reward struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
	Icon  string `json:"icon,omitempty"`
}

// Status summarizes the attendance calendar for one profile. A failed lookup
// sets OK false with a message; the counters are only meaningful when OK.
type Status struct {
	OK           bool     `json:"ok"`
	Message      string   `json:"message"`
	HasToday     bool     `json:"hasToday"`
	DoneCount    int      `json:"doneCount"`
	TotalCount   int      `json:"totalCount"`
	MissingCount int      `json:"missingCount"`
	TodayRewards []Reward `json:"todayRewards,omitempty"`
}

// Result is the outcome of one check-in attempt. Already marks the benign
// "already checked in today" case, which counts as success for scheduling.
type Result struct {
	OK      bool     `json:"ok"`
	Already bool     `json:"already,omitempty"`
	Message string   `json:"message"`
	Rewards []Reward `json:"rewards,omitempty"`
	Status  *Status  `json:"status,omitempty"`
}

// RunResult is one profile's outcome within a service run.
type RunResult struct {
	ProfileID    string   `json:"profileId"`
	ProfileLabel string   `json:"profileLabel,omitempty"`
	OK           bool     `json:"ok"`
	Already      bool     `json:"already,omitempty"`
	Message      string   `json:"message"`
	Rewards      []Reward `json:"rewards,omitempty"`
	Status       *Status  `json:"status,omitempty"`
}

// Client is the attendance API boundary, split out so the service can be
// tested against a fake.
type Client interface {
	FetchStatus(ctx context.Context, profile *Profile) (*Status, error)
	Attend(ctx context.Context, profile *Profile) (*Result, error)
}

// TokenRefresher refreshes a profile's sign token in place.
type TokenRefresher func(ctx context.Context, profile *Profile) error

var shanghaiLoc = loadShanghai()

func loadShanghai() *time.Location {
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		return time.FixedZone("CST", 8*3600)
	}
	return loc
}

// ShanghaiDate formats t as YYYY-MM-DD in the game server's timezone. The
// attendance day rolls over at midnight Shanghai time, not local time.
func ShanghaiDate(t time.Time) string {
	return t.In(shanghaiLoc).Format("2006-01-02")
}

// Location returns the game server's timezone.
func Location() *time.Location {
	return shanghaiLoc
}
