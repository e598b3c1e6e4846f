package attend

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/yumio/endwatch/pkg/alert"
	"github.com/yumio/endwatch/pkg/codes"
)

// StateSink records which day each profile last checked in successfully and
// persists that record after a run.
type StateSink interface {
	MarkSuccess(profileID, day string)
	Save() error
}

// EmbedBuilder formats one profile's run outcome for notification.
type EmbedBuilder func(result RunResult, reason codes.RunReason, index, total int, timestamp time.Time) alert.Embed

// Service runs attendance for a set of profiles sequentially, retrying once
// after a sign token refresh when a call fails with an auth-shaped error.
type Service struct {
	client      Client
	profiles    []*Profile
	state       StateSink
	formatLabel func(profile *Profile, index int) string
	refresh     TokenRefresher
	buildEmbed  EmbedBuilder
	notifier    alert.Notifier
	logger      *slog.Logger

	inFlight atomic.Bool
}

// ServiceOptions wires a Service. Refresh, BuildEmbed, and Notifier are
// optional.
type ServiceOptions struct {
	Client      Client
	Profiles    []*Profile
	State       StateSink
	FormatLabel func(profile *Profile, index int) string
	Refresh     TokenRefresher
	BuildEmbed  EmbedBuilder
	Notifier    alert.Notifier
	Logger      *slog.Logger
}

func NewService(opts ServiceOptions) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	formatLabel := opts.FormatLabel
	if formatLabel == nil {
		formatLabel = func(profile *Profile, index int) string {
			if name := strings.TrimSpace(profile.AccountName); name != "" {
				return name
			}
			return fmt.Sprintf("Profile %d", index)
		}
	}
	return &Service{
		client:      opts.Client,
		profiles:    opts.Profiles,
		state:       opts.State,
		formatLabel: formatLabel,
		refresh:     opts.Refresh,
		buildEmbed:  opts.BuildEmbed,
		notifier:    opts.Notifier,
		logger:      logger,
	}
}

// Profiles returns the configured profiles.
func (s *Service) Profiles() []*Profile { return s.profiles }

// shouldRetryAfterRefresh matches the failure messages that indicate a stale
// sign token rather than a permanent error.
func shouldRetryAfterRefresh(result *Result) bool {
	if result.OK || result.Already {
		return false
	}
	message := strings.ToLower(result.Message)
	return strings.Contains(message, "http 401") || strings.Contains(message, "request exception")
}

// Run checks in every target profile in order. A nil targets slice means all
// configured profiles. Overlapping runs are skipped, not queued.
func (s *Service) Run(ctx context.Context, reason codes.RunReason, targets []*Profile) ([]RunResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("attendance run skipped; another run is in progress")
		return nil, nil
	}
	defer s.inFlight.Store(false)

	if targets == nil {
		targets = s.profiles
	}
	startedAt := time.Now()
	today := ShanghaiDate(startedAt)
	results := make([]RunResult, 0, len(targets))

	s.logger.Info("attendance run started", "reason", reason, "profiles", len(targets))

	for i, profile := range targets {
		index := i + 1
		label := s.formatLabel(profile, index)
		s.logger.Info("running attendance", "profile", label, "reason", reason)

		result, err := s.client.Attend(ctx, profile)
		if err != nil {
			result = &Result{Message: err.Error()}
		}
		if s.refresh != nil && shouldRetryAfterRefresh(result) {
			s.logger.Warn("attendance check-in failed with auth error; refreshing sign token and retrying",
				"profile", label, "message", result.Message)
			if rerr := s.refresh(ctx, profile); rerr != nil {
				s.logger.Warn("attendance retry skipped; sign token refresh failed",
					"profile", label, "error", rerr.Error())
			} else if retried, aerr := s.client.Attend(ctx, profile); aerr != nil {
				result = &Result{Message: aerr.Error()}
			} else {
				result = retried
			}
		}

		ok := result.OK || result.Already
		if ok && s.state != nil {
			s.state.MarkSuccess(profile.ID, today)
		}

		runResult := RunResult{
			ProfileID:    profile.ID,
			ProfileLabel: label,
			OK:           ok,
			Already:      result.Already,
			Message:      result.Message,
			Rewards:      result.Rewards,
			Status:       result.Status,
		}
		results = append(results, runResult)

		s.logStatus(label, result.Status)
		if len(result.Rewards) > 0 {
			s.logger.Debug("attendance rewards", "profile", label, "rewards", formatRewardsInline(result.Rewards))
		} else if !ok {
			s.logger.Warn("attendance check-in failed", "profile", label, "message", result.Message)
		}

		if reason != codes.ReasonManual && s.notifier != nil && s.buildEmbed != nil {
			embed := s.buildEmbed(runResult, reason, index, len(targets), startedAt)
			if err := s.notifier.Send(ctx, alert.Payload{Embeds: []alert.Embed{embed}}); err != nil {
				s.logger.Warn("attendance notification failed", "profile", label, "error", err.Error())
			}
		}

		outcome := "ok"
		if !ok {
			outcome = "failed"
		}
		s.logger.Info(fmt.Sprintf("%s: %s - %s", label, outcome, result.Message))
	}

	if s.state != nil {
		if err := s.state.Save(); err != nil {
			return results, fmt.Errorf("save attendance state: %w", err)
		}
	}

	okCount := 0
	for _, r := range results {
		if r.OK {
			okCount++
		}
	}
	s.logger.Info("attendance run completed",
		"reason", reason,
		"profiles", len(targets),
		"ok", okCount,
		"failed", len(results)-okCount,
		"duration", time.Since(startedAt),
	)
	return results, nil
}

func (s *Service) logStatus(label string, status *Status) {
	if status == nil {
		return
	}
	if !status.OK {
		s.logger.Warn("attendance status unavailable", "profile", label, "message", status.Message)
		return
	}
	s.logger.Debug("attendance status",
		"profile", label,
		"today", status.HasToday,
		"done", status.DoneCount,
		"total", status.TotalCount,
		"missing", status.MissingCount,
	)
}

func formatRewardsInline(rewards []Reward) string {
	parts := make([]string, 0, len(rewards))
	for _, reward := range rewards {
		if reward.Count > 0 {
			parts = append(parts, fmt.Sprintf("%s x%d", reward.Name, reward.Count))
			continue
		}
		parts = append(parts, reward.Name)
	}
	return strings.Join(parts, ", ")
}
