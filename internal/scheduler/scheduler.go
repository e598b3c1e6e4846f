// Package scheduler drives the periodic work: daily attendance with startup
// catch-up, recurring code watch scans, and sign token refresh.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/yumio/endwatch/internal/history"
	"github.com/yumio/endwatch/internal/store"
	"github.com/yumio/endwatch/pkg/attend"
	"github.com/yumio/endwatch/pkg/codes"
)

// Options wires a Scheduler. Attendance, Watcher, History, and Refresh are
// all optional; a nil component disables the corresponding loop.
type Options struct {
	Attendance     *attend.Service
	AttendState    *store.AttendState
	AttendEnabled  bool
	DailyHour      int
	DailyMinute    int
	StartupCatchup bool

	Watcher       *codes.Watcher
	WatchInterval time.Duration
	StartupScan   bool

	Refresh         attend.TokenRefresher
	RefreshInterval time.Duration

	History *history.Log
	Logger  *slog.Logger
}

// Scheduler runs the periodic loops until its context is cancelled.
type Scheduler struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WatchInterval < time.Minute {
		opts.WatchInterval = 45 * time.Minute
	}
	if opts.RefreshInterval < time.Minute {
		opts.RefreshInterval = 6 * time.Hour
	}
	return &Scheduler{opts: opts, logger: logger}
}

// Run starts the loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.startup(ctx)

	var watchC <-chan time.Time
	if s.opts.Watcher != nil && s.opts.Watcher.Enabled() {
		ticker := time.NewTicker(s.opts.WatchInterval)
		defer ticker.Stop()
		watchC = ticker.C
		s.logger.Info("code watch scheduled", "interval", s.opts.WatchInterval)
	}

	var refreshC <-chan time.Time
	if s.opts.Refresh != nil && s.opts.Attendance != nil {
		ticker := time.NewTicker(s.opts.RefreshInterval)
		defer ticker.Stop()
		refreshC = ticker.C
		s.logger.Info("token refresh scheduled", "interval", s.opts.RefreshInterval)
	}

	var attendTimer *time.Timer
	var attendC <-chan time.Time
	if s.opts.Attendance != nil && s.opts.AttendEnabled {
		delay := untilNextDaily(time.Now(), s.opts.DailyHour, s.opts.DailyMinute)
		attendTimer = time.NewTimer(delay)
		defer attendTimer.Stop()
		attendC = attendTimer.C
		s.logger.Info("attendance scheduled",
			"dailyAt", time.Now().Add(delay).Format(time.RFC3339),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-attendC:
			s.runAttendance(ctx, codes.ReasonScheduled, nil)
			attendTimer.Reset(untilNextDaily(time.Now(), s.opts.DailyHour, s.opts.DailyMinute))
		case <-watchC:
			s.runWatch(ctx, codes.ReasonScheduled)
		case <-refreshC:
			s.refreshTokens(ctx)
		}
	}
}

// startup performs the catch-up attendance run for profiles that have not
// succeeded today and the initial watch scan.
func (s *Scheduler) startup(ctx context.Context) {
	if s.opts.Attendance != nil && s.opts.AttendEnabled && s.opts.StartupCatchup {
		today := attend.ShanghaiDate(time.Now())
		var due []*attend.Profile
		for _, profile := range s.opts.Attendance.Profiles() {
			if s.opts.AttendState == nil || s.opts.AttendState.LastSuccess(profile.ID) != today {
				due = append(due, profile)
			}
		}
		if len(due) > 0 {
			ids := make([]string, 0, len(due))
			for _, profile := range due {
				ids = append(ids, profile.ID)
			}
			s.logger.Info("startup catch-up triggered", "profiles", ids)
			s.runAttendance(ctx, codes.ReasonStartup, due)
		}
	}

	if s.opts.Watcher != nil && s.opts.Watcher.Enabled() && s.opts.StartupScan {
		s.runWatch(ctx, codes.ReasonStartup)
	}
}

func (s *Scheduler) runAttendance(ctx context.Context, reason codes.RunReason, targets []*attend.Profile) {
	results, err := s.opts.Attendance.Run(ctx, reason, targets)
	if err != nil {
		s.logger.Error("attendance run failed", "reason", reason, "error", err.Error())
	}
	if s.opts.History == nil {
		return
	}
	for _, result := range results {
		outcome := "ok"
		switch {
		case result.Already:
			outcome = "already"
		case !result.OK:
			outcome = "failed"
		}
		rewards := make([]string, 0, len(result.Rewards))
		for _, reward := range result.Rewards {
			rewards = append(rewards, reward.Name)
		}
		entry := &history.AttendanceEntry{
			ProfileID: result.ProfileID,
			RunReason: string(reason),
			Outcome:   outcome,
			Detail:    result.Message,
			Rewards:   rewards,
		}
		if err := s.opts.History.RecordAttendance(ctx, entry); err != nil {
			s.logger.Warn("attendance history record failed", "profileId", result.ProfileID, "error", err.Error())
		}
	}
}

func (s *Scheduler) runWatch(ctx context.Context, reason codes.RunReason) {
	summary, err := s.opts.Watcher.Run(ctx, reason)
	if err != nil {
		s.logger.Error("code watch run failed", "reason", reason, "error", err.Error())
	}
	if summary == nil || s.opts.History == nil {
		return
	}
	if err := s.opts.History.RecordWatch(ctx, summary); err != nil {
		s.logger.Warn("watch history record failed", "error", err.Error())
	}
}

func (s *Scheduler) refreshTokens(ctx context.Context) {
	for _, profile := range s.opts.Attendance.Profiles() {
		if profile.SignToken == "" && profile.SignSecret == "" {
			continue
		}
		if err := s.opts.Refresh(ctx, profile); err != nil {
			s.logger.Warn("sign token refresh failed", "profileId", profile.ID, "error", err.Error())
			continue
		}
		s.logger.Debug("sign token refreshed", "profileId", profile.ID)
	}
}

// untilNextDaily computes the wait until the next daily run in the game
// server's timezone, so the check-in lands just after the attendance day
// rolls over.
func untilNextDaily(now time.Time, hour, minute int) time.Duration {
	local := now.In(attend.Location())
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, attend.Location())
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(local)
}
