package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/yumio/endwatch/internal/config"
	"github.com/yumio/endwatch/internal/history"
	"github.com/yumio/endwatch/internal/notify"
	"github.com/yumio/endwatch/internal/profile"
	"github.com/yumio/endwatch/internal/scheduler"
	"github.com/yumio/endwatch/internal/store"
	"github.com/yumio/endwatch/pkg/alert"
	"github.com/yumio/endwatch/pkg/attend"
	"github.com/yumio/endwatch/pkg/codes"
	"github.com/yumio/endwatch/pkg/codesource"
	"github.com/yumio/endwatch/pkg/server"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL, logger))
	}
	if cfg.Alerts.Telegram.Enabled && cfg.Alerts.Telegram.BotToken != "" && cfg.Alerts.Telegram.ChatID != "" {
		notifiers = append(notifiers, alert.NewTelegram(
			cfg.Alerts.Telegram.BotToken,
			cfg.Alerts.Telegram.ChatID,
			cfg.Alerts.Telegram.ThreadID,
			logger,
		))
	}

	return alert.NewManager(notifiers, logger)
}

func buildWatcher(cfg *config.Config, notifier *alert.Manager, logger *slog.Logger) *codes.Watcher {
	sources, unknown := codesource.Resolve(cfg.CodeWatch.Sources)
	if len(unknown) > 0 {
		logger.Warn("unknown code sources in config", "sourceIds", unknown, "known", codesource.IDs())
	}

	codeStore := store.NewCodeStore(cfg.Data.Path, logger)
	state := codeStore.Load()

	var watcherNotifier alert.Notifier
	if notifier != nil && notifier.HasNotifiers() {
		watcherNotifier = notifier
	}

	return codes.NewWatcher(codes.Config{
		Enabled:            cfg.CodeWatch.Enabled,
		Mode:               codes.Mode(cfg.CodeWatch.Mode),
		Timeout:            cfg.CodeWatch.ParseHTTPTimeout(),
		LeaseTTL:           cfg.CodeWatch.ParseLeaseTTL(),
		MaxRequestsPerHour: cfg.CodeWatch.MaxRequestsPerHour,
	}, sources, codeStore, state, watcherNotifier, notify.BuildDiscoveryPayload, logger)
}

func buildAttendance(cfg *config.Config, notifier *alert.Manager, logger *slog.Logger) (*attend.Service, *store.AttendState, attend.TokenRefresher, error) {
	profiles, err := profile.NewRepository(cfg.Data.ResolvedProfilePath()).Load()
	if err != nil {
		return nil, nil, nil, err
	}

	stateStore := store.NewStateStore(cfg.Data.Path, logger)
	attendState := store.NewAttendState(stateStore.Load(), stateStore)

	authClient := attend.NewAuthClient()
	refresh := func(ctx context.Context, p *attend.Profile) error {
		token, err := authClient.RefreshSignToken(ctx, p)
		if err != nil {
			return err
		}
		p.SignToken = token
		return nil
	}

	var svcNotifier alert.Notifier
	if notifier != nil && notifier.HasNotifiers() {
		svcNotifier = notifier
	}

	svc := attend.NewService(attend.ServiceOptions{
		Client:   attend.NewHTTPClient(logger),
		Profiles: profiles,
		State:    attendState,
		FormatLabel: func(p *attend.Profile, index int) string {
			return profile.FormatLabel(p, index)
		},
		Refresh:    refresh,
		BuildEmbed: notify.BuildRunEmbed,
		Notifier:   svcNotifier,
		Logger:     logger,
	})
	return svc, attendState, refresh, nil
}

func openHistory(cfg *config.Config) (*history.Log, error) {
	if err := os.MkdirAll(cfg.Data.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return history.Open(cfg.Data.ResolvedHistoryPath())
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg)

	if port == 0 {
		port = cfg.Server.Port
	}

	hist, err := openHistory(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer hist.Close()

	notifier := buildNotifier(cfg, logger)
	watcher := buildWatcher(cfg, notifier, logger)

	attendance, attendState, refresh, err := buildAttendance(cfg, notifier, logger)
	if err != nil {
		if cfg.Attendance.Enabled {
			return fmt.Errorf("load profiles: %w", err)
		}
		logger.Warn("attendance disabled; profiles unavailable", "error", err.Error())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dailyHour, dailyMinute := cfg.Attendance.ParseDailyAt()
	sched := scheduler.New(scheduler.Options{
		Attendance:     attendance,
		AttendState:    attendState,
		AttendEnabled:  cfg.Attendance.Enabled && attendance != nil,
		DailyHour:      dailyHour,
		DailyMinute:    dailyMinute,
		StartupCatchup: cfg.Attendance.StartupCatchup,

		Watcher:       watcher,
		WatchInterval: cfg.CodeWatch.ParseInterval(),
		StartupScan:   cfg.CodeWatch.StartupScan,

		Refresh:         refresh,
		RefreshInterval: cfg.Attendance.ParseTokenRefreshInterval(),

		History: hist,
		Logger:  logger,
	})

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("scheduler error", "error", err.Error())
		}
	}()

	srv := server.New(watcher, hist, port)
	go func() {
		<-ctx.Done()
		fmt.Fprintln(os.Stderr, "\nshutting down...")
	}()

	return srv.ListenAndServe()
}

func runAttend(profileID string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg)

	attendance, _, _, err := buildAttendance(cfg, nil, logger)
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	var targets []*attend.Profile
	if profileID != "" {
		for _, p := range attendance.Profiles() {
			if p.ID == profileID {
				targets = []*attend.Profile{p}
				break
			}
		}
		if targets == nil {
			return fmt.Errorf("unknown profile: %s", profileID)
		}
	}

	results, err := attendance.Run(context.Background(), codes.ReasonManual, targets)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROFILE\tRESULT\tMESSAGE")
	for _, result := range results {
		outcome := "ok"
		switch {
		case result.Already:
			outcome = "already"
		case !result.OK:
			outcome = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", result.ProfileLabel, outcome, result.Message)
	}
	return w.Flush()
}

func runStatus(profileID string, sendNotify bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg)

	profiles, err := profile.NewRepository(cfg.Data.ResolvedProfilePath()).Load()
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	var notifier *alert.Manager
	if sendNotify {
		notifier = buildNotifier(cfg, logger)
		if !notifier.HasNotifiers() {
			return fmt.Errorf("--notify requires a configured notifier")
		}
	}

	client := attend.NewHTTPClient(logger)
	ctx := context.Background()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROFILE\tTODAY\tPROGRESS\tMISSING\tMESSAGE")
	for i, p := range profiles {
		if profileID != "" && p.ID != profileID {
			continue
		}
		label := profile.FormatLabel(p, i+1)
		status, err := client.FetchStatus(ctx, p)
		switch {
		case err != nil:
			fmt.Fprintf(w, "%s\terror\t-\t-\t%s\n", label, err.Error())
		case !status.OK:
			fmt.Fprintf(w, "%s\tunknown\t-\t-\t%s\n", label, status.Message)
		default:
			today := "pending"
			if status.HasToday {
				today = "done"
			}
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d\t%s\n",
				label, today, status.DoneCount, status.TotalCount, status.MissingCount, status.Message)
		}

		if notifier != nil {
			embed := notify.BuildStatusEmbed(label, status, time.Now())
			if err := notifier.Send(ctx, alert.Payload{Embeds: []alert.Embed{embed}}); err != nil {
				logger.Warn("status notification failed", "profile", label, "error", err.Error())
			}
		}
	}
	return w.Flush()
}

func runWatch(jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg)

	// Manual runs from the CLI always execute, regardless of the enabled
	// flag, and never notify.
	cfg.CodeWatch.Enabled = true
	watcher := buildWatcher(cfg, nil, logger)

	summary, err := watcher.Run(context.Background(), codes.ReasonManual)
	if err != nil {
		return err
	}

	if hist, herr := openHistory(cfg); herr == nil {
		hist.RecordWatch(context.Background(), summary)
		hist.Close()
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}

	fmt.Printf("checked: %s\n", strings.Join(summary.CheckedSources, ", "))
	for _, skipped := range summary.SkippedSources {
		fmt.Printf("skipped %s: %s\n", skipped.SourceID, skipped.Reason)
	}
	fmt.Printf("new codes: %d, notified: %d, total known: %d\n",
		len(summary.NewCodes), len(summary.NotifiedCodes), summary.TotalKnown)
	for _, code := range summary.NewCodes {
		fmt.Printf("  %s\n", code.Code)
	}
	return nil
}

func runCodes(jsonOutput bool, limit int, notifiedOnly bool, sourceID string, sendNotify bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg)

	cfg.CodeWatch.Enabled = true
	watcher := buildWatcher(cfg, nil, logger)
	tracked := watcher.ListLatest(limit, notifiedOnly, sourceID)

	if sendNotify {
		notifier := buildNotifier(cfg, logger)
		if !notifier.HasNotifiers() {
			return fmt.Errorf("--notify requires a configured notifier")
		}
		embed := notify.BuildCodesListEmbed(tracked, sourceID, time.Now())
		if err := notifier.Send(context.Background(), alert.Payload{Embeds: []alert.Embed{embed}}); err != nil {
			return fmt.Errorf("send codes notification: %w", err)
		}
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tracked)
	}

	if len(tracked) == 0 {
		fmt.Println("no codes tracked yet (try: endwatch watch)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CODE\tSOURCES\tFIRST SEEN\tLAST SEEN\tNOTIFIED")
	for _, code := range tracked {
		names := make([]string, 0, len(code.Sources))
		for _, src := range code.Sources {
			names = append(names, src.SourceID)
		}
		notified := "-"
		if !code.FirstNotifiedAt.IsZero() {
			notified = code.FirstNotifiedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			code.Code,
			strings.Join(names, ","),
			code.FirstSeenAt.Format(time.RFC3339),
			code.LastSeenAt.Format(time.RFC3339),
			notified,
		)
	}
	return w.Flush()
}

func runHistory(kind string, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	buildLogger(cfg)

	hist, err := openHistory(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer hist.Close()

	ctx := context.Background()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

	switch kind {
	case "attendance":
		entries, err := hist.ListAttendance(ctx, "", limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "RAN AT\tPROFILE\tREASON\tOUTCOME\tDETAIL")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				e.RanAt.Format(time.RFC3339), e.ProfileID, e.RunReason, e.Outcome, e.Detail)
		}
	case "watch":
		entries, err := hist.ListWatch(ctx, limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "STARTED AT\tREASON\tCHECKED\tSKIPPED\tNEW\tNOTIFIED\tKNOWN")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
				e.StartedAt.Format(time.RFC3339), e.RunReason,
				e.CheckedCount, e.SkippedCount, len(e.NewCodes), len(e.NotifiedCodes), e.TotalKnown)
		}
	default:
		return fmt.Errorf("unknown history kind: %s (want attendance or watch)", kind)
	}
	return w.Flush()
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := buildLogger(cfg)

	if port == 0 {
		port = cfg.Server.Port
	}

	hist, err := openHistory(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer hist.Close()

	watcher := buildWatcher(cfg, nil, logger)
	srv := server.New(watcher, hist, port)
	return srv.ListenAndServe()
}
