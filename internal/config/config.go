package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultWatchSources = "game8,destructoid,pocket_tactics"

// Config is the root configuration.
type Config struct {
	Data       DataConfig       `yaml:"data"`
	Attendance AttendanceConfig `yaml:"attendance"`
	CodeWatch  CodeWatchConfig  `yaml:"code_watch"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
}

// DataConfig locates the on-disk state: profiles, JSON state files, and the
// run history database.
type DataConfig struct {
	Path        string `yaml:"path"`
	ProfilePath string `yaml:"profile_path"`
	HistoryPath string `yaml:"history_path"`
}

// ResolvedProfilePath returns the profiles file path, defaulting into the
// data directory.
func (d DataConfig) ResolvedProfilePath() string {
	if d.ProfilePath != "" {
		return d.ProfilePath
	}
	return filepath.Join(d.Path, "profiles.json")
}

// ResolvedHistoryPath returns the run history database path, defaulting into
// the data directory.
func (d DataConfig) ResolvedHistoryPath() string {
	if d.HistoryPath != "" {
		return d.HistoryPath
	}
	return filepath.Join(d.Path, "history.db")
}

// AttendanceConfig configures the daily check-in schedule.
type AttendanceConfig struct {
	Enabled              bool   `yaml:"enabled"`
	DailyAt              string `yaml:"daily_at"`
	StartupCatchup       bool   `yaml:"startup_catchup"`
	TokenRefreshInterval string `yaml:"token_refresh_interval"`
}

// ParseDailyAt returns the daily run time as hour and minute, falling back to
// 02:00 on a malformed value.
func (a AttendanceConfig) ParseDailyAt() (hour, minute int) {
	parts := strings.SplitN(a.DailyAt, ":", 2)
	if len(parts) == 2 {
		h, herr := strconv.Atoi(parts[0])
		m, merr := strconv.Atoi(parts[1])
		if herr == nil && merr == nil && h >= 0 && h < 24 && m >= 0 && m < 60 {
			return h, m
		}
	}
	return 2, 0
}

// ParseTokenRefreshInterval returns the sign token refresh interval.
func (a AttendanceConfig) ParseTokenRefreshInterval() time.Duration {
	d, err := time.ParseDuration(a.TokenRefreshInterval)
	if err != nil || d < time.Minute {
		return 6 * time.Hour
	}
	return d
}

// CodeWatchConfig configures the redeem code watcher.
type CodeWatchConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Mode               string   `yaml:"mode"`
	Interval           string   `yaml:"interval"`
	StartupScan        bool     `yaml:"startup_scan"`
	Sources            []string `yaml:"sources"`
	HTTPTimeout        string   `yaml:"http_timeout"`
	LeaseTTL           string   `yaml:"lease_ttl"`
	MaxRequestsPerHour int      `yaml:"max_requests_per_hour"`
}

// ParseInterval returns the scan interval.
func (c CodeWatchConfig) ParseInterval() time.Duration {
	d, err := time.ParseDuration(c.Interval)
	if err != nil || d < time.Minute {
		return 45 * time.Minute
	}
	return d
}

// ParseHTTPTimeout returns the per-fetch timeout.
func (c CodeWatchConfig) ParseHTTPTimeout() time.Duration {
	d, err := time.ParseDuration(c.HTTPTimeout)
	if err != nil || d < time.Second {
		return 10 * time.Second
	}
	return d
}

// ParseLeaseTTL returns the watch lease TTL.
func (c CodeWatchConfig) ParseLeaseTTL() time.Duration {
	d, err := time.ParseDuration(c.LeaseTTL)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// AlertsConfig configures alert destinations.
type AlertsConfig struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Telegram TelegramConfig `yaml:"telegram"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// TelegramConfig for Telegram Bot API alerts.
type TelegramConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
	ThreadID int    `yaml:"thread_id"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Data: DataConfig{Path: ".data"},
		Attendance: AttendanceConfig{
			Enabled:              true,
			DailyAt:              "02:00",
			StartupCatchup:       true,
			TokenRefreshInterval: "6h",
		},
		CodeWatch: CodeWatchConfig{
			Enabled:            false,
			Mode:               "active",
			Interval:           "45m",
			StartupScan:        true,
			Sources:            strings.Split(defaultWatchSources, ","),
			HTTPTimeout:        "10s",
			LeaseTTL:           "2m",
			MaxRequestsPerHour: 12,
		},
		Alerts: AlertsConfig{},
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if len(cfg.CodeWatch.Sources) == 0 {
		cfg.CodeWatch.Sources = strings.Split(defaultWatchSources, ",")
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ENDWATCH_DATA_PATH"); v != "" {
		cfg.Data.Path = v
	}
	if v := os.Getenv("ENDWATCH_PROFILE_PATH"); v != "" {
		cfg.Data.ProfilePath = v
	}
	if v := os.Getenv("ENDWATCH_CODE_WATCH_ENABLED"); v != "" {
		cfg.CodeWatch.Enabled = parseBool(v, cfg.CodeWatch.Enabled)
	}
	if v := os.Getenv("ENDWATCH_CODE_WATCH_MODE"); v != "" {
		cfg.CodeWatch.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("ENDWATCH_CODE_WATCH_SOURCES"); v != "" {
		cfg.CodeWatch.Sources = splitList(v)
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Alerts.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Alerts.Telegram.ChatID = v
	}
	if cfg.Alerts.Telegram.BotToken != "" && cfg.Alerts.Telegram.ChatID != "" {
		cfg.Alerts.Telegram.Enabled = true
	}
	if v := os.Getenv("ENDWATCH_LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}
}

func parseBool(raw string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}

func splitList(raw string) []string {
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
