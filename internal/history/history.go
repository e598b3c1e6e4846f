// Package history keeps an append-only run log in SQLite: one row per
// attendance attempt and one per watch cycle. The log is for inspection (CLI
// and API); service behavior never reads from it.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/yumio/endwatch/pkg/codes"
)

// AttendanceEntry records one attendance attempt for one profile.
type AttendanceEntry struct {
	ID          int64     `db:"id" json:"id"`
	ProfileID   string    `db:"profile_id" json:"profileId"`
	RunReason   string    `db:"run_reason" json:"runReason"`
	Outcome     string    `db:"outcome" json:"outcome"`
	Detail      string    `db:"detail" json:"detail,omitempty"`
	RewardsJSON string    `db:"rewards" json:"-"`
	Rewards     []string  `db:"-" json:"rewards"`
	RanAt       time.Time `db:"ran_at" json:"ranAt"`
}

// WatchEntry records one watch cycle.
type WatchEntry struct {
	ID            int64     `db:"id" json:"id"`
	RunReason     string    `db:"run_reason" json:"runReason"`
	CheckedCount  int       `db:"checked_count" json:"checkedCount"`
	SkippedCount  int       `db:"skipped_count" json:"skippedCount"`
	NewJSON       string    `db:"new_codes" json:"-"`
	NotifiedJSON  string    `db:"notified_codes" json:"-"`
	NewCodes      []string  `db:"-" json:"newCodes"`
	NotifiedCodes []string  `db:"-" json:"notifiedCodes"`
	TotalKnown    int       `db:"total_known" json:"totalKnown"`
	StartedAt     time.Time `db:"started_at" json:"startedAt"`
	FinishedAt    time.Time `db:"finished_at" json:"finishedAt"`
}

// Log is the SQLite-backed run log.
type Log struct {
	db *sqlx.DB
}

// Open opens (and migrates) the run log database at path.
func Open(path string) (*Log, error) {
	db, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error {
	return l.db.Close()
}

// RecordAttendance appends one attendance attempt.
func (l *Log) RecordAttendance(ctx context.Context, e *AttendanceEntry) error {
	rewardsJSON, _ := json.Marshal(e.Rewards)
	if e.RanAt.IsZero() {
		e.RanAt = time.Now().UTC()
	}
	res, err := l.db.ExecContext(ctx, `
		INSERT INTO attendance_log (profile_id, run_reason, outcome, detail, rewards, ran_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.ProfileID, e.RunReason, e.Outcome, e.Detail, string(rewardsJSON), e.RanAt)
	if err != nil {
		return fmt.Errorf("record attendance %s: %w", e.ProfileID, err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

// RecordWatch appends one watch cycle summary.
func (l *Log) RecordWatch(ctx context.Context, summary *codes.RunSummary) error {
	newCodes := codeStrings(summary.NewCodes)
	notified := codeStrings(summary.NotifiedCodes)
	newJSON, _ := json.Marshal(newCodes)
	notifiedJSON, _ := json.Marshal(notified)

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO watch_log (run_reason, checked_count, skipped_count, new_codes, notified_codes, total_known, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, string(summary.Reason), len(summary.CheckedSources), len(summary.SkippedSources),
		string(newJSON), string(notifiedJSON), summary.TotalKnown, summary.StartedAt, summary.FinishedAt)
	if err != nil {
		return fmt.Errorf("record watch run: %w", err)
	}
	return nil
}

// ListAttendance returns the most recent attendance entries, newest first.
// profileID "" means all profiles.
func (l *Log) ListAttendance(ctx context.Context, profileID string, limit int) ([]AttendanceEntry, error) {
	query := "SELECT * FROM attendance_log WHERE 1=1"
	var args []any
	if profileID != "" {
		query += " AND profile_id = ?"
		args = append(args, profileID)
	}
	query += " ORDER BY ran_at DESC, id DESC LIMIT ?"
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	var entries []AttendanceEntry
	if err := l.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	for i := range entries {
		json.Unmarshal([]byte(entries[i].RewardsJSON), &entries[i].Rewards)
	}
	return entries, nil
}

// ListWatch returns the most recent watch cycles, newest first.
func (l *Log) ListWatch(ctx context.Context, limit int) ([]WatchEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []WatchEntry
	err := l.db.SelectContext(ctx, &entries,
		"SELECT * FROM watch_log ORDER BY started_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list watch runs: %w", err)
	}
	for i := range entries {
		json.Unmarshal([]byte(entries[i].NewJSON), &entries[i].NewCodes)
		json.Unmarshal([]byte(entries[i].NotifiedJSON), &entries[i].NotifiedCodes)
	}
	return entries, nil
}

func codeStrings(tracked []*codes.TrackedCode) []string {
	out := make([]string, 0, len(tracked))
	for _, code := range tracked {
		out = append(out, code.Code)
	}
	return out
}
