package history

const schema = `
CREATE TABLE IF NOT EXISTS attendance_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    profile_id  TEXT NOT NULL,
    run_reason  TEXT NOT NULL,
    outcome     TEXT NOT NULL,
    detail      TEXT NOT NULL DEFAULT '',
    rewards     TEXT NOT NULL DEFAULT '[]',
    ran_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attendance_profile ON attendance_log(profile_id);
CREATE INDEX IF NOT EXISTS idx_attendance_ran_at ON attendance_log(ran_at);

CREATE TABLE IF NOT EXISTS watch_log (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    run_reason      TEXT NOT NULL,
    checked_count   INTEGER NOT NULL DEFAULT 0,
    skipped_count   INTEGER NOT NULL DEFAULT 0,
    new_codes       TEXT NOT NULL DEFAULT '[]',
    notified_codes  TEXT NOT NULL DEFAULT '[]',
    total_known     INTEGER NOT NULL DEFAULT 0,
    started_at      DATETIME NOT NULL,
    finished_at     DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_watch_started_at ON watch_log(started_at);
`
