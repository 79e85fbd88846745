// Package sqlite — реализация storage.Store поверх единственного
// SQLite-файла (драйвер modernc.org/sqlite, без cgo). Вариант для
// локального запуска и небольших инсталляций без отдельного Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"getxposed.ru/telegram-bot/internal/storage"
)

// timeLayout — формат, в котором SQLite хранит метки времени.
// Всё время пишется и читается в UTC.
const timeLayout = "2006-01-02 15:04:05"

// Store реализует storage.Store поверх database/sql.
type Store struct {
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore открывает (или создаёт) файл базы и применяет схему.
func NewStore(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия базы: %w", err)
	}

	// SQLite не умеет конкурентную запись: одно соединение на всех.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка настройки базы: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ошибка применения схемы: %w", err)
	}

	log.Infof("SQLite-база открыта: %s", path)
	return &Store{db: db}, nil
}

// Close закрывает соединение с базой.
func (s *Store) Close() {
	if err := s.db.Close(); err != nil {
		log.WithError(err).Warn("Ошибка закрытия SQLite")
	}
}

func nowString() string {
	return time.Now().UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.ParseInLocation(timeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// isUniqueViolation — у modernc.org/sqlite нет типизированных ошибок
// констрейнтов, остаётся сверять текст.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id INTEGER PRIMARY KEY,
    username TEXT UNIQUE,
    first_name TEXT NOT NULL DEFAULT '',
    last_name TEXT NOT NULL DEFAULT '',
    photo_url TEXT NOT NULL DEFAULT '',
    app_user INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);

CREATE TABLE IF NOT EXISTS votes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target TEXT NOT NULL,
    target_user_id INTEGER,
    voter_id INTEGER,
    tone TEXT NOT NULL,
    speed TEXT NOT NULL,
    contact_format TEXT NOT NULL,
    caution TEXT NOT NULL,
    initiative TEXT NOT NULL,
    start_context TEXT NOT NULL,
    attention_reaction TEXT NOT NULL,
    frequency TEXT NOT NULL,
    comm_format TEXT NOT NULL,
    emotion_tone TEXT NOT NULL,
    feedback_style TEXT NOT NULL,
    uncertainty TEXT NOT NULL,
    label TEXT NOT NULL DEFAULT 'feedback',
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_votes_target ON votes(target);
CREATE INDEX IF NOT EXISTS idx_votes_target_user ON votes(target_user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_unique
    ON votes(target, voter_id)
    WHERE voter_id IS NOT NULL AND target_user_id IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_unique_user
    ON votes(target_user_id, voter_id)
    WHERE voter_id IS NOT NULL AND target_user_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS ref_visits (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    target TEXT NOT NULL,
    target_user_id INTEGER,
    visitor_id INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now'))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ref_unique
    ON ref_visits(target, visitor_id)
    WHERE target_user_id IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_ref_unique_user
    ON ref_visits(target_user_id, visitor_id)
    WHERE target_user_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS seen_hints (
    target TEXT NOT NULL,
    watcher_id INTEGER NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now')),
    PRIMARY KEY (target, watcher_id)
);

CREATE TABLE IF NOT EXISTS profile_prefs (
    user_id INTEGER PRIMARY KEY,
    note TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS push_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL,
    event_type TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_push_events_user_day ON push_events(user_id, created_at);
`
