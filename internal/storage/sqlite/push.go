package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CountPushesToday считает пуши, записанные после dayStart. Метки
// времени хранятся в UTC, сравнение строковое. Дневной лимит проверяет
// диспетчер.
func (s *Store) CountPushesToday(ctx context.Context, userID int64, dayStart time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM push_events
		WHERE user_id = ? AND created_at >= ?`,
		userID, dayStart.UTC().Format(timeLayout),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пушей: %w", err)
	}
	return count, nil
}

func (s *Store) AddPushEvent(ctx context.Context, userID int64, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO push_events (user_id, event_type, created_at) VALUES (?, ?, ?)",
		userID, eventType, nowString())
	if err != nil {
		return fmt.Errorf("ошибка записи пуша: %w", err)
	}
	return nil
}

func (s *Store) GetProfileNote(ctx context.Context, userID int64) (string, error) {
	var note string
	err := s.db.QueryRowContext(ctx,
		"SELECT note FROM profile_prefs WHERE user_id = ?", userID,
	).Scan(&note)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ошибка чтения заметки: %w", err)
	}
	return note, nil
}

func (s *Store) SetProfileNote(ctx context.Context, userID int64, note string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profile_prefs (user_id, note) VALUES (?, ?)
		ON CONFLICT (user_id) DO UPDATE SET note = excluded.note`,
		userID, note)
	if err != nil {
		return fmt.Errorf("ошибка сохранения заметки: %w", err)
	}
	return nil
}
