package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// CountPushesToday считает пуши, записанные после dayStart. Дневной
// лимит проверяет диспетчер рассылки.
func (s *Store) CountPushesToday(ctx context.Context, userID int64, dayStart time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM push_events
		WHERE user_id = $1 AND created_at >= $2`, userID, dayStart,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пушей: %w", err)
	}
	return count, nil
}

func (s *Store) AddPushEvent(ctx context.Context, userID int64, eventType string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO push_events (user_id, event_type) VALUES ($1, $2)",
		userID, eventType)
	if err != nil {
		return fmt.Errorf("ошибка записи пуша: %w", err)
	}
	return nil
}

func (s *Store) GetProfileNote(ctx context.Context, userID int64) (string, error) {
	var note string
	err := s.pool.QueryRow(ctx,
		"SELECT note FROM profile_prefs WHERE user_id = $1", userID,
	).Scan(&note)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ошибка чтения заметки: %w", err)
	}
	return note, nil
}

func (s *Store) SetProfileNote(ctx context.Context, userID int64, note string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profile_prefs (user_id, note) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET note = EXCLUDED.note`,
		userID, note)
	if err != nil {
		return fmt.Errorf("ошибка сохранения заметки: %w", err)
	}
	return nil
}
