package sqlite

import (
	"context"
	"fmt"
)

// AddRefVisit фиксирует переход по реферальной ссылке, повторные
// визиты гасятся уникальным индексом.
func (s *Store) AddRefVisit(ctx context.Context, target string, targetUserID *int64, visitorID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ref_visits (target, target_user_id, visitor_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		target, targetUserID, visitorID, nowString())
	if err != nil {
		return false, fmt.Errorf("ошибка записи реферального визита: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка записи реферального визита: %w", err)
	}
	return n > 0, nil
}

func (s *Store) CountRefVisitors(ctx context.Context, target string, targetUserID *int64) (int, error) {
	cond, arg := targetFilter(target, targetUserID)
	var count int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(DISTINCT visitor_id) FROM ref_visits WHERE %s", cond), arg,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта визитов: %w", err)
	}
	return count, nil
}

func (s *Store) CountRefAnswerers(ctx context.Context, target string, targetUserID *int64) (int, error) {
	col := "target"
	var arg any = target
	if targetUserID != nil {
		col, arg = "target_user_id", *targetUserID
	}
	var count int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(DISTINCT r.visitor_id)
		FROM ref_visits r
		JOIN votes v ON v.voter_id = r.visitor_id
			AND v.%s = ?1
			AND v.label = 'feedback'
		WHERE r.%s = ?1`, col, col), arg,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта ответивших: %w", err)
	}
	return count, nil
}

// MarkSeenHint возвращает true ровно один раз на пару (цель, наблюдатель).
func (s *Store) MarkSeenHint(ctx context.Context, target string, watcherID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO seen_hints (target, watcher_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`,
		target, watcherID, nowString())
	if err != nil {
		return false, fmt.Errorf("ошибка отметки подсказки: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ошибка отметки подсказки: %w", err)
	}
	return n > 0, nil
}
