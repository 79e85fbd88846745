package postgres

import (
	"context"
	"fmt"
)

// AddRefVisit фиксирует переход по реферальной ссылке. Повторный визит
// того же человека к той же цели молча игнорируется уникальным индексом.
func (s *Store) AddRefVisit(ctx context.Context, target string, targetUserID *int64, visitorID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO ref_visits (target, target_user_id, visitor_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`,
		target, targetUserID, visitorID)
	if err != nil {
		return false, fmt.Errorf("ошибка записи реферального визита: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) CountRefVisitors(ctx context.Context, target string, targetUserID *int64) (int, error) {
	cond, arg := targetFilter(target, targetUserID)
	var count int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(DISTINCT visitor_id) FROM ref_visits WHERE %s", cond), arg,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта визитов: %w", err)
	}
	return count, nil
}

// CountRefAnswerers — сколько пришедших по ссылке в итоге оставили
// мнение о владельце ссылки.
func (s *Store) CountRefAnswerers(ctx context.Context, target string, targetUserID *int64) (int, error) {
	col := "target"
	var arg any = target
	if targetUserID != nil {
		col, arg = "target_user_id", *targetUserID
	}
	var count int
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT COUNT(DISTINCT r.visitor_id)
		FROM ref_visits r
		JOIN votes v ON v.voter_id = r.visitor_id
			AND v.%s = $1
			AND v.label = 'feedback'
		WHERE r.%s = $1`, col, col), arg,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта ответивших: %w", err)
	}
	return count, nil
}

// MarkSeenHint возвращает true ровно один раз на пару (цель, наблюдатель).
func (s *Store) MarkSeenHint(ctx context.Context, target string, watcherID int64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO seen_hints (target, watcher_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`,
		target, watcherID)
	if err != nil {
		return false, fmt.Errorf("ошибка отметки подсказки: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
