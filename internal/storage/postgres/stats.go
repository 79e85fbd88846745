package postgres

import (
	"context"
	"fmt"

	"getxposed.ru/telegram-bot/internal/storage"
)

func (s *Store) CountVotes(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM votes WHERE label = 'feedback'",
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта голосов: %w", err)
	}
	return count, nil
}

// TopVoters — самые активные голосующие. Для тех, кто не успел
// зарегистрироваться, вместо username показывается числовой id.
func (s *Store) TopVoters(ctx context.Context, limit int) ([]storage.NameCount, error) {
	return s.scanNameCounts(ctx, `
		SELECT COALESCE(u.username, CAST(v.voter_id AS TEXT)), COUNT(*)
		FROM votes v
		LEFT JOIN users u ON u.user_id = v.voter_id
		WHERE v.voter_id IS NOT NULL AND v.label = 'feedback'
		GROUP BY 1
		ORDER BY 2 DESC
		LIMIT $1`, limit)
}

func (s *Store) TopTargets(ctx context.Context, limit int) ([]storage.NameCount, error) {
	return s.scanNameCounts(ctx, `
		SELECT target, COUNT(*)
		FROM votes
		WHERE label = 'feedback'
		GROUP BY target
		ORDER BY 2 DESC
		LIMIT $1`, limit)
}

func (s *Store) scanNameCounts(ctx context.Context, sql string, args ...any) ([]storage.NameCount, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса статистики: %w", err)
	}
	defer rows.Close()

	var out []storage.NameCount
	for rows.Next() {
		var nc storage.NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики: %w", err)
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}
