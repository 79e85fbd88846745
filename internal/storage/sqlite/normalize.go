package sqlite

import (
	"context"
	"database/sql"
	"fmt"
)

// NormalizeCase — ночная уборка: схлопывает дубли пользователей,
// отличающиеся только регистром username, и приводит usernames и цели
// к нижнему регистру. Семантика совпадает с Postgres-реализацией.
func (s *Store) NormalizeCase(ctx context.Context) (merged, lowered int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	merged, err = mergeCaseDuplicates(ctx, tx)
	if err != nil {
		return 0, 0, err
	}

	lowered, err = lowercaseAll(ctx, tx)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("ошибка коммита: %w", err)
	}
	return merged, lowered, nil
}

// mergeCaseDuplicates группирует пользователей по LOWER(username) и
// вливает всех, кроме самого свежего, в него.
func mergeCaseDuplicates(ctx context.Context, tx *sql.Tx) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT LOWER(username), user_id FROM users
		WHERE username IS NOT NULL
		ORDER BY LOWER(username), updated_at DESC, user_id DESC`)
	if err != nil {
		return 0, fmt.Errorf("ошибка поиска дублей: %w", err)
	}

	groups := make(map[string][]int64)
	var order []string
	for rows.Next() {
		var lower string
		var id int64
		if err := rows.Scan(&lower, &id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("ошибка сканирования дублей: %w", err)
		}
		if _, seen := groups[lower]; !seen {
			order = append(order, lower)
		}
		groups[lower] = append(groups[lower], id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("ошибка обхода дублей: %w", err)
	}

	merged := 0
	for _, lower := range order {
		ids := groups[lower]
		if len(ids) < 2 {
			continue
		}
		canonical := ids[0]
		for _, dup := range ids[1:] {
			if err := mergeUser(ctx, tx, canonical, dup); err != nil {
				return 0, err
			}
			merged++
		}
	}
	return merged, nil
}

// mergeUser переносит данные dup на canonical и удаляет dup. Голоса,
// ставшие после переноса дублями одного голосующего, удаляются.
func mergeUser(ctx context.Context, tx *sql.Tx, canonical, dup int64) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE votes SET target_user_id = ?1
		WHERE target_user_id = ?2
		  AND (voter_id IS NULL OR NOT EXISTS (
				SELECT 1 FROM votes v2
				WHERE v2.target_user_id = ?1 AND v2.voter_id = votes.voter_id))`,
		canonical, dup); err != nil {
		return fmt.Errorf("перенос голосов: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM votes WHERE target_user_id = ?", dup); err != nil {
		return fmt.Errorf("удаление дублей голосов: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE ref_visits SET target_user_id = ?1
		WHERE target_user_id = ?2
		  AND NOT EXISTS (
				SELECT 1 FROM ref_visits r2
				WHERE r2.target_user_id = ?1 AND r2.visitor_id = ref_visits.visitor_id)`,
		canonical, dup); err != nil {
		return fmt.Errorf("перенос визитов: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM ref_visits WHERE target_user_id = ?", dup); err != nil {
		return fmt.Errorf("удаление дублей визитов: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE push_events SET user_id = ? WHERE user_id = ?", canonical, dup); err != nil {
		return fmt.Errorf("перенос пушей: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO profile_prefs (user_id, note)
		SELECT ?, note FROM profile_prefs WHERE user_id = ?
		ON CONFLICT (user_id) DO NOTHING`,
		canonical, dup); err != nil {
		return fmt.Errorf("перенос заметки: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM profile_prefs WHERE user_id = ?", dup); err != nil {
		return fmt.Errorf("удаление заметки дубля: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE user_id = ?", dup); err != nil {
		return fmt.Errorf("удаление пользователя-дубля: %w", err)
	}
	return nil
}

// lowercaseAll приводит usernames и цели к нижнему регистру. Строки,
// столкнувшиеся после понижения с уже существующими, удаляются как дубли.
func lowercaseAll(ctx context.Context, tx *sql.Tx) (int, error) {
	lowered := 0

	res, err := tx.ExecContext(ctx,
		"UPDATE users SET username = LOWER(username) WHERE username IS NOT NULL AND username <> LOWER(username)")
	if err != nil {
		return 0, fmt.Errorf("ошибка нормализации users: %w", err)
	}
	lowered += rowsAffected(res)

	res, err = tx.ExecContext(ctx, `
		UPDATE votes SET target = LOWER(target)
		WHERE target <> LOWER(target)
		  AND (target_user_id IS NOT NULL OR voter_id IS NULL OR NOT EXISTS (
				SELECT 1 FROM votes v2
				WHERE v2.target = LOWER(votes.target)
				  AND v2.voter_id = votes.voter_id
				  AND v2.target_user_id IS NULL))`)
	if err != nil {
		return 0, fmt.Errorf("ошибка нормализации votes: %w", err)
	}
	lowered += rowsAffected(res)
	if _, err := tx.ExecContext(ctx, "DELETE FROM votes WHERE target <> LOWER(target)"); err != nil {
		return 0, fmt.Errorf("ошибка удаления дублей votes: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE ref_visits SET target = LOWER(target)
		WHERE target <> LOWER(target)
		  AND (target_user_id IS NOT NULL OR NOT EXISTS (
				SELECT 1 FROM ref_visits r2
				WHERE r2.target = LOWER(ref_visits.target)
				  AND r2.visitor_id = ref_visits.visitor_id
				  AND r2.target_user_id IS NULL))`)
	if err != nil {
		return 0, fmt.Errorf("ошибка нормализации ref_visits: %w", err)
	}
	lowered += rowsAffected(res)
	if _, err := tx.ExecContext(ctx, "DELETE FROM ref_visits WHERE target <> LOWER(target)"); err != nil {
		return 0, fmt.Errorf("ошибка удаления дублей ref_visits: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE seen_hints SET target = LOWER(target)
		WHERE target <> LOWER(target)
		  AND NOT EXISTS (
				SELECT 1 FROM seen_hints h2
				WHERE h2.target = LOWER(seen_hints.target)
				  AND h2.watcher_id = seen_hints.watcher_id)`)
	if err != nil {
		return 0, fmt.Errorf("ошибка нормализации seen_hints: %w", err)
	}
	lowered += rowsAffected(res)
	if _, err := tx.ExecContext(ctx, "DELETE FROM seen_hints WHERE target <> LOWER(target)"); err != nil {
		return 0, fmt.Errorf("ошибка удаления дублей seen_hints: %w", err)
	}

	return lowered, nil
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
