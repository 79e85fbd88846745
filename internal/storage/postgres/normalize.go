package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// NormalizeCase — ночная уборка: схлопывает дубли пользователей,
// отличающиеся только регистром username, и приводит все usernames
// и цели к нижнему регистру. Исторические данные писались до того,
// как нормализация появилась на входе.
func (s *Store) NormalizeCase(ctx context.Context) (merged, lowered int, err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	merged, err = mergeCaseDuplicates(ctx, tx)
	if err != nil {
		return 0, 0, err
	}

	lowered, err = lowercaseAll(ctx, tx)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("ошибка коммита: %w", err)
	}
	return merged, lowered, nil
}

// mergeCaseDuplicates оставляет из каждой группы case-дублей самую
// свежую запись, остальные вливает в неё.
func mergeCaseDuplicates(ctx context.Context, tx pgx.Tx) (int, error) {
	rows, err := tx.Query(ctx, `
		SELECT ARRAY_AGG(user_id ORDER BY updated_at DESC, user_id DESC)
		FROM users
		WHERE username IS NOT NULL
		GROUP BY LOWER(username)
		HAVING COUNT(*) > 1`)
	if err != nil {
		return 0, fmt.Errorf("ошибка поиска дублей: %w", err)
	}
	var groups [][]int64
	for rows.Next() {
		var ids []int64
		if err := rows.Scan(&ids); err != nil {
			rows.Close()
			return 0, fmt.Errorf("ошибка сканирования дублей: %w", err)
		}
		groups = append(groups, ids)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("ошибка обхода дублей: %w", err)
	}

	merged := 0
	for _, ids := range groups {
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

// mergeUser переносит данные dup на canonical и удаляет dup.
// Голоса, ставшие после переноса дублями одного голосующего,
// удаляются: у canonical уже есть более свежая версия.
func mergeUser(ctx context.Context, tx pgx.Tx, canonical, dup int64) error {
	if _, err := tx.Exec(ctx, `
		UPDATE votes v SET target_user_id = $1
		WHERE v.target_user_id = $2
		  AND (v.voter_id IS NULL OR NOT EXISTS (
				SELECT 1 FROM votes v2
				WHERE v2.target_user_id = $1 AND v2.voter_id = v.voter_id))`,
		canonical, dup); err != nil {
		return fmt.Errorf("перенос голосов: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM votes WHERE target_user_id = $1", dup); err != nil {
		return fmt.Errorf("удаление дублей голосов: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE ref_visits r SET target_user_id = $1
		WHERE r.target_user_id = $2
		  AND NOT EXISTS (
				SELECT 1 FROM ref_visits r2
				WHERE r2.target_user_id = $1 AND r2.visitor_id = r.visitor_id)`,
		canonical, dup); err != nil {
		return fmt.Errorf("перенос визитов: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM ref_visits WHERE target_user_id = $1", dup); err != nil {
		return fmt.Errorf("удаление дублей визитов: %w", err)
	}
	if _, err := tx.Exec(ctx,
		"UPDATE push_events SET user_id = $1 WHERE user_id = $2", canonical, dup); err != nil {
		return fmt.Errorf("перенос пушей: %w", err)
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO profile_prefs (user_id, note)
		SELECT $1, note FROM profile_prefs WHERE user_id = $2
		ON CONFLICT (user_id) DO NOTHING`,
		canonical, dup); err != nil {
		return fmt.Errorf("перенос заметки: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM profile_prefs WHERE user_id = $1", dup); err != nil {
		return fmt.Errorf("удаление заметки дубля: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM users WHERE user_id = $1", dup); err != nil {
		return fmt.Errorf("удаление пользователя-дубля: %w", err)
	}
	return nil
}

// lowercaseAll приводит usernames и цели к нижнему регистру. Строки,
// которые после понижения регистра столкнулись бы с уже существующей
// нижнерегистровой строкой того же голосующего, удаляются как дубли.
func lowercaseAll(ctx context.Context, tx pgx.Tx) (int, error) {
	lowered := 0

	tag, err := tx.Exec(ctx,
		"UPDATE users SET username = LOWER(username) WHERE username IS NOT NULL AND username <> LOWER(username)")
	if err != nil {
		return 0, fmt.Errorf("ошибка нормализации users: %w", err)
	}
	lowered += int(tag.RowsAffected())

	tag, err = tx.Exec(ctx, `
		UPDATE votes v SET target = LOWER(target)
		WHERE v.target <> LOWER(v.target)
		  AND (v.target_user_id IS NOT NULL OR v.voter_id IS NULL OR NOT EXISTS (
				SELECT 1 FROM votes v2
				WHERE v2.target = LOWER(v.target)
				  AND v2.voter_id = v.voter_id
				  AND v2.target_user_id IS NULL))`)
	if err != nil {
		return 0, fmt.Errorf("ошибка нормализации votes: %w", err)
	}
	lowered += int(tag.RowsAffected())
	if _, err := tx.Exec(ctx, "DELETE FROM votes WHERE target <> LOWER(target)"); err != nil {
		return 0, fmt.Errorf("ошибка удаления дублей votes: %w", err)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE ref_visits r SET target = LOWER(target)
		WHERE r.target <> LOWER(r.target)
		  AND (r.target_user_id IS NOT NULL OR NOT EXISTS (
				SELECT 1 FROM ref_visits r2
				WHERE r2.target = LOWER(r.target)
				  AND r2.visitor_id = r.visitor_id
				  AND r2.target_user_id IS NULL))`)
	if err != nil {
		return 0, fmt.Errorf("ошибка нормализации ref_visits: %w", err)
	}
	lowered += int(tag.RowsAffected())
	if _, err := tx.Exec(ctx, "DELETE FROM ref_visits WHERE target <> LOWER(target)"); err != nil {
		return 0, fmt.Errorf("ошибка удаления дублей ref_visits: %w", err)
	}

	tag, err = tx.Exec(ctx, `
		UPDATE seen_hints h SET target = LOWER(target)
		WHERE h.target <> LOWER(h.target)
		  AND NOT EXISTS (
				SELECT 1 FROM seen_hints h2
				WHERE h2.target = LOWER(h.target) AND h2.watcher_id = h.watcher_id)`)
	if err != nil {
		return 0, fmt.Errorf("ошибка нормализации seen_hints: %w", err)
	}
	lowered += int(tag.RowsAffected())
	if _, err := tx.Exec(ctx, "DELETE FROM seen_hints WHERE target <> LOWER(target)"); err != nil {
		return 0, fmt.Errorf("ошибка удаления дублей seen_hints: %w", err)
	}

	return lowered, nil
}
