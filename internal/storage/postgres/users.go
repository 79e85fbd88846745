package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"getxposed.ru/telegram-bot/internal/common"
	"getxposed.ru/telegram-bot/internal/storage"
)

// UpsertUser создаёт или обновляет пользователя и возвращает true,
// если запись новая. Username уникален: если его успел занять другой
// user_id (смена ника в Telegram), чужая строка удаляется. Голоса и
// реферальные визиты, записанные до регистрации цели, перепривязываются
// по текущему и прежнему username.
func (s *Store) UpsertUser(ctx context.Context, u storage.User) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var prevUsername string
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(username, '') FROM users WHERE user_id = $1", u.UserID,
	).Scan(&prevUsername)
	isNew := errors.Is(err, pgx.ErrNoRows)
	if err != nil && !isNew {
		return false, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}

	if u.Username != "" {
		if _, err := tx.Exec(ctx,
			"DELETE FROM users WHERE username = $1 AND user_id <> $2",
			u.Username, u.UserID,
		); err != nil {
			return false, fmt.Errorf("ошибка освобождения username: %w", err)
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name, photo_url, app_user, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			photo_url = CASE WHEN EXCLUDED.photo_url <> '' THEN EXCLUDED.photo_url ELSE users.photo_url END,
			app_user = users.app_user OR EXCLUDED.app_user,
			updated_at = NOW()`,
		u.UserID, u.Username, u.FirstName, u.LastName, u.PhotoURL, u.AppUser)
	if err != nil {
		return false, fmt.Errorf("ошибка сохранения пользователя: %w", err)
	}

	aliases := make([]string, 0, 2)
	if u.Username != "" {
		aliases = append(aliases, u.Username)
	}
	if prevUsername != "" && prevUsername != u.Username {
		aliases = append(aliases, prevUsername)
	}
	if len(aliases) > 0 {
		if err := relinkByAliases(ctx, tx, u.UserID, aliases); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("ошибка коммита: %w", err)
	}
	return isNew, nil
}

// relinkByAliases проставляет target_user_id строкам, записанным до
// того, как цель зарегистрировалась. Строки, которые после привязки
// нарушили бы уникальность (цель уже получила голос того же
// голосующего по user_id), не трогаются.
func relinkByAliases(ctx context.Context, tx pgx.Tx, userID int64, aliases []string) error {
	_, err := tx.Exec(ctx, `
		UPDATE votes v SET target_user_id = $1
		WHERE v.target_user_id IS NULL
		  AND v.target = ANY($2)
		  AND (v.voter_id IS NULL OR NOT EXISTS (
				SELECT 1 FROM votes v2
				WHERE v2.target_user_id = $1 AND v2.voter_id = v.voter_id))`,
		userID, aliases)
	if err != nil {
		return fmt.Errorf("ошибка привязки голосов: %w", err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE ref_visits r SET target_user_id = $1
		WHERE r.target_user_id IS NULL
		  AND r.target = ANY($2)
		  AND NOT EXISTS (
				SELECT 1 FROM ref_visits r2
				WHERE r2.target_user_id = $1 AND r2.visitor_id = r.visitor_id)`,
		userID, aliases)
	if err != nil {
		return fmt.Errorf("ошибка привязки реферальных визитов: %w", err)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	var u storage.User
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, COALESCE(username, ''), first_name, last_name, photo_url, app_user, updated_at
		FROM users WHERE username = $1`, username,
	).Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &u.PhotoURL, &u.AppUser, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUserIDByUsername(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		"SELECT user_id FROM users WHERE username = $1", username,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}
	return id, nil
}

func (s *Store) GetUsernameByUserID(ctx context.Context, userID int64) (string, error) {
	var username string
	err := s.pool.QueryRow(ctx,
		"SELECT COALESCE(username, '') FROM users WHERE user_id = $1", userID,
	).Scan(&username)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ошибка поиска username: %w", err)
	}
	return username, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM profile_prefs WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("ошибка удаления настроек: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM users WHERE user_id = $1", userID); err != nil {
		return fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]string, error) {
	return s.scanStrings(ctx, `
		SELECT COALESCE(username, CAST(user_id AS TEXT))
		FROM users
		ORDER BY updated_at DESC
		LIMIT $1`, limit)
}

func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]string, error) {
	return s.scanStrings(ctx, `
		SELECT username FROM users
		WHERE username LIKE $1 || '%'
		ORDER BY username
		LIMIT $2`, query, limit)
}

func (s *Store) scanStrings(ctx context.Context, sql string, args ...any) ([]string, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("ошибка сканирования: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
