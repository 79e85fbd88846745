package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"getxposed.ru/telegram-bot/internal/common"
	"getxposed.ru/telegram-bot/internal/storage"
)

// UpsertUser — см. storage.Store. Семантика полностью совпадает с
// Postgres-реализацией: username уникален, app_user копится через OR,
// висящие голоса и визиты перепривязываются по алиасам.
func (s *Store) UpsertUser(ctx context.Context, u storage.User) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	var prevUsername string
	err = tx.QueryRowContext(ctx,
		"SELECT COALESCE(username, '') FROM users WHERE user_id = ?", u.UserID,
	).Scan(&prevUsername)
	isNew := errors.Is(err, sql.ErrNoRows)
	if err != nil && !isNew {
		return false, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}

	if u.Username != "" {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM users WHERE username = ? AND user_id <> ?",
			u.Username, u.UserID,
		); err != nil {
			return false, fmt.Errorf("ошибка освобождения username: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name, photo_url, app_user, updated_at)
		VALUES (?, NULLIF(?, ''), ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			photo_url = CASE WHEN excluded.photo_url <> '' THEN excluded.photo_url ELSE users.photo_url END,
			app_user = MAX(users.app_user, excluded.app_user),
			updated_at = excluded.updated_at`,
		u.UserID, u.Username, u.FirstName, u.LastName, u.PhotoURL, boolToInt(u.AppUser), nowString())
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
	for _, alias := range aliases {
		if err := relinkByAlias(ctx, tx, u.UserID, alias); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("ошибка коммита: %w", err)
	}
	return isNew, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// relinkByAlias проставляет target_user_id строкам, записанным до
// регистрации цели. Строки, которые нарушили бы уникальность после
// привязки, не трогаются.
func relinkByAlias(ctx context.Context, tx *sql.Tx, userID int64, alias string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE votes SET target_user_id = ?1
		WHERE target_user_id IS NULL
		  AND target = ?2
		  AND (voter_id IS NULL OR NOT EXISTS (
				SELECT 1 FROM votes v2
				WHERE v2.target_user_id = ?1 AND v2.voter_id = votes.voter_id))`,
		userID, alias)
	if err != nil {
		return fmt.Errorf("ошибка привязки голосов: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE ref_visits SET target_user_id = ?1
		WHERE target_user_id IS NULL
		  AND target = ?2
		  AND NOT EXISTS (
				SELECT 1 FROM ref_visits r2
				WHERE r2.target_user_id = ?1 AND r2.visitor_id = ref_visits.visitor_id)`,
		userID, alias)
	if err != nil {
		return fmt.Errorf("ошибка привязки реферальных визитов: %w", err)
	}
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*storage.User, error) {
	var (
		u         storage.User
		appUser   int
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, COALESCE(username, ''), first_name, last_name, photo_url, app_user, updated_at
		FROM users WHERE username = ?`, username,
	).Scan(&u.UserID, &u.Username, &u.FirstName, &u.LastName, &u.PhotoURL, &appUser, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}
	u.AppUser = appUser != 0
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

func (s *Store) GetUserIDByUsername(ctx context.Context, username string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT user_id FROM users WHERE username = ?", username,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("ошибка поиска пользователя: %w", err)
	}
	return id, nil
}

func (s *Store) GetUsernameByUserID(ctx context.Context, userID int64) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(username, '') FROM users WHERE user_id = ?", userID,
	).Scan(&username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("ошибка поиска username: %w", err)
	}
	return username, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM profile_prefs WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("ошибка удаления настроек: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM users WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("ошибка удаления пользователя: %w", err)
	}
	return tx.Commit()
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта пользователей: %w", err)
	}
	return count, nil
}

func (s *Store) ListUsers(ctx context.Context, limit int) ([]string, error) {
	return s.scanStrings(ctx, `
		SELECT COALESCE(username, CAST(user_id AS TEXT))
		FROM users
		ORDER BY updated_at DESC
		LIMIT ?`, limit)
}

func (s *Store) SearchUsers(ctx context.Context, query string, limit int) ([]string, error) {
	return s.scanStrings(ctx, `
		SELECT username FROM users
		WHERE username LIKE ? || '%'
		ORDER BY username
		LIMIT ?`, query, limit)
}

func (s *Store) scanStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
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
