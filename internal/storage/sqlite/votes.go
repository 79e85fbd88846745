package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"getxposed.ru/telegram-bot/internal/storage"
)

// targetFilter выбирает способ адресации цели: по user_id, если он
// известен, иначе по username.
func targetFilter(target string, targetUserID *int64) (string, any) {
	if targetUserID != nil {
		return "target_user_id = ?", *targetUserID
	}
	return "target = ?", target
}

func voteArgs(v storage.VoteValues) []any {
	return []any{
		v.Tone, v.Speed, v.ContactFormat, v.Caution,
		v.Initiative, v.StartContext, v.AttentionReaction, v.Frequency,
		v.CommFormat, v.EmotionTone, v.FeedbackStyle, v.Uncertainty,
	}
}

var dimensionColumns = []string{
	"tone", "speed", "contact_format", "caution",
	"initiative", "start_context", "attention_reaction", "frequency",
	"comm_format", "emotion_tone", "feedback_style", "uncertainty",
}

// UpsertVote — машина состояний подачи голоса, см. storage.Store.
// Кулдаун считается в Go: created_at хранится строкой в UTC.
func (s *Store) UpsertVote(ctx context.Context, target string, targetUserID, voterID *int64, v storage.VoteValues) (storage.VoteResult, error) {
	if voterID == nil {
		if err := insertVote(ctx, s.db, target, targetUserID, nil, v); err != nil {
			return "", fmt.Errorf("ошибка вставки анонимного голоса: %w", err)
		}
		return storage.VoteInserted, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	cond, arg := targetFilter(target, targetUserID)
	var (
		id        int64
		label     string
		createdAt string
	)
	err = tx.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT id, label, created_at FROM votes
		WHERE %s AND voter_id = ?
		ORDER BY id DESC
		LIMIT 1`, cond), arg, *voterID,
	).Scan(&id, &label, &createdAt)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		if err := insertVote(ctx, tx, target, targetUserID, voterID, v); err != nil {
			if isUniqueViolation(err) {
				return storage.VoteDuplicateRecent, nil
			}
			return "", fmt.Errorf("ошибка вставки голоса: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("ошибка коммита: %w", err)
		}
		return storage.VoteInserted, nil

	case err != nil:
		return "", fmt.Errorf("ошибка поиска прежнего голоса: %w", err)
	}

	// Legacy-метки перезаписываются сразу, кулдаун только для feedback.
	if label != storage.LabelFeedback {
		if err := overwriteVote(ctx, tx, id, targetUserID, v); err != nil {
			return "", err
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("ошибка коммита: %w", err)
		}
		return storage.VoteInserted, nil
	}

	if time.Now().UTC().Sub(parseTime(createdAt)) < storage.VoteCooldown {
		return storage.VoteDuplicateRecent, nil
	}

	if err := overwriteVote(ctx, tx, id, targetUserID, v); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("ошибка коммита: %w", err)
	}
	return storage.VoteUpdated, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertVote(ctx context.Context, db execer, target string, targetUserID, voterID *int64, v storage.VoteValues) error {
	args := append([]any{target, targetUserID, voterID}, voteArgs(v)...)
	args = append(args, nowString())
	_, err := db.ExecContext(ctx, `
		INSERT INTO votes (
			target, target_user_id, voter_id,
			tone, speed, contact_format, caution,
			initiative, start_context, attention_reaction, frequency,
			comm_format, emotion_tone, feedback_style, uncertainty,
			label, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'feedback', ?)`,
		args...)
	return err
}

func overwriteVote(ctx context.Context, db execer, id int64, targetUserID *int64, v storage.VoteValues) error {
	args := append(voteArgs(v), nowString(), targetUserID, id)
	_, err := db.ExecContext(ctx, `
		UPDATE votes SET
			tone = ?, speed = ?, contact_format = ?, caution = ?,
			initiative = ?, start_context = ?, attention_reaction = ?, frequency = ?,
			comm_format = ?, emotion_tone = ?, feedback_style = ?, uncertainty = ?,
			label = 'feedback',
			created_at = ?,
			target_user_id = COALESCE(?, target_user_id)
		WHERE id = ?`,
		args...)
	if err != nil {
		return fmt.Errorf("ошибка перезаписи голоса: %w", err)
	}
	return nil
}

func (s *Store) GetTotalFeedback(ctx context.Context, target string, targetUserID *int64) (int, error) {
	cond, arg := targetFilter(target, targetUserID)
	var count int
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM votes WHERE %s AND label = 'feedback'", cond), arg,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта голосов: %w", err)
	}
	return count, nil
}

// GetDimensionCounts читает все голоса о цели одним запросом,
// агрегация — на стороне приложения.
func (s *Store) GetDimensionCounts(ctx context.Context, target string, targetUserID *int64) (storage.DimensionCounts, error) {
	cond, arg := targetFilter(target, targetUserID)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT tone, speed, contact_format, caution,
		       initiative, start_context, attention_reaction, frequency,
		       comm_format, emotion_tone, feedback_style, uncertainty
		FROM votes
		WHERE %s AND label = 'feedback'`, cond), arg)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения голосов: %w", err)
	}
	defer rows.Close()

	counts := make(storage.DimensionCounts, len(dimensionColumns))
	for _, col := range dimensionColumns {
		counts[col] = make(map[string]int, 2)
	}

	values := make([]string, len(dimensionColumns))
	dest := make([]any, len(dimensionColumns))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("ошибка сканирования голоса: %w", err)
		}
		for i, col := range dimensionColumns {
			counts[col][values[i]]++
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка обхода голосов: %w", err)
	}
	return counts, nil
}

func (s *Store) ListRecentTargets(ctx context.Context, voterID int64, limit int) ([]string, error) {
	return s.scanStrings(ctx, `
		SELECT target FROM votes
		WHERE voter_id = ?
		GROUP BY target
		ORDER BY MAX(id) DESC
		LIMIT ?`, voterID, limit)
}
