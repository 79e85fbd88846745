package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"getxposed.ru/telegram-bot/internal/storage"
)

// dimensionColumns — порядок столбцов фиксирован, им пользуются
// и вставка, и чтение счётчиков.
var dimensionColumns = []string{
	"tone", "speed", "contact_format", "caution",
	"initiative", "start_context", "attention_reaction", "frequency",
	"comm_format", "emotion_tone", "feedback_style", "uncertainty",
}

func voteArgs(v storage.VoteValues) []any {
	return []any{
		v.Tone, v.Speed, v.ContactFormat, v.Caution,
		v.Initiative, v.StartContext, v.AttentionReaction, v.Frequency,
		v.CommFormat, v.EmotionTone, v.FeedbackStyle, v.Uncertainty,
	}
}

// targetFilter выбирает способ адресации цели: по user_id, если он
// известен, иначе по username. Плейсхолдер всегда $1.
func targetFilter(target string, targetUserID *int64) (string, any) {
	if targetUserID != nil {
		return "target_user_id = $1", *targetUserID
	}
	return "target = $1", target
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// UpsertVote — машина состояний подачи голоса, атомарная за счёт
// транзакции и частичных уникальных индексов. Проигравший гонку
// вставки получает duplicate_recent, как будто успел второй раз.
func (s *Store) UpsertVote(ctx context.Context, target string, targetUserID, voterID *int64, v storage.VoteValues) (storage.VoteResult, error) {
	// Анонимный голос никогда не перезаписывает ничего.
	if voterID == nil {
		if err := s.insertVote(ctx, s.pool, target, targetUserID, nil, v); err != nil {
			return "", fmt.Errorf("ошибка вставки анонимного голоса: %w", err)
		}
		return storage.VoteInserted, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	cond, arg := targetFilter(target, targetUserID)
	var (
		id         int64
		label      string
		ageSeconds int64
	)
	err = tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT id, label, EXTRACT(EPOCH FROM NOW() - created_at)::bigint
		FROM votes
		WHERE %s AND voter_id = $2
		ORDER BY id DESC
		LIMIT 1
		FOR UPDATE`, cond), arg, *voterID,
	).Scan(&id, &label, &ageSeconds)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if err := s.insertVote(ctx, tx, target, targetUserID, voterID, v); err != nil {
			if isUniqueViolation(err) {
				return storage.VoteDuplicateRecent, nil
			}
			return "", fmt.Errorf("ошибка вставки голоса: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("ошибка коммита: %w", err)
		}
		return storage.VoteInserted, nil

	case err != nil:
		return "", fmt.Errorf("ошибка поиска прежнего голоса: %w", err)
	}

	// Голос со старой меткой перезаписывается сразу: кулдаун
	// защищает только полноценные feedback-голоса.
	if label != storage.LabelFeedback {
		if err := s.overwriteVote(ctx, tx, id, targetUserID, v); err != nil {
			return "", err
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("ошибка коммита: %w", err)
		}
		return storage.VoteInserted, nil
	}

	if float64(ageSeconds) < storage.VoteCooldown.Seconds() {
		return storage.VoteDuplicateRecent, nil
	}

	if err := s.overwriteVote(ctx, tx, id, targetUserID, v); err != nil {
		return "", err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("ошибка коммита: %w", err)
	}
	return storage.VoteUpdated, nil
}

func (s *Store) insertVote(ctx context.Context, db execer, target string, targetUserID, voterID *int64, v storage.VoteValues) error {
	args := append([]any{target, targetUserID, voterID}, voteArgs(v)...)
	_, err := db.Exec(ctx, `
		INSERT INTO votes (
			target, target_user_id, voter_id,
			tone, speed, contact_format, caution,
			initiative, start_context, attention_reaction, frequency,
			comm_format, emotion_tone, feedback_style, uncertainty,
			label
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 'feedback')`,
		args...)
	return err
}

func (s *Store) overwriteVote(ctx context.Context, db execer, id int64, targetUserID *int64, v storage.VoteValues) error {
	args := append(voteArgs(v), targetUserID, id)
	_, err := db.Exec(ctx, `
		UPDATE votes SET
			tone = $1, speed = $2, contact_format = $3, caution = $4,
			initiative = $5, start_context = $6, attention_reaction = $7, frequency = $8,
			comm_format = $9, emotion_tone = $10, feedback_style = $11, uncertainty = $12,
			label = 'feedback',
			created_at = NOW(),
			target_user_id = COALESCE($13, target_user_id)
		WHERE id = $14`,
		args...)
	if err != nil {
		return fmt.Errorf("ошибка перезаписи голоса: %w", err)
	}
	return nil
}

func (s *Store) GetTotalFeedback(ctx context.Context, target string, targetUserID *int64) (int, error) {
	cond, arg := targetFilter(target, targetUserID)
	var count int
	err := s.pool.QueryRow(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM votes WHERE %s AND label = 'feedback'", cond), arg,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчёта голосов: %w", err)
	}
	return count, nil
}

// GetDimensionCounts читает все голоса о цели одним запросом и
// агрегирует счётчики уже на стороне приложения.
func (s *Store) GetDimensionCounts(ctx context.Context, target string, targetUserID *int64) (storage.DimensionCounts, error) {
	cond, arg := targetFilter(target, targetUserID)
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
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
	rows, err := s.pool.Query(ctx, `
		SELECT target FROM votes
		WHERE voter_id = $1
		GROUP BY target
		ORDER BY MAX(id) DESC
		LIMIT $2`, voterID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения недавних целей: %w", err)
	}
	defer rows.Close()

	var targets []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("ошибка сканирования цели: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}
