package profile

import (
	"context"
	"fmt"
	"strings"

	"getxposed.ru/telegram-bot/internal/storage"
)

// Reader — то, что агрегации нужно от хранилища.
type Reader interface {
	GetUserIDByUsername(ctx context.Context, username string) (int64, error)
	GetTotalFeedback(ctx context.Context, target string, targetUserID *int64) (int, error)
	CountRefVisitors(ctx context.Context, target string, targetUserID *int64) (int, error)
	GetDimensionCounts(ctx context.Context, target string, targetUserID *int64) (storage.DimensionCounts, error)
}

// Service строит агрегированные профили поверх хранилища.
type Service struct {
	store Reader
}

func NewService(store Reader) *Service {
	return &Service{store: store}
}

// targetID возвращает указатель на user_id цели, если она
// зарегистрирована, иначе nil (поиск пойдёт по username).
func (s *Service) targetID(ctx context.Context, target string) (*int64, error) {
	id, err := s.store.GetUserIDByUsername(ctx, target)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, nil
	}
	return &id, nil
}

// BuildPayload собирает профиль цели: счётчики из хранилища,
// агрегация — чистой функцией.
func (s *Service) BuildPayload(ctx context.Context, target string) (*Payload, error) {
	targetID, err := s.targetID(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("поиск цели: %w", err)
	}
	total, err := s.store.GetTotalFeedback(ctx, target, targetID)
	if err != nil {
		return nil, fmt.Errorf("подсчёт ответов: %w", err)
	}
	visitors, err := s.store.CountRefVisitors(ctx, target, targetID)
	if err != nil {
		return nil, fmt.Errorf("подсчёт визитов: %w", err)
	}
	counts, err := s.store.GetDimensionCounts(ctx, target, targetID)
	if err != nil {
		return nil, fmt.Errorf("чтение счётчиков: %w", err)
	}
	return BuildPayload(target, total, visitors, counts), nil
}

// InsightText — текстовая сводка для бота. Пустая строка, пока
// ответов меньше трёх.
func (s *Service) InsightText(ctx context.Context, target string) (string, error) {
	targetID, err := s.targetID(ctx, target)
	if err != nil {
		return "", fmt.Errorf("поиск цели: %w", err)
	}
	total, err := s.store.GetTotalFeedback(ctx, target, targetID)
	if err != nil {
		return "", fmt.Errorf("подсчёт ответов: %w", err)
	}
	if total < minAnswers {
		return "", nil
	}
	counts, err := s.store.GetDimensionCounts(ctx, target, targetID)
	if err != nil {
		return "", fmt.Errorf("чтение счётчиков: %w", err)
	}
	return insightText(total, counts), nil
}

func insightText(total int, counts storage.DimensionCounts) string {
	toneText := "Спокойно, по делу"
	if pickValue(counts, "tone") == "easy" {
		toneText = "С юмора"
	}
	speedText := "Не торопясь"
	if pickValue(counts, "speed") == "fast" {
		speedText = "Сразу"
	}
	formatText := "В живом общении"
	if pickValue(counts, "contact_format") == "text" {
		formatText = "Через переписку"
	}

	lines := []string{
		"Как с этим человеком чаще всего",
		"начинают общение:",
		"",
		"👉 " + toneText,
		"👉 " + speedText,
		"👉 " + formatText,
	}

	uncertain := isUncertain(counts.Get("tone", "easy"), counts.Get("tone", "serious")) ||
		isUncertain(counts.Get("speed", "fast"), counts.Get("speed", "slow")) ||
		isUncertain(counts.Get("contact_format", "text"), counts.Get("contact_format", "live"))
	if uncertain {
		lines = append(lines,
			"",
			"По этому пункту мнения разделились —",
			"лучше ориентироваться по ситуации.",
		)
	}

	if total > 0 && float64(counts.Get("caution", "true"))/float64(total) >= cautionRatio {
		lines = append(lines,
			"",
			"⚠️ Иногда лучше не давить",
			"и дать время.",
		)
	}

	return strings.Join(lines, "\n")
}
