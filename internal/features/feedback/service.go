// Package feedback — приём анонимных мнений: нормализация значений,
// машина состояний записи голоса и пуш-триггеры по её исходу.
package feedback

import (
	"context"
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"getxposed.ru/telegram-bot/internal/features/profile"
	"getxposed.ru/telegram-bot/internal/storage"
)

// Тексты ответов мини-аппу.
const (
	MsgDuplicate = "Мнение можно менять не чаще 1 раза в сутки"
	MsgUpdated   = "Мнение обновлено."
	MsgInserted  = "Готово 👍\n\nТы помог понять,\nкак к этому человеку проще подойти."
)

// Store — то, что приёму мнений нужно от хранилища.
type Store interface {
	GetUserIDByUsername(ctx context.Context, username string) (int64, error)
	UpsertVote(ctx context.Context, target string, targetUserID, voterID *int64, v storage.VoteValues) (storage.VoteResult, error)
	MarkSeenHint(ctx context.Context, target string, watcherID int64) (bool, error)
	CountRefAnswerers(ctx context.Context, target string, targetUserID *int64) (int, error)
}

// Notifier — очередь уведомлений.
type Notifier interface {
	QueueActionPush(userID int64, action, text string)
	QueueTrackedPush(userID int64, text string)
}

// ProfileBuilder строит агрегированный профиль цели.
type ProfileBuilder interface {
	BuildPayload(ctx context.Context, target string) (*profile.Payload, error)
}

// Service принимает мнения и запускает уведомления цели.
type Service struct {
	store    Store
	profiles ProfileBuilder
	pushes   Notifier
}

func NewService(store Store, profiles ProfileBuilder, pushes Notifier) *Service {
	return &Service{store: store, profiles: profiles, pushes: pushes}
}

// Submission — одно мнение о цели. VoterID == nil для анонимной подачи.
type Submission struct {
	Target  string
	VoterID *int64
	Values  storage.VoteValues
}

// Submit записывает мнение и возвращает исход вместе с текстом для
// пользователя. Ошибка означает недоступность хранилища, всё
// остальное — штатные исходы машины состояний.
func (s *Service) Submit(ctx context.Context, sub Submission) (storage.VoteResult, string, error) {
	values := profile.NormalizeValues(sub.Values)

	// Снимок «до» нужен, чтобы после записи понять, изменился ли
	// видимый результат.
	before, err := s.profiles.BuildPayload(ctx, sub.Target)
	if err != nil {
		return "", "", fmt.Errorf("профиль до записи: %w", err)
	}

	targetID, err := s.store.GetUserIDByUsername(ctx, sub.Target)
	if err != nil {
		return "", "", fmt.Errorf("поиск цели: %w", err)
	}
	var targetIDPtr *int64
	if targetID != 0 {
		targetIDPtr = &targetID
	}

	result, err := s.store.UpsertVote(ctx, sub.Target, targetIDPtr, sub.VoterID, values)
	if err != nil {
		return "", "", fmt.Errorf("запись голоса: %w", err)
	}

	if result == storage.VoteDuplicateRecent {
		s.notifySeenHint(ctx, sub.Target, targetID, sub.VoterID)
		return result, MsgDuplicate, nil
	}

	if targetID != 0 {
		s.notifyTarget(ctx, sub.Target, targetID, result, before)
	}

	if result == storage.VoteUpdated {
		return result, MsgUpdated, nil
	}
	return result, MsgInserted, nil
}

// notifySeenHint — повторная попытка голосовать внутри кулдауна значит,
// что профиль цели кто-то пристально изучает. Намекаем цели, но строго
// один раз на пару (цель, наблюдатель).
func (s *Service) notifySeenHint(ctx context.Context, target string, targetID int64, voterID *int64) {
	if targetID == 0 || voterID == nil {
		return
	}
	first, err := s.store.MarkSeenHint(ctx, target, *voterID)
	if err != nil {
		log.WithError(err).WithField("target", target).Warn("Не удалось отметить подсказку")
		return
	}
	if first {
		s.pushes.QueueTrackedPush(targetID, "👁 тебя явно рассматривают")
	}
}

// notifyTarget — пуш-триггеры после успешной записи. Любая ошибка тут
// не мешает самому голосу: уведомления — best effort.
func (s *Service) notifyTarget(ctx context.Context, target string, targetID int64, result storage.VoteResult, before *profile.Payload) {
	logger := log.WithField("target", target)

	after, err := s.profiles.BuildPayload(ctx, target)
	if err != nil {
		logger.WithError(err).Warn("Не удалось построить профиль после записи")
		return
	}

	// Каждый чётный новый ответ, чтобы не спамить после каждого голоса.
	if result == storage.VoteInserted && after.Answers > 0 && after.Answers%2 == 0 {
		s.pushes.QueueActionPush(targetID, "new_feedback",
			"📝 про тебя ответили — появилось новое мнение о тебе")
	}

	if !slices.Equal(before.ResultRows, after.ResultRows) || before.ExtraHint != after.ExtraHint {
		s.pushes.QueueActionPush(targetID, "result_updated",
			"🔄 подсказка о тебе обновилась — результат изменился")
	}

	refAnswers, err := s.store.CountRefAnswerers(ctx, target, &targetID)
	if err != nil {
		logger.WithError(err).Warn("Не удалось посчитать ответы по ссылке")
		return
	}
	if refAnswers > 0 && refAnswers%2 == 0 {
		s.pushes.QueueActionPush(targetID, "ref_answer",
			"🔗 по твоей ссылке отвечают — кто-то пришёл от тебя")
	}
}
