// Package referral — учёт переходов по реферальным ссылкам вида
// t.me/<bot>?start=ref_<username>.
package referral

import (
	"context"
	"fmt"
)

// Store — то, что сервису нужно от хранилища.
type Store interface {
	GetUserIDByUsername(ctx context.Context, username string) (int64, error)
	AddRefVisit(ctx context.Context, target string, targetUserID *int64, visitorID int64) (bool, error)
}

// Notifier — очередь уведомлений.
type Notifier interface {
	QueueTrackedPush(userID int64, text string)
}

type Service struct {
	store  Store
	pushes Notifier
}

func NewService(store Store, pushes Notifier) *Service {
	return &Service{store: store, pushes: pushes}
}

// RecordVisit фиксирует первый переход посетителя по ссылке цели.
// Владелец ссылки узнаёт о каждом новом человеке, но не о повторных
// заходах и не о собственных кликах.
func (s *Service) RecordVisit(ctx context.Context, target string, visitorID int64) error {
	targetID, err := s.store.GetUserIDByUsername(ctx, target)
	if err != nil {
		return fmt.Errorf("поиск владельца ссылки: %w", err)
	}
	var targetIDPtr *int64
	if targetID != 0 {
		targetIDPtr = &targetID
	}

	inserted, err := s.store.AddRefVisit(ctx, target, targetIDPtr, visitorID)
	if err != nil {
		return fmt.Errorf("запись визита: %w", err)
	}
	if inserted && targetID != 0 && targetID != visitorID {
		s.pushes.QueueTrackedPush(targetID,
			"🔥 похоже, ты запустил небольшую цепную реакцию.\n\nпо твоей ссылке пришёл новый человек 👀")
	}
	return nil
}
