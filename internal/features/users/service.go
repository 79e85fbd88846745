// Package users — регистрация пользователей и заметка профиля.
package users

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"getxposed.ru/telegram-bot/internal/common"
	"getxposed.ru/telegram-bot/internal/storage"
)

// maxNoteLength — лимит заметки профиля в символах.
const maxNoteLength = 90

// Store — то, что сервису нужно от хранилища.
type Store interface {
	UpsertUser(ctx context.Context, u storage.User) (bool, error)
	GetProfileNote(ctx context.Context, userID int64) (string, error)
	SetProfileNote(ctx context.Context, userID int64, note string) error
}

// Notifier — очередь служебных сообщений админу.
type Notifier interface {
	QueueAdminMessage(text string)
}

type Service struct {
	store         Store
	pushes        Notifier
	adminUsername string // с @
}

func NewService(store Store, pushes Notifier, adminUsername string) *Service {
	return &Service{
		store:         store,
		pushes:        pushes,
		adminUsername: "@" + strings.TrimPrefix(adminUsername, "@"),
	}
}

// Register создаёт/обновляет пользователя. О каждом новом пользователе
// админ получает сообщение с источником регистрации (bot или miniapp).
func (s *Service) Register(ctx context.Context, u storage.User, source string) error {
	isNew, err := s.store.UpsertUser(ctx, u)
	if err != nil {
		return fmt.Errorf("регистрация пользователя: %w", err)
	}
	if isNew && u.Username != s.adminUsername {
		log.WithFields(log.Fields{"username": u.Username, "source": source}).Info("Новый пользователь")
		s.pushes.QueueAdminMessage(fmt.Sprintf(
			"Новый пользователь в приложении.\nUsername: %s\nID: %d\nИсточник: %s",
			u.Username, u.UserID, source))
	}
	return nil
}

// Note возвращает заметку профиля, пустая строка — заметки нет.
func (s *Service) Note(ctx context.Context, userID int64) (string, error) {
	return s.store.GetProfileNote(ctx, userID)
}

// SetNote валидирует и сохраняет заметку. Ссылки запрещены: заметка
// видна анонимным посетителям и не должна уводить их из приложения.
func (s *Service) SetNote(ctx context.Context, userID int64, note string) (string, error) {
	note = strings.TrimSpace(note)
	if utf8.RuneCountInString(note) > maxNoteLength {
		return "", common.ErrNoteTooLong
	}
	lowered := strings.ToLower(note)
	for _, marker := range []string{"http://", "https://", "www.", "t.me/"} {
		if strings.Contains(lowered, marker) {
			return "", common.ErrNoteHasLink
		}
	}
	if err := s.store.SetProfileNote(ctx, userID, note); err != nil {
		return "", fmt.Errorf("сохранение заметки: %w", err)
	}
	return note, nil
}
