package users

import (
	"context"
	"errors"
	"strings"
	"testing"

	"getxposed.ru/telegram-bot/internal/common"
	"getxposed.ru/telegram-bot/internal/storage"
)

type fakeStore struct {
	isNew bool
	note  string
}

func (f *fakeStore) UpsertUser(context.Context, storage.User) (bool, error) {
	return f.isNew, nil
}

func (f *fakeStore) GetProfileNote(context.Context, int64) (string, error) {
	return f.note, nil
}

func (f *fakeStore) SetProfileNote(_ context.Context, _ int64, note string) error {
	f.note = note
	return nil
}

type fakeNotifier struct {
	messages []string
}

func (f *fakeNotifier) QueueAdminMessage(text string) {
	f.messages = append(f.messages, text)
}

func TestRegisterNotifiesAdminOnce(t *testing.T) {
	store := &fakeStore{isNew: true}
	pushes := &fakeNotifier{}
	svc := NewService(store, pushes, "admin")

	err := svc.Register(context.Background(), storage.User{UserID: 5, Username: "@newbie"}, "miniapp")
	if err != nil {
		t.Fatalf("регистрация: %v", err)
	}
	if len(pushes.messages) != 1 {
		t.Fatalf("ожидалось 1 сообщение админу, получено %d", len(pushes.messages))
	}
	if !strings.Contains(pushes.messages[0], "@newbie") || !strings.Contains(pushes.messages[0], "miniapp") {
		t.Fatalf("в сообщении нет username или источника: %q", pushes.messages[0])
	}

	// Повторная регистрация того же пользователя молчит.
	store.isNew = false
	if err := svc.Register(context.Background(), storage.User{UserID: 5, Username: "@newbie"}, "bot"); err != nil {
		t.Fatalf("повторная регистрация: %v", err)
	}
	if len(pushes.messages) != 1 {
		t.Fatal("известный пользователь не должен порождать уведомление")
	}
}

func TestRegisterSkipsAdminSelf(t *testing.T) {
	store := &fakeStore{isNew: true}
	pushes := &fakeNotifier{}
	svc := NewService(store, pushes, "admin")

	if err := svc.Register(context.Background(), storage.User{UserID: 1, Username: "@admin"}, "bot"); err != nil {
		t.Fatalf("регистрация: %v", err)
	}
	if len(pushes.messages) != 0 {
		t.Fatal("админ не должен получать уведомление о самом себе")
	}
}

func TestSetNote(t *testing.T) {
	tests := []struct {
		name    string
		note    string
		wantErr error
	}{
		{"обычная заметка", "Пишу после 18:00", nil},
		{"пустая заметка", "", nil},
		{"ровно 90 символов", strings.Repeat("я", 90), nil},
		{"слишком длинная", strings.Repeat("я", 91), common.ErrNoteTooLong},
		{"http-ссылка", "мой сайт http://example.com", common.ErrNoteHasLink},
		{"https-ссылка", "https://example.com", common.ErrNoteHasLink},
		{"www-ссылка", "смотри WWW.example.com", common.ErrNoteHasLink},
		{"t.me-ссылка", "пиши в t.me/someone", common.ErrNoteHasLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{}
			svc := NewService(store, &fakeNotifier{}, "admin")
			saved, err := svc.SetNote(context.Background(), 1, tt.note)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ожидалась ошибка %v, получена %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && saved != strings.TrimSpace(tt.note) {
				t.Fatalf("сохранено %q", saved)
			}
		})
	}
}

func TestSetNoteTrimsSpaces(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, &fakeNotifier{}, "admin")
	saved, err := svc.SetNote(context.Background(), 1, "  текст  ")
	if err != nil {
		t.Fatalf("сохранение: %v", err)
	}
	if saved != "текст" {
		t.Fatalf("пробелы должны обрезаться, получено %q", saved)
	}
}
