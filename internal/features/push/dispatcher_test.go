package push

import (
	"context"
	"errors"
	"testing"
	"time"

	"getxposed.ru/telegram-bot/internal/config"
)

type sentMessage struct {
	chatID int64
	text   string
}

type fakeSender struct {
	sent    []sentMessage
	sendErr error
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{chatID, text})
	return nil
}

type fakeStore struct {
	pushCount int
	countErr  error
	dayStarts []time.Time
	events    []string
	deleted   []int64
	deleteErr error
	adminID   int64
}

func (f *fakeStore) CountPushesToday(_ context.Context, _ int64, dayStart time.Time) (int, error) {
	f.dayStarts = append(f.dayStarts, dayStart)
	return f.pushCount, f.countErr
}

func (f *fakeStore) AddPushEvent(_ context.Context, _ int64, eventType string) error {
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeStore) DeleteUser(_ context.Context, userID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, userID)
	return nil
}

func (f *fakeStore) GetUserIDByUsername(context.Context, string) (int64, error) {
	return f.adminID, nil
}

func (f *fakeStore) GetUsernameByUserID(context.Context, int64) (string, error) {
	return "@victim", nil
}

func testConfig() *config.Config {
	return &config.Config{
		AdminUsername:     "admin",
		AppTimezone:       "UTC",
		PushTimeout:       time.Second,
		PushDailyLimit:    2,
		PushQueueSize:     4,
		PushQuietFromHour: 22,
		PushQuietToHour:   9,
	}
}

func newTestDispatcher(sender *fakeSender, store *fakeStore) *Dispatcher {
	d := NewDispatcher(sender, store, testConfig())
	// полдень, вне тихих часов
	d.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return d
}

func TestSendActionPushSuccess(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	d := newTestDispatcher(sender, store)

	d.SendActionPush(context.Background(), 42, "new_feedback", "текст")

	if len(sender.sent) != 1 {
		t.Fatalf("ожидался 1 отправленный пуш, получено %d", len(sender.sent))
	}
	if sender.sent[0].chatID != 42 {
		t.Fatalf("неожиданный получатель: %d", sender.sent[0].chatID)
	}
	if len(store.events) != 1 || store.events[0] != "new_feedback" {
		t.Fatalf("в журнале должно быть событие new_feedback, получено %v", store.events)
	}
}

// Граница дневного лимита должна жить по тем же часам, что и тихие
// часы: полночь в часовом поясе приложения, а не сервера БД.
func TestSendActionPushDayBoundaryInAppTimezone(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	cfg := testConfig()
	cfg.AppTimezone = "Europe/Moscow"
	d := NewDispatcher(sender, store, cfg)
	// 12:00 UTC = 15:00 по Москве
	d.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}

	d.SendActionPush(context.Background(), 42, "new_feedback", "текст")

	if len(store.dayStarts) != 1 {
		t.Fatalf("ожидалась одна проверка лимита, получено %d", len(store.dayStarts))
	}
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, cfg.Location())
	if !store.dayStarts[0].Equal(want) {
		t.Fatalf("ожидалась граница дня %v, получена %v", want, store.dayStarts[0])
	}
}

func TestSendActionPushQuietHours(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	d := newTestDispatcher(sender, store)
	d.now = func() time.Time {
		return time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)
	}

	d.SendActionPush(context.Background(), 42, "new_feedback", "текст")

	if len(sender.sent) != 0 {
		t.Fatal("в тихие часы пуши не отправляются")
	}
	if len(store.events) != 0 {
		t.Fatal("пропущенный пуш не должен попадать в журнал")
	}
}

func TestSendActionPushDailyLimit(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{pushCount: 2}
	d := newTestDispatcher(sender, store)

	d.SendActionPush(context.Background(), 42, "new_feedback", "текст")

	if len(sender.sent) != 0 {
		t.Fatal("при исчерпанном лимите пуш не отправляется")
	}
}

func TestSendActionPushTransientError(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("Bad Gateway")}
	store := &fakeStore{}
	d := newTestDispatcher(sender, store)

	d.SendActionPush(context.Background(), 42, "new_feedback", "текст")

	if len(store.events) != 0 {
		t.Fatal("неудавшийся пуш не должен попадать в журнал")
	}
	if len(store.deleted) != 0 {
		t.Fatal("временная ошибка не должна удалять пользователя")
	}
}

func TestSendActionPushBlockedUserIsDeleted(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("Forbidden: bot was blocked by the user")}
	store := &fakeStore{adminID: 1}
	d := newTestDispatcher(sender, store)

	d.SendActionPush(context.Background(), 42, "new_feedback", "текст")

	if len(store.deleted) != 1 || store.deleted[0] != 42 {
		t.Fatalf("заблокировавший бота пользователь должен удаляться, deleted = %v", store.deleted)
	}
	if len(store.events) != 0 {
		t.Fatal("недоставленный пуш не должен попадать в журнал")
	}
}

func TestQueueOverflowDoesNotBlock(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	d := newTestDispatcher(sender, store)

	// Воркер не запущен: очередь переполняется, лишние пуши теряются,
	// вызов не блокируется.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			d.QueueActionPush(int64(i), "new_feedback", "текст")
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("переполненная очередь не должна блокировать отправителя")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{}
	d := newTestDispatcher(sender, store)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	d.QueueActionPush(42, "new_feedback", "текст")
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("ожидалась отмена контекста, получено %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run не остановился после отмены контекста")
	}
}
