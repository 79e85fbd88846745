package bot

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"getxposed.ru/telegram-bot/internal/storage"
)

type fakeUsers struct {
	registered []storage.User
	sources    []string
}

func (f *fakeUsers) Register(_ context.Context, u storage.User, source string) error {
	f.registered = append(f.registered, u)
	f.sources = append(f.sources, source)
	return nil
}

// Telegram отдаёт username без @: регистрация должна сама приводить
// его к каноничному виду.
func TestRegisterSenderBareUsername(t *testing.T) {
	users := &fakeUsers{}
	b := &Bot{users: users}

	b.registerSender(context.Background(), &tgbotapi.User{ID: 7, UserName: "Durov", FirstName: "Pavel"})

	if len(users.registered) != 1 {
		t.Fatalf("ожидалась одна регистрация, получено %d", len(users.registered))
	}
	if got := users.registered[0].Username; got != "@durov" {
		t.Fatalf("ожидался @durov, получен %q", got)
	}
	if users.sources[0] != "bot" {
		t.Fatalf("ожидался источник bot, получен %q", users.sources[0])
	}
}

func TestRegisterSenderWithoutUsername(t *testing.T) {
	users := &fakeUsers{}
	b := &Bot{users: users}

	b.registerSender(context.Background(), &tgbotapi.User{ID: 7, FirstName: "Pavel"})

	if len(users.registered) != 0 {
		t.Fatalf("без username регистрации быть не должно, получено %d", len(users.registered))
	}
}

func TestRefTargetFromPayload(t *testing.T) {
	cases := []struct {
		name    string
		payload string
		want    string
	}{
		{"голый username в диплинке", "ref_Anna_K", "@anna_k"},
		{"пустой payload", "", ""},
		{"не реферальный payload", "hello", ""},
		{"пустая цель", "ref_", ""},
		{"мусор вместо username", "ref_a b", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := refTargetFromPayload(tc.payload); got != tc.want {
				t.Fatalf("ожидался %q, получен %q", tc.want, got)
			}
		})
	}
}

func TestWithRateParam(t *testing.T) {
	cases := []struct {
		name   string
		url    string
		target string
		want   string
	}{
		{"без цели", "https://app.example.com", "", "https://app.example.com"},
		{"простой URL", "https://app.example.com", "@anna", "https://app.example.com?rate=anna"},
		{"URL с query", "https://app.example.com?v=2", "@anna", "https://app.example.com?v=2&rate=anna"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := withRateParam(tc.url, tc.target)
			if got != tc.want {
				t.Fatalf("ожидался %q, получен %q", tc.want, got)
			}
		})
	}
}
