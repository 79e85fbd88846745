// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт хранилище, Telegram-клиент, сервисы,
// диспетчер пушей, HTTP-сервер и бота, связывая их явными зависимостями.
package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"getxposed.ru/telegram-bot/internal/bot"
	"getxposed.ru/telegram-bot/internal/config"
	"getxposed.ru/telegram-bot/internal/features/feedback"
	"getxposed.ru/telegram-bot/internal/features/profile"
	"getxposed.ru/telegram-bot/internal/features/push"
	"getxposed.ru/telegram-bot/internal/features/referral"
	"getxposed.ru/telegram-bot/internal/features/users"
	"getxposed.ru/telegram-bot/internal/jobs"
	"getxposed.ru/telegram-bot/internal/storage"
	"getxposed.ru/telegram-bot/internal/storage/postgres"
	"getxposed.ru/telegram-bot/internal/storage/sqlite"
	"getxposed.ru/telegram-bot/internal/telegram"
	"getxposed.ru/telegram-bot/internal/web"
)

// App содержит все компоненты приложения.
type App struct {
	cfg *config.Config

	Store      storage.Store
	Telegram   *telegram.Client
	Dispatcher *push.Dispatcher
	Server     *web.Server
	Bot        *bot.Bot
	Scheduler  *jobs.Scheduler
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. Хранилище ===
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации хранилища: %w", err)
	}

	// === 2. Telegram Bot API ===
	tg, err := telegram.NewClient(cfg.BotToken, cfg.BotPublicUsername)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}

	// === 3. Диспетчер пушей ===
	dispatcher := push.NewDispatcher(tg, store, cfg)

	// === 4. Сервисы ===
	profiles := profile.NewService(store)
	userService := users.NewService(store, dispatcher, cfg.AdminUsername)
	feedbackService := feedback.NewService(store, profiles, dispatcher)
	referralService := referral.NewService(store, dispatcher)

	// === 5. HTTP-сервер Mini App ===
	server := web.NewServer(cfg, store, profiles, feedbackService, userService, tg)

	// === 6. Бот ===
	b := bot.New(tg.API(), cfg, store, userService, referralService)

	// === 7. Планировщик задач ===
	scheduler := jobs.NewScheduler(store, cfg.Location())

	return &App{
		cfg:        cfg,
		Store:      store,
		Telegram:   tg,
		Dispatcher: dispatcher,
		Server:     server,
		Bot:        b,
		Scheduler:  scheduler,
	}, nil
}

// newStore выбирает реализацию хранилища по конфигурации.
func newStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StorageDriver {
	case "postgres":
		return postgres.NewStore(ctx, cfg)
	default:
		return sqlite.NewStore(ctx, cfg.SQLitePath)
	}
}

// Run запускает все компоненты и блокируется до отмены контекста или
// первой фатальной ошибки.
func (a *App) Run(ctx context.Context) error {
	defer a.Store.Close()

	a.Scheduler.Start(ctx)
	defer a.Scheduler.Stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.Dispatcher.Run(ctx)
	})
	g.Go(func() error {
		return a.Server.Run(ctx)
	})
	g.Go(func() error {
		a.Bot.Run(ctx)
		return nil
	})

	return g.Wait()
}
