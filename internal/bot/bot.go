// Package bot — polling-цикл Telegram-бота. Бот живёт только в личке:
// раздаёт кнопку запуска Mini App, засчитывает переходы по реферальным
// ссылкам и отвечает на админ-команды.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"getxposed.ru/telegram-bot/internal/bot/middleware"
	"getxposed.ru/telegram-bot/internal/common"
	"getxposed.ru/telegram-bot/internal/config"
	"getxposed.ru/telegram-bot/internal/storage"
)

const (
	msgLaunch          = "Открой приложение и оставь анонимный ответ 👇"
	msgRefMoved        = "Создание ссылок теперь в Mini App 👇"
	msgMiniAppDown     = "Mini App временно недоступен. Обратись к администратору."
	launchButtonLabel  = "Открыть приложение"
	adminListLimit     = 100
	adminTopLimit      = 10
	normalizeTimeout   = 30 * time.Second
	adminStatsTimeout  = 10 * time.Second
)

// Store — то, что боту нужно от хранилища для админ-команд.
type Store interface {
	CountVotes(ctx context.Context) (int, error)
	CountUsers(ctx context.Context) (int, error)
	TopVoters(ctx context.Context, limit int) ([]storage.NameCount, error)
	TopTargets(ctx context.Context, limit int) ([]storage.NameCount, error)
	ListUsers(ctx context.Context, limit int) ([]string, error)
	NormalizeCase(ctx context.Context) (merged, lowered int, err error)
}

// Users — регистрация написавших боту.
type Users interface {
	Register(ctx context.Context, u storage.User, source string) error
}

// Referrals — учёт переходов по ссылкам ref_<username>.
type Referrals interface {
	RecordVisit(ctx context.Context, target string, visitorID int64) error
}

// Bot — polling-цикл и маршрутизация команд.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	store     Store
	users     Users
	referrals Referrals

	rateLimiter *middleware.RateLimiter

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

func New(api *tgbotapi.BotAPI, cfg *config.Config, store Store, users Users, referrals Referrals) *Bot {
	maxInflight := cfg.BotMaxInflight
	if maxInflight <= 0 {
		maxInflight = 64
	}

	return &Bot{
		api:         api,
		cfg:         cfg,
		store:       store,
		users:       users,
		referrals:   referrals,
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		inflight:    make(chan struct{}, maxInflight),
	}
}

// Run запускает polling и обрабатывает апдейты до отмены контекста.
func (b *Bot) Run(ctx context.Context) {
	defer b.rateLimiter.Close()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": b.cfg.BotMaxInflight,
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic()

	message := update.Message
	if message == nil || message.From == nil || !message.Chat.IsPrivate() {
		return
	}

	middleware.LogMessage(message)

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	b.registerSender(ctx, message.From)

	if !message.IsCommand() {
		b.sendLaunch(message.Chat.ID, "")
		return
	}

	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)

	case "ref":
		b.reply(message.Chat.ID, msgRefMoved, b.launchKeyboard(""))

	case "stats":
		if b.isAdmin(message.From) {
			b.handleStats(ctx, message.Chat.ID)
		}

	case "admin_stats":
		if b.isAdmin(message.From) {
			b.handleAdminStats(ctx, message.Chat.ID)
		}

	case "users":
		if b.isAdmin(message.From) {
			b.handleUsers(ctx, message.Chat.ID)
		}

	case "normalize_case":
		if b.isAdmin(message.From) {
			b.handleNormalizeCase(ctx, message.Chat.ID)
		}

	default:
		b.sendLaunch(message.Chat.ID, "")
	}
}

// registerSender запоминает написавшего боту. Без username пользователь
// всё равно сможет открыть Mini App, поэтому молча пропускаем.
func (b *Bot) registerSender(ctx context.Context, from *tgbotapi.User) {
	// from.UserName приходит без @.
	username := common.NormalizeUsername("@" + from.UserName)
	if username == "" {
		return
	}
	err := b.users.Register(ctx, storage.User{
		UserID:    from.ID,
		Username:  username,
		FirstName: from.FirstName,
		LastName:  from.LastName,
	}, "bot")
	if err != nil {
		log.WithError(err).WithField("user_id", from.ID).Warn("Не удалось зарегистрировать пользователя")
	}
}

// handleStart засчитывает реферальный переход из диплинка ref_<username>
// и показывает кнопку запуска, открывающую анкету этой цели.
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	target := refTargetFromPayload(message.CommandArguments())
	if target != "" {
		if err := b.referrals.RecordVisit(ctx, target, message.From.ID); err != nil {
			log.WithError(err).WithField("target", target).Warn("Не удалось записать реферальный визит")
		}
	}
	b.sendLaunch(message.Chat.ID, target)
}

// refTargetFromPayload достаёт цель из диплинка ref_<username>.
// Username в диплинке голый, без @.
func refTargetFromPayload(payload string) string {
	payload = strings.TrimSpace(payload)
	if !strings.HasPrefix(payload, "ref_") {
		return ""
	}
	return common.NormalizeUsername("@" + strings.TrimPrefix(payload, "ref_"))
}

func (b *Bot) handleStats(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(ctx, adminStatsTimeout)
	defer cancel()

	votes, err := b.store.CountVotes(ctx)
	if err != nil {
		b.reply(chatID, "База недоступна, попробуй позже", nil)
		return
	}
	users, err := b.store.CountUsers(ctx)
	if err != nil {
		b.reply(chatID, "База недоступна, попробуй позже", nil)
		return
	}
	b.reply(chatID, fmt.Sprintf("📊 Статистика\nОтветов: %d\nПользователей: %d", votes, users), nil)
}

func (b *Bot) handleAdminStats(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(ctx, adminStatsTimeout)
	defer cancel()

	voters, err := b.store.TopVoters(ctx, adminTopLimit)
	if err != nil {
		b.reply(chatID, "База недоступна, попробуй позже", nil)
		return
	}
	targets, err := b.store.TopTargets(ctx, adminTopLimit)
	if err != nil {
		b.reply(chatID, "База недоступна, попробуй позже", nil)
		return
	}

	var sb strings.Builder
	sb.WriteString("🏆 Топ отвечающих:\n")
	writeNameCounts(&sb, voters)
	sb.WriteString("\n🎯 Топ целей:\n")
	writeNameCounts(&sb, targets)
	b.reply(chatID, sb.String(), nil)
}

func writeNameCounts(sb *strings.Builder, items []storage.NameCount) {
	if len(items) == 0 {
		sb.WriteString("пока пусто\n")
		return
	}
	for i, item := range items {
		fmt.Fprintf(sb, "%d. %s — %d\n", i+1, item.Name, item.Count)
	}
}

func (b *Bot) handleUsers(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(ctx, adminStatsTimeout)
	defer cancel()

	total, err := b.store.CountUsers(ctx)
	if err != nil {
		b.reply(chatID, "База недоступна, попробуй позже", nil)
		return
	}
	names, err := b.store.ListUsers(ctx, adminListLimit)
	if err != nil {
		b.reply(chatID, "База недоступна, попробуй позже", nil)
		return
	}

	text := fmt.Sprintf("Пользователей: %d", total)
	if len(names) > 0 {
		text += "\n\n" + strings.Join(names, "\n")
	}
	b.reply(chatID, text, nil)
}

func (b *Bot) handleNormalizeCase(ctx context.Context, chatID int64) {
	ctx, cancel := context.WithTimeout(ctx, normalizeTimeout)
	defer cancel()

	merged, lowered, err := b.store.NormalizeCase(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка нормализации регистра")
		b.reply(chatID, "Не удалось нормализовать базу, смотри логи", nil)
		return
	}
	b.reply(chatID, fmt.Sprintf("Готово. Склеено дублей: %d, приведено к нижнему регистру: %d", merged, lowered), nil)
}

func (b *Bot) isAdmin(from *tgbotapi.User) bool {
	return b.cfg.AdminUsername != "" &&
		strings.ToLower(from.UserName) == b.cfg.AdminUsername
}

// sendLaunch отправляет кнопку запуска Mini App. rateTarget добавляет в
// URL параметр rate, чтобы приложение сразу открыло анкету этой цели.
func (b *Bot) sendLaunch(chatID int64, rateTarget string) {
	if b.cfg.MiniAppURL == "" {
		b.reply(chatID, msgMiniAppDown, nil)
		return
	}
	b.reply(chatID, msgLaunch, b.launchKeyboard(rateTarget))
}

// launchKeyboard — inline-клавиатура с WebApp-кнопкой.
func (b *Bot) launchKeyboard(rateTarget string) *tgbotapi.InlineKeyboardMarkup {
	if b.cfg.MiniAppURL == "" {
		return nil
	}
	button := tgbotapi.InlineKeyboardButton{
		Text: launchButtonLabel,
		WebApp: &tgbotapi.WebAppInfo{
			URL: withRateParam(b.cfg.MiniAppURL, rateTarget),
		},
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(button))
	return &keyboard
}

// withRateParam добавляет к URL параметр rate=<username без @>.
func withRateParam(rawURL, rateTarget string) string {
	if rateTarget == "" {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + "rate=" + common.StripAt(rateTarget)
}

func (b *Bot) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
