// Package telegram — обёртка над Bot API: доставка сообщений,
// справки о чатах и загрузка аватаров. Telegram-клиент не умеет
// context, поэтому каждый вызов оборачивается в горутину с select.
package telegram

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"getxposed.ru/telegram-bot/internal/common"
	"getxposed.ru/telegram-bot/internal/storage"
)

// maxBioLength — сколько символов bio попадает в заметку профиля.
const maxBioLength = 90

// Client — тонкая обёртка над tgbotapi.BotAPI.
type Client struct {
	api      *tgbotapi.BotAPI
	username string // без @
}

// NewClient авторизуется в Bot API. fallbackUsername используется,
// если getMe не вернул username (не должно случаться, но Mini App
// ссылки не должны ломаться из-за этого).
func NewClient(token, fallbackUsername string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка авторизации бота: %w", err)
	}
	username := api.Self.UserName
	if username == "" {
		username = fallbackUsername
	}
	log.Infof("Бот авторизован как @%s", username)
	return &Client{api: api, username: username}, nil
}

// API отдаёт низкоуровневый клиент для цикла получения апдейтов.
func (c *Client) API() *tgbotapi.BotAPI {
	return c.api
}

// BotUsername — username бота без @.
func (c *Client) BotUsername() string {
	return c.username
}

// SendMessage отправляет текст в чат. Реализует push.Sender.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	errCh := make(chan error, 1)
	go func() {
		_, err := c.api.Send(tgbotapi.NewMessage(chatID, text))
		errCh <- err
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (c *Client) getChat(ctx context.Context, cfg tgbotapi.ChatInfoConfig) (tgbotapi.Chat, error) {
	type result struct {
		chat tgbotapi.Chat
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		chat, err := c.api.GetChat(cfg)
		ch <- result{chat, err}
	}()
	select {
	case <-ctx.Done():
		return tgbotapi.Chat{}, ctx.Err()
	case r := <-ch:
		return r.chat, r.err
	}
}

func (c *Client) getChatByUsername(ctx context.Context, target string) (tgbotapi.Chat, error) {
	return c.getChat(ctx, tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{SuperGroupUsername: target},
	})
}

// ValidateFeedbackTarget проверяет, что цель — человек, а не бот, чат
// или канал. Если Telegram не ответил, цель считается допустимой:
// лучше пропустить лишний голос, чем потерять настоящий.
func (c *Client) ValidateFeedbackTarget(ctx context.Context, target string) error {
	if strings.HasSuffix(strings.ToLower(strings.TrimPrefix(target, "@")), "bot") {
		return common.ErrTargetIsBot
	}
	chat, err := c.getChatByUsername(ctx, target)
	if err != nil {
		return nil
	}
	switch {
	case chat.IsGroup() || chat.IsSuperGroup():
		return common.ErrTargetIsGroup
	case chat.IsChannel():
		return common.ErrTargetIsChannel
	}
	return nil
}

// ResolvePublicUser подтягивает публичную карточку пользователя.
func (c *Client) ResolvePublicUser(ctx context.Context, target string) (*storage.User, error) {
	chat, err := c.getChatByUsername(ctx, target)
	if err != nil {
		return nil, common.ErrUserNotFound
	}
	if !chat.IsPrivate() {
		return nil, common.ErrUserNotFound
	}
	username := chat.UserName
	if username == "" {
		username = strings.TrimPrefix(target, "@")
	}
	return &storage.User{
		UserID:    chat.ID,
		Username:  "@" + strings.ToLower(username),
		FirstName: chat.FirstName,
		LastName:  chat.LastName,
	}, nil
}

// FetchUserBio возвращает bio пользователя, обрезанное до лимита
// заметки. Пустая строка при любой ошибке.
func (c *Client) FetchUserBio(ctx context.Context, userID int64) string {
	chat, err := c.getChat(ctx, tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: userID},
	})
	if err != nil {
		return ""
	}
	bio := strings.TrimSpace(chat.Bio)
	runes := []rune(bio)
	if len(runes) > maxBioLength {
		return string(runes[:maxBioLength])
	}
	return bio
}

// FetchAvatar скачивает большую версию аватара пользователя.
// Возвращает содержимое и content-type.
func (c *Client) FetchAvatar(ctx context.Context, username string) ([]byte, string, error) {
	target := "@" + strings.ToLower(strings.TrimPrefix(username, "@"))
	chat, err := c.getChatByUsername(ctx, target)
	if err != nil {
		return nil, "", common.ErrUserNotFound
	}
	if !chat.IsPrivate() || chat.Photo == nil || chat.Photo.BigFileID == "" {
		return nil, "", common.ErrUserNotFound
	}

	file, err := c.api.GetFile(tgbotapi.FileConfig{FileID: chat.Photo.BigFileID})
	if err != nil {
		return nil, "", fmt.Errorf("получение файла аватара: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.Link(c.api.Token), nil)
	if err != nil {
		return nil, "", fmt.Errorf("запрос аватара: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("скачивание аватара: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("скачивание аватара: статус %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("чтение аватара: %w", err)
	}
	if len(content) == 0 {
		return nil, "", common.ErrUserNotFound
	}

	return content, avatarContentType(file.FilePath), nil
}

func avatarContentType(path string) string {
	switch {
	case strings.HasSuffix(strings.ToLower(path), ".png"):
		return "image/png"
	case strings.HasSuffix(strings.ToLower(path), ".webp"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
