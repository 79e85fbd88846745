// Package push — доставка уведомлений пользователям. Все пуши идут
// через один воркер с ограниченной очередью: бот и HTTP-хендлеры
// никогда не блокируются на Telegram API, а при переполнении очереди
// пуш просто теряется (уведомления — best effort).
package push

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"getxposed.ru/telegram-bot/internal/config"
)

// Sender — транспорт доставки сообщений.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Store — то, что диспетчеру нужно от хранилища.
type Store interface {
	CountPushesToday(ctx context.Context, userID int64, dayStart time.Time) (int, error)
	AddPushEvent(ctx context.Context, userID int64, eventType string) error
	DeleteUser(ctx context.Context, userID int64) error
	GetUserIDByUsername(ctx context.Context, username string) (int64, error)
	GetUsernameByUserID(ctx context.Context, userID int64) (string, error)
}

type task func(ctx context.Context)

// Dispatcher — очередь и правила доставки: тихие часы, дневной лимит,
// удаление недоступных пользователей.
type Dispatcher struct {
	sender        Sender
	store         Store
	queue         chan task
	loc           *time.Location
	quietFrom     int
	quietTo       int
	dailyLimit    int
	sendTimeout   time.Duration
	adminUsername string

	// подменяется в тестах
	now func() time.Time
}

func NewDispatcher(sender Sender, store Store, cfg *config.Config) *Dispatcher {
	return &Dispatcher{
		sender:        sender,
		store:         store,
		queue:         make(chan task, cfg.PushQueueSize),
		loc:           cfg.Location(),
		quietFrom:     cfg.PushQuietFromHour,
		quietTo:       cfg.PushQuietToHour,
		dailyLimit:    cfg.PushDailyLimit,
		sendTimeout:   cfg.PushTimeout,
		adminUsername: "@" + cfg.AdminUsername,
		now:           time.Now,
	}
}

// Run крутит воркер до отмены контекста. Оставшиеся в очереди задачи
// при остановке не доставляются.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Info("Диспетчер пушей запущен")
	for {
		select {
		case <-ctx.Done():
			log.Info("Диспетчер пушей остановлен")
			return ctx.Err()
		case t := <-d.queue:
			t(ctx)
		}
	}
}

func (d *Dispatcher) enqueue(t task) {
	select {
	case d.queue <- t:
	default:
		log.Warn("Очередь пушей переполнена, уведомление потеряно")
	}
}

// QueueActionPush ставит в очередь пуш пользователю. action попадает
// в журнал и учитывается в дневном лимите.
func (d *Dispatcher) QueueActionPush(userID int64, action, text string) {
	d.enqueue(func(ctx context.Context) {
		d.SendActionPush(ctx, userID, action, text)
	})
}

// QueueTrackedPush ставит в очередь пуш в обход тихих часов и дневного
// лимита, без записи в журнал. Для редких «сигнальных» уведомлений.
func (d *Dispatcher) QueueTrackedPush(userID int64, text string) {
	d.enqueue(func(ctx context.Context) {
		d.sendTrackedPush(ctx, userID, text)
	})
}

// QueueAdminMessage ставит в очередь служебное сообщение админу.
// Лимиты и тихие часы на него не действуют.
func (d *Dispatcher) QueueAdminMessage(text string) {
	d.enqueue(func(ctx context.Context) {
		d.sendAdminMessage(ctx, text)
	})
}

// SendActionPush доставляет пуш с учётом всех правил. Вызывается
// воркером; синхронный вызов допустим только из тестов.
func (d *Dispatcher) SendActionPush(ctx context.Context, userID int64, action, text string) {
	logger := log.WithFields(log.Fields{"user_id": userID, "action": action})

	if d.inQuietHours() {
		logger.Debug("Тихие часы, пуш пропущен")
		return
	}

	// Граница дня — полночь в часовом поясе приложения, том же,
	// по которому считаются тихие часы.
	count, err := d.store.CountPushesToday(ctx, userID, d.dayStart())
	if err != nil {
		logger.WithError(err).Warn("Не удалось проверить дневной лимит, пуш пропущен")
		return
	}
	if count >= d.dailyLimit {
		logger.Debug("Дневной лимит пушей исчерпан")
		return
	}

	if !d.sendTrackedPush(ctx, userID, text) {
		return
	}

	// Журналируется только успешная доставка: неудавшийся пуш
	// не должен съедать дневной лимит.
	if err := d.store.AddPushEvent(ctx, userID, action); err != nil {
		logger.WithError(err).Warn("Пуш доставлен, но не записан в журнал")
	}
	logger.Debug("Пуш доставлен")
}

// sendTrackedPush отправляет сообщение и разбирает последствия отказа:
// навсегда недостижимые пользователи удаляются, админ получает отчёт.
func (d *Dispatcher) sendTrackedPush(ctx context.Context, userID int64, text string) bool {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	err := d.sender.SendMessage(sendCtx, userID, text)
	cancel()
	if err == nil {
		return true
	}

	logger := log.WithFields(log.Fields{"user_id": userID})
	username, lookupErr := d.store.GetUsernameByUserID(ctx, userID)
	if lookupErr != nil || username == "" {
		username = fmt.Sprintf("id=%d", userID)
	}

	verdict := "Пользователь НЕ удалён (временная ошибка)."
	if shouldDeleteUser(err) {
		logger.WithError(err).Info("Пользователь недостижим, удаляю запись")
		if delErr := d.store.DeleteUser(ctx, userID); delErr != nil {
			logger.WithError(delErr).Error("Не удалось удалить недостижимого пользователя")
		} else {
			verdict = "Пользователь удалён из /users."
		}
	} else {
		logger.WithError(err).Warn("Пуш не доставлен")
	}

	d.sendAdminMessage(ctx, fmt.Sprintf(
		"Не удалось отправить push пользователю.\nПользователь: %s\nПричина: %v\n%s",
		username, err, verdict))
	return false
}

// dayStart — полночь текущего дня в часовом поясе приложения.
func (d *Dispatcher) dayStart() time.Time {
	now := d.now().In(d.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, d.loc)
}

// inQuietHours — действует ли сейчас интервал [From, To) по локальному
// времени. При From == To тихих часов нет.
func (d *Dispatcher) inQuietHours() bool {
	if d.quietFrom == d.quietTo {
		return false
	}
	h := d.now().In(d.loc).Hour()
	if d.quietFrom < d.quietTo {
		return h >= d.quietFrom && h < d.quietTo
	}
	return h >= d.quietFrom || h < d.quietTo
}

// shouldDeleteUser распознаёт ошибки Telegram, означающие, что
// пользователь недостижим навсегда: блокировка бота, удалённый
// аккаунт, несуществующий чат.
func shouldDeleteUser(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"bot was blocked by the user",
		"user is deactivated",
		"chat not found",
		"forbidden",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) sendAdminMessage(ctx context.Context, text string) {
	adminID, err := d.store.GetUserIDByUsername(ctx, d.adminUsername)
	if err != nil || adminID == 0 {
		log.WithError(err).Debug("Админ не найден, служебное сообщение пропущено")
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	if err := d.sender.SendMessage(sendCtx, adminID, text); err != nil {
		log.WithError(err).Warn("Служебное сообщение админу не доставлено")
	}
}
