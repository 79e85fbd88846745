// Package storage описывает контракт хранилища.
// Раньше выбор между SQLite и PostgreSQL был размазан по каждой функции
// через ветвление по префиксу строки подключения; теперь это один интерфейс
// Store с двумя реализациями (storage/postgres и storage/sqlite), которые
// выбираются конфигурацией на старте и внедряются в сервисы.
package storage

import (
	"context"
	"time"
)

// VoteCooldown — минимальный интервал, раньше которого один и тот же
// голосующий не может перезаписать своё мнение о той же цели.
const VoteCooldown = 24 * time.Hour

// LabelFeedback — единственный осмысленный label голоса.
// Старые emoji-метки из ранних ревизий схемы перезаписываются
// свежим feedback-голосом в обход кулдауна.
const LabelFeedback = "feedback"

// VoteResult — исход попытки записать голос.
type VoteResult string

const (
	// VoteInserted — новая строка (или мгновенная перезапись legacy-метки).
	VoteInserted VoteResult = "inserted"
	// VoteUpdated — перезапись по истечении кулдауна.
	VoteUpdated VoteResult = "updated"
	// VoteDuplicateRecent — отклонено: кулдаун ещё не истёк. Мутации нет.
	VoteDuplicateRecent VoteResult = "duplicate_recent"
)

// VoteValues — значения двенадцати измерений одного голоса.
// Каждое поле уже нормализовано к одному из двух допустимых значений.
type VoteValues struct {
	Tone              string // easy | serious
	Speed             string // fast | slow
	ContactFormat     string // text | live
	Caution           string // true | false
	Initiative        string // self | wait
	StartContext      string // topic | direct
	AttentionReaction string // likes | careful
	Frequency         string // often | rare
	CommFormat        string // informal | reserved
	EmotionTone       string // warm | neutral
	FeedbackStyle     string // direct | soft
	Uncertainty       string // low | high
}

// User — запись о пользователе приложения или бота.
type User struct {
	UserID    int64
	Username  string // хранится с @, в нижнем регистре
	FirstName string
	LastName  string
	PhotoURL  string
	// AppUser накапливается через OR: если пользователь хоть раз
	// открыл Mini App, флаг уже не снимается.
	AppUser   bool
	UpdatedAt time.Time
}

// DimensionCounts — счётчики значений по каждому измерению:
// counts["tone"]["easy"] = 3. Агрегация поверх этих цифр — чистые
// функции в features/profile.
type DimensionCounts map[string]map[string]int

// Get возвращает счётчик, считая отсутствующие ключи нулём.
func (c DimensionCounts) Get(field, option string) int {
	return c[field][option]
}

// NameCount — пара (имя, количество) для админ-статистики.
type NameCount struct {
	Name  string
	Count int
}

// Store — контракт хранилища. Обе реализации (pgx и modernc/sqlite)
// обязаны обеспечивать уникальность (target, voter_id) и атомарность
// UpsertVote: проигравший гонку конкурентной вставки получает чистый
// VoteDuplicateRecent, а не голую ошибку констрейнта.
type Store interface {
	// --- Голоса ---

	// UpsertVote реализует машину состояний подачи голоса:
	// анонимный (voterID == nil) — всегда вставка; нет прежней строки —
	// вставка; прежняя строка с не-feedback label — немедленная
	// перезапись (inserted); feedback старше кулдауна — перезапись
	// (updated); feedback моложе кулдауна — VoteDuplicateRecent без
	// мутации. Ошибка — только при недоступности хранилища.
	UpsertVote(ctx context.Context, target string, targetUserID, voterID *int64, v VoteValues) (VoteResult, error)

	// GetTotalFeedback — число feedback-голосов о цели.
	// Если известен targetUserID, поиск идёт по нему, иначе по username.
	GetTotalFeedback(ctx context.Context, target string, targetUserID *int64) (int, error)

	// GetDimensionCounts — счётчики значений всех 12 измерений.
	GetDimensionCounts(ctx context.Context, target string, targetUserID *int64) (DimensionCounts, error)

	// ListRecentTargets — цели, о которых голосующий отвечал последним.
	ListRecentTargets(ctx context.Context, voterID int64, limit int) ([]string, error)

	// --- Пользователи ---

	// UpsertUser создаёт/обновляет запись и возвращает true, если
	// пользователь новый. Чужая строка с тем же username удаляется
	// (один username — один канонический user), app_user накапливается
	// через OR, висящие target_user_id в votes/ref_visits перепривязываются
	// по текущему и прежнему username.
	UpsertUser(ctx context.Context, u User) (bool, error)

	GetUserByUsername(ctx context.Context, username string) (*User, error)
	// GetUserIDByUsername возвращает 0, если пользователь не найден.
	GetUserIDByUsername(ctx context.Context, username string) (int64, error)
	GetUsernameByUserID(ctx context.Context, userID int64) (string, error)
	DeleteUser(ctx context.Context, userID int64) error
	CountUsers(ctx context.Context) (int, error)
	ListUsers(ctx context.Context, limit int) ([]string, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]string, error)

	// --- Реферальные визиты ---

	// AddRefVisit возвращает true, если визит записан впервые.
	AddRefVisit(ctx context.Context, target string, targetUserID *int64, visitorID int64) (bool, error)
	CountRefVisitors(ctx context.Context, target string, targetUserID *int64) (int, error)
	// CountRefAnswerers — сколько различных голосующих пришло по ссылке
	// и при этом оставило feedback.
	CountRefAnswerers(ctx context.Context, target string, targetUserID *int64) (int, error)

	// --- Подсказки «тебя рассматривают» ---

	// MarkSeenHint возвращает true строго один раз на пару (target, watcher).
	MarkSeenHint(ctx context.Context, target string, watcherID int64) (bool, error)

	// --- Push-журнал ---

	// CountPushesToday — пуши с начала календарного дня. Границу дня
	// (полночь в часовом поясе приложения) вычисляет вызывающий, чтобы
	// дневной лимит и тихие часы жили по одним часам.
	CountPushesToday(ctx context.Context, userID int64, dayStart time.Time) (int, error)
	AddPushEvent(ctx context.Context, userID int64, eventType string) error

	// --- Заметка профиля ---

	GetProfileNote(ctx context.Context, userID int64) (string, error)
	SetProfileNote(ctx context.Context, userID int64, note string) error

	// --- Админ-статистика ---

	CountVotes(ctx context.Context) (int, error)
	TopVoters(ctx context.Context, limit int) ([]NameCount, error)
	TopTargets(ctx context.Context, limit int) ([]NameCount, error)

	// --- Обслуживание ---

	// NormalizeCase схлопывает дубли пользователей, отличающиеся только
	// регистром username, и приводит usernames/targets к нижнему регистру.
	NormalizeCase(ctx context.Context) (merged, lowered int, err error)

	Close()
}
