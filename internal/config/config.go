// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// перед этим godotenv подхватывает локальный .env (если он есть).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	BotToken string `envconfig:"BOT_TOKEN" required:"true"`
	// Username админа без @. Админ-команды и служебные уведомления идут ему.
	AdminUsername string `envconfig:"ADMIN_USERNAME" default:"bulushew"`
	// Публичный username бота — запасной вариант, пока getMe не ответил.
	BotPublicUsername string `envconfig:"BOT_USERNAME" default:"getxposedbot"`
	// Адрес Mini App. Пустая строка = кнопка запуска не показывается.
	MiniAppURL string `envconfig:"MINI_APP_URL" default:""`

	// --- HTTP ---
	HTTPPort int `envconfig:"PORT" default:"8080"`

	// --- Storage ---
	// Какой бэкенд использовать: "postgres" или "sqlite".
	// Выбор происходит один раз на старте, дальше весь код работает
	// через интерфейс storage.Store.
	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"sqlite"`
	SQLitePath    string `envconfig:"SQLITE_PATH" default:"data.sqlite3"`

	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose).
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`
	DBName     string `envconfig:"DB_NAME" default:"getxposed"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно. Иначе "go на каждый апдейт"
	// = утечка памяти при флуде.
	BotMaxInflight          int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Mini App auth ---
	InitDataMaxAge time.Duration `envconfig:"INITDATA_MAX_AGE" default:"24h"`

	// --- Push ---
	PushTimeout    time.Duration `envconfig:"PUSH_TIMEOUT" default:"15s"`
	PushDailyLimit int           `envconfig:"PUSH_DAILY_LIMIT" default:"2"`
	PushQueueSize  int           `envconfig:"PUSH_QUEUE_SIZE" default:"64"`
	// Тихие часы: [From, To) по локальному времени AppTimezone.
	PushQuietFromHour int `envconfig:"PUSH_QUIET_FROM_HOUR" default:"22"`
	PushQuietToHour   int `envconfig:"PUSH_QUIET_TO_HOUR" default:"9"`

	// --- Telegram API timeouts ---
	// Интерактивные запросы (getChat и т.п.) держим короткими, чтобы не
	// подвешивать HTTP-хендлеры.
	ChatLookupTimeout time.Duration `envconfig:"CHAT_LOOKUP_TIMEOUT" default:"3s"`
	SubmitTimeout     time.Duration `envconfig:"SUBMIT_TIMEOUT" default:"8s"`
	AvatarTimeout     time.Duration `envconfig:"AVATAR_TIMEOUT" default:"8s"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает часовой пояс приложения.
// Если зону не удалось загрузить — фиксированный UTC+3 (Москва).
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

func (c *Config) Validate() error {
	switch c.StorageDriver {
	case "postgres":
		if c.DBPassword == "" {
			return fmt.Errorf("STORAGE_DRIVER=postgres требует DB_PASSWORD")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case "sqlite":
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("STORAGE_DRIVER=sqlite требует SQLITE_PATH")
		}
	default:
		return fmt.Errorf("неизвестный STORAGE_DRIVER %q (ожидается postgres или sqlite)", c.StorageDriver)
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.PushDailyLimit < 0 || c.PushQueueSize <= 0 {
		return fmt.Errorf("некорректные PUSH_DAILY_LIMIT/PUSH_QUEUE_SIZE")
	}
	if c.PushQuietFromHour < 0 || c.PushQuietFromHour > 23 || c.PushQuietToHour < 0 || c.PushQuietToHour > 23 {
		return fmt.Errorf("часы тихого режима должны быть в диапазоне 0-23")
	}
	return nil
}

// Load читает .env и переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	// .env — только для локальной разработки, отсутствие файла не ошибка.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	cfg.AdminUsername = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.AdminUsername), "@"))
	cfg.BotPublicUsername = strings.TrimPrefix(strings.TrimSpace(cfg.BotPublicUsername), "@")
	cfg.MiniAppURL = strings.TrimSpace(cfg.MiniAppURL)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
