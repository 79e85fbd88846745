// Package web — JSON API мини-аппа. Все ручки, кроме preview-фикстур,
// аватара и health, требуют подписанных Telegram init data.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"getxposed.ru/telegram-bot/internal/config"
	"getxposed.ru/telegram-bot/internal/features/feedback"
	"getxposed.ru/telegram-bot/internal/features/profile"
	"getxposed.ru/telegram-bot/internal/storage"
)

// Store — то, что хендлерам нужно от хранилища напрямую.
type Store interface {
	GetUserByUsername(ctx context.Context, username string) (*storage.User, error)
	UpsertUser(ctx context.Context, u storage.User) (bool, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]string, error)
	ListRecentTargets(ctx context.Context, voterID int64, limit int) ([]string, error)
	GetProfileNote(ctx context.Context, userID int64) (string, error)
}

// Profiles — агрегация профилей.
type Profiles interface {
	BuildPayload(ctx context.Context, target string) (*profile.Payload, error)
	InsightText(ctx context.Context, target string) (string, error)
}

// Feedback — приём мнений.
type Feedback interface {
	Submit(ctx context.Context, sub feedback.Submission) (storage.VoteResult, string, error)
}

// Users — регистрация и заметка профиля.
type Users interface {
	Register(ctx context.Context, u storage.User, source string) error
	Note(ctx context.Context, userID int64) (string, error)
	SetNote(ctx context.Context, userID int64, note string) (string, error)
}

// Telegram — обращения к Bot API из хендлеров.
type Telegram interface {
	ValidateFeedbackTarget(ctx context.Context, target string) error
	ResolvePublicUser(ctx context.Context, target string) (*storage.User, error)
	FetchUserBio(ctx context.Context, userID int64) string
	FetchAvatar(ctx context.Context, username string) ([]byte, string, error)
	BotUsername() string
}

// Server — HTTP-сервер мини-аппа.
type Server struct {
	engine *gin.Engine
	port   int

	botToken          string
	initDataMaxAge    time.Duration
	chatLookupTimeout time.Duration
	submitTimeout     time.Duration
	avatarTimeout     time.Duration

	store    Store
	profiles Profiles
	feedback Feedback
	users    Users
	tg       Telegram
}

func NewServer(cfg *config.Config, store Store, profiles Profiles, fb Feedback, us Users, tg Telegram) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{
		engine:            engine,
		port:              cfg.HTTPPort,
		botToken:          cfg.BotToken,
		initDataMaxAge:    cfg.InitDataMaxAge,
		chatLookupTimeout: cfg.ChatLookupTimeout,
		submitTimeout:     cfg.SubmitTimeout,
		avatarTimeout:     cfg.AvatarTimeout,
		store:             store,
		profiles:          profiles,
		feedback:          fb,
		users:             us,
		tg:                tg,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	ok := func(c *gin.Context) { c.String(http.StatusOK, "ok") }
	s.engine.GET("/health", ok)
	s.engine.GET("/", ok)
	// Сам мини-апп раздаётся отдельно; этот ответ — подсказка тем, кто
	// открыл API-домен в браузере.
	s.engine.GET("/miniapp", func(c *gin.Context) {
		c.String(http.StatusOK, "Открой приложение через бота: https://t.me/%s", s.tg.BotUsername())
	})

	api := s.engine.Group("/api/miniapp")
	api.GET("/avatar", s.handleAvatar)
	api.GET("/preview", s.handlePreview)
	api.GET("/preview-insight", s.handlePreviewInsight)
	api.GET("/preview-users", s.handlePreviewUsers)
	api.GET("/preview-recent-targets", s.handlePreviewRecentTargets)
	api.POST("/preview-feedback", s.handlePreviewFeedback)

	auth := api.Group("", s.authMiddleware())
	auth.GET("/me", s.handleMe)
	auth.GET("/profile", s.handleProfile)
	auth.GET("/insight", s.handleInsight)
	auth.GET("/search-users", s.handleSearchUsers)
	auth.GET("/recent-targets", s.handleRecentTargets)
	auth.POST("/profile-note", s.handleProfileNote)
	auth.POST("/feedback", s.handleFeedback)
}

// Run обслуживает HTTP до отмены контекста, после чего мягко гасит
// сервер.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: s.engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Ошибка остановки HTTP-сервера")
		}
	}()

	log.Infof("HTTP-сервер запущен на порту %d", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("ошибка HTTP-сервера: %w", err)
	}
	log.Info("HTTP-сервер остановлен")
	return nil
}

// requestLogger пишет запросы в debug, ошибки — в warn.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("HTTP-запрос завершился ошибкой")
		} else {
			entry.Debug("HTTP-запрос обработан")
		}
	}
}
