// Package jobs управляет фоновыми задачами (cron).
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// Normalizer — ночная уборка регистра username-ов.
type Normalizer interface {
	NormalizeCase(ctx context.Context) (merged, lowered int, err error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron  *cron.Cron
	store Normalizer
}

// NewScheduler создаёт планировщик в часовом поясе приложения.
func NewScheduler(store Normalizer, loc *time.Location) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithLocation(loc)),
		store: store,
	}
}

// Start запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) {
	// Ночная нормализация: склеить дубли, отличающиеся регистром,
	// и привести все цели к нижнему регистру
	s.cron.AddFunc("0 4 * * *", func() {
		log.Info("[CRON] Нормализация регистра username-ов")
		jobCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
		defer cancel()

		merged, lowered, err := s.store.NormalizeCase(jobCtx)
		if err != nil {
			log.WithError(err).Error("[CRON] Ошибка нормализации")
			return
		}
		log.WithFields(log.Fields{
			"merged":  merged,
			"lowered": lowered,
		}).Info("[CRON] Нормализация завершена")
	})

	s.cron.Start()
	log.Info("Планировщик задач запущен")
}

// Stop останавливает планировщик и дожидается текущих задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}
