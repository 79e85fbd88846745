package web

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"getxposed.ru/telegram-bot/internal/features/profile"
	"getxposed.ru/telegram-bot/internal/storage"
)

// Preview-ручки отдают фикстуры без авторизации: на них фронтенд
// верстает экраны, не поднимая бота и базу.

// previewCounts — 13 ответов с выраженным большинством и заметной
// долей caution, чтобы в фикстуре были видны все блоки.
var previewCounts = storage.DimensionCounts{
	"tone":               {"easy": 9, "serious": 4},
	"speed":              {"fast": 4, "slow": 9},
	"contact_format":     {"text": 10, "live": 3},
	"caution":            {"true": 5, "false": 8},
	"initiative":         {"self": 8, "wait": 5},
	"start_context":      {"topic": 9, "direct": 4},
	"attention_reaction": {"likes": 7, "careful": 6},
	"frequency":          {"often": 5, "rare": 8},
	"comm_format":        {"informal": 8, "reserved": 5},
	"emotion_tone":       {"warm": 9, "neutral": 4},
	"feedback_style":     {"direct": 6, "soft": 7},
	"uncertainty":        {"low": 4, "high": 9},
}

func (s *Server) handlePreview(c *gin.Context) {
	payload := profile.BuildPayload("@preview_user", 13, 5, previewCounts)
	payload.Viewed = 18
	payload.Silent = 5
	payload.CautionBlock = true
	payload.UncertainBlock = true
	payload.Link = s.refLink("@preview_user")
	payload.InviteLink = payload.Link
	payload.IsAppUser = true
	payload.ProfileNote = "Пишите сразу по делу"
	payload.User = &profile.PublicUser{
		ID:        1,
		Username:  "preview_user",
		FirstName: "Preview",
		AvatarURL: s.avatarURL("@preview_user"),
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": payload})
}

func (s *Server) handlePreviewInsight(c *gin.Context) {
	text := "Как проще начать общение:\n\n" +
		"• С юмора\n" +
		"• Не торопясь\n" +
		"• Через переписку\n\n" +
		"⚠️ Иногда лучше не давить\nи дать время."
	c.JSON(http.StatusOK, gin.H{"ok": true, "enough": true, "text": text})
}

func (s *Server) handlePreviewUsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": []string{
		"@preview_user", "@anna_k", "@maxim_dev", "@kate_spb",
	}})
}

func (s *Server) handlePreviewRecentTargets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": []string{
		"@anna_k", "@maxim_dev",
	}})
}

func (s *Server) handlePreviewFeedback(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": storage.VoteInserted, "message": "Готово 👍 (preview)"})
}
