package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"getxposed.ru/telegram-bot/internal/common"
	"getxposed.ru/telegram-bot/internal/features/feedback"
	"getxposed.ru/telegram-bot/internal/features/profile"
	"getxposed.ru/telegram-bot/internal/storage"
)

const msgStorageDown = "База недоступна, попробуй позже"

// feedbackRequest — тело POST /feedback, поля совпадают с анкетой
// мини-аппа.
type feedbackRequest struct {
	Target            string `json:"target"`
	Tone              string `json:"tone"`
	Speed             string `json:"speed"`
	ContactFormat     string `json:"contact_format"`
	Caution           string `json:"caution"`
	Initiative        string `json:"initiative"`
	StartContext      string `json:"start_context"`
	AttentionReaction string `json:"attention_reaction"`
	Frequency         string `json:"frequency"`
	CommFormat        string `json:"comm_format"`
	EmotionTone       string `json:"emotion_tone"`
	FeedbackStyle     string `json:"feedback_style"`
	Uncertainty       string `json:"uncertainty"`
}

type noteRequest struct {
	Note string `json:"note"`
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": msg})
}

func storageDown(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": msgStorageDown})
}

// refLink — диплинк на бота, по которому открытие засчитывается как
// переход по ссылке target.
func (s *Server) refLink(target string) string {
	return "https://t.me/" + s.tg.BotUsername() + "?start=ref_" + common.StripAt(target)
}

func (s *Server) avatarURL(username string) string {
	return "/api/miniapp/avatar?username=" + common.StripAt(username)
}

// handleMe возвращает профиль самого пользователя и регистрирует его
// как пользователя приложения.
func (s *Server) handleMe(c *gin.Context) {
	u := webAppUser(c)
	// Telegram отдаёт username без @, нормализация ждёт его с @.
	username := common.NormalizeUsername("@" + u.Username)
	if username == "" {
		badRequest(c, "Укажи @username в Telegram профиле")
		return
	}
	ctx := c.Request.Context()

	err := s.users.Register(ctx, storage.User{
		UserID:    u.ID,
		Username:  username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		PhotoURL:  u.PhotoURL,
		AppUser:   true,
	}, "miniapp")
	if err != nil {
		storageDown(c)
		return
	}

	payload, err := s.profiles.BuildPayload(ctx, username)
	if err != nil {
		storageDown(c)
		return
	}

	payload.Link = s.refLink(username)
	payload.InviteLink = payload.Link
	payload.IsAppUser = true
	payload.User = s.publicUser(ctx, username, u)
	if note, err := s.users.Note(ctx, u.ID); err == nil {
		payload.ProfileNote = note
	}

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": payload})
}

// publicUser собирает блок user из базы, а при промахе — из init data.
func (s *Server) publicUser(ctx context.Context, username string, u *WebAppUser) *profile.PublicUser {
	pub := &profile.PublicUser{
		ID:        u.ID,
		Username:  common.StripAt(username),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		PhotoURL:  u.PhotoURL,
		AvatarURL: s.avatarURL(username),
	}
	if stored, err := s.store.GetUserByUsername(ctx, username); err == nil {
		pub.ID = stored.UserID
		pub.FirstName = stored.FirstName
		pub.LastName = stored.LastName
		if stored.PhotoURL != "" {
			pub.PhotoURL = stored.PhotoURL
		}
	}
	return pub
}

// handleProfile возвращает агрегированный профиль произвольной цели.
// Неизвестные цели дорезолвливаются через Bot API, чтобы в карточке
// было имя и аватар.
func (s *Server) handleProfile(c *gin.Context) {
	target := common.NormalizeUsername(c.Query("target"))
	if target == "" {
		badRequest(c, "Нужен корректный @username")
		return
	}
	ctx := c.Request.Context()

	stored, err := s.store.GetUserByUsername(ctx, target)
	if err != nil && !errors.Is(err, common.ErrUserNotFound) {
		storageDown(c)
		return
	}
	if stored == nil || (stored.FirstName == "" && stored.LastName == "") {
		stored = s.resolveTarget(ctx, target, stored)
	}

	payload, err := s.profiles.BuildPayload(ctx, target)
	if err != nil {
		storageDown(c)
		return
	}

	payload.Link = s.refLink(target)
	pub := &profile.PublicUser{
		Username:  common.StripAt(target),
		AvatarURL: s.avatarURL(target),
	}
	if stored != nil {
		pub.ID = stored.UserID
		pub.FirstName = stored.FirstName
		pub.LastName = stored.LastName
		pub.PhotoURL = stored.PhotoURL
		payload.IsAppUser = stored.AppUser
		if note, err := s.store.GetProfileNote(ctx, stored.UserID); err == nil {
			payload.ProfileNote = note
		}
		// У цели без своей заметки показываем её Telegram bio.
		if payload.ProfileNote == "" {
			bioCtx, cancel := context.WithTimeout(ctx, s.chatLookupTimeout)
			payload.ProfileNote = s.tg.FetchUserBio(bioCtx, stored.UserID)
			cancel()
		}
	}
	payload.User = pub

	c.JSON(http.StatusOK, gin.H{"ok": true, "data": payload})
}

// resolveTarget подтягивает имя и фото цели из Telegram и сохраняет их
// в базе. Ошибки не фатальны: профиль отдаётся и без карточки.
func (s *Server) resolveTarget(ctx context.Context, target string, stored *storage.User) *storage.User {
	lookupCtx, cancel := context.WithTimeout(ctx, s.chatLookupTimeout)
	defer cancel()

	resolved, err := s.tg.ResolvePublicUser(lookupCtx, target)
	if err != nil {
		return stored
	}
	if _, err := s.store.UpsertUser(ctx, *resolved); err != nil {
		log.WithError(err).WithField("target", target).Warn("Не удалось сохранить дорезолвленную цель")
		return stored
	}
	return resolved
}

func (s *Server) handleInsight(c *gin.Context) {
	target := common.NormalizeUsername(c.Query("target"))
	if target == "" {
		badRequest(c, "Нужен корректный @username")
		return
	}

	text, err := s.profiles.InsightText(c.Request.Context(), target)
	if err != nil {
		storageDown(c)
		return
	}
	if text == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true, "enough": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "enough": true, "text": text})
}

func (s *Server) handleSearchUsers(c *gin.Context) {
	query := strings.ToLower(strings.TrimSpace(c.Query("q")))
	query = strings.TrimPrefix(query, "@")
	if query == "" {
		c.JSON(http.StatusOK, gin.H{"ok": true, "items": []string{}})
		return
	}

	items, err := s.store.SearchUsers(c.Request.Context(), "@"+query, 20)
	if err != nil {
		storageDown(c)
		return
	}
	if items == nil {
		items = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": items})
}

func (s *Server) handleRecentTargets(c *gin.Context) {
	u := webAppUser(c)
	items, err := s.store.ListRecentTargets(c.Request.Context(), u.ID, 20)
	if err != nil {
		storageDown(c)
		return
	}
	if items == nil {
		items = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "items": items})
}

func (s *Server) handleProfileNote(c *gin.Context) {
	u := webAppUser(c)
	var req noteRequest
	_ = c.ShouldBindJSON(&req)

	saved, err := s.users.SetNote(c.Request.Context(), u.ID, req.Note)
	switch {
	case errors.Is(err, common.ErrNoteTooLong):
		badRequest(c, "Максимум 90 символов")
	case errors.Is(err, common.ErrNoteHasLink):
		badRequest(c, "Ссылки в описании запрещены")
	case err != nil:
		storageDown(c)
	default:
		c.JSON(http.StatusOK, gin.H{"ok": true, "note": saved})
	}
}

func (s *Server) handleFeedback(c *gin.Context) {
	u := webAppUser(c)
	var req feedbackRequest
	_ = c.ShouldBindJSON(&req)

	target := common.NormalizeUsername(req.Target)
	if target == "" {
		badRequest(c, "Нужен корректный @username")
		return
	}

	lookupCtx, cancel := context.WithTimeout(c.Request.Context(), s.chatLookupTimeout)
	err := s.tg.ValidateFeedbackTarget(lookupCtx, target)
	cancel()
	switch {
	case errors.Is(err, common.ErrTargetIsBot):
		badRequest(c, "Нельзя оставлять отзывы о ботах.")
		return
	case errors.Is(err, common.ErrTargetIsGroup):
		badRequest(c, "Нельзя оставлять отзывы о чатах.")
		return
	case errors.Is(err, common.ErrTargetIsChannel):
		badRequest(c, "Нельзя оставлять отзывы о каналах.")
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "Не удалось проверить username, попробуй позже."})
		return
	}

	if username := common.NormalizeUsername("@" + u.Username); username != "" {
		if err := s.users.Register(c.Request.Context(), storage.User{
			UserID:    u.ID,
			Username:  username,
			FirstName: u.FirstName,
			LastName:  u.LastName,
			PhotoURL:  u.PhotoURL,
			AppUser:   true,
		}, "miniapp"); err != nil {
			storageDown(c)
			return
		}
	}

	voterID := u.ID
	sub := feedback.Submission{
		Target:  target,
		VoterID: &voterID,
		Values: storage.VoteValues{
			Tone:              req.Tone,
			Speed:             req.Speed,
			ContactFormat:     req.ContactFormat,
			Caution:           req.Caution,
			Initiative:        req.Initiative,
			StartContext:      req.StartContext,
			AttentionReaction: req.AttentionReaction,
			Frequency:         req.Frequency,
			CommFormat:        req.CommFormat,
			EmotionTone:       req.EmotionTone,
			FeedbackStyle:     req.FeedbackStyle,
			Uncertainty:       req.Uncertainty,
		},
	}

	submitCtx, cancel := context.WithTimeout(c.Request.Context(), s.submitTimeout)
	defer cancel()
	result, msg, err := s.feedback.Submit(submitCtx, sub)
	if err != nil {
		storageDown(c)
		return
	}
	if result == storage.VoteDuplicateRecent {
		c.JSON(http.StatusTooManyRequests, gin.H{"ok": false, "error": msg, "code": "duplicate_recent"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": result, "message": msg})
}

// handleAvatar проксирует фото профиля из Telegram, чтобы мини-апп не
// ходил в Bot API со своим токеном.
func (s *Server) handleAvatar(c *gin.Context) {
	username := strings.ToLower(strings.TrimSpace(c.Query("username")))
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		badRequest(c, "Нужен корректный @username")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.avatarTimeout)
	defer cancel()
	content, contentType, err := s.tg.FetchAvatar(ctx, "@"+username)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "аватар недоступен"})
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, contentType, content)
}
