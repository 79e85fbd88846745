package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// InitDataHeader — заголовок, в котором Mini App передаёт подписанные
// Telegram данные запуска.
const InitDataHeader = "X-Telegram-Init-Data"

const webAppUserKey = "webapp_user"

var errInvalidInitData = errors.New("некорректные init data")

// WebAppUser — пользователь из подписанных init data.
type WebAppUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
}

// VerifyInitData проверяет подпись Telegram Web App: секрет — это
// HMAC-SHA256 от токена бота с ключом "WebAppData", подписывается
// отсортированная строка k=v пар без поля hash.
func VerifyInitData(initData, botToken string, maxAge time.Duration, now time.Time) (*WebAppUser, error) {
	if initData == "" {
		return nil, errInvalidInitData
	}
	values, err := url.ParseQuery(initData)
	if err != nil {
		return nil, errInvalidInitData
	}
	providedHash := values.Get("hash")
	if providedHash == "" {
		return nil, errInvalidInitData
	}
	values.Del("hash")

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	checkString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	secret := secretMac.Sum(nil)

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(checkString))
	calculated := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(calculated), []byte(providedHash)) {
		return nil, fmt.Errorf("%w: подпись не совпала", errInvalidInitData)
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil || authDate <= 0 {
		return nil, errInvalidInitData
	}
	age := now.Unix() - authDate
	if age < 0 {
		age = -age
	}
	if time.Duration(age)*time.Second > maxAge {
		return nil, fmt.Errorf("%w: init data устарели", errInvalidInitData)
	}

	userRaw := values.Get("user")
	if userRaw == "" {
		return nil, errInvalidInitData
	}
	var user WebAppUser
	if err := json.Unmarshal([]byte(userRaw), &user); err != nil {
		return nil, errInvalidInitData
	}
	return &user, nil
}

// authMiddleware пускает дальше только запросы с валидными init data.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := VerifyInitData(c.GetHeader(InitDataHeader), s.botToken, s.initDataMaxAge, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "unauthorized"})
			return
		}
		c.Set(webAppUserKey, user)
		c.Next()
	}
}

func webAppUser(c *gin.Context) *WebAppUser {
	return c.MustGet(webAppUserKey).(*WebAppUser)
}
