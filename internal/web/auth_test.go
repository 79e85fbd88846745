package web

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testBotToken = "123456:test-token"

// signInitData подписывает init data тем же алгоритмом, что и Telegram.
func signInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	checkString := strings.Join(pairs, "\n")

	secretMac := hmac.New(sha256.New, []byte("WebAppData"))
	secretMac.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secretMac.Sum(nil))
	mac.Write([]byte(checkString))

	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func validFields(now time.Time) map[string]string {
	return map[string]string{
		"auth_date": strconv.FormatInt(now.Unix(), 10),
		"query_id":  "AAH_test",
		"user":      `{"id":42,"username":"Alice_W","first_name":"Alice","last_name":"W"}`,
	}
}

func TestVerifyInitDataValid(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	initData := signInitData(t, testBotToken, validFields(now))

	user, err := VerifyInitData(initData, testBotToken, time.Hour, now)
	if err != nil {
		t.Fatalf("валидные init data отклонены: %v", err)
	}
	if user.ID != 42 {
		t.Fatalf("ожидался id 42, получен %d", user.ID)
	}
	if user.Username != "Alice_W" {
		t.Fatalf("ожидался username Alice_W, получен %q", user.Username)
	}
}

func TestVerifyInitDataWrongToken(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	initData := signInitData(t, "999:other-token", validFields(now))

	if _, err := VerifyInitData(initData, testBotToken, time.Hour, now); err == nil {
		t.Fatal("подпись чужим токеном должна быть отклонена")
	}
}

func TestVerifyInitDataTampered(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fields := validFields(now)
	initData := signInitData(t, testBotToken, fields)
	tampered := strings.Replace(initData, "42", "43", 1)

	if _, err := VerifyInitData(tampered, testBotToken, time.Hour, now); err == nil {
		t.Fatal("подменённые init data должны быть отклонены")
	}
}

func TestVerifyInitDataExpired(t *testing.T) {
	signedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	initData := signInitData(t, testBotToken, validFields(signedAt))

	now := signedAt.Add(2 * time.Hour)
	if _, err := VerifyInitData(initData, testBotToken, time.Hour, now); err == nil {
		t.Fatal("просроченные init data должны быть отклонены")
	}
}

func TestVerifyInitDataMissingUser(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fields := validFields(now)
	delete(fields, "user")
	initData := signInitData(t, testBotToken, fields)

	if _, err := VerifyInitData(initData, testBotToken, time.Hour, now); err == nil {
		t.Fatal("init data без блока user должны быть отклонены")
	}
}

func TestVerifyInitDataEmpty(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, initData := range []string{"", "auth_date=1", "hash=deadbeef"} {
		if _, err := VerifyInitData(initData, testBotToken, time.Hour, now); err == nil {
			t.Fatalf("init data %q должны быть отклонены", initData)
		}
	}
}
