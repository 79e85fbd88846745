package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"getxposed.ru/telegram-bot/internal/common"
	"getxposed.ru/telegram-bot/internal/config"
	"getxposed.ru/telegram-bot/internal/features/feedback"
	"getxposed.ru/telegram-bot/internal/features/profile"
	"getxposed.ru/telegram-bot/internal/storage"
)

type fakeWebStore struct {
	users   map[string]*storage.User
	recent  []string
	matches []string
}

func (f *fakeWebStore) GetUserByUsername(_ context.Context, username string) (*storage.User, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, common.ErrUserNotFound
}

func (f *fakeWebStore) UpsertUser(_ context.Context, u storage.User) (bool, error) {
	if f.users == nil {
		f.users = map[string]*storage.User{}
	}
	_, existed := f.users[u.Username]
	f.users[u.Username] = &u
	return !existed, nil
}

func (f *fakeWebStore) SearchUsers(_ context.Context, _ string, _ int) ([]string, error) {
	return f.matches, nil
}

func (f *fakeWebStore) ListRecentTargets(_ context.Context, _ int64, _ int) ([]string, error) {
	return f.recent, nil
}

func (f *fakeWebStore) GetProfileNote(_ context.Context, _ int64) (string, error) {
	return "", nil
}

type fakeWebProfiles struct{}

func (fakeWebProfiles) BuildPayload(_ context.Context, target string) (*profile.Payload, error) {
	return profile.BuildPayload(target, 0, 0, storage.DimensionCounts{}), nil
}

func (fakeWebProfiles) InsightText(context.Context, string) (string, error) {
	return "", nil
}

type fakeWebFeedback struct {
	result storage.VoteResult
	msg    string
	err    error
}

func (f *fakeWebFeedback) Submit(context.Context, feedback.Submission) (storage.VoteResult, string, error) {
	return f.result, f.msg, f.err
}

type fakeWebUsers struct{}

func (fakeWebUsers) Register(context.Context, storage.User, string) error { return nil }
func (fakeWebUsers) Note(context.Context, int64) (string, error)          { return "", nil }
func (fakeWebUsers) SetNote(_ context.Context, _ int64, note string) (string, error) {
	return note, nil
}

type fakeWebTelegram struct {
	validateErr error
}

func (f *fakeWebTelegram) ValidateFeedbackTarget(context.Context, string) error {
	return f.validateErr
}

func (f *fakeWebTelegram) ResolvePublicUser(context.Context, string) (*storage.User, error) {
	return nil, common.ErrUserNotFound
}

func (f *fakeWebTelegram) FetchUserBio(context.Context, int64) string { return "" }

func (f *fakeWebTelegram) FetchAvatar(context.Context, string) ([]byte, string, error) {
	return nil, "", common.ErrUserNotFound
}

func (f *fakeWebTelegram) BotUsername() string { return "getxposedbot" }

func newTestServer(fb *fakeWebFeedback, tg *fakeWebTelegram) *Server {
	cfg := &config.Config{
		BotToken:          testBotToken,
		HTTPPort:          8080,
		InitDataMaxAge:    time.Hour,
		ChatLookupTimeout: time.Second,
		SubmitTimeout:     time.Second,
		AvatarTimeout:     time.Second,
	}
	return NewServer(cfg, &fakeWebStore{matches: []string{"@anna"}}, fakeWebProfiles{}, fb, fakeWebUsers{}, tg)
}

func authedRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	// username без @ — ровно так его отдаёт Telegram в init data
	return authedRequestAs(t, method, path, body, `{"id":7,"username":"voter","first_name":"V"}`)
}

func authedRequestAs(t *testing.T, method, path, body, userJSON string) *http.Request {
	t.Helper()
	fields := map[string]string{
		"auth_date": strconv.FormatInt(time.Now().Unix(), 10),
		"user":      userJSON,
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(InitDataHeader, signInitData(t, testBotToken, fields))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("некорректный JSON в ответе: %v", err)
	}
	return body
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(&fakeWebFeedback{}, &fakeWebTelegram{})
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/miniapp/me", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("без init data ожидался 401, получен %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "unauthorized" {
		t.Fatalf("неожиданное тело ответа: %v", body)
	}
}

func TestMe(t *testing.T) {
	s := newTestServer(&fakeWebFeedback{}, &fakeWebTelegram{})

	rec := doRequest(s, authedRequest(t, http.MethodGet, "/api/miniapp/me", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("в ответе нет блока data: %v", body)
	}
	if data["target"] != "@voter" {
		t.Fatalf("ожидалась цель @voter, получена %v", data["target"])
	}
	if data["link"] != "https://t.me/getxposedbot?start=ref_voter" {
		t.Fatalf("неожиданная ссылка: %v", data["link"])
	}
	if data["is_app_user"] != true {
		t.Fatal("сам пользователь всегда app_user")
	}
	user, ok := data["user"].(map[string]any)
	if !ok {
		t.Fatalf("в ответе нет блока user: %v", data)
	}
	if user["username"] != "voter" {
		t.Fatalf("ожидался username voter, получен %v", user["username"])
	}
}

func TestMeWithoutUsername(t *testing.T) {
	s := newTestServer(&fakeWebFeedback{}, &fakeWebTelegram{})

	req := authedRequestAs(t, http.MethodGet, "/api/miniapp/me", "", `{"id":7,"first_name":"V"}`)
	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("без username ожидался 400, получен %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Укажи @username в Telegram профиле" {
		t.Fatalf("неожиданный текст ошибки: %v", body["error"])
	}
}

func TestFeedbackInserted(t *testing.T) {
	fb := &fakeWebFeedback{result: storage.VoteInserted, msg: feedback.MsgInserted}
	s := newTestServer(fb, &fakeWebTelegram{})

	req := authedRequest(t, http.MethodPost, "/api/miniapp/feedback", `{"target":"@Anna","tone":"easy"}`)
	rec := doRequest(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["result"] != "inserted" {
		t.Fatalf("ожидался result inserted, получен %v", body["result"])
	}
}

func TestFeedbackDuplicate(t *testing.T) {
	fb := &fakeWebFeedback{result: storage.VoteDuplicateRecent, msg: feedback.MsgDuplicate}
	s := newTestServer(fb, &fakeWebTelegram{})

	req := authedRequest(t, http.MethodPost, "/api/miniapp/feedback", `{"target":"@anna"}`)
	rec := doRequest(s, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("ожидался 429, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["code"] != "duplicate_recent" {
		t.Fatalf("ожидался code duplicate_recent, получен %v", body["code"])
	}
}

func TestFeedbackRejectsBots(t *testing.T) {
	s := newTestServer(&fakeWebFeedback{}, &fakeWebTelegram{validateErr: common.ErrTargetIsBot})

	req := authedRequest(t, http.MethodPost, "/api/miniapp/feedback", `{"target":"@somebot"}`)
	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидался 400, получен %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["error"] != "Нельзя оставлять отзывы о ботах." {
		t.Fatalf("неожиданный текст ошибки: %v", body["error"])
	}
}

func TestFeedbackBadTarget(t *testing.T) {
	s := newTestServer(&fakeWebFeedback{}, &fakeWebTelegram{})

	req := authedRequest(t, http.MethodPost, "/api/miniapp/feedback", `{"target":"not a username"}`)
	rec := doRequest(s, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("ожидался 400, получен %d", rec.Code)
	}
}

func TestProfileRequiresTarget(t *testing.T) {
	s := newTestServer(&fakeWebFeedback{}, &fakeWebTelegram{})

	rec := doRequest(s, authedRequest(t, http.MethodGet, "/api/miniapp/profile", ""))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("без target ожидался 400, получен %d", rec.Code)
	}
}

func TestSearchUsers(t *testing.T) {
	s := newTestServer(&fakeWebFeedback{}, &fakeWebTelegram{})

	rec := doRequest(s, authedRequest(t, http.MethodGet, "/api/miniapp/search-users?q=an", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался 200, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 || items[0] != "@anna" {
		t.Fatalf("неожиданный список: %v", body["items"])
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeWebFeedback{}, &fakeWebTelegram{})
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("ожидался ok, получено %d %q", rec.Code, rec.Body.String())
	}
}

func TestPreviewWithoutAuth(t *testing.T) {
	s := newTestServer(&fakeWebFeedback{}, &fakeWebTelegram{})
	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/miniapp/preview", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("preview должен отдаваться без авторизации, получен %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["ok"] != true {
		t.Fatalf("неожиданное тело: %v", body)
	}
}
