package feedback

import (
	"context"
	"testing"

	"getxposed.ru/telegram-bot/internal/features/profile"
	"getxposed.ru/telegram-bot/internal/storage"
)

type fakeStore struct {
	targetID     int64
	voteResult   storage.VoteResult
	gotValues    storage.VoteValues
	seenFirst    bool
	seenMarked   int
	refAnswerers int
}

func (f *fakeStore) GetUserIDByUsername(context.Context, string) (int64, error) {
	return f.targetID, nil
}

func (f *fakeStore) UpsertVote(_ context.Context, _ string, _, _ *int64, v storage.VoteValues) (storage.VoteResult, error) {
	f.gotValues = v
	return f.voteResult, nil
}

func (f *fakeStore) MarkSeenHint(context.Context, string, int64) (bool, error) {
	f.seenMarked++
	return f.seenFirst, nil
}

func (f *fakeStore) CountRefAnswerers(context.Context, string, *int64) (int, error) {
	return f.refAnswerers, nil
}

type fakeProfiles struct {
	payloads []*profile.Payload
	calls    int
}

func (f *fakeProfiles) BuildPayload(context.Context, string) (*profile.Payload, error) {
	p := f.payloads[f.calls]
	if f.calls < len(f.payloads)-1 {
		f.calls++
	}
	return p, nil
}

type queuedPush struct {
	userID  int64
	action  string
	tracked bool
}

type fakeNotifier struct {
	pushes []queuedPush
}

func (f *fakeNotifier) QueueActionPush(userID int64, action, _ string) {
	f.pushes = append(f.pushes, queuedPush{userID: userID, action: action})
}

func (f *fakeNotifier) QueueTrackedPush(userID int64, _ string) {
	f.pushes = append(f.pushes, queuedPush{userID: userID, tracked: true})
}

func (f *fakeNotifier) actions() []string {
	var out []string
	for _, p := range f.pushes {
		if !p.tracked {
			out = append(out, p.action)
		}
	}
	return out
}

func payload(answers int, rows []profile.ResultRow, hint string) *profile.Payload {
	return &profile.Payload{Answers: answers, ResultRows: rows, ExtraHint: hint}
}

func sampleValues() storage.VoteValues {
	return storage.VoteValues{
		Tone: "easy", Speed: "fast", ContactFormat: "text",
		Caution: "false", Initiative: "self", StartContext: "topic",
		AttentionReaction: "likes", Frequency: "often", CommFormat: "informal",
		EmotionTone: "warm", FeedbackStyle: "direct", Uncertainty: "low",
	}
}

func int64Ptr(v int64) *int64 { return &v }

func TestSubmitInsertedEvenAnswersPushes(t *testing.T) {
	store := &fakeStore{targetID: 7, voteResult: storage.VoteInserted}
	profiles := &fakeProfiles{payloads: []*profile.Payload{
		payload(3, nil, ""),
		payload(4, nil, ""),
	}}
	pushes := &fakeNotifier{}
	svc := NewService(store, profiles, pushes)

	result, msg, err := svc.Submit(context.Background(), Submission{
		Target: "@target", VoterID: int64Ptr(100), Values: sampleValues(),
	})
	if err != nil {
		t.Fatalf("подача: %v", err)
	}
	if result != storage.VoteInserted {
		t.Fatalf("ожидался inserted, получен %s", result)
	}
	if msg != MsgInserted {
		t.Fatalf("неожиданное сообщение: %q", msg)
	}
	actions := pushes.actions()
	if len(actions) != 1 || actions[0] != "new_feedback" {
		t.Fatalf("ожидался один пуш new_feedback, получено %v", actions)
	}
}

func TestSubmitOddAnswersNoFeedbackPush(t *testing.T) {
	store := &fakeStore{targetID: 7, voteResult: storage.VoteInserted}
	profiles := &fakeProfiles{payloads: []*profile.Payload{
		payload(2, nil, ""),
		payload(3, nil, ""),
	}}
	pushes := &fakeNotifier{}
	svc := NewService(store, profiles, pushes)

	if _, _, err := svc.Submit(context.Background(), Submission{
		Target: "@target", VoterID: int64Ptr(100), Values: sampleValues(),
	}); err != nil {
		t.Fatalf("подача: %v", err)
	}
	if len(pushes.actions()) != 0 {
		t.Fatalf("на нечётном ответе пушей быть не должно: %v", pushes.actions())
	}
}

func TestSubmitResultChangedPushes(t *testing.T) {
	store := &fakeStore{targetID: 7, voteResult: storage.VoteUpdated}
	profiles := &fakeProfiles{payloads: []*profile.Payload{
		payload(3, []profile.ResultRow{{Title: "Темп", Value: "старое"}}, ""),
		payload(3, []profile.ResultRow{{Title: "Темп", Value: "новое"}}, ""),
	}}
	pushes := &fakeNotifier{}
	svc := NewService(store, profiles, pushes)

	_, msg, err := svc.Submit(context.Background(), Submission{
		Target: "@target", VoterID: int64Ptr(100), Values: sampleValues(),
	})
	if err != nil {
		t.Fatalf("подача: %v", err)
	}
	if msg != MsgUpdated {
		t.Fatalf("неожиданное сообщение: %q", msg)
	}
	actions := pushes.actions()
	if len(actions) != 1 || actions[0] != "result_updated" {
		t.Fatalf("ожидался пуш result_updated, получено %v", actions)
	}
}

func TestSubmitRefAnswerersPush(t *testing.T) {
	store := &fakeStore{targetID: 7, voteResult: storage.VoteInserted, refAnswerers: 2}
	profiles := &fakeProfiles{payloads: []*profile.Payload{
		payload(2, nil, ""),
		payload(3, nil, ""),
	}}
	pushes := &fakeNotifier{}
	svc := NewService(store, profiles, pushes)

	if _, _, err := svc.Submit(context.Background(), Submission{
		Target: "@target", VoterID: int64Ptr(100), Values: sampleValues(),
	}); err != nil {
		t.Fatalf("подача: %v", err)
	}
	actions := pushes.actions()
	if len(actions) != 1 || actions[0] != "ref_answer" {
		t.Fatalf("ожидался пуш ref_answer, получено %v", actions)
	}
}

func TestSubmitDuplicateMarksSeenHint(t *testing.T) {
	store := &fakeStore{targetID: 7, voteResult: storage.VoteDuplicateRecent, seenFirst: true}
	profiles := &fakeProfiles{payloads: []*profile.Payload{payload(3, nil, "")}}
	pushes := &fakeNotifier{}
	svc := NewService(store, profiles, pushes)

	result, msg, err := svc.Submit(context.Background(), Submission{
		Target: "@target", VoterID: int64Ptr(100), Values: sampleValues(),
	})
	if err != nil {
		t.Fatalf("подача: %v", err)
	}
	if result != storage.VoteDuplicateRecent {
		t.Fatalf("ожидался duplicate_recent, получен %s", result)
	}
	if msg != MsgDuplicate {
		t.Fatalf("неожиданное сообщение: %q", msg)
	}
	if store.seenMarked != 1 {
		t.Fatal("подсказка должна отмечаться при дубле")
	}
	if len(pushes.pushes) != 1 || !pushes.pushes[0].tracked {
		t.Fatalf("ожидался один tracked-пуш, получено %v", pushes.pushes)
	}
}

func TestSubmitDuplicateSecondTimeSilent(t *testing.T) {
	store := &fakeStore{targetID: 7, voteResult: storage.VoteDuplicateRecent, seenFirst: false}
	profiles := &fakeProfiles{payloads: []*profile.Payload{payload(3, nil, "")}}
	pushes := &fakeNotifier{}
	svc := NewService(store, profiles, pushes)

	if _, _, err := svc.Submit(context.Background(), Submission{
		Target: "@target", VoterID: int64Ptr(100), Values: sampleValues(),
	}); err != nil {
		t.Fatalf("подача: %v", err)
	}
	if len(pushes.pushes) != 0 {
		t.Fatal("повторная подсказка не отправляется")
	}
}

func TestSubmitAnonymousDuplicateNoHint(t *testing.T) {
	store := &fakeStore{targetID: 7, voteResult: storage.VoteDuplicateRecent}
	profiles := &fakeProfiles{payloads: []*profile.Payload{payload(3, nil, "")}}
	pushes := &fakeNotifier{}
	svc := NewService(store, profiles, pushes)

	if _, _, err := svc.Submit(context.Background(), Submission{
		Target: "@target", Values: sampleValues(),
	}); err != nil {
		t.Fatalf("подача: %v", err)
	}
	if store.seenMarked != 0 {
		t.Fatal("анонимный дубль не должен отмечать подсказку")
	}
}

func TestSubmitNormalizesValues(t *testing.T) {
	store := &fakeStore{targetID: 0, voteResult: storage.VoteInserted}
	profiles := &fakeProfiles{payloads: []*profile.Payload{payload(0, nil, "")}}
	pushes := &fakeNotifier{}
	svc := NewService(store, profiles, pushes)

	values := sampleValues()
	values.Tone = "weird"
	values.Uncertainty = ""

	if _, _, err := svc.Submit(context.Background(), Submission{
		Target: "@target", VoterID: int64Ptr(100), Values: values,
	}); err != nil {
		t.Fatalf("подача: %v", err)
	}
	if store.gotValues.Tone != "serious" {
		t.Fatalf("невалидный tone должен замениться на serious, получен %s", store.gotValues.Tone)
	}
	if store.gotValues.Uncertainty != "high" {
		t.Fatalf("пустой uncertainty должен замениться на high, получен %s", store.gotValues.Uncertainty)
	}
	if store.gotValues.Speed != "fast" {
		t.Fatalf("валидный speed не должен меняться, получен %s", store.gotValues.Speed)
	}
}
