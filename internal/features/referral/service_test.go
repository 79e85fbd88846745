package referral

import (
	"context"
	"testing"
)

type fakeStore struct {
	targetID int64
	inserted bool
}

func (f *fakeStore) GetUserIDByUsername(context.Context, string) (int64, error) {
	return f.targetID, nil
}

func (f *fakeStore) AddRefVisit(context.Context, string, *int64, int64) (bool, error) {
	return f.inserted, nil
}

type fakeNotifier struct {
	pushed []int64
}

func (f *fakeNotifier) QueueTrackedPush(userID int64, _ string) {
	f.pushed = append(f.pushed, userID)
}

func TestRecordVisit(t *testing.T) {
	tests := []struct {
		name      string
		targetID  int64
		inserted  bool
		visitorID int64
		wantPush  bool
	}{
		{"первый визит", 7, true, 100, true},
		{"повторный визит", 7, false, 100, false},
		{"цель не зарегистрирована", 0, true, 100, false},
		{"владелец кликнул сам", 7, true, 7, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeStore{targetID: tt.targetID, inserted: tt.inserted}
			pushes := &fakeNotifier{}
			svc := NewService(store, pushes)

			if err := svc.RecordVisit(context.Background(), "@owner", tt.visitorID); err != nil {
				t.Fatalf("запись визита: %v", err)
			}
			if got := len(pushes.pushed) > 0; got != tt.wantPush {
				t.Fatalf("пуш: ожидалось %v, получено %v", tt.wantPush, got)
			}
		})
	}
}
