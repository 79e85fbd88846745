package profile

import (
	"strings"
	"testing"

	"getxposed.ru/telegram-bot/internal/storage"
)

func counts(pairs map[string]map[string]int) storage.DimensionCounts {
	c := make(storage.DimensionCounts)
	for field, values := range pairs {
		c[field] = values
	}
	return c
}

func TestBuildPayloadViewedAndSilent(t *testing.T) {
	p := BuildPayload("@target", 13, 5, counts(nil))
	if p.Viewed != 25 {
		t.Fatalf("viewed: ожидалось 25, получено %d", p.Viewed)
	}
	if p.Silent != 12 {
		t.Fatalf("silent: ожидалось 12, получено %d", p.Silent)
	}
	if p.Answers != 13 || p.Visitors != 5 {
		t.Fatalf("answers/visitors: %d/%d", p.Answers, p.Visitors)
	}
}

func TestBuildPayloadBelowThreshold(t *testing.T) {
	p := BuildPayload("@target", 2, 0, counts(map[string]map[string]int{
		"tone": {"easy": 2},
	}))
	if p.Enough {
		t.Fatal("двух ответов недостаточно")
	}
	if p.Recommendation != nil {
		t.Fatal("до порога рекомендации быть не должно")
	}
	if len(p.ResultRows) != 0 {
		t.Fatal("до порога строк сводки быть не должно")
	}
	if len(p.AnswerCards) != 0 {
		t.Fatalf("до порога карточек быть не должно, получено %d", len(p.AnswerCards))
	}
}

func TestBuildPayloadMajorityPick(t *testing.T) {
	p := BuildPayload("@target", 3, 0, counts(map[string]map[string]int{
		"tone":           {"easy": 2, "serious": 1},
		"speed":          {"fast": 3},
		"contact_format": {"live": 2, "text": 1},
	}))
	if !p.Enough {
		t.Fatal("трёх ответов достаточно")
	}
	if p.Recommendation == nil {
		t.Fatal("ожидалась рекомендация")
	}
	if p.Recommendation.Tone != "easy" {
		t.Fatalf("tone: ожидался easy, получен %s", p.Recommendation.Tone)
	}
	if p.Recommendation.Speed != "fast" {
		t.Fatalf("speed: ожидался fast, получен %s", p.Recommendation.Speed)
	}
	if p.Recommendation.Format != "live" {
		t.Fatalf("format: ожидался live, получен %s", p.Recommendation.Format)
	}
	if len(p.AnswerCards) != len(Dimensions) {
		t.Fatalf("ожидалось %d карточек, получено %d", len(Dimensions), len(p.AnswerCards))
	}
}

func TestBuildPayloadTieGoesToDefault(t *testing.T) {
	// При точном равенстве побеждает дефолт измерения.
	p := BuildPayload("@target", 4, 0, counts(map[string]map[string]int{
		"tone":           {"easy": 2, "serious": 2},
		"speed":          {"fast": 2, "slow": 2},
		"contact_format": {"text": 2, "live": 2},
	}))
	if p.Recommendation.Tone != "serious" {
		t.Fatalf("tone при равенстве: ожидался serious, получен %s", p.Recommendation.Tone)
	}
	if p.Recommendation.Speed != "slow" {
		t.Fatalf("speed при равенстве: ожидался slow, получен %s", p.Recommendation.Speed)
	}
	if p.Recommendation.Format != "text" {
		t.Fatalf("format при равенстве: ожидался text, получен %s", p.Recommendation.Format)
	}
}

func TestBuildPayloadUncertainBlock(t *testing.T) {
	tests := []struct {
		name      string
		easy      int
		serious   int
		uncertain bool
	}{
		{"явное большинство", 2, 1, false},
		{"ровно на пороге", 3, 2, false},
		{"мнения разделились", 2, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := tt.easy + tt.serious
			p := BuildPayload("@target", total, 0, counts(map[string]map[string]int{
				"tone":           {"easy": tt.easy, "serious": tt.serious},
				"speed":          {"slow": total},
				"contact_format": {"text": total},
			}))
			if p.UncertainBlock != tt.uncertain {
				t.Fatalf("uncertain_block: ожидалось %v", tt.uncertain)
			}
		})
	}
}

func TestBuildPayloadCautionBlock(t *testing.T) {
	p := BuildPayload("@target", 3, 0, counts(map[string]map[string]int{
		"caution": {"true": 1, "false": 2},
	}))
	if !p.CautionBlock {
		t.Fatal("1/3 осторожных ответов должны включать предупреждение")
	}

	p = BuildPayload("@target", 4, 0, counts(map[string]map[string]int{
		"caution": {"true": 1, "false": 3},
	}))
	if p.CautionBlock {
		t.Fatal("1/4 осторожных ответов ниже порога")
	}
}

func TestBuildPayloadExtraHint(t *testing.T) {
	p := BuildPayload("@target", 3, 0, counts(map[string]map[string]int{
		"start_context": {"direct": 2, "topic": 1},
	}))
	if p.ExtraHint != "Лучше конкретнее" {
		t.Fatalf("неожиданная подсказка: %q", p.ExtraHint)
	}
}

func TestNormalizeValue(t *testing.T) {
	tests := []struct {
		field string
		in    string
		want  string
	}{
		{"tone", "easy", "easy"},
		{"tone", "serious", "serious"},
		{"tone", "weird", "serious"},
		{"tone", "", "serious"},
		{"speed", "", "slow"},
		{"caution", "yes", "false"},
		{"uncertainty", "", "high"},
	}
	for _, tt := range tests {
		if got := NormalizeValue(tt.field, tt.in); got != tt.want {
			t.Errorf("NormalizeValue(%s, %q) = %q, ожидалось %q", tt.field, tt.in, got, tt.want)
		}
	}
}

func TestInsightText(t *testing.T) {
	text := insightText(3, counts(map[string]map[string]int{
		"tone":           {"easy": 3},
		"speed":          {"fast": 3},
		"contact_format": {"text": 3},
		"caution":        {"true": 2, "false": 1},
	}))
	for _, fragment := range []string{"С юмора", "Сразу", "Через переписку", "⚠️ Иногда лучше не давить"} {
		if !strings.Contains(text, fragment) {
			t.Errorf("в сводке нет фрагмента %q:\n%s", fragment, text)
		}
	}
	if strings.Contains(text, "мнения разделились") {
		t.Error("при единогласных ответах блока о разделившихся мнениях быть не должно")
	}
}
