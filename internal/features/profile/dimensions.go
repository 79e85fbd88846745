package profile

import "getxposed.ru/telegram-bot/internal/storage"

// Dimension описывает одно из двенадцати бинарных измерений стиля
// общения. Default — значение, которое подставляется при невалидном
// входе и побеждает при равенстве голосов.
type Dimension struct {
	Field     string
	Left      string
	Right     string
	Default   string
	CardID    string
	CardTitle string
	LeftText  string
	RightText string
}

// Dimensions — полный набор измерений в порядке карточек мини-аппа.
var Dimensions = []Dimension{
	{"tone", "easy", "serious", "serious", "style", "Как лучше начать", "🙂 с шутки", "🧠 по делу"},
	{"speed", "fast", "slow", "slow", "tempo", "Темп", "🔥 сразу", "🐢 не спеша"},
	{"contact_format", "text", "live", "text", "channel", "Канал", "💬 в переписке", "🎤 вживую"},
	{"initiative", "self", "wait", "wait", "initiative", "Первый шаг", "👉 ему/ей ок, если напишут", "👀 лучше, если сначала присмотрятся"},
	{"start_context", "topic", "direct", "topic", "start_context", "Контекст старта", "🌱 с лёгкого", "🎯 сразу по сути"},
	{"attention_reaction", "likes", "careful", "careful", "first_reaction", "Реакция в начале", "😊 быстро включается", "😶 сначала смотрит"},
	{"caution", "false", "true", "false", "pressure", "Давление", "🫶 можно активнее", "⚠️ лучше аккуратно"},
	{"frequency", "often", "rare", "rare", "frequency", "Частота", "📬 можно часто", "🕰 лучше редко"},
	{"comm_format", "informal", "reserved", "reserved", "tone", "Тон общения", "😄 свободно", "🤝 сдержанно"},
	{"emotion_tone", "warm", "neutral", "neutral", "vibe", "Вайб", "☀️ легко", "🌙 спокойно"},
	{"feedback_style", "direct", "soft", "soft", "dialog", "Диалог", "💬 любит обсуждать", "👂 больше слушает"},
	{"uncertainty", "low", "high", "high", "certainty", "Неопределённость", "🧭 нормально", "🚧 лучше конкретно"},
}

var dimensionsByField = func() map[string]Dimension {
	m := make(map[string]Dimension, len(Dimensions))
	for _, d := range Dimensions {
		m[d.Field] = d
	}
	return m
}()

// NormalizeValue подставляет дефолт измерения вместо невалидного
// значения. Невалидный вход никогда не отклоняется.
func NormalizeValue(field, value string) string {
	d, ok := dimensionsByField[field]
	if !ok {
		return value
	}
	if value == d.Left || value == d.Right {
		return value
	}
	return d.Default
}

// NormalizeValues приводит все двенадцать полей голоса к допустимым
// значениям.
func NormalizeValues(v storage.VoteValues) storage.VoteValues {
	return storage.VoteValues{
		Tone:              NormalizeValue("tone", v.Tone),
		Speed:             NormalizeValue("speed", v.Speed),
		ContactFormat:     NormalizeValue("contact_format", v.ContactFormat),
		Caution:           NormalizeValue("caution", v.Caution),
		Initiative:        NormalizeValue("initiative", v.Initiative),
		StartContext:      NormalizeValue("start_context", v.StartContext),
		AttentionReaction: NormalizeValue("attention_reaction", v.AttentionReaction),
		Frequency:         NormalizeValue("frequency", v.Frequency),
		CommFormat:        NormalizeValue("comm_format", v.CommFormat),
		EmotionTone:       NormalizeValue("emotion_tone", v.EmotionTone),
		FeedbackStyle:     NormalizeValue("feedback_style", v.FeedbackStyle),
		Uncertainty:       NormalizeValue("uncertainty", v.Uncertainty),
	}
}

// pickValue выбирает вариант с большинством голосов. При точном
// равенстве (в том числе при нуле голосов) побеждает дефолт измерения.
func pickValue(counts storage.DimensionCounts, field string) string {
	d := dimensionsByField[field]
	other := d.Left
	if d.Default == d.Left {
		other = d.Right
	}
	if counts.Get(field, d.Default) >= counts.Get(field, other) {
		return d.Default
	}
	return other
}
