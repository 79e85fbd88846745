package profile

import "getxposed.ru/telegram-bot/internal/storage"

const (
	// minAnswers — меньше трёх ответов результат не показывается.
	minAnswers = 3
	// uncertainThreshold — доля большинства, ниже которой мнения
	// считаются разделившимися.
	uncertainThreshold = 0.6
	// cautionRatio — доля ответов «лучше аккуратно», начиная с которой
	// показывается предупреждение.
	cautionRatio = 0.3
	// viewedFactor — оценка числа просмотревших поверх ответивших.
	viewedFactor = 1.4
)

func isUncertain(left, right int) bool {
	total := left + right
	return total > 0 && float64(max(left, right))/float64(total) < uncertainThreshold
}

func axisPick(left, right int, leftKey, rightKey string) string {
	if left >= right {
		return leftKey
	}
	return rightKey
}

// BuildPayload — чистая агрегация: из счётчиков голосов в готовый
// профиль. Никаких обращений к хранилищу.
func BuildPayload(target string, total, visitors int, counts storage.DimensionCounts) *Payload {
	combined := total + visitors
	viewed := int(float64(combined) * viewedFactor)
	silent := viewed - total
	if silent < 0 {
		silent = 0
	}

	p := &Payload{
		Target:      target,
		Viewed:      viewed,
		Answers:     total,
		Visitors:    visitors,
		Silent:      silent,
		Enough:      total >= minAnswers,
		ResultRows:  []ResultRow{},
		AnswerCards: []AnswerCard{},
	}

	contactTalk := counts.Get("tone", "easy") +
		counts.Get("contact_format", "text") +
		counts.Get("attention_reaction", "likes")
	contactReserved := counts.Get("tone", "serious") +
		counts.Get("contact_format", "live") +
		counts.Get("attention_reaction", "careful")
	structureFlexible := counts.Get("start_context", "topic")
	structureSpecific := counts.Get("start_context", "direct")

	p.AdaptiveQuestions = AdaptiveQuestions{
		AskToneQuestion:        isUncertain(contactTalk, contactReserved),
		AskUncertaintyQuestion: isUncertain(structureFlexible, structureSpecific),
	}

	if total < minAnswers {
		return p
	}

	p.AnswerCards = buildAnswerCards(counts)
	p.Recommendation = &Recommendation{
		Tone:   pickValue(counts, "tone"),
		Speed:  pickValue(counts, "speed"),
		Format: pickValue(counts, "contact_format"),
	}
	p.CautionBlock = float64(counts.Get("caution", "true"))/float64(total) >= cautionRatio
	p.UncertainBlock = isUncertain(counts.Get("tone", "easy"), counts.Get("tone", "serious")) ||
		isUncertain(counts.Get("speed", "fast"), counts.Get("speed", "slow")) ||
		isUncertain(counts.Get("contact_format", "text"), counts.Get("contact_format", "live"))

	tempoFast := counts.Get("speed", "fast") + counts.Get("frequency", "often")
	tempoSlow := counts.Get("speed", "slow") + counts.Get("frequency", "rare")
	initiativeActive := counts.Get("initiative", "self") + counts.Get("caution", "false")
	initiativeWait := counts.Get("initiative", "wait") + counts.Get("caution", "true")

	tempoValue := "Лучше не спеша и без частых сообщений"
	if axisPick(tempoFast, tempoSlow, "fast", "slow") == "fast" {
		tempoValue = "Можно писать сразу и чаще"
	}
	initiativeValue := "Лучше аккуратно и без давления"
	if axisPick(initiativeActive, initiativeWait, "active", "wait") == "active" {
		initiativeValue = "Нормально, если инициативу проявляют"
	}
	contactValue := "Лучше спокойно, по делу и уважительно"
	if axisPick(contactTalk, contactReserved, "talk", "reserved") == "talk" {
		contactValue = "Легче начать с шутки и переписки"
	}

	p.ResultRows = []ResultRow{
		{Title: "Темп", Value: tempoValue},
		{Title: "Инициатива", Value: initiativeValue},
		{Title: "Контакт", Value: contactValue},
	}

	if structureSpecific > structureFlexible {
		p.ExtraHint = "Лучше конкретнее"
	} else if isUncertain(contactTalk, contactReserved) {
		p.ExtraHint = "Человеку может понадобиться время на ответ"
	}
	return p
}

// buildAnswerCards строит карточки по всем измерениям в фиксированном
// порядке. Вызывается только после порога достаточности ответов.
func buildAnswerCards(counts storage.DimensionCounts) []AnswerCard {
	cards := make([]AnswerCard, 0, len(Dimensions))
	for _, d := range Dimensions {
		value := d.RightText
		if pickValue(counts, d.Field) == d.Left {
			value = d.LeftText
		}
		cards = append(cards, AnswerCard{ID: d.CardID, Title: d.CardTitle, Value: value})
	}
	return cards
}
