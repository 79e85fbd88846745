package profile

// Recommendation — итоговый совет «как начинать общение».
type Recommendation struct {
	Tone   string `json:"tone"`
	Speed  string `json:"speed"`
	Format string `json:"format"`
}

// ResultRow — строка сводки по составной оси (темп, инициатива, контакт).
type ResultRow struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// AnswerCard — карточка одного измерения для мини-аппа.
type AnswerCard struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// AdaptiveQuestions — подсказки фронту, какие уточняющие вопросы
// стоит задать при следующем опросе.
type AdaptiveQuestions struct {
	AskToneQuestion        bool `json:"ask_tone_question"`
	AskUncertaintyQuestion bool `json:"ask_uncertainty_question"`
}

// PublicUser — публичная карточка пользователя. Username отдаётся без @.
type PublicUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	PhotoURL  string `json:"photo_url"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Payload — агрегированный профиль цели, то, что видит мини-апп.
type Payload struct {
	Target            string            `json:"target"`
	Viewed            int               `json:"viewed"`
	Answers           int               `json:"answers"`
	Visitors          int               `json:"visitors"`
	Silent            int               `json:"silent"`
	Enough            bool              `json:"enough"`
	Recommendation    *Recommendation   `json:"recommendation"`
	CautionBlock      bool              `json:"caution_block"`
	UncertainBlock    bool              `json:"uncertain_block"`
	ResultRows        []ResultRow       `json:"result_rows"`
	ExtraHint         string            `json:"extra_hint"`
	AdaptiveQuestions AdaptiveQuestions `json:"adaptive_questions"`
	AnswerCards       []AnswerCard      `json:"answer_cards"`

	// Поля ниже заполняют хендлеры, а не агрегация.
	Link        string      `json:"link,omitempty"`
	InviteLink  string      `json:"invite_link,omitempty"`
	IsAppUser   bool        `json:"is_app_user"`
	ProfileNote string      `json:"profile_note"`
	User        *PublicUser `json:"user,omitempty"`
}
