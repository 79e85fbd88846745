package postgres

// Миграции выполняются по порядку внутри транзакций.
// Каждая применяется ровно один раз (учёт в schema_migrations).
var migrations = []struct {
	version int
	sql     string
}{
	{1, migrationUsers},
	{2, migrationVotes},
	{3, migrationRefVisits},
	{4, migrationSeenHints},
	{5, migrationProfilePrefs},
	{6, migrationPushEvents},
	{7, migrationBackfillTargetIDs},
}

const migrationUsers = `
CREATE TABLE IF NOT EXISTS users (
    user_id BIGINT PRIMARY KEY,
    username TEXT UNIQUE,
    first_name TEXT DEFAULT '',
    last_name TEXT DEFAULT '',
    photo_url TEXT DEFAULT '',
    app_user BOOLEAN DEFAULT FALSE,
    updated_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
`

const migrationVotes = `
CREATE TABLE IF NOT EXISTS votes (
    id SERIAL PRIMARY KEY,
    target TEXT NOT NULL,
    target_user_id BIGINT,
    voter_id BIGINT,
    tone TEXT NOT NULL,
    speed TEXT NOT NULL,
    contact_format TEXT NOT NULL,
    caution TEXT NOT NULL,
    initiative TEXT NOT NULL,
    start_context TEXT NOT NULL,
    attention_reaction TEXT NOT NULL,
    frequency TEXT NOT NULL,
    comm_format TEXT NOT NULL,
    emotion_tone TEXT NOT NULL,
    feedback_style TEXT NOT NULL,
    uncertainty TEXT NOT NULL,
    label TEXT NOT NULL DEFAULT 'feedback',
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_votes_target ON votes(target);
CREATE INDEX IF NOT EXISTS idx_votes_target_user ON votes(target_user_id);
-- Один голос на пару (цель, голосующий). Анонимные голоса (voter_id IS NULL)
-- под ограничение не попадают. Пока цель не зарегистрирована, ключом служит
-- username; после регистрации — её user_id.
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_unique
    ON votes(target, voter_id)
    WHERE voter_id IS NOT NULL AND target_user_id IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_votes_unique_user
    ON votes(target_user_id, voter_id)
    WHERE voter_id IS NOT NULL AND target_user_id IS NOT NULL;
`

const migrationRefVisits = `
CREATE TABLE IF NOT EXISTS ref_visits (
    id SERIAL PRIMARY KEY,
    target TEXT NOT NULL,
    target_user_id BIGINT,
    visitor_id BIGINT NOT NULL,
    created_at TIMESTAMP DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_ref_unique
    ON ref_visits(target, visitor_id)
    WHERE target_user_id IS NULL;
CREATE UNIQUE INDEX IF NOT EXISTS idx_ref_unique_user
    ON ref_visits(target_user_id, visitor_id)
    WHERE target_user_id IS NOT NULL;
`

const migrationSeenHints = `
CREATE TABLE IF NOT EXISTS seen_hints (
    target TEXT NOT NULL,
    watcher_id BIGINT NOT NULL,
    created_at TIMESTAMP DEFAULT NOW(),
    PRIMARY KEY (target, watcher_id)
);
`

const migrationProfilePrefs = `
CREATE TABLE IF NOT EXISTS profile_prefs (
    user_id BIGINT PRIMARY KEY,
    note TEXT NOT NULL DEFAULT ''
);
`

const migrationPushEvents = `
CREATE TABLE IF NOT EXISTS push_events (
    id SERIAL PRIMARY KEY,
    user_id BIGINT NOT NULL,
    event_type TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_push_events_user_day ON push_events(user_id, created_at);
`

// Привязка старых строк, записанных до того, как цель зарегистрировалась.
const migrationBackfillTargetIDs = `
UPDATE votes v SET target_user_id = u.user_id
FROM users u
WHERE v.target_user_id IS NULL
  AND LOWER(v.target) = u.username
  AND (v.voter_id IS NULL OR NOT EXISTS (
        SELECT 1 FROM votes v2
        WHERE v2.target_user_id = u.user_id AND v2.voter_id = v.voter_id));
UPDATE ref_visits r SET target_user_id = u.user_id
FROM users u
WHERE r.target_user_id IS NULL
  AND LOWER(r.target) = u.username
  AND NOT EXISTS (
        SELECT 1 FROM ref_visits r2
        WHERE r2.target_user_id = u.user_id AND r2.visitor_id = r.visitor_id);
`
