package repository

var schema = []string{
	queryCreateTable,
	queryCreateSessionIndex,
	queryCreateSubmittedIndex,
	queryCreateSuggestionTable,
}

const (
	queryCreateTable = `
CREATE TABLE IF NOT EXISTS voice_feedback (
	id              TEXT PRIMARY KEY,
	command         TEXT NOT NULL,
	rating          INTEGER NOT NULL,
	comment         TEXT NOT NULL DEFAULT '',
	confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
	session_id      TEXT NOT NULL,
	submitted_at    BIGINT NOT NULL,
	user_agent      TEXT NOT NULL DEFAULT '',
	context         TEXT NOT NULL DEFAULT '{}',
	created_at      BIGINT NOT NULL,
	expected_action TEXT NOT NULL DEFAULT '',
	resolution      TEXT NOT NULL DEFAULT '',
	resolved_at     BIGINT NOT NULL DEFAULT 0
)`

	queryCreateSessionIndex = `
CREATE INDEX IF NOT EXISTS voice_feedback_session_idx ON voice_feedback (session_id)`

	queryCreateSubmittedIndex = `
CREATE INDEX IF NOT EXISTS voice_feedback_submitted_idx ON voice_feedback (submitted_at)`

	queryCreate = `
INSERT INTO voice_feedback (id, command, rating, comment, confidence, session_id, submitted_at, user_agent, context, created_at, expected_action)
VALUES (:id, :command, :rating, :comment, :confidence, :session_id, :submitted_at, :user_agent, :context, :created_at, :expected_action)
ON CONFLICT (id) DO NOTHING`

	querySelectColumns = `
SELECT id, command, rating, comment, confidence, session_id, submitted_at, user_agent, context, created_at,
	expected_action, resolution, resolved_at
FROM voice_feedback`

	queryBySession = querySelectColumns + `
WHERE session_id = :session_id
ORDER BY submitted_at ASC, id ASC`

	queryRange = querySelectColumns + `
WHERE submitted_at >= :from AND submitted_at < :to
ORDER BY submitted_at ASC, id ASC`

	queryGet = querySelectColumns + `
WHERE id = :id`

	queryRatingCounts = `
SELECT rating, COUNT(*) AS total
FROM voice_feedback
GROUP BY rating`

	queryComments = `
SELECT comment
FROM voice_feedback
WHERE comment <> ''`

	queryExpectedActions = `
SELECT expected_action
FROM voice_feedback
WHERE expected_action <> ''`

	queryResolve = `
UPDATE voice_feedback
SET resolution = :resolution, resolved_at = :resolved_at
WHERE id = :id`

	queryCreateSuggestionTable = `
CREATE TABLE IF NOT EXISTS voice_suggestions (
	id                TEXT PRIMARY KEY,
	phrase            TEXT NOT NULL,
	expected_action   TEXT NOT NULL,
	category          TEXT NOT NULL,
	description       TEXT NOT NULL DEFAULT '',
	priority          INTEGER NOT NULL,
	status            TEXT NOT NULL,
	votes             INTEGER NOT NULL DEFAULT 0,
	tags              TEXT NOT NULL DEFAULT '[]',
	submitted_at      BIGINT NOT NULL,
	last_voted_at     BIGINT NOT NULL DEFAULT 0,
	status_notes      TEXT NOT NULL DEFAULT '',
	status_updated_at BIGINT NOT NULL DEFAULT 0
)`

	queryCreateSuggestion = `
INSERT INTO voice_suggestions (id, phrase, expected_action, category, description, priority, status, votes, tags, submitted_at)
VALUES (:id, :phrase, :expected_action, :category, :description, :priority, :status, :votes, :tags, :submitted_at)`

	querySelectSuggestions = `
SELECT id, phrase, expected_action, category, description, priority, status, votes, tags, submitted_at,
	last_voted_at, status_notes, status_updated_at
FROM voice_suggestions`

	queryGetSuggestion = querySelectSuggestions + `
WHERE id = :id`

	queryVote = `
UPDATE voice_suggestions
SET votes = votes + :vote, last_voted_at = :now
WHERE id = :id`

	queryUpdateSuggestionStatus = `
UPDATE voice_suggestions
SET status = :status, status_notes = :notes, status_updated_at = :now
WHERE id = :id`

	querySuggestionStatusCounts = `
SELECT status, COUNT(*) AS total
FROM voice_suggestions
GROUP BY status`
)
