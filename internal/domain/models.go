package domain

import "time"

// SessionStatus is the lifecycle state of a quiz session.
type SessionStatus string

const (
	StatusLobby   SessionStatus = "lobby"
	StatusRunning SessionStatus = "running"
	StatusEnded   SessionStatus = "ended"
)

// ResetStage marks how far a bulk reset has progressed, so an interrupted
// reset can be detected and resumed.
type ResetStage string

const (
	ResetStageNone    ResetStage = ""
	ResetStageAnswers ResetStage = "answers"
	ResetStagePlayers ResetStage = "players"
)

// DefaultDurationSeconds is the answer window used when a session doc
// carries no explicit duration.
const DefaultDurationSeconds = 30

// Session is one running quiz instance, keyed by a shareable code.
type Session struct {
	Code                 string        `json:"code"`
	Status               SessionStatus `json:"status"`
	CurrentQuestionIndex int           `json:"currentQuestionIndex"`
	QuestionStartAt      time.Time     `json:"questionStartAt"`
	DurationSeconds      int           `json:"durationSeconds"`
	ResetStage           ResetStage    `json:"resetStage,omitempty"`
}

// Player is one participant in a session. Score only ever increases for the
// lifetime of the player; JoinedAt is the stable leaderboard tie-break.
type Player struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Question is immutable reference data for one question index. Options maps
// an option key (A-D) to its display text; Correct names exactly one key.
type Question struct {
	Index   int               `json:"index"`
	Text    string            `json:"text"`
	Options map[string]string `json:"options"`
	Correct string            `json:"correct"`
}

// HasOption reports whether key is an authored option for this question.
func (q Question) HasOption(key string) bool {
	_, ok := q.Options[key]
	return ok
}

// Answer records one player's submission for one question. At most one exists
// per (player, question); its document key is a pure function of the pair.
type Answer struct {
	PlayerID      string    `json:"playerId"`
	PlayerName    string    `json:"playerName"`
	QuestionIndex int       `json:"questionIndex"`
	Selected      string    `json:"selected"`
	IsCorrect     bool      `json:"isCorrect"`
	CreatedAt     time.Time `json:"createdAt"`
}

// AnswerTally is the live per-option answer distribution for one question,
// shown on the host dashboard while the window is open.
type AnswerTally struct {
	QuestionIndex int            `json:"questionIndex"`
	Counts        map[string]int `json:"counts"`
	Total         int            `json:"total"`
}

// Ranking is an ordered leaderboard snapshot: score descending, then
// earliest JoinedAt first.
type Ranking struct {
	SessionCode string    `json:"sessionCode"`
	Entries     []Player  `json:"entries"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Leader returns the top-ranked player, if any.
func (r Ranking) Leader() (Player, bool) {
	if len(r.Entries) == 0 {
		return Player{}, false
	}
	return r.Entries[0], true
}

// SubmitResult summarizes the outcome of a single answer submission.
type SubmitResult struct {
	QuestionIndex    int    `json:"questionIndex"`
	Selected         string `json:"selected"`
	Correct          bool   `json:"correct"`
	AlreadySubmitted bool   `json:"alreadySubmitted"`
}
