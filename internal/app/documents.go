package app

import (
	"livequiz-service/internal/domain"
	"livequiz-service/internal/store"
)

// Field names shared with the document store. These are the wire-level
// schema; the typed views live in internal/domain.
const (
	fieldStatus          = "status"
	fieldQuestionIndex   = "currentQuestionIndex"
	fieldQuestionStartAt = "questionStartAt"
	fieldDuration        = "durationSeconds"
	fieldResetStage      = "resetStage"

	fieldName     = "name"
	fieldScore    = "score"
	fieldJoinedAt = "joinedAt"

	fieldText    = "text"
	fieldOptions = "options"
	fieldCorrect = "correct"

	fieldPlayerID    = "playerId"
	fieldPlayerName  = "playerName"
	fieldAnswerIndex = "questionIndex"
	fieldSelected    = "selected"
	fieldIsCorrect   = "isCorrect"
	fieldCreatedAt   = "createdAt"
	fieldSessionCode = "code"
)

func sessionFromSnapshot(code string, snap store.Snapshot) domain.Session {
	session := domain.Session{
		Code:                 code,
		Status:               domain.SessionStatus(snap.String(fieldStatus)),
		CurrentQuestionIndex: snap.Int(fieldQuestionIndex),
		QuestionStartAt:      snap.Time(fieldQuestionStartAt),
		DurationSeconds:      snap.Int(fieldDuration),
		ResetStage:           domain.ResetStage(snap.String(fieldResetStage)),
	}
	if session.DurationSeconds <= 0 {
		session.DurationSeconds = domain.DefaultDurationSeconds
	}
	return session
}

func playerFromSnapshot(snap store.Snapshot) domain.Player {
	return domain.Player{
		ID:       snap.ID(),
		Name:     snap.String(fieldName),
		Score:    snap.Int(fieldScore),
		JoinedAt: snap.Time(fieldJoinedAt),
	}
}

func questionFromSnapshot(index int, snap store.Snapshot) domain.Question {
	return domain.Question{
		Index:   index,
		Text:    snap.String(fieldText),
		Options: snap.StringMap(fieldOptions),
		Correct: snap.String(fieldCorrect),
	}
}

func answerFromSnapshot(snap store.Snapshot) domain.Answer {
	return domain.Answer{
		PlayerID:      snap.String(fieldPlayerID),
		PlayerName:    snap.String(fieldPlayerName),
		QuestionIndex: snap.Int(fieldAnswerIndex),
		Selected:      snap.String(fieldSelected),
		IsCorrect:     snap.Bool(fieldIsCorrect),
		CreatedAt:     snap.Time(fieldCreatedAt),
	}
}

func answersFromSnapshots(snaps []store.Snapshot) []domain.Answer {
	answers := make([]domain.Answer, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists {
			continue
		}
		answers = append(answers, answerFromSnapshot(snap))
	}
	return answers
}

func questionFields(q domain.Question) map[string]any {
	return map[string]any{
		fieldText:    q.Text,
		fieldOptions: q.Options,
		fieldCorrect: q.Correct,
	}
}
