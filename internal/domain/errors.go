package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no session exists for a code.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPlayerNotFound is returned when a player acts before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrQuestionNotFound indicates the question doc is absent at submission time.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrInvalidOption indicates a selection outside the authored option keys.
	ErrInvalidOption = errors.New("invalid option")
	// ErrAnswerLocked is returned when a submission arrives outside the answer window.
	ErrAnswerLocked = errors.New("answer window is locked")
	// ErrStaleQuestion is returned when the submitted index is not the session's current one.
	ErrStaleQuestion = errors.New("submitted question is not the current question")
	// ErrInvalidTransition indicates a lifecycle transition not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid session transition")
	// ErrNoMoreQuestions is returned when an advance would leave the authored range.
	ErrNoMoreQuestions = errors.New("no more questions")
	// ErrResetInProgress blocks lifecycle transitions while a bulk reset is running.
	ErrResetInProgress = errors.New("reset in progress")
)
