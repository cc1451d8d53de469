package app

import (
	"context"
	"fmt"
	"sort"
	"time"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/store"

	"github.com/google/uuid"
)

// QuestionSource provides the authored question set for a session code.
// Authoring itself is out of scope; the source is Postgres, a cache in front
// of it, or a static map in tests.
type QuestionSource interface {
	Questions(ctx context.Context, sessionCode string) ([]domain.Question, error)
}

// QuizService wires the core components over an injected document store.
// It is the single entry point the transport layer talks to.
type QuizService struct {
	store     store.Store
	questions QuestionSource
	machine   *SessionMachine
	scoring   *ScoringCoordinator
	reset     *BulkResetCoordinator
	newID     func() string
}

func NewQuizService(st store.Store, questions QuestionSource) *QuizService {
	machine := NewSessionMachine(st)
	return &QuizService{
		store:     st,
		questions: questions,
		machine:   machine,
		scoring:   NewScoringCoordinator(st),
		reset:     NewBulkResetCoordinator(st, machine),
		newID:     func() string { return uuid.NewString() },
	}
}

// EnsureSession creates the session document in the lobby state and seeds
// its question docs from the question source. Existing documents are left
// untouched, so calling this on every boot is safe.
func (s *QuizService) EnsureSession(ctx context.Context, code string, durationSeconds int) error {
	questions, err := s.questions.Questions(ctx, code)
	if err != nil {
		return fmt.Errorf("load questions for %s: %w", code, err)
	}
	if durationSeconds <= 0 {
		durationSeconds = domain.DefaultDurationSeconds
	}

	if _, err := s.store.Create(ctx, store.SessionPath(code), map[string]any{
		fieldStatus:          string(domain.StatusLobby),
		fieldQuestionIndex:   0,
		fieldQuestionStartAt: store.ServerTimestamp,
		fieldDuration:        durationSeconds,
	}); err != nil {
		return fmt.Errorf("create session %s: %w", code, err)
	}

	for _, q := range questions {
		if _, err := s.store.Create(ctx, store.QuestionPath(code, q.Index), questionFields(q)); err != nil {
			return fmt.Errorf("seed question %d: %w", q.Index, err)
		}
	}
	return nil
}

// Join registers a participant and returns the created player. JoinedAt is
// server-stamped and serves as the leaderboard tie-break.
func (s *QuizService) Join(ctx context.Context, code, name string) (domain.Player, error) {
	if name == "" {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if _, err := s.machine.Load(ctx, code); err != nil {
		return domain.Player{}, err
	}

	playerID := s.newID()
	if err := s.store.Set(ctx, store.PlayerPath(code, playerID), map[string]any{
		fieldName:     name,
		fieldScore:    0,
		fieldJoinedAt: store.ServerTimestamp,
	}, false); err != nil {
		return domain.Player{}, fmt.Errorf("join session %s: %w", code, err)
	}

	snap, err := s.store.Get(ctx, store.PlayerPath(code, playerID))
	if err != nil {
		return domain.Player{}, fmt.Errorf("read joined player: %w", err)
	}
	return playerFromSnapshot(snap), nil
}

// Session reads the current session state.
func (s *QuizService) Session(ctx context.Context, code string) (domain.Session, error) {
	return s.machine.Load(ctx, code)
}

// Question reads the question doc for an index, without its correct answer
// stripped; callers serving players must not forward the Correct field.
func (s *QuizService) Question(ctx context.Context, code string, index int) (domain.Question, error) {
	snap, err := s.store.Get(ctx, store.QuestionPath(code, index))
	if err != nil {
		return domain.Question{}, fmt.Errorf("read question %d: %w", index, err)
	}
	if !snap.Exists {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return questionFromSnapshot(index, snap), nil
}

// Submit records and credits one answer; see ScoringCoordinator.
func (s *QuizService) Submit(ctx context.Context, code, playerID string, questionIndex int, selected string) (domain.SubmitResult, error) {
	return s.scoring.Submit(ctx, code, playerID, questionIndex, selected)
}

// Start begins the quiz (host only).
func (s *QuizService) Start(ctx context.Context, code string) error {
	return s.machine.Start(ctx, code)
}

// Advance moves to the next question (host only), bounded by the authored
// question count.
func (s *QuizService) Advance(ctx context.Context, code string) error {
	questions, err := s.questions.Questions(ctx, code)
	if err != nil {
		return fmt.Errorf("load questions for %s: %w", code, err)
	}
	return s.machine.Advance(ctx, code, len(questions))
}

// End finishes the quiz (host only).
func (s *QuizService) End(ctx context.Context, code string) error {
	return s.machine.End(ctx, code)
}

// Reset wipes players and answers and reinitializes the session (host only).
func (s *QuizService) Reset(ctx context.Context, code string) error {
	return s.reset.Reset(ctx, code)
}

// ResumeReset completes an interrupted reset, if one is recorded.
func (s *QuizService) ResumeReset(ctx context.Context, code string) error {
	return s.reset.Resume(ctx, code)
}

// WatchSession streams decoded session states: current state immediately,
// then every change. The caller must invoke cancel to stop delivery.
func (s *QuizService) WatchSession(ctx context.Context, code string) (<-chan domain.Session, store.CancelFunc, error) {
	snaps, cancel, err := s.store.Subscribe(ctx, store.SessionPath(code))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan domain.Session, 8)
	go func() {
		defer close(out)
		for snap := range snaps {
			if !snap.Exists {
				continue
			}
			select {
			case out <- sessionFromSnapshot(code, snap):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

// WatchPlayers streams the full player set on every member change.
func (s *QuizService) WatchPlayers(ctx context.Context, code string) (<-chan []domain.Player, store.CancelFunc, error) {
	snaps, cancel, err := s.store.SubscribeCollection(ctx, store.PlayersCollection(code))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan []domain.Player, 8)
	go func() {
		defer close(out)
		for batch := range snaps {
			select {
			case out <- PlayersFromSnapshots(batch):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

// WatchAnswers streams the full answer set on every submission. This feeds
// the host dashboard; the correct/incorrect flags it carries never go to
// players.
func (s *QuizService) WatchAnswers(ctx context.Context, code string) (<-chan []domain.Answer, store.CancelFunc, error) {
	snaps, cancel, err := s.store.SubscribeCollection(ctx, store.AnswersCollection(code))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan []domain.Answer, 8)
	go func() {
		defer close(out)
		for batch := range snaps {
			select {
			case out <- answersFromSnapshots(batch):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

// Answers enumerates a player's recorded answers, ordered by question index.
func (s *QuizService) Answers(ctx context.Context, code, playerID string) ([]domain.Answer, error) {
	snaps, err := s.store.ListAll(ctx, store.AnswersCollection(code))
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	var answers []domain.Answer
	for _, a := range answersFromSnapshots(snaps) {
		if a.PlayerID == playerID {
			answers = append(answers, a)
		}
	}
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].QuestionIndex < answers[j].QuestionIndex
	})
	return answers, nil
}

// TallyAnswers folds an answer set into the per-option distribution for one
// question index.
func TallyAnswers(answers []domain.Answer, questionIndex int) domain.AnswerTally {
	tally := domain.AnswerTally{QuestionIndex: questionIndex, Counts: make(map[string]int)}
	for _, a := range answers {
		if a.QuestionIndex != questionIndex {
			continue
		}
		tally.Counts[a.Selected]++
		tally.Total++
	}
	return tally
}

// NewQuizServiceWithIDs is test-only for deterministic player ids.
func NewQuizServiceWithIDs(st store.Store, questions QuestionSource, newID func() string) *QuizService {
	s := NewQuizService(st, questions)
	s.newID = newID
	return s
}

// WithScoringClock is test-only for deterministic lock checks.
func (s *QuizService) WithScoringClock(now func() time.Time) *QuizService {
	s.scoring = NewScoringCoordinatorWithClock(s.store, now)
	return s
}
