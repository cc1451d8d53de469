package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"livequiz-service/internal/domain"

	"github.com/jackc/pgx/v4/pgxpool"
)

// QuestionLoader loads a session's question set from a JSONB column.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, sessionCode string) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_sets WHERE session_code=$1`, sessionCode).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return questions, nil
}
