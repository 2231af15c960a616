package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"gongzi-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

type questionRow struct {
	bun.BaseModel `bun:"table:questions"`

	ID       string          `bun:"id,pk"`
	Topic    string          `bun:"topic"`
	Position int             `bun:"position"`
	Data     json.RawMessage `bun:"data,type:jsonb"`
}

// SeedCatalog upserts the questions, keeping their order. It returns how many rows it wrote.
func SeedCatalog(ctx context.Context, db *bun.DB, questions []domain.QuizQuestion) (int, error) {
	if len(questions) == 0 {
		return 0, nil
	}
	rows := make([]questionRow, 0, len(questions))
	for i, q := range questions {
		raw, err := json.Marshal(q)
		if err != nil {
			return 0, fmt.Errorf("encode question %s: %w", q.ID, err)
		}
		rows = append(rows, questionRow{ID: q.ID, Topic: q.Topic, Position: i, Data: raw})
	}
	_, err := db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("topic = EXCLUDED.topic").
		Set("position = EXCLUDED.position").
		Set("data = EXCLUDED.data").
		Set("updated_at = now()").
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("seed questions: %w", err)
	}
	return len(rows), nil
}
