package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gongzi-quiz-service/internal/app"
	"gongzi-quiz-service/internal/app/clocktest"
	"gongzi-quiz-service/internal/config"
	"gongzi-quiz-service/internal/domain"
	"gongzi-quiz-service/internal/history"
)

var epoch = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

func question(id, topic, answer string) domain.QuizQuestion {
	return domain.QuizQuestion{
		ID:          id,
		Topic:       topic,
		Type:        domain.QuestionCalculation,
		Text:        "題目 " + id,
		Answer:      answer,
		Explanation: "解析 " + id,
	}
}

func choiceQuestion(id, topic string) domain.QuizQuestion {
	idx := 1
	return domain.QuizQuestion{
		ID:                 id,
		Topic:              topic,
		Type:               domain.QuestionSingleChoice,
		Text:               "選擇題 " + id,
		Options:            []string{"甲", "乙", "丙"},
		CorrectOptionIndex: &idx,
		Answer:             "乙",
		Explanation:        "解析 " + id,
	}
}

// catalogOf returns n calculation questions whose answer is their index.
func catalogOf(n int, topic string) []domain.QuizQuestion {
	qs := make([]domain.QuizQuestion, n)
	for i := range qs {
		qs[i] = question(fmt.Sprintf("%s-%d", topic, i), topic, fmt.Sprint(i))
	}
	return qs
}

type staticIdentity struct{ ident *domain.Identity }

func (s staticIdentity) Current() *domain.Identity { return s.ident }

var learner = &domain.Identity{ID: "u1", DisplayName: "小明"}

// mistakeLog records error-history items and answers immediately.
type mistakeLog struct {
	mu    sync.Mutex
	items []domain.ProblemHistoryItem
	fail  func(domain.ProblemHistoryItem) bool
}

func (m *mistakeLog) Append(_ context.Context, _ *domain.Identity, item domain.ProblemHistoryItem) <-chan domain.Result[history.Persisted] {
	m.mu.Lock()
	m.items = append(m.items, item)
	failed := m.fail != nil && m.fail(item)
	m.mu.Unlock()

	out := make(chan domain.Result[history.Persisted], 1)
	if failed {
		out <- domain.Err[history.Persisted](errors.New("remote unavailable"))
	} else {
		out <- domain.Ok(history.Persisted{LocalID: item.ID, RemoteID: "r-" + item.ID})
	}
	return out
}

func (m *mistakeLog) recorded() []domain.ProblemHistoryItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ProblemHistoryItem(nil), m.items...)
}

type board struct {
	mu      sync.Mutex
	entries []domain.LeaderboardEntry
	err     error
}

func (b *board) Submit(_ context.Context, e domain.LeaderboardEntry) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return "", b.err
	}
	e.ID = fmt.Sprintf("lb-%d", len(b.entries)+1)
	b.entries = append(b.entries, e)
	return e.ID, nil
}

func (b *board) Top(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := append([]domain.LeaderboardEntry(nil), b.entries...)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (b *board) submitted() []domain.LeaderboardEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.LeaderboardEntry(nil), b.entries...)
}

// recorder keeps every published event.
type recorder struct {
	mu     sync.Mutex
	events []app.Event
}

func (r *recorder) Publish(ev app.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) notices() []app.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []app.Notice
	for _, ev := range r.events {
		if n, ok := ev.Payload.(app.Notice); ok {
			out = append(out, n)
		}
	}
	return out
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type mapCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMapCache() *mapCache {
	return &mapCache{data: make(map[string]string)}
}

func (c *mapCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

type fixture struct {
	clock    *clocktest.Manual
	mistakes *mistakeLog
	board    *board
	events   *recorder
	cache    *mapCache
}

func newFixture() *fixture {
	return &fixture{
		clock:    clocktest.New(epoch),
		mistakes: &mistakeLog{},
		board:    &board{},
		events:   &recorder{},
		cache:    newMapCache(),
	}
}

func (f *fixture) deps(questions app.QuestionSource, rules config.QuizRules, ident *domain.Identity) app.SessionDeps {
	return app.SessionDeps{
		Questions:   questions,
		Rules:       rules,
		Clock:       f.clock,
		Identity:    staticIdentity{ident},
		Mistakes:    f.mistakes,
		Leaderboard: f.board,
		Progress:    history.NewProgressStore(f.cache),
		Events:      f.events,
	}
}
