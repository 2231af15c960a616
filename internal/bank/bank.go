// Package bank holds the static question catalog and the selection rules used by both quiz modes.
package bank

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"gongzi-quiz-service/internal/domain"
)

// Bank is an immutable question catalog. Selection methods are safe for concurrent use.
type Bank struct {
	questions []domain.QuizQuestion
	byID      map[string]int

	mu  sync.Mutex
	rnd *rand.Rand
}

// New builds a bank over a copy of questions.
func New(questions []domain.QuizQuestion) *Bank {
	return NewWithRand(questions, rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewWithRand allows deterministic selection in tests.
func NewWithRand(questions []domain.QuizQuestion, rnd *rand.Rand) *Bank {
	qs := make([]domain.QuizQuestion, len(questions))
	copy(qs, questions)
	byID := make(map[string]int, len(qs))
	for i, q := range qs {
		byID[q.ID] = i
	}
	return &Bank{questions: qs, byID: byID, rnd: rnd}
}

// Question looks up a question by id.
func (b *Bank) Question(id string) (domain.QuizQuestion, bool) {
	i, ok := b.byID[id]
	if !ok {
		return domain.QuizQuestion{}, false
	}
	return b.questions[i], true
}

// RandomQuestion picks uniformly among questions not in exclude. Once every question
// is excluded it picks from the full catalog, so long sessions repeat instead of stalling.
// It returns false only when the catalog is empty.
func (b *Bank) RandomQuestion(exclude map[string]struct{}) (domain.QuizQuestion, bool) {
	if len(b.questions) == 0 {
		return domain.QuizQuestion{}, false
	}
	available := make([]int, 0, len(b.questions))
	for i, q := range b.questions {
		if _, skip := exclude[q.ID]; !skip {
			available = append(available, i)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if len(available) == 0 {
		return b.questions[b.rnd.Intn(len(b.questions))], true
	}
	return b.questions[available[b.rnd.Intn(len(available))]], true
}

// ThemedQuestions returns up to count questions of topic in uniformly shuffled order.
// Callers must handle a shortfall.
func (b *Bank) ThemedQuestions(topic string, count int) []domain.QuizQuestion {
	var picked []domain.QuizQuestion
	for _, q := range b.questions {
		if q.Topic == topic {
			picked = append(picked, q)
		}
	}

	b.mu.Lock()
	b.rnd.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	b.mu.Unlock()

	if count >= 0 && len(picked) > count {
		picked = picked[:count]
	}
	return picked
}

// AvailableTopics lists distinct topics, sorted for stable display.
func (b *Bank) AvailableTopics() []string {
	seen := make(map[string]struct{})
	topics := make([]string, 0)
	for _, q := range b.questions {
		if _, ok := seen[q.Topic]; ok {
			continue
		}
		seen[q.Topic] = struct{}{}
		topics = append(topics, q.Topic)
	}
	sort.Strings(topics)
	return topics
}
