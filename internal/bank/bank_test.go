package bank

import (
	"math/rand"
	"testing"

	"gongzi-quiz-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleQuestions() []domain.QuizQuestion {
	return []domain.QuizQuestion{
		{ID: "a1", Topic: "algebra", Type: domain.QuestionCalculation, Text: "1+1", Answer: "2"},
		{ID: "a2", Topic: "algebra", Type: domain.QuestionCalculation, Text: "2+2", Answer: "4"},
		{ID: "a3", Topic: "algebra", Type: domain.QuestionFillInBlank, Text: "|-3|", Answer: "3"},
		{ID: "g1", Topic: "geometry", Type: domain.QuestionCalculation, Text: "square perimeter", Answer: "24"},
	}
}

func TestRandomQuestionSkipsExcluded(t *testing.T) {
	b := NewWithRand(sampleQuestions(), rand.New(rand.NewSource(1)))
	exclude := map[string]struct{}{"a1": {}, "a2": {}, "a3": {}}

	for i := 0; i < 20; i++ {
		q, ok := b.RandomQuestion(exclude)
		require.True(t, ok)
		assert.Equal(t, "g1", q.ID)
	}
}

func TestRandomQuestionRepeatsWhenExhausted(t *testing.T) {
	b := NewWithRand(sampleQuestions(), rand.New(rand.NewSource(2)))
	exclude := map[string]struct{}{"a1": {}, "a2": {}, "a3": {}, "g1": {}}

	q, ok := b.RandomQuestion(exclude)
	require.True(t, ok)
	_, known := b.Question(q.ID)
	assert.True(t, known)
}

func TestRandomQuestionEmptyCatalog(t *testing.T) {
	b := New(nil)
	_, ok := b.RandomQuestion(nil)
	assert.False(t, ok)
}

func TestThemedQuestionsFiltersAndTruncates(t *testing.T) {
	b := NewWithRand(sampleQuestions(), rand.New(rand.NewSource(3)))

	qs := b.ThemedQuestions("algebra", 2)
	require.Len(t, qs, 2)
	for _, q := range qs {
		assert.Equal(t, "algebra", q.Topic)
	}
	assert.NotEqual(t, qs[0].ID, qs[1].ID)

	assert.Len(t, b.ThemedQuestions("geometry", 5), 1)
	assert.Empty(t, b.ThemedQuestions("calculus", 5))
}

func TestAvailableTopicsSorted(t *testing.T) {
	b := New(sampleQuestions())
	assert.Equal(t, []string{"algebra", "geometry"}, b.AvailableTopics())
}

func TestDefaultCatalogIsValid(t *testing.T) {
	qs := DefaultCatalog()
	require.NotEmpty(t, qs)

	b := New(qs)
	assert.Contains(t, b.AvailableTopics(), "數與式")
	q, ok := b.Question("q11")
	require.True(t, ok)
	assert.Equal(t, domain.QuestionSingleChoice, q.Type)
	assert.Equal(t, "7", q.Answer)

	assert.NotEmpty(t, DefaultFlashcards())
}

func TestParseCatalogRejectsBadChoice(t *testing.T) {
	raw := []byte(`
questions:
  - id: x
    topic: t
    questionType: single-choice
    text: pick
    options: ["a", "b"]
    answer: c
`)
	_, err := ParseCatalog(raw)
	assert.Error(t, err)
}
