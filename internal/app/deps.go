package app

import (
	"context"
	"log"

	"gongzi-quiz-service/internal/config"
	"gongzi-quiz-service/internal/domain"
	"gongzi-quiz-service/internal/history"
)

// QuestionSource is the question bank as seen by the sessions.
type QuestionSource interface {
	Question(id string) (domain.QuizQuestion, bool)
	RandomQuestion(exclude map[string]struct{}) (domain.QuizQuestion, bool)
	ThemedQuestions(topic string, count int) []domain.QuizQuestion
	AvailableTopics() []string
}

// IdentityProvider supplies the signed-in user, or nil when anonymous.
type IdentityProvider interface {
	Current() *domain.Identity
}

// ProblemLog receives error-history items; satisfied by history.Store[domain.ProblemHistoryItem].
type ProblemLog interface {
	Append(ctx context.Context, ident *domain.Identity, item domain.ProblemHistoryItem) <-chan domain.Result[history.Persisted]
}

// ProgressRecorder persists themed quiz results per topic.
type ProgressRecorder interface {
	Load(ctx context.Context) map[string]domain.TopicProgress
	Save(ctx context.Context, topic string, progress domain.TopicProgress) (map[string]domain.TopicProgress, error)
}

// Leaderboard stores final timed-quiz scores.
type Leaderboard interface {
	Submit(ctx context.Context, entry domain.LeaderboardEntry) (string, error)
	// Top returns up to limit entries, highest score first, earlier submission first on ties.
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
}

// CatalogRepository loads the question catalog, possibly through a cache.
type CatalogRepository interface {
	GetCatalog(ctx context.Context) ([]domain.QuizQuestion, error)
}

// SessionDeps wires a quiz session to its collaborators. Mistakes, Leaderboard,
// Progress and Events may be nil.
type SessionDeps struct {
	Questions   QuestionSource
	Rules       config.QuizRules
	Clock       Clock
	Identity    IdentityProvider
	Mistakes    ProblemLog
	Leaderboard Leaderboard
	Progress    ProgressRecorder
	Events      Publisher
	Logger      *log.Logger
}

func (d SessionDeps) withDefaults() SessionDeps {
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	if d.Events == nil {
		d.Events = nopPublisher{}
	}
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	return d
}

func (d SessionDeps) currentIdentity() *domain.Identity {
	if d.Identity == nil {
		return nil
	}
	return d.Identity.Current()
}

// QuestionView is a question as shown while it is being answered: no answer or explanation.
type QuestionView struct {
	ID      string              `json:"id"`
	Topic   string              `json:"topic"`
	Type    domain.QuestionType `json:"questionType"`
	Text    string              `json:"text"`
	Options []string            `json:"options,omitempty"`
}

func viewOf(q domain.QuizQuestion) QuestionView {
	return QuestionView{ID: q.ID, Topic: q.Topic, Type: q.Type, Text: q.Text, Options: q.Options}
}
