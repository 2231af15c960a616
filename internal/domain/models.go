package domain

import "strings"

// QuestionType distinguishes how an answer is entered and checked.
type QuestionType string

const (
	QuestionCalculation  QuestionType = "calculation"
	QuestionFillInBlank  QuestionType = "fill-in-the-blank"
	QuestionSingleChoice QuestionType = "single-choice"
)

// QuizQuestion is one immutable catalog entry.
// For single-choice questions Answer holds the text of the correct option.
type QuizQuestion struct {
	ID                 string       `json:"id" yaml:"id"`
	Topic              string       `json:"topic" yaml:"topic"`
	Type               QuestionType `json:"questionType" yaml:"questionType"`
	Text               string       `json:"text" yaml:"text"`
	Answer             string       `json:"answer" yaml:"answer"`
	Options            []string     `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectOptionIndex *int         `json:"correctOptionIndex,omitempty" yaml:"correctOptionIndex,omitempty"`
	Explanation        string       `json:"explanation" yaml:"explanation"`
	Difficulty         string       `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
}

// NormalizeAnswer trims and lower-cases a free-text answer.
func NormalizeAnswer(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Accepts reports whether a free-text answer matches the canonical answer.
func (q QuizQuestion) Accepts(answer string) bool {
	return NormalizeAnswer(answer) == NormalizeAnswer(q.Answer)
}

// AcceptsChoice checks a themed-quiz answer: exact option text for single-choice,
// free-text comparison otherwise.
func (q QuizQuestion) AcceptsChoice(answer string) bool {
	if q.Type == QuestionSingleChoice {
		return answer == q.Answer
	}
	return q.Accepts(answer)
}

// SolutionText is the canonical solution recorded in the error log.
func (q QuizQuestion) SolutionText() string {
	return "正確答案：" + q.Answer + "。解析：" + q.Explanation
}

// AnsweredQuestion is created once per question on submit or timeout.
type AnsweredQuestion struct {
	Question         QuizQuestion `json:"question"`
	UserAnswer       string       `json:"userAnswer"`
	IsCorrect        bool         `json:"isCorrect"`
	ScoreAwarded     int          `json:"scoreAwarded"`
	TimeTakenSeconds float64      `json:"timeTaken"`
}

// ThemedAnswer is the per-question outcome of a themed quiz.
type ThemedAnswer struct {
	Question   QuizQuestion `json:"question"`
	UserAnswer string       `json:"userAnswerText"`
	IsCorrect  bool         `json:"isCorrect"`
}

// TopicProgress is the last themed-quiz result for one topic.
type TopicProgress struct {
	Score          int  `json:"score"`
	TotalQuestions int  `json:"totalQuestions"`
	IsPerfect      bool `json:"isPerfect"`
}

// LeaderboardEntry is an append-only score record.
type LeaderboardEntry struct {
	ID          string `json:"id,omitempty"`
	UserID      string `json:"userId,omitempty"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
	Timestamp   int64  `json:"timestamp"`
}

// Ranks reports whether e sorts before other: higher score first, earlier submission wins ties.
func (e LeaderboardEntry) Ranks(other LeaderboardEntry) bool {
	if e.Score != other.Score {
		return e.Score > other.Score
	}
	if e.Timestamp != other.Timestamp {
		return e.Timestamp < other.Timestamp
	}
	return e.ID < other.ID
}

// Identity is the signed-in user. A nil *Identity means anonymous.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

// AnonymousName is shown when a user has neither a display name nor an email.
const AnonymousName = "匿名玩家"

// PublicName picks the name shown on the leaderboard.
func (i Identity) PublicName() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	if at := strings.Index(i.Email, "@"); at > 0 {
		return i.Email[:at]
	}
	return AnonymousName
}

// Flashcard is a single review card.
type Flashcard struct {
	ID         string `json:"id" yaml:"id"`
	Term       string `json:"term" yaml:"term"`
	Definition string `json:"definition" yaml:"definition"`
	Details    string `json:"details,omitempty" yaml:"details,omitempty"`
}

// FlashcardSet groups cards under a title.
type FlashcardSet struct {
	ID          string      `json:"id" yaml:"id"`
	Title       string      `json:"title" yaml:"title"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Cards       []Flashcard `json:"cards" yaml:"cards"`
}
