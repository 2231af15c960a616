package domain

// Sentinel attempts recorded when the learner gave no answer.
const (
	NoAnswer       = "(未作答)"
	TimedOutAnswer = "(超時未作答)"
)

// ProblemHistoryItem is an entry of the error log / solved-problem history.
type ProblemHistoryItem struct {
	ID                 string `json:"id"`
	ProblemImageURI    string `json:"problemImageUri,omitempty"`
	ProblemStatement   string `json:"problemStatement,omitempty"`
	Solution           string `json:"solution"`
	Timestamp          int64  `json:"timestamp"`
	KnowledgePoints    string `json:"knowledgePoints,omitempty"`
	UserID             string `json:"userId,omitempty"`
	UserAttempt        string `json:"userAttempt,omitempty"`
	IsIncorrectAttempt bool   `json:"isIncorrectAttempt,omitempty"`
}

func (p ProblemHistoryItem) HistoryID() string       { return p.ID }
func (p ProblemHistoryItem) HistoryTimestamp() int64 { return p.Timestamp }

func (p ProblemHistoryItem) WithHistoryID(id string) ProblemHistoryItem {
	p.ID = id
	return p
}

// KnowledgeNookHistoryItem stores AI-generated knowledge points.
type KnowledgeNookHistoryItem struct {
	ID              string `json:"id"`
	KnowledgePoints string `json:"knowledgePoints"`
	Timestamp       int64  `json:"timestamp"`
	UserID          string `json:"userId,omitempty"`
}

func (k KnowledgeNookHistoryItem) HistoryID() string       { return k.ID }
func (k KnowledgeNookHistoryItem) HistoryTimestamp() int64 { return k.Timestamp }

func (k KnowledgeNookHistoryItem) WithHistoryID(id string) KnowledgeNookHistoryItem {
	k.ID = id
	return k
}

// Mistakes keeps only incorrect attempts, preserving order.
func Mistakes(items []ProblemHistoryItem) []ProblemHistoryItem {
	out := make([]ProblemHistoryItem, 0, len(items))
	for _, it := range items {
		if it.IsIncorrectAttempt {
			out = append(out, it)
		}
	}
	return out
}

// Result is the outcome of an asynchronous operation whose failure is an expected path.
type Result[T any] struct {
	Value T
	Err   error
}

func Ok[T any](v T) Result[T] { return Result[T]{Value: v} }

func Err[T any](err error) Result[T] { return Result[T]{Err: err} }
