package history

import "gongzi-quiz-service/internal/domain"

// Item is implemented by every history record type.
type Item[T any] interface {
	HistoryID() string
	HistoryTimestamp() int64
	WithHistoryID(id string) T
}

// Kind names one history collection and how it is cached.
type Kind struct {
	Name     string // remote sub-collection name, e.g. problemHistory
	CacheKey string // local cache key
	LocalCap int    // most-recent items kept in the local cache
	IDPrefix string // prefix for temporary ids
}

// Collection returns the remote collection path for a user.
func (k Kind) Collection(userID string) string {
	return "users/" + userID + "/" + k.Name
}

var (
	ProblemKind = Kind{
		Name:     "problemHistory",
		CacheKey: "mathBuddyProblemHistory",
		LocalCap: 10,
		IDPrefix: "temp-",
	}
	KnowledgeKind = Kind{
		Name:     "knowledgeNookHistory",
		CacheKey: "gongziKnowledgeNookHistory",
		LocalCap: 15,
		IDPrefix: "temp-knook-",
	}
)

// Compile-time checks that the domain records satisfy Item.
var (
	_ Item[domain.ProblemHistoryItem]       = domain.ProblemHistoryItem{}
	_ Item[domain.KnowledgeNookHistoryItem] = domain.KnowledgeNookHistoryItem{}
)
