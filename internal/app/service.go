package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"gongzi-quiz-service/internal/bank"
	"gongzi-quiz-service/internal/config"
	"gongzi-quiz-service/internal/domain"
	"gongzi-quiz-service/internal/history"
	"github.com/google/uuid"
)

// DefaultLeaderboardSize is the page size when callers ask for none.
const DefaultLeaderboardSize = 10

// Kinds of history exposed to clients.
const (
	HistoryProblems  = "problems"
	HistoryKnowledge = "knowledge"
)

// PlayerRepository abstracts where device contexts live (in-memory, Redis-marked, etc).
type PlayerRepository interface {
	// Acquire returns the device context, building it on first use, with a lease taken
	// under the same lock that DeleteIfIdle holds.
	Acquire(deviceID string, build func() *Player) *Player
	Get(deviceID string) (*Player, bool)
	// DeleteIfIdle drops the player when Idle reports true and returns it, or nil.
	DeleteIfIdle(deviceID string) *Player
	DeviceIDs() []string
}

// Backends are the shared stores every player is wired to.
type Backends struct {
	Catalog     CatalogRepository
	Players     PlayerRepository
	Cache       history.LocalCache
	Documents   history.DocumentStore // nil keeps history on the device only
	Leaderboard Leaderboard
	Flashcards  []domain.FlashcardSet
	Clock       Clock
	Logger      *log.Logger
	Rules       config.QuizRules
	// Local cache capacities; zero keeps the defaults.
	ProblemCap   int
	KnowledgeCap int
}

// PlayService contains the use cases behind the transports.
type PlayService struct {
	b         Backends
	problems  history.Remote[domain.ProblemHistoryItem]
	knowledge history.Remote[domain.KnowledgeNookHistoryItem]
	questions *liveBank
}

func NewPlayService(b Backends) *PlayService {
	if b.Logger == nil {
		b.Logger = log.Default()
	}
	if b.Clock == nil {
		b.Clock = SystemClock()
	}
	if b.Rules == (config.QuizRules{}) {
		b.Rules = config.DefaultRules()
	}
	s := &PlayService{b: b, questions: &liveBank{}}
	if b.Documents != nil {
		s.problems = history.NewDocumentRemote[domain.ProblemHistoryItem](b.Documents)
		s.knowledge = history.NewDocumentRemote[domain.KnowledgeNookHistoryItem](b.Documents)
	}
	return s
}

// Rules returns the quiz constants in effect.
func (s *PlayService) Rules() config.QuizRules {
	return s.b.Rules
}

// Join returns the device context for a live client, creating it on first use, and
// applies the client's identity. Users cannot play until the catalog loads. Every
// successful Join must be paired with Leave.
func (s *PlayService) Join(ctx context.Context, deviceID string, ident *domain.Identity) (*Player, error) {
	p, err := s.acquire(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	p.SetIdentity(ctx, ident)
	return p, nil
}

// Attach is Join for a single request: the identity is adopted only when it does not
// disturb a client playing on the device. Every successful Attach must be paired with Leave.
func (s *PlayService) Attach(ctx context.Context, deviceID string, ident *domain.Identity) (*Player, error) {
	p, err := s.acquire(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if err := p.AdoptIdentity(ctx, ident); err != nil {
		s.Leave(p)
		return nil, err
	}
	return p, nil
}

func (s *PlayService) acquire(ctx context.Context, deviceID string) (*Player, error) {
	questions, err := s.b.Catalog.GetCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if len(questions) == 0 {
		return nil, domain.ErrNoQuestions
	}
	s.questions.swap(questions)

	return s.b.Players.Acquire(deviceID, func() *Player {
		return NewPlayer(PlayerConfig{
			DeviceID:      deviceID,
			Questions:     s.questions,
			Rules:         s.b.Rules,
			Clock:         s.b.Clock,
			Cache:         history.Namespaced(s.b.Cache, "device:"+deviceID),
			Problems:      s.problems,
			Knowledge:     s.knowledge,
			Leaderboard:   s.b.Leaderboard,
			ProblemKind:   withCap(history.ProblemKind, s.b.ProblemCap),
			KnowledgeKind: withCap(history.KnowledgeKind, s.b.KnowledgeCap),
			Logger:        s.b.Logger,
		})
	}), nil
}

// Player looks up a device that has joined.
func (s *PlayService) Player(deviceID string) (*Player, error) {
	p, ok := s.b.Players.Get(deviceID)
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return p, nil
}

// Leave returns the lease taken by Join or Attach. The last lease cancels any running
// quiz; the device context is dropped once its pending history writes have settled.
func (s *PlayService) Leave(p *Player) {
	p.Release()
	s.evict(p.DeviceID())
}

// EvictIdle drops every device context that is no longer used and reports how many went.
func (s *PlayService) EvictIdle() int {
	n := 0
	for _, id := range s.b.Players.DeviceIDs() {
		if s.evict(id) {
			n++
		}
	}
	return n
}

// SweepIdle runs EvictIdle every interval until ctx is done.
func (s *PlayService) SweepIdle(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				s.b.Logger.Printf("play service: evicted %d idle devices", n)
			}
		}
	}
}

func (s *PlayService) evict(deviceID string) bool {
	p := s.b.Players.DeleteIfIdle(deviceID)
	if p == nil {
		return false
	}
	p.Close()
	return true
}

// Topics lists the themed quiz topics of the current catalog.
func (s *PlayService) Topics(ctx context.Context) ([]string, error) {
	questions, err := s.b.Catalog.GetCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return s.questions.swap(questions).AvailableTopics(), nil
}

// Flashcards returns the review card sets.
func (s *PlayService) Flashcards() []domain.FlashcardSet {
	return s.b.Flashcards
}

// Leaderboard returns the best scores; limit <= 0 means the default page.
func (s *PlayService) Leaderboard(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardSize
	}
	return s.b.Leaderboard.Top(ctx, limit)
}

// HistoryPage is what a client sees of one history list.
type HistoryPage struct {
	Kind   string         `json:"kind"`
	Source history.Source `json:"source"`
	Items  any            `json:"items"`
	// Warning is set when the remote store failed and local data is shown.
	Warning string `json:"warning,omitempty"`
}

// History reloads a history list of the device.
func (s *PlayService) History(ctx context.Context, p *Player, kind string) (HistoryPage, error) {
	ident := p.Current()
	switch kind {
	case HistoryProblems:
		return pageOf(kind, p.Problems.Load(ctx, ident)), nil
	case HistoryKnowledge:
		return pageOf(kind, p.Knowledge.Load(ctx, ident)), nil
	}
	return HistoryPage{}, fmt.Errorf("%q: %w", kind, domain.ErrUnknownHistoryKind)
}

// AppendHistory adds a JSON-encoded record to a history list and returns its local id.
// The record is visible at once; the remote save happens in the background and its
// outcome is pushed to the device.
func (s *PlayService) AppendHistory(ctx context.Context, p *Player, kind string, raw []byte) (string, error) {
	ident := p.Current()
	now := s.b.Clock.Now().UnixMilli()
	switch kind {
	case HistoryProblems:
		var item domain.ProblemHistoryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return "", fmt.Errorf("decode problem history item: %w", err)
		}
		if item.Timestamp == 0 {
			item.Timestamp = now
		}
		if ident != nil {
			item.UserID = ident.ID
		}
		if item.ID == "" {
			item.ID = p.Problems.Kind().IDPrefix + uuid.NewString()
		}
		s.watch(p, kind, p.Problems.Append(ctx, ident, item))
		if !item.IsIncorrectAttempt {
			p.Focus.ProblemSolved(ctx)
		}
		return item.ID, nil
	case HistoryKnowledge:
		var item domain.KnowledgeNookHistoryItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return "", fmt.Errorf("decode knowledge history item: %w", err)
		}
		if item.Timestamp == 0 {
			item.Timestamp = now
		}
		if ident != nil {
			item.UserID = ident.ID
		}
		if item.ID == "" {
			item.ID = p.Knowledge.Kind().IDPrefix + uuid.NewString()
		}
		s.watch(p, kind, p.Knowledge.Append(ctx, ident, item))
		return item.ID, nil
	}
	return "", fmt.Errorf("%q: %w", kind, domain.ErrUnknownHistoryKind)
}

// RemoveHistory deletes a record locally at once and remotely best-effort.
func (s *PlayService) RemoveHistory(ctx context.Context, p *Player, kind, id string) error {
	ident := p.Current()
	var done <-chan domain.Result[bool]
	switch kind {
	case HistoryProblems:
		done = p.Problems.Remove(ctx, ident, id)
	case HistoryKnowledge:
		done = p.Knowledge.Remove(ctx, ident, id)
	default:
		return fmt.Errorf("%q: %w", kind, domain.ErrUnknownHistoryKind)
	}
	go func() {
		if res := <-done; res.Err != nil {
			p.Notify(errorNotice("刪除失敗", "無法從雲端刪除此記錄。"))
		}
	}()
	return nil
}

// QuestionTime is the countdown the device's next quick quiz will use.
func (s *PlayService) QuestionTime(ctx context.Context, p *Player) time.Duration {
	return p.Settings.QuestionTime(ctx, s.b.Rules.QuestionTime)
}

// watch reports the remote outcome of an append once it settles.
func (s *PlayService) watch(p *Player, kind string, done <-chan domain.Result[history.Persisted]) {
	go func() { s.report(p, kind, <-done) }()
}

func (s *PlayService) report(p *Player, kind string, res domain.Result[history.Persisted]) {
	if res.Err != nil {
		s.b.Logger.Printf("play service: save %s history for %s failed: %v", kind, p.DeviceID(), res.Err)
		p.Notify(errorNotice("儲存失敗", "記錄已保存在本機，但無法同步到雲端。"))
		return
	}
	if res.Value.RemoteID != "" {
		p.Notify(Event{Type: EventHistorySaved, Payload: HistorySaved{Kind: kind, LocalID: res.Value.LocalID, RemoteID: res.Value.RemoteID}})
	}
}

// HistorySaved tells clients a temporary id was replaced by the remote one.
type HistorySaved struct {
	Kind     string `json:"kind"`
	LocalID  string `json:"localId"`
	RemoteID string `json:"remoteId"`
}

func pageOf[T any](kind string, loaded history.Loaded[T]) HistoryPage {
	page := HistoryPage{Kind: kind, Source: loaded.Source, Items: loaded.Items}
	if loaded.Items == nil {
		page.Items = []T{}
	}
	if loaded.RemoteErr != nil {
		page.Warning = "無法從雲端載入，顯示本機資料。"
	}
	return page
}

func withCap(k history.Kind, limit int) history.Kind {
	if limit > 0 {
		k.LocalCap = limit
	}
	return k
}

// liveBank is the question source shared by every player. It follows catalog reloads
// so long-lived players never quiz on a stale snapshot.
type liveBank struct {
	current atomic.Pointer[builtBank]
}

// builtBank remembers which catalog slice a bank was built from.
type builtBank struct {
	bank  *bank.Bank
	first *domain.QuizQuestion
	size  int
}

func (l *liveBank) swap(questions []domain.QuizQuestion) *bank.Bank {
	var first *domain.QuizQuestion
	if len(questions) > 0 {
		first = &questions[0]
	}
	if cur := l.current.Load(); cur != nil && cur.first == first && cur.size == len(questions) {
		return cur.bank
	}
	built := &builtBank{bank: bank.New(questions), first: first, size: len(questions)}
	l.current.Store(built)
	return built.bank
}

func (l *liveBank) load() *bank.Bank {
	if cur := l.current.Load(); cur != nil {
		return cur.bank
	}
	return bank.New(nil)
}

func (l *liveBank) Question(id string) (domain.QuizQuestion, bool) {
	return l.load().Question(id)
}

func (l *liveBank) RandomQuestion(exclude map[string]struct{}) (domain.QuizQuestion, bool) {
	return l.load().RandomQuestion(exclude)
}

func (l *liveBank) ThemedQuestions(topic string, count int) []domain.QuizQuestion {
	return l.load().ThemedQuestions(topic, count)
}

func (l *liveBank) AvailableTopics() []string {
	return l.load().AvailableTopics()
}
