package app

import (
	"context"
	"log"
	"sync"
	"time"

	"gongzi-quiz-service/internal/config"
	"gongzi-quiz-service/internal/domain"
	"gongzi-quiz-service/internal/history"
)

// Player is the explicit per-device context: who is signed in, the two quiz sessions,
// the history lists and device-local preferences. Everything watching the device
// subscribes to one broadcaster.
type Player struct {
	deviceID string
	rules    config.QuizRules
	events   *Broadcaster

	mu    sync.RWMutex
	ident *domain.Identity
	known bool

	// leases counts the connections and requests using the device.
	leaseMu sync.Mutex
	leases  int

	Timed     *TimedSession
	Themed    *ThemedSession
	Focus     *FocusSession
	Problems  *history.Store[domain.ProblemHistoryItem]
	Knowledge *history.Store[domain.KnowledgeNookHistoryItem]
	Settings  history.Settings
}

// PlayerConfig carries the collaborators of a new Player.
type PlayerConfig struct {
	DeviceID    string
	Questions   QuestionSource
	Rules       config.QuizRules
	Clock       Clock
	Cache       history.LocalCache
	Problems    history.Remote[domain.ProblemHistoryItem]
	Knowledge   history.Remote[domain.KnowledgeNookHistoryItem]
	Leaderboard Leaderboard
	Logger      *log.Logger

	// History list descriptions; zero values fall back to the defaults.
	ProblemKind   history.Kind
	KnowledgeKind history.Kind
}

// NewPlayer builds a device context. The cache must already be scoped to the device.
func NewPlayer(cfg PlayerConfig) *Player {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.ProblemKind.Name == "" {
		cfg.ProblemKind = history.ProblemKind
	}
	if cfg.KnowledgeKind.Name == "" {
		cfg.KnowledgeKind = history.KnowledgeKind
	}

	p := &Player{
		deviceID: cfg.DeviceID,
		rules:    cfg.Rules,
		events:   NewBroadcaster(),
		Settings: history.NewSettings(cfg.Cache),
	}

	p.Problems = history.NewStore[domain.ProblemHistoryItem](cfg.ProblemKind, cfg.Cache, cfg.Problems)
	p.Problems.SetLogger(cfg.Logger)
	p.Knowledge = history.NewStore[domain.KnowledgeNookHistoryItem](cfg.KnowledgeKind, cfg.Cache, cfg.Knowledge)
	p.Knowledge.SetLogger(cfg.Logger)

	deps := SessionDeps{
		Questions:   cfg.Questions,
		Rules:       cfg.Rules,
		Clock:       cfg.Clock,
		Identity:    p,
		Mistakes:    p.Problems,
		Leaderboard: cfg.Leaderboard,
		Progress:    history.NewProgressStore(cfg.Cache),
		Events:      p.events,
		Logger:      cfg.Logger,
	}
	p.Timed = NewTimedSession(deps)
	p.Themed = NewThemedSession(deps)
	p.Focus = NewFocusSession(deps, p.Settings)
	return p
}

// DeviceID identifies the device this context belongs to.
func (p *Player) DeviceID() string {
	return p.deviceID
}

// Current implements IdentityProvider.
func (p *Player) Current() *domain.Identity {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.ident == nil {
		return nil
	}
	ident := *p.ident
	return &ident
}

// SetIdentity records who is signed in on the device. A change of user abandons any
// running quiz and reloads both history lists for the new identity.
func (p *Player) SetIdentity(ctx context.Context, ident *domain.Identity) history.Loaded[domain.ProblemHistoryItem] {
	p.mu.Lock()
	changed := !sameUser(p.ident, ident)
	if ident != nil {
		copied := *ident
		ident = &copied
	}
	p.ident = ident
	p.known = true
	p.mu.Unlock()

	if changed {
		p.Timed.Reset()
		p.Themed.ChooseTopic()
	}
	loaded := p.Problems.Load(ctx, ident)
	p.Knowledge.Load(ctx, ident)
	if loaded.RemoteErr != nil {
		p.events.Publish(errorNotice("載入錯誤", "無法從雲端載入歷史記錄，將顯示本機資料。"))
	}
	return loaded
}

// AdoptIdentity applies a per-request identity without disturbing a live client. The
// first identity seen is applied as by SetIdentity. Later requests without an identity,
// or for the same user, change nothing. Another user is refused with
// ErrIdentityConflict while a client watches the device.
func (p *Player) AdoptIdentity(ctx context.Context, ident *domain.Identity) error {
	p.mu.RLock()
	known := p.known
	unchanged := known && (ident == nil || sameUser(p.ident, ident))
	p.mu.RUnlock()
	if unchanged {
		return nil
	}
	if known && p.events.Subscribers() > 0 {
		return domain.ErrIdentityConflict
	}
	p.SetIdentity(ctx, ident)
	return nil
}

// Acquire takes a lease on the device; every Acquire needs a matching Release.
func (p *Player) Acquire() {
	p.leaseMu.Lock()
	p.leases++
	p.leaseMu.Unlock()
}

// Release drops a lease. When the last one goes the device has no client left, so a
// running quick quiz is cancelled along with its countdown, a themed quiz is abandoned
// and the focus timer is paused.
func (p *Player) Release() {
	p.leaseMu.Lock()
	defer p.leaseMu.Unlock()
	if p.leases > 0 {
		p.leases--
	}
	if p.leases == 0 {
		p.Timed.Reset()
		if p.Themed.Active() {
			p.Themed.ChooseTopic()
		}
		p.Focus.Pause(context.Background())
	}
}

// Subscribe streams every event of this device. The caller must invoke cancel.
func (p *Player) Subscribe() (<-chan Event, func()) {
	return p.events.Subscribe()
}

// Notify pushes an event to the device's subscribers.
func (p *Player) Notify(ev Event) {
	p.events.Publish(ev)
}

// StartTimed starts a quick quiz with the countdown configured on this device.
func (p *Player) StartTimed(ctx context.Context) error {
	return p.Timed.Start(p.Settings.QuestionTime(ctx, p.rules.QuestionTime))
}

// SetQuestionTime changes the per-question countdown used by later quick quizzes.
func (p *Player) SetQuestionTime(ctx context.Context, d time.Duration) error {
	if d < time.Second {
		return domain.ErrInvalidQuestionTime
	}
	return p.Settings.SetQuestionTime(ctx, d)
}

// SetFocusDurations changes the focus timer phase lengths; a zero value keeps the current one.
func (p *Player) SetFocusDurations(ctx context.Context, focus, rest time.Duration) error {
	if focus != 0 {
		if err := p.Focus.SetFocusDuration(ctx, focus); err != nil {
			return err
		}
	}
	if rest != 0 {
		return p.Focus.SetBreakDuration(ctx, rest)
	}
	return nil
}

// Mistakes is the error-log view over the problem history.
func (p *Player) Mistakes() []domain.ProblemHistoryItem {
	return domain.Mistakes(p.Problems.Items())
}

// Idle reports whether nothing holds a lease, no quiz is running and no history write
// is still on its way to the remote store.
func (p *Player) Idle() bool {
	p.leaseMu.Lock()
	leased := p.leases > 0
	p.leaseMu.Unlock()
	return !leased && !p.Timed.Active() && !p.Focus.Active() && p.Problems.Pending() == 0 && p.Knowledge.Pending() == 0
}

// Close stops the quick quiz and focus timers.
func (p *Player) Close() {
	p.Timed.Reset()
	p.Focus.Pause(context.Background())
}

// Wait drains all background persistence of the device.
func (p *Player) Wait() {
	p.Timed.Wait()
	p.Themed.Wait()
	p.Problems.Wait()
	p.Knowledge.Wait()
}

func sameUser(a, b *domain.Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}
