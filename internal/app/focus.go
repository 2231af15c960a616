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

// FocusMode is the phase the focus timer is in.
type FocusMode string

const (
	FocusPhase FocusMode = "focus"
	BreakPhase FocusMode = "break"
)

// FocusSnapshot is a consistent copy of the focus timer.
type FocusSnapshot struct {
	Mode              FocusMode `json:"mode"`
	Running           bool      `json:"running"`
	TimeLeft          int       `json:"timeLeft"`
	FocusSeconds      int       `json:"focusSeconds"`
	BreakSeconds      int       `json:"breakSeconds"`
	TotalFocusSeconds int       `json:"totalFocusSeconds"`
	ProblemsSolved    int       `json:"problemsSolved"`
}

// FocusSession is the study timer alternating focus and break phases. Phase lengths
// and the accumulated focus time live in the device settings; the number of problems
// solved only lasts as long as the session.
type FocusSession struct {
	clock    Clock
	settings history.Settings
	events   Publisher
	logger   *log.Logger
	defFocus time.Duration
	defBreak time.Duration

	mu        sync.Mutex
	loaded    bool
	focusLen  int
	breakLen  int
	gen       int
	mode      FocusMode
	running   bool
	timeLeft  int
	total     int
	solved    int
	countdown *Countdown
}

// NewFocusSession builds a paused timer. Phase lengths missing from the rules use the defaults.
func NewFocusSession(deps SessionDeps, settings history.Settings) *FocusSession {
	deps = deps.withDefaults()
	defaults := config.DefaultRules()
	if deps.Rules.FocusTime <= 0 {
		deps.Rules.FocusTime = defaults.FocusTime
	}
	if deps.Rules.BreakTime <= 0 {
		deps.Rules.BreakTime = defaults.BreakTime
	}
	return &FocusSession{
		clock:    deps.Clock,
		settings: settings,
		events:   deps.Events,
		logger:   deps.Logger,
		defFocus: deps.Rules.FocusTime,
		defBreak: deps.Rules.BreakTime,
		mode:     FocusPhase,
	}
}

// Start runs the timer from where it stands. A phase already at zero restarts at its full length.
func (s *FocusSession) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	if s.running {
		return
	}
	if s.timeLeft <= 0 {
		s.timeLeft = s.phaseSeconds(s.mode)
	}
	s.gen++
	gen := s.gen
	s.running = true
	s.countdown = StartCountdown(s.clock, s.timeLeft, func(left int) {
		s.onTick(gen, left)
	})
	s.publishLocked()
}

// Pause stops the timer and keeps the time left.
func (s *FocusSession) Pause(ctx context.Context) {
	s.mu.Lock()
	s.loadLocked(ctx)
	wasRunning := s.running
	s.stopLocked()
	total := s.total
	if wasRunning {
		s.publishLocked()
	}
	s.mu.Unlock()

	if wasRunning {
		s.saveTotal(ctx, total)
	}
}

// Reset stops the timer and refills the phase. With switchToFocus it also returns to the focus phase.
func (s *FocusSession) Reset(ctx context.Context, switchToFocus bool) {
	s.mu.Lock()
	s.loadLocked(ctx)
	s.stopLocked()
	if switchToFocus {
		s.mode = FocusPhase
	}
	s.timeLeft = s.phaseSeconds(s.mode)
	total := s.total
	s.publishLocked()
	s.mu.Unlock()

	s.saveTotal(ctx, total)
}

// SetFocusDuration stores a new focus phase length. A paused focus phase picks it up at once.
func (s *FocusSession) SetFocusDuration(ctx context.Context, d time.Duration) error {
	return s.setPhase(ctx, FocusPhase, d)
}

// SetBreakDuration stores a new break phase length. A paused break phase picks it up at once.
func (s *FocusSession) SetBreakDuration(ctx context.Context, d time.Duration) error {
	return s.setPhase(ctx, BreakPhase, d)
}

// ProblemSolved counts a problem solved during this session.
func (s *FocusSession) ProblemSolved(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	s.solved++
	s.publishLocked()
}

// Snapshot returns the current state.
func (s *FocusSession) Snapshot(ctx context.Context) FocusSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	return s.snapshotLocked()
}

// Active reports whether the timer is running.
func (s *FocusSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *FocusSession) setPhase(ctx context.Context, mode FocusMode, d time.Duration) error {
	if d < time.Minute {
		return domain.ErrInvalidFocusDuration
	}
	d = d.Truncate(time.Second)

	var err error
	if mode == FocusPhase {
		err = s.settings.SetFocusDuration(ctx, d)
	} else {
		err = s.settings.SetBreakDuration(ctx, d)
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(ctx)
	secs := int(d / time.Second)
	if mode == FocusPhase {
		s.focusLen = secs
	} else {
		s.breakLen = secs
	}
	if !s.running && s.mode == mode {
		s.timeLeft = secs
	}
	s.publishLocked()
	return nil
}

func (s *FocusSession) onTick(gen, left int) {
	s.mu.Lock()
	if gen != s.gen || !s.running {
		s.mu.Unlock()
		return
	}
	ctx := context.Background()
	if s.mode == FocusPhase {
		s.total++
	}
	s.timeLeft = left
	if left > 0 {
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	ended := s.mode
	s.stopLocked()
	if ended == FocusPhase {
		s.mode = BreakPhase
	} else {
		s.mode = FocusPhase
	}
	s.timeLeft = s.phaseSeconds(s.mode)
	total := s.total
	s.publishLocked()
	if ended == FocusPhase {
		s.events.Publish(infoNotice("專注時間結束", "休息一下吧！"))
	} else {
		s.events.Publish(infoNotice("休息結束", "繼續專注吧！"))
	}
	s.mu.Unlock()

	s.saveTotal(ctx, total)
}

func (s *FocusSession) loadLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.loaded = true
	s.total = s.settings.TotalFocusSeconds(ctx)
	s.focusLen = int(s.settings.FocusDuration(ctx, s.defFocus) / time.Second)
	s.breakLen = int(s.settings.BreakDuration(ctx, s.defBreak) / time.Second)
	s.timeLeft = s.phaseSeconds(s.mode)
}

func (s *FocusSession) stopLocked() {
	s.gen++
	s.running = false
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
}

func (s *FocusSession) phaseSeconds(mode FocusMode) int {
	if mode == BreakPhase {
		return s.breakLen
	}
	return s.focusLen
}

func (s *FocusSession) saveTotal(ctx context.Context, total int) {
	if err := s.settings.SetTotalFocusSeconds(ctx, total); err != nil {
		s.logger.Printf("focus timer: save total focus time failed: %v", err)
	}
}

func (s *FocusSession) publishLocked() {
	s.events.Publish(Event{Type: EventFocusState, Payload: s.snapshotLocked()})
}

func (s *FocusSession) snapshotLocked() FocusSnapshot {
	return FocusSnapshot{
		Mode:              s.mode,
		Running:           s.running,
		TimeLeft:          s.timeLeft,
		FocusSeconds:      s.focusLen,
		BreakSeconds:      s.breakLen,
		TotalFocusSeconds: s.total,
		ProblemsSolved:    s.solved,
	}
}
