package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gongzi-quiz-service/internal/domain"
	"golang.org/x/sync/errgroup"
)

// TimedState is a state of the quick quiz.
type TimedState string

const (
	TimedIdle     TimedState = "idle"
	TimedPlaying  TimedState = "playing"
	TimedAnswered TimedState = "answered"
	TimedFinished TimedState = "finished"
)

// TimedSnapshot is a consistent copy of a timed session.
type TimedSnapshot struct {
	State          TimedState                `json:"state"`
	Question       *QuestionView             `json:"question,omitempty"`
	QuestionNumber int                       `json:"questionNumber"`
	TotalQuestions int                       `json:"totalQuestions"`
	Answered       []domain.AnsweredQuestion `json:"answered"`
	Score          int                       `json:"score"`
	TimeLeft       int                       `json:"timeLeft"`
}

// TimedSession drives the quick quiz: one question at a time under a per-question
// countdown, scored with a speed bonus. All state changes happen under mu; timer
// callbacks carry the generation they were armed in and are dropped once it moves on.
type TimedSession struct {
	deps SessionDeps

	mu            sync.Mutex
	state         TimedState
	gen           int
	current       *domain.QuizQuestion
	answered      []domain.AnsweredQuestion
	answeredIDs   map[string]struct{}
	score         int
	questionTime  time.Duration
	questionStart time.Time
	timeLeft      int
	countdown     *Countdown
	advance       Timer

	pending errgroup.Group
}

func NewTimedSession(deps SessionDeps) *TimedSession {
	return &TimedSession{
		deps:        deps.withDefaults(),
		state:       TimedIdle,
		answeredIDs: make(map[string]struct{}),
	}
}

// Start begins a new round from idle or finished. questionTime <= 0 uses the configured default.
func (s *TimedSession) Start(questionTime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != TimedIdle && s.state != TimedFinished {
		return fmt.Errorf("start timed quiz while %s: %w", s.state, domain.ErrInvalidState)
	}
	q, ok := s.deps.Questions.RandomQuestion(nil)
	if !ok {
		return domain.ErrNoQuestions
	}
	if questionTime <= 0 {
		questionTime = s.deps.Rules.QuestionTime
	}

	s.clearLocked()
	s.questionTime = questionTime
	s.beginQuestionLocked(q)
	return nil
}

// Submit answers the current question. It is only valid while playing.
func (s *TimedSession) Submit(answer string) (domain.AnsweredQuestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != TimedPlaying {
		return domain.AnsweredQuestion{}, fmt.Errorf("submit while %s: %w", s.state, domain.ErrInvalidState)
	}
	return s.submitLocked(answer, false), nil
}

// Reset returns to idle from any state, discarding the round and cancelling timers.
func (s *TimedSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
	s.state = TimedIdle
	s.deps.Events.Publish(Event{Type: EventTimedState, Payload: s.snapshotLocked()})
}

// Snapshot returns the current state.
func (s *TimedSession) Snapshot() TimedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Active reports whether a round is in progress.
func (s *TimedSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == TimedPlaying || s.state == TimedAnswered
}

// Wait blocks until fire-and-forget persistence started by this session has finished.
func (s *TimedSession) Wait() {
	_ = s.pending.Wait()
}

func (s *TimedSession) clearLocked() {
	s.gen++
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}
	if s.advance != nil {
		s.advance.Stop()
		s.advance = nil
	}
	s.current = nil
	s.answered = nil
	s.answeredIDs = make(map[string]struct{})
	s.score = 0
	s.timeLeft = 0
}

func (s *TimedSession) beginQuestionLocked(q domain.QuizQuestion) {
	s.gen++
	gen := s.gen
	s.current = &q
	s.state = TimedPlaying
	s.questionStart = s.deps.Clock.Now()
	s.timeLeft = int(s.questionTime / time.Second)
	s.countdown = StartCountdown(s.deps.Clock, s.timeLeft, func(left int) {
		s.onTick(gen, left)
	})
	s.deps.Events.Publish(Event{Type: EventTimedState, Payload: s.snapshotLocked()})
}

func (s *TimedSession) onTick(gen, left int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state != TimedPlaying {
		return
	}
	s.timeLeft = left
	if left > 0 {
		s.deps.Events.Publish(Event{Type: EventTimedState, Payload: s.snapshotLocked()})
		return
	}
	s.submitLocked("", true)
}

func (s *TimedSession) submitLocked(answer string, timeout bool) domain.AnsweredQuestion {
	s.state = TimedAnswered
	if s.countdown != nil {
		s.countdown.Stop()
		s.countdown = nil
	}

	q := *s.current
	var taken float64
	if timeout {
		taken = s.questionTime.Seconds()
	} else {
		taken = s.deps.Clock.Now().Sub(s.questionStart).Seconds()
		if taken < 0 {
			taken = 0
		}
	}
	correct := !timeout && q.Accepts(answer)
	awarded := Award(s.deps.Rules, correct, timeout, taken)

	record := domain.AnsweredQuestion{
		Question:         q,
		UserAnswer:       answer,
		IsCorrect:        correct,
		ScoreAwarded:     awarded,
		TimeTakenSeconds: taken,
	}
	s.answered = append(s.answered, record)
	s.answeredIDs[q.ID] = struct{}{}
	s.score += awarded
	s.deps.Events.Publish(Event{Type: EventTimedAnswered, Payload: record})

	if !correct {
		s.recordMistakeLocked(q, answer, timeout)
	}

	gen := s.gen
	s.advance = s.deps.Clock.AfterFunc(s.deps.Rules.FeedbackDelay, func() {
		s.onAdvance(gen)
	})
	return record
}

func (s *TimedSession) onAdvance(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state != TimedAnswered {
		return
	}
	s.advance = nil
	if len(s.answered) < s.deps.Rules.TotalQuestions {
		if q, ok := s.deps.Questions.RandomQuestion(s.answeredIDs); ok {
			s.beginQuestionLocked(q)
			return
		}
	}

	s.state = TimedFinished
	s.current = nil
	s.deps.Events.Publish(Event{Type: EventTimedFinished, Payload: s.snapshotLocked()})
	s.submitScoreLocked()
}

func (s *TimedSession) recordMistakeLocked(q domain.QuizQuestion, answer string, timeout bool) {
	ident := s.deps.currentIdentity()
	if ident == nil || s.deps.Mistakes == nil {
		return
	}
	attempt := strings.TrimSpace(answer)
	if attempt == "" {
		attempt = domain.NoAnswer
		if timeout {
			attempt = domain.TimedOutAnswer
		}
	}
	item := domain.ProblemHistoryItem{
		ProblemStatement:   q.Text,
		Solution:           q.SolutionText(),
		UserAttempt:        attempt,
		Timestamp:          s.deps.Clock.Now().UnixMilli(),
		IsIncorrectAttempt: true,
		UserID:             ident.ID,
	}
	done := s.deps.Mistakes.Append(context.Background(), ident, item)
	events, logger := s.deps.Events, s.deps.Logger
	s.pending.Go(func() error {
		if res := <-done; res.Err != nil {
			logger.Printf("timed quiz: record mistake for %s failed: %v", q.ID, res.Err)
			events.Publish(errorNotice("記錄錯題失敗", "無法將此錯題記錄到雲端錯題本。"))
			return nil
		}
		events.Publish(infoNotice("錯題已記錄", "這題的錯誤已記錄到您的錯題本。"))
		return nil
	})
}

func (s *TimedSession) submitScoreLocked() {
	ident := s.deps.currentIdentity()
	if ident == nil || s.deps.Leaderboard == nil || s.score <= 0 {
		return
	}
	entry := domain.LeaderboardEntry{
		UserID:      ident.ID,
		DisplayName: ident.PublicName(),
		Score:       s.score,
		Timestamp:   s.deps.Clock.Now().UnixMilli(),
	}
	board, events, logger := s.deps.Leaderboard, s.deps.Events, s.deps.Logger
	s.pending.Go(func() error {
		if _, err := board.Submit(context.Background(), entry); err != nil {
			logger.Printf("timed quiz: leaderboard submit for %s failed: %v", entry.UserID, err)
			events.Publish(errorNotice("提交失敗", "記錄分數到排行榜時發生錯誤。"))
			return nil
		}
		events.Publish(infoNotice("分數已提交", "您的分數已成功記錄到排行榜！"))
		return nil
	})
}

func (s *TimedSession) snapshotLocked() TimedSnapshot {
	snap := TimedSnapshot{
		State:          s.state,
		TotalQuestions: s.deps.Rules.TotalQuestions,
		Answered:       append([]domain.AnsweredQuestion(nil), s.answered...),
		Score:          s.score,
		TimeLeft:       s.timeLeft,
		QuestionNumber: len(s.answered),
	}
	if s.state == TimedPlaying && s.current != nil {
		view := viewOf(*s.current)
		snap.Question = &view
		snap.QuestionNumber = len(s.answered) + 1
	}
	return snap
}
