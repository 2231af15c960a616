package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"gongzi-quiz-service/internal/domain"
	"gongzi-quiz-service/internal/history"
	"golang.org/x/sync/errgroup"
)

// ThemedStep is a stage of the themed quiz.
type ThemedStep string

const (
	ThemedTopicSelection ThemedStep = "topic-selection"
	ThemedInProgress     ThemedStep = "in-progress"
	ThemedResults        ThemedStep = "results"
)

// ThemedResult is the graded outcome of a themed quiz.
type ThemedResult struct {
	Topic     string                `json:"topic"`
	Score     int                   `json:"score"`
	Total     int                   `json:"totalQuestions"`
	IsPerfect bool                  `json:"isPerfect"`
	Answers   []domain.ThemedAnswer `json:"answers"`
}

// ThemedSnapshot is a consistent copy of a themed session.
type ThemedSnapshot struct {
	Step         ThemedStep        `json:"step"`
	Topics       []string          `json:"topics"`
	Topic        string            `json:"topic,omitempty"`
	Questions    []QuestionView    `json:"questions,omitempty"`
	CurrentIndex int               `json:"currentIndex"`
	Answers      map[string]string `json:"answers,omitempty"`
	Result       *ThemedResult     `json:"result,omitempty"`
}

// ThemedSession runs a fixed-length quiz over one topic and grades it at the end.
type ThemedSession struct {
	deps SessionDeps

	mu        sync.Mutex
	step      ThemedStep
	topic     string
	questions []domain.QuizQuestion
	index     int
	answers   map[string]string
	result    *ThemedResult

	pending errgroup.Group
}

func NewThemedSession(deps SessionDeps) *ThemedSession {
	return &ThemedSession{
		deps:    deps.withDefaults(),
		step:    ThemedTopicSelection,
		answers: make(map[string]string),
	}
}

// SelectTopic draws a fresh set of questions for topic and starts the quiz.
func (s *ThemedSession) SelectTopic(topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != ThemedTopicSelection {
		return fmt.Errorf("select topic while %s: %w", s.step, domain.ErrInvalidState)
	}
	return s.beginLocked(topic)
}

// Answer records or replaces the answer to a question without advancing.
func (s *ThemedSession) Answer(questionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != ThemedInProgress {
		return fmt.Errorf("answer while %s: %w", s.step, domain.ErrInvalidState)
	}
	if !s.hasQuestionLocked(questionID) {
		if _, known := s.deps.Questions.Question(questionID); known {
			return fmt.Errorf("question %q is not part of this quiz: %w", questionID, domain.ErrInvalidState)
		}
		return fmt.Errorf("answer %q: %w", questionID, domain.ErrQuestionNotFound)
	}
	s.answers[questionID] = value
	s.publishStateLocked()
	return nil
}

// Next moves to the following question. On the last question it grades the quiz and
// returns the result.
func (s *ThemedSession) Next(ctx context.Context) (*ThemedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != ThemedInProgress {
		return nil, fmt.Errorf("next while %s: %w", s.step, domain.ErrInvalidState)
	}
	if s.index < len(s.questions)-1 {
		s.index++
		s.publishStateLocked()
		return nil, nil
	}
	return s.submitLocked(ctx), nil
}

// Submit grades the quiz immediately, leaving unanswered questions wrong.
func (s *ThemedSession) Submit(ctx context.Context) (*ThemedResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != ThemedInProgress {
		return nil, fmt.Errorf("submit while %s: %w", s.step, domain.ErrInvalidState)
	}
	return s.submitLocked(ctx), nil
}

// Restart retakes the same topic with a new draw.
func (s *ThemedSession) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.step != ThemedResults {
		return fmt.Errorf("restart while %s: %w", s.step, domain.ErrInvalidState)
	}
	return s.beginLocked(s.topic)
}

// ChooseTopic goes back to topic selection.
func (s *ThemedSession) ChooseTopic() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.publishStateLocked()
}

// Snapshot returns the current state.
func (s *ThemedSession) Snapshot() ThemedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Progress returns the saved result of every topic taken on this device.
func (s *ThemedSession) Progress(ctx context.Context) map[string]domain.TopicProgress {
	if s.deps.Progress == nil {
		return map[string]domain.TopicProgress{}
	}
	return s.deps.Progress.Load(ctx)
}

// Active reports whether a quiz is being answered.
func (s *ThemedSession) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step == ThemedInProgress
}

// Wait blocks until error-log writes started by Submit have finished.
func (s *ThemedSession) Wait() {
	_ = s.pending.Wait()
}

func (s *ThemedSession) beginLocked(topic string) error {
	qs := s.deps.Questions.ThemedQuestions(topic, s.deps.Rules.ThemedQuestions)
	if len(qs) == 0 {
		return fmt.Errorf("topic %q: %w", topic, domain.ErrNotEnoughQuestions)
	}
	s.resetLocked()
	s.topic = topic
	s.questions = qs
	s.step = ThemedInProgress
	s.publishStateLocked()
	return nil
}

func (s *ThemedSession) resetLocked() {
	s.step = ThemedTopicSelection
	s.topic = ""
	s.questions = nil
	s.index = 0
	s.answers = make(map[string]string)
	s.result = nil
}

func (s *ThemedSession) hasQuestionLocked(id string) bool {
	for _, q := range s.questions {
		if q.ID == id {
			return true
		}
	}
	return false
}

func (s *ThemedSession) submitLocked(ctx context.Context) *ThemedResult {
	res := &ThemedResult{Topic: s.topic, Total: len(s.questions)}
	var wrong []domain.ThemedAnswer
	for _, q := range s.questions {
		given := s.answers[q.ID]
		a := domain.ThemedAnswer{Question: q, UserAnswer: given, IsCorrect: q.AcceptsChoice(given)}
		if a.IsCorrect {
			res.Score++
		} else {
			wrong = append(wrong, a)
		}
		res.Answers = append(res.Answers, a)
	}
	res.IsPerfect = res.Total > 0 && res.Score == res.Total

	s.result = res
	s.step = ThemedResults

	if s.deps.Progress != nil {
		progress := domain.TopicProgress{Score: res.Score, TotalQuestions: res.Total, IsPerfect: res.IsPerfect}
		if _, err := s.deps.Progress.Save(ctx, s.topic, progress); err != nil {
			s.deps.Logger.Printf("themed quiz: save progress for %q failed: %v", s.topic, err)
		}
	}
	s.deps.Events.Publish(Event{Type: EventThemedResults, Payload: *res})
	s.recordMistakesLocked(wrong)
	return res
}

// recordMistakesLocked logs every wrong answer and reports one aggregated notice.
// A failed write never stops the remaining ones.
func (s *ThemedSession) recordMistakesLocked(wrong []domain.ThemedAnswer) {
	ident := s.deps.currentIdentity()
	if ident == nil || s.deps.Mistakes == nil || len(wrong) == 0 {
		return
	}
	now := s.deps.Clock.Now().UnixMilli()
	pending := make([]<-chan domain.Result[history.Persisted], 0, len(wrong))
	for _, a := range wrong {
		attempt := strings.TrimSpace(a.UserAnswer)
		if attempt == "" {
			attempt = domain.NoAnswer
		}
		item := domain.ProblemHistoryItem{
			ProblemStatement:   a.Question.Text,
			Solution:           a.Question.SolutionText(),
			UserAttempt:        attempt,
			Timestamp:          now,
			IsIncorrectAttempt: true,
			UserID:             ident.ID,
		}
		pending = append(pending, s.deps.Mistakes.Append(context.Background(), ident, item))
	}

	events, logger, topic := s.deps.Events, s.deps.Logger, s.topic
	s.pending.Go(func() error {
		var errs []error
		for _, ch := range pending {
			if res := <-ch; res.Err != nil {
				errs = append(errs, res.Err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			logger.Printf("themed quiz: %d of %d mistakes for %q not recorded: %v", len(errs), len(pending), topic, err)
			events.Publish(errorNotice("部分錯題記錄失敗", fmt.Sprintf("%d 題錯題未能記錄到錯題本。", len(errs))))
			return nil
		}
		events.Publish(infoNotice("錯題已記錄", fmt.Sprintf("本次測驗的 %d 題錯題已記錄到您的錯題本。", len(pending))))
		return nil
	})
}

func (s *ThemedSession) publishStateLocked() {
	s.deps.Events.Publish(Event{Type: EventThemedState, Payload: s.snapshotLocked()})
}

func (s *ThemedSession) snapshotLocked() ThemedSnapshot {
	snap := ThemedSnapshot{
		Step:         s.step,
		Topics:       s.deps.Questions.AvailableTopics(),
		Topic:        s.topic,
		CurrentIndex: s.index,
	}
	if s.step == ThemedInProgress {
		for _, q := range s.questions {
			snap.Questions = append(snap.Questions, viewOf(q))
		}
		snap.Answers = make(map[string]string, len(s.answers))
		for k, v := range s.answers {
			snap.Answers[k] = v
		}
	}
	if s.result != nil {
		r := *s.result
		snap.Result = &r
	}
	return snap
}
