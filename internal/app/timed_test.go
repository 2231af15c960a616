package app_test

import (
	"errors"
	"testing"
	"time"

	"gongzi-quiz-service/internal/app"
	"gongzi-quiz-service/internal/bank"
	"gongzi-quiz-service/internal/config"
	"gongzi-quiz-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answerOf(t *testing.T, qs []domain.QuizQuestion, snap app.TimedSnapshot) string {
	t.Helper()
	require.NotNil(t, snap.Question, "no question on screen")
	for _, q := range qs {
		if q.ID == snap.Question.ID {
			return q.Answer
		}
	}
	t.Fatalf("question %s not in catalog", snap.Question.ID)
	return ""
}

func TestTimedSingleCorrectAnswerFinishes(t *testing.T) {
	f := newFixture()
	rules := config.DefaultRules()
	rules.TotalQuestions = 1
	qs := []domain.QuizQuestion{question("q1", "算術", "4")}
	s := app.NewTimedSession(f.deps(bank.New(qs), rules, learner))

	require.NoError(t, s.Start(0))
	snap := s.Snapshot()
	assert.Equal(t, app.TimedPlaying, snap.State)
	assert.Equal(t, 30, snap.TimeLeft)
	assert.Equal(t, 1, snap.QuestionNumber)

	f.clock.Advance(2 * time.Second)
	assert.Equal(t, 28, s.Snapshot().TimeLeft)

	rec, err := s.Submit(" 4 ")
	require.NoError(t, err)
	assert.True(t, rec.IsCorrect)
	assert.Equal(t, 180, rec.ScoreAwarded)
	assert.InDelta(t, 2.0, rec.TimeTakenSeconds, 1e-9)
	assert.Equal(t, app.TimedAnswered, s.Snapshot().State)

	f.clock.Advance(rules.FeedbackDelay)
	s.Wait()

	snap = s.Snapshot()
	assert.Equal(t, app.TimedFinished, snap.State)
	assert.Equal(t, 180, snap.Score)
	assert.Nil(t, snap.Question)

	entries := f.board.submitted()
	require.Len(t, entries, 1)
	assert.Equal(t, 180, entries[0].Score)
	assert.Equal(t, "小明", entries[0].DisplayName)
	assert.Equal(t, "u1", entries[0].UserID)
	assert.Equal(t, 1, f.events.count(app.EventTimedFinished))
	assert.Empty(t, f.mistakes.recorded())
}

func TestTimedScoreIsSumOfAwards(t *testing.T) {
	f := newFixture()
	rules := config.DefaultRules()
	qs := catalogOf(12, "算術")
	s := app.NewTimedSession(f.deps(bank.New(qs), rules, learner))
	require.NoError(t, s.Start(0))

	sum := 0
	seen := make(map[string]bool)
	for i := 0; i < rules.TotalQuestions; i++ {
		snap := s.Snapshot()
		require.Equal(t, app.TimedPlaying, snap.State, "question %d", i+1)
		require.False(t, seen[snap.Question.ID], "question %s repeated", snap.Question.ID)
		seen[snap.Question.ID] = true

		f.clock.Advance(time.Duration(i) * time.Second)
		answer := answerOf(t, qs, snap)
		if i%3 == 2 {
			answer = "wrong"
		}
		rec, err := s.Submit(answer)
		require.NoError(t, err)
		sum += rec.ScoreAwarded

		got := s.Snapshot()
		assert.Equal(t, sum, got.Score)
		assert.Len(t, got.Answered, i+1)
		f.clock.Advance(rules.FeedbackDelay)
	}
	s.Wait()

	snap := s.Snapshot()
	assert.Equal(t, app.TimedFinished, snap.State)
	assert.Equal(t, sum, snap.Score)
	assert.Len(t, f.mistakes.recorded(), 3)
	require.Len(t, f.board.submitted(), 1)
	assert.Equal(t, sum, f.board.submitted()[0].Score)
}

func TestTimedTimeoutRecordsMistake(t *testing.T) {
	f := newFixture()
	rules := config.DefaultRules()
	rules.TotalQuestions = 1
	qs := []domain.QuizQuestion{question("q1", "算術", "4")}
	s := app.NewTimedSession(f.deps(bank.New(qs), rules, learner))

	require.NoError(t, s.Start(0))
	f.clock.Advance(29 * time.Second)
	assert.Equal(t, app.TimedPlaying, s.Snapshot().State)
	assert.Equal(t, 1, s.Snapshot().TimeLeft)

	f.clock.Advance(time.Second)
	snap := s.Snapshot()
	require.Equal(t, app.TimedAnswered, snap.State)
	require.Len(t, snap.Answered, 1)
	rec := snap.Answered[0]
	assert.False(t, rec.IsCorrect)
	assert.Zero(t, rec.ScoreAwarded)
	assert.Equal(t, 30.0, rec.TimeTakenSeconds)

	_, err := s.Submit("4")
	assert.True(t, errors.Is(err, domain.ErrInvalidState))

	f.clock.Advance(rules.FeedbackDelay)
	s.Wait()

	mistakes := f.mistakes.recorded()
	require.Len(t, mistakes, 1)
	assert.Equal(t, domain.TimedOutAnswer, mistakes[0].UserAttempt)
	assert.Equal(t, "正確答案：4。解析：解析 q1", mistakes[0].Solution)
	assert.True(t, mistakes[0].IsIncorrectAttempt)
	assert.Equal(t, "u1", mistakes[0].UserID)

	assert.Equal(t, app.TimedFinished, s.Snapshot().State)
	assert.Empty(t, f.board.submitted(), "zero score is not submitted")
}

func TestTimedBlankAnswerUsesSentinel(t *testing.T) {
	f := newFixture()
	qs := []domain.QuizQuestion{question("q1", "算術", "4")}
	s := app.NewTimedSession(f.deps(bank.New(qs), config.DefaultRules(), learner))

	require.NoError(t, s.Start(0))
	_, err := s.Submit("   ")
	require.NoError(t, err)
	s.Wait()

	mistakes := f.mistakes.recorded()
	require.Len(t, mistakes, 1)
	assert.Equal(t, domain.NoAnswer, mistakes[0].UserAttempt)
	require.NotEmpty(t, f.events.notices())
	assert.Equal(t, "info", f.events.notices()[0].Level)
}

func TestTimedAnonymousKeepsEverythingLocal(t *testing.T) {
	f := newFixture()
	rules := config.DefaultRules()
	rules.TotalQuestions = 1
	qs := []domain.QuizQuestion{question("q1", "算術", "4")}
	s := app.NewTimedSession(f.deps(bank.New(qs), rules, nil))

	require.NoError(t, s.Start(0))
	_, err := s.Submit("5")
	require.NoError(t, err)
	assert.ErrorIs(t, s.Start(0), domain.ErrInvalidState)
	f.clock.Advance(rules.FeedbackDelay)
	s.Wait()

	assert.Equal(t, app.TimedFinished, s.Snapshot().State)
	assert.Empty(t, f.mistakes.recorded())
	assert.Empty(t, f.board.submitted())
}

func TestTimedStartRules(t *testing.T) {
	f := newFixture()
	empty := app.NewTimedSession(f.deps(bank.New(nil), config.DefaultRules(), nil))
	assert.ErrorIs(t, empty.Start(0), domain.ErrNoQuestions)
	assert.Equal(t, app.TimedIdle, empty.Snapshot().State)

	s := app.NewTimedSession(f.deps(bank.New(catalogOf(3, "算術")), config.DefaultRules(), nil))
	_, err := s.Submit("1")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	require.NoError(t, s.Start(5*time.Second))
	assert.Equal(t, 5, s.Snapshot().TimeLeft)
	assert.ErrorIs(t, s.Start(0), domain.ErrInvalidState)
}

func TestTimedResetCancelsTimers(t *testing.T) {
	f := newFixture()
	qs := catalogOf(3, "算術")
	s := app.NewTimedSession(f.deps(bank.New(qs), config.DefaultRules(), learner))

	require.NoError(t, s.Start(0))
	f.clock.Advance(3 * time.Second)
	s.Reset()
	assert.Zero(t, f.clock.Pending())

	f.clock.Advance(time.Minute)
	snap := s.Snapshot()
	assert.Equal(t, app.TimedIdle, snap.State)
	assert.Zero(t, snap.Score)
	assert.Empty(t, snap.Answered)
	assert.Empty(t, f.mistakes.recorded())

	require.NoError(t, s.Start(0))
	_, err := s.Submit("wrong")
	require.NoError(t, err)
	s.Reset()
	assert.Zero(t, f.clock.Pending(), "feedback timer must be cancelled")
	f.clock.Advance(time.Minute)
	assert.Equal(t, app.TimedIdle, s.Snapshot().State)
	s.Wait()
}

func TestTimedStaleTimersDoNotLeakIntoNewRound(t *testing.T) {
	f := newFixture()
	rules := config.DefaultRules()
	qs := catalogOf(12, "算術")
	s := app.NewTimedSession(f.deps(bank.New(qs), rules, nil))

	require.NoError(t, s.Start(0))
	_, err := s.Submit("wrong")
	require.NoError(t, err)
	s.Reset()
	require.NoError(t, s.Start(0))

	f.clock.Advance(rules.FeedbackDelay)
	snap := s.Snapshot()
	assert.Equal(t, app.TimedPlaying, snap.State)
	assert.Equal(t, 1, snap.QuestionNumber)
	assert.Equal(t, 28, snap.TimeLeft)
	assert.Empty(t, snap.Answered)
}

func TestTimedLeaderboardFailureIsNotice(t *testing.T) {
	f := newFixture()
	f.board.err = errors.New("offline")
	rules := config.DefaultRules()
	rules.TotalQuestions = 1
	qs := []domain.QuizQuestion{question("q1", "算術", "4")}
	s := app.NewTimedSession(f.deps(bank.New(qs), rules, learner))

	require.NoError(t, s.Start(0))
	_, err := s.Submit("4")
	require.NoError(t, err)
	f.clock.Advance(rules.FeedbackDelay)
	s.Wait()

	assert.Equal(t, app.TimedFinished, s.Snapshot().State)
	notices := f.events.notices()
	require.NotEmpty(t, notices)
	assert.Equal(t, "error", notices[len(notices)-1].Level)
}
