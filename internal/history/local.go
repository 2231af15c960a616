package history

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"gongzi-quiz-service/internal/domain"
)

// Fixed local cache keys besides the history lists.
const (
	TopicProgressKey  = "gongziQuizTopicProgress_v1"
	QuestionTimeKey   = "gongziQuickQuizQuestionSeconds"
	FocusDurationKey  = "focusTimerFocusDuration"
	BreakDurationKey  = "focusTimerBreakDuration"
	TotalFocusTimeKey = "focusTimerTotalFocusTime"
)

// ProgressStore keeps the per-topic themed quiz results in the local cache.
type ProgressStore struct {
	cache  LocalCache
	logger *log.Logger
	mu     sync.Mutex
}

func NewProgressStore(cache LocalCache) *ProgressStore {
	return &ProgressStore{cache: cache, logger: log.Default()}
}

// Load returns the stored map; unreadable content counts as empty.
func (p *ProgressStore) Load(ctx context.Context) map[string]domain.TopicProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadLocked(ctx)
}

// Save overwrites the entry for topic and returns the updated map.
func (p *ProgressStore) Save(ctx context.Context, topic string, progress domain.TopicProgress) (map[string]domain.TopicProgress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	all := p.loadLocked(ctx)
	all[topic] = progress
	return all, writeJSON(ctx, p.cache, TopicProgressKey, all)
}

func (p *ProgressStore) loadLocked(ctx context.Context) map[string]domain.TopicProgress {
	all := make(map[string]domain.TopicProgress)
	if _, err := readJSON(ctx, p.cache, TopicProgressKey, &all); err != nil {
		p.logger.Printf("topic progress unreadable, starting fresh: %v", err)
		return make(map[string]domain.TopicProgress)
	}
	return all
}

// Settings exposes device-local preferences.
type Settings struct {
	cache LocalCache
}

func NewSettings(cache LocalCache) Settings {
	return Settings{cache: cache}
}

// QuestionTime is the per-question countdown chosen on this device, or fallback.
func (s Settings) QuestionTime(ctx context.Context, fallback time.Duration) time.Duration {
	return s.duration(ctx, QuestionTimeKey, fallback)
}

// SetQuestionTime stores the countdown in whole seconds.
func (s Settings) SetQuestionTime(ctx context.Context, d time.Duration) error {
	return s.setSeconds(ctx, QuestionTimeKey, int(d/time.Second))
}

// FocusDuration is the focus phase length of the focus timer, or fallback.
func (s Settings) FocusDuration(ctx context.Context, fallback time.Duration) time.Duration {
	return s.duration(ctx, FocusDurationKey, fallback)
}

func (s Settings) SetFocusDuration(ctx context.Context, d time.Duration) error {
	return s.setSeconds(ctx, FocusDurationKey, int(d/time.Second))
}

// BreakDuration is the break phase length of the focus timer, or fallback.
func (s Settings) BreakDuration(ctx context.Context, fallback time.Duration) time.Duration {
	return s.duration(ctx, BreakDurationKey, fallback)
}

func (s Settings) SetBreakDuration(ctx context.Context, d time.Duration) error {
	return s.setSeconds(ctx, BreakDurationKey, int(d/time.Second))
}

// TotalFocusSeconds is the focus time accumulated on this device.
func (s Settings) TotalFocusSeconds(ctx context.Context) int {
	raw, ok, err := s.cache.Get(ctx, TotalFocusTimeKey)
	if err != nil || !ok {
		return 0
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0
	}
	return secs
}

func (s Settings) SetTotalFocusSeconds(ctx context.Context, secs int) error {
	return s.setSeconds(ctx, TotalFocusTimeKey, secs)
}

// duration reads a positive whole number of seconds; anything else yields fallback.
func (s Settings) duration(ctx context.Context, key string, fallback time.Duration) time.Duration {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}

func (s Settings) setSeconds(ctx context.Context, key string, secs int) error {
	return s.cache.Set(ctx, key, strconv.Itoa(secs))
}
