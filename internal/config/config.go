package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
		// IdleSweep is how often unused device contexts are dropped.
		IdleSweep string `yaml:"idleSweep"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Auth struct {
		SigningKey         string `yaml:"signingKey"`
		Issuer             string `yaml:"issuer"`
		AllowQueryIdentity bool   `yaml:"allowQueryIdentity"`
	} `yaml:"auth"`
	Quiz    QuizConfig `yaml:"quiz"`
	History struct {
		ProblemCap   int `yaml:"problemCap"`
		KnowledgeCap int `yaml:"knowledgeCap"`
	} `yaml:"history"`
}

// QuizConfig holds catalog settings and the tunable scoring constants.
type QuizConfig struct {
	TTL             string  `yaml:"ttl"`
	CatalogPath     string  `yaml:"catalogPath"`
	QuestionTime    string  `yaml:"questionTime"`
	TotalQuestions  int     `yaml:"totalQuestions"`
	ThemedQuestions int     `yaml:"themedQuestions"`
	BaseScore       int     `yaml:"baseScore"`
	MaxBonusSeconds float64 `yaml:"maxBonusSeconds"`
	BonusPerSecond  float64 `yaml:"bonusPerSecond"`
	FeedbackDelay   string  `yaml:"feedbackDelay"`
	FocusTime       string  `yaml:"focusTime"`
	BreakTime       string  `yaml:"breakTime"`
}

// QuizRules are the product constants driving both quiz modes.
type QuizRules struct {
	QuestionTime    time.Duration
	TotalQuestions  int
	ThemedQuestions int
	BaseScore       int
	MaxBonusSeconds float64
	BonusPerSecond  float64
	FeedbackDelay   time.Duration
	// Default phase lengths of the focus timer.
	FocusTime time.Duration
	BreakTime time.Duration
}

// DefaultRules mirrors the original product tuning.
func DefaultRules() QuizRules {
	return QuizRules{
		QuestionTime:    30 * time.Second,
		TotalQuestions:  10,
		ThemedQuestions: 5,
		BaseScore:       100,
		MaxBonusSeconds: 10,
		BonusPerSecond:  10,
		FeedbackDelay:   2 * time.Second,
		FocusTime:       25 * time.Minute,
		BreakTime:       5 * time.Minute,
	}
}

// Rules overlays configured values on top of DefaultRules.
func (q QuizConfig) Rules() QuizRules {
	rules := DefaultRules()
	rules.QuestionTime = TTLDuration(q.QuestionTime, rules.QuestionTime)
	rules.FeedbackDelay = TTLDuration(q.FeedbackDelay, rules.FeedbackDelay)
	rules.FocusTime = TTLDuration(q.FocusTime, rules.FocusTime)
	rules.BreakTime = TTLDuration(q.BreakTime, rules.BreakTime)
	if q.TotalQuestions > 0 {
		rules.TotalQuestions = q.TotalQuestions
	}
	if q.ThemedQuestions > 0 {
		rules.ThemedQuestions = q.ThemedQuestions
	}
	if q.BaseScore > 0 {
		rules.BaseScore = q.BaseScore
	}
	if q.MaxBonusSeconds > 0 {
		rules.MaxBonusSeconds = q.MaxBonusSeconds
	}
	if q.BonusPerSecond > 0 {
		rules.BonusPerSecond = q.BonusPerSecond
	}
	return rules
}

// Local cache caps for the two history kinds.
const (
	DefaultProblemCap   = 10
	DefaultKnowledgeCap = 15
)

// Caps returns the configured local cache caps, falling back to defaults.
func (c Config) Caps() (problems, knowledge int) {
	problems, knowledge = DefaultProblemCap, DefaultKnowledgeCap
	if c.History.ProblemCap > 0 {
		problems = c.History.ProblemCap
	}
	if c.History.KnowledgeCap > 0 {
		knowledge = c.History.KnowledgeCap
	}
	return problems, knowledge
}

// Load reads YAML config from path.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
