package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesQuizOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
quiz:
  questionTime: 20s
  totalQuestions: 3
  baseScore: 50
  breakTime: 10m
history:
  problemCap: 4
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected port 9090, got %q", cfg.Server.Port)
	}

	rules := cfg.Quiz.Rules()
	if rules.QuestionTime != 20*time.Second || rules.TotalQuestions != 3 || rules.BaseScore != 50 {
		t.Fatalf("overrides not applied: %+v", rules)
	}
	if rules.ThemedQuestions != 5 || rules.FeedbackDelay != 2*time.Second || rules.MaxBonusSeconds != 10 {
		t.Fatalf("defaults not kept: %+v", rules)
	}
	if rules.FocusTime != 25*time.Minute || rules.BreakTime != 10*time.Minute {
		t.Fatalf("unexpected focus timer phases %v/%v", rules.FocusTime, rules.BreakTime)
	}

	problems, knowledge := cfg.Caps()
	if problems != 4 || knowledge != DefaultKnowledgeCap {
		t.Fatalf("unexpected caps %d/%d", problems, knowledge)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %v", got)
	}
	if got := TTLDuration("nonsense", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback on parse error, got %v", got)
	}
	if got := TTLDuration("5s", time.Minute); got != 5*time.Second {
		t.Fatalf("expected 5s, got %v", got)
	}
}
