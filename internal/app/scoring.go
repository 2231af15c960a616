package app

import (
	"math"

	"gongzi-quiz-service/internal/config"
)

// Award computes the timed-quiz score for one answer. A correct answer earns the base
// score plus a speed bonus for every second left inside the bonus window.
func Award(rules config.QuizRules, correct, timeout bool, timeTaken float64) int {
	if timeout || !correct {
		return 0
	}
	awarded := rules.BaseScore
	if timeTaken < 0 {
		timeTaken = 0
	}
	if timeTaken <= rules.MaxBonusSeconds {
		awarded += int(math.Floor((rules.MaxBonusSeconds - timeTaken) * rules.BonusPerSecond))
	}
	return awarded
}
