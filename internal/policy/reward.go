package policy

import "math"

// Reward scores a completed turn for preference learning. Student feedback is
// the primary signal at ±1; the quality terms (given on a 0-100 scale) are
// normalized and weighted well below it. Bounds: -1.1 with a dislike and all
// scores at their worst, +1.3 with a like and all scores at their best.
func Reward(feedback Feedback, ragRelevance, completeness, hallucinationRisk float64) float64 {
	var reward float64
	switch feedback {
	case FeedbackLike:
		reward += 1.0
	case FeedbackDislike:
		reward -= 1.0
	}

	reward += ragRelevance/100*0.2 + completeness/100*0.2 - hallucinationRisk/100*0.1

	return math.Round(reward*1000) / 1000
}
