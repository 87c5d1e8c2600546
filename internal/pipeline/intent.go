package pipeline

import (
	"regexp"
	"strings"
)

// Intent classifies what the student wants from this turn. Quiz gets
// its own flow; the remaining intents share the tutoring path and only
// shape the policy state key.
type Intent string

const (
	IntentChat      Intent = "chat"
	IntentQuiz      Intent = "quiz"
	IntentStudyPlan Intent = "study_plan"
	IntentNotes     Intent = "notes"
)

var (
	quizTopicRe  = regexp.MustCompile(`(?:on|from|of)\s+(.+)`)
	learnTopicRe = regexp.MustCompile(`(?:learn|study)\s+(.+)`)
)

// DetectIntent classifies the query by keyword and extracts a topic
// where the phrasing carries one.
func DetectIntent(query string) (Intent, string) {
	q := strings.ToLower(query)

	if containsAny(q, "quiz", "test me", "start quiz") {
		return IntentQuiz, matchTopic(quizTopicRe, q)
	}
	if containsAny(q, "study plan", "how to learn", "start learning") {
		return IntentStudyPlan, matchTopic(learnTopicRe, q)
	}
	if containsAny(q, "notes", "make notes", "summary", "revision") {
		return IntentNotes, ""
	}
	return IntentChat, ""
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func matchTopic(re *regexp.Regexp, q string) string {
	m := re.FindStringSubmatch(q)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}
