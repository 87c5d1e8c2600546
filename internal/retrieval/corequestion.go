package retrieval

import (
	"regexp"
	"strings"
)

// Queries arrive wrapped in conversational scaffolding: profile preambles,
// previous-turn context, rewritten suggestions from the query optimizer.
// Embedding the whole envelope drags the vector toward the scaffolding, so
// retrieval embeds only the extracted core question. The full query still
// goes to the language model for answer generation.

const maxCoreLen = 500

var (
	quotedRe          = regexp.MustCompile(`"([^"]*)"`)
	currentQuestionRe = regexp.MustCompile(`(?is)current question:\s*\n\s*(.+?)(?:\n\n|\nclass:|\nstudent preferences:|$)`)
	questionPrefixRe  = regexp.MustCompile(`(?i)^(?:Q:|Question:)\s*(.+?)(?:\n|$)`)
)

var rewriteMarkers = []string{"rewrit", "option", "alternative", "suggested"}

var scaffoldPrefixes = []string{"Class:", "Subject:", "Student", "Rules:", "Previous"}

// ExtractCoreQuestion distills the interrogative content out of a possibly
// verbose, multi-part query string. The original query is returned (truncated)
// when no pattern matches.
func ExtractCoreQuestion(query string) string {
	// Optimizer rewrites are conversational ("Here is a rewritten option: ...").
	// Prefer the longest quoted phrase when the text looks like one.
	lower := strings.ToLower(query)
	for _, marker := range rewriteMarkers {
		if !strings.Contains(lower, marker) {
			continue
		}
		if best := longestQuoted(query); len(best) > 10 {
			return truncate(best, maxCoreLen)
		}
		break
	}

	if m := currentQuestionRe.FindStringSubmatch(query); m != nil {
		if core := strings.TrimSpace(m[1]); core != "" {
			return core
		}
	}

	if m := questionPrefixRe.FindStringSubmatch(query); m != nil {
		return strings.TrimSpace(m[1])
	}

	lines := strings.Split(strings.TrimSpace(query), "\n")
	if len(lines) > 0 {
		first := strings.TrimSpace(lines[0])
		if len(first) < 200 && strings.Contains(first, "?") {
			return first
		}
		if len(query) > maxCoreLen {
			for _, line := range lines[:min(5, len(lines))] {
				line = strings.TrimSpace(line)
				if line != "" && len(line) < 200 && !hasScaffoldPrefix(line) {
					return line
				}
			}
		}
	}

	return truncate(query, maxCoreLen)
}

func longestQuoted(s string) string {
	var best string
	for _, m := range quotedRe.FindAllStringSubmatch(s, -1) {
		if len(m[1]) > len(best) {
			best = m[1]
		}
	}
	return best
}

func hasScaffoldPrefix(line string) bool {
	for _, p := range scaffoldPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
