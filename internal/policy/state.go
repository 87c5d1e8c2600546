package policy

import (
	"sort"
	"strings"

	"github.com/tutorkit/tutord/internal/diagnosis"
	"github.com/tutorkit/tutord/internal/retrieval"
)

// State is the optimizer's view of a turn in progress. Derived per turn,
// never stored verbatim; learned weights are indexed by its Key.
type State struct {
	OriginalQuery   string
	CurrentQuery    string
	Context         []retrieval.Chunk
	PreviousActions []Action
	PreviousRewards []float64

	// Discretized components of the state key.
	Intent         string
	ConfusionKinds []diagnosis.Kind
}

// Key returns the discretized state key used for weight lookup:
// intent, a colon, then the sorted confusion kinds joined with "|"
// ("none" when the set is empty).
func (s State) Key() string {
	intent := s.Intent
	if intent == "" {
		intent = "chat"
	}

	if len(s.ConfusionKinds) == 0 {
		return intent + ":none"
	}
	kinds := make([]string, 0, len(s.ConfusionKinds))
	for _, k := range s.ConfusionKinds {
		if k != diagnosis.NoConfusion {
			kinds = append(kinds, string(k))
		}
	}
	if len(kinds) == 0 {
		return intent + ":none"
	}
	sort.Strings(kinds)
	return intent + ":" + strings.Join(kinds, "|")
}

// Taken reports whether the action was already taken this turn.
func (s State) Taken(a Action) bool {
	for _, prev := range s.PreviousActions {
		if prev == a {
			return true
		}
	}
	return false
}

// steps counts the non-generate actions already taken this turn.
func (s State) steps() int {
	n := 0
	for _, a := range s.PreviousActions {
		if a != GenerateResponse {
			n++
		}
	}
	return n
}
