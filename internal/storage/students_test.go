package storage

import (
	"testing"
	"time"

	"github.com/tutorkit/tutord/internal/policy"
)

func turnAt(sec int, feedback policy.Feedback, stateKey string, actions ...policy.Action) Turn {
	return Turn{
		Feedback:  feedback,
		StateKey:  stateKey,
		Actions:   actions,
		Timestamp: time.Unix(int64(sec), 0),
	}
}

func TestRecentTurns_NewestFirst(t *testing.T) {
	turns := []Turn{
		turnAt(1, policy.FeedbackNeutral, ""),
		turnAt(3, policy.FeedbackNeutral, ""),
		turnAt(2, policy.FeedbackNeutral, ""),
	}

	got := recentTurns(turns, 2)
	if len(got) != 2 {
		t.Fatalf("got %d turns, want 2", len(got))
	}
	if !got[0].Timestamp.After(got[1].Timestamp) {
		t.Errorf("not newest first: %v, %v", got[0].Timestamp, got[1].Timestamp)
	}
	if got[0].Timestamp != time.Unix(3, 0) {
		t.Errorf("newest = %v, want t=3", got[0].Timestamp)
	}
}

func TestRecentTurns_ZeroLimitKeepsAll(t *testing.T) {
	turns := []Turn{turnAt(1, policy.FeedbackNeutral, ""), turnAt(2, policy.FeedbackNeutral, "")}
	if got := recentTurns(turns, 0); len(got) != 2 {
		t.Errorf("got %d turns, want all 2", len(got))
	}
}

func TestRecentTurns_DoesNotMutateInput(t *testing.T) {
	turns := []Turn{turnAt(1, policy.FeedbackNeutral, ""), turnAt(2, policy.FeedbackNeutral, "")}
	recentTurns(turns, 1)
	if turns[0].Timestamp != time.Unix(1, 0) {
		t.Error("input slice reordered")
	}
}

func TestFeedbackTurns(t *testing.T) {
	history := map[string][]Turn{
		"math": {
			turnAt(1, policy.FeedbackLike, "chat:none", policy.RewriteQuery, policy.GenerateResponse),
			turnAt(2, policy.FeedbackNeutral, "chat:none", policy.RewriteQuery),
			turnAt(3, policy.FeedbackDislike, "chat:none", policy.GenerateResponse),
			turnAt(4, policy.FeedbackDislike, "", policy.RewriteQuery),
		},
		"physics": {
			turnAt(5, policy.FeedbackDislike, "quiz:none", policy.ExpandContext),
		},
	}

	got := feedbackTurns(history)
	if len(got) != 2 {
		t.Fatalf("got %d trainer turns, want 2: %+v", len(got), got)
	}
	for _, ft := range got {
		switch ft.StateKey {
		case "chat:none":
			if ft.Action != policy.RewriteQuery || ft.Feedback != policy.FeedbackLike {
				t.Errorf("chat turn = %+v", ft)
			}
		case "quiz:none":
			if ft.Action != policy.ExpandContext || ft.Feedback != policy.FeedbackDislike {
				t.Errorf("quiz turn = %+v", ft)
			}
		default:
			t.Errorf("unexpected state key %q", ft.StateKey)
		}
	}
}
