package policy

import (
	"fmt"
	"log/slog"
)

// FeedbackTurn is one historical turn prepared for preference training:
// the state key it ran under, the primary optimizer action taken, and the
// student's feedback.
type FeedbackTurn struct {
	StateKey string
	Action   Action
	Feedback Feedback
}

// PrimaryAction picks the decision that shaped a turn out of its recorded
// trajectory: the first non-generate action. ok is false for turns where the
// optimizer went straight to generation, which carry no preference signal.
func PrimaryAction(trajectory []Action) (Action, bool) {
	for _, a := range trajectory {
		if a != GenerateResponse {
			return a, true
		}
	}
	return "", false
}

// Trainer applies pairwise preference updates to the weight store. Runs as an
// offline batch step, never per request.
type Trainer struct {
	store WeightStore
	lr    float64
}

// NewTrainer creates a Trainer with the given learning rate.
func NewTrainer(store WeightStore, lr float64) *Trainer {
	return &Trainer{store: store, lr: lr}
}

// Train partitions the turns by state key into liked and disliked action
// sets, then for every (winner, loser) pair within a key moves the winner's
// weight up by lr and the loser's down by lr. Actions are only ever compared
// under the same state key. Returns the number of pairwise updates applied.
func (t *Trainer) Train(turns []FeedbackTurn) (int, error) {
	type partition struct {
		liked    []Action
		disliked []Action
	}
	byState := make(map[string]*partition)

	for _, turn := range turns {
		p := byState[turn.StateKey]
		if p == nil {
			p = &partition{}
			byState[turn.StateKey] = p
		}
		switch turn.Feedback {
		case FeedbackLike:
			p.liked = append(p.liked, turn.Action)
		case FeedbackDislike:
			p.disliked = append(p.disliked, turn.Action)
		}
	}

	updates := 0
	for key, p := range byState {
		if len(p.liked) == 0 || len(p.disliked) == 0 {
			continue
		}

		weights, err := t.store.Weights(key)
		if err != nil {
			return updates, fmt.Errorf("loading weights for %q: %w", key, err)
		}

		for _, winner := range p.liked {
			for _, loser := range p.disliked {
				weights[winner] += t.lr
				weights[loser] -= t.lr
				updates++
			}
		}

		if err := t.store.SetWeights(key, weights); err != nil {
			return updates, fmt.Errorf("saving weights for %q: %w", key, err)
		}
	}

	slog.Info("preference training complete", "states", len(byState), "updates", updates)
	return updates, nil
}
