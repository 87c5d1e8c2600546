package policy

import (
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// maxSteps caps the non-generate actions per turn to bound latency.
const maxSteps = 2

// Policy selects the next optimizer action for a turn in progress.
type Policy interface {
	SelectAction(state State) Action
}

// EpsilonGreedy explores uniformly with probability epsilon and otherwise
// exploits: hard heuristics first, then a softmax ranking of the learned
// weights for the state key, defaulting to generation once the alternatives
// are exhausted.
type EpsilonGreedy struct {
	weights WeightStore
	epsilon float64
	rng     *rand.Rand
}

// NewEpsilonGreedy creates a policy over the given weight store.
func NewEpsilonGreedy(weights WeightStore, epsilon float64) *EpsilonGreedy {
	return &EpsilonGreedy{
		weights: weights,
		epsilon: epsilon,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewEpsilonGreedyWithRand creates a policy with a fixed random source
// (for testing).
func NewEpsilonGreedyWithRand(weights WeightStore, epsilon float64, rng *rand.Rand) *EpsilonGreedy {
	return &EpsilonGreedy{weights: weights, epsilon: epsilon, rng: rng}
}

// SelectAction picks the next action for the state.
func (p *EpsilonGreedy) SelectAction(state State) Action {
	if state.steps() >= maxSteps {
		return GenerateResponse
	}

	if p.rng.Float64() < p.epsilon {
		actions := Actions()
		action := actions[p.rng.Intn(len(actions))]
		slog.Debug("policy exploring", "action", action)
		return action
	}

	return p.exploit(state)
}

func (p *EpsilonGreedy) exploit(state State) Action {
	// Without retrieved context, generation would run on priors alone.
	// Reshape the query first.
	if len(state.Context) == 0 {
		if !state.Taken(RewriteQuery) {
			return RewriteQuery
		}
		if !state.Taken(ExpandContext) {
			return ExpandContext
		}
		return GenerateResponse
	}

	if len(state.Context) > 5 && !state.Taken(FilterContext) {
		return FilterContext
	}

	if best, ok := p.learnedBest(state); ok {
		return best
	}
	return GenerateResponse
}

// learnedBest ranks the action space by softmax over the learned weights for
// the state key and returns the most probable action not yet taken this turn.
func (p *EpsilonGreedy) learnedBest(state State) (Action, bool) {
	weights, err := p.weights.Weights(state.Key())
	if err != nil {
		slog.Warn("loading policy weights failed", "state", state.Key(), "error", err)
		return "", false
	}

	probs := softmax(weights)
	var best Action
	bestProb := math.Inf(-1)
	for _, a := range Actions() {
		if a == GenerateResponse || state.Taken(a) {
			continue
		}
		if probs[a] > bestProb {
			best, bestProb = a, probs[a]
		}
	}
	if best == "" || bestProb <= 0 {
		return "", false
	}
	// A uniform distribution means nothing was learned for this state;
	// don't let it override the generate default.
	if math.Abs(bestProb-1.0/float64(len(Actions()))) < 1e-9 {
		return "", false
	}
	return best, true
}

// softmax converts weights into a probability distribution over the full
// action space, treating missing actions as zero weight.
func softmax(weights map[Action]float64) map[Action]float64 {
	maxW := math.Inf(-1)
	for _, a := range Actions() {
		if w := weights[a]; w > maxW {
			maxW = w
		}
	}

	var sum float64
	exps := make(map[Action]float64, len(Actions()))
	for _, a := range Actions() {
		e := math.Exp(weights[a] - maxW)
		exps[a] = e
		sum += e
	}

	probs := make(map[Action]float64, len(exps))
	for a, e := range exps {
		probs[a] = e / sum
	}
	return probs
}
