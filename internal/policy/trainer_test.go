package policy

import (
	"math"
	"testing"
)

func TestTrain_PairwiseUpdate(t *testing.T) {
	store := NewMemoryWeights()
	trainer := NewTrainer(store, 0.1)

	turns := []FeedbackTurn{
		{StateKey: "chat:none", Action: RewriteQuery, Feedback: FeedbackLike},
		{StateKey: "chat:none", Action: ExpandContext, Feedback: FeedbackDislike},
	}

	updates, err := trainer.Train(turns)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}

	weights, err := store.Weights("chat:none")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(weights[RewriteQuery]-0.1) > 1e-9 {
		t.Errorf("winner weight = %g, want 0.1", weights[RewriteQuery])
	}
	if math.Abs(weights[ExpandContext]+0.1) > 1e-9 {
		t.Errorf("loser weight = %g, want -0.1", weights[ExpandContext])
	}
}

func TestTrain_EveryPairCounted(t *testing.T) {
	store := NewMemoryWeights()
	trainer := NewTrainer(store, 0.1)

	turns := []FeedbackTurn{
		{StateKey: "chat:none", Action: RewriteQuery, Feedback: FeedbackLike},
		{StateKey: "chat:none", Action: FilterContext, Feedback: FeedbackLike},
		{StateKey: "chat:none", Action: ExpandContext, Feedback: FeedbackDislike},
	}

	updates, err := trainer.Train(turns)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if updates != 2 {
		t.Errorf("updates = %d, want 2 (each liked vs each disliked)", updates)
	}

	weights, _ := store.Weights("chat:none")
	if math.Abs(weights[ExpandContext]+0.2) > 1e-9 {
		t.Errorf("loser weight = %g, want -0.2 after losing twice", weights[ExpandContext])
	}
}

func TestTrain_NeverComparesAcrossStateKeys(t *testing.T) {
	store := NewMemoryWeights()
	trainer := NewTrainer(store, 0.1)

	turns := []FeedbackTurn{
		{StateKey: "chat:none", Action: RewriteQuery, Feedback: FeedbackLike},
		{StateKey: "quiz:none", Action: ExpandContext, Feedback: FeedbackDislike},
	}

	updates, err := trainer.Train(turns)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if updates != 0 {
		t.Errorf("updates = %d, want 0 for disjoint state keys", updates)
	}
}

func TestTrain_NeutralIgnored(t *testing.T) {
	store := NewMemoryWeights()
	trainer := NewTrainer(store, 0.1)

	turns := []FeedbackTurn{
		{StateKey: "chat:none", Action: RewriteQuery, Feedback: FeedbackNeutral},
		{StateKey: "chat:none", Action: ExpandContext, Feedback: FeedbackDislike},
	}

	updates, err := trainer.Train(turns)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if updates != 0 {
		t.Errorf("updates = %d, want 0 without a liked counterpart", updates)
	}
}

func TestPrimaryAction(t *testing.T) {
	if _, ok := PrimaryAction([]Action{GenerateResponse}); ok {
		t.Error("generate-only trajectory must carry no signal")
	}
	got, ok := PrimaryAction([]Action{GenerateResponse, RewriteQuery, FilterContext})
	if !ok || got != RewriteQuery {
		t.Errorf("PrimaryAction = %v/%v, want rewrite_query/true", got, ok)
	}
}
