package policy

import "testing"

func TestReward(t *testing.T) {
	tests := []struct {
		name                        string
		feedback                    Feedback
		rag, completeness, hallucination float64
		want                        float64
	}{
		{"worst case", FeedbackDislike, 0, 0, 100, -1.1},
		{"best case", FeedbackLike, 100, 100, 100, 1.3},
		{"like with clean answer", FeedbackLike, 100, 100, 0, 1.4},
		{"neutral midrange", FeedbackNeutral, 50, 50, 50, 0.15},
		{"like with flat scores", FeedbackLike, 0, 0, 0, 1.0},
		{"dislike offsets quality", FeedbackDislike, 100, 100, 0, -0.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reward(tt.feedback, tt.rag, tt.completeness, tt.hallucination)
			if got != tt.want {
				t.Errorf("Reward = %g, want %g", got, tt.want)
			}
		})
	}
}
