package profile

import (
	"context"
	"testing"

	"github.com/tutorkit/tutord/internal/diagnosis"
)

// mockStore implements Store for testing.
type mockStore struct {
	getFn    func(ctx context.Context, studentID, subject string) (SubjectPreference, bool, error)
	saveFn   func(ctx context.Context, studentID, subject string, pref SubjectPreference) error
	recentFn func(ctx context.Context, studentID, subject string, limit int) ([]diagnosis.Kind, error)
}

func (m *mockStore) GetPreference(ctx context.Context, studentID, subject string) (SubjectPreference, bool, error) {
	return m.getFn(ctx, studentID, subject)
}

func (m *mockStore) SavePreference(ctx context.Context, studentID, subject string, pref SubjectPreference) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, studentID, subject, pref)
	}
	return nil
}

func (m *mockStore) RecentConfusions(ctx context.Context, studentID, subject string, limit int) ([]diagnosis.Kind, error) {
	if m.recentFn != nil {
		return m.recentFn(ctx, studentID, subject, limit)
	}
	return nil, nil
}

func noConfusionTurns(n int) []diagnosis.Kind {
	turns := make([]diagnosis.Kind, n)
	for i := range turns {
		turns[i] = diagnosis.NoConfusion
	}
	return turns
}

func TestScanStreaks(t *testing.T) {
	tests := []struct {
		name               string
		recent             []diagnosis.Kind
		wantCorrect, wantWrong int
	}{
		{"empty", nil, 0, 0},
		{"all correct", noConfusionTurns(4), 4, 0},
		{"all wrong", []diagnosis.Kind{diagnosis.ConceptGap, diagnosis.FormulaConfusion}, 0, 2},
		{
			"correct run ends at first confusion",
			[]diagnosis.Kind{diagnosis.NoConfusion, diagnosis.NoConfusion, diagnosis.ConceptGap, diagnosis.NoConfusion},
			2, 0,
		},
		{
			"wrong run ends at first correct",
			[]diagnosis.Kind{diagnosis.ConceptGap, diagnosis.NoConfusion, diagnosis.ConceptGap},
			0, 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			correct, wrong := scanStreaks(tt.recent)
			if correct != tt.wantCorrect || wrong != tt.wantWrong {
				t.Errorf("scanStreaks = (%d, %d), want (%d, %d)", correct, wrong, tt.wantCorrect, tt.wantWrong)
			}
		})
	}
}

func TestProgress_LevelUpAfterThreeCorrect(t *testing.T) {
	pref := DefaultPreference()
	got := Progress(pref, noConfusionTurns(3))
	if got.Level != LevelIntermediate {
		t.Errorf("Level = %v, want intermediate", got.Level)
	}
}

func TestProgress_LevelDownAfterThreeWrong(t *testing.T) {
	pref := DefaultPreference()
	pref.Level = LevelAdvanced
	wrong := []diagnosis.Kind{diagnosis.ConceptGap, diagnosis.ConceptGap, diagnosis.ProceduralError}
	got := Progress(pref, wrong)
	if got.Level != LevelIntermediate {
		t.Errorf("Level = %v, want intermediate", got.Level)
	}
}

func TestProgress_QuizSignalOverridesConfusion(t *testing.T) {
	// Perfect quiz streak and heavy formula confusion at the same time:
	// the quiz signal wins and the response shrinks.
	pref := DefaultPreference()
	pref.ConsecutivePerfectScores = 2
	pref.ConfusionCounter[diagnosis.FormulaConfusion] = 3
	pref.ResponseLength = LengthLong

	got := Progress(pref, nil)
	if got.ResponseLength != LengthShort {
		t.Errorf("ResponseLength = %v, want short (quiz overrides confusion)", got.ResponseLength)
	}
	// The confusion degradation still forces examples on.
	if !got.IncludeExample {
		t.Error("IncludeExample = false, want true under confusion degradation")
	}
}

func TestProgress_ConfusionCounterGrowsLength(t *testing.T) {
	pref := DefaultPreference()
	pref.ConfusionCounter[diagnosis.FormulaConfusion] = 2
	pref.ResponseLength = LengthLong

	got := Progress(pref, nil)
	if got.ResponseLength != LengthVeryLong {
		t.Errorf("ResponseLength = %v, want very_long", got.ResponseLength)
	}
	if !got.IncludeExample {
		t.Error("IncludeExample = false, want true")
	}
}

func TestProgress_StreakShrinksLength(t *testing.T) {
	pref := DefaultPreference()
	pref.ResponseLength = LengthVeryLong

	got := Progress(pref, noConfusionTurns(3))
	if got.ResponseLength != LengthLong {
		t.Errorf("ResponseLength = %v, want long", got.ResponseLength)
	}
}

func TestProgress_LearningStyleSwitchesToExamples(t *testing.T) {
	pref := DefaultPreference()
	recent := []diagnosis.Kind{
		diagnosis.ConceptGap, diagnosis.NoConfusion, diagnosis.ConceptGap,
		diagnosis.NoConfusion, diagnosis.ConceptGap,
	}
	got := Progress(pref, recent)
	if got.LearningStyle != "examples" {
		t.Errorf("LearningStyle = %q, want examples", got.LearningStyle)
	}
}

func TestProgress_AdvancedDropsExamples(t *testing.T) {
	pref := DefaultPreference()
	pref.Level = LevelIntermediate

	got := Progress(pref, noConfusionTurns(3))
	if got.Level != LevelAdvanced {
		t.Fatalf("Level = %v, want advanced", got.Level)
	}
	if got.IncludeExample {
		t.Error("IncludeExample = true, want false at advanced with no degradation")
	}
}

func TestRecordQuizScore(t *testing.T) {
	tests := []struct {
		name                  string
		score, total          int
		startLow, startPerfect int
		wantLow, wantPerfect   int
	}{
		{"perfect extends streak", 5, 5, 0, 1, 0, 2},
		{"eighty percent counts as perfect", 4, 5, 1, 0, 0, 1},
		{"low extends low streak", 2, 5, 1, 2, 2, 0},
		{"mid band resets both", 7, 10, 2, 2, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pref := DefaultPreference()
			pref.ConsecutiveLowScores = tt.startLow
			pref.ConsecutivePerfectScores = tt.startPerfect

			got := recordQuizScore(pref, tt.score, tt.total)
			if got.ConsecutiveLowScores != tt.wantLow {
				t.Errorf("ConsecutiveLowScores = %d, want %d", got.ConsecutiveLowScores, tt.wantLow)
			}
			if got.ConsecutivePerfectScores != tt.wantPerfect {
				t.Errorf("ConsecutivePerfectScores = %d, want %d", got.ConsecutivePerfectScores, tt.wantPerfect)
			}
		})
	}
}

func TestRecordQuizScore_HistoryBounded(t *testing.T) {
	pref := DefaultPreference()
	for i := 0; i < 8; i++ {
		pref = recordQuizScore(pref, i, 10)
	}
	if len(pref.QuizScoreHistory) != 5 {
		t.Fatalf("history length = %d, want 5", len(pref.QuizScoreHistory))
	}
	if pref.QuizScoreHistory[4] != 70 {
		t.Errorf("newest entry = %g, want 70", pref.QuizScoreHistory[4])
	}
}

func TestRecordConfusion(t *testing.T) {
	pref := DefaultPreference()
	pref = recordConfusion(pref, diagnosis.ConceptGap)
	pref = recordConfusion(pref, diagnosis.ConceptGap)
	pref = recordConfusion(pref, diagnosis.NoConfusion)

	if pref.ConfusionCounter[diagnosis.ConceptGap] != 2 {
		t.Errorf("counter = %d, want 2", pref.ConfusionCounter[diagnosis.ConceptGap])
	}
	if len(pref.CommonMistakes) != 1 || pref.CommonMistakes[0] != diagnosis.ConceptGap {
		t.Errorf("CommonMistakes = %v, want [CONCEPT_GAP]", pref.CommonMistakes)
	}
	if pref.ConfusionCounter[diagnosis.NoConfusion] != 0 {
		t.Error("NO_CONFUSION must not be counted")
	}
}

func TestNormalize_BackfillsLegacyRecord(t *testing.T) {
	got := Normalize(SubjectPreference{Level: "expert"})
	if got.Level != LevelBasic {
		t.Errorf("Level = %v, want basic for unknown value", got.Level)
	}
	if got.ResponseLength != LengthLong {
		t.Errorf("ResponseLength = %v, want long", got.ResponseLength)
	}
	if got.Tone != "friendly" || got.LearningStyle != "step-by-step" {
		t.Errorf("defaults not applied: %+v", got)
	}
	if got.ConfusionCounter == nil || got.CommonMistakes == nil || got.QuizScoreHistory == nil {
		t.Error("collections must be initialized")
	}
}

func TestEngineLoad_CreatesDefaultOnFirstUse(t *testing.T) {
	var saved *SubjectPreference
	store := &mockStore{
		getFn: func(_ context.Context, _, _ string) (SubjectPreference, bool, error) {
			return SubjectPreference{}, false, nil
		},
		saveFn: func(_ context.Context, _, _ string, pref SubjectPreference) error {
			saved = &pref
			return nil
		},
	}

	e := NewEngine(store)
	pref, err := e.Load(context.Background(), "s1", "physics")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if pref.Level != LevelBasic || pref.ResponseLength != LengthLong {
		t.Errorf("unexpected defaults: %+v", pref)
	}
	if saved == nil {
		t.Error("first use must persist the default record")
	}
}

func TestEvaluateTurn_ScenarioBasicToIntermediate(t *testing.T) {
	// Stored profile plus two prior clean turns; the third clean turn
	// promotes the student to intermediate.
	stored := DefaultPreference()
	var saved SubjectPreference
	store := &mockStore{
		getFn: func(_ context.Context, _, _ string) (SubjectPreference, bool, error) {
			return stored, true, nil
		},
		saveFn: func(_ context.Context, _, _ string, pref SubjectPreference) error {
			saved = pref
			return nil
		},
		recentFn: func(_ context.Context, _, _ string, limit int) ([]diagnosis.Kind, error) {
			if limit != historyWindow {
				t.Errorf("limit = %d, want %d", limit, historyWindow)
			}
			return noConfusionTurns(3), nil
		},
	}

	e := NewEngine(store)
	pref, err := e.EvaluateTurn(context.Background(), "s1", "physics", diagnosis.NoConfusion)
	if err != nil {
		t.Fatalf("EvaluateTurn: %v", err)
	}
	if pref.Level != LevelIntermediate {
		t.Errorf("Level = %v, want intermediate", pref.Level)
	}
	if saved.Level != LevelIntermediate {
		t.Error("full updated record must be persisted")
	}
}

func TestCompleteQuiz_UpdatesCountersAndLength(t *testing.T) {
	stored := DefaultPreference()
	stored.ConsecutivePerfectScores = 1
	var saved SubjectPreference
	store := &mockStore{
		getFn: func(_ context.Context, _, _ string) (SubjectPreference, bool, error) {
			return stored, true, nil
		},
		saveFn: func(_ context.Context, _, _ string, pref SubjectPreference) error {
			saved = pref
			return nil
		},
	}

	e := NewEngine(store)
	pref, err := e.CompleteQuiz(context.Background(), "s1", "physics", 5, 5)
	if err != nil {
		t.Fatalf("CompleteQuiz: %v", err)
	}
	if pref.ConsecutivePerfectScores != 2 {
		t.Errorf("ConsecutivePerfectScores = %d, want 2", pref.ConsecutivePerfectScores)
	}
	if pref.ResponseLength != LengthShort {
		t.Errorf("ResponseLength = %v, want short after second perfect quiz", pref.ResponseLength)
	}
	if len(saved.QuizScoreHistory) != 1 || saved.QuizScoreHistory[0] != 100 {
		t.Errorf("QuizScoreHistory = %v, want [100]", saved.QuizScoreHistory)
	}
}
