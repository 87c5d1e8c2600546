package profile

import (
	"context"
	"fmt"

	"github.com/tutorkit/tutord/internal/diagnosis"
)

// historyWindow is how many recent turns the progression rules look at.
const historyWindow = 8

// Store defines the persistence operations the Engine needs.
// Implemented by storage.Store.
type Store interface {
	// GetPreference loads the student's preference for a subject.
	// found is false when the student has no record for the subject yet.
	GetPreference(ctx context.Context, studentID, subject string) (pref SubjectPreference, found bool, err error)

	// SavePreference persists the full preference record.
	SavePreference(ctx context.Context, studentID, subject string, pref SubjectPreference) error

	// RecentConfusions returns the confusion kinds of the student's most
	// recent turns in the subject, newest first, at most limit entries.
	RecentConfusions(ctx context.Context, studentID, subject string, limit int) ([]diagnosis.Kind, error)
}

// Engine re-evaluates a student's per-subject profile after every turn and
// every completed quiz. Three signal sources compete over response_length;
// quiz performance overrides confusion counters, which override plain streaks.
type Engine struct {
	store Store
}

// NewEngine creates an Engine over the given store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Load returns the student's normalized preference for a subject, creating
// and persisting the default record on first use.
func (e *Engine) Load(ctx context.Context, studentID, subject string) (SubjectPreference, error) {
	pref, found, err := e.store.GetPreference(ctx, studentID, subject)
	if err != nil {
		return SubjectPreference{}, fmt.Errorf("loading preference for %s/%s: %w", studentID, subject, err)
	}
	if !found {
		pref = DefaultPreference()
		if err := e.store.SavePreference(ctx, studentID, subject, pref); err != nil {
			return SubjectPreference{}, fmt.Errorf("creating preference for %s/%s: %w", studentID, subject, err)
		}
		return pref, nil
	}
	return Normalize(pref), nil
}

// EvaluateTurn records the turn's diagnosis into the profile counters, runs
// the progression rules over recent history and persists the full record.
// Called after every tutoring turn.
func (e *Engine) EvaluateTurn(ctx context.Context, studentID, subject string, kind diagnosis.Kind) (SubjectPreference, error) {
	pref, err := e.Load(ctx, studentID, subject)
	if err != nil {
		return SubjectPreference{}, err
	}

	pref = recordConfusion(pref, kind)

	recent, err := e.store.RecentConfusions(ctx, studentID, subject, historyWindow)
	if err != nil {
		return SubjectPreference{}, fmt.Errorf("loading history for %s/%s: %w", studentID, subject, err)
	}

	pref = Progress(pref, recent)
	if err := e.store.SavePreference(ctx, studentID, subject, pref); err != nil {
		return SubjectPreference{}, fmt.Errorf("saving preference for %s/%s: %w", studentID, subject, err)
	}
	return pref, nil
}

// CompleteQuiz folds a finished quiz score into the quiz counters and
// re-runs the progression rules. score and total are raw question counts.
func (e *Engine) CompleteQuiz(ctx context.Context, studentID, subject string, score, total int) (SubjectPreference, error) {
	pref, err := e.Load(ctx, studentID, subject)
	if err != nil {
		return SubjectPreference{}, err
	}

	pref = recordQuizScore(pref, score, total)

	recent, err := e.store.RecentConfusions(ctx, studentID, subject, historyWindow)
	if err != nil {
		return SubjectPreference{}, fmt.Errorf("loading history for %s/%s: %w", studentID, subject, err)
	}

	pref = Progress(pref, recent)
	if err := e.store.SavePreference(ctx, studentID, subject, pref); err != nil {
		return SubjectPreference{}, fmt.Errorf("saving preference for %s/%s: %w", studentID, subject, err)
	}
	return pref, nil
}

// recordConfusion increments the persistent confusion counter and appends the
// kind to common mistakes. Counters only ever grow; mistakes are never removed.
func recordConfusion(pref SubjectPreference, kind diagnosis.Kind) SubjectPreference {
	if kind == diagnosis.NoConfusion || !kind.Valid() {
		return pref
	}
	pref.ConfusionCounter[kind]++
	for _, m := range pref.CommonMistakes {
		if m == kind {
			return pref
		}
	}
	pref.CommonMistakes = append(pref.CommonMistakes, kind)
	return pref
}

// Quiz score bands: >=80% counts toward the perfect streak, <60% toward the
// low streak, anything between resets both.
const (
	quizPerfectPct = 80.0
	quizLowPct     = 60.0
)

func recordQuizScore(pref SubjectPreference, score, total int) SubjectPreference {
	if total <= 0 {
		return pref
	}
	pct := float64(score) / float64(total) * 100

	pref.QuizScoreHistory = append(pref.QuizScoreHistory, pct)
	if len(pref.QuizScoreHistory) > quizHistoryLimit {
		pref.QuizScoreHistory = pref.QuizScoreHistory[len(pref.QuizScoreHistory)-quizHistoryLimit:]
	}

	switch {
	case pct < quizLowPct:
		pref.ConsecutiveLowScores++
		pref.ConsecutivePerfectScores = 0
	case pct >= quizPerfectPct:
		pref.ConsecutivePerfectScores++
		pref.ConsecutiveLowScores = 0
	default:
		pref.ConsecutiveLowScores = 0
		pref.ConsecutivePerfectScores = 0
	}
	return pref
}

// Progress applies the progression rules to a normalized preference given the
// confusion kinds of recent turns, newest first. Pure: returns the updated
// record without touching storage.
func Progress(pref SubjectPreference, recent []diagnosis.Kind) SubjectPreference {
	correct, wrong := scanStreaks(recent)
	window := countWindow(recent)

	// Level ladder moves one step per 3-turn streak.
	if correct >= 3 {
		pref.Level = pref.Level.Up()
	}
	if wrong >= 3 {
		pref.Level = pref.Level.Down()
	}

	// Response length: strict signal priority, one transition per evaluation.
	quizShrink := pref.ConsecutivePerfectScores >= 2
	quizGrow := pref.ConsecutiveLowScores >= 2
	confusionGrow := confusionDegraded(pref.ConfusionCounter)

	switch {
	case quizShrink:
		pref.ResponseLength = pref.ResponseLength.Shrink()
	case quizGrow:
		pref.ResponseLength = pref.ResponseLength.Grow()
	case confusionGrow:
		pref.ResponseLength = pref.ResponseLength.Grow()
	case correct >= 3:
		pref.ResponseLength = pref.ResponseLength.Shrink()
	case wrong >= 3:
		pref.ResponseLength = pref.ResponseLength.Grow()
	}

	// Repeated confusion of one kind in the window switches to example-driven
	// teaching.
	for _, n := range window {
		if n >= 3 {
			pref.LearningStyle = "examples"
			break
		}
	}

	switch {
	case quizGrow || confusionGrow:
		pref.IncludeExample = true
	case pref.Level == LevelAdvanced:
		pref.IncludeExample = false
	default:
		pref.IncludeExample = true
	}

	return pref
}

// confusionDegraded reports whether the persisted counters signal degradation:
// formula confusion twice, or any other kind three times.
func confusionDegraded(counter map[diagnosis.Kind]int) bool {
	for kind, n := range counter {
		if kind == diagnosis.FormulaConfusion && n >= 2 {
			return true
		}
		if kind != diagnosis.FormulaConfusion && n >= 3 {
			return true
		}
	}
	return false
}

// scanStreaks walks recent turns newest first and returns the length of the
// leading confusion-free run and the leading confused run. A single opposite
// outcome terminates the scan, so exactly one of the two is non-zero.
func scanStreaks(recent []diagnosis.Kind) (correct, wrong int) {
	for _, kind := range recent {
		if kind == diagnosis.NoConfusion {
			if wrong > 0 {
				return
			}
			correct++
		} else {
			if correct > 0 {
				return
			}
			wrong++
		}
	}
	return
}

// countWindow tallies confusion kinds over the whole window.
func countWindow(recent []diagnosis.Kind) map[diagnosis.Kind]int {
	counts := make(map[diagnosis.Kind]int)
	for _, kind := range recent {
		if kind != diagnosis.NoConfusion {
			counts[kind]++
		}
	}
	return counts
}
