package profile

import "github.com/tutorkit/tutord/internal/diagnosis"

// Level is the teaching level of explanations for a subject.
type Level string

const (
	LevelBasic        Level = "basic"
	LevelIntermediate Level = "intermediate"
	LevelAdvanced     Level = "advanced"
)

// Up returns the next level toward advanced.
func (l Level) Up() Level {
	switch l {
	case LevelBasic:
		return LevelIntermediate
	case LevelIntermediate:
		return LevelAdvanced
	}
	return l
}

// Down returns the previous level toward basic.
func (l Level) Down() Level {
	switch l {
	case LevelAdvanced:
		return LevelIntermediate
	case LevelIntermediate:
		return LevelBasic
	}
	return l
}

// ResponseLength is the target answer length, ordered short < long < very_long.
type ResponseLength string

const (
	LengthShort    ResponseLength = "short"
	LengthLong     ResponseLength = "long"
	LengthVeryLong ResponseLength = "very_long"
)

// Shrink returns the next length toward short.
func (r ResponseLength) Shrink() ResponseLength {
	switch r {
	case LengthVeryLong:
		return LengthLong
	case LengthLong:
		return LengthShort
	}
	return r
}

// Grow returns the next length toward very_long.
func (r ResponseLength) Grow() ResponseLength {
	switch r {
	case LengthShort:
		return LengthLong
	case LengthLong:
		return LengthVeryLong
	}
	return r
}

// quizHistoryLimit bounds the trailing quiz score window.
const quizHistoryLimit = 5

// SubjectPreference is a student's learning profile for one subject. The full
// record is persisted after every progression evaluation so legacy records
// missing newer fields are backfilled by Normalize on read.
type SubjectPreference struct {
	Level                    Level                  `bson:"level" json:"level"`
	Tone                     string                 `bson:"tone" json:"tone"`
	LearningStyle            string                 `bson:"learning_style" json:"learning_style"`
	ResponseLength           ResponseLength         `bson:"response_length" json:"response_length"`
	IncludeExample           bool                   `bson:"include_example" json:"include_example"`
	CommonMistakes           []diagnosis.Kind       `bson:"common_mistakes" json:"common_mistakes"`
	ConfusionCounter         map[diagnosis.Kind]int `bson:"confusion_counter" json:"confusion_counter"`
	QuizScoreHistory         []float64              `bson:"quiz_score_history" json:"quiz_score_history"`
	ConsecutiveLowScores     int                    `bson:"consecutive_low_scores" json:"consecutive_low_scores"`
	ConsecutivePerfectScores int                    `bson:"consecutive_perfect_scores" json:"consecutive_perfect_scores"`
}

// DefaultPreference returns the profile a student starts with in a new subject.
func DefaultPreference() SubjectPreference {
	return SubjectPreference{
		Level:            LevelBasic,
		Tone:             "friendly",
		LearningStyle:    "step-by-step",
		ResponseLength:   LengthLong,
		IncludeExample:   true,
		CommonMistakes:   []diagnosis.Kind{},
		ConfusionCounter: map[diagnosis.Kind]int{},
		QuizScoreHistory: []float64{},
	}
}

// Normalize backfills missing or invalid fields with defaults and bounds the
// quiz history. Applied to every record on load.
func Normalize(p SubjectPreference) SubjectPreference {
	switch p.Level {
	case LevelBasic, LevelIntermediate, LevelAdvanced:
	default:
		p.Level = LevelBasic
	}
	switch p.ResponseLength {
	case LengthShort, LengthLong, LengthVeryLong:
	default:
		p.ResponseLength = LengthLong
	}
	if p.Tone == "" {
		p.Tone = "friendly"
	}
	if p.LearningStyle == "" {
		p.LearningStyle = "step-by-step"
	}
	if p.CommonMistakes == nil {
		p.CommonMistakes = []diagnosis.Kind{}
	}
	if p.ConfusionCounter == nil {
		p.ConfusionCounter = map[diagnosis.Kind]int{}
	}
	if p.QuizScoreHistory == nil {
		p.QuizScoreHistory = []float64{}
	}
	if len(p.QuizScoreHistory) > quizHistoryLimit {
		p.QuizScoreHistory = p.QuizScoreHistory[len(p.QuizScoreHistory)-quizHistoryLimit:]
	}
	return p
}
