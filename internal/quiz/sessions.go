package quiz

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNoActiveQuiz is returned when the student has no quiz in
	// progress.
	ErrNoActiveQuiz = errors.New("no active quiz for this student")
	// ErrQuizFinished is returned on submissions after the last
	// question.
	ErrQuizFinished = errors.New("quiz already finished")
	// ErrInvalidOption is returned when the answer is not A, B, C or
	// D.
	ErrInvalidOption = errors.New("answer must be A, B, C or D")
)

// Answer records one graded submission.
type Answer struct {
	Question  string `json:"question"`
	Selected  string `json:"selected"`
	Correct   string `json:"correct"`
	IsCorrect bool   `json:"is_correct"`
}

type activeQuiz struct {
	id        string
	subject   string
	topic     string
	questions []Question
	index     int
	score     int
	answers   []Answer
}

// QuestionView is the client-facing shape of the current question. The
// answer is deliberately absent.
type QuestionView struct {
	QuizID         string   `json:"quiz_id"`
	QuestionNumber int      `json:"question_number"`
	TotalQuestions int      `json:"total_questions"`
	Question       string   `json:"question"`
	Options        []string `json:"options"`
}

// SubmitResult is the outcome of grading one answer.
type SubmitResult struct {
	IsCorrect     bool   `json:"is_correct"`
	CorrectAnswer string `json:"correct_answer"`
	Completed     bool   `json:"quiz_completed"`
}

// FinalResult summarizes a finished or cancelled quiz.
type FinalResult struct {
	QuizID  string   `json:"quiz_id"`
	Subject string   `json:"subject"`
	Score   int      `json:"score"`
	Total   int      `json:"total"`
	Answers []Answer `json:"answers"`
}

// Sessions tracks at most one in-progress quiz per student, in memory.
// A new quiz replaces any unfinished one.
type Sessions struct {
	mu     sync.Mutex
	active map[string]*activeQuiz
}

// NewSessions creates an empty session tracker.
func NewSessions() *Sessions {
	return &Sessions{active: make(map[string]*activeQuiz)}
}

// Start begins a quiz for the student and returns the first question.
func (s *Sessions) Start(studentID, subject, topic string, questions []Question) (QuestionView, error) {
	if len(questions) == 0 {
		return QuestionView{}, errors.New("cannot start a quiz with no questions")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := &activeQuiz{
		id:        uuid.New().String(),
		subject:   subject,
		topic:     topic,
		questions: questions,
	}
	s.active[studentID] = q
	return view(q), nil
}

// Active reports whether the student has a quiz in progress.
func (s *Sessions) Active(studentID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[studentID]
	return ok
}

// Current returns the question awaiting an answer.
func (s *Sessions) Current(studentID string) (QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.active[studentID]
	if !ok {
		return QuestionView{}, ErrNoActiveQuiz
	}
	if q.index >= len(q.questions) {
		return QuestionView{}, ErrQuizFinished
	}
	return view(q), nil
}

// Submit grades one answer (a letter A-D) and advances the quiz.
func (s *Sessions) Submit(studentID, choice string) (SubmitResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.active[studentID]
	if !ok {
		return SubmitResult{}, ErrNoActiveQuiz
	}
	if q.index >= len(q.questions) {
		return SubmitResult{}, ErrQuizFinished
	}

	letter := strings.ToUpper(strings.TrimSpace(choice))
	if len(letter) != 1 || letter[0] < 'A' || letter[0] > 'D' {
		return SubmitResult{}, ErrInvalidOption
	}

	current := q.questions[q.index]
	selected := current.Options[letter[0]-'A']
	correct := selected == current.Answer
	if correct {
		q.score++
	}
	q.answers = append(q.answers, Answer{
		Question:  current.Text,
		Selected:  selected,
		Correct:   current.Answer,
		IsCorrect: correct,
	})
	q.index++

	return SubmitResult{
		IsCorrect:     correct,
		CorrectAnswer: current.Answer,
		Completed:     q.index >= len(q.questions),
	}, nil
}

// Finish removes the quiz and returns its final result. Used both on
// completion and on cancellation.
func (s *Sessions) Finish(studentID string) (FinalResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.active[studentID]
	if !ok {
		return FinalResult{}, ErrNoActiveQuiz
	}
	delete(s.active, studentID)

	return FinalResult{
		QuizID:  q.id,
		Subject: q.subject,
		Score:   q.score,
		Total:   len(q.questions),
		Answers: q.answers,
	}, nil
}

func view(q *activeQuiz) QuestionView {
	current := q.questions[q.index]
	options := make([]string, len(current.Options))
	copy(options, current.Options)
	return QuestionView{
		QuizID:         q.id,
		QuestionNumber: q.index + 1,
		TotalQuestions: len(q.questions),
		Question:       current.Text,
		Options:        options,
	}
}
