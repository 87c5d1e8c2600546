package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tutorkit/tutord/internal/diagnosis"
	"github.com/tutorkit/tutord/internal/performance"
	"github.com/tutorkit/tutord/internal/policy"
	"github.com/tutorkit/tutord/internal/profile"
	"github.com/tutorkit/tutord/internal/quality"
	"github.com/tutorkit/tutord/internal/quiz"
	"github.com/tutorkit/tutord/internal/retrieval"
	"github.com/tutorkit/tutord/internal/session"
	"github.com/tutorkit/tutord/internal/storage"
)

const defaultTopK = 3

// noMaterialResponse is the safe answer when the learning materials have
// nothing relevant. The model never gets to fall back on prior knowledge.
const noMaterialResponse = "I couldn't find anything about that in your study materials. " +
	"Could you rephrase the question, or ask about a topic from your current syllabus?"

// Retriever finds curriculum chunks for a query.
// Implemented by retrieval.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query, subject string, topK int) ([]retrieval.Chunk, error)
}

// Chatter is the slice of the LLM client the tutor needs for answers.
type Chatter interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Diagnoser classifies the question's misconception.
// Implemented by diagnosis.Diagnoser.
type Diagnoser interface {
	Diagnose(ctx context.Context, question, subject, class string) diagnosis.Diagnosis
}

// Scorer rates the generated answer. Implemented by quality.Scorer.
type Scorer interface {
	Score(ctx context.Context, query, response string, chunks []retrieval.Chunk) quality.Scores
}

// ProfileEngine loads and progresses per-subject student profiles.
// Implemented by profile.Engine.
type ProfileEngine interface {
	Load(ctx context.Context, studentID, subject string) (profile.SubjectPreference, error)
	EvaluateTurn(ctx context.Context, studentID, subject string, kind diagnosis.Kind) (profile.SubjectPreference, error)
	CompleteQuiz(ctx context.Context, studentID, subject string, score, total int) (profile.SubjectPreference, error)
}

// Rewriter executes the optimizer actions that touch the query or context.
// Implemented by policy.Optimizer.
type Rewriter interface {
	RewriteQuery(ctx context.Context, query, contextText string) string
	Filter(chunks []retrieval.Chunk) []retrieval.Chunk
}

// TurnStore persists conversation turns and feeds the offline trainer.
// Implemented by storage.Students.
type TurnStore interface {
	AddTurn(ctx context.Context, studentID, subject string, turn storage.Turn) (string, error)
	SetFeedback(ctx context.Context, studentID, subject, turnID string, feedback policy.Feedback) (policy.Feedback, error)
	FeedbackTurns(ctx context.Context) ([]policy.FeedbackTurn, error)
}

// QuizGenerator builds quizzes from conversation history.
// Implemented by quiz.Generator.
type QuizGenerator interface {
	Generate(ctx context.Context, subject, topic string, history []session.Turn, numQuestions int) ([]quiz.Question, error)
}

// PerformanceSink receives per-turn metric updates.
// Implemented by performance.Updater.
type PerformanceSink interface {
	Enqueue(u performance.Update) bool
}

// FeedbackRecorder reclassifies a turn's feedback in the agent summary.
// Implemented by performance.Aggregator.
type FeedbackRecorder interface {
	AdjustFeedback(ctx context.Context, agentID string, from, to policy.Feedback) error
}

// Trainer applies preference updates to the policy weights.
// Implemented by policy.Trainer.
type Trainer interface {
	Train(turns []policy.FeedbackTurn) (int, error)
}

// Deps bundles everything a Tutor needs. Kept as a struct because the
// dependency list is long and mostly optional-free.
type Deps struct {
	Retriever   Retriever
	Chatter     Chatter
	Diagnoser   Diagnoser
	Scorer      Scorer
	Profiles    ProfileEngine
	Policy      policy.Policy
	Rewriter    Rewriter
	Turns       TurnStore
	Quizzes     QuizGenerator
	QuizRuns    *quiz.Sessions
	Sessions    *session.Store
	Performance PerformanceSink
	Recorder    FeedbackRecorder
	Trainer     Trainer

	// TopK is chunks per retrieval; defaults to 3.
	TopK int
}

// Tutor orchestrates one tutoring turn end to end: intent detection,
// quiz mode, diagnosis, the policy-driven retrieval loop, generation,
// scoring, profile progression and persistence.
type Tutor struct {
	deps Deps
}

// NewTutor creates a Tutor from its dependencies.
func NewTutor(deps Deps) *Tutor {
	if deps.TopK <= 0 {
		deps.TopK = defaultTopK
	}
	return &Tutor{deps: deps}
}

// AskRequest is one student message.
type AskRequest struct {
	StudentID string `json:"student_id"`
	Subject   string `json:"subject"`
	Class     string `json:"class"`
	AgentID   string `json:"agent_id"`
	Query     string `json:"query"`
}

// AskResponse is the tutor's reply plus everything observability and
// the feedback loop need about the turn.
type AskResponse struct {
	TurnID    string                    `json:"turn_id,omitempty"`
	Intent    Intent                    `json:"intent"`
	Response  string                    `json:"response"`
	Confusion diagnosis.Kind            `json:"confusion_type,omitempty"`
	Scores    quality.Scores            `json:"quality_scores"`
	Profile   profile.SubjectPreference `json:"profile"`
	Quiz      *quiz.QuestionView        `json:"quiz,omitempty"`
}

// Ask handles one student message. It never fails a turn on degraded
// dependencies; only an empty query is an error.
func (t *Tutor) Ask(ctx context.Context, req AskRequest) (AskResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return AskResponse{}, errors.New("query cannot be empty")
	}
	if req.AgentID == "" {
		req.AgentID = req.Subject
	}

	// An in-progress quiz captures every message until it finishes or
	// the student bails out.
	if t.deps.QuizRuns.Active(req.StudentID) {
		return t.quizTurn(ctx, req)
	}

	pref, err := t.deps.Profiles.Load(ctx, req.StudentID, req.Subject)
	if err != nil {
		slog.Warn("loading profile failed, using defaults", "student", req.StudentID, "error", err)
		pref = profile.DefaultPreference()
	}

	intent, topic := DetectIntent(req.Query)
	if intent == IntentQuiz {
		return t.startQuiz(ctx, req, pref, topic)
	}

	diag := t.deps.Diagnoser.Diagnose(ctx, req.Query, req.Subject, req.Class)

	state := policy.State{
		OriginalQuery: req.Query,
		CurrentQuery:  req.Query,
		Intent:        string(intent),
	}
	if diag.Kind != diagnosis.NoConfusion {
		state.ConfusionKinds = []diagnosis.Kind{diag.Kind}
	}

	history := t.deps.Sessions.Recent(req.StudentID, req.Subject)
	state = t.optimize(ctx, req, state, history)

	// The policy can skip straight to generation before any retrieval
	// ran; give the raw query one plain shot before declaring the
	// materials empty.
	if len(state.Context) == 0 && !state.Taken(policy.RewriteQuery) && !state.Taken(policy.ExpandContext) {
		state.Context = t.retrieve(ctx, state.CurrentQuery, req.Subject, t.deps.TopK)
	}

	resp := AskResponse{
		Intent:    intent,
		Confusion: diag.Kind,
		Profile:   pref,
	}

	if len(state.Context) == 0 {
		resp.Response = noMaterialResponse
		resp.Scores = quality.Defaults()
		resp.Scores.RagRelevance = 0
		// The diagnosis still counts toward progression even though no
		// answer was generated.
		if updated, err := t.deps.Profiles.EvaluateTurn(ctx, req.StudentID, req.Subject, diag.Kind); err != nil {
			slog.Warn("profile progression failed", "student", req.StudentID, "error", err)
		} else {
			resp.Profile = updated
		}
		t.finishTurn(ctx, req, state, &resp)
		return resp, nil
	}

	prompt := buildTeacherPrompt(pref, req.Class, req.Subject, diag.Kind,
		history, retrieval.JoinChunks(state.Context), state.CurrentQuery)
	answer, err := t.deps.Chatter.Generate(ctx, teacherSystem, prompt)
	if err != nil || strings.TrimSpace(answer) == "" {
		slog.Warn("answer generation failed", "student", req.StudentID, "error", err)
		answer = "Sorry, I'm having trouble answering right now. Please try again in a moment."
	}
	resp.Response = answer
	resp.Scores = t.deps.Scorer.Score(ctx, req.Query, answer, state.Context)

	if updated, err := t.deps.Profiles.EvaluateTurn(ctx, req.StudentID, req.Subject, diag.Kind); err != nil {
		slog.Warn("profile progression failed", "student", req.StudentID, "error", err)
	} else {
		resp.Profile = updated
	}

	t.finishTurn(ctx, req, state, &resp)
	return resp, nil
}

// optimize runs the policy loop: select an action, execute it, repeat
// until the policy decides to generate. The policy itself bounds the
// number of non-generate steps.
func (t *Tutor) optimize(ctx context.Context, req AskRequest, state policy.State, history []session.Turn) policy.State {
	for {
		action := t.deps.Policy.SelectAction(state)
		state.PreviousActions = append(state.PreviousActions, action)

		switch action {
		case policy.GenerateResponse:
			return state
		case policy.RewriteQuery:
			state.CurrentQuery = t.deps.Rewriter.RewriteQuery(ctx, state.CurrentQuery, historyText(history))
			state.Context = t.retrieve(ctx, state.CurrentQuery, req.Subject, t.deps.TopK)
		case policy.ExpandContext:
			state.Context = t.retrieve(ctx, state.CurrentQuery, req.Subject, 2*t.deps.TopK)
		case policy.FilterContext:
			state.Context = t.deps.Rewriter.Filter(state.Context)
		}
	}
}

// retrieve swallows errors: an empty context is a normal state the rest
// of the turn knows how to handle.
func (t *Tutor) retrieve(ctx context.Context, query, subject string, topK int) []retrieval.Chunk {
	chunks, err := t.deps.Retriever.Retrieve(ctx, query, subject, topK)
	if err != nil {
		if !errors.Is(err, retrieval.ErrNoRelevantMaterial) {
			slog.Warn("retrieval failed", "subject", subject, "error", err)
		}
		return nil
	}
	return chunks
}

// finishTurn persists the turn, feeds the performance pipeline and the
// short-term session memory. All best-effort; the student already has
// an answer.
func (t *Tutor) finishTurn(ctx context.Context, req AskRequest, state policy.State, resp *AskResponse) {
	turnID, err := t.deps.Turns.AddTurn(ctx, req.StudentID, req.Subject, storage.Turn{
		Query:         req.Query,
		Response:      resp.Response,
		Feedback:      policy.FeedbackNeutral,
		ConfusionKind: resp.Confusion,
		Scores:        resp.Scores,
		StateKey:      state.Key(),
		Actions:       state.PreviousActions,
	})
	if err != nil {
		slog.Warn("storing turn failed", "student", req.StudentID, "error", err)
	} else {
		resp.TurnID = turnID
	}

	t.deps.Performance.Enqueue(performance.Update{
		AgentID:   req.AgentID,
		StudentID: req.StudentID,
		Scores:    resp.Scores,
		Feedback:  policy.FeedbackNeutral,
		Confusion: resp.Confusion,
	})

	t.deps.Sessions.Append(req.StudentID, req.Subject, req.Query, resp.Response)
}

// startQuiz generates a quiz from the student's recent session and
// switches the conversation into quiz mode.
func (t *Tutor) startQuiz(ctx context.Context, req AskRequest, pref profile.SubjectPreference, topic string) (AskResponse, error) {
	resp := AskResponse{Intent: IntentQuiz, Profile: pref, Confusion: diagnosis.NoConfusion}

	history := t.deps.Sessions.Recent(req.StudentID, req.Subject)
	questions, err := t.deps.Quizzes.Generate(ctx, req.Subject, topic, history, 0)
	if err != nil {
		slog.Warn("quiz generation failed", "student", req.StudentID, "topic", topic, "error", err)
		resp.Response = "Sorry, I couldn't generate a quiz right now. Chat with me about the topic first, then ask again."
		return resp, nil
	}

	view, err := t.deps.QuizRuns.Start(req.StudentID, req.Subject, topic, questions)
	if err != nil {
		slog.Warn("quiz start failed", "student", req.StudentID, "error", err)
		resp.Response = "Sorry, I couldn't start the quiz. Please try again."
		return resp, nil
	}

	resp.Response = fmt.Sprintf("Quiz started! %d questions. Reply with A, B, C or D.", view.TotalQuestions)
	resp.Quiz = &view
	return resp, nil
}

// quizTurn handles a message while a quiz is in progress: an answer
// letter, or a bail-out command.
func (t *Tutor) quizTurn(ctx context.Context, req AskRequest) (AskResponse, error) {
	resp := AskResponse{Intent: IntentQuiz, Confusion: diagnosis.NoConfusion}

	if isQuizExit(req.Query) {
		if _, err := t.deps.QuizRuns.Finish(req.StudentID); err != nil {
			slog.Warn("cancelling quiz failed", "student", req.StudentID, "error", err)
		}
		resp.Response = "Quiz cancelled. Back to normal chat."
		return resp, nil
	}

	result, err := t.deps.QuizRuns.Submit(req.StudentID, req.Query)
	if err != nil {
		resp.Response = "Please reply with A, B, C, or D. Say \"exit quiz\" to stop."
		return resp, nil
	}

	grade := fmt.Sprintf("Incorrect. Correct answer: %s", result.CorrectAnswer)
	if result.IsCorrect {
		grade = "Correct!"
	}

	if result.Completed {
		final, err := t.deps.QuizRuns.Finish(req.StudentID)
		if err != nil {
			slog.Warn("finishing quiz failed", "student", req.StudentID, "error", err)
			resp.Response = grade
			return resp, nil
		}
		// Credit the subject the quiz was started under, not whatever
		// subject the final answer's request carries.
		if updated, err := t.deps.Profiles.CompleteQuiz(ctx, req.StudentID, final.Subject, final.Score, final.Total); err != nil {
			slog.Warn("recording quiz result failed", "student", req.StudentID, "error", err)
		} else {
			resp.Profile = updated
		}
		resp.Response = fmt.Sprintf("%s\nQuiz complete! Final score: %d/%d", grade, final.Score, final.Total)
		return resp, nil
	}

	next, err := t.deps.QuizRuns.Current(req.StudentID)
	if err != nil {
		slog.Warn("loading next quiz question failed", "student", req.StudentID, "error", err)
		resp.Response = grade
		return resp, nil
	}
	resp.Response = grade
	resp.Quiz = &next
	return resp, nil
}

func isQuizExit(query string) bool {
	q := strings.ToUpper(strings.TrimSpace(query))
	switch q {
	case "EXIT", "QUIT", "STOP QUIZ", "EXIT QUIZ", "STOP":
		return true
	}
	return false
}

// Feedback records like/dislike on a stored turn and reclassifies it
// in the agent's performance summary. agentID falls back to the subject
// like Ask does.
func (t *Tutor) Feedback(ctx context.Context, studentID, subject, agentID, turnID string, fb policy.Feedback) error {
	if fb != policy.FeedbackLike && fb != policy.FeedbackDislike {
		return fmt.Errorf("feedback must be like or dislike, got %q", fb)
	}
	prev, err := t.deps.Turns.SetFeedback(ctx, studentID, subject, turnID, fb)
	if err != nil {
		return err
	}

	if agentID == "" {
		agentID = subject
	}
	// Reclassify from whatever the turn carried before, so repeated
	// feedback on the same turn moves one count, not two.
	if err := t.deps.Recorder.AdjustFeedback(ctx, agentID, prev, fb); err != nil {
		slog.Warn("adjusting feedback counts failed", "agent", agentID, "error", err)
	}
	return nil
}

// Train runs one offline preference-training pass over all stored
// feedback and returns the number of weight updates applied.
func (t *Tutor) Train(ctx context.Context) (int, error) {
	turns, err := t.deps.Turns.FeedbackTurns(ctx)
	if err != nil {
		return 0, fmt.Errorf("collecting training data: %w", err)
	}
	return t.deps.Trainer.Train(turns)
}
