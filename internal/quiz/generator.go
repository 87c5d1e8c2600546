package quiz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tutorkit/tutord/internal/llm"
	"github.com/tutorkit/tutord/internal/session"
)

const (
	generateTimeout     = 30 * time.Second
	defaultNumQuestions = 5
	optionCount         = 4
)

// ErrNoMaterial is returned when neither history nor a topic gives the
// generator anything to quiz on.
var ErrNoMaterial = errors.New("no conversation history or topic to build a quiz from")

// Question is one validated multiple-choice item.
type Question struct {
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// Chatter is the slice of the LLM client the generator needs.
type Chatter interface {
	GenerateJSON(ctx context.Context, system, user string) (string, error)
}

// Generator builds multiple-choice quizzes from a student's recent
// conversation history.
type Generator struct {
	client Chatter
}

// NewGenerator creates a Generator using the given chat client.
func NewGenerator(client Chatter) *Generator {
	return &Generator{client: client}
}

const generateSystem = "You are an exam generator that creates personalized quizzes from student learning history. Return ONLY valid JSON."

// Generate produces up to numQuestions validated questions. When a
// topic is given, history is narrowed to topic-relevant turns and all
// questions must cover that topic. Items with the wrong option count or
// an answer missing from the options are discarded.
func (g *Generator) Generate(ctx context.Context, subject, topic string, history []session.Turn, numQuestions int) ([]Question, error) {
	if numQuestions <= 0 {
		numQuestions = defaultNumQuestions
	}
	if len(history) == 0 && topic == "" {
		return nil, ErrNoMaterial
	}

	if topic != "" {
		if relevant := filterByTopic(history, topic); len(relevant) > 0 {
			history = relevant
		}
	}

	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	raw, err := g.client.GenerateJSON(ctx, generateSystem, buildPrompt(subject, topic, history, numQuestions))
	if err != nil {
		return nil, fmt.Errorf("generating quiz: %w", err)
	}

	var payload struct {
		Quiz []Question `json:"quiz"`
	}
	if err := llm.DecodeJSON(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing quiz JSON: %w", err)
	}

	questions := normalize(payload.Quiz, numQuestions)
	if len(questions) == 0 {
		return nil, errors.New("no valid questions in generated quiz")
	}
	return questions, nil
}

// filterByTopic keeps turns mentioning any topic keyword longer than
// two characters.
func filterByTopic(history []session.Turn, topic string) []session.Turn {
	keywords := strings.Fields(strings.ToLower(topic))
	var out []session.Turn
	for _, turn := range history {
		text := strings.ToLower(turn.Query + " " + turn.Response)
		for _, kw := range keywords {
			if len(kw) > 2 && strings.Contains(text, kw) {
				out = append(out, turn)
				break
			}
		}
	}
	return out
}

// normalize drops malformed items: missing fields, wrong option count,
// or an answer that is not one of the options.
func normalize(items []Question, limit int) []Question {
	var out []Question
	for _, q := range items {
		q.Text = strings.TrimSpace(q.Text)
		if q.Text == "" || len(q.Options) != optionCount {
			continue
		}
		for i, opt := range q.Options {
			q.Options[i] = strings.TrimSpace(opt)
		}
		q.Answer = strings.TrimSpace(q.Answer)
		if !containsOption(q.Options, q.Answer) {
			continue
		}
		out = append(out, q)
		if len(out) == limit {
			break
		}
	}
	return out
}

func containsOption(options []string, answer string) bool {
	for _, opt := range options {
		if opt == answer {
			return true
		}
	}
	return false
}

func buildPrompt(subject, topic string, history []session.Turn, numQuestions int) string {
	topicRule := "The quiz should be based on the student's recent learning conversations."
	if topic != "" {
		topicRule = fmt.Sprintf("The quiz MUST be strictly about this topic: %s. Focus on concepts from the student's learning history.", topic)
	}

	var convo strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&convo, "Student: %s\nTutor: %s\n", turn.Query, turn.Response)
	}
	material := convo.String()
	if material == "" {
		material = "(no prior conversations, quiz on the topic directly)"
	}

	return fmt.Sprintf(`Generate a quiz for the subject %q.

CRITICAL RULES (DO NOT BREAK):
- Generate EXACTLY %d multiple-choice questions
- Return ONLY valid JSON, no markdown, no text before or after
- Each question MUST include:
  - question (string)
  - options (array of exactly 4 strings)
  - answer (string matching one option)
- Base questions on the student's actual learning conversations
- Test understanding, not just memorization

%s

Student Learning Context:
%s

JSON FORMAT (ONLY THIS):
{"quiz": [{"question": "...", "options": ["...", "...", "...", "..."], "answer": "..."}]}`,
		subject, numQuestions, topicRule, material)
}
