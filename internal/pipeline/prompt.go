package pipeline

import (
	"fmt"
	"strings"

	"github.com/tutorkit/tutord/internal/diagnosis"
	"github.com/tutorkit/tutord/internal/profile"
	"github.com/tutorkit/tutord/internal/session"
)

// teacherSystem is the base persona. The per-turn prompt layers class,
// preferences, materials and history on top of it.
const teacherSystem = `You are an expert teacher AI.

Core rules:
- Be clear, calm, and encouraging
- Never shame or discourage the student
- Prefer intuitive explanations before formulas
- Answer ONLY from the provided study materials, never invent facts
- Adjust the explanation to the student's level and preferences`

// buildTeacherPrompt assembles the preference-aware tutoring prompt:
// class and subject, detected confusion, the full preference block,
// retrieved materials, recent session turns, and hard length
// directives for short answers.
func buildTeacherPrompt(pref profile.SubjectPreference, class, subject string, kind diagnosis.Kind, history []session.Turn, materials, question string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Class: %s\nSubject: %s\nDetected confusion: %s\n", class, subject, kind)

	exampleRule := "Include ONE brief example only."
	if !pref.IncludeExample {
		exampleRule = "Do NOT add examples."
	}
	fmt.Fprintf(&b, `
Student preferences:
- Level: %s
- Tone: %s
- Learning style: %s
- Response length: %s
- Common mistakes to address: %s

Rules:
- Follow the student preferences strictly
- Teach at %s level, be %s, use %s style
- %s
- Address the detected confusion gently if present
- Be motivating and supportive
- If the student asks a follow-up, use the previous conversation to answer
`,
		pref.Level, pref.Tone, pref.LearningStyle, pref.ResponseLength, mistakes(pref),
		pref.Level, pref.Tone, pref.LearningStyle, exampleRule)

	if materials != "" {
		fmt.Fprintf(&b, "\nStudy materials:\n%s\n", materials)
	}

	if text := historyText(history); text != "" {
		fmt.Fprintf(&b, "\nPrevious conversation:\n%s", text)
	}

	switch pref.ResponseLength {
	case profile.LengthShort:
		b.WriteString("\nCRITICAL: Keep the answer SHORT, 2-4 sentences, one short paragraph at most.\n")
	case profile.LengthVeryLong:
		b.WriteString("\nGive a thorough, detailed explanation.\n")
	}

	fmt.Fprintf(&b, "\nCurrent Question:\n%s\n", question)
	return b.String()
}

func mistakes(pref profile.SubjectPreference) string {
	if len(pref.CommonMistakes) == 0 {
		return "none"
	}
	parts := make([]string, len(pref.CommonMistakes))
	for i, k := range pref.CommonMistakes {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

func historyText(history []session.Turn) string {
	var b strings.Builder
	for _, turn := range history {
		fmt.Fprintf(&b, "Previous Q: %s\nPrevious A: %s\n", turn.Query, turn.Response)
	}
	return b.String()
}
