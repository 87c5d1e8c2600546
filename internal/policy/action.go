package policy

// Action is one step the query optimizer can take within a tutoring turn.
type Action string

const (
	RewriteQuery     Action = "rewrite_query"
	ExpandContext    Action = "expand_context"
	FilterContext    Action = "filter_context"
	GenerateResponse Action = "generate_response"
)

// Actions lists the full action space in a stable order.
func Actions() []Action {
	return []Action{RewriteQuery, ExpandContext, FilterContext, GenerateResponse}
}

// Feedback is the student's reaction to a tutoring turn.
type Feedback string

const (
	FeedbackLike    Feedback = "like"
	FeedbackDislike Feedback = "dislike"
	FeedbackNeutral Feedback = "neutral"
)

// Valid reports whether f is one of the known feedback values.
func (f Feedback) Valid() bool {
	switch f {
	case FeedbackLike, FeedbackDislike, FeedbackNeutral:
		return true
	}
	return false
}
