package performance

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tutorkit/tutord/internal/diagnosis"
	"github.com/tutorkit/tutord/internal/policy"
	"github.com/tutorkit/tutord/internal/quality"
)

// Level is a step-function classification of an agent's overall score.
type Level string

const (
	LevelExcellent Level = "Excellent"
	LevelGood      Level = "Good"
	LevelAverage   Level = "Average"
	LevelPoor      Level = "Poor"
	LevelCritical  Level = "Critical"
)

// LevelFor maps an overall score onto a performance level.
func LevelFor(overall float64) Level {
	switch {
	case overall >= 85:
		return LevelExcellent
	case overall >= 70:
		return LevelGood
	case overall >= 55:
		return LevelAverage
	case overall >= 40:
		return LevelPoor
	default:
		return LevelCritical
	}
}

// Metrics holds the cumulative running means for one agent.
// OverallScore averages the four core metrics; HallucinationRisk is
// tracked but excluded because it is inverted (higher is worse).
type Metrics struct {
	PedagogicalValue   float64 `bson:"pedagogical_value" json:"pedagogical_value"`
	CriticalConfidence float64 `bson:"critical_confidence" json:"critical_confidence"`
	RagRelevance       float64 `bson:"rag_relevance" json:"rag_relevance"`
	AnswerCompleteness float64 `bson:"answer_completeness" json:"answer_completeness"`
	HallucinationRisk  float64 `bson:"hallucination_risk" json:"hallucination_risk"`
	OverallScore       float64 `bson:"overall_score" json:"overall_score"`
}

// FeedbackCounts tallies explicit student feedback per agent.
type FeedbackCounts struct {
	Like    int `bson:"like" json:"like"`
	Dislike int `bson:"dislike" json:"dislike"`
	Neutral int `bson:"neutral" json:"neutral"`
}

func (f FeedbackCounts) total() int {
	return f.Like + f.Dislike + f.Neutral
}

// StudentStats tracks one student's usage of an agent.
type StudentStats struct {
	Conversations   int       `bson:"conversations" json:"conversations"`
	AverageScore    float64   `bson:"average_score" json:"average_score"`
	LastInteraction time.Time `bson:"last_interaction" json:"last_interaction"`
}

// StudentUsage tracks which students talk to an agent and how much.
type StudentUsage struct {
	StudentIDs []string                `bson:"student_ids" json:"student_ids"`
	Students   map[string]StudentStats `bson:"students" json:"students"`
}

// Summary is the persisted cumulative performance record for one agent.
type Summary struct {
	AgentID               string                 `bson:"agent_id" json:"agent_id"`
	TotalConversations    int                    `bson:"total_conversations" json:"total_conversations"`
	Metrics               Metrics                `bson:"cumulative_metrics" json:"cumulative_metrics"`
	Feedback              FeedbackCounts         `bson:"feedback_counts" json:"feedback_counts"`
	ConfusionDistribution map[diagnosis.Kind]int `bson:"confusion_distribution" json:"confusion_distribution"`
	Usage                 StudentUsage           `bson:"student_usage" json:"student_usage"`
	LastUpdated           time.Time              `bson:"last_updated" json:"last_updated"`
}

// NewSummary returns an empty summary for a new agent.
func NewSummary(agentID string) Summary {
	return Summary{
		AgentID:               agentID,
		ConfusionDistribution: make(map[diagnosis.Kind]int),
		Usage:                 StudentUsage{Students: make(map[string]StudentStats)},
	}
}

// apply folds one conversation into the summary. Per-metric values are
// exact running means clamped to [0,100].
func (s *Summary) apply(scores quality.Scores, feedback policy.Feedback, kind diagnosis.Kind, studentID string, now time.Time) {
	n := float64(s.TotalConversations)
	s.Metrics.PedagogicalValue = fold(s.Metrics.PedagogicalValue, scores.PedagogicalValue, n)
	s.Metrics.CriticalConfidence = fold(s.Metrics.CriticalConfidence, scores.CriticalConfidence, n)
	s.Metrics.RagRelevance = fold(s.Metrics.RagRelevance, scores.RagRelevance, n)
	s.Metrics.AnswerCompleteness = fold(s.Metrics.AnswerCompleteness, scores.AnswerCompleteness, n)
	s.Metrics.HallucinationRisk = fold(s.Metrics.HallucinationRisk, scores.HallucinationRisk, n)
	s.Metrics.OverallScore = (s.Metrics.PedagogicalValue + s.Metrics.CriticalConfidence +
		s.Metrics.RagRelevance + s.Metrics.AnswerCompleteness) / 4
	s.TotalConversations++

	switch feedback {
	case policy.FeedbackLike:
		s.Feedback.Like++
	case policy.FeedbackDislike:
		s.Feedback.Dislike++
	default:
		s.Feedback.Neutral++
	}

	if !kind.Valid() {
		kind = diagnosis.NoConfusion
	}
	if s.ConfusionDistribution == nil {
		s.ConfusionDistribution = make(map[diagnosis.Kind]int)
	}
	s.ConfusionDistribution[kind]++

	if studentID != "" {
		s.recordStudent(studentID, turnOverall(scores), now)
	}
	s.LastUpdated = now
}

func (s *Summary) recordStudent(studentID string, overall float64, now time.Time) {
	if s.Usage.Students == nil {
		s.Usage.Students = make(map[string]StudentStats)
	}
	stats, ok := s.Usage.Students[studentID]
	if !ok {
		s.Usage.StudentIDs = append(s.Usage.StudentIDs, studentID)
	}
	stats.AverageScore = fold(stats.AverageScore, overall, float64(stats.Conversations))
	stats.Conversations++
	stats.LastInteraction = now
	s.Usage.Students[studentID] = stats
}

func fold(mean, value, n float64) float64 {
	return clamp((mean*n + value) / (n + 1))
}

func turnOverall(scores quality.Scores) float64 {
	return (scores.PedagogicalValue + scores.CriticalConfidence +
		scores.RagRelevance + scores.AnswerCompleteness) / 4
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// SatisfactionRate is the like share of all recorded feedback, rounded
// to one decimal. Zero when no feedback exists.
func (s Summary) SatisfactionRate() float64 {
	total := s.Feedback.total()
	if total == 0 {
		return 0
	}
	return math.Round(float64(s.Feedback.Like)/float64(total)*1000) / 10
}

// Health is one traffic-light indicator.
type Health struct {
	Status string `json:"status"`
	Color  string `json:"color"`
}

// HealthIndicators are the three independent traffic lights shown on
// the monitoring dashboard.
type HealthIndicators struct {
	Quality       Health `json:"quality_health"`
	Hallucination Health `json:"hallucination_health"`
	Satisfaction  Health `json:"satisfaction_health"`
}

// Report is the derived view of a summary served to monitoring clients.
type Report struct {
	AgentID               string                 `json:"agent_id"`
	TotalConversations    int                    `json:"total_conversations"`
	Metrics               Metrics                `json:"metrics"`
	SatisfactionRate      float64                `json:"satisfaction_rate"`
	Feedback              FeedbackCounts         `json:"feedback_counts"`
	ConfusionDistribution map[diagnosis.Kind]int `json:"confusion_distribution"`
	PerformanceLevel      Level                  `json:"performance_level"`
	Health                HealthIndicators       `json:"health_indicators"`
	Recommendations       []string               `json:"recommendations"`
	LastUpdated           time.Time              `json:"last_updated"`
}

// Report derives the dashboard view from the cumulative record.
func (s Summary) Report() Report {
	rep := Report{
		AgentID:               s.AgentID,
		TotalConversations:    s.TotalConversations,
		Metrics:               s.Metrics,
		SatisfactionRate:      s.SatisfactionRate(),
		Feedback:              s.Feedback,
		ConfusionDistribution: s.ConfusionDistribution,
		PerformanceLevel:      LevelFor(s.Metrics.OverallScore),
		LastUpdated:           s.LastUpdated,
	}
	if s.TotalConversations == 0 {
		noData := Health{Status: "No Data", Color: "gray"}
		rep.PerformanceLevel = LevelCritical
		rep.Health = HealthIndicators{Quality: noData, Hallucination: noData, Satisfaction: noData}
		rep.Recommendations = []string{"Agent has no conversation data yet"}
		return rep
	}
	rep.Health = healthIndicators(s.Metrics, rep.SatisfactionRate)
	rep.Recommendations = recommendations(s)
	return rep
}

func healthIndicators(m Metrics, satisfaction float64) HealthIndicators {
	var h HealthIndicators

	switch {
	case m.OverallScore >= 80:
		h.Quality = Health{Status: "Healthy", Color: "green"}
	case m.OverallScore >= 60:
		h.Quality = Health{Status: "Warning", Color: "yellow"}
	default:
		h.Quality = Health{Status: "Critical", Color: "red"}
	}

	switch {
	case m.HallucinationRisk <= 10:
		h.Hallucination = Health{Status: "Low Risk", Color: "green"}
	case m.HallucinationRisk <= 25:
		h.Hallucination = Health{Status: "Moderate", Color: "yellow"}
	default:
		h.Hallucination = Health{Status: "High Risk", Color: "red"}
	}

	switch {
	case satisfaction >= 80:
		h.Satisfaction = Health{Status: "Excellent", Color: "green"}
	case satisfaction >= 60:
		h.Satisfaction = Health{Status: "Good", Color: "yellow"}
	default:
		h.Satisfaction = Health{Status: "Poor", Color: "red"}
	}

	return h
}

// recommendations keys off the same bands as the health indicators,
// plus per-student outliers.
func recommendations(s Summary) []string {
	var recs []string
	m := s.Metrics

	if m.OverallScore < 60 {
		recs = append(recs, "Consider updating training materials to improve response quality")
	}
	if m.HallucinationRisk > 25 {
		recs = append(recs, "Review and update the knowledge base to reduce hallucination risk")
	}
	if s.SatisfactionRate() < 60 {
		recs = append(recs, "Analyze student feedback to identify areas for improvement")
	}
	if m.CriticalConfidence < 50 {
		recs = append(recs, "Improve response confidence by enhancing knowledge coverage")
	}
	if m.RagRelevance < 60 {
		recs = append(recs, "Optimize retrieval for better context relevance")
	}

	recs = append(recs, studentOutliers(s)...)

	if len(recs) == 0 {
		recs = append(recs, "Agent is performing well, continue current configuration")
	}
	return recs
}

func studentOutliers(s Summary) []string {
	ids := make([]string, len(s.Usage.StudentIDs))
	copy(ids, s.Usage.StudentIDs)
	sort.Strings(ids)
	if len(ids) == 0 {
		return nil
	}

	var recs []string

	if len(ids) >= 2 {
		topID, topCount := "", -1
		for _, id := range ids {
			if c := s.Usage.Students[id].Conversations; c > topCount {
				topID, topCount = id, c
			}
		}
		recs = append(recs, fmt.Sprintf("Student %s drives the most conversations (%d of %d)",
			topID, topCount, s.TotalConversations))
	}

	var low, high int
	for _, id := range ids {
		if s.Usage.Students[id].AverageScore < 80 {
			low++
		} else {
			high++
		}
	}
	if low > 0 {
		recs = append(recs, fmt.Sprintf("%d of %d students average below 80, review their recent turns", low, len(ids)))
	}
	if high > 0 && low > 0 {
		recs = append(recs, fmt.Sprintf("%d of %d students average 80 or above", high, len(ids)))
	}
	return recs
}

// Store abstracts persistence of performance summaries.
type Store interface {
	GetSummary(ctx context.Context, agentID string) (Summary, bool, error)
	SaveSummary(ctx context.Context, agentID string, s Summary) error
	ListSummaries(ctx context.Context) ([]Summary, error)
}

// Aggregator folds per-turn outcomes into persisted agent summaries.
type Aggregator struct {
	store Store
	clock Clock
}

// NewAggregator creates an Aggregator backed by the given store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store, clock: realClock{}}
}

// Update folds one conversation into the agent's summary and persists
// the result. Missing agents start from an empty summary.
func (a *Aggregator) Update(ctx context.Context, agentID string, scores quality.Scores, feedback policy.Feedback, kind diagnosis.Kind, studentID string) (Summary, error) {
	s, found, err := a.store.GetSummary(ctx, agentID)
	if err != nil {
		return Summary{}, fmt.Errorf("loading performance summary for %s: %w", agentID, err)
	}
	if !found {
		s = NewSummary(agentID)
	}

	s.apply(scores, feedback, kind, studentID, a.clock.Now().UTC())

	if err := a.store.SaveSummary(ctx, agentID, s); err != nil {
		return Summary{}, fmt.Errorf("saving performance summary for %s: %w", agentID, err)
	}
	return s, nil
}

// AdjustFeedback moves one conversation's feedback tally from one
// bucket to another. Turns are folded in as neutral when they happen;
// the student's like or dislike arrives later and reclassifies them.
func (a *Aggregator) AdjustFeedback(ctx context.Context, agentID string, from, to policy.Feedback) error {
	s, found, err := a.store.GetSummary(ctx, agentID)
	if err != nil {
		return fmt.Errorf("loading performance summary for %s: %w", agentID, err)
	}
	if !found || from == to {
		return nil
	}

	dec := func(n *int) {
		if *n > 0 {
			*n--
		}
	}
	switch from {
	case policy.FeedbackLike:
		dec(&s.Feedback.Like)
	case policy.FeedbackDislike:
		dec(&s.Feedback.Dislike)
	default:
		dec(&s.Feedback.Neutral)
	}
	switch to {
	case policy.FeedbackLike:
		s.Feedback.Like++
	case policy.FeedbackDislike:
		s.Feedback.Dislike++
	default:
		s.Feedback.Neutral++
	}
	s.LastUpdated = a.clock.Now().UTC()

	if err := a.store.SaveSummary(ctx, agentID, s); err != nil {
		return fmt.Errorf("saving performance summary for %s: %w", agentID, err)
	}
	return nil
}

// Report returns the dashboard view for one agent. Unknown agents get
// an empty no-data report rather than an error.
func (a *Aggregator) Report(ctx context.Context, agentID string) (Report, error) {
	s, found, err := a.store.GetSummary(ctx, agentID)
	if err != nil {
		return Report{}, fmt.Errorf("loading performance summary for %s: %w", agentID, err)
	}
	if !found {
		s = NewSummary(agentID)
	}
	return s.Report(), nil
}
