package storage

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tutorkit/tutord/internal/performance"
)

// Compile-time check that Summaries implements performance.Store.
var _ performance.Store = (*Summaries)(nil)

// Summaries persists cumulative agent performance records, one
// document per agent keyed by agent_id.
type Summaries struct {
	col *mongo.Collection
}

// NewSummaries creates the repository on the agent performance
// collection.
func NewSummaries(db *mongo.Database) *Summaries {
	return &Summaries{col: db.Collection("agent_performance_summary")}
}

// GetSummary loads one agent's record.
func (s *Summaries) GetSummary(ctx context.Context, agentID string) (performance.Summary, bool, error) {
	var summary performance.Summary
	err := s.col.FindOne(ctx, bson.M{"agent_id": agentID}).Decode(&summary)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return performance.Summary{}, false, nil
	}
	if err != nil {
		return performance.Summary{}, false, fmt.Errorf("loading summary for %s: %w", agentID, err)
	}
	return summary, true, nil
}

// SaveSummary upserts one agent's record by its unique agent_id.
func (s *Summaries) SaveSummary(ctx context.Context, agentID string, summary performance.Summary) error {
	summary.AgentID = agentID
	_, err := s.col.ReplaceOne(ctx,
		bson.M{"agent_id": agentID},
		summary,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("saving summary for %s: %w", agentID, err)
	}
	return nil
}

// ListSummaries returns every stored agent record.
func (s *Summaries) ListSummaries(ctx context.Context) ([]performance.Summary, error) {
	cursor, err := s.col.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("listing summaries: %w", err)
	}
	defer cursor.Close(ctx)

	var out []performance.Summary
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decoding summaries: %w", err)
	}
	return out, nil
}
