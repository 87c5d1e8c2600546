package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/tutorkit/tutord/internal/diagnosis"
	"github.com/tutorkit/tutord/internal/policy"
	"github.com/tutorkit/tutord/internal/profile"
	"github.com/tutorkit/tutord/internal/quality"
)

// historyLimit caps the stored conversation history per subject. Older
// turns fall off; long-term signal lives in the performance summaries.
const historyLimit = 10

// ErrTurnNotFound is returned when a feedback update names a turn that
// does not exist.
var ErrTurnNotFound = errors.New("conversation turn not found")

// Compile-time check that Students implements profile.Store.
var _ profile.Store = (*Students)(nil)

// Turn is one stored tutoring exchange. StateKey and Actions carry the
// policy trajectory so feedback can later train the action weights.
type Turn struct {
	ID            bson.ObjectID   `bson:"_id" json:"id"`
	Query         string          `bson:"query" json:"query"`
	Response      string          `bson:"response" json:"response"`
	Feedback      policy.Feedback `bson:"feedback" json:"feedback"`
	ConfusionKind diagnosis.Kind  `bson:"confusion_type" json:"confusion_type"`
	Scores        quality.Scores  `bson:"quality_scores" json:"quality_scores"`
	StateKey      string          `bson:"state_key" json:"state_key"`
	Actions       []policy.Action `bson:"actions" json:"actions"`
	Timestamp     time.Time       `bson:"timestamp" json:"timestamp"`
}

// Students stores per-student profiles and conversation history in a
// single document per student, with per-subject nested fields updated
// through atomic field-path writes.
type Students struct {
	col *mongo.Collection
}

// NewStudents creates the repository on the students collection.
func NewStudents(db *mongo.Database) *Students {
	return &Students{col: db.Collection("students")}
}

type studentDoc struct {
	ID          string                               `bson:"_id"`
	Preferences map[string]profile.SubjectPreference `bson:"subject_preferences"`
	History     map[string][]Turn                    `bson:"conversation_history"`
}

// GetPreference loads the stored preference for one subject.
func (s *Students) GetPreference(ctx context.Context, studentID, subject string) (profile.SubjectPreference, bool, error) {
	var doc studentDoc
	err := s.col.FindOne(ctx, bson.M{"_id": studentID},
		options.FindOne().SetProjection(bson.M{"subject_preferences." + subject: 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return profile.SubjectPreference{}, false, nil
	}
	if err != nil {
		return profile.SubjectPreference{}, false, fmt.Errorf("loading preference for %s/%s: %w", studentID, subject, err)
	}

	pref, ok := doc.Preferences[subject]
	return pref, ok, nil
}

// SavePreference writes the full preference record for one subject,
// creating the student document if needed.
func (s *Students) SavePreference(ctx context.Context, studentID, subject string, pref profile.SubjectPreference) error {
	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": studentID},
		bson.M{"$set": bson.M{"subject_preferences." + subject: pref}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("saving preference for %s/%s: %w", studentID, subject, err)
	}
	return nil
}

// AddTurn appends a conversation turn, keeping only the newest 10 per
// subject, and returns the turn ID for later feedback updates.
func (s *Students) AddTurn(ctx context.Context, studentID, subject string, turn Turn) (string, error) {
	turn.ID = bson.NewObjectID()
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	if !turn.Feedback.Valid() {
		turn.Feedback = policy.FeedbackNeutral
	}
	if !turn.ConfusionKind.Valid() {
		turn.ConfusionKind = diagnosis.NoConfusion
	}

	_, err := s.col.UpdateOne(ctx,
		bson.M{"_id": studentID},
		bson.M{
			"$push": bson.M{
				"conversation_history." + subject: bson.M{
					"$each":  []Turn{turn},
					"$sort":  bson.M{"timestamp": -1},
					"$slice": historyLimit,
				},
			},
			"$set": bson.M{
				"metadata.last_active": turn.Timestamp,
				"metadata.last_conversation_id." + subject: turn.ID,
			},
		},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("appending turn for %s/%s: %w", studentID, subject, err)
	}
	return turn.ID.Hex(), nil
}

// RecentTurns returns up to limit turns for the subject, newest first.
func (s *Students) RecentTurns(ctx context.Context, studentID, subject string, limit int) ([]Turn, error) {
	var doc studentDoc
	err := s.col.FindOne(ctx, bson.M{"_id": studentID},
		options.FindOne().SetProjection(bson.M{"conversation_history." + subject: 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading history for %s/%s: %w", studentID, subject, err)
	}
	return recentTurns(doc.History[subject], limit), nil
}

// RecentConfusions returns the confusion kinds of the newest turns,
// newest first.
func (s *Students) RecentConfusions(ctx context.Context, studentID, subject string, limit int) ([]diagnosis.Kind, error) {
	turns, err := s.RecentTurns(ctx, studentID, subject, limit)
	if err != nil {
		return nil, err
	}
	kinds := make([]diagnosis.Kind, 0, len(turns))
	for _, t := range turns {
		kinds = append(kinds, t.ConfusionKind)
	}
	return kinds, nil
}

// SetFeedback records like/dislike on a stored turn by ID and returns
// the feedback value the turn carried before this update, so callers can
// reclassify tallies instead of double-counting repeated feedback.
func (s *Students) SetFeedback(ctx context.Context, studentID, subject, turnID string, feedback policy.Feedback) (policy.Feedback, error) {
	if !feedback.Valid() {
		return "", fmt.Errorf("invalid feedback %q", feedback)
	}
	id, err := bson.ObjectIDFromHex(turnID)
	if err != nil {
		return "", fmt.Errorf("invalid turn id %q: %w", turnID, err)
	}

	var doc studentDoc
	err = s.col.FindOneAndUpdate(ctx,
		bson.M{
			"_id": studentID,
			"conversation_history." + subject + "._id": id,
		},
		bson.M{"$set": bson.M{"conversation_history." + subject + ".$.feedback": feedback}},
		options.FindOneAndUpdate().
			SetProjection(bson.M{"conversation_history." + subject + ".$": 1}).
			SetReturnDocument(options.Before),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrTurnNotFound
	}
	if err != nil {
		return "", fmt.Errorf("updating feedback for %s/%s: %w", studentID, subject, err)
	}

	prev := policy.FeedbackNeutral
	if turns := doc.History[subject]; len(turns) > 0 {
		prev = turns[0].Feedback
	}
	return prev, nil
}

// FeedbackTurns collects all stored turns with explicit feedback and a
// recorded trajectory, shaped for the offline preference trainer.
func (s *Students) FeedbackTurns(ctx context.Context) ([]policy.FeedbackTurn, error) {
	cursor, err := s.col.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"conversation_history": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("scanning students for training data: %w", err)
	}
	defer cursor.Close(ctx)

	var out []policy.FeedbackTurn
	for cursor.Next(ctx) {
		var doc studentDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding student document: %w", err)
		}
		out = append(out, feedbackTurns(doc.History)...)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating students: %w", err)
	}
	return out, nil
}

// recentTurns sorts newest first and truncates. Stored arrays are
// already newest-first, but old documents predating the sorted push
// may not be.
func recentTurns(turns []Turn, limit int) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// feedbackTurns flattens a student's history into trainer input,
// keeping only turns with explicit feedback and a usable trajectory.
func feedbackTurns(history map[string][]Turn) []policy.FeedbackTurn {
	var out []policy.FeedbackTurn
	for _, turns := range history {
		for _, t := range turns {
			if t.Feedback == policy.FeedbackNeutral || t.StateKey == "" {
				continue
			}
			action, ok := policy.PrimaryAction(t.Actions)
			if !ok {
				continue
			}
			out = append(out, policy.FeedbackTurn{
				StateKey: t.StateKey,
				Action:   action,
				Feedback: t.Feedback,
			})
		}
	}
	return out
}
