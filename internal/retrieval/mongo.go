package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Compile-time check that MongoIndex implements Index.
var _ Index = (*MongoIndex)(nil)

// MongoIndex searches per-subject collections in MongoDB. When an Atlas
// Search index name is configured it uses the $vectorSearch aggregation
// stage; when the index is missing or the aggregation fails it degrades to
// a brute-force cosine scan over all stored vectors in the collection.
//
// Stored document shape (one chunk per document):
//
//	{chunk: {text, unique_chunk_id}, document: {doc_unique_id}, embedding: {vector: [...]}}
type MongoIndex struct {
	db        *mongo.Database
	indexName string
}

// NewMongoIndex creates a MongoIndex over the given database. An empty
// indexName disables the aggregation path entirely.
func NewMongoIndex(db *mongo.Database, indexName string) *MongoIndex {
	return &MongoIndex{db: db, indexName: indexName}
}

// vectorPath is where the embedding vector lives in the stored schema.
const vectorPath = "embedding.vector"

// Search returns the topK nearest chunks in the subject collection.
// Index failures degrade to the full scan, never propagate.
func (m *MongoIndex) Search(ctx context.Context, subject string, vector []float32, topK int) ([]Chunk, error) {
	coll := m.db.Collection(subject)

	if m.indexName != "" {
		chunks, err := m.vectorSearch(ctx, coll, vector, topK)
		if err != nil {
			slog.Warn("vector index search failed, falling back to full scan",
				"subject", subject, "error", err)
		} else if len(chunks) > 0 {
			return chunks, nil
		}
	}

	return m.fullScan(ctx, coll, vector, topK)
}

// projectedChunk is the flat shape produced by the $project stage.
type projectedChunk struct {
	ChunkID    string  `bson:"chunk_id"`
	DocumentID string  `bson:"document_id"`
	Text       string  `bson:"text"`
	Score      float64 `bson:"score"`
}

func (m *MongoIndex) vectorSearch(ctx context.Context, coll *mongo.Collection, vector []float32, topK int) ([]Chunk, error) {
	numCandidates := topK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}

	pipeline := mongo.Pipeline{
		{{Key: "$vectorSearch", Value: bson.D{
			{Key: "index", Value: m.indexName},
			{Key: "path", Value: vectorPath},
			{Key: "queryVector", Value: toFloat64(vector)},
			{Key: "numCandidates", Value: numCandidates},
			{Key: "limit", Value: topK},
		}}},
		{{Key: "$project", Value: bson.D{
			{Key: "text", Value: "$chunk.text"},
			{Key: "chunk_id", Value: "$chunk.unique_chunk_id"},
			{Key: "document_id", Value: "$document.doc_unique_id"},
			{Key: "score", Value: bson.D{{Key: "$meta", Value: "vectorSearchScore"}}},
		}}},
	}

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("running $vectorSearch: %w", err)
	}
	defer cursor.Close(ctx)

	var projected []projectedChunk
	if err := cursor.All(ctx, &projected); err != nil {
		return nil, fmt.Errorf("decoding $vectorSearch results: %w", err)
	}

	chunks := make([]Chunk, len(projected))
	for i, p := range projected {
		chunks[i] = Chunk{ChunkID: p.ChunkID, DocumentID: p.DocumentID, Text: p.Text, Score: p.Score}
	}
	return chunks, nil
}

// storedChunk matches the nested document schema for the full-scan path.
type storedChunk struct {
	Chunk struct {
		Text    string `bson:"text"`
		ChunkID string `bson:"unique_chunk_id"`
	} `bson:"chunk"`
	Document struct {
		DocID string `bson:"doc_unique_id"`
	} `bson:"document"`
	Embedding struct {
		Vector []float64 `bson:"vector"`
	} `bson:"embedding"`
}

func (m *MongoIndex) fullScan(ctx context.Context, coll *mongo.Collection, vector []float32, topK int) ([]Chunk, error) {
	projection := bson.D{
		{Key: "chunk.text", Value: 1},
		{Key: "chunk.unique_chunk_id", Value: 1},
		{Key: "document.doc_unique_id", Value: 1},
		{Key: vectorPath, Value: 1},
	}
	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("scanning collection %s: %w", coll.Name(), err)
	}
	defer cursor.Close(ctx)

	query := toFloat64(vector)
	queryNorm := norm(query)
	if queryNorm == 0 {
		return nil, nil
	}

	var chunks []Chunk
	for cursor.Next(ctx) {
		var doc storedChunk
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decoding stored chunk: %w", err)
		}
		if len(doc.Embedding.Vector) == 0 {
			continue
		}
		chunks = append(chunks, Chunk{
			ChunkID:    doc.Chunk.ChunkID,
			DocumentID: doc.Document.DocID,
			Text:       doc.Chunk.Text,
			Score:      cosine(query, doc.Embedding.Vector, queryNorm),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterating collection %s: %w", coll.Name(), err)
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

// norm returns the L2 norm of a vector.
func norm(v []float64) float64 {
	var sum float64
	for _, f := range v {
		sum += f * f
	}
	return math.Sqrt(sum)
}

// cosine computes dot(a,b) / (aNorm * norm(b)).
// aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float64, aNorm float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, bNormSq float64
	for i := range a {
		dot += a[i] * b[i]
		bNormSq += b[i] * b[i]
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return dot / (aNorm * bNorm)
}
