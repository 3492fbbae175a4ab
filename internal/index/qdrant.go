package index

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"moblaw.ru/legal-assistant/internal/core"
	"moblaw.ru/legal-assistant/internal/logger"
	"moblaw.ru/legal-assistant/internal/store"
)

const (
	payloadQuestion       = "question"
	payloadAnswer         = "answer"
	payloadEmbeddingModel = "embedding_model"

	upsertBatchSize = 256
)

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantIndex serves nearest-neighbour queries from a Qdrant collection
// configured for cosine distance.
type QdrantIndex struct {
	client         *qdrant.Client
	collection     string
	embeddingModel string
	log            *logger.Logger
}

func NewQdrantIndex(cfg QdrantConfig, embeddingModel string, log *logger.Logger) (*QdrantIndex, error) {
	if cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant collection name required")
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	return &QdrantIndex{
		client:         client,
		collection:     cfg.Collection,
		embeddingModel: embeddingModel,
		log:            log.With("service", "QdrantIndex", "collection", cfg.Collection),
	}, nil
}

func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// Nearest queries the collection. Qdrant scores cosine collections by
// similarity, so distance is 1 - score; hits come back best first.
func (q *QdrantIndex) Nearest(ctx context.Context, embedding []float32, k int) ([]core.Candidate, error) {
	limit := uint64(k)
	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          &limit,
		Filter:         modelFilter(q.embeddingModel),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query qdrant: %w", err)
	}
	return candidatesFromHits(hits), nil
}

// Rebuild drops and recreates the collection, then uploads entries. Points
// are validated before the collection is touched, but a failed create or
// upsert leaves the collection empty or partial until the next successful
// rebuild.
func (q *QdrantIndex) Rebuild(ctx context.Context, entries []store.KnowledgeEntry) error {
	if len(entries) == 0 {
		return fmt.Errorf("refusing to rebuild qdrant collection with no entries")
	}
	points, err := pointsFromEntries(entries, q.embeddingModel)
	if err != nil {
		return err
	}
	vectorSize := uint64(len(entries[0].Embedding))

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if exists {
		if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	wait := true
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           &wait,
			Points:         points[start:end],
		})
		if err != nil {
			return fmt.Errorf("failed to upsert points %d-%d: %w", start, end, err)
		}
	}

	q.log.Info("Collection rebuilt", "points", len(points), "vector_size", vectorSize)
	return nil
}

func modelFilter(embeddingModel string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			qdrant.NewMatch(payloadEmbeddingModel, embeddingModel),
		},
	}
}

func pointsFromEntries(entries []store.KnowledgeEntry, embeddingModel string) ([]*qdrant.PointStruct, error) {
	points := make([]*qdrant.PointStruct, len(entries))
	dim := len(entries[0].Embedding)
	for i, e := range entries {
		if e.EmbeddingModel != embeddingModel {
			return nil, fmt.Errorf("entry %q embedded with %q, index uses %q", e.Question, e.EmbeddingModel, embeddingModel)
		}
		if dim == 0 || len(e.Embedding) != dim {
			return nil, fmt.Errorf("entry %d has dimension %d, expected %d", i, len(e.Embedding), dim)
		}
		vector := make([]float32, len(e.Embedding))
		copy(vector, e.Embedding)

		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.NewString()),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadQuestion:       e.Question,
				payloadAnswer:         e.Answer,
				payloadEmbeddingModel: e.EmbeddingModel,
			}),
		}
	}
	return points, nil
}

func candidatesFromHits(hits []*qdrant.ScoredPoint) []core.Candidate {
	out := make([]core.Candidate, 0, len(hits))
	for _, hit := range hits {
		payload := hit.GetPayload()
		out = append(out, core.Candidate{
			Question: payload[payloadQuestion].GetStringValue(),
			Answer:   payload[payloadAnswer].GetStringValue(),
			Distance: 1 - hit.GetScore(),
		})
	}
	return out
}
