package core

import (
	"context"
	"fmt"

	"moblaw.ru/legal-assistant/internal/logger"
)

const (
	DefaultTopK                = 3
	DefaultSimilarityThreshold = 0.5
	// ExactMatchThreshold is the cosine distance under which the stored
	// answer is returned verbatim.
	ExactMatchThreshold = 0.2

	SimilarMatchMarker = "(Semantically similar question)\n"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SimilarityIndex returns up to k entries nearest to embedding, ordered by
// ascending cosine distance.
type SimilarityIndex interface {
	Nearest(ctx context.Context, embedding []float32, k int) ([]Candidate, error)
}

type Candidate struct {
	Question string
	Answer   string
	Distance float32
}

type OutcomeKind int

const (
	OutcomeNotFound OutcomeKind = iota
	OutcomeExactMatch
	OutcomeSimilarMatch
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeExactMatch:
		return "exact_match"
	case OutcomeSimilarMatch:
		return "similar_match"
	default:
		return "not_found"
	}
}

type Outcome struct {
	Kind     OutcomeKind
	Answer   string
	Distance float32
}

func (o Outcome) Found() bool {
	return o.Kind == OutcomeExactMatch || o.Kind == OutcomeSimilarMatch
}

// Reply is the text shown to the user. Similar matches carry
// SimilarMatchMarker so they can be told apart from trusted answers.
func (o Outcome) Reply() string {
	if o.Kind == OutcomeSimilarMatch {
		return SimilarMatchMarker + o.Answer
	}
	return o.Answer
}

type RAGService struct {
	embedder Embedder
	index    SimilarityIndex
	log      *logger.Logger
}

func NewRAGService(embedder Embedder, index SimilarityIndex, log *logger.Logger) *RAGService {
	return &RAGService{
		embedder: embedder,
		index:    index,
		log:      log.With("service", "RAGService"),
	}
}

// Resolve looks the question up in the knowledge base. topK and
// similarityThreshold fall back to their defaults when not positive.
func (s *RAGService) Resolve(ctx context.Context, question string, topK int, similarityThreshold float32) (Outcome, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if similarityThreshold <= 0 {
		similarityThreshold = DefaultSimilarityThreshold
	}

	queryEmbedding, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: failed to get query embedding: %w", ErrIndexUnavailable, err)
	}

	candidates, err := s.index.Nearest(ctx, queryEmbedding, topK)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: nearest neighbour query failed: %w", ErrIndexUnavailable, err)
	}

	if len(candidates) == 0 {
		s.log.Debug("No candidates returned by index")
		return Outcome{Kind: OutcomeNotFound}, nil
	}

	best := candidates[0]
	if best.Distance < ExactMatchThreshold {
		s.log.Debug("Exact match", "distance", best.Distance)
		return Outcome{Kind: OutcomeExactMatch, Answer: best.Answer, Distance: best.Distance}, nil
	}

	for _, c := range candidates {
		if c.Distance < similarityThreshold {
			s.log.Debug("Similar match", "distance", c.Distance, "threshold", similarityThreshold)
			return Outcome{Kind: OutcomeSimilarMatch, Answer: c.Answer, Distance: c.Distance}, nil
		}
	}

	s.log.Debug("No candidate under similarity threshold",
		"best_distance", best.Distance,
		"threshold", similarityThreshold,
	)
	return Outcome{Kind: OutcomeNotFound, Distance: best.Distance}, nil
}
