package core

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"moblaw.ru/legal-assistant/internal/logger"
	"moblaw.ru/legal-assistant/internal/store"
)

var (
	ErrMissingColumns = errors.New("dataset must contain 'question' and 'answer' columns")
	ErrEmptyDataset   = errors.New("dataset has no question rows")
)

// IndexBuilder replaces the whole knowledge index.
type IndexBuilder interface {
	Rebuild(ctx context.Context, entries []store.KnowledgeEntry) error
}

type QAPair struct {
	Question string
	Answer   string
}

type IngestService struct {
	embedder       Embedder
	embeddingModel string
	builder        IndexBuilder
	limiter        *rate.Limiter
	concurrency    int
	log            *logger.Logger
}

// NewIngestService limits embedding calls to ratePerSecond with at most
// concurrency requests in flight.
func NewIngestService(embedder Embedder, embeddingModel string, builder IndexBuilder, ratePerSecond, concurrency int, log *logger.Logger) *IngestService {
	if ratePerSecond <= 0 {
		ratePerSecond = 25
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &IngestService{
		embedder:       embedder,
		embeddingModel: embeddingModel,
		builder:        builder,
		limiter:        rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		concurrency:    concurrency,
		log:            log.With("service", "IngestService"),
	}
}

func (s *IngestService) IngestCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer f.Close()
	return s.Ingest(ctx, f)
}

// Ingest embeds every question and rebuilds the index from scratch. Any
// embedding failure aborts the run and leaves the existing index untouched.
func (s *IngestService) Ingest(ctx context.Context, r io.Reader) (int, error) {
	pairs, err := ReadQADataset(r)
	if err != nil {
		return 0, err
	}
	if len(pairs) == 0 {
		return 0, ErrEmptyDataset
	}
	s.log.Info("Dataset loaded, embedding questions", "rows", len(pairs))

	entries := make([]store.KnowledgeEntry, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, p := range pairs {
		g.Go(func() error {
			if err := s.limiter.Wait(gctx); err != nil {
				return err
			}
			embedding, err := s.embedder.Embed(gctx, p.Question)
			if err != nil {
				return fmt.Errorf("failed to embed row %d (%.50q): %w", i+1, p.Question, err)
			}
			entries[i] = store.KnowledgeEntry{
				Question:       p.Question,
				Answer:         p.Answer,
				Embedding:      embedding,
				EmbeddingModel: s.embeddingModel,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := s.builder.Rebuild(ctx, entries); err != nil {
		return 0, fmt.Errorf("failed to rebuild index: %w", err)
	}
	s.log.Info("Knowledge index rebuilt", "entries", len(entries), "embedding_model", s.embeddingModel)
	return len(entries), nil
}

// ReadQADataset parses a CSV with a header row containing "question" and
// "answer" columns. Other columns are ignored; rows with an empty question
// are skipped.
func ReadQADataset(r io.Reader) ([]QAPair, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingColumns
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	qCol, aCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case "question":
			qCol = i
		case "answer":
			aCol = i
		}
	}
	if qCol < 0 || aCol < 0 {
		return nil, ErrMissingColumns
	}

	var pairs []QAPair
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read dataset row: %w", err)
		}
		if qCol >= len(record) || aCol >= len(record) {
			continue
		}
		question := strings.TrimSpace(record[qCol])
		if question == "" {
			continue
		}
		pairs = append(pairs, QAPair{Question: question, Answer: record[aCol]})
	}
	return pairs, nil
}
