package index

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"moblaw.ru/legal-assistant/internal/core"
	"moblaw.ru/legal-assistant/internal/logger"
	"moblaw.ru/legal-assistant/internal/store"
	"moblaw.ru/legal-assistant/internal/utils"
)

type KnowledgeStore interface {
	ReplaceKnowledge(ctx context.Context, entries []store.KnowledgeEntry) error
	AllKnowledge(ctx context.Context) ([]store.KnowledgeEntry, error)
}

// SQLiteIndex keeps the corpus from knowledge_entries in memory and scans
// it by cosine distance. Suited to the few thousand Q/A pairs a curated
// knowledge base holds.
type SQLiteIndex struct {
	store          KnowledgeStore
	embeddingModel string
	log            *logger.Logger

	mu      sync.RWMutex
	entries []store.KnowledgeEntry
}

func NewSQLiteIndex(ctx context.Context, st KnowledgeStore, embeddingModel string, log *logger.Logger) (*SQLiteIndex, error) {
	idx := &SQLiteIndex{
		store:          st,
		embeddingModel: embeddingModel,
		log:            log.With("service", "SQLiteIndex"),
	}
	if err := idx.Reload(ctx); err != nil {
		return nil, err
	}
	return idx, nil
}

// Reload refreshes the in-memory cache. Entries embedded by another model
// or without an embedding are left out.
func (i *SQLiteIndex) Reload(ctx context.Context) error {
	all, err := i.store.AllKnowledge(ctx)
	if err != nil {
		return fmt.Errorf("failed to load knowledge entries: %w", err)
	}

	entries := make([]store.KnowledgeEntry, 0, len(all))
	skipped := 0
	for _, e := range all {
		if len(e.Embedding) == 0 || e.EmbeddingModel != i.embeddingModel {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if skipped > 0 {
		i.log.Warn("Skipped knowledge entries with missing or foreign embeddings; re-run ingestion",
			"skipped", skipped,
			"embedding_model", i.embeddingModel,
		)
	}
	if len(entries) == 0 {
		i.log.Warn("Knowledge index is empty. Ensure data has been ingested with the current embedding model.")
	} else {
		i.log.Info("Knowledge index loaded", "entries", len(entries))
	}

	i.mu.Lock()
	i.entries = entries
	i.mu.Unlock()
	return nil
}

func (i *SQLiteIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.entries)
}

// Nearest returns up to k entries by ascending cosine distance; equal
// distances keep ingestion order.
func (i *SQLiteIndex) Nearest(ctx context.Context, embedding []float32, k int) ([]core.Candidate, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}

	i.mu.RLock()
	entries := i.entries
	i.mu.RUnlock()

	scored := make([]core.Candidate, 0, len(entries))
	for _, e := range entries {
		distance, err := utils.CosineDistance(embedding, e.Embedding)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", e.ID, err)
		}
		scored = append(scored, core.Candidate{Question: e.Question, Answer: e.Answer, Distance: distance})
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Distance < scored[b].Distance
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// Rebuild replaces the stored corpus and reloads the cache.
func (i *SQLiteIndex) Rebuild(ctx context.Context, entries []store.KnowledgeEntry) error {
	for _, e := range entries {
		if e.EmbeddingModel != i.embeddingModel {
			return fmt.Errorf("entry %q embedded with %q, index uses %q", e.Question, e.EmbeddingModel, i.embeddingModel)
		}
	}
	if err := i.store.ReplaceKnowledge(ctx, entries); err != nil {
		return err
	}
	return i.Reload(ctx)
}

// ReloadOnSignal reloads the cache every time sig fires, so a corpus written
// by a separate ingest run is picked up without a restart. It returns when
// ctx is done or sig is closed.
func (i *SQLiteIndex) ReloadOnSignal(ctx context.Context, sig <-chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-sig:
			if !ok {
				return
			}
			if err := i.Reload(ctx); err != nil {
				i.log.Error("Knowledge index reload failed", "signal", s, "error", err)
				continue
			}
			i.log.Info("Knowledge index reloaded", "signal", s, "entries", i.Len())
		}
	}
}
