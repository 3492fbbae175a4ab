package core

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moblaw.ru/legal-assistant/internal/logger"
	"moblaw.ru/legal-assistant/internal/store"
)

type fakeBuilder struct {
	entries []store.KnowledgeEntry
	calls   int
}

func (f *fakeBuilder) Rebuild(_ context.Context, entries []store.KnowledgeEntry) error {
	f.calls++
	f.entries = entries
	return nil
}

func TestReadQADataset(t *testing.T) {
	csvData := "\ufeffid,question,answer\n" +
		"1,What is a contract?,An agreement.\n" +
		"2,,orphan answer\n" +
		"3,\"Multi, comma\",\"Line one\nLine two\"\n"

	pairs, err := ReadQADataset(strings.NewReader(csvData))
	require.NoError(t, err)
	require.Len(t, pairs, 2)
	assert.Equal(t, QAPair{Question: "What is a contract?", Answer: "An agreement."}, pairs[0])
	assert.Equal(t, QAPair{Question: "Multi, comma", Answer: "Line one\nLine two"}, pairs[1])
}

func TestReadQADatasetMissingColumns(t *testing.T) {
	_, err := ReadQADataset(strings.NewReader("q,a\nx,y\n"))
	assert.ErrorIs(t, err, ErrMissingColumns)

	_, err = ReadQADataset(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrMissingColumns)
}

func TestIngest(t *testing.T) {
	builder := &fakeBuilder{}
	svc := NewIngestService(&fakeEmbedder{vec: []float32{0.1, 0.2}}, "text-embedding-004", builder, 1000, 4, logger.NewNop())

	n, err := svc.Ingest(context.Background(), strings.NewReader("question,answer\nq1,a1\nq2,a2\nq3,a3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Equal(t, 1, builder.calls)
	require.Len(t, builder.entries, 3)
	for i, e := range builder.entries {
		assert.Equal(t, []string{"q1", "q2", "q3"}[i], e.Question)
		assert.Equal(t, "text-embedding-004", e.EmbeddingModel)
		assert.Equal(t, []float32{0.1, 0.2}, e.Embedding)
	}
}

func TestIngestAbortsOnEmbeddingError(t *testing.T) {
	builder := &fakeBuilder{}
	embedder := &fakeEmbedder{vec: []float32{1}, byKey: map[string]error{"q2": errBoom}}
	svc := NewIngestService(embedder, "m", builder, 1000, 2, logger.NewNop())

	_, err := svc.Ingest(context.Background(), strings.NewReader("question,answer\nq1,a1\nq2,a2\nq3,a3\n"))
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, builder.calls)
}

func TestIngestEmptyDataset(t *testing.T) {
	builder := &fakeBuilder{}
	svc := NewIngestService(&fakeEmbedder{vec: []float32{1}}, "m", builder, 0, 0, logger.NewNop())

	_, err := svc.Ingest(context.Background(), strings.NewReader("question,answer\n"))
	assert.ErrorIs(t, err, ErrEmptyDataset)
	assert.Zero(t, builder.calls)
}
