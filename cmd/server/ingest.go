package main

import (
	"github.com/spf13/cobra"

	"moblaw.ru/legal-assistant/internal/core"
)

var ingestFile string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Embed a Q/A dataset and rebuild the knowledge index",
	Long: `Reads a CSV file with "question" and "answer" columns, embeds every
question and replaces the configured knowledge index. Any embedding
failure aborts the run and leaves the current index in place.

A running server with INDEX_BACKEND=sqlite keeps its corpus in memory;
send it SIGHUP to pick up the new entries. The qdrant backend is queried
live. If a qdrant rebuild fails after the old collection is dropped, the
index stays incomplete until ingest succeeds.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		ingest := core.NewIngestService(
			a.llm,
			a.llm.EmbeddingModel(),
			a.index,
			a.cfg.IngestRatePerSecond,
			a.cfg.IngestConcurrency,
			a.log,
		)

		a.log.Info("Starting data ingestion", "file", ingestFile, "backend", a.cfg.IndexBackend)
		n, err := ingest.IngestCSV(ctx, ingestFile)
		if err != nil {
			a.log.Error("Data ingestion failed", "error", err)
			return err
		}
		a.log.Info("Data ingestion complete", "entries", n)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestFile, "file", "f", "qa_dataset.csv", "CSV dataset with question and answer columns")
}
