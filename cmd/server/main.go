package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "legal-assistant",
	Short: "Legal assistance chat backend",
	Long: `Answers widget questions from a curated Q/A knowledge base, falls back
to an LLM when nothing matches and escalates conversations to a human
operator over WhatsApp.

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(ingestCmd)
}
