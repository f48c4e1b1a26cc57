package main

import (
	"context"
	"encoding/json"
	"mime"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/Docketgraph/internal/app"
	"github.com/markdave123-py/Docketgraph/internal/core/ingestion_engine"
	"github.com/markdave123-py/Docketgraph/internal/models"
)

var ingestFileURL string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file-id>",
	Short: "Ingest one file synchronously",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, a, err := openApp(cmd.Context(), app.Options{})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(context.Background()) }()

		docID, err := a.Ingestor.ProcessDocument(ctx, models.Job{FileID: args[0], SourceURL: ingestFileURL})
		if docID != "" {
			cmd.Printf("document %s\n", docID)
		}
		return err
	},
}

var rechunkCmd = &cobra.Command{
	Use:   "rechunk <document-id>",
	Short: "Re-split and re-embed a stored document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, a, err := openApp(cmd.Context(), app.Options{NoSource: true, NoGraph: true})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(context.Background()) }()

		n, err := a.Ingestor.RechunkDocument(ctx, args[0])
		if err != nil {
			return err
		}
		cmd.Printf("document %s: %d chunks\n", args[0], n)
		return nil
	},
}

var (
	extractNoGraph bool
	extractDryRun  bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <path>",
	Short: "Extract contacts from a local file and print them as JSON",
	Long: `Runs the extract-only path: convert, extract contacts, store the
extraction and merge it into the graph. --dry-run merges into an in-memory
graph instead of AGE and skips the object storage upload.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return goerr.Wrap(err, "open input", goerr.V("path", path))
		}
		defer f.Close()

		ctx, a, err := openApp(cmd.Context(), app.Options{
			NoSource:    true,
			NoGraph:     extractNoGraph,
			MemoryGraph: extractDryRun,
		})
		if err != nil {
			return err
		}
		defer func() { _ = a.Close(context.Background()) }()

		out, err := a.Ingestor.ExtractOnly(ctx, ingestion_engine.ExtractRequest{
			FileName:    filepath.Base(path),
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			Body:        f,
			SkipGraph:   extractNoGraph,
			SkipUpload:  extractDryRun,
		})
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFileURL, "file-url", "", "source URL recorded on the document")
	extractCmd.Flags().BoolVar(&extractNoGraph, "no-graph", false, "skip graph population")
	extractCmd.Flags().BoolVar(&extractDryRun, "dry-run", false, "use an in-memory graph and skip the upload")

	rootCmd.AddCommand(ingestCmd, rechunkCmd, extractCmd)
}
