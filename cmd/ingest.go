package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docqa-io/docqa/config"
	srv "github.com/docqa-io/docqa/internal/server"
)

func ingestCMD() *cobra.Command {
	var cfgPath string
	var sourceName string

	var ingest = &cobra.Command{
		Use:   "ingest <file>",
		Short: "Chunk, embed and index a text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			body, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if sourceName == "" {
				sourceName = filepath.Base(args[0])
			}

			ctx := context.Background()
			_, pl, err := srv.BuildPipeline(ctx, cfg)
			if err != nil {
				return err
			}
			doc, err := pl.Ingest(ctx, string(body), sourceName)
			if err != nil {
				return err
			}
			fmt.Printf("document %s (%s): %s, %d chunks\n", doc.ID, doc.SourceName, doc.Status, doc.ChunkCount)
			return nil
		},
	}
	ingest.Flags().StringVar(&sourceName, "source-name", "", "source name stored with the document (default: file name)")
	ingest.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return ingest
}
