package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/embedding"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/persistence/redis"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/dto"
	"github.com/imrysn/kmti-icad-hub/internal/wire"
)

var (
	kbPattern    string
	kbColumns    []string
	kbYes        bool
	kbFlushCache bool
	kbJSON       bool
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base collection",
}

var kbIngestCmd = &cobra.Command{
	Use:   "ingest [path]",
	Short: "Ingest spreadsheets into the knowledge base",
	Long: `Ingest a single spreadsheet or every matching file in a directory.

Each row becomes one document with id "{file}_row_{n}". In directory mode a
file that fails is reported and the remaining files are still ingested.

Examples:
  icadctl kb ingest knowledge_base/
  icadctl kb ingest knowledge_base/ --pattern "*.csv"
  icadctl kb ingest parts.xlsx --columns Part,Procedure`,
	Args: cobra.MaximumNArgs(1),
	RunE: runKBIngest,
}

var kbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show collection statistics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCore(cmd, wire.CoreOptions{RequireVector: true}, func(ctx context.Context, core *wire.Core) error {
			stats, err := core.Retrieval.Stats(ctx)
			if err != nil {
				return err
			}
			if kbJSON {
				return printJSON(cmd, stats)
			}
			cmd.Printf("collection: %s\nbackend:    %s\nlocation:   %s\ndocuments:  %d\n",
				stats.CollectionName, stats.Backend, stats.StorageLocation, stats.DocumentCount)
			return nil
		})
	},
}

var kbClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every document in the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !kbYes {
			return errors.New("refusing to clear the collection without --yes")
		}
		return withCore(cmd, wire.CoreOptions{RequireVector: true}, func(ctx context.Context, core *wire.Core) error {
			if err := core.Retrieval.Clear(ctx); err != nil {
				return err
			}
			cmd.Println("Collection cleared.")

			if kbFlushCache && core.Cache != nil {
				n, err := core.Cache.InvalidatePattern(ctx, redis.EmbeddingPattern(embedding.CacheNamespace(&core.Config.Embedding)))
				if err != nil {
					return fmt.Errorf("flush embedding cache: %w", err)
				}
				cmd.Printf("Flushed %d cached query embeddings.\n", n)
			}
			return nil
		})
	},
}

var kbReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the vector index of the collection",
	Long: `Rebuild the approximate-nearest-neighbour index (Milvus and pgvector).

The SQLite backend scans every vector on each query and has no index.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withCore(cmd, wire.CoreOptions{RequireVector: true}, func(ctx context.Context, core *wire.Core) error {
			if err := reindex(ctx, core.Store); err != nil {
				return err
			}
			cmd.Println("Index rebuilt.")
			return nil
		})
	},
}

var errReindexUnsupported = errors.New("vector backend has no index to rebuild")

func reindex(ctx context.Context, store retrieval.VectorStore) error {
	r, ok := store.(retrieval.Reindexer)
	if !ok {
		return errReindexUnsupported
	}
	return r.Reindex(ctx)
}

var kbWatchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Re-ingest spreadsheets when they are added or modified",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, wire.CoreOptions{RequireVector: true}, func(ctx context.Context, core *wire.Core) error {
			dir := core.Config.Ingestion.KnowledgeBaseDir
			if len(args) == 1 {
				dir = args[0]
			}
			pattern, columns := ingestParams(core)

			// 先做一次全量入库，再监听增量
			report, err := core.Pipeline.IngestDirectory(ctx, dir, pattern, columns)
			if err != nil {
				return err
			}
			printReport(cmd, report)

			cmd.Printf("Watching %s for %s ...\n", dir, pattern)
			w := ingestion.NewWatcher(core.Pipeline, dir, pattern, columns, core.Config.Ingestion.WatchDebounce)
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	},
}

func init() {
	kbIngestCmd.Flags().StringVar(&kbPattern, "pattern", "", "file glob in directory mode (default from config)")
	kbIngestCmd.Flags().StringSliceVar(&kbColumns, "columns", nil, "columns to index, in order (default: all non-empty cells)")
	kbIngestCmd.Flags().BoolVar(&kbJSON, "json", false, "output the report as JSON")
	kbWatchCmd.Flags().StringVar(&kbPattern, "pattern", "", "file glob to watch (default from config)")
	kbWatchCmd.Flags().StringSliceVar(&kbColumns, "columns", nil, "columns to index, in order")
	kbStatsCmd.Flags().BoolVar(&kbJSON, "json", false, "output as JSON")
	kbClearCmd.Flags().BoolVarP(&kbYes, "yes", "y", false, "confirm deletion")
	kbClearCmd.Flags().BoolVar(&kbFlushCache, "flush-cache", false, "also drop cached query embeddings")

	kbCmd.AddCommand(kbIngestCmd, kbStatsCmd, kbClearCmd, kbReindexCmd, kbWatchCmd)
	rootCmd.AddCommand(kbCmd)
}

func runKBIngest(cmd *cobra.Command, args []string) error {
	return withCore(cmd, wire.CoreOptions{RequireVector: true}, func(ctx context.Context, core *wire.Core) error {
		path := core.Config.Ingestion.KnowledgeBaseDir
		if len(args) == 1 {
			path = args[0]
		}
		pattern, columns := ingestParams(core)

		report, err := core.Pipeline.IngestPath(ctx, path, pattern, columns)
		if err != nil {
			return err
		}
		if kbJSON {
			return printJSON(cmd, dto.ToIngestResponse(report))
		}
		printReport(cmd, report)
		if report.Failed > 0 {
			return fmt.Errorf("%d of %d files failed", report.Failed, len(report.Files))
		}
		return nil
	})
}

// ingestParams 命令行参数优先，其次使用配置
func ingestParams(core *wire.Core) (string, []string) {
	pattern := kbPattern
	if pattern == "" {
		pattern = core.Config.Ingestion.Pattern
	}
	columns := kbColumns
	if len(columns) == 0 {
		columns = core.Config.Ingestion.TextColumns
	}
	return pattern, columns
}

func printReport(cmd *cobra.Command, report *ingestion.DirectoryReport) {
	for _, f := range report.Files {
		if f.Err != nil {
			cmd.Printf("  FAIL %s: %v\n", f.Path, f.Err)
			continue
		}
		cmd.Printf("  ok   %s (%d documents)\n", f.Path, f.Documents)
	}
	cmd.Printf("Ingested %d documents from %d files (%d failed).\n",
		report.Documents, len(report.Files)-report.Failed, report.Failed)
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
