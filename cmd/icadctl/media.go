package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/imrysn/kmti-icad-hub/internal/application/ingestion"
	"github.com/imrysn/kmti-icad-hub/internal/config"
	"github.com/imrysn/kmti-icad-hub/internal/infrastructure/tabular"
	"github.com/imrysn/kmti-icad-hub/internal/wire"
)

var mediaCmd = &cobra.Command{
	Use:   "media",
	Short: "Manage media mappings",
}

var mediaIngestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Import media mappings from a CSV or XLSX file",
	Long: `Import media mappings from a table with the columns
excel_row_id, media_type, media_url, description and optional
timestamp_start, timestamp_end (seconds).

Rows missing a required field or carrying an unparsable timestamp are
reported and skipped; the remaining rows are inserted in one batch.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withData(cmd, func(ctx context.Context, _ *config.Config, data *wire.DataLayer) error {
			importer := ingestion.NewMediaImporter(data.Media, tabular.NewReader())
			report, err := importer.ImportFile(ctx, args[0])
			if err != nil {
				return err
			}
			for _, skipped := range report.Skipped {
				cmd.Printf("  skipped row %d: %v\n", skipped.Row, skipped.Err)
			}
			cmd.Printf("Inserted %d media mappings (%d skipped).\n", report.Inserted, len(report.Skipped))
			return nil
		})
	},
}

func init() {
	mediaCmd.AddCommand(mediaIngestCmd)
	rootCmd.AddCommand(mediaCmd)
}

// withData 只初始化关系数据层
func withData(cmd *cobra.Command, fn func(ctx context.Context, cfg *config.Config, data *wire.DataLayer) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	data, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(ctx, cfg, data)
}
