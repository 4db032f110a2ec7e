package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/imrysn/kmti-icad-hub/internal/application/retrieval"
	"github.com/imrysn/kmti-icad-hub/internal/interfaces/http/dto"
	"github.com/imrysn/kmti-icad-hub/internal/wire"
)

var searchJSON bool

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCore(cmd, wire.CoreOptions{RequireVector: true}, func(ctx context.Context, core *wire.Core) error {
			resp, err := core.Retrieval.Search(ctx, args[0])
			if err != nil {
				return err
			}
			if searchJSON {
				return printJSON(cmd, dto.ToSearchResponse(resp))
			}
			printResults(cmd, resp)
			return nil
		})
	},
}

func init() {
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func printResults(cmd *cobra.Command, resp *retrieval.SearchResponse) {
	if len(resp.Results) == 0 {
		cmd.Println("No results found.")
		return
	}
	if resp.Degraded {
		cmd.Println("(media lookup unavailable, showing text only)")
	}
	for i, r := range resp.Results {
		cmd.Printf("[%d] %s %s\n", i+1, r.Source, formatScore(r.Score))
		cmd.Printf("    %s\n", strings.ReplaceAll(r.Content, "\n", " "))
		for _, m := range r.Media {
			cmd.Printf("    - %s %s\n", m.MediaType, m.MediaURL)
		}
	}
}

func formatScore(score *float64) string {
	if score == nil {
		return ""
	}
	return fmt.Sprintf("(%.3f)", *score)
}
