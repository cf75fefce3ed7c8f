package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index <file>...",
	Short: "Index documents for question answering",
	Long: `Extracts the text of each file, splits it into semantically coherent
chunks, embeds them and stores them in the vector index.

Supported formats are PDF, Markdown and plain text. Re-indexing an unchanged
file replaces its entries instead of duplicating them.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: needs(LevelRetrieval),
	RunE:        runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if indexService == nil {
		return errors.New("index service not configured")
	}

	reports, err := indexService.IndexFiles(cmd.Context(), args)

	indexed := 0
	for i, report := range reports {
		if report == nil {
			continue
		}
		indexed++
		cmd.Printf("Indexed %s (%s): %d chunks\n", args[i], report.Type, report.Chunks)
		cmd.Printf("  Document ID: %s\n", report.DocumentID)
		for _, w := range report.Warnings {
			cmd.Printf("  %s\n", warnStyle.Render("Warning: "+w))
		}
	}

	if err != nil {
		cmd.Printf("%d of %d files indexed\n", indexed, len(args))
		return fmt.Errorf("indexing failed: %w", err)
	}
	return nil
}
