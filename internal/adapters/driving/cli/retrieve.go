package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

var (
	retrieveTopK     int
	retrieveFetchK   int
	retrieveLambda   float64
	retrieveDocument string
	retrieveJSON     bool
)

var retrieveCmd = &cobra.Command{
	Use:   "retrieve <query>",
	Short: "Show the passages retrieved for a query",
	Long: `Runs the retrieval step of question answering without the language
model: the fetch-k nearest chunks are diversified with Maximum Marginal
Relevance and the top-k are printed.

A lambda of 1 ranks purely by similarity; lower values favour diversity.
Unset flags use the [retrieval] section of config.toml.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: needs(LevelRetrieval),
	RunE:        runRetrieve,
}

func init() {
	defaults := domain.DefaultRetrievalOptions()
	retrieveCmd.Flags().IntVarP(&retrieveTopK, "top-k", "k", defaults.TopK, "number of passages to return")
	retrieveCmd.Flags().IntVar(&retrieveFetchK, "fetch-k", defaults.FetchK, "number of nearest candidates to diversify")
	retrieveCmd.Flags().Float64Var(&retrieveLambda, "lambda", defaults.LambdaMult, "relevance/diversity trade-off in [0, 1]")
	retrieveCmd.Flags().StringVar(&retrieveDocument, "document", "", "restrict results to one document ID")
	retrieveCmd.Flags().BoolVar(&retrieveJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(retrieveCmd)
}

// retrievedPassage is the JSON form of a retrieved chunk.
type retrievedPassage struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Source     string  `json:"source"`
	Sequence   int     `json:"sequence"`
	Relevance  float64 `json:"relevance"`
	Content    string  `json:"content"`
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	if retrievalService == nil {
		return errors.New("retrieval service not configured")
	}

	opts := retrieveOptions(cmd)
	result, err := retrievalService.Retrieve(cmd.Context(), strings.Join(args, " "), opts)
	if err != nil {
		return fmt.Errorf("retrieve failed: %w", err)
	}

	if retrieveJSON {
		return outputRetrieveJSON(cmd, result)
	}
	return outputRetrieveTable(cmd, result)
}

// retrieveOptions starts from the configured defaults and applies set flags.
func retrieveOptions(cmd *cobra.Command) domain.RetrievalOptions {
	opts := retrievalDefaults
	flags := cmd.Flags()

	if flags.Changed("top-k") {
		opts.TopK = retrieveTopK
		if !flags.Changed("fetch-k") && opts.FetchK < opts.TopK {
			opts.FetchK = opts.TopK
		}
	}
	if flags.Changed("fetch-k") {
		opts.FetchK = retrieveFetchK
	}
	if flags.Changed("lambda") {
		opts.LambdaMult = retrieveLambda
	}
	if retrieveDocument != "" {
		opts.Filter = domain.MetadataFilter{domain.MetaDocumentID: retrieveDocument}
	}
	return opts
}

func outputRetrieveJSON(cmd *cobra.Command, result *domain.RetrievalResult) error {
	passages := make([]retrievedPassage, len(result.Chunks))
	for i, c := range result.Chunks {
		passages[i] = retrievedPassage{
			DocumentID: c.Chunk.DocumentID,
			Title:      c.Chunk.Metadata[domain.MetaTitle],
			Source:     c.Chunk.Metadata[domain.MetaSource],
			Sequence:   c.Chunk.Sequence,
			Relevance:  c.Relevance,
			Content:    c.Chunk.Content,
		}
	}

	data, err := json.MarshalIndent(passages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}

func outputRetrieveTable(cmd *cobra.Command, result *domain.RetrievalResult) error {
	if result.IsEmpty() {
		cmd.Println("No relevant passages found.")
		return nil
	}

	cmd.Println("Passages:")
	cmd.Println()
	for i, c := range result.Chunks {
		// Format: [N] title, part n (relevance)
		cmd.Printf("[%d] %s (%.3f)\n", i+1, chunkLabel(c), c.Relevance)
		cmd.Printf("    %s\n", snippet(c.Chunk.Content))
		cmd.Println()
	}
	return nil
}
