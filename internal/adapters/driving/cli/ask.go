package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// defaultThread is the thread used when none is given.
const defaultThread = "default"

var (
	askThread  string
	askStream  bool
	askSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question about the indexed documents",
	Long: `Retrieves the passages most relevant to the question, diversified with
Maximum Marginal Relevance, and asks the language model to answer from them.
When nothing relevant is indexed the model is told so and says it cannot answer.

Output is streamed when writing to a terminal; use --stream to force it.`,
	Args:        cobra.MinimumNArgs(1),
	Annotations: needs(LevelFull),
	RunE:        runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askThread, "thread", "t", defaultThread, "conversation thread")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "stream the answer as it is generated")
	askCmd.Flags().BoolVar(&askSources, "sources", true, "list the passages the answer used")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if conversationService == nil {
		return errors.New("conversation service not configured")
	}

	question := strings.Join(args, " ")
	stream := askStream
	if !cmd.Flags().Changed("stream") {
		stream = isTerminal(cmd.OutOrStdout())
	}

	if stream {
		return streamAnswer(cmd.Context(), cmd.OutOrStdout(), askThread, question, askSources)
	}

	answer, err := conversationService.Ask(cmd.Context(), askThread, question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	printAnswer(cmd.OutOrStdout(), answer, askSources)
	return nil
}

// streamAnswer writes answer fragments to w as they arrive.
func streamAnswer(ctx context.Context, w io.Writer, threadID, question string, showSources bool) error {
	stream, err := conversationService.AskStream(ctx, threadID, question)
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	defer stream.Close() //nolint:errcheck

	fmt.Fprintln(w, labelStyle.Render("Answer:"))
	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			fmt.Fprintln(w)
			return fmt.Errorf("ask failed: %w", err)
		}
		fmt.Fprint(w, fragment)
	}
	fmt.Fprintln(w)

	answer := stream.Answer()
	if answer == nil {
		return nil
	}
	if answer.NoContext {
		fmt.Fprintln(w, warnStyle.Render("(no relevant context found in the indexed documents)"))
	}
	if showSources {
		fmt.Fprintln(w)
		printSources(w, answer.Sources)
	}
	return nil
}

// errorHint returns a short suggestion for well-known failures.
func errorHint(err error) string {
	switch {
	case errors.Is(err, domain.ErrThreadBusy):
		return "another question is running on this thread; retry or use --thread"
	case errors.Is(err, domain.ErrUnrecoverable):
		return "a backing service kept failing; check it is running and run 'pdfqa settings check'"
	case errors.Is(err, domain.ErrLLMUnavailable):
		return "configure a language model in the [llm] section of config.toml"
	case domain.IsRetryable(err):
		return "a backing service failed temporarily; try again shortly"
	default:
		return ""
	}
}
