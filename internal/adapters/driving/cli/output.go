package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

var (
	labelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	sourceStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// snippetLength is the number of characters of chunk text shown in listings.
const snippetLength = 160

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// chunkLabel formats a retrieved chunk as "title, part n".
func chunkLabel(c domain.RetrievedChunk) string {
	title := c.Chunk.Metadata[domain.MetaTitle]
	if title == "" {
		title = c.Chunk.Metadata[domain.MetaSource]
	}
	if title == "" {
		title = c.Chunk.DocumentID
	}
	return fmt.Sprintf("%s, part %d", title, c.Chunk.Sequence+1)
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "..."
}

// printSources lists the chunks an answer was grounded on.
func printSources(w io.Writer, sources []domain.RetrievedChunk) {
	if len(sources) == 0 {
		return
	}
	fmt.Fprintln(w, labelStyle.Render("Sources:"))
	for i, c := range sources {
		fmt.Fprintln(w, sourceStyle.Render(fmt.Sprintf("  [%d] %s (%.3f)", i+1, chunkLabel(c), c.Relevance)))
	}
}

// printAnswer writes a complete, non-streamed answer.
func printAnswer(w io.Writer, answer *domain.Answer, showSources bool) {
	fmt.Fprintln(w, labelStyle.Render("Answer:"))
	fmt.Fprintln(w, answer.Content)
	if answer.NoContext {
		fmt.Fprintln(w, warnStyle.Render("(no relevant context found in the indexed documents)"))
	}
	if showSources {
		fmt.Fprintln(w)
		printSources(w, answer.Sources)
	}
}
