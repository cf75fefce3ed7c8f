package cli

import (
	"bufio"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var chatThread string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	Long: `Starts a question-and-answer loop over the indexed documents. Every
question sees the earlier exchanges of the current thread.

Commands:
  /history        show the messages of the current thread
  /threads        list threads of this session
  /thread <id>    switch to another thread ("new" starts a fresh one)
  /clear          delete the current thread's history
  /help           show this help
  /exit           leave the chat`,
	Args:        cobra.NoArgs,
	Annotations: needs(LevelFull),
	RunE:        runChat,
}

func init() {
	chatCmd.Flags().StringVarP(&chatThread, "thread", "t", defaultThread, "conversation thread")
	rootCmd.AddCommand(chatCmd)
}

// chatSession is one interactive chat loop.
type chatSession struct {
	cmd    *cobra.Command
	out    io.Writer
	thread string
	stream bool
}

func runChat(cmd *cobra.Command, _ []string) error {
	if conversationService == nil {
		return errors.New("conversation service not configured")
	}

	s := &chatSession{
		cmd:    cmd,
		out:    cmd.OutOrStdout(),
		thread: chatThread,
		stream: isTerminal(cmd.OutOrStdout()),
	}

	cmd.Printf("pdfqa chat (model %s, thread %s). Type /help for commands.\n", conversationService.ModelName(), s.thread)

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		cmd.Print("> ")
		if !scanner.Scan() {
			cmd.Println()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := s.command(line); done {
				return nil
			}
			continue
		}
		s.ask(line)
	}
}

func (s *chatSession) ask(question string) {
	ctx := s.cmd.Context()

	var err error
	if s.stream {
		err = streamAnswer(ctx, s.out, s.thread, question, true)
	} else {
		answer, askErr := conversationService.Ask(ctx, s.thread, question)
		if askErr == nil {
			printAnswer(s.out, answer, true)
		}
		err = askErr
	}

	if err != nil {
		s.cmd.Println(warnStyle.Render("Error: " + err.Error()))
		if hint := errorHint(err); hint != "" {
			s.cmd.Println("  " + hint)
		}
	}
	s.cmd.Println()
}

// command runs a slash command and reports whether the session should end.
func (s *chatSession) command(line string) bool {
	ctx := s.cmd.Context()
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit":
		return true

	case "/help":
		s.cmd.Println("/history, /threads, /thread <id>, /clear, /exit")

	case "/history":
		history, err := conversationService.History(ctx, s.thread)
		if err != nil {
			s.cmd.Println("No messages yet.")
			return false
		}
		for _, m := range history {
			s.cmd.Printf("%s %s\n", labelStyle.Render(m.Role.String()+":"), m.Content)
		}

	case "/threads":
		threads, err := conversationService.Threads(ctx)
		if err != nil {
			s.cmd.Println(warnStyle.Render("Error: " + err.Error()))
			return false
		}
		for _, id := range threads {
			marker := " "
			if id == s.thread {
				marker = "*"
			}
			s.cmd.Printf("%s %s\n", marker, id)
		}

	case "/thread":
		switch arg {
		case "":
			s.cmd.Printf("Current thread: %s\n", s.thread)
		case "new":
			s.thread = uuid.NewString()
			s.cmd.Printf("Started thread %s\n", s.thread)
		default:
			s.thread = arg
			s.cmd.Printf("Switched to thread %s\n", s.thread)
		}

	case "/clear":
		if err := conversationService.Clear(ctx, s.thread); err != nil {
			s.cmd.Println(warnStyle.Render("Error: " + err.Error()))
			return false
		}
		s.cmd.Printf("Cleared thread %s\n", s.thread)

	default:
		s.cmd.Printf("Unknown command %s. Type /help for commands.\n", name)
	}
	return false
}
