// Package cli provides the cobra command tree for pdfqa.
//
// Commands use the driving ports held in package variables. The binary sets
// a Bootstrap that builds them before each command runs; tests assign them
// directly.
package cli

import (
	"context"
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driving"
	"github.com/custodia-labs/pdfqa/internal/logger"
)

// version is overridden at build time with -ldflags.
var version = "dev"

// Driving ports used by commands.
var (
	settingsService     driving.SettingsService
	indexService        driving.IndexService
	retrievalService    driving.RetrievalService
	conversationService driving.ConversationService
	configValidator     ConfigValidator
	retrievalDefaults   = domain.DefaultRetrievalOptions()
)

// Global flags.
var (
	verbose   bool
	configDir string
	modelFlag string
)

// annotationLevel is the command annotation naming the Level it needs.
const annotationLevel = "pdfqa.level"

// Level is how much of the application a command needs.
type Level string

const (
	// LevelSettings builds only the settings service.
	LevelSettings Level = "settings"

	// LevelRetrieval adds embedding, the vector index, indexing and retrieval.
	LevelRetrieval Level = "retrieval"

	// LevelFull adds the language model and the conversation service.
	LevelFull Level = "full"
)

// BootstrapOptions are passed to the Bootstrap before a command runs.
type BootstrapOptions struct {
	// ConfigDir overrides the configuration directory when non-empty.
	ConfigDir string

	// Model overrides llm.model for this invocation when non-empty.
	Model string

	// Level selects which services to build.
	Level Level
}

// Services are the ports a Bootstrap returns. Unbuilt services are nil.
type Services struct {
	Settings     driving.SettingsService
	Index        driving.IndexService
	Retrieval    driving.RetrievalService
	Conversation driving.ConversationService
	Validator    ConfigValidator

	// Defaults are the configured retrieval parameters.
	Defaults domain.RetrievalOptions

	// Close releases the underlying adapters.
	Close func()
}

// ConfigValidator checks connectivity of configured providers.
type ConfigValidator interface {
	ValidateEmbedding(ctx context.Context, settings domain.EmbeddingSettings) error
	ValidateLLM(ctx context.Context, settings domain.LLMSettings) error
}

// Bootstrap builds the services for one command invocation.
type Bootstrap func(ctx context.Context, opts BootstrapOptions) (*Services, error)

var (
	bootstrap     Bootstrap
	closeServices func()
)

var rootCmd = &cobra.Command{
	Use:   "pdfqa",
	Short: "Ask questions about your PDF documents",
	Long: `pdfqa indexes PDF, DOCX, HTML, Markdown and text documents into a vector store
and answers questions about them with a language model, citing the passages
it used. Conversations keep their history within a thread.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print pipeline stages to stderr")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.pdfqa)")
	rootCmd.PersistentFlags().StringVar(&modelFlag, "model", "", "language model to use for this invocation")
}

// SetVersion sets the version reported by the version command.
func SetVersion(v string) {
	version = v
}

// SetBootstrap installs the function that builds services before each command.
func SetBootstrap(b Bootstrap) {
	bootstrap = b
}

// Execute runs the command tree and releases services afterwards.
// A failure with a known remedy is followed by a hint on stderr.
func Execute(ctx context.Context) error {
	defer func() {
		if closeServices != nil {
			closeServices()
			closeServices = nil
		}
	}()
	err := rootCmd.ExecuteContext(ctx)
	if hint := errorHint(err); hint != "" {
		rootCmd.PrintErrln("  " + hint)
	}
	return err
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(verbose)

	if bootstrap == nil {
		return nil
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Debug(".env not loaded: %v", err)
	}

	level := commandLevel(cmd)
	if level == "" {
		return nil
	}

	svcs, err := bootstrap(cmd.Context(), BootstrapOptions{
		ConfigDir: configDir,
		Model:     modelFlag,
		Level:     level,
	})
	if err != nil {
		return err
	}

	settingsService = svcs.Settings
	indexService = svcs.Index
	retrievalService = svcs.Retrieval
	conversationService = svcs.Conversation
	configValidator = svcs.Validator
	if svcs.Defaults.TopK > 0 {
		retrievalDefaults = svcs.Defaults
	}
	closeServices = svcs.Close
	return nil
}

// commandLevel returns the Level annotated on cmd or its nearest parent.
func commandLevel(cmd *cobra.Command) Level {
	for c := cmd; c != nil; c = c.Parent() {
		if level, ok := c.Annotations[annotationLevel]; ok {
			return Level(level)
		}
	}
	return ""
}

func needs(level Level) map[string]string {
	return map[string]string{annotationLevel: string(level)}
}
