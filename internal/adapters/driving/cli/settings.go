package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage application settings",
	Long: `View and configure embedding, language model, chunking, retrieval and
storage settings. Settings are stored in config.toml and take effect the next
time pdfqa starts.`,
	Annotations: needs(LevelSettings),
	RunE:        runSettingsShow,
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current settings",
	Args:  cobra.NoArgs,
	RunE:  runSettingsShow,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set <key> [value]",
	Short: "Set a setting",
	Long: `Set a single setting by its dotted key, for example:

  pdfqa settings set llm.provider ollama
  pdfqa settings set retrieval.top_k 8
  pdfqa settings set pipeline.processors semantic,metadata

When the value of an API key or password is omitted it is read from the
terminal without echo.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSettingsSet,
}

var settingsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check connectivity to the configured providers",
	Args:  cobra.NoArgs,
	RunE:  runSettingsCheck,
}

func init() {
	settingsCmd.AddCommand(settingsShowCmd)
	settingsCmd.AddCommand(settingsSetCmd)
	settingsCmd.AddCommand(settingsCheckCmd)
	rootCmd.AddCommand(settingsCmd)
}

func runSettingsShow(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	values, err := settingsService.Values()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")

	section := ""
	for _, v := range values {
		group, name, _ := strings.Cut(v.Key, ".")
		if group != section {
			section = group
			cmd.Println()
			cmd.Printf("[%s]\n", section)
		}
		value := v.Value
		if value == "" {
			value = "(not set)"
		}
		if v.Source != sourceDefault {
			value += fmt.Sprintf("  (%s)", v.Source)
		}
		cmd.Printf("  %-22s %s\n", name, value)
	}
	cmd.Println()

	if _, err := settingsService.Get(); err != nil {
		cmd.Printf("Warning: %v\n", err)
		cmd.Println("Run 'pdfqa settings set <key> <value>' to fix configuration issues.")
	} else {
		cmd.Println("Configuration is valid.")
	}
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}

	key := args[0]
	var value string
	if len(args) == 2 {
		value = args[1]
	} else {
		if !isSecretKey(key) {
			return fmt.Errorf("missing value for %s", key)
		}
		cmd.Printf("Enter %s: ", key)
		value = readPassword(cmd.InOrStdin())
		cmd.Println()
	}

	if err := settingsService.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	shown := value
	if isSecretKey(key) {
		shown = maskAPIKey(value)
	}
	cmd.Printf("Set %s = %s\n", key, shown)
	return nil
}

func runSettingsCheck(cmd *cobra.Command, _ []string) error {
	if settingsService == nil {
		return errors.New("settings service not configured")
	}
	if configValidator == nil {
		return errors.New("config validator not configured")
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	ctx := cmd.Context()
	var errs []error

	cmd.Printf("Embedding (%s, %s): ", settings.Embedding.Provider, settings.Embedding.Model)
	if err := configValidator.ValidateEmbedding(ctx, settings.Embedding); err != nil {
		cmd.Printf("FAILED\n  %v\n", err)
		errs = append(errs, fmt.Errorf("embedding: %w", err))
	} else {
		cmd.Println("OK")
	}

	cmd.Printf("LLM (%s, %s): ", settings.LLM.Provider, settings.LLM.Model)
	if err := configValidator.ValidateLLM(ctx, settings.LLM); err != nil {
		cmd.Printf("FAILED\n  %v\n", err)
		errs = append(errs, fmt.Errorf("llm: %w", err))
	} else {
		cmd.Println("OK")
	}

	return errors.Join(errs...)
}

// sourceDefault is the Setting.Source of values nobody configured.
const sourceDefault = "default"

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, ".api_key") || strings.HasSuffix(key, ".password")
}

//nolint:errcheck // CLI helper, error ignored for UX
func readPassword(in io.Reader) string {
	// Try to read password without echo
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return string(password)
		}
	}
	// Fallback to regular input
	reader := bufio.NewReader(in)
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
