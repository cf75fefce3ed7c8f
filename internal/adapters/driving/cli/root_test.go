package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// execute runs the root command with args and returns combined output.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := executeRoot(context.Background())
	return buf.String(), err
}

// executeRoot runs rootCmd with ctx. Cobra keeps the first context a
// subcommand was given, so every command in the tree is reset first.
func executeRoot(ctx context.Context) error {
	var reset func(cmd *cobra.Command)
	reset = func(cmd *cobra.Command) {
		cmd.SetContext(ctx)
		for _, sub := range cmd.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)
	return rootCmd.ExecuteContext(ctx)
}

func TestRootCmd_Use(t *testing.T) {
	assert.Equal(t, "pdfqa", rootCmd.Use)
}

func TestRootCmd_GlobalFlags(t *testing.T) {
	for _, name := range []string{"verbose", "config-dir", "model"} {
		assert.NotNil(t, rootCmd.PersistentFlags().Lookup(name), "missing flag %s", name)
	}
}

func TestRootCmd_Commands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, name := range []string{"index", "ask", "chat", "retrieve", "settings", "watch", "mcp", "version"} {
		assert.True(t, names[name], "missing command %s", name)
	}
}

func TestCommandLevel(t *testing.T) {
	tests := []struct {
		args     []string
		expected Level
	}{
		{[]string{"version"}, ""},
		{[]string{"settings", "show"}, LevelSettings},
		{[]string{"index", "a.pdf"}, LevelRetrieval},
		{[]string{"retrieve", "q"}, LevelRetrieval},
		{[]string{"watch", "dir"}, LevelRetrieval},
		{[]string{"ask", "q"}, LevelFull},
		{[]string{"chat"}, LevelFull},
		{[]string{"mcp", "serve"}, LevelFull},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			cmd, _, err := rootCmd.Find(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, commandLevel(cmd))
		})
	}
}

func TestSetup_Bootstrap(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	defer SetBootstrap(nil)

	conv := newMockConversationService()
	var got BootstrapOptions
	closed := false
	SetBootstrap(func(_ context.Context, opts BootstrapOptions) (*Services, error) {
		got = opts
		return &Services{
			Settings:     newMockSettingsService(),
			Retrieval:    &mockRetrievalService{},
			Conversation: conv,
			Defaults:     domain.RetrievalOptions{TopK: 2, FetchK: 4, LambdaMult: 0.5},
			Close:        func() { closed = true },
		}, nil
	})

	rootCmd.SetArgs([]string{"--model", "llama3", "--config-dir", "/tmp/cfg", "ask", "--thread", "t1", "hello"})
	rootCmd.SetOut(new(bytes.Buffer))
	defer rootCmd.SetArgs(nil)

	require.NoError(t, Execute(context.Background()))
	assert.Equal(t, BootstrapOptions{ConfigDir: "/tmp/cfg", Model: "llama3", Level: LevelFull}, got)
	assert.Equal(t, []string{"t1:hello"}, conv.asked)
	assert.Equal(t, 2, retrievalDefaults.TopK)
	assert.True(t, closed)
}

func TestSetup_BootstrapError(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	defer SetBootstrap(nil)

	SetBootstrap(func(_ context.Context, _ BootstrapOptions) (*Services, error) {
		return nil, domain.ErrStoreCorruption
	})

	_, err := execute(t, "", "retrieve", "q")

	assert.True(t, errors.Is(err, domain.ErrStoreCorruption))
}

func TestSetup_VersionSkipsBootstrap(t *testing.T) {
	defer SetBootstrap(nil)

	called := false
	SetBootstrap(func(_ context.Context, _ BootstrapOptions) (*Services, error) {
		called = true
		return &Services{}, nil
	})

	_, err := execute(t, "", "version")

	require.NoError(t, err)
	assert.False(t, called)
}
