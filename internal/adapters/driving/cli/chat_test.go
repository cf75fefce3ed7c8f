package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatCmd_AnswersUntilExit(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "What was revenue?\n\nAnd net income?\n/exit\nignored\n", "chat")

	require.NoError(t, err)
	assert.Equal(t, []string{"default:What was revenue?", "default:And net income?"}, ts.conversation.asked)
	assert.Contains(t, out, "model test-model")
	assert.Contains(t, out, "$342.7M")
}

func TestChatCmd_EndOfInput(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "q", "chat", "--thread", "t9")

	require.NoError(t, err)
	assert.Equal(t, []string{"t9:q"}, ts.conversation.asked)
}

func TestChatCmd_SlashCommands(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	input := "first\n/history\n/thread other\nsecond\n/threads\n/clear\n/thread\n/bogus\n/quit\n"
	out, err := execute(t, input, "chat")

	require.NoError(t, err)
	assert.Equal(t, []string{"default:first", "other:second"}, ts.conversation.asked)
	assert.Contains(t, out, "user: first")
	assert.Contains(t, out, "Switched to thread other")
	assert.Contains(t, out, "  default")
	assert.Contains(t, out, "* other")
	assert.Equal(t, []string{"other"}, ts.conversation.cleared)
	assert.Contains(t, out, "Current thread: other")
	assert.Contains(t, out, "Unknown command /bogus")
}

func TestChatCmd_NewThread(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "/thread new\nq\n/exit\n", "chat")

	require.NoError(t, err)
	assert.Contains(t, out, "Started thread")
	require.Len(t, ts.conversation.asked, 1)
	assert.NotContains(t, ts.conversation.asked[0], "default:")
}

func TestChatCmd_ErrorsDoNotEndSession(t *testing.T) {
	ts, cleanup := setupTestServices()
	defer cleanup()
	ts.conversation.err = errBusy

	out, err := execute(t, "one\ntwo\n/exit\n", "chat")

	require.NoError(t, err)
	assert.Contains(t, out, "Error:")
	assert.Contains(t, out, "--thread")
}

func TestChatCmd_HistoryEmpty(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "/history\n/exit\n", "chat")

	require.NoError(t, err)
	assert.Contains(t, out, "No messages yet.")
}
