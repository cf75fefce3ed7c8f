package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
)

func completionServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer gsk-test" {
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		var req chatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if !req.Stream {
			fmt.Fprintf(w, `{"choices":[{"message":{"content":"echo: %s"},"finish_reason":"stop"}]}`,
				req.Messages[len(req.Messages)-1].Content)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		for _, frag := range []string{"The report ", "does not ", "say."} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", frag)
		}
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newGroq(t *testing.T, url, key string) *LLMService {
	t.Helper()
	svc, err := NewLLMService(LLMConfig{APIKey: key, BaseURL: url + "/", Model: "openai/gpt-oss-20b", Name: "groq"})
	require.NoError(t, err)
	return svc
}

func TestNewLLMService_RequiresKey(t *testing.T) {
	_, err := NewLLMService(LLMConfig{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestChat(t *testing.T) {
	srv := completionServer(t)
	svc := newGroq(t, srv.URL, "gsk-test")

	reply, err := svc.Chat(context.Background(), []driven.ChatMessage{{Role: "user", Content: "hello"}}, driven.ChatOptions{})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", reply)
	assert.Equal(t, "openai/gpt-oss-20b", svc.ModelName())
}

func TestChatStream(t *testing.T) {
	srv := completionServer(t)
	svc := newGroq(t, srv.URL, "gsk-test")

	s, err := svc.ChatStream(context.Background(), []driven.ChatMessage{{Role: "user", Content: "q"}}, driven.ChatOptions{})
	require.NoError(t, err)
	defer s.Close()

	var reply string
	for {
		frag, err := s.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		reply += frag
	}
	assert.Equal(t, "The report does not say.", reply)
}

func TestChat_Unauthorised(t *testing.T) {
	srv := completionServer(t)
	svc := newGroq(t, srv.URL, "wrong")

	_, err := svc.Chat(context.Background(), []driven.ChatMessage{{Role: "user", Content: "q"}}, driven.ChatOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "groq")
}
