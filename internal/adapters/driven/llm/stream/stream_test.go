package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
)

// plainParse treats each line as a fragment and "END" as the terminator.
func plainParse(line []byte) (string, bool, error) {
	s := string(line)
	if s == "END" {
		return "", true, nil
	}
	if s == "BAD" {
		return "", false, errors.New("bad line")
	}
	if s == "-" {
		return "", false, nil
	}
	return s, false, nil
}

func collect(t *testing.T, s *Stream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		frag, err := s.Recv()
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}

func TestStream_ReadsUntilTerminator(t *testing.T) {
	body := io.NopCloser(strings.NewReader("The\n\n-\n answer\nEND\nignored\n"))
	s := New(context.Background(), "test", body, plainParse)

	frags, err := collect(t, s)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"The", "answer"}, frags)

	_, err = s.Recv()
	assert.ErrorIs(t, err, io.EOF)
}

func TestStream_EarlyEOFIsTransient(t *testing.T) {
	s := New(context.Background(), "test", io.NopCloser(strings.NewReader("partial\n")), plainParse)

	frags, err := collect(t, s)
	assert.Equal(t, []string{"partial"}, frags)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestStream_ParseError(t *testing.T) {
	s := New(context.Background(), "test", io.NopCloser(strings.NewReader("BAD\n")), plainParse)

	_, err := s.Recv()
	assert.EqualError(t, err, "bad line")
}

func TestStream_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, "test", io.NopCloser(strings.NewReader("a\nb\nEND\n")), plainParse)

	frag, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "a", frag)

	cancel()
	_, err = s.Recv()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStream_CloseAborts(t *testing.T) {
	s := New(context.Background(), "test", io.NopCloser(strings.NewReader("a\nEND\n")), plainParse)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Recv()
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSSEData(t *testing.T) {
	data, ok := SSEData([]byte(`data: {"x":1}`))
	assert.True(t, ok)
	assert.Equal(t, `{"x":1}`, string(data))

	_, ok = SSEData([]byte("event: ping"))
	assert.False(t, ok)
}
