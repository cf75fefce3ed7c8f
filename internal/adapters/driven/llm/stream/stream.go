// Package stream turns line-delimited streaming HTTP responses (NDJSON or
// server-sent events) into a driven.ChatStream.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/custodia-labs/pdfqa/internal/core/domain"
	"github.com/custodia-labs/pdfqa/internal/core/ports/driven"
)

// Ensure Stream implements the interface.
var _ driven.ChatStream = (*Stream)(nil)

// maxLineSize bounds a single streamed line.
const maxLineSize = 1 << 20

// ParseFunc decodes one non-empty line. It returns the text fragment the
// line carries (possibly empty) and whether the line ends the reply.
type ParseFunc func(line []byte) (fragment string, done bool, err error)

// Stream reads fragments from a response body.
type Stream struct {
	ctx     context.Context
	service string
	body    io.ReadCloser
	scanner *bufio.Scanner
	parse   ParseFunc

	// mu serialises Recv; Close never takes it so it can interrupt a
	// blocked read.
	mu        sync.Mutex
	done      bool
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a stream over body. The body is closed by Close or when the
// reply ends.
func New(ctx context.Context, service string, body io.ReadCloser, parse ParseFunc) *Stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Stream{
		ctx:     ctx,
		service: service,
		body:    body,
		scanner: scanner,
		parse:   parse,
	}
}

// Recv returns the next non-empty fragment, or io.EOF after the reply ends.
func (s *Stream) Recv() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return "", io.EOF
	}
	if s.closed.Load() {
		return "", fmt.Errorf("%s: stream closed: %w", s.service, context.Canceled)
	}

	for {
		if err := s.ctx.Err(); err != nil {
			return "", err
		}
		if !s.scanner.Scan() {
			if err := s.ctx.Err(); err != nil {
				return "", err
			}
			if s.closed.Load() {
				return "", fmt.Errorf("%s: stream closed: %w", s.service, context.Canceled)
			}
			cause := s.scanner.Err()
			if cause == nil {
				cause = io.ErrUnexpectedEOF
			}
			return "", fmt.Errorf("%s: stream ended early: %w", s.service, errors.Join(domain.ErrTransient, cause))
		}

		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		fragment, done, err := s.parse(line)
		if err != nil {
			return "", err
		}
		if done {
			s.done = true
			_ = s.closeBody()
			if fragment != "" {
				return fragment, nil
			}
			return "", io.EOF
		}
		if fragment != "" {
			return fragment, nil
		}
	}
}

// Close aborts the stream.
func (s *Stream) Close() error {
	s.closed.Store(true)
	return s.closeBody()
}

func (s *Stream) closeBody() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}

// SSEData returns the payload of a server-sent event "data:" line.
func SSEData(line []byte) ([]byte, bool) {
	rest, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		return nil, false
	}
	return bytes.TrimSpace(rest), true
}
