package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// ErrInputCancelled is returned when input is canceled by context.
var ErrInputCancelled = errors.New("input canceled")

// LineReader reads answers to prompts without blocking past cancellation.
type LineReader struct {
	reader *bufio.Reader
	writer io.Writer
	mu     sync.Mutex
}

// NewLineReader creates a reader that prompts on w.
func NewLineReader(r io.Reader, w io.Writer) *LineReader {
	if r == nil {
		panic("reader cannot be nil")
	}
	if w == nil {
		w = io.Discard
	}
	return &LineReader{reader: bufio.NewReader(r), writer: w}
}

// ReadLine reads one trimmed line. A canceled context returns
// ErrInputCancelled; the pending read finishes in the background.
func (r *LineReader) ReadLine(ctx context.Context) (string, error) {
	if ctx.Err() != nil {
		return "", ErrInputCancelled
	}

	type result struct {
		err   error
		value string
	}
	resultCh := make(chan result, 1)

	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		value, err := r.reader.ReadString('\n')
		if errors.Is(err, io.EOF) && value != "" {
			err = nil
		}
		resultCh <- result{value: value, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ErrInputCancelled
	case res := <-resultCh:
		if res.err != nil {
			return "", res.err
		}
		return strings.TrimSpace(res.value), nil
	}
}

// Prompt writes label and reads the answer. An empty answer yields def.
func (r *LineReader) Prompt(ctx context.Context, label, def string) (string, error) {
	text := label
	if def != "" {
		text = fmt.Sprintf("%s [%s]", label, def)
	}
	if _, err := fmt.Fprint(r.writer, FormatPrompt(text)); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}
	answer, err := r.ReadLine(ctx)
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Confirm asks a yes/no question. Only y or yes confirms.
func (r *LineReader) Confirm(ctx context.Context, question string) (bool, error) {
	answer, err := r.Prompt(ctx, question+" (y/N)", "")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
