package cli

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer provides thread-safe access to a bytes.Buffer.
type syncBuffer struct {
	buf bytes.Buffer
	mu  sync.Mutex
}

func (s *syncBuffer) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestNewInterruptHandler(t *testing.T) {
	tests := []struct {
		writer io.Writer
		name   string
	}{
		{name: "with custom writer", writer: &bytes.Buffer{}},
		{name: "with nil writer", writer: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewInterruptHandler(tt.writer)
			assert.NotNil(t, handler.writer)
			assert.False(t, handler.WasInterrupted())
		})
	}
}

func TestHandleInterrupts_SignalCancels(t *testing.T) {
	output := &syncBuffer{}
	handler := NewInterruptHandler(output)

	ctx := handler.HandleInterrupts(context.Background(), "The import keeps running on the server.")

	select {
	case <-ctx.Done():
		t.Fatal("context canceled before any signal")
	default:
	}

	handler.signals <- os.Interrupt

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled after interrupt")
	}

	assert.ErrorIs(t, context.Cause(ctx), ErrInterrupted)
	require.Eventually(t, handler.WasInterrupted, time.Second, 5*time.Millisecond)
	out := output.String()
	assert.Contains(t, out, "Interrupted!")
	assert.Contains(t, out, "The import keeps running on the server.")
}

func TestHandleInterrupts_RunsHookBeforeCancel(t *testing.T) {
	handler := NewInterruptHandler(&syncBuffer{})
	hookRan := make(chan bool, 1)

	var ctx context.Context
	handler.OnInterrupt(func() {
		hookRan <- ctx.Err() == nil
	})
	ctx = handler.HandleInterrupts(context.Background(), "")

	handler.signals <- os.Interrupt

	select {
	case live := <-hookRan:
		assert.True(t, live, "hook should run while the context is still live")
	case <-time.After(time.Second):
		t.Fatal("interrupt hook did not run")
	}
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not canceled after interrupt")
	}
}

func TestHandleInterrupts_ParentCancelIsQuiet(t *testing.T) {
	output := &syncBuffer{}
	handler := NewInterruptHandler(output)

	parent, cancel := context.WithCancel(context.Background())
	ctx := handler.HandleInterrupts(parent, "")
	cancel()

	<-ctx.Done()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, handler.WasInterrupted())
	assert.Empty(t, output.String())
}

func TestInterruptNotice(t *testing.T) {
	tests := []struct {
		name        string
		hint        string
		expected    []string
		notExpected []string
	}{
		{
			name:     "with hint",
			hint:     "Check progress with: bankflow sync --watch",
			expected: []string{"Interrupted!", "bankflow sync --watch"},
		},
		{
			name:        "without hint",
			expected:    []string{"Interrupted!"},
			notExpected: []string{"bankflow"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := interruptNotice(tt.hint)
			for _, e := range tt.expected {
				assert.Contains(t, out, e)
			}
			for _, n := range tt.notExpected {
				assert.NotContains(t, out, n)
			}
			assert.Equal(t, 1, strings.Count(out, "Interrupted!"))
		})
	}
}
