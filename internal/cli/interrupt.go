package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
)

// ErrInterrupted is the cancellation cause after SIGINT or SIGTERM.
var ErrInterrupted = errors.New("interrupted")

// InterruptHandler turns the first SIGINT/SIGTERM into context cancellation
// and tells the user what happens to work left running on the server.
type InterruptHandler struct {
	writer      io.Writer
	signals     chan os.Signal
	onInterrupt func()
	interrupted atomic.Bool
}

// NewInterruptHandler creates a handler that reports to writer, or stdout.
func NewInterruptHandler(writer io.Writer) *InterruptHandler {
	if writer == nil {
		writer = os.Stdout
	}
	return &InterruptHandler{
		writer:  writer,
		signals: make(chan os.Signal, 1),
	}
}

// OnInterrupt registers fn to run once on the first signal, before the
// context is canceled. Call it before HandleInterrupts.
func (h *InterruptHandler) OnInterrupt(fn func()) {
	h.onInterrupt = fn
}

// HandleInterrupts returns a context canceled with ErrInterrupted on the
// first signal. hint, when set, is printed under the notice.
func (h *InterruptHandler) HandleInterrupts(ctx context.Context, hint string) context.Context {
	ctx, cancel := context.WithCancelCause(ctx)
	signal.Notify(h.signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(h.signals)
		select {
		case <-ctx.Done():
			return
		case <-h.signals:
		}
		if h.interrupted.CompareAndSwap(false, true) {
			if _, err := fmt.Fprint(h.writer, interruptNotice(hint)); err != nil {
				slog.Debug("Failed to write interrupt notice", "error", err)
			}
			if h.onInterrupt != nil {
				h.onInterrupt()
			}
		}
		cancel(ErrInterrupted)
	}()

	return ctx
}

func interruptNotice(hint string) string {
	var b strings.Builder
	b.WriteString("\n\n")
	b.WriteString(FormatWarning("Interrupted!"))
	if hint != "" {
		b.WriteString("\n")
		b.WriteString(FormatInfo(hint))
	}
	b.WriteString("\n")
	return b.String()
}

// WasInterrupted reports whether a signal arrived.
func (h *InterruptHandler) WasInterrupted() bool {
	return h.interrupted.Load()
}
