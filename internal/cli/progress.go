package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/schollz/progressbar/v3"

	"github.com/Veraticus/bankflow/internal/importer"
	"github.com/Veraticus/bankflow/internal/model"
)

// ImportView renders orchestrator progress as a terminal progress bar.
type ImportView struct {
	writer   io.Writer
	bar      *progressbar.ProgressBar
	lastDesc string
	lastMsg  string
	mu       sync.Mutex
}

// NewImportView creates a view writing to w.
func NewImportView(w io.Writer) *ImportView {
	if w == nil {
		w = os.Stdout
	}
	return &ImportView{writer: w}
}

// Observe is an importer.Observer.
func (v *ImportView) Observe(p importer.Progress) {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch p.State {
	case importer.Starting, importer.Polling:
		v.ensureBar()
		if desc := describe(p); desc != v.lastDesc {
			v.bar.Describe(desc)
			v.lastDesc = desc
		}
		if err := v.bar.Set(int(p.Percent)); err != nil {
			slog.Warn("Failed to update progress bar", "error", err)
		}
		if p.Message != "" && p.Message != v.lastMsg {
			if err := v.bar.Clear(); err != nil {
				slog.Warn("Failed to clear progress bar", "error", err)
			}
			v.println(FormatInfo(p.Message))
			v.lastMsg = p.Message
		}
	case importer.Completed:
		v.finishBar()
		v.println(FormatSuccess(p.Message))
	case importer.Failed:
		v.stopBar()
		v.println(FormatError(p.Message))
	case importer.Idle:
		v.stopBar()
		if p.Message != "" {
			v.println(FormatWarning(p.Message))
		}
	}
}

func (v *ImportView) ensureBar() {
	if v.bar != nil {
		return
	}
	v.bar = progressbar.NewOptions(100,
		progressbar.OptionSetWriter(v.writer),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Importing...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			if _, err := fmt.Fprintln(v.writer); err != nil {
				slog.Warn("Failed to write newline after progress bar", "error", err)
			}
		}),
	)
}

func (v *ImportView) finishBar() {
	if v.bar == nil {
		return
	}
	if err := v.bar.Finish(); err != nil {
		slog.Warn("Failed to finish progress bar", "error", err)
	}
	v.bar = nil
	v.lastDesc = ""
	v.lastMsg = ""
}

// stopBar leaves the bar where it is.
func (v *ImportView) stopBar() {
	if v.bar == nil {
		return
	}
	if err := v.bar.Exit(); err != nil {
		slog.Warn("Failed to stop progress bar", "error", err)
	}
	if _, err := fmt.Fprintln(v.writer); err != nil {
		slog.Warn("Failed to write newline after progress bar", "error", err)
	}
	v.bar = nil
	v.lastDesc = ""
	v.lastMsg = ""
}

func (v *ImportView) println(s string) {
	if _, err := fmt.Fprintln(v.writer, s); err != nil {
		slog.Warn("Failed to write import status", "error", err)
	}
}

// describe renders the bar label: phase, counters and ETA.
func describe(p importer.Progress) string {
	desc := p.Phase
	if desc == "" {
		desc = "Importing"
	}
	if p.Imported > 0 || p.Duplicates > 0 {
		desc += fmt.Sprintf(" (%d new, %d dup)", p.Imported, p.Duplicates)
	}
	if eta := model.FormatETA(p.EtaMs); eta != "" {
		desc += " ~" + eta
	}
	return desc
}
