package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/bankflow/internal/importer"
	"github.com/Veraticus/bankflow/internal/model"
	"github.com/Veraticus/bankflow/internal/tui/themes"
)

// Watcher follows auto-synced jobs until they finish.
type Watcher interface {
	Watch(ctx context.Context, jobs []model.StartedJob, onUpdate func([]importer.JobStatus)) ([]importer.JobStatus, error)
}

// WatchConfig configures RunSyncWatch.
type WatchConfig struct {
	Watcher Watcher
	Theme   *themes.Theme
	Jobs    []model.StartedJob
	Options []tea.ProgramOption
}

// RunSyncWatch shows a live view of the jobs until all of them finish or
// the user stops watching. Stopping early leaves the server jobs running.
func RunSyncWatch(ctx context.Context, cfg WatchConfig) ([]importer.JobStatus, error) {
	if cfg.Watcher == nil {
		return nil, errors.New("watcher is required")
	}
	theme := themes.Default
	if cfg.Theme != nil {
		theme = *cfg.Theme
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := append([]tea.ProgramOption{tea.WithContext(ctx)}, cfg.Options...)
	p := tea.NewProgram(NewSyncModel(cfg.Jobs, theme), opts...)

	var (
		statuses []importer.JobStatus
		watchErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		statuses, watchErr = cfg.Watcher.Watch(ctx, cfg.Jobs, func(s []importer.JobStatus) {
			p.Send(statusMsg(s))
		})
		p.Send(watchDoneMsg{statuses: statuses, err: watchErr})
	}()

	final, err := p.Run()
	cancel()
	<-done

	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return statuses, fmt.Errorf("sync view failed: %w", err)
	}
	if m, ok := final.(SyncModel); ok && m.quitting {
		return m.Statuses(), nil
	}
	if errors.Is(watchErr, context.Canceled) {
		return statuses, nil
	}
	return statuses, watchErr
}
